// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command unilink runs the API server and its maintenance tasks.
//
// No business logic lives here; see package cli for the command tree.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/taibuivan/unilink/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "unilink:", err)
		os.Exit(1)
	}
}
