// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package notify

import (
	"strings"
	"text/template"
)

type resetView struct {
	Name      string
	Link      string
	ExpiresAt string
	Minutes   int
}

type testView struct {
	SentAt string
	Mode   string
}

var resetTemplate = template.Must(template.New("reset").Parse(`Hello {{.Name}},

Someone asked to reset the password of your unilink account.
Open the link below to choose a new password:

{{.Link}}

The link works once and expires at {{.ExpiresAt}}{{if gt .Minutes 0}} (in about {{.Minutes}} minutes){{end}}.
If you did not ask for this, you can ignore this message; your password stays unchanged.
`))

var testTemplate = template.Must(template.New("test").Parse(`This is a test message from unilink.

Sent at {{.SentAt}} via the {{.Mode}} transport.
`))

func render(tmpl *template.Template, data any) (string, error) {
	var builder strings.Builder
	if err := tmpl.Execute(&builder, data); err != nil {
		return "", renderFailure(tmpl.Name(), err)
	}
	return builder.String(), nil
}
