// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package pagination_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/unilink/pkg/pagination"
)

func TestFromRequest(t *testing.T) {
	tests := []struct {
		query string
		want  pagination.Params
	}{
		{query: "", want: pagination.Params{Page: 1, Limit: pagination.DefaultLimit}},
		{query: "?page=3&limit=10", want: pagination.Params{Page: 3, Limit: 10}},
		{query: "?page=-2&limit=0", want: pagination.Params{Page: 1, Limit: pagination.DefaultLimit}},
		{query: "?page=abc&limit=5000", want: pagination.Params{Page: 1, Limit: pagination.MaxLimit}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := pagination.FromRequest(httptest.NewRequest("GET", "/users"+tt.query, nil))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMeta(t *testing.T) {
	assert.Equal(t, 3, pagination.NewMeta(1, 20, 41).TotalPages)
	assert.Equal(t, 0, pagination.NewMeta(1, 0, 41).TotalPages)
	assert.Equal(t, 40, pagination.Params{Page: 3, Limit: 20}.Offset())
}
