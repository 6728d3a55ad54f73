// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package accounts_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/unilink/internal/accounts"
	"github.com/taibuivan/unilink/internal/platform/ctxutil"
	"github.com/taibuivan/unilink/internal/platform/sec"
)

// newRouter mounts the account routes, acting as principal when it is non-nil.
func newRouter(f *fixture, principal *sec.Principal) http.Handler {
	handler := accounts.NewHandler(f.service)

	router := chi.NewRouter()
	router.Post("/webhooks/unipile", handler.ServeWebhook)
	router.Group(func(router chi.Router) {
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
				if principal != nil {
					request = request.WithContext(ctxutil.WithPrincipal(request.Context(), principal))
				}
				next.ServeHTTP(writer, request)
			})
		})
		router.Get("/dashboard", handler.ServeDashboard)
		router.Mount("/accounts", handler.Routes())
	})
	return router
}

func call(t *testing.T, handler http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	request := httptest.NewRequest(method, target, strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		request.Header.Set(headers[i], headers[i+1])
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

/*
TestHandler_Webhook verifies secret checking and both account id spellings.
*/
func TestHandler_Webhook(t *testing.T) {
	f := newFixture(t, "s3cr3t")
	router := newRouter(f, nil)
	body := `{"status":"CREATION_SUCCESS","account_id":"acc-1","name":"` + f.alice.ID + `"}`

	recorder := call(t, router, http.MethodPost, "/webhooks/unipile", body)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	recorder = call(t, router, http.MethodPost, "/webhooks/unipile?secret=wrong", body)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Nil(t, f.repository.get("acc-1"))

	recorder = call(t, router, http.MethodPost, "/webhooks/unipile?secret=s3cr3t", body)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"data":{"ok":true}}`, recorder.Body.String())
	assert.Equal(t, f.alice.ID, f.repository.get("acc-1").UserID)

	camel := `{"status":"OK","accountId":"acc-2","name":"` + f.alice.ID + `","type":"INSTAGRAM"}`
	recorder = call(t, router, http.MethodPost, "/webhooks/unipile", camel, accounts.HeaderWebhookSecret, "s3cr3t")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "INSTAGRAM", f.repository.get("acc-2").Provider)

	recorder = call(t, router, http.MethodPost, "/webhooks/unipile?secret=s3cr3t", `{"status":"OK"}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = call(t, router, http.MethodPost, "/webhooks/unipile?secret=s3cr3t", `not json`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

/*
TestHandler_Accounts exercises connect, list, status, and disconnect.
*/
func TestHandler_Accounts(t *testing.T) {
	f := newFixture(t, "")
	f.link(t, "acc-1", f.alice, accounts.StatusOK)
	f.vendor.put("acc-1", map[string]any{"id": "acc-1", "status": "OK"})
	router := newRouter(f, f.alice.Principal("s1"))

	recorder := call(t, router, http.MethodPost, "/accounts/connect", `{"provider":"linkedin"}`)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "https://account.unipile.com/wizard/abc")

	recorder = call(t, router, http.MethodPost, "/accounts/connect", `{"provider":"fax"}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = call(t, router, http.MethodGet, "/accounts", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	var listed struct {
		Data []accounts.ConnectedAccount `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &listed))
	require.Len(t, listed.Data, 1)
	assert.Equal(t, "acc-1", listed.Data[0].AccountID)

	recorder = call(t, router, http.MethodGet, "/accounts/acc-1", "")
	assert.Equal(t, http.StatusOK, recorder.Code)

	recorder = call(t, router, http.MethodGet, "/dashboard", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"total_accounts":1`)
	assert.NotContains(t, recorder.Body.String(), "total_users")

	recorder = call(t, router, http.MethodDelete, "/accounts/acc-1", "")
	assert.Equal(t, http.StatusNoContent, recorder.Code)
	assert.Equal(t, accounts.StatusDisconnected, f.repository.get("acc-1").Status)

	other := newRouter(f, f.bob.Principal("s2"))
	recorder = call(t, other, http.MethodDelete, "/accounts/acc-1", "")
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

/*
TestHandler_RequiresPrincipal verifies anonymous callers are rejected.
*/
func TestHandler_RequiresPrincipal(t *testing.T) {
	f := newFixture(t, "")
	router := newRouter(f, nil)

	for _, target := range []string{"/accounts", "/dashboard"} {
		recorder := call(t, router, http.MethodGet, target, "")
		assert.Equal(t, http.StatusUnauthorized, recorder.Code, target)
	}
}
