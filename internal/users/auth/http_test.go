// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/unilink/internal/platform/constants"
	"github.com/taibuivan/unilink/internal/platform/middleware"
	"github.com/taibuivan/unilink/internal/users/auth"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
	Code  string          `json:"code"`
}

func newRouter(t *testing.T) (http.Handler, *sessionFixture) {
	t.Helper()

	fixture := newSessionFixture(t)
	service := newService(t, fixture)

	router := chi.NewRouter()
	router.Use(middleware.Authenticate(service))
	router.Route("/auth", auth.NewHandler(service, true).RegisterRoutes)
	return router, fixture
}

func do(t *testing.T, handler http.Handler, method, path, body string, mutate func(*http.Request)) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	request := httptest.NewRequest(method, path, strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(request)
	}

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	var decoded envelope
	if recorder.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &decoded))
	}
	return recorder, decoded
}

func sessionCookie(recorder *httptest.ResponseRecorder) *http.Cookie {
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == constants.SessionCookieName {
			return cookie
		}
	}
	return nil
}

/*
TestHandler_SessionLifecycle walks login, authenticated access, and logout.
*/
func TestHandler_SessionLifecycle(t *testing.T) {
	router, _ := newRouter(t)

	recorder, _ := do(t, router, http.MethodPost, "/auth/login", `{"login":"alice","password":"correct-horse"}`, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	cookie := sessionCookie(recorder)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.NotContains(t, recorder.Body.String(), cookie.Value, "token only travels in the cookie")
	assert.NotContains(t, recorder.Body.String(), "password")

	withCookie := func(request *http.Request) { request.AddCookie(cookie) }

	recorder, body := do(t, router, http.MethodGet, "/auth/me", "", withCookie)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, string(body.Data), `"username":"alice"`)

	recorder, _ = do(t, router, http.MethodPost, "/auth/logout", "", withCookie)
	assert.Equal(t, http.StatusNoContent, recorder.Code)
	cleared := sessionCookie(recorder)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	recorder, body = do(t, router, http.MethodGet, "/auth/me", "", withCookie)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Equal(t, "UNAUTHORIZED", body.Code)

	// Logging out again is harmless.
	recorder, _ = do(t, router, http.MethodPost, "/auth/logout", "", withCookie)
	assert.Equal(t, http.StatusNoContent, recorder.Code)
}

/*
TestHandler_LoginFailure verifies the generic credential error.
*/
func TestHandler_LoginFailure(t *testing.T) {
	router, _ := newRouter(t)

	for _, body := range []string{
		`{"login":"alice","password":"nope-nope"}`,
		`{"login":"nobody","password":"correct-horse"}`,
	} {
		recorder, decoded := do(t, router, http.MethodPost, "/auth/login", body, nil)
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
		assert.Equal(t, "UNAUTHORIZED", decoded.Code)
		assert.Nil(t, sessionCookie(recorder))
	}

	recorder, decoded := do(t, router, http.MethodPost, "/auth/login", `{"login":`, nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.NotEmpty(t, decoded.Code)
}

/*
TestHandler_Register verifies account creation over HTTP.
*/
func TestHandler_Register(t *testing.T) {
	router, _ := newRouter(t)

	body := `{"username":"bob","email":"bob@example.com","password":"hunter2hunter2","confirm_password":"hunter2hunter2"}`
	recorder, decoded := do(t, router, http.MethodPost, "/auth/register", body, nil)
	require.Equal(t, http.StatusCreated, recorder.Code)
	assert.Contains(t, string(decoded.Data), `"role":"user"`)
	assert.NotContains(t, string(decoded.Data), "hunter2")

	recorder, decoded = do(t, router, http.MethodPost, "/auth/register", body, nil)
	assert.Equal(t, http.StatusConflict, recorder.Code)
	assert.Equal(t, "CONFLICT", decoded.Code)
}

/*
TestHandler_Token verifies that only cookie sessions may mint bearer tokens.
*/
func TestHandler_Token(t *testing.T) {
	router, _ := newRouter(t)

	recorder, _ := do(t, router, http.MethodPost, "/auth/login", `{"login":"alice","password":"correct-horse"}`, nil)
	cookie := sessionCookie(recorder)
	require.NotNil(t, cookie)

	recorder, decoded := do(t, router, http.MethodPost, "/auth/token", "", func(request *http.Request) { request.AddCookie(cookie) })
	require.Equal(t, http.StatusOK, recorder.Code)

	var token auth.APIToken
	require.NoError(t, json.Unmarshal(decoded.Data, &token))
	assert.Equal(t, "Bearer", token.TokenType)

	withBearer := func(request *http.Request) {
		request.Header.Set(constants.HeaderAuthorization, "Bearer "+token.AccessToken)
	}

	recorder, _ = do(t, router, http.MethodGet, "/auth/me", "", withBearer)
	assert.Equal(t, http.StatusOK, recorder.Code)

	recorder, decoded = do(t, router, http.MethodPost, "/auth/token", "", withBearer)
	assert.Equal(t, http.StatusForbidden, recorder.Code)
	assert.Equal(t, "FORBIDDEN", decoded.Code)

	recorder, _ = do(t, router, http.MethodGet, "/auth/me", "", func(request *http.Request) {
		request.Header.Set(constants.HeaderAuthorization, "Bearer forged")
	})
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}
