// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/taibuivan/unilink/internal/platform/apperr"
	"github.com/taibuivan/unilink/internal/platform/constants"
	"github.com/taibuivan/unilink/internal/platform/ctxutil"
	"github.com/taibuivan/unilink/internal/platform/respond"
	"github.com/taibuivan/unilink/internal/platform/sec"
)

// Authenticator resolves request credentials into a [sec.Principal].
//
// Both methods reload the owning user, so a deactivated or deleted account is
// rejected even while its cookie or token is still unexpired.
type Authenticator interface {
	AuthenticateSession(ctx context.Context, token string) (*sec.Principal, error)
	AuthenticateBearer(ctx context.Context, token string) (*sec.Principal, error)
}

type principalHolderKey struct{}

// principalHolder lets outer middleware (the request logger) see the principal
// resolved further down the chain.
type principalHolder struct {
	principal *sec.Principal
}

// Authenticate resolves the caller from the bearer header or the session cookie.
//
// # Flow
//  1. 'Authorization: Bearer <jwt>' wins when present; a bad token is a 401.
//  2. Otherwise the session cookie is checked; a bad cookie leaves the request anonymous.
//  3. The [*sec.Principal] is injected into the request context.
func Authenticate(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			ctx := request.Context()

			var principal *sec.Principal

			// ── 1. Bearer token ───────────────────────────────────────────────
			if authHeader := request.Header.Get(constants.HeaderAuthorization); authHeader != "" {
				scheme, token, found := strings.Cut(authHeader, " ")
				if !found || !strings.EqualFold(scheme, "bearer") || token == "" {
					respond.Error(writer, request, apperr.Unauthorized("Invalid authorization format"))
					return
				}

				resolved, err := authenticator.AuthenticateBearer(ctx, token)
				if err != nil {
					respond.Error(writer, request, err)
					return
				}
				principal = resolved
			}

			// ── 2. Session cookie ─────────────────────────────────────────────
			if principal == nil {
				if cookie, err := request.Cookie(constants.SessionCookieName); err == nil && cookie.Value != "" {
					resolved, err := authenticator.AuthenticateSession(ctx, cookie.Value)
					if err != nil && !apperr.HasCode(err, "UNAUTHORIZED") {
						respond.Error(writer, request, err)
						return
					}
					principal = resolved
				}
			}

			if principal == nil {
				next.ServeHTTP(writer, request)
				return
			}

			// ── 3. Context Injection ──────────────────────────────────────────
			if holder, ok := ctx.Value(principalHolderKey{}).(*principalHolder); ok {
				holder.principal = principal
			}
			next.ServeHTTP(writer, request.WithContext(ctxutil.WithPrincipal(ctx, principal)))
		})
	}
}

// RequireAuth blocks requests that are not authenticated.
//
// Must be registered in the router AFTER [Authenticate].
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if ctxutil.GetPrincipal(request.Context()) == nil {
			respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// RequireRole blocks requests whose principal does not satisfy role.
// It implies [RequireAuth].
func RequireRole(role sec.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			principal := ctxutil.GetPrincipal(request.Context())
			if principal == nil {
				respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
				return
			}

			if err := sec.Authorize(principal.Role, role); err != nil {
				respond.Error(writer, request, err)
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}
