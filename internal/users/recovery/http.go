// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package recovery

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/unilink/internal/platform/apperr"
	"github.com/taibuivan/unilink/internal/platform/ctxutil"
	requestutil "github.com/taibuivan/unilink/internal/platform/request"
	"github.com/taibuivan/unilink/internal/platform/respond"
	"github.com/taibuivan/unilink/internal/platform/validate"
)

// DefaultMinResponseTime pads forgot-password responses so known and unknown
// identifiers take about as long.
const DefaultMinResponseTime = 400 * time.Millisecond

// forgotPasswordMessage is returned whether or not the account exists.
const forgotPasswordMessage = "If an account matches, a reset link has been sent"

// # Definitions & Constructors

// Handler implements the password recovery HTTP endpoints.
type Handler struct {
	recoveryService *Service
	minResponseTime time.Duration
}

// NewHandler constructs a new [Handler].
func NewHandler(service *Service, minResponseTime time.Duration) *Handler {
	return &Handler{recoveryService: service, minResponseTime: minResponseTime}
}

// RegisterRoutes mounts the recovery endpoints on router.
//
// # Endpoints
//   - POST /forgot-password : Mails a reset link (always 202).
//   - GET  /reset-password  : Checks a token without consuming it.
//   - POST /reset-password  : Sets a new password with a token.
func (handler *Handler) RegisterRoutes(router chi.Router) {
	router.Post("/forgot-password", handler.forgotPassword)
	router.Get("/reset-password", handler.inspectToken)
	router.Post("/reset-password", handler.resetPassword)
}

// # Request Payloads

type forgotPasswordRequest struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
}

type resetPasswordRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

/*
ForgotPassword starts a password reset.

POST /api/v1/auth/forgot-password

Description: Responds identically for unknown, inactive, throttled, and real
accounts, after the same minimum delay. The mail itself is sent after the
response, so transport latency and failures never reach the client.

Response:
  - 202: Generic message
  - 400: VALIDATION_ERROR: Identifier missing
*/
func (handler *Handler) forgotPassword(writer http.ResponseWriter, request *http.Request) {
	started := time.Now()
	ctx := request.Context()

	var input forgotPasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	identifier := input.Identifier
	if identifier == "" {
		identifier = input.Email
	}

	if err := handler.recoveryService.RequestReset(ctx, identifier); err != nil {
		if apperr.HasCode(err, "VALIDATION_ERROR") {
			respond.Error(writer, request, err)
			return
		}
		ctxutil.GetLogger(ctx).ErrorContext(ctx, "forgot_password_failed", slog.String("error", err.Error()))
	}

	pad(ctx, started, handler.minResponseTime)

	respond.Accepted(writer, map[string]string{
		FieldMessage: forgotPasswordMessage,
	})
}

/*
InspectToken tells a reset page whether to show the form.

GET /api/v1/auth/reset-password?token=...

Response:
  - 200: { valid, expires_at }
  - 400: INVALID_OR_EXPIRED_TOKEN
*/
func (handler *Handler) inspectToken(writer http.ResponseWriter, request *http.Request) {
	token, err := handler.recoveryService.InspectResetToken(request.Context(), request.URL.Query().Get(FieldToken))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldValid:     true,
		FieldExpiresAt: token.ExpiresAt,
	})
}

/*
ResetPassword redeems a token for a new password.

POST /api/v1/auth/reset-password

Description: On success every session of the account is ended, so the user
logs in again with the new password.

Response:
  - 200: Success message
  - 400: VALIDATION_ERROR or INVALID_OR_EXPIRED_TOKEN
*/
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input resetPasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Matches(FieldConfirmPassword, input.ConfirmPassword, input.Password, "Passwords do not match")
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.recoveryService.ConsumeResetToken(request.Context(), input.Token, input.Password); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		FieldMessage: "Password has been reset. Please log in again.",
	})
}

// pad sleeps until minimum has elapsed since started, or ctx ends.
func pad(ctx context.Context, started time.Time, minimum time.Duration) {
	remaining := minimum - time.Since(started)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
