// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package accounts

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/unilink/internal/platform/apperr"
	requestutil "github.com/taibuivan/unilink/internal/platform/request"
	"github.com/taibuivan/unilink/internal/platform/respond"
	"github.com/taibuivan/unilink/internal/platform/validate"
)

// HeaderWebhookSecret is an alternative to the ?secret= query parameter.
const HeaderWebhookSecret = "X-Webhook-Secret"

// Handler implements the account-link HTTP endpoints.
type Handler struct {
	accountService *Service
}

// NewHandler constructs a new accounts [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{accountService: service}
}

// Routes returns the authenticated /accounts endpoints.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", handler.list)
	router.Post("/connect", handler.connect)
	router.Get("/{accountID}", handler.status)
	router.Delete("/{accountID}", handler.disconnect)

	return router
}

// # Request Payloads

type connectRequest struct {
	Provider string `json:"provider"`
}

// webhookPayload accepts both spellings of the account id.
type webhookPayload struct {
	Status       string `json:"status"`
	AccountID    string `json:"account_id"`
	AccountIDAlt string `json:"accountId"`
	Name         string `json:"name"`
	Provider     string `json:"provider"`
	Type         string `json:"type"`
}

// # Account Endpoints

/*
GET /api/v1/accounts.

Response:
  - 200: []ConnectedAccount
*/
func (handler *Handler) list(writer http.ResponseWriter, request *http.Request) {
	principal, err := requestutil.RequiredPrincipal(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	accounts, err := handler.accountService.List(request.Context(), principal)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, accounts)
}

/*
POST /api/v1/accounts/connect.

Request (JSON):
  - provider: string (e.g. LINKEDIN, or * to choose in the wizard)

Response:
  - 200: ConnectLink
  - 400: VALIDATION_ERROR
  - 502: TRANSPORT_FAILURE
  - 503: SERVICE_UNAVAILABLE
*/
func (handler *Handler) connect(writer http.ResponseWriter, request *http.Request) {
	principal, err := requestutil.RequiredPrincipal(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input connectRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	link, err := handler.accountService.Connect(request.Context(), principal, input.Provider)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, link)
}

/*
GET /api/v1/accounts/{accountID}.

Description: Refreshes the account from the vendor.

Response:
  - 200: ConnectedAccount
  - 404: NOT_FOUND
  - 502: TRANSPORT_FAILURE
*/
func (handler *Handler) status(writer http.ResponseWriter, request *http.Request) {
	principal, err := requestutil.RequiredPrincipal(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	account, err := handler.accountService.Status(request.Context(), principal, requestutil.Param(request, "accountID"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, account)
}

/*
DELETE /api/v1/accounts/{accountID}.

Response:
  - 204: No Content
  - 404: NOT_FOUND
*/
func (handler *Handler) disconnect(writer http.ResponseWriter, request *http.Request) {
	principal, err := requestutil.RequiredPrincipal(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.accountService.Disconnect(request.Context(), principal, requestutil.Param(request, "accountID")); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// # Dashboard

/*
ServeDashboard handles GET /api/v1/dashboard.

Response:
  - 200: Dashboard
*/
func (handler *Handler) ServeDashboard(writer http.ResponseWriter, request *http.Request) {
	principal, err := requestutil.RequiredPrincipal(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	dashboard, err := handler.accountService.Dashboard(request.Context(), principal)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, dashboard)
}

// # Webhook

/*
ServeWebhook handles POST /api/v1/webhooks/unipile.

Description: Public endpoint called by the vendor. When a shared secret is
configured it must arrive as ?secret= or in the X-Webhook-Secret header.

Response:
  - 200: {"ok": true}
  - 400: VALIDATION_ERROR
  - 401: UNAUTHORIZED
*/
func (handler *Handler) ServeWebhook(writer http.ResponseWriter, request *http.Request) {
	secret := request.URL.Query().Get("secret")
	if secret == "" {
		secret = request.Header.Get(HeaderWebhookSecret)
	}
	if !handler.accountService.VerifyWebhookSecret(secret) {
		respond.Error(writer, request, apperr.Unauthorized("Invalid webhook secret"))
		return
	}

	var raw json.RawMessage
	if err := requestutil.DecodeJSON(request, &raw); err != nil {
		respond.Error(writer, request, err)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	notification := Notification{
		Status:    payload.Status,
		AccountID: payload.AccountID,
		Name:      payload.Name,
		Provider:  payload.Provider,
		Raw:       raw,
	}
	if notification.AccountID == "" {
		notification.AccountID = payload.AccountIDAlt
	}
	if notification.Provider == "" {
		notification.Provider = payload.Type
	}

	if _, err := handler.accountService.HandleNotification(request.Context(), notification); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]bool{"ok": true})
}
