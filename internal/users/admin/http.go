// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package admin

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/unilink/internal/platform/apperr"
	requestutil "github.com/taibuivan/unilink/internal/platform/request"
	"github.com/taibuivan/unilink/internal/platform/respond"
	"github.com/taibuivan/unilink/internal/users/auth"
	"github.com/taibuivan/unilink/pkg/pagination"
)

// Handler implements the admin HTTP endpoints.
type Handler struct {
	adminService *Service
}

// NewHandler constructs a new admin [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{adminService: service}
}

// Routes returns a [chi.Router] with the admin endpoints. The caller mounts it
// behind middleware.RequireRole(sec.RoleAdmin).
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// User management
	router.Get("/users", handler.listUsers)
	router.Post("/users", handler.createUser)
	router.Patch("/users/{id}", handler.updateUser)
	router.Put("/users/{id}/active", handler.setActive)
	router.Delete("/users/{id}", handler.deleteUser)

	// Maintenance
	router.Post("/sessions/purge", handler.purge)

	// Mail diagnostics
	router.Get("/mail/status", handler.mailStatus)
	router.Post("/mail/test", handler.mailTest)

	return router
}

// # Request Payloads

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	IsActive *bool  `json:"is_active"`
}

type updateUserRequest struct {
	Email    *string `json:"email"`
	FullName *string `json:"full_name"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
	Password *string `json:"password"`
}

type setActiveRequest struct {
	IsActive *bool `json:"is_active"`
}

type mailTestRequest struct {
	To string `json:"to"`
}

// # User Endpoints

/*
GET /api/v1/admin/users.

Description: Lists accounts, newest first.

Request (query):
  - q: string (matches username, email, or full name)
  - active: bool (optional)
  - page, limit: pagination

Response:
  - 200: []User with pagination meta
*/
func (handler *Handler) listUsers(writer http.ResponseWriter, request *http.Request) {
	page := pagination.FromRequest(request)
	query := request.URL.Query()

	filter := auth.UserFilter{Search: query.Get("q")}
	if raw := query.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			respond.Error(writer, request, apperr.ValidationError("Invalid query parameter",
				apperr.FieldError{Field: "active", Message: "Must be true or false"}))
			return
		}
		filter.Active = &active
	}

	users, total, err := handler.adminService.ListUsers(request.Context(), filter, page)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, users, pagination.NewMeta(page.Page, page.Limit, total))
}

/*
POST /api/v1/admin/users.

Response:
  - 201: User
  - 400: VALIDATION_ERROR
  - 409: CONFLICT
*/
func (handler *Handler) createUser(writer http.ResponseWriter, request *http.Request) {
	var input createUserRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.adminService.CreateUser(request.Context(), CreateUserInput(input))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, user)
}

/*
PATCH /api/v1/admin/users/{id}.

Response:
  - 200: User
  - 404: NOT_FOUND
  - 409: CONFLICT
  - 422: UNPROCESSABLE: Would lock the caller out
*/
func (handler *Handler) updateUser(writer http.ResponseWriter, request *http.Request) {
	principal, err := requestutil.RequiredPrincipal(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input updateUserRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.adminService.UpdateUser(request.Context(), principal, requestutil.Param(request, "id"), UpdateUserInput(input))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

/*
PUT /api/v1/admin/users/{id}/active.

Response:
  - 204: No Content
  - 400: VALIDATION_ERROR: is_active missing
*/
func (handler *Handler) setActive(writer http.ResponseWriter, request *http.Request) {
	principal, err := requestutil.RequiredPrincipal(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input setActiveRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}
	if input.IsActive == nil {
		respond.Error(writer, request, apperr.ValidationError("Invalid request",
			apperr.FieldError{Field: auth.FieldIsActive, Message: "Is required"}))
		return
	}

	if err := handler.adminService.SetActive(request.Context(), principal, requestutil.Param(request, "id"), *input.IsActive); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
DELETE /api/v1/admin/users/{id}.

Response:
  - 204: No Content
  - 422: UNPROCESSABLE: Self-deletion
*/
func (handler *Handler) deleteUser(writer http.ResponseWriter, request *http.Request) {
	principal, err := requestutil.RequiredPrincipal(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.adminService.DeleteUser(request.Context(), principal, requestutil.Param(request, "id")); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// # Maintenance Endpoints

// POST /api/v1/admin/sessions/purge.
func (handler *Handler) purge(writer http.ResponseWriter, request *http.Request) {
	result, err := handler.adminService.Purge(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, result)
}

// GET /api/v1/admin/mail/status.
func (handler *Handler) mailStatus(writer http.ResponseWriter, request *http.Request) {
	respond.OK(writer, handler.adminService.MailStatus())
}

/*
POST /api/v1/admin/mail/test.

Response:
  - 200: { sent: true }
  - 400: VALIDATION_ERROR
  - 502: TRANSPORT_FAILURE (message never includes credentials)
  - 503: SERVICE_UNAVAILABLE: Mail is not configured
*/
func (handler *Handler) mailTest(writer http.ResponseWriter, request *http.Request) {
	var input mailTestRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.adminService.SendTestMail(request.Context(), input.To); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]bool{"sent": true})
}
