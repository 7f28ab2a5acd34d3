// Package proxy exposes the /api route handlers that forward dashboard
// calls to the backend API with the caller's bearer token.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/recargaplus/storefront/internal/backend"
	"github.com/recargaplus/storefront/internal/platform/httpx"
	"github.com/recargaplus/storefront/internal/rbac"
	"github.com/recargaplus/storefront/internal/roles"
	"github.com/recargaplus/storefront/internal/shared"
)

const maxRequestBody = 1 << 20

// Backend is the subset of backend.Client used by the proxy.
type Backend interface {
	Do(ctx context.Context, token string, req backend.Request) (*backend.Response, error)
}

// CallRecorder observes proxied calls.
type CallRecorder interface {
	RecordBackendCall(resource string, status int)
}

// Handler forwards API calls to the backend.
type Handler struct {
	logger    *slog.Logger
	backend   Backend
	rbac      rbac.Middleware
	recorder  CallRecorder
	validator *validator.Validate
}

// NewHandler constructs a Handler. recorder may be nil.
func NewHandler(logger *slog.Logger, client Backend, recorder CallRecorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		backend:   client,
		rbac:      rbac.Middleware{Logger: logger},
		recorder:  recorder,
		validator: validator.New(),
	}
}

// MountRoutes registers the proxy routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.CapProductsRead))
		r.Get("/products", h.passthrough("products", "/products"))
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.CapProductsWrite))
		r.Post("/products", h.passthrough("products", "/products"))
		r.Put("/products/{id}", h.passthroughID("products", "/products"))
		r.Delete("/products/{id}", h.passthroughID("products", "/products"))
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.CapCategoriesRead))
		r.Get("/categories", h.passthrough("categories", "/categories"))
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.CapCategoriesWrite))
		r.Post("/categories", h.passthrough("categories", "/categories"))
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.CapUsersRead))
		r.Get("/users", h.passthrough("users", "/users"))
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.CapUsersWrite))
		r.Post("/users", h.createUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.CapOrdersRead))
		r.Get("/orders", h.passthrough("orders", "/orders"))
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.CapOrdersCreate))
		r.Post("/orders", h.passthrough("orders", "/orders"))
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.CapWalletRead))
		r.Get("/wallet", h.passthrough("wallet", "/wallet"))
	})
}

func (h *Handler) passthrough(resource, upstreamPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(w, r)
		if err != nil {
			respondBodyError(w, err)
			return
		}
		h.forward(w, r, resource, backend.Request{
			Method:      r.Method,
			Path:        upstreamPath,
			Query:       r.URL.Query(),
			Body:        body,
			ContentType: r.Header.Get("Content-Type"),
		})
	}
}

func (h *Handler) passthroughID(resource, upstreamPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			httpx.Message(w, http.StatusBadRequest, "missing id")
			return
		}
		body, err := readBody(w, r)
		if err != nil {
			respondBodyError(w, err)
			return
		}
		h.forward(w, r, resource, backend.Request{
			Method:      r.Method,
			Path:        upstreamPath + "/" + url.PathEscape(id),
			Body:        body,
			ContentType: r.Header.Get("Content-Type"),
		})
	}
}

type createUserPayload struct {
	Name  string `json:"name" validate:"required,max=120"`
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required"`
}

// createUser only forwards roles strictly below the caller's own rank.
func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	auth, ok := shared.PrincipalFromContext(r.Context()).(shared.Authenticated)
	if !ok {
		httpx.Message(w, http.StatusUnauthorized, "authentication required")
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		respondBodyError(w, err)
		return
	}
	if len(body) == 0 {
		httpx.Message(w, http.StatusBadRequest, "request body required")
		return
	}
	var payload createUserPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		httpx.Message(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Message(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	target, known := roles.Parse(payload.Role)
	if !known || !roles.CanManage(auth.Role, target) {
		httpx.Message(w, http.StatusForbidden, "you are not allowed to assign this role")
		return
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		httpx.Message(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	// Drop case variants of "role" so only the checked value goes upstream.
	for key := range fields {
		if strings.EqualFold(key, "role") {
			delete(fields, key)
		}
	}
	fields["role"] = string(target)
	forwarded, err := json.Marshal(fields)
	if err != nil {
		h.logger.Error("encode user payload", slog.Any("error", err))
		httpx.Message(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.forward(w, r, "users", backend.Request{
		Method:      http.MethodPost,
		Path:        "/users",
		Body:        forwarded,
		ContentType: "application/json",
	})
}

func (h *Handler) forward(w http.ResponseWriter, r *http.Request, resource string, req backend.Request) {
	auth, ok := shared.PrincipalFromContext(r.Context()).(shared.Authenticated)
	if !ok {
		httpx.Message(w, http.StatusUnauthorized, "authentication required")
		return
	}
	resp, err := h.backend.Do(r.Context(), auth.Token, req)
	if err != nil {
		h.record(resource, 0)
		h.respondBackendError(w, resource, err)
		return
	}
	h.record(resource, resp.Status)
	httpx.Raw(w, resp.Status, resp.ContentType, resp.Body)
}

func (h *Handler) respondBackendError(w http.ResponseWriter, resource string, err error) {
	switch {
	case errors.Is(err, backend.ErrMissingToken):
	case errors.Is(err, backend.ErrNotConfigured):
		h.logger.Error("backend not configured", slog.String("resource", resource))
	default:
		h.logger.Error("backend call failed", slog.String("resource", resource), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) record(resource string, status int) {
	if h.recorder != nil {
		h.recorder.RecordBackendCall(resource, status)
	}
}

// errUnsupportedBody rejects bodies the backend API cannot take.
var errUnsupportedBody = errors.New("proxy: request body must be JSON")

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
		return nil, nil
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return nil, errUnsupportedBody
		}
	}
	return data, nil
}

// respondBodyError answers a request whose body could not be accepted.
func respondBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		httpx.Message(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.Is(err, errUnsupportedBody):
		httpx.Message(w, http.StatusUnsupportedMediaType, "request body must be JSON")
	default:
		httpx.Message(w, http.StatusBadRequest, "request body could not be read")
	}
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return "invalid field: " + fieldErrs[0].Field()
	}
	return "invalid request"
}
