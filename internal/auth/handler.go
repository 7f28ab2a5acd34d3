// Package auth serves the login and logout pages. Credentials are checked by
// the backend; this package only stores the issued bundle in the session.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/recargaplus/storefront/internal/backend"
	"github.com/recargaplus/storefront/internal/platform/httpx"
	"github.com/recargaplus/storefront/internal/rbac"
	"github.com/recargaplus/storefront/internal/roles"
	"github.com/recargaplus/storefront/internal/shared"
	"github.com/recargaplus/storefront/internal/view"
)

// Authenticator exchanges credentials for a backend identity.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*backend.Identity, error)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	auth           Authenticator
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
	loginLimit     int
	now            func() time.Time
}

// NewHandler constructs a Handler. loginLimit caps POST /login per client
// IP per minute; zero disables the cap.
func NewHandler(logger *slog.Logger, auth Authenticator, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager, loginLimit int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		auth:           auth,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
		loginLimit:     loginLimit,
		now:            time.Now,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get(rbac.LoginPath, h.showLogin)
	r.Group(func(r chi.Router) {
		if h.loginLimit > 0 {
			r.Use(httprate.Limit(h.loginLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		}
		r.Post(rbac.LoginPath, h.handleLogin)
	})
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	query := r.URL.Query()
	callback := SafeCallback(query.Get(rbac.ParamCallback))

	// An active session without a pending notice goes straight home.
	if p, ok := shared.PrincipalFromSession(sess, h.now()).(shared.Authenticated); ok &&
		query.Get(rbac.ParamError) == "" && query.Get(rbac.ParamMessage) == "" {
		target := callback
		if target == "" {
			target = roles.HomeFor(p.Role)
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}

	notice := view.NoticeText(query.Get(rbac.ParamError))
	if notice == "" {
		notice = view.NoticeText(query.Get(rbac.ParamMessage))
	}
	h.render(w, r, http.StatusOK, notice, map[string]any{
		"CallbackURL": callback,
		"Email":       "",
		"Errors":      map[string]string{},
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	callback := SafeCallback(r.PostFormValue(rbac.ParamCallback))
	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}

	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fieldErr := range verrs {
				errs[fieldErr.Field()] = fieldErr.Tag()
			}
		}
	}

	status := http.StatusBadRequest
	if len(errs) == 0 {
		identity, err := h.auth.Login(r.Context(), form.Email, form.Password)
		switch {
		case err == nil && sess == nil:
			h.logger.Error("session missing during login")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		case err == nil:
			h.establish(sess, identity)
			target := callback
			if target == "" {
				target = roles.HomeFor(roles.Normalize(identity.Role))
			}
			h.logger.Info("login", slog.String("user_id", identity.UserID), slog.String("role", string(roles.Normalize(identity.Role))))
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		case errors.Is(err, shared.ErrInvalidCredentials):
			status = http.StatusUnauthorized
			errs["general"] = "Correo o contraseña incorrectos"
		case errors.Is(err, httpx.ErrConfig):
			h.logger.Error("login backend not configured", slog.Any("error", err))
			status = http.StatusInternalServerError
			errs["general"] = "El servicio de acceso no está configurado"
		default:
			h.logger.Warn("login backend call failed", slog.Any("error", err))
			status = http.StatusBadGateway
			errs["general"] = "No pudimos contactar el servicio, intenta de nuevo"
		}
	}

	h.render(w, r, status, "", map[string]any{
		"CallbackURL": callback,
		"Email":       form.Email,
		"Errors":      errs,
	})
}

// establish stores the identity under a fresh session id, rotates the CSRF
// token and queues the welcome flash for the landing page.
func (h *Handler) establish(sess *shared.Session, identity *backend.Identity) {
	h.sessionManager.Renew(sess)
	sess.SetUser(identity.UserID)
	sess.Set(shared.SessionKeyUserID, identity.UserID)
	sess.Set(shared.SessionKeyName, identity.Name)
	sess.Set(shared.SessionKeyEmail, identity.Email)
	sess.Set(shared.SessionKeyRole, identity.Role)
	sess.Set(shared.SessionKeyToken, identity.Token)
	if identity.Expires.IsZero() {
		sess.Delete(shared.SessionKeyExpires)
	} else {
		sess.Set(shared.SessionKeyExpires, identity.Expires.UTC().Format(time.RFC3339))
	}
	h.csrfManager.Rotate(sess)
	greeting := identity.Name
	if greeting == "" {
		greeting = identity.Email
	}
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Bienvenido, " + greeting})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, rbac.LoginPath+"?"+url.Values{rbac.ParamMessage: {"signed_out"}}.Encode(), http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, notice string, data map[string]any) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       "Ingresar",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Notice:      notice,
		Data:        data,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, "pages/login.html", viewData); err != nil {
		h.logger.Error("render login", slog.Any("error", err))
	}
}

// SafeCallback returns raw when it is a local absolute path other than the
// login page itself, and "" otherwise.
func SafeCallback(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	if u.Path == rbac.LoginPath || strings.HasPrefix(u.Path, rbac.LoginPath+"/") {
		return ""
	}
	return raw
}
