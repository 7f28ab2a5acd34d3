package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/recargaplus/storefront/internal/platform/httpx"
	"github.com/recargaplus/storefront/internal/shared"
)

// Middleware wires capability checks for JSON API handlers.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAny ensures the current principal holds at least one of caps.
func (m Middleware) RequireAny(caps ...string) func(http.Handler) http.Handler {
	required := normalizeCapabilities(caps)
	return m.require(required, false)
}

// RequireAll ensures the current principal holds every one of caps.
func (m Middleware) RequireAll(caps ...string) func(http.Handler) http.Handler {
	required := normalizeCapabilities(caps)
	return m.require(required, true)
}

func (m Middleware) require(required []string, all bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth, ok := shared.PrincipalFromContext(r.Context()).(shared.Authenticated)
			if !ok {
				httpx.Message(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			granted := 0
			for _, c := range required {
				if Can(auth.Role, c) {
					granted++
				}
			}
			if (all && granted == len(required)) || (!all && granted > 0) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Info("capability check denied",
					slog.String("path", r.URL.Path),
					slog.String("role", string(auth.Role)),
				)
			}
			httpx.Message(w, http.StatusForbidden, "you are not allowed to perform this action")
		})
	}
}

func normalizeCapabilities(caps []string) []string {
	seen := make(map[string]struct{}, len(caps))
	out := make([]string, 0, len(caps))
	for _, c := range caps {
		c = strings.TrimSpace(strings.ToLower(c))
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
