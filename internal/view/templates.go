package view

import (
	"fmt"
	"html/template"
	"net/http"

	"github.com/recargaplus/storefront/internal/rbac"
	"github.com/recargaplus/storefront/internal/roles"
	"github.com/recargaplus/storefront/internal/shared"
	"github.com/recargaplus/storefront/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	User        *shared.Authenticated
	Notice      string
	Data        any
}

var notices = map[string]string{
	rbac.MessageUnauthorized: "No tienes permiso para acceder a esa sección.",
	"signed_out":             "Sesión cerrada.",
	"session_expired":        "Tu sesión expiró, vuelve a ingresar.",
}

// NoticeText turns a message/error query code into display text. Unknown
// codes are dropped rather than echoed.
func NoticeText(code string) string {
	return notices[code]
}

// NewEngine parses the embedded templates.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"roleLabel": func(r roles.Role) string {
			return r.Label()
		},
		"can": func(u *shared.Authenticated, capability string) bool {
			return u != nil && rbac.Can(u.Role, capability)
		},
		"field": func(item map[string]any, keys ...string) any {
			for _, k := range keys {
				if v, ok := item[k]; ok && v != nil {
					return v
				}
			}
			return ""
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.templates.ExecuteTemplate(w, name, data)
}
