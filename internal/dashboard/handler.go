// Package dashboard renders the server-side pages under /dashboard. Every
// page repeats a role check through rbac.PageGuard even though the route
// guard already ran.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/recargaplus/storefront/internal/rbac"
	"github.com/recargaplus/storefront/internal/roles"
	"github.com/recargaplus/storefront/internal/shared"
	"github.com/recargaplus/storefront/internal/view"
)

// Backend is the subset of backend.Client used by the pages.
type Backend interface {
	GetJSON(ctx context.Context, token, path string, query url.Values, target any) (int, error)
}

// errSessionRejected means the backend refused the stored token.
var errSessionRejected = errors.New("dashboard: backend rejected session token")

const unavailable = "No pudimos cargar los datos, intenta de nuevo."

// Page allow-lists. PageGuard intersects them with the route table, so they
// can narrow what the table allows but never widen it.
var (
	overviewRoles = roles.All()
	productsRoles = roles.All()
	usersRoles    = []roles.Role{roles.Superuser, roles.Admin, roles.Distributor, roles.Reseller, roles.Subdistributor, roles.Taquilla}
	catalogRoles  = []roles.Role{roles.Superuser, roles.Admin}
	ticketsRoles  = []roles.Role{roles.Superuser, roles.Admin, roles.Taquilla, roles.Subtaquilla}
	settingsRoles = []roles.Role{roles.Superuser}
)

// Handler serves dashboard pages.
type Handler struct {
	logger    *slog.Logger
	backend   Backend
	templates *view.Engine
	sessions  *shared.SessionManager
	csrf      *shared.CSRFManager
	guard     rbac.PageGuard
	routes    *rbac.RouteTable
}

// NewHandler constructs a Handler. routes is the table the route guard
// enforces; pages re-check it along with their own lists.
func NewHandler(logger *slog.Logger, client Backend, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager, routes *rbac.RouteTable) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		backend:   client,
		templates: templates,
		sessions:  sessions,
		csrf:      csrf,
		guard:     rbac.NewPageGuard(routes),
		routes:    routes,
	}
}

// MountRoutes registers the dashboard pages relative to /dashboard.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.overview)
	r.Get("/products", h.listPage("pages/products.html", "Productos", "/products", productsRoles))
	r.Get("/users", h.users)
	r.Get("/catalog", h.listPage("pages/catalog.html", "Catálogo", "/categories", catalogRoles))
	r.Get("/tickets", h.listPage("pages/tickets.html", "Taquilla", "/tickets", ticketsRoles))
	r.Get("/settings", h.settingsPage)
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	user, ok := h.guard.Require(w, r, overviewRoles...)
	if !ok {
		return
	}

	data := map[string]any{
		"Wallet":      map[string]any{},
		"Orders":      []map[string]any{},
		"WalletError": "",
		"OrdersError": "",
	}
	var (
		wallet    map[string]any
		orders    []map[string]any
		walletErr error
		ordersErr error
		g         errgroup.Group
	)
	// Panels load independently; one failing must not cancel the other.
	canWallet := rbac.Can(user.Role, rbac.CapWalletRead)
	canOrders := rbac.Can(user.Role, rbac.CapOrdersRead)
	if canWallet {
		g.Go(func() error {
			wallet, walletErr = h.fetchObject(r.Context(), user.Token, "/wallet")
			return nil
		})
	}
	if canOrders {
		g.Go(func() error {
			orders, _, ordersErr = h.fetchList(r.Context(), user.Token, "/orders", url.Values{"limit": {"5"}})
			return nil
		})
	}
	_ = g.Wait()

	if errors.Is(walletErr, errSessionRejected) || errors.Is(ordersErr, errSessionRejected) {
		h.expire(w, r)
		return
	}
	status := http.StatusOK
	if canWallet {
		if walletErr != nil {
			h.logger.Warn("load dashboard wallet", slog.Any("error", walletErr))
			data["WalletError"] = unavailable
			status = http.StatusBadGateway
		} else {
			data["Wallet"] = wallet
		}
	}
	if canOrders {
		if ordersErr != nil {
			h.logger.Warn("load dashboard orders", slog.Any("error", ordersErr))
			data["OrdersError"] = unavailable
			status = http.StatusBadGateway
		} else {
			data["Orders"] = orders
		}
	}
	h.render(w, r, status, "pages/overview.html", "Panel", user, data)
}

func (h *Handler) listPage(page, title, upstream string, allowed []roles.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := h.guard.Require(w, r, allowed...)
		if !ok {
			return
		}
		data, status, ok := h.loadItems(w, r, user, upstream)
		if !ok {
			return
		}
		h.render(w, r, status, page, title, user, data)
	}
}

func (h *Handler) users(w http.ResponseWriter, r *http.Request) {
	user, ok := h.guard.Require(w, r, usersRoles...)
	if !ok {
		return
	}
	data, status, ok := h.loadItems(w, r, user, "/users")
	if !ok {
		return
	}
	data["Creatable"] = roles.AllowedToCreate(user.Role)
	h.render(w, r, status, "pages/users.html", "Usuarios", user, data)
}

func (h *Handler) settingsPage(w http.ResponseWriter, r *http.Request) {
	user, ok := h.guard.Require(w, r, settingsRoles...)
	if !ok {
		return
	}
	data := map[string]any{
		"DashboardRoles": []roles.Role{},
		"Rules":          []rbac.RouteRule{},
	}
	if h.routes != nil {
		data["DashboardRoles"] = h.routes.RootRoles()
		data["Rules"] = h.routes.Rules()
	}
	h.render(w, r, http.StatusOK, "pages/settings.html", "Ajustes", user, data)
}

// loadItems fetches one page of a list. It returns false when it already
// answered the request.
func (h *Handler) loadItems(w http.ResponseWriter, r *http.Request, user shared.Authenticated, upstream string) (map[string]any, int, bool) {
	query := r.URL.Query()
	page, perPage := shared.ParsePage(query)
	items, total, err := h.fetchList(r.Context(), user.Token, upstream, forwardedQuery(query, page, perPage))
	switch {
	case err == nil:
		if total < 0 {
			// Unknown total: offer a next page only when this one is full.
			total = (page-1)*perPage + len(items)
			if len(items) == perPage {
				total++
			}
		}
		return map[string]any{
			"Items":      items,
			"Error":      "",
			"Pagination": shared.NewPagination(page, perPage, total),
		}, http.StatusOK, true
	case errors.Is(err, errSessionRejected):
		h.expire(w, r)
		return nil, 0, false
	default:
		h.logger.Warn("load dashboard list", slog.String("upstream", upstream), slog.Any("error", err))
		return map[string]any{
			"Items":      []map[string]any{},
			"Error":      unavailable,
			"Pagination": shared.NewPagination(page, perPage, 0),
		}, http.StatusBadGateway, true
	}
}

// fetchList returns the decoded items and the backend's total, or -1 when
// the reply carries no total.
func (h *Handler) fetchList(ctx context.Context, token, path string, query url.Values) ([]map[string]any, int, error) {
	var raw json.RawMessage
	if err := h.get(ctx, token, path, query, &raw); err != nil {
		return nil, 0, err
	}
	return decodeItems(raw)
}

func (h *Handler) fetchObject(ctx context.Context, token, path string) (map[string]any, error) {
	var obj map[string]any
	if err := h.get(ctx, token, path, nil, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		obj = map[string]any{}
	}
	return obj, nil
}

func (h *Handler) get(ctx context.Context, token, path string, query url.Values, target any) error {
	status, err := h.backend.GetJSON(ctx, token, path, query, target)
	if err != nil {
		return err
	}
	switch {
	case status == http.StatusUnauthorized:
		return errSessionRejected
	case status < 200 || status > 299:
		return fmt.Errorf("dashboard: %s returned %d", path, status)
	}
	return nil
}

// expire drops a session whose token the backend no longer accepts.
func (h *Handler) expire(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil && h.sessions != nil {
		h.sessions.Destroy(sess)
	}
	http.Redirect(w, r, rbac.LoginPath+"?"+url.Values{
		rbac.ParamMessage:  {"session_expired"},
		rbac.ParamCallback: {r.URL.RequestURI()},
	}.Encode(), http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page, title string, user shared.Authenticated, data map[string]any) {
	sess := shared.SessionFromContext(r.Context())
	var (
		csrfToken string
		flash     *shared.FlashMessage
	)
	if sess != nil {
		csrfToken, _ = h.csrf.EnsureToken(r.Context(), sess)
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		User:        &user,
		Notice:      view.NoticeText(r.URL.Query().Get(rbac.ParamMessage)),
		Data:        data,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, page, viewData); err != nil {
		h.logger.Error("render dashboard page", slog.String("page", page), slog.Any("error", err))
	}
}

// decodeItems accepts a bare JSON array or an object wrapping it under
// "items" or "data", optionally with a "total".
func decodeItems(raw json.RawMessage) ([]map[string]any, int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []map[string]any{}, -1, nil
	}
	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, -1, nil
	}
	var wrapped struct {
		Items []map[string]any `json:"items"`
		Data  []map[string]any `json:"data"`
		Total *int             `json:"total"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, 0, fmt.Errorf("dashboard: unexpected list shape: %w", err)
	}
	total := -1
	if wrapped.Total != nil {
		total = *wrapped.Total
	}
	switch {
	case wrapped.Items != nil:
		return wrapped.Items, total, nil
	case wrapped.Data != nil:
		return wrapped.Data, total, nil
	}
	return []map[string]any{}, total, nil
}

// forwardedQuery builds the paging and search parameters a list page passes
// on to the backend.
func forwardedQuery(in url.Values, page, perPage int) url.Values {
	out := url.Values{
		"page":  {strconv.Itoa(page)},
		"limit": {strconv.Itoa(perPage)},
	}
	for _, key := range []string{"q", "status"} {
		if v := in.Get(key); v != "" {
			out.Set(key, v)
		}
	}
	return out
}
