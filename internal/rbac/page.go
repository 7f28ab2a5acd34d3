package rbac

import (
	"net/http"
	"net/url"
	"time"

	"github.com/recargaplus/storefront/internal/roles"
	"github.com/recargaplus/storefront/internal/shared"
)

// PageGuard re-checks the role at the top of privileged page handlers. It
// shares the session adapter, role normalizer and route table with Guard,
// so a page list can narrow the table but never widen it.
type PageGuard struct {
	now    func() time.Time
	routes *RouteTable
}

// NewPageGuard returns a PageGuard using the wall clock. routes may be nil,
// in which case only the per-page lists apply.
func NewPageGuard(routes *RouteTable) PageGuard {
	return PageGuard{now: time.Now, routes: routes}
}

// Require returns the principal when the route table admits its role for
// the request path and the role is one of allowed. Otherwise it writes a
// redirect and returns false; the caller must stop handling.
func (g PageGuard) Require(w http.ResponseWriter, r *http.Request, allowed ...roles.Role) (shared.Authenticated, bool) {
	now := time.Now
	if g.now != nil {
		now = g.now
	}
	p := shared.PrincipalFromSession(shared.SessionFromContext(r.Context()), now())
	auth, ok := p.(shared.Authenticated)
	if !ok {
		http.Redirect(w, r, LoginPath+"?"+url.Values{ParamCallback: {r.URL.RequestURI()}}.Encode(), http.StatusSeeOther)
		return shared.Authenticated{}, false
	}
	if g.routes != nil && !g.routes.RootAllows(auth.Role) {
		http.Redirect(w, r, LoginPath+"?"+url.Values{ParamError: {MessageUnauthorized}}.Encode(), http.StatusSeeOther)
		return shared.Authenticated{}, false
	}
	if g.routes == nil || g.routes.PathAllows(r.URL.Path, auth.Role) {
		for _, role := range allowed {
			if role == auth.Role {
				return auth, true
			}
		}
	}
	http.Redirect(w, r, SafeLanding(auth.Role, r.URL.Path), http.StatusSeeOther)
	return shared.Authenticated{}, false
}

// SafeLanding picks where to send a role that may not view current. It
// never points back at current.
func SafeLanding(role roles.Role, current string) string {
	home := roles.HomeFor(role)
	if cleanPath(home) == cleanPath(current) {
		home = DashboardRoot
	}
	if cleanPath(home) == cleanPath(current) {
		return LoginPath + "?" + url.Values{ParamError: {MessageUnauthorized}}.Encode()
	}
	return home + "?" + url.Values{ParamMessage: {MessageUnauthorized}}.Encode()
}
