package rbac

import (
	"fmt"
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/recargaplus/storefront/internal/roles"
)

// DashboardRoot is the protected path prefix.
const DashboardRoot = "/dashboard"

// RouteRule restricts a path prefix to a set of roles.
type RouteRule struct {
	Prefix  string
	Allowed []roles.Role
}

type compiledRule struct {
	prefix  string
	roles   []roles.Role
	allowed map[roles.Role]struct{}
}

// RouteTable holds the route rules under one protected root. A request must
// satisfy the root rule and every more specific rule its path falls under,
// so a child rule can only narrow what its parent allows.
type RouteTable struct {
	root  compiledRule
	rules []compiledRule
}

// DefaultRules returns the built-in restrictions below /dashboard.
func DefaultRules() []RouteRule {
	return []RouteRule{
		{Prefix: "/dashboard/users", Allowed: []roles.Role{roles.Superuser, roles.Admin, roles.Distributor, roles.Reseller, roles.Subdistributor, roles.Taquilla}},
		{Prefix: "/dashboard/catalog", Allowed: []roles.Role{roles.Superuser, roles.Admin}},
		{Prefix: "/dashboard/tickets", Allowed: []roles.Role{roles.Superuser, roles.Admin, roles.Taquilla, roles.Subtaquilla}},
		{Prefix: "/dashboard/settings", Allowed: []roles.Role{roles.Superuser}},
	}
}

// NewRouteTable compiles the root allow-list and its sub-rules.
func NewRouteTable(root string, rootAllowed []roles.Role, rules []RouteRule) (*RouteTable, error) {
	root = cleanPath(root)
	rootRule, err := compile(RouteRule{Prefix: root, Allowed: rootAllowed})
	if err != nil {
		return nil, err
	}
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		c, err := compile(rule)
		if err != nil {
			return nil, err
		}
		if c.prefix == root || !hasPathPrefix(c.prefix, root) {
			return nil, fmt.Errorf("rbac: rule %q is not below %q", rule.Prefix, root)
		}
		compiled = append(compiled, c)
	}
	sort.SliceStable(compiled, func(i, j int) bool {
		return len(compiled[i].prefix) < len(compiled[j].prefix)
	})
	return &RouteTable{root: rootRule, rules: compiled}, nil
}

// Root returns the protected prefix.
func (t *RouteTable) Root() string {
	return t.root.prefix
}

// RootRoles returns the roles admitted to the protected area.
func (t *RouteTable) RootRoles() []roles.Role {
	return slices.Clone(t.root.roles)
}

// Rules returns the sub-rules, shortest prefix first.
func (t *RouteTable) Rules() []RouteRule {
	out := make([]RouteRule, 0, len(t.rules))
	for _, rule := range t.rules {
		out = append(out, RouteRule{Prefix: rule.prefix, Allowed: slices.Clone(rule.roles)})
	}
	return out
}

// Protects reports whether p falls under the protected root.
func (t *RouteTable) Protects(p string) bool {
	return hasPathPrefix(cleanPath(p), t.root.prefix)
}

// RootAllows reports whether role may enter the protected area at all.
func (t *RouteTable) RootAllows(role roles.Role) bool {
	_, ok := t.root.allowed[role]
	return ok
}

// PathAllows reports whether every rule matching p admits role. Paths
// outside the root are not governed by the table and always pass.
func (t *RouteTable) PathAllows(p string, role roles.Role) bool {
	p = cleanPath(p)
	if !hasPathPrefix(p, t.root.prefix) {
		return true
	}
	if !t.RootAllows(role) {
		return false
	}
	for _, rule := range t.rules {
		if !hasPathPrefix(p, rule.prefix) {
			continue
		}
		if _, ok := rule.allowed[role]; !ok {
			return false
		}
	}
	return true
}

func compile(rule RouteRule) (compiledRule, error) {
	prefix := cleanPath(rule.Prefix)
	if prefix == "/" {
		return compiledRule{}, fmt.Errorf("rbac: rule prefix %q too broad", rule.Prefix)
	}
	allowed := make(map[roles.Role]struct{}, len(rule.Allowed))
	for _, r := range rule.Allowed {
		if !r.Valid() {
			return compiledRule{}, fmt.Errorf("rbac: rule %q lists unknown role %q", prefix, r)
		}
		allowed[r] = struct{}{}
	}
	return compiledRule{prefix: prefix, roles: slices.Clone(rule.Allowed), allowed: allowed}, nil
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// hasPathPrefix matches whole segments: /dashboard/users covers
// /dashboard/users/7 but not /dashboard/usersettings.
func hasPathPrefix(p, prefix string) bool {
	if p == prefix {
		return true
	}
	return strings.HasPrefix(p, prefix+"/")
}
