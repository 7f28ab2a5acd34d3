package rbac

import (
	"sort"

	"github.com/recargaplus/storefront/internal/roles"
)

// Wildcard satisfies every capability check.
const Wildcard = "*"

// Capabilities checked by pages and API handlers.
const (
	CapProductsRead    = "products:read"
	CapProductsWrite   = "products:write"
	CapCategoriesRead  = "categories:read"
	CapCategoriesWrite = "categories:write"
	CapUsersRead       = "users:read"
	CapUsersWrite      = "users:write"
	CapOrdersRead      = "orders:read"
	CapOrdersCreate    = "orders:create"
	CapWalletRead      = "wallet:read"
	CapTicketsRead     = "tickets:read"
	CapReportsRead     = "reports:read"
	CapSettingsWrite   = "settings:write"
)

type capabilitySet map[string]struct{}

func setOf(caps ...string) capabilitySet {
	s := make(capabilitySet, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

// permissionTable is never mutated after package init.
var permissionTable = map[roles.Role]capabilitySet{
	roles.Superuser: setOf(Wildcard),
	roles.Admin: setOf(
		CapProductsRead, CapProductsWrite,
		CapCategoriesRead, CapCategoriesWrite,
		CapUsersRead, CapUsersWrite,
		CapOrdersRead, CapOrdersCreate,
		CapWalletRead, CapTicketsRead, CapReportsRead,
	),
	roles.Distributor: setOf(
		CapProductsRead, CapCategoriesRead,
		CapUsersRead, CapUsersWrite,
		CapOrdersRead, CapOrdersCreate,
		CapWalletRead, CapReportsRead,
	),
	roles.Reseller: setOf(
		CapProductsRead, CapCategoriesRead,
		CapUsersRead, CapUsersWrite,
		CapOrdersRead, CapOrdersCreate,
		CapWalletRead, CapReportsRead,
	),
	roles.Subdistributor: setOf(
		CapProductsRead, CapCategoriesRead,
		CapUsersRead, CapUsersWrite,
		CapOrdersRead, CapOrdersCreate,
		CapWalletRead,
	),
	roles.Taquilla: setOf(
		CapProductsRead, CapCategoriesRead,
		CapUsersRead, CapUsersWrite,
		CapOrdersRead, CapOrdersCreate,
		CapWalletRead, CapTicketsRead,
	),
	roles.Subtaquilla: setOf(
		CapProductsRead, CapCategoriesRead,
		CapOrdersRead, CapOrdersCreate,
		CapTicketsRead,
	),
	roles.Client: setOf(
		CapProductsRead, CapCategoriesRead,
		CapOrdersRead, CapOrdersCreate,
		CapWalletRead,
	),
}

// Can reports whether role holds capability. Anything not found in the
// table is a denial.
func Can(role roles.Role, capability string) bool {
	if capability == "" {
		return false
	}
	set, ok := permissionTable[role]
	if !ok {
		return false
	}
	if _, ok := set[Wildcard]; ok {
		return true
	}
	_, ok = set[capability]
	return ok
}

// CanRaw normalizes a raw role string before checking the capability.
func CanRaw(rawRole, capability string) bool {
	return Can(roles.Normalize(rawRole), capability)
}

// Capabilities returns the sorted capability list of role.
func Capabilities(role roles.Role) []string {
	set := permissionTable[role]
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
