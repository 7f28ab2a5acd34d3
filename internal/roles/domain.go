// Package roles defines the closed set of storefront roles, their privilege
// ranking and the landing page each role starts on after login.
package roles

import "math"

// Role is a canonical identity attribute attached to an authenticated user.
type Role string

// Canonical roles, highest privilege first.
const (
	Superuser      Role = "SUPERUSER"
	Admin          Role = "ADMIN"
	Distributor    Role = "DISTRIBUTOR"
	Reseller       Role = "RESELLER"
	Subdistributor Role = "SUBDISTRIBUTOR"
	Taquilla       Role = "TAQUILLA"
	Subtaquilla    Role = "SUBTAQUILLA"
	Client         Role = "CLIENT"
)

// Default is the role assigned to any unrecognised role string.
const Default = Client

// Unranked is the rank of anything outside the canonical set.
const Unranked = math.MaxInt

var registry = []Role{
	Superuser,
	Admin,
	Distributor,
	Reseller,
	Subdistributor,
	Taquilla,
	Subtaquilla,
	Client,
}

// Distributor and reseller are peers.
var ranks = map[Role]int{
	Superuser:      0,
	Admin:          1,
	Distributor:    2,
	Reseller:       2,
	Subdistributor: 3,
	Taquilla:       4,
	Subtaquilla:    5,
	Client:         6,
}

var labels = map[Role]string{
	Superuser:      "Superusuario",
	Admin:          "Administrador",
	Distributor:    "Distribuidor",
	Reseller:       "Revendedor",
	Subdistributor: "Subdistribuidor",
	Taquilla:       "Taquilla",
	Subtaquilla:    "Subtaquilla",
	Client:         "Cliente",
}

// All returns the canonical roles ordered from highest to lowest privilege.
func All() []Role {
	out := make([]Role, len(registry))
	copy(out, registry)
	return out
}

// Valid reports whether r belongs to the canonical set.
func (r Role) Valid() bool {
	_, ok := ranks[r]
	return ok
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// Label returns the display name of the role.
func (r Role) Label() string {
	if label, ok := labels[r]; ok {
		return label
	}
	return string(r)
}

// Rank returns the privilege rank of r; lower is more privileged.
func Rank(r Role) int {
	if rank, ok := ranks[r]; ok {
		return rank
	}
	return Unranked
}

// HigherThan reports whether a is strictly more privileged than b.
func HigherThan(a, b Role) bool {
	return Rank(a) < Rank(b)
}

// AllowedToCreate lists the roles an actor may create or manage: every
// canonical role strictly less privileged than the actor.
func AllowedToCreate(actor Role) []Role {
	actorRank := Rank(actor)
	out := make([]Role, 0, len(registry))
	for _, r := range registry {
		if Rank(r) > actorRank {
			out = append(out, r)
		}
	}
	return out
}

// CanManage reports whether actor may create or manage target.
func CanManage(actor, target Role) bool {
	if !target.Valid() {
		return false
	}
	return Rank(target) > Rank(actor)
}
