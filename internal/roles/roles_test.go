package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCanonicalAndAliases(t *testing.T) {
	cases := map[string]Role{
		"SUPERUSER":        Superuser,
		"superuser":        Superuser,
		"  Admin ":         Admin,
		"administrador":    Admin,
		"Distribuidor":     Distributor,
		"reseller":         Reseller,
		"sub-distributor":  Subdistributor,
		"sub distribuidor": Subdistributor,
		"taquilla":         Taquilla,
		"Box Office":       Taquilla,
		"sustaquilla":      Subtaquilla,
		"SUBTAQUILLA":      Subtaquilla,
		"cliente":          Client,
		"Súper Usuario":    Superuser,
		"ADMINISTRADÓR":    Admin,
		"super-admin":      Superuser,
		"sub_taquilla":     Subtaquilla,
		"customer":         Client,
	}
	for input, want := range cases {
		assert.Equal(t, want, Normalize(input), "input %q", input)
	}
}

func TestNormalizeUnknownDefaultsToClient(t *testing.T) {
	for _, input := range []string{"", "   ", "UNKNOWN_ROLE", "owner", "🦊", "ADMIN;DROP", "\x00"} {
		assert.Equal(t, Client, Normalize(input), "input %q", input)
	}
}

func TestNormalizeIsClosedAndIdempotent(t *testing.T) {
	inputs := []string{"", "admin", "SUSTAQUILLA", "garbage", "Revendedor", "root", "ciënt", "taquilla ", "SUPERUSER"}
	for _, input := range inputs {
		once := Normalize(input)
		assert.True(t, once.Valid(), "input %q produced %q", input, once)
		assert.Equal(t, once, Normalize(string(once)), "input %q", input)
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	r, ok := Parse("distribuidor")
	require.True(t, ok)
	assert.Equal(t, Distributor, r)

	_, ok = Parse("garbage")
	assert.False(t, ok)
	_, ok = Parse("")
	assert.False(t, ok)
}

func TestRankOrdering(t *testing.T) {
	assert.True(t, HigherThan(Superuser, Admin))
	assert.True(t, HigherThan(Admin, Distributor))
	assert.True(t, HigherThan(Distributor, Subdistributor))
	assert.True(t, HigherThan(Subdistributor, Taquilla))
	assert.True(t, HigherThan(Taquilla, Subtaquilla))
	assert.True(t, HigherThan(Subtaquilla, Client))
	assert.False(t, HigherThan(Client, Superuser))
	assert.False(t, HigherThan(Distributor, Reseller))
	assert.False(t, HigherThan(Reseller, Distributor))
	assert.False(t, HigherThan(Admin, Admin))
}

func TestUnknownRoleRanksLowest(t *testing.T) {
	unknown := Role("OWNER")
	assert.Equal(t, Unranked, Rank(unknown))
	for _, r := range All() {
		assert.True(t, HigherThan(r, unknown), "role %s", r)
		assert.False(t, HigherThan(unknown, r), "role %s", r)
	}
}

func TestAllowedToCreate(t *testing.T) {
	got := AllowedToCreate(Distributor)
	assert.Contains(t, got, Subdistributor)
	assert.Contains(t, got, Taquilla)
	assert.Contains(t, got, Subtaquilla)
	assert.Contains(t, got, Client)
	assert.NotContains(t, got, Superuser)
	assert.NotContains(t, got, Admin)
	assert.NotContains(t, got, Distributor)
	assert.NotContains(t, got, Reseller)

	assert.Equal(t, []Role{Admin, Distributor, Reseller, Subdistributor, Taquilla, Subtaquilla, Client}, AllowedToCreate(Superuser))
	assert.Empty(t, AllowedToCreate(Client))
	assert.Empty(t, AllowedToCreate(Role("NOBODY")))
}

func TestCanManage(t *testing.T) {
	assert.True(t, CanManage(Taquilla, Subtaquilla))
	assert.False(t, CanManage(Taquilla, Taquilla))
	assert.False(t, CanManage(Admin, Superuser))
	assert.False(t, CanManage(Superuser, Role("GOD")))
}

func TestHomeFor(t *testing.T) {
	assert.Equal(t, "/dashboard/tickets", HomeFor(Taquilla))
	assert.Equal(t, "/dashboard/tickets", HomeFor(Subtaquilla))
	assert.Equal(t, "/dashboard", HomeFor(Superuser))
	assert.Equal(t, "/dashboard/products", HomeFor(Client))
	assert.Equal(t, FallbackHome, HomeFor(Role("UNKNOWN_ROLE")))
	assert.Equal(t, FallbackHome, HomeFor(""))
}

func TestAllReturnsCopy(t *testing.T) {
	all := All()
	require.Len(t, all, 8)
	all[0] = Client
	assert.Equal(t, Superuser, All()[0])
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Taquilla", Taquilla.Label())
	assert.Equal(t, "Cliente", Client.Label())
	assert.Equal(t, "X", Role("X").Label())
}
