package roles

// FallbackHome is the landing page for roles without an explicit home.
const FallbackHome = "/dashboard/products"

var homes = map[Role]string{
	Superuser:      "/dashboard",
	Admin:          "/dashboard",
	Distributor:    "/dashboard/users",
	Reseller:       "/dashboard/users",
	Subdistributor: "/dashboard/users",
	Taquilla:       "/dashboard/tickets",
	Subtaquilla:    "/dashboard/tickets",
	Client:         "/dashboard/products",
}

// HomeFor returns the post-login landing path for r. It only picks a
// redirect target and is never consulted for access decisions.
func HomeFor(r Role) string {
	if home, ok := homes[r]; ok {
		return home
	}
	return FallbackHome
}
