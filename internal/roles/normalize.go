package roles

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// aliases maps legacy and external-system role names onto canonical roles.
// Keys are in folded form (see fold).
var aliases = map[string]Role{
	"SUPER_USER":       Superuser,
	"SUPERADMIN":       Superuser,
	"SUPER_ADMIN":      Superuser,
	"SUPERUSUARIO":     Superuser,
	"SUPER_USUARIO":    Superuser,
	"ROOT":             Superuser,
	"ADMINISTRATOR":    Admin,
	"ADMINISTRADOR":    Admin,
	"DISTRIBUIDOR":     Distributor,
	"REVENDEDOR":       Reseller,
	"SUB_DISTRIBUTOR":  Subdistributor,
	"SUBDISTRIBUIDOR":  Subdistributor,
	"SUB_DISTRIBUIDOR": Subdistributor,
	"BOX_OFFICE":       Taquilla,
	"BOXOFFICE":        Taquilla,
	"SUSTAQUILLA":      Subtaquilla,
	"SUB_TAQUILLA":     Subtaquilla,
	"SUB_BOX_OFFICE":   Subtaquilla,
	"CLIENTE":          Client,
	"CUSTOMER":         Client,
	"USER":             Client,
}

// Normalize maps any role string onto the canonical set. Matching is
// case-insensitive and ignores accents and surrounding whitespace; unknown
// or empty input yields Default.
func Normalize(raw string) Role {
	if r, ok := Parse(raw); ok {
		return r
	}
	return Default
}

// Parse is the strict form of Normalize: it reports false for input that is
// neither a canonical role nor a known alias.
func Parse(raw string) (Role, bool) {
	key := fold(raw)
	if key == "" {
		return "", false
	}
	if r := Role(key); r.Valid() {
		return r, true
	}
	if r, ok := aliases[key]; ok {
		return r, true
	}
	return "", false
}

func fold(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	stripAccents := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripAccents, raw)
	if err != nil {
		folded = raw
	}
	folded = cases.Upper(language.Und).String(folded)
	folded = strings.ReplaceAll(folded, "-", " ")
	return strings.Join(strings.Fields(folded), "_")
}
