package shared

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var upper = cases.Upper(language.Und)

// NormalizeCode canonicalises lot codes and serial values before lookup or
// insert. Scanners emit inconsistent casing, so every code crossing the API
// boundary goes through here.
func NormalizeCode(code string) string {
	return upper.String(strings.TrimSpace(code))
}
