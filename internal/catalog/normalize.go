package catalog

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName canonicalizes a product name for cross-source matching:
// NFKC-fold the unicode, lowercase, and collapse runs of whitespace.
func NormalizeName(name string) string {
	folded := norm.NFKC.String(name)
	folded = strings.ToLower(folded)
	return strings.Join(strings.Fields(folded), " ")
}
