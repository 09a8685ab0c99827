package intent

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases s, strips diacritics, and collapses whitespace so
// "  Sí,  envíalo " and "si, envialo" compare equal. Surrounding punctuation
// is removed as well.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	folded = strings.Join(strings.Fields(folded), " ")
	return strings.Trim(folded, ".!?¡¿, ")
}
