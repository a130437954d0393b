package face

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxNameBytes is the longest name the gallery file can hold.
const MaxNameBytes = 1<<16 - 1

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// CleanName trims surrounding whitespace and collapses inner runs of spaces.
func CleanName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// FoldName normalizes a name for comparison (lowercase, no diacritics, spaces for dashes).
// Used by admin lookups only; matching and attendance dedup use the exact name.
func FoldName(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return CleanName(name)
}
