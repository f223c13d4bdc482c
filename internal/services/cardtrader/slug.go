package cardtrader

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slug builds the storefront identifier of a printing:
// {name}-{variant}-{group}, or {name}-{group} when variant is empty.
// The normalization is lossy and shared by every source and the catalog.
func Slug(name, group, variant string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{name, variant, group} {
		if s := normalize(p); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "-")
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func normalize(s string) string {
	if folded, _, err := transform.String(stripMarks, s); err == nil {
		s = folded
	}
	rs := []rune(strings.ToLower(strings.TrimSpace(s)))
	var b strings.Builder
	dash := func() {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "-") {
			b.WriteByte('-')
		}
	}
	for i, r := range rs {
		switch {
		case r == '\'' || r == '’':
			// "Urza's" -> "urza-s"; a trailing apostrophe just disappears.
			if i+1 < len(rs) && unicode.IsLetter(rs[i+1]) {
				dash()
			}
		case r == ' ' || r == '/' || r == '-' || r == '_':
			dash()
		case strings.ContainsRune(",.:!?\"()", r):
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
