package cardtrader

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ErrNotFound means a source could not find one unambiguous price.
var ErrNotFound = errors.New("cardtrader: price not found")

// digits, separators, and spaces that sit between digits ("1 234,56")
var amountRe = regexp.MustCompile(`\d(?:[\d.,]|[ \x{00A0}\x{202F}]\d)*`)

// ParsePrice reads a localized currency string such as "R$ 1.234,56" or
// "$1,234.56". Anything that is not exactly one amount is ErrNotFound.
func ParsePrice(text string) (decimal.Decimal, error) {
	matches := amountRe.FindAllString(text, -1)
	if len(matches) != 1 {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrNotFound, text)
	}
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, strings.TrimRight(matches[0], ".,"))

	comma, dot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot >= 0:
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		// Same rule as the dot: one comma before exactly three digits
		// groups thousands.
		if strings.Count(s, ",") > 1 || len(s)-comma-1 == 3 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case dot >= 0:
		// A single dot followed by three digits is a thousands separator.
		if strings.Count(s, ".") > 1 || len(s)-dot-1 == 3 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrNotFound, text)
	}
	return d, nil
}
