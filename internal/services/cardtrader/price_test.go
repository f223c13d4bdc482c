package cardtrader

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParsePrice(t *testing.T) {
	cases := map[string]string{
		"R$ 4,50":         "4.50",
		"R$ 1.234,56":     "1234.56",
		" R$\u00a012,00 ": "12",
		"$1,234.56":       "1234.56",
		"12.5":            "12.5",
		"R$ 1.234":        "1234",
		"1 234,56 €":      "1234.56",
		"R$ 1.234.567,89": "1234567.89",
		"R$ 7.":           "7",
		"1,234":           "1234",
		"R$ 1,2345":       "1.2345",
	}
	for in, want := range cases {
		got, err := ParsePrice(in)
		if err != nil {
			t.Errorf("ParsePrice(%q): %v", in, err)
			continue
		}
		if !got.Equal(decimal.RequireFromString(want)) {
			t.Errorf("ParsePrice(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestParsePriceAmbiguous(t *testing.T) {
	for _, in := range []string{"", "R$", "sem estoque", "R$ 1,00 - R$ 2,00", "1,2,3.4.5"} {
		if _, err := ParsePrice(in); !errors.Is(err, ErrNotFound) {
			t.Errorf("ParsePrice(%q) err = %v, want ErrNotFound", in, err)
		}
	}
}
