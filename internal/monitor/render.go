package monitor

import (
	"fmt"
	"strings"

	"cardwatch/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Renderer turns a detected drop into alert text. Amounts are localized for
// display only; every decision upstream works on decimals.
type Renderer struct {
	printer  *message.Printer
	currency string
	operator string
}

// NewRenderer builds a renderer for a BCP 47 locale such as "pt-BR".
func NewRenderer(locale, currency, operator string) (*Renderer, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("parse locale %q: %w", locale, err)
	}
	return &Renderer{
		printer:  message.NewPrinter(tag),
		currency: currency,
		operator: operator,
	}, nil
}

// Render formats one fragment. A nil renderer falls back to plain English
// formatting.
func (r *Renderer) Render(item models.WatchItem, current decimal.Decimal) string {
	var b strings.Builder
	b.WriteString(item.ItemName)
	if item.DisplayID != "" {
		fmt.Fprintf(&b, " (%s)", item.DisplayID)
	}
	fmt.Fprintf(&b, " [%s]", item.GroupKey)
	if item.VariantKey != "" {
		fmt.Fprintf(&b, " - %s", item.VariantKey)
	}
	drop := item.TargetPrice.Sub(current)
	fmt.Fprintf(&b, "\nWanted: %s\nCurrent: %s\nDrop: %s", r.money(item.TargetPrice), r.money(current), r.money(drop))
	if r != nil && r.operator != "" {
		fmt.Fprintf(&b, "\nAlerted by %s", r.operator)
	}
	return b.String()
}

func (r *Renderer) money(d decimal.Decimal) string {
	if r == nil {
		return d.StringFixed(2)
	}
	f, _ := d.Float64()
	amount := r.printer.Sprint(number.Decimal(f, number.Scale(2)))
	if r.currency == "" {
		return amount
	}
	return r.currency + " " + amount
}
