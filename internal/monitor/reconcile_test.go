package monitor

import (
	"strings"
	"testing"

	"cardwatch/internal/models"

	"github.com/shopspring/decimal"
)

func bolt(target string) models.WatchItem {
	return models.WatchItem{
		ItemName:    "Bolt",
		GroupKey:    "Alpha",
		DisplayID:   "161",
		TargetPrice: decimal.RequireFromString(target),
	}
}

func quote(item models.WatchItem, price string, o models.Outcome) models.PriceQuote {
	q := models.PriceQuote{Key: item.Key(), Outcome: o}
	if price != "" {
		q.Price = decimal.RequireFromString(price)
	}
	return q
}

func TestReconcilePolicy(t *testing.T) {
	r := &Reconciler{}
	cases := []struct {
		name       string
		target     string
		price      string
		outcome    models.Outcome
		wantTarget string
		wantAlert  bool
	}{
		{"drop", "500", "450", models.OutcomeSuccess, "450", true},
		{"equal", "500", "500", models.OutcomeSuccess, "500", false},
		{"higher", "500", "650", models.OutcomeSuccess, "500", false},
		{"one cent lower", "500.00", "499.99", models.OutcomeSuccess, "499.99", true},
		{"unavailable", "500", "", models.OutcomeUnavailable, "500", false},
		{"crashed", "500", "", models.OutcomeError, "500", false},
		{"zero quote", "500", "0", models.OutcomeSuccess, "500", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			item := bolt(tc.target)
			target, frag := r.Reconcile(item, quote(item, tc.price, tc.outcome))
			if !target.Equal(decimal.RequireFromString(tc.wantTarget)) {
				t.Fatalf("target %s, want %s", target, tc.wantTarget)
			}
			if (frag != nil) != tc.wantAlert {
				t.Fatalf("alert = %v, want %v", frag != nil, tc.wantAlert)
			}
			if frag != nil {
				if !frag.OldPrice.Equal(item.TargetPrice) || !frag.NewPrice.Equal(target) {
					t.Fatalf("fragment prices: %+v", frag)
				}
				if !strings.Contains(frag.Text, "Bolt") {
					t.Fatalf("fragment text: %q", frag.Text)
				}
			}
		})
	}
}

func TestRendererLocale(t *testing.T) {
	r, err := NewRenderer("pt-BR", "R$", "ana")
	if err != nil {
		t.Fatal(err)
	}
	item := bolt("5")
	item.VariantKey = "Foil"
	text := r.Render(item, decimal.RequireFromString("4.5"))
	for _, want := range []string{"Bolt (161) [Alpha] - Foil", "R$ 5,00", "R$ 4,50", "R$ 0,50", "Alerted by ana"} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in %q", want, text)
		}
	}
}

func TestRendererBadLocale(t *testing.T) {
	if _, err := NewRenderer("not a locale!!", "$", ""); err == nil {
		t.Fatal("expected error")
	}
}

func TestNilRendererPlain(t *testing.T) {
	var r *Renderer
	text := r.Render(bolt("500"), decimal.NewFromInt(450))
	if !strings.Contains(text, "Wanted: 500.00") || !strings.Contains(text, "Current: 450.00") {
		t.Fatalf("plain text: %q", text)
	}
}
