package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestKeyString(t *testing.T) {
	k := Key{Name: "Bolt", Group: "Alpha"}
	if got := k.String(); got != "Bolt [Alpha]" {
		t.Fatalf("got %q", got)
	}
	k.Variant = "Foil"
	if got := k.String(); got != "Bolt (Foil) [Alpha]" {
		t.Fatalf("got %q", got)
	}
}

func TestRowRoundTrip(t *testing.T) {
	item := WatchItem{
		ItemName:    "Lightning Bolt",
		VariantKey:  "Borderless",
		GroupKey:    "Magic 2010",
		TargetPrice: decimal.RequireFromString("12.50"),
		DisplayID:   "146",
		BlueprintID: 1234,
	}
	row := RowFromItem(item, 3)
	if row.Position != 3 || row.TableName() != "watch_items" {
		t.Fatalf("unexpected row: %+v", row)
	}
	back := row.ToItem()
	if back.Key() != item.Key() || !back.TargetPrice.Equal(item.TargetPrice) || back.BlueprintID != 1234 {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}

func TestOutcomeString(t *testing.T) {
	for o, want := range map[Outcome]string{
		OutcomeSuccess:     "success",
		OutcomeUnavailable: "unavailable",
		OutcomeError:       "error",
	} {
		if o.String() != want {
			t.Errorf("%d: got %s", o, o.String())
		}
	}
}
