package cardtrader

import (
	"testing"

	"cardwatch/internal/models"
)

func TestSlug(t *testing.T) {
	cases := []struct {
		name, group, variant string
		want                 string
	}{
		{"Lightning Bolt", "Magic 2010", "", "lightning-bolt-magic-2010"},
		{"Jace, the Mind Sculptor", "Worldwake", "Borderless", "jace-the-mind-sculptor-borderless-worldwake"},
		{"Urza's Saga", "Urza's Legacy", "", "urza-s-saga-urza-s-legacy"},
		{"Fire // Ice", "Apocalypse", "", "fire-ice-apocalypse"},
		{"Command Tower", "Commanders' Quarters", "", "command-tower-commanders-quarters"},
		{"Lórien Revealed", "The Lord of the Rings: Tales of Middle-earth", "", "lorien-revealed-the-lord-of-the-rings-tales-of-middle-earth"},
		{"  Sol Ring ", "Commander 2021", "  ", "sol-ring-commander-2021"},
		{"Dr. Julius Jumblemorph", "Unstable", "", "dr-julius-jumblemorph-unstable"},
	}
	for _, tc := range cases {
		if got := Slug(tc.name, tc.group, tc.variant); got != tc.want {
			t.Errorf("Slug(%q, %q, %q) = %q, want %q", tc.name, tc.group, tc.variant, got, tc.want)
		}
	}
}

func TestCardURL(t *testing.T) {
	item := models.WatchItem{ItemName: "Bolt", GroupKey: "Alpha", VariantKey: "Foil"}
	if got := CardURL("https://www.cardtrader.com/", item); got != "https://www.cardtrader.com/cards/bolt-foil-alpha" {
		t.Fatalf("got %q", got)
	}
}
