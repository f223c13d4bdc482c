// Package catalog is a read-only index over the CardTrader blueprint
// export (all_blueprints.json). Producing the export is a separate job.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"cardwatch/internal/models"
	"cardwatch/internal/services/cardtrader"
)

var (
	ErrUnknown   = errors.New("catalog: card not in catalog")
	ErrAmbiguous = errors.New("catalog: several blueprints match, set collector_number")
)

// Entry is one blueprint of the export file.
type Entry struct {
	BlueprintID     int64  `json:"blueprint_id"`
	CardName        string `json:"card_name"`
	Version         string `json:"version"`
	CollectorNumber string `json:"collector_number"`
	ExpansionName   string `json:"expansion_name"`
}

// Slug returns the normalized identifier the entry is indexed under.
func (e Entry) Slug() string {
	return cardtrader.Slug(e.CardName, e.ExpansionName, e.Version)
}

type Catalog struct {
	bySlug map[string][]Entry
	size   int
}

// New indexes entries.
func New(entries []Entry) *Catalog {
	c := &Catalog{bySlug: make(map[string][]Entry, len(entries)), size: len(entries)}
	for _, e := range entries {
		s := e.Slug()
		c.bySlug[s] = append(c.bySlug[s], e)
	}
	return c
}

// Load reads an export file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return New(entries), nil
}

// Len returns the number of blueprints in the catalog.
func (c *Catalog) Len() int { return c.size }

// Lookup returns the entries matching a printing, most specific first.
// A non-empty collector number narrows the match.
func (c *Catalog) Lookup(name, group, variant, collector string) []Entry {
	found := c.bySlug[cardtrader.Slug(name, group, variant)]
	if collector != "" {
		var narrowed []Entry
		for _, e := range found {
			if strings.EqualFold(strings.TrimSpace(e.CollectorNumber), strings.TrimSpace(collector)) {
				narrowed = append(narrowed, e)
			}
		}
		found = narrowed
	}
	out := append([]Entry(nil), found...)
	sort.Slice(out, func(i, j int) bool { return out[i].BlueprintID < out[j].BlueprintID })
	return out
}

// Blueprint implements cardtrader.BlueprintResolver.
func (c *Catalog) Blueprint(item models.WatchItem) (int64, error) {
	found := c.Lookup(item.ItemName, item.GroupKey, item.VariantKey, item.DisplayID)
	switch {
	case len(found) == 0:
		return 0, fmt.Errorf("%w: %s", ErrUnknown, item.Key())
	case len(found) > 1 && found[0].BlueprintID != found[len(found)-1].BlueprintID:
		return 0, fmt.Errorf("%w: %s", ErrAmbiguous, item.Key())
	}
	return found[0].BlueprintID, nil
}
