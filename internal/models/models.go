package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Key identifies a watch-list entry. It is unique within a store and is the
// reconciliation key between a quote and its item.
type Key struct {
	Name    string `json:"card_name"`
	Variant string `json:"version"`
	Group   string `json:"expansion_name"`
}

func (k Key) String() string {
	if k.Variant == "" {
		return fmt.Sprintf("%s [%s]", k.Name, k.Group)
	}
	return fmt.Sprintf("%s (%s) [%s]", k.Name, k.Variant, k.Group)
}

// WatchItem is one tracked card printing and the price we want to pay for it.
type WatchItem struct {
	ItemName    string          `json:"card_name"`
	VariantKey  string          `json:"version"`
	GroupKey    string          `json:"expansion_name"`
	TargetPrice decimal.Decimal `json:"price"`
	DisplayID   string          `json:"collector_number"`
	BlueprintID int64           `json:"blueprint_id,omitempty"` // CardTrader blueprint, optional
}

// Key returns the reconciliation key of the item.
func (w WatchItem) Key() Key {
	return Key{Name: w.ItemName, Variant: w.VariantKey, Group: w.GroupKey}
}

// Outcome classifies a price lookup.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeUnavailable
	OutcomeError // the lookup task itself crashed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeUnavailable:
		return "unavailable"
	case OutcomeError:
		return "error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// MarshalText renders the outcome by name in JSON payloads.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// PriceQuote is the result of one lookup. It is consumed by the reconciler
// and never persisted.
type PriceQuote struct {
	Key       Key
	Price     decimal.Decimal
	FetchedAt time.Time
	Outcome   Outcome
	Attempts  int
	Err       error
}

// Available reports whether the quote carries a usable price.
func (q PriceQuote) Available() bool {
	return q.Outcome == OutcomeSuccess
}

// AlertFragment is one rendered price-drop notice.
type AlertFragment struct {
	Key      Key
	OldPrice decimal.Decimal
	NewPrice decimal.Decimal
	Text     string
}

// WatchItemRow is the SQL representation of a WatchItem.
type WatchItemRow struct {
	ID          uint            `gorm:"primaryKey"`
	CardName    string          `gorm:"size:255;not null;uniqueIndex:idx_watch_key"`
	Version     string          `gorm:"size:255;not null;default:'';uniqueIndex:idx_watch_key"`
	Expansion   string          `gorm:"size:255;not null;uniqueIndex:idx_watch_key"`
	TargetPrice decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Collector   string          `gorm:"size:64"`
	BlueprintID int64
	Position    int `gorm:"index"` // preserves watch-list order
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (WatchItemRow) TableName() string {
	return "watch_items"
}

// ToItem converts a row into the domain type.
func (r WatchItemRow) ToItem() WatchItem {
	return WatchItem{
		ItemName:    r.CardName,
		VariantKey:  r.Version,
		GroupKey:    r.Expansion,
		TargetPrice: r.TargetPrice,
		DisplayID:   r.Collector,
		BlueprintID: r.BlueprintID,
	}
}

// RowFromItem converts a WatchItem into its SQL row.
func RowFromItem(w WatchItem, position int) WatchItemRow {
	return WatchItemRow{
		CardName:    w.ItemName,
		Version:     w.VariantKey,
		Expansion:   w.GroupKey,
		TargetPrice: w.TargetPrice,
		Collector:   w.DisplayID,
		BlueprintID: w.BlueprintID,
		Position:    position,
	}
}
