// Package store persists the watch-list. Two backends exist: a pretty
// JSON file (the default) and a SQL table through gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cardwatch/internal/models"

	"github.com/shopspring/decimal"
)

// Store is a durable, ordered watch-list keyed by models.Key.
type Store interface {
	Load(ctx context.Context) ([]models.WatchItem, error)
	Add(ctx context.Context, item models.WatchItem) error
	UpdateTargets(ctx context.Context, targets map[models.Key]decimal.Decimal) error
}

// ErrDuplicate is returned by Add when the key is already tracked.
var ErrDuplicate = errors.New("store: item already on the watch-list")

// ValidationError rejects a watch item before it reaches a backend.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Normalize trims the text fields of item and checks it can be stored.
func Normalize(item models.WatchItem) (models.WatchItem, error) {
	item.ItemName = strings.TrimSpace(item.ItemName)
	item.VariantKey = strings.TrimSpace(item.VariantKey)
	item.GroupKey = strings.TrimSpace(item.GroupKey)
	item.DisplayID = strings.TrimSpace(item.DisplayID)
	switch {
	case item.ItemName == "":
		return item, &ValidationError{Field: "card_name", Reason: "must not be empty"}
	case item.GroupKey == "":
		return item, &ValidationError{Field: "expansion_name", Reason: "must not be empty"}
	case item.TargetPrice.IsNegative():
		return item, &ValidationError{Field: "price", Reason: "must not be negative"}
	case item.BlueprintID < 0:
		return item, &ValidationError{Field: "blueprint_id", Reason: "must not be negative"}
	}
	item.TargetPrice = item.TargetPrice.Round(2)
	return item, nil
}
