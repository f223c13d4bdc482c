package store

import (
	"context"
	"errors"
	"fmt"

	"cardwatch/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SQLStore keeps the watch-list in the watch_items table.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore wraps an initialized connection (see database.Initialize).
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Load(ctx context.Context) ([]models.WatchItem, error) {
	var rows []models.WatchItemRow
	if err := s.db.WithContext(ctx).Order("position ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load watch items: %w", err)
	}
	items := make([]models.WatchItem, len(rows))
	for i, r := range rows {
		items[i] = r.ToItem()
	}
	return items, nil
}

func (s *SQLStore) Add(ctx context.Context, item models.WatchItem) error {
	item, err := Normalize(item)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := byKey(tx.Model(&models.WatchItemRow{}), item.Key()).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicate
		}
		var last struct{ Position int }
		if err := tx.Model(&models.WatchItemRow{}).Select("COALESCE(MAX(position), 0) AS position").Scan(&last).Error; err != nil {
			return err
		}
		row := models.RowFromItem(item, last.Position+1)
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicate
			}
			return fmt.Errorf("insert watch item: %w", err)
		}
		return nil
	})
}

// UpdateTargets applies all new targets in one transaction.
func (s *SQLStore) UpdateTargets(ctx context.Context, targets map[models.Key]decimal.Decimal) error {
	if len(targets) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, price := range targets {
			err := byKey(tx.Model(&models.WatchItemRow{}), key).Update("target_price", price).Error
			if err != nil {
				return fmt.Errorf("update %s: %w", key, err)
			}
		}
		return nil
	})
}

func byKey(tx *gorm.DB, k models.Key) *gorm.DB {
	return tx.Where("card_name = ? AND version = ? AND expansion = ?", k.Name, k.Variant, k.Group)
}
