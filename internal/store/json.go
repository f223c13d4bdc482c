package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"cardwatch/internal/models"

	"github.com/shopspring/decimal"
)

// record is the on-disk shape of a watch item. Prices are written as plain
// JSON numbers so hand-edited files keep working.
type record struct {
	CardName    string      `json:"card_name"`
	Version     string      `json:"version"`
	Expansion   string      `json:"expansion_name"`
	Price       json.Number `json:"price"`
	Collector   string      `json:"collector_number"`
	BlueprintID int64       `json:"blueprint_id,omitempty"`
}

// JSONStore keeps the watch-list in a single JSON array file.
type JSONStore struct {
	path string
	mu   sync.Mutex
}

// NewJSONStore returns a store backed by path. The file need not exist.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Path returns the backing file.
func (s *JSONStore) Path() string { return s.path }

// Load reads the watch-list. A missing or empty file is an empty list; a
// malformed one is an error.
func (s *JSONStore) Load(ctx context.Context) ([]models.WatchItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Add appends item unless its key is already present.
func (s *JSONStore) Add(ctx context.Context, item models.WatchItem) error {
	item, err := Normalize(item)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.read()
	if err != nil {
		return err
	}
	for _, it := range items {
		if it.Key() == item.Key() {
			return ErrDuplicate
		}
	}
	return s.write(append(items, item))
}

// UpdateTargets rewrites the file with new targets. The current file is
// re-read first so entries added since the cycle loaded are kept.
func (s *JSONStore) UpdateTargets(ctx context.Context, targets map[models.Key]decimal.Decimal) error {
	if len(targets) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.read()
	if err != nil {
		return err
	}
	for i := range items {
		if p, ok := targets[items[i].Key()]; ok {
			items[i].TargetPrice = p
		}
	}
	return s.write(items)
}

func (s *JSONStore) read() ([]models.WatchItem, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var recs []record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	items := make([]models.WatchItem, 0, len(recs))
	seen := make(map[models.Key]bool, len(recs))
	for i, r := range recs {
		price := decimal.Zero
		if r.Price != "" {
			if price, err = decimal.NewFromString(r.Price.String()); err != nil {
				return nil, fmt.Errorf("parse %s: entry %d: price %q: %w", s.path, i, r.Price, err)
			}
		}
		item, err := Normalize(models.WatchItem{
			ItemName:    r.CardName,
			VariantKey:  r.Version,
			GroupKey:    r.Expansion,
			TargetPrice: price,
			DisplayID:   r.Collector,
			BlueprintID: r.BlueprintID,
		})
		if err != nil {
			return nil, fmt.Errorf("parse %s: entry %d: %w", s.path, i, err)
		}
		if seen[item.Key()] {
			return nil, fmt.Errorf("parse %s: entry %d: duplicate %s", s.path, i, item.Key())
		}
		seen[item.Key()] = true
		items = append(items, item)
	}
	return items, nil
}

func (s *JSONStore) write(items []models.WatchItem) error {
	recs := make([]record, len(items))
	for i, it := range items {
		recs[i] = record{
			CardName:    it.ItemName,
			Version:     it.VariantKey,
			Expansion:   it.GroupKey,
			Price:       json.Number(it.TargetPrice.StringFixed(2)),
			Collector:   it.DisplayID,
			BlueprintID: it.BlueprintID,
		}
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, append(data, '\n'))
}

// writeFileAtomic replaces path with data through a synced temp file in
// the same directory.
func writeFileAtomic(path string, data []byte) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
