package cardtrader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"cardwatch/internal/models"
	"cardwatch/internal/monitor"

	"github.com/shopspring/decimal"
)

type mapResolver map[string]int64

func (m mapResolver) Blueprint(item models.WatchItem) (int64, error) {
	if id, ok := m[item.ItemName]; ok {
		return id, nil
	}
	return 0, ErrNoBlueprint
}

func newAPIServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestAPISourceCheapestListing(t *testing.T) {
	ts := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/marketplace/products" || r.URL.Query().Get("blueprint_id") != "42" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer secret" || r.Header.Get("Cookie") != "session=1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"42": [
			{"id": 1, "blueprint_id": 42, "name_en": "Bolt", "quantity": 2, "price_cents": 650},
			{"id": 2, "blueprint_id": 42, "name_en": "Bolt", "quantity": 0, "price_cents": 100},
			{"id": 3, "blueprint_id": 42, "name_en": "Bolt", "quantity": 1, "price": {"cents": 450, "currency": "BRL"}}
		]}`))
	})
	src := NewAPISource(ts.URL, "Bearer secret", "session=1", mapResolver{"Bolt": 42})

	price, err := src.Quote(context.Background(), models.WatchItem{ItemName: "Bolt", GroupKey: "Alpha"})
	if err != nil {
		t.Fatal(err)
	}
	if !price.Equal(decimal.RequireFromString("4.50")) {
		t.Fatalf("price = %s", price)
	}
}

func TestAPISourceBareArrayAndItemBlueprint(t *testing.T) {
	ts := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"blueprint_id": 7, "price_cents": 1999}]`))
	})
	src := NewAPISource(ts.URL, "Bearer x", "", nil)
	price, err := src.Quote(context.Background(), models.WatchItem{ItemName: "Shock", BlueprintID: 7})
	if err != nil || !price.Equal(decimal.RequireFromString("19.99")) {
		t.Fatalf("price=%s err=%v", price, err)
	}
}

func TestAPISourceFailures(t *testing.T) {
	status := http.StatusOK
	body := `{"42": []}`
	ts := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	})
	src := NewAPISource(ts.URL, "Bearer x", "", mapResolver{"Bolt": 42})
	bolt := models.WatchItem{ItemName: "Bolt"}

	_, err := src.Quote(context.Background(), bolt)
	if !errors.Is(err, ErrNotFound) || !monitor.IsTerminal(err) {
		t.Fatalf("empty listing: %v", err)
	}

	status = http.StatusBadGateway
	_, err = src.Quote(context.Background(), bolt)
	if err == nil || monitor.IsTerminal(err) {
		t.Fatalf("5xx should be retryable: %v", err)
	}

	status = http.StatusUnauthorized
	if _, err = src.Quote(context.Background(), bolt); !monitor.IsTerminal(err) {
		t.Fatalf("401 should be terminal: %v", err)
	}

	status, body = http.StatusOK, `<html>`
	if _, err = src.Quote(context.Background(), bolt); err == nil || monitor.IsTerminal(err) {
		t.Fatalf("garbage body: %v", err)
	}

	if _, err = src.Quote(context.Background(), models.WatchItem{ItemName: "Unknown"}); !errors.Is(err, ErrNoBlueprint) || !monitor.IsTerminal(err) {
		t.Fatalf("unresolved item: %v", err)
	}
}
