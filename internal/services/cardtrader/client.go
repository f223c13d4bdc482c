package cardtrader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"cardwatch/internal/models"
	"cardwatch/internal/monitor"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// ErrNoBlueprint means the item carries no blueprint id and the catalog
// does not know it either.
var ErrNoBlueprint = errors.New("cardtrader: no blueprint id for item")

// BlueprintResolver maps a watch item to its CardTrader blueprint id.
type BlueprintResolver interface {
	Blueprint(item models.WatchItem) (int64, error)
}

// Product is one marketplace listing.
type Product struct {
	ID          int64  `json:"id"`
	BlueprintID int64  `json:"blueprint_id"`
	NameEn      string `json:"name_en"`
	Quantity    *int   `json:"quantity"`
	PriceCents  int64  `json:"price_cents"`
	Price       *struct {
		Cents    int64  `json:"cents"`
		Currency string `json:"currency"`
	} `json:"price"`
}

func (p Product) cents() int64 {
	if p.PriceCents > 0 {
		return p.PriceCents
	}
	if p.Price != nil {
		return p.Price.Cents
	}
	return 0
}

func (p Product) available() bool {
	return p.Quantity == nil || *p.Quantity > 0
}

// APISource quotes the cheapest marketplace listing of a blueprint through
// the CardTrader REST API.
type APISource struct {
	client   *resty.Client
	resolver BlueprintResolver
}

// NewAPISource returns a source for baseURL (".../api/v2"). auth is sent as
// the Authorization header verbatim; cookie is optional.
func NewAPISource(baseURL, auth, cookie string, resolver BlueprintResolver) *APISource {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(30 * time.Second)
	client.SetHeader("Accept", "application/json")
	client.SetHeader("Authorization", auth)
	if cookie != "" {
		client.SetHeader("Cookie", cookie)
	}
	return &APISource{client: client, resolver: resolver}
}

// Quote implements monitor.PriceSource.
func (s *APISource) Quote(ctx context.Context, item models.WatchItem) (decimal.Decimal, error) {
	id, err := s.blueprint(item)
	if err != nil {
		return decimal.Zero, err
	}
	products, err := s.Products(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	var best int64
	for _, p := range products {
		c := p.cents()
		if !p.available() || c <= 0 {
			continue
		}
		if best == 0 || c < best {
			best = c
		}
	}
	if best == 0 {
		return decimal.Zero, monitor.Terminal(fmt.Errorf("%w: blueprint %d has no listings", ErrNotFound, id))
	}
	return decimal.New(best, -2), nil
}

// Products lists the marketplace products of one blueprint.
func (s *APISource) Products(ctx context.Context, blueprintID int64) ([]Product, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("blueprint_id", strconv.FormatInt(blueprintID, 10)).
		Get("/marketplace/products")
	if err != nil {
		return nil, err
	}
	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return nil, monitor.Terminal(fmt.Errorf("cardtrader api: status %d, check CARDTRADER_AUTH", code))
	case code == http.StatusNotFound:
		return nil, monitor.Terminal(fmt.Errorf("%w: blueprint %d", ErrNotFound, blueprintID))
	case code != http.StatusOK:
		return nil, fmt.Errorf("cardtrader api: status %d", code)
	}
	return decodeProducts(resp.Body(), blueprintID)
}

// decodeProducts accepts both {"<blueprint id>": [...]} and a bare array.
func decodeProducts(body []byte, blueprintID int64) ([]Product, error) {
	var keyed map[string][]Product
	if err := json.Unmarshal(body, &keyed); err == nil {
		if list, ok := keyed[strconv.FormatInt(blueprintID, 10)]; ok {
			return list, nil
		}
		var all []Product
		for _, list := range keyed {
			all = append(all, list...)
		}
		return all, nil
	}
	var list []Product
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return list, nil
}

func (s *APISource) blueprint(item models.WatchItem) (int64, error) {
	if item.BlueprintID > 0 {
		return item.BlueprintID, nil
	}
	if s.resolver == nil {
		return 0, monitor.Terminal(ErrNoBlueprint)
	}
	id, err := s.resolver.Blueprint(item)
	if err != nil {
		return 0, monitor.Terminal(err)
	}
	return id, nil
}
