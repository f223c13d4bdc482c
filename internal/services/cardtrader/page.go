package cardtrader

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cardwatch/internal/models"

	"github.com/gocolly/colly/v2"
	"github.com/shopspring/decimal"
)

// PriceSelector holds the lowest listed price on a card page.
const PriceSelector = "div.price-box__price"

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// CardURL returns the storefront page of a printing.
func CardURL(site string, item models.WatchItem) string {
	return strings.TrimRight(site, "/") + "/cards/" + Slug(item.ItemName, item.GroupKey, item.VariantKey)
}

// PageSource scrapes the server-rendered card page. Every call builds its
// own collector so attempts share no state.
type PageSource struct {
	Site    string
	Cookie  string
	Timeout time.Duration
}

// NewPageSource returns a scraper for site ("https://www.cardtrader.com").
func NewPageSource(site, cookie string) *PageSource {
	return &PageSource{Site: site, Cookie: cookie, Timeout: 30 * time.Second}
}

// Quote implements monitor.PriceSource.
func (s *PageSource) Quote(ctx context.Context, item models.WatchItem) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	url := CardURL(s.Site, item)

	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
	)
	timeout := s.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); timeout <= 0 || left < timeout {
			timeout = left
		}
	}
	if timeout > 0 {
		c.SetRequestTimeout(timeout)
	}

	var (
		text      string
		found     bool
		scrapeErr error
	)
	c.OnRequest(func(r *colly.Request) {
		if s.Cookie != "" {
			r.Headers.Set("Cookie", s.Cookie)
		}
	})
	c.OnHTML(PriceSelector, func(e *colly.HTMLElement) {
		if !found {
			text, found = strings.TrimSpace(e.Text), true
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		scrapeErr = fmt.Errorf("GET %s: status %d: %w", url, r.StatusCode, err)
	})

	if err := c.Visit(url); err != nil && scrapeErr == nil {
		scrapeErr = fmt.Errorf("GET %s: %w", url, err)
	}
	c.Wait()
	if scrapeErr != nil {
		return decimal.Zero, scrapeErr
	}
	if !found {
		return decimal.Zero, fmt.Errorf("%w: %s has no %s", ErrNotFound, url, PriceSelector)
	}
	return ParsePrice(text)
}
