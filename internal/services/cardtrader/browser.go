package cardtrader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cardwatch/internal/models"
	"cardwatch/internal/monitor"
	"cardwatch/internal/obs"

	"github.com/chromedp/chromedp"
	"github.com/shopspring/decimal"
)

// BrowserSource renders card pages in one shared headless Chrome. Each
// attempt opens its own tab and closes it before returning. Tabs are gated
// by the process limiter, so the browser never has more open tabs than the
// limiter's capacity.
type BrowserSource struct {
	site    string
	settle  time.Duration
	limiter *monitor.Limiter
	launch  func() (context.Context, context.CancelFunc, error)

	mu         sync.Mutex
	browserCtx context.Context
	cancel     context.CancelFunc
}

// NewBrowserSource returns a source for site. The browser starts on first
// use. settle is how long a rendered page is left alone before reading.
func NewBrowserSource(site string, settle time.Duration, limiter *monitor.Limiter) *BrowserSource {
	return &BrowserSource{site: site, settle: settle, limiter: limiter, launch: launchChrome}
}

func launchChrome() (context.Context, context.CancelFunc, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(1280, 900),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	cancel := func() {
		cancelBrowser()
		cancelAlloc()
	}
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("start headless chrome: %w", err)
	}
	return browserCtx, cancel, nil
}

// browser returns the running browser, launching a new one when none is
// alive.
func (b *BrowserSource) browser() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browserCtx != nil && b.browserCtx.Err() == nil {
		return b.browserCtx, nil
	}
	if b.cancel != nil {
		b.cancel()
		b.browserCtx, b.cancel = nil, nil
		obs.Logger.Warn("headless browser gone, relaunching")
	}
	ctx, cancel, err := b.launch()
	if err != nil {
		return nil, err
	}
	b.browserCtx, b.cancel = ctx, cancel
	obs.Logger.Info("headless browser started")
	return ctx, nil
}

// Quote implements monitor.PriceSource.
func (b *BrowserSource) Quote(ctx context.Context, item models.WatchItem) (decimal.Decimal, error) {
	release, err := b.limiter.Acquire(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	defer release()
	browserCtx, err := b.browser()
	if err != nil {
		return decimal.Zero, monitor.Terminal(err)
	}

	tabCtx, closeTab := chromedp.NewContext(browserCtx)
	defer closeTab()
	stop := context.AfterFunc(ctx, closeTab)
	defer stop()

	url := CardURL(b.site, item)
	var text string
	err = chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitVisible(PriceSelector, chromedp.ByQuery),
		chromedp.Sleep(b.settle),
		chromedp.Text(PriceSelector, &text, chromedp.ByQuery, chromedp.NodeVisible),
	)
	if err != nil {
		if ctx.Err() != nil {
			return decimal.Zero, fmt.Errorf("render %s: %w", url, ctx.Err())
		}
		return decimal.Zero, fmt.Errorf("render %s: %w", url, err)
	}
	return ParsePrice(text)
}

// Close shuts the browser down.
func (b *BrowserSource) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
		b.browserCtx, b.cancel = nil, nil
	}
	return nil
}
