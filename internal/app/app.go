// Package app builds the engine and its collaborators from a Config. Both
// binaries share it.
package app

import (
	"errors"
	"fmt"
	"io"
	"os"

	"cardwatch/internal/catalog"
	"cardwatch/internal/config"
	"cardwatch/internal/database"
	"cardwatch/internal/monitor"
	"cardwatch/internal/obs"
	"cardwatch/internal/services/cardtrader"
	"cardwatch/internal/services/notify"
	"cardwatch/internal/store"
)

type App struct {
	Config   *config.Config
	Store    store.Store
	Catalog  *catalog.Catalog
	Limiter  *monitor.Limiter
	Source   monitor.PriceSource
	Notifier monitor.Notifier
	Engine   *monitor.Engine

	closers []func() error
}

// Options narrows what New sets up. Commands that only touch the store skip
// the source and the notifier (the WeChat one needs an interactive login).
type Options struct {
	StoreOnly bool
}

// New wires every component named by cfg.
func New(cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg, Limiter: monitor.NewLimiter(cfg.MaxConcurrent)}

	if err := a.openStore(); err != nil {
		return nil, err
	}
	if err := a.loadCatalog(); err != nil {
		a.Close()
		return nil, err
	}
	if opts.StoreOnly {
		return a, nil
	}
	if err := a.openSource(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openNotifier(); err != nil {
		a.Close()
		return nil, err
	}

	renderer, err := monitor.NewRenderer(cfg.AlertLocale, cfg.CurrencySymbol, cfg.OperatorName)
	if err != nil {
		a.Close()
		return nil, &config.Error{Var: "ALERT_LOCALE", Reason: err.Error()}
	}
	a.Engine = monitor.New(monitor.Options{
		Store:    a.Store,
		Source:   a.Source,
		Notifier: a.Notifier,
		Limiter:  a.Limiter,
		Executor: monitor.NewExecutor(cfg.MaxRetries, cfg.RetryBase, cfg.AttemptTimeout),
		Renderer: renderer,
		Batcher:  monitor.NewBatcher(cfg.AlertMaxChunk),
	})
	return a, nil
}

func (a *App) openStore() error {
	cfg := a.Config
	switch cfg.StoreDriver {
	case config.StoreMySQL, config.StorePostgres:
		db, err := database.Initialize(cfg.StoreDriver, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { return database.Close(db) })
		a.Store = store.NewSQLStore(db)
	default:
		a.Store = store.NewJSONStore(cfg.WatchlistFile)
	}
	obs.Logger.Info("watch store ready", "driver", cfg.StoreDriver)
	return nil
}

// loadCatalog is best effort: without it only items that carry a
// blueprint id can be quoted through the API.
func (a *App) loadCatalog() error {
	cat, err := catalog.Load(a.Config.CatalogFile)
	switch {
	case err == nil:
		a.Catalog = cat
		obs.Logger.Info("catalog loaded", "file", a.Config.CatalogFile, "blueprints", cat.Len())
	case errors.Is(err, os.ErrNotExist):
		obs.Logger.Warn("catalog file missing, blueprint lookup disabled", "file", a.Config.CatalogFile)
	default:
		return err
	}
	return nil
}

func (a *App) openSource() error {
	cfg := a.Config
	switch cfg.PriceSource {
	case config.SourceAPI:
		var resolver cardtrader.BlueprintResolver
		if a.Catalog != nil {
			resolver = a.Catalog
		}
		a.Source = cardtrader.NewAPISource(cfg.CardTraderAPIURL, cfg.CardTraderAuth, cfg.CardTraderCookie, resolver)
	case config.SourcePage:
		a.Source = cardtrader.NewPageSource(cfg.CardTraderSite, cfg.CardTraderCookie)
	case config.SourceBrowser:
		b := cardtrader.NewBrowserSource(cfg.CardTraderSite, cfg.PageSettle, a.Limiter)
		a.closers = append(a.closers, b.Close)
		a.Source = b
	default:
		return &config.Error{Var: "PRICE_SOURCE", Reason: fmt.Sprintf("unknown source %q", cfg.PriceSource)}
	}
	obs.Logger.Info("price source ready", "source", cfg.PriceSource)
	return nil
}

func (a *App) openNotifier() error {
	cfg := a.Config
	switch cfg.Notifier {
	case config.NotifierTelegram:
		a.Notifier = notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
	case config.NotifierWeChat:
		w, err := notify.NewWeChat(cfg.WeChatStorage, cfg.WeChatGroup)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, w.Close)
		a.Notifier = w
	default:
		a.Notifier = notify.Log{}
	}
	obs.Logger.Info("notifier ready", "notifier", cfg.Notifier)
	return nil
}

// Close releases everything New opened, last opened first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// LogWriter opens the configured log file, or returns stdout.
func LogWriter(cfg *config.Config) (io.Writer, func() error, error) {
	if cfg.LogFile == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return f, f.Close, nil
}
