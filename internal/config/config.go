package config

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"
	"time"
)

// Price sources.
const (
	SourceAPI     = "api"
	SourcePage    = "page"
	SourceBrowser = "browser"
)

// Notifiers.
const (
	NotifierTelegram = "telegram"
	NotifierWeChat   = "wechat"
	NotifierLog      = "log"
)

// Store drivers.
const (
	StoreJSON     = "json"
	StoreMySQL    = "mysql"
	StorePostgres = "postgres"
)

type Config struct {
	// CardTrader
	PriceSource      string
	CardTraderAuth   string // Authorization header for the REST API
	CardTraderCookie string
	CardTraderAPIURL string
	CardTraderSite   string
	CatalogFile      string

	// Notification channel
	Notifier       string
	TelegramToken  string
	TelegramChatID int64
	WeChatGroup    string
	WeChatStorage  string

	// Watch-list persistence
	StoreDriver   string
	WatchlistFile string
	DatabaseURL   string

	// Engine tuning
	MaxConcurrent  int
	MaxRetries     int
	RetryBase      float64
	AttemptTimeout time.Duration
	PageSettle     time.Duration
	CheckInterval  time.Duration
	AlertMaxChunk  int
	AlertLocale    string
	CurrencySymbol string
	OperatorName   string

	HTTPAddr  string
	LogLevel  string
	LogFormat string
	LogFile   string
}

// Error reports a missing or malformed setting. Binaries print it and exit
// before doing any work.
type Error struct {
	Var    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s %s", e.Var, e.Reason)
}

// Load reads the configuration from the environment. Callers load .env
// beforehand when they want one.
func Load() (*Config, error) {
	cfg := &Config{
		PriceSource:      strings.ToLower(getEnv("PRICE_SOURCE", SourceAPI)),
		CardTraderAuth:   getEnv("CARDTRADER_AUTH", ""),
		CardTraderCookie: getEnv("CARDTRADER_COOKIE", ""),
		CardTraderAPIURL: getEnv("CARDTRADER_API_URL", "https://api.cardtrader.com/api/v2"),
		CardTraderSite:   getEnv("CARDTRADER_SITE_URL", "https://www.cardtrader.com"),
		CatalogFile:      getEnv("CATALOG_FILE", "all_blueprints.json"),

		Notifier:      strings.ToLower(getEnv("NOTIFIER", NotifierTelegram)),
		TelegramToken: getEnv("TELEGRAM_TOKEN", ""),
		WeChatGroup:   getEnv("WECHAT_GROUP", ""),
		WeChatStorage: getEnv("WECHAT_STORAGE", "storage.json"),

		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", StoreJSON)),
		WatchlistFile: getEnv("WATCHLIST_FILE", "wishlist.json"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		AlertLocale:    getEnv("ALERT_LOCALE", "pt-BR"),
		CurrencySymbol: getEnv("CURRENCY_SYMBOL", "R$"),
		OperatorName:   getEnv("OPERATOR_NAME", currentUser()),

		HTTPAddr:  getEnv("HTTP_ADDR", ":8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		LogFile:   getEnv("LOG_FILE", ""),
	}

	var err error
	if cfg.MaxConcurrent, err = intEnv("MAX_CONCURRENT_CHECKS", 10, 1); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = intEnv("MAX_RETRIES", 5, 1); err != nil {
		return nil, err
	}
	if cfg.AlertMaxChunk, err = intEnv("ALERT_MAX_CHUNK", 4000, 64); err != nil {
		return nil, err
	}
	if cfg.RetryBase, err = floatEnv("RETRY_BASE", 2, 1); err != nil {
		return nil, err
	}
	if cfg.AttemptTimeout, err = secondsEnv("ATTEMPT_TIMEOUT", 45, 1); err != nil {
		return nil, err
	}
	if cfg.PageSettle, err = secondsEnv("PAGE_SETTLE", 5, 0); err != nil {
		return nil, err
	}
	if cfg.CheckInterval, err = secondsEnv("CHECK_INTERVAL", 60, 1); err != nil {
		return nil, err
	}

	switch cfg.PriceSource {
	case SourceAPI:
		if cfg.CardTraderAuth == "" {
			return nil, &Error{Var: "CARDTRADER_AUTH", Reason: "must be set when PRICE_SOURCE=api"}
		}
	case SourcePage, SourceBrowser:
	default:
		return nil, &Error{Var: "PRICE_SOURCE", Reason: fmt.Sprintf("unknown source %q", cfg.PriceSource)}
	}

	switch cfg.Notifier {
	case NotifierTelegram:
		if cfg.TelegramToken == "" {
			return nil, &Error{Var: "TELEGRAM_TOKEN", Reason: "must be set"}
		}
		raw := getEnv("TELEGRAM_CHAT_ID", "")
		if raw == "" {
			return nil, &Error{Var: "TELEGRAM_CHAT_ID", Reason: "must be set"}
		}
		id, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			return nil, &Error{Var: "TELEGRAM_CHAT_ID", Reason: "must be a valid int64"}
		}
		cfg.TelegramChatID = id
	case NotifierWeChat:
		if cfg.WeChatGroup == "" {
			return nil, &Error{Var: "WECHAT_GROUP", Reason: "must be set when NOTIFIER=wechat"}
		}
	case NotifierLog:
	default:
		return nil, &Error{Var: "NOTIFIER", Reason: fmt.Sprintf("unknown notifier %q", cfg.Notifier)}
	}

	switch cfg.StoreDriver {
	case StoreJSON:
		if cfg.WatchlistFile == "" {
			return nil, &Error{Var: "WATCHLIST_FILE", Reason: "must not be empty"}
		}
	case StoreMySQL, StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, &Error{Var: "DATABASE_URL", Reason: "must be set when STORE_DRIVER=" + cfg.StoreDriver}
		}
	default:
		return nil, &Error{Var: "STORE_DRIVER", Reason: fmt.Sprintf("unknown driver %q", cfg.StoreDriver)}
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func intEnv(key string, def, min int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &Error{Var: key, Reason: "must be an integer"}
	}
	if n < min {
		return 0, &Error{Var: key, Reason: fmt.Sprintf("must be >= %d", min)}
	}
	return n, nil
}

func floatEnv(key string, def, min float64) (float64, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, &Error{Var: key, Reason: "must be a number"}
	}
	if f < min {
		return 0, &Error{Var: key, Reason: fmt.Sprintf("must be >= %g", min)}
	}
	return f, nil
}

func secondsEnv(key string, def, min int) (time.Duration, error) {
	n, err := intEnv(key, def, min)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return ""
}
