package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"cardwatch/internal/app"
	"cardwatch/internal/config"
	"cardwatch/internal/models"
	"cardwatch/internal/monitor"
	"cardwatch/internal/obs"
	"cardwatch/internal/report"

	cli "github.com/jawher/mow.cli"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

func main() {
	cmd := cli.App("price-monitor", "Watch CardTrader prices and alert on drops")
	cmd.Version("v version", "price-monitor 1.0")

	envFile := cmd.StringOpt("env", ".env", "dotenv file to load before reading the environment")

	var (
		cfg      *config.Config
		closeLog = func() error { return nil }
	)
	cmd.After = func() { closeLog() }
	cmd.Before = func() {
		if err := godotenv.Load(*envFile); err != nil && *envFile != ".env" {
			fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
			cli.Exit(2)
		}
		var err error
		if cfg, err = config.Load(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			cli.Exit(2)
		}
		out, closer, err := app.LogWriter(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			cli.Exit(1)
		}
		closeLog = closer
		obs.InitLogger(cfg.LogLevel, cfg.LogFormat, out)
	}

	cmd.Command("check", "run one check cycle and exit", func(c *cli.Cmd) {
		asJSON := c.BoolOpt("json", false, "print the cycle report as JSON")
		c.Action = func() {
			a := mustApp(cfg, app.Options{})
			defer a.Close()
			ctx, stop := signalContext()
			defer stop()
			rep, err := a.Engine.RunCycle(ctx)
			if rep != nil {
				printReport(rep, *asJSON)
			}
			if err != nil {
				obs.Logger.Error("cycle failed", "error", err)
				cli.Exit(1)
			}
		}
	})

	cmd.Command("sync", "reset every target to its current price", func(c *cli.Cmd) {
		asJSON := c.BoolOpt("json", false, "print the sync report as JSON")
		c.Action = func() {
			a := mustApp(cfg, app.Options{})
			defer a.Close()
			ctx, stop := signalContext()
			defer stop()
			rep, err := a.Engine.Sync(ctx)
			if rep != nil {
				printReport(rep, *asJSON)
			}
			if err != nil {
				obs.Logger.Error("sync failed", "error", err)
				cli.Exit(1)
			}
		}
	})

	cmd.Command("watch", "check continuously until interrupted", func(c *cli.Cmd) {
		interval := c.IntOpt("i interval", 0, "seconds between cycles (default CHECK_INTERVAL)")
		c.Action = func() {
			a := mustApp(cfg, app.Options{})
			defer a.Close()
			every := cfg.CheckInterval
			if *interval > 0 {
				every = time.Duration(*interval) * time.Second
			}
			ctx, stop := signalContext()
			defer stop()
			obs.Logger.Info("watching", "interval", every, "source", cfg.PriceSource, "notifier", cfg.Notifier)
			a.Engine.Run(ctx, every)
		}
	})

	cmd.Command("list ls", "print the watch-list", func(c *cli.Cmd) {
		c.Action = func() {
			a := mustApp(cfg, app.Options{StoreOnly: true})
			defer a.Close()
			items, err := a.Store.Load(context.Background())
			if err != nil {
				obs.Logger.Error("load watch-list", "error", err)
				cli.Exit(1)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CARD\tVERSION\tEXPANSION\tCOLLECTOR\tBLUEPRINT\tTARGET")
			for _, it := range items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", it.ItemName, it.VariantKey, it.GroupKey, it.DisplayID, it.BlueprintID, it.TargetPrice.StringFixed(2))
			}
			w.Flush()
		}
	})

	cmd.Command("add", "add a card to the watch-list", func(c *cli.Cmd) {
		c.Spec = "--name --group [--variant] --price [--display-id] [--blueprint]"
		var (
			name      = c.StringOpt("n name", "", "card name")
			group     = c.StringOpt("g group", "", "expansion name")
			variant   = c.StringOpt("variant", "", "version, e.g. Borderless")
			price     = c.StringOpt("p price", "", "target price, e.g. 12.50")
			displayID = c.StringOpt("display-id", "", "collector number")
			blueprint = c.IntOpt("blueprint", 0, "CardTrader blueprint id (looked up in the catalog when omitted)")
		)
		c.Action = func() {
			target, err := decimal.NewFromString(*price)
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid --price %q\n", *price)
				cli.Exit(2)
			}
			a := mustApp(cfg, app.Options{StoreOnly: true})
			defer a.Close()
			item := models.WatchItem{
				ItemName:    *name,
				VariantKey:  *variant,
				GroupKey:    *group,
				TargetPrice: target,
				DisplayID:   *displayID,
				BlueprintID: int64(*blueprint),
			}
			if item.BlueprintID == 0 && a.Catalog != nil {
				if id, err := a.Catalog.Blueprint(item); err == nil {
					item.BlueprintID = id
				} else {
					obs.Logger.Warn("blueprint not resolved", "item", item.Key().String(), "error", err)
				}
			}
			if err := a.Store.Add(context.Background(), item); err != nil {
				fmt.Fprintln(os.Stderr, err)
				cli.Exit(1)
			}
			fmt.Printf("added %s at %s\n", item.Key(), target.StringFixed(2))
		}
	})

	cmd.Command("export", "write the watch-list to an xlsx workbook", func(c *cli.Cmd) {
		out := c.StringOpt("o output", "watchlist.xlsx", "output file")
		c.Action = func() {
			a := mustApp(cfg, app.Options{StoreOnly: true})
			defer a.Close()
			items, err := a.Store.Load(context.Background())
			if err != nil {
				obs.Logger.Error("load watch-list", "error", err)
				cli.Exit(1)
			}
			if err := report.Save(*out, items, nil); err != nil {
				obs.Logger.Error("export", "error", err)
				cli.Exit(1)
			}
			fmt.Printf("wrote %d items to %s\n", len(items), *out)
		}
	})

	if err := cmd.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func mustApp(cfg *config.Config, opts app.Options) *app.App {
	a, err := app.New(cfg, opts)
	if err != nil {
		obs.Logger.Error("startup failed", "error", err)
		cli.Exit(1)
	}
	return a
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printReport(rep *monitor.CycleReport, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(rep)
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ITEM\tOUTCOME\tTRIES\tTARGET\tPRICE\tNEW TARGET\tALERT")
	for _, r := range rep.Results {
		price := "-"
		if r.Outcome == models.OutcomeSuccess {
			price = r.Price.StringFixed(2)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%v\n", r.Key, r.Outcome, r.Attempts, r.Target.StringFixed(2), price, r.NewTarget.StringFixed(2), r.Alerted)
	}
	w.Flush()
	fmt.Printf("\n%d items: %d ok, %d unavailable, %d failed, %d alerts, %d updated in %s\n",
		rep.Items, rep.Succeeded, rep.Unavailable, rep.Failed, rep.Alerts, rep.Updated, rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond))
}
