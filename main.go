package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cardwatch/internal/api"
	"cardwatch/internal/app"
	"cardwatch/internal/config"
	"cardwatch/internal/obs"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logOut, closeLog, err := app.LogWriter(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closeLog()
	obs.InitLogger(cfg.LogLevel, cfg.LogFormat, logOut)
	if envErr != nil {
		obs.Logger.Debug("no .env file loaded", "error", envErr)
	}

	a, err := app.New(cfg, app.Options{})
	if err != nil {
		obs.Logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if strings.EqualFold(cfg.LogLevel, "debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS middleware
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "state": a.Engine.Status().State})
	})

	// API routes
	apiGroup := r.Group("/api/v1")
	handler := api.SetupRoutes(ctx, apiGroup, a.Store, a.Engine, a.Catalog)
	r.GET("/ws", handler.Stream)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		obs.Logger.Info("server starting", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obs.Logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	obs.Logger.Info("monitor loop starting", "interval", cfg.CheckInterval, "concurrency", cfg.MaxConcurrent, "source", cfg.PriceSource)
	a.Engine.Run(ctx, cfg.CheckInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		obs.Logger.Warn("server shutdown", "error", err)
	}
	obs.Logger.Info("bye")
}
