package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/star/ephemgo/internal/api"
	"github.com/star/ephemgo/internal/cache"
	"github.com/star/ephemgo/internal/horizons"
)

type config struct {
	api      api.Config
	upstream horizons.Config
	cacheCap int
	logLevel string
}

func main() {
	// Config warnings go to a bootstrap logger until the level is known.
	boot := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg := loadConfig(boot, os.Args[1:])

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(boot, cfg.logLevel),
	}))

	reports := cache.New(cfg.cacheCap)
	fetcher := horizons.NewFetcher(cfg.upstream, reports, logger)
	srv := api.NewServer(cfg.api, logger, fetcher)

	logger.Info("config",
		"addr", cfg.api.Addr,
		"upstream_url", fetcher.SourceURL(),
		"upstream_timeout_seconds", cfg.upstream.Timeout.Seconds(),
		"cache_capacity", reports.Cap(),
		"batch_concurrency", cfg.api.BatchConcurrency,
		"trust_proxy", cfg.api.TrustProxy,
	)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting server", "addr", cfg.api.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// loadConfig reads EPHEMGO_* environment variables, then lets command-line
// flags override them. Invalid environment values are logged and ignored.
func loadConfig(logger *slog.Logger, args []string) config {
	cfg := config{
		api: api.Config{
			Addr:             ":8080",
			BatchConcurrency: 4,
		},
		upstream: horizons.Config{
			SourceURL: horizons.DefaultSourceURL,
			Timeout:   30 * time.Second,
		},
		cacheCap: cache.DefaultCapacity,
		logLevel: "info",
	}

	if v := os.Getenv("EPHEMGO_HTTP_ADDR"); v != "" {
		cfg.api.Addr = v
	}

	if v := os.Getenv("EPHEMGO_UPSTREAM_URL"); v != "" {
		cfg.upstream.SourceURL = v
	}

	if v := os.Getenv("EPHEMGO_UPSTREAM_TIMEOUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid EPHEMGO_UPSTREAM_TIMEOUT value, using default", "value", v, "default", 30)
		} else {
			cfg.upstream.Timeout = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("EPHEMGO_CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid EPHEMGO_CACHE_SIZE value, using default", "value", v, "default", cache.DefaultCapacity)
		} else {
			cfg.cacheCap = n
		}
	}

	if v := os.Getenv("EPHEMGO_BATCH_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid EPHEMGO_BATCH_CONCURRENCY value, using default", "value", v, "default", 4)
		} else {
			cfg.api.BatchConcurrency = n
		}
	}

	if v := os.Getenv("EPHEMGO_TRUST_PROXY"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid EPHEMGO_TRUST_PROXY value, defaulting to false", "value", v)
		} else {
			cfg.api.TrustProxy = enabled
		}
	}

	if v := os.Getenv("EPHEMGO_LOG_LEVEL"); v != "" {
		cfg.logLevel = v
	}

	fs := pflag.NewFlagSet("ephemgo", pflag.ExitOnError)
	fs.StringVar(&cfg.api.Addr, "addr", cfg.api.Addr, "HTTP listen address")
	fs.StringVar(&cfg.upstream.SourceURL, "upstream-url", cfg.upstream.SourceURL, "Horizons API endpoint")
	fs.DurationVar(&cfg.upstream.Timeout, "upstream-timeout", cfg.upstream.Timeout, "timeout for each Horizons request")
	fs.IntVar(&cfg.cacheCap, "cache-size", cfg.cacheCap, "number of raw reports kept in the LRU cache")
	fs.IntVar(&cfg.api.BatchConcurrency, "batch-concurrency", cfg.api.BatchConcurrency, "parallel upstream fetches per batch request")
	fs.BoolVar(&cfg.api.TrustProxy, "trust-proxy", cfg.api.TrustProxy, "use X-Forwarded-For / X-Real-IP for client addresses")
	fs.StringVar(&cfg.logLevel, "log-level", cfg.logLevel, "log level: debug, info, warn, error")
	fs.Parse(args)

	return cfg
}

func parseLevel(logger *slog.Logger, s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		logger.Warn("invalid log level, defaulting to info", "value", s)
		return slog.LevelInfo
	}
	return level
}
