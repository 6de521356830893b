package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/celerix-dev/celerix-redact/internal/api"
	"github.com/celerix-dev/celerix-redact/internal/config"
	"github.com/celerix-dev/celerix-redact/internal/engine"
	"github.com/celerix-dev/celerix-redact/internal/server"
	"github.com/celerix-dev/celerix-redact/internal/vault"
	"github.com/celerix-dev/celerix-redact/pkg/accounts"
	"github.com/celerix-dev/celerix-redact/pkg/catalog"
	"github.com/celerix-dev/celerix-redact/pkg/eraser"
	"github.com/celerix-dev/celerix-redact/pkg/policy"
	"github.com/celerix-dev/celerix-redact/pkg/redact"
	"github.com/celerix-dev/celerix-redact/pkg/sweep"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.LogLevel)
	slog.Info("starting redaction daemon", "site", cfg.Site)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Option store: remote when configured, embedded otherwise
	store, embedded, err := engine.Open(cfg.StoreAddr, cfg.DataDir)
	if err != nil {
		slog.Error("failed to open option store", "error", err)
		os.Exit(1)
	}

	// 2. Serve the embedded store over TCP for redactctl and other daemons
	var router *server.Router
	if embedded != nil {
		sites, _ := embedded.GetSites()
		slog.Info("embedded option store loaded", "sites", len(sites), "data_dir", cfg.DataDir)

		router = server.NewRouter(embedded)
		if !cfg.DisableTLS {
			cert, err := vault.GenerateSelfSignedCert()
			if err != nil {
				slog.Error("failed to generate TLS certificate", "error", err)
				os.Exit(1)
			}
			router.SetCertificate(cert)
		} else {
			slog.Warn("TLS disabled for the option store listener")
		}
		go func() {
			slog.Info("option store listening", "port", cfg.Port)
			if err := router.Listen(cfg.Port); err != nil {
				slog.Error("option store listener failed", "error", err)
				stop()
			}
		}()
	}

	// 3. Policy, filter and sweep
	toggles := policy.NewStore(store.Site(cfg.Site))
	filter := redact.NewFilter(toggles)

	lookup, closeDB, err := openAccounts(ctx, cfg)
	if err != nil {
		slog.Error("failed to open account database", "error", err)
		os.Exit(1)
	}
	defer closeDB()

	sweeper := sweep.New(toggles, lookup, newEraser(cfg),
		sweep.WithLease(sweep.NewLease(cfg.SweepLease)),
		sweep.WithRateLimit(cfg.SweepRate),
	)
	go sweep.Schedule(ctx, sweeper, cfg.SweepInterval)

	// 4. HTTP API
	h := &api.Handler{
		Catalog: catalog.MustNew(),
		Toggles: toggles,
		Hooks:   redact.Hooks(filter),
		Sweeper: sweeper,
	}
	r := gin.New()
	r.Use(gin.Recovery(), api.CORS())
	h.Register(r.Group("/api"))
	r.GET("/metrics", api.Metrics())

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: r}
	go func() {
		slog.Info("HTTP API listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	// 5. Graceful shutdown
	<-ctx.Done()
	slog.Info("shutdown signal received, finalizing disk writes")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown", "error", err)
	}
	if router != nil {
		router.Stop()
	}
	if embedded != nil {
		embedded.Wait()
	}
	slog.Info("persistence complete, exiting")
}

func setupLogger(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func openAccounts(ctx context.Context, cfg config.Config) (accounts.Lookup, func(), error) {
	if cfg.DatabaseURL == "" {
		slog.Warn("no DATABASE_URL set, using an empty in-memory account directory")
		return accounts.NewMemory(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	lookup, err := accounts.NewPGLookup(pool, cfg.TablePrefix)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return lookup, pool.Close, nil
}

func newEraser(cfg config.Config) sweep.Eraser {
	if cfg.EraserURL == "" {
		return eraser.Func(func(ctx context.Context, email string) error {
			slog.Warn("no eraser endpoint configured, skipping erasure")
			return nil
		})
	}
	return eraser.NewHTTPEraser(cfg.EraserURL, cfg.EraserToken, cfg.EraserTimeout)
}
