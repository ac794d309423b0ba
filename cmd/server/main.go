package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/gradebook/internal/cache"
	"github.com/JonMunkholm/gradebook/internal/config"
	"github.com/JonMunkholm/gradebook/internal/core"
	"github.com/JonMunkholm/gradebook/internal/logging"
	"github.com/JonMunkholm/gradebook/internal/store"
	"github.com/JonMunkholm/gradebook/internal/web"
	"github.com/joho/godotenv"
)

// backend is the selected store plus its health check and cleanup.
type backend struct {
	store core.Store
	ping  web.Pinger
	close func()
}

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()

	be, err := openStore(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer be.close()

	var opts []core.Option
	if cfg.Cache.Enabled() {
		rdb, err := cache.Connect(ctx, cfg.Cache)
		if err != nil {
			// Lookups still work without the cache.
			slog.Warn("redis unavailable, lookups will not be cached", "addr", cfg.Cache.RedisAddr, "error", err)
		} else {
			defer rdb.Close()
			opts = append(opts, core.WithDirectory(cache.NewDirectory(rdb, be.store, cfg.Cache.TTL)))
			slog.Info("lookup cache enabled", "addr", cfg.Cache.RedisAddr, "ttl", cfg.Cache.TTL.String())
		}
	}

	service := core.NewService(be.store, cfg.Import, opts...)
	server := web.NewServer(service, cfg, be.ping)

	// Cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go service.StartActivityPurge(jobCtx, core.PurgeConfig{
		RetentionDays: cfg.Activity.RetentionDays,
		Interval:      cfg.Activity.PurgeInterval,
	})

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := service.ImportLimiterStatus(); status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := service.WaitForImports(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		cancelJobs()
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}

// openStore connects the configured store driver and migrates the schema
// when asked to.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (*backend, error) {
	if cfg.Driver == config.DriverMemory {
		slog.Warn("using in-memory store; data is lost on exit")
		mem := store.NewMemory()
		return &backend{store: mem, ping: mem, close: func() {}}, nil
	}

	pool, err := store.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pg := store.NewPostgres(pool)

	if cfg.AutoMigrate {
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	slog.Info("connected to database", "max_conns", cfg.MaxConns)
	return &backend{store: pg, ping: pg, close: pool.Close}, nil
}
