package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"soldi/internal/backend"
	"soldi/internal/config"
	"soldi/internal/connectivity"
	apphttp "soldi/internal/http"
	"soldi/internal/localview"
	applog "soldi/internal/log"
	"soldi/internal/queue"
	"soldi/internal/router"
	"soldi/internal/storage"
	syncpkg "soldi/internal/sync"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(os.Getenv("LOG_LEVEL")),
		Component: applog.ComponentApp,
	})
	applog.SetDefault(logger)

	logger.Info("Starting soldi-sync")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Process exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Stopped gracefully")
}

func run(cfg *config.Config, logger *applog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Durable queue store. Every enqueued write survives restart from here.
	store, err := storage.Open(cfg.QueueDBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("Opened queue store", "path", cfg.QueueDBPath)

	// Remote repository.
	factory := backend.NewFactory(cfg, logger.WithComponent(applog.ComponentBackend).Logger)
	res, err := factory.CreateBackend(ctx)
	if err != nil {
		return err
	}
	if res.Cleanup != nil {
		defer func() {
			if err := res.Cleanup(); err != nil {
				logger.Warn("Backend cleanup failed", "error", err)
			}
		}()
	}

	// Connectivity monitor.
	monitor := connectivity.NewMonitor(
		connectivity.DialProbe{Addr: cfg.ProbeAddr},
		connectivity.Config{
			PollInterval: cfg.PollInterval,
			Debounce:     cfg.OnlineDebounce,
		},
	)
	if err := monitor.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := monitor.Stop(stopCtx); err != nil {
			logger.Warn("Monitor stop failed", "error", err)
		}
	}()

	// Queue service over the store and remote.
	svc := queue.NewService(store, res.Repo, monitor.IsOnline, queue.Config{
		BackoffCap: cfg.BackoffCap,
	})
	defer svc.Close()

	// Reclaim records stranded in syncing by a previous crash.
	if err := svc.Recover(ctx); err != nil {
		return err
	}

	// Coordinator folds queue events and connectivity into the sync phase.
	coord := syncpkg.NewCoordinator(svc, monitor, syncpkg.Config{
		SyncedDisplay: cfg.SyncedDisplay,
	})
	if err := coord.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := coord.Stop(stopCtx); err != nil {
			logger.Warn("Coordinator stop failed", "error", err)
		}
	}()

	// Write path: optimistic local view in front of the direct/queued router.
	local := localview.New()
	wr := router.NewRouter(local, res.Repo, svc, monitor.IsOnline)

	// Status and write API.
	srv := apphttp.NewServer(":"+cfg.Port, coord, svc, wr, local)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting status API", "port", cfg.Port, "backend", cfg.RemoteBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
