// Command ingestd watches a staging directory for drive-test exports,
// stores each file as one document and archives the source.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/celllog/internal/archive"
	"github.com/JonMunkholm/celllog/internal/config"
	"github.com/JonMunkholm/celllog/internal/dispatch"
	"github.com/JonMunkholm/celllog/internal/geocode"
	"github.com/JonMunkholm/celllog/internal/ingest"
	"github.com/JonMunkholm/celllog/internal/journal"
	"github.com/JonMunkholm/celllog/internal/logging"
	"github.com/JonMunkholm/celllog/internal/store"
	"github.com/JonMunkholm/celllog/internal/watch"
	"github.com/JonMunkholm/celllog/internal/web"
)

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("ingestd stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestd stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	profiles, err := config.LoadProfiles(cfg.Store.ProfilesFile)
	if err != nil {
		return err
	}

	writeProfile, err := profiles.Resolve(cfg.Store.WriteProfile)
	if err != nil {
		return err
	}
	writeDB, err := store.Open(ctx, cfg.Store.WriteProfile, writeProfile, cfg.Store.MaxConns)
	if err != nil {
		return err
	}
	defer writeDB.Close()

	if err := writeDB.EnsureSchema(ctx); err != nil {
		return err
	}

	// The read profile only serves /warehouse; the daemon runs without it.
	var warehouse web.WarehouseReader
	if readProfile, err := profiles.Resolve(cfg.Store.ReadProfile); err != nil {
		slog.Warn("read profile unavailable, warehouse endpoint disabled", "error", err)
	} else if readDB, err := store.Open(ctx, cfg.Store.ReadProfile, readProfile, cfg.Store.MaxConns); err != nil {
		slog.Warn("read profile connection failed, warehouse endpoint disabled", "error", err)
	} else {
		defer readDB.Close()
		warehouse = readDB.Reader()
	}

	jrnl, err := journal.Open(ctx, cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer jrnl.Close()

	var enricher ingest.Enricher = ingest.NopEnricher{}
	if cfg.Geocode.Enabled {
		enricher = ingest.CityEnricher{Geocoder: geocode.NewNominatim(geocode.Options{
			BaseURL:   cfg.Geocode.URL,
			UserAgent: cfg.Geocode.UserAgent,
			Timeout:   cfg.Geocode.Timeout,
			CellLevel: cfg.Geocode.CellLevel,
		})}
		slog.Info("city enrichment enabled", "url", cfg.Geocode.URL)
	}

	pipeline := ingest.NewPipeline(ingest.Deps{
		Store: writeDB.Writer(store.RetryPolicy{
			Attempts: cfg.Store.RetryAttempts,
			Backoff:  cfg.Store.RetryBackoff,
			Timeout:  cfg.Store.Timeout,
		}),
		Archiver: archive.New(archive.Options{
			BackupDir: cfg.Archive.BackupDir,
			FailedDir: cfg.Archive.FailedDir,
			Attempts:  cfg.Archive.MoveAttempts,
			Backoff:   cfg.Archive.MoveBackoff,
		}),
		Enricher: enricher,
		Journal:  jrnl,
	}, ingest.Options{
		SettleDelay: cfg.Archive.SettleDelay,
		WriteEmpty:  cfg.Store.WriteEmpty,
	})

	disp := dispatch.New(pipeline, dispatch.Options{
		MaxConcurrent: cfg.Watch.MaxConcurrent,
		QuietPeriod:   cfg.Watch.QuietPeriod,
	})

	if err := os.MkdirAll(cfg.Watch.StagingDir, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	watcher := watch.New(cfg.Watch.StagingDir, disp)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return disp.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })

	if cfg.Watch.ScanOnStart {
		g.Go(func() error {
			// Scan only after the watch is registered so no file falls
			// between the two.
			select {
			case <-watcher.Ready():
			case <-gctx.Done():
				return nil
			}
			n, err := watcher.Scan()
			if err != nil {
				return err
			}
			slog.Info("startup scan complete", "files", n)
			return nil
		})
	}

	g.Go(func() error {
		watcher.Sweep(gctx, cfg.Watch.RescanInterval)
		return nil
	})

	if cfg.Server.Enabled {
		server := web.NewServer(web.Deps{
			Store:      writeDB,
			Dispatcher: disp,
			Journal:    jrnl,
			Warehouse:  warehouse,
		}, cfg.Server)

		g.Go(func() error {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("ops server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	runErr := g.Wait()

	slog.Info("shutting down...")
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if active := disp.Status().Limiter.Active; active > 0 {
		slog.Info("waiting for in-flight files", "active", active)
	}
	if err := disp.Drain(drainCtx); err != nil {
		slog.Warn("in-flight files did not finish in time", "error", err)
	}

	return runErr
}
