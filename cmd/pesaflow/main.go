package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/tumaini/pesaflow/pkg/config"
	"github.com/tumaini/pesaflow/pkg/etl"
	"github.com/tumaini/pesaflow/pkg/report"
	"github.com/tumaini/pesaflow/pkg/store"
	"github.com/tumaini/pesaflow/pkg/store/badgerdb"
	"github.com/tumaini/pesaflow/pkg/store/memory"
	"github.com/tumaini/pesaflow/pkg/webhook"
)

const (
	serverReadTimeout  = 10 * time.Second
	serverWriteTimeout = 10 * time.Second
	shutdownTimeout    = 30 * time.Second
	badgerGCInterval   = 10 * time.Minute
	badgerGCRatio      = 0.5
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	cfg := config.Load(log)

	st, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	coordinator := etl.NewCoordinator(st, log)
	webhookHandler := webhook.NewHandler(st, log)
	reportHandler := report.NewHandler(st, log)
	hub := report.NewRunHub(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go hub.Run(ctx)
	go runScheduler(ctx, log, cfg, st, coordinator, hub)
	if bst, ok := st.(*badgerdb.Store); ok && !cfg.InMemory {
		go runBadgerGC(ctx, log, bst)
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/confirmation", webhookHandler.HandleConfirmation).Methods(http.MethodPost)
	r.HandleFunc("/api/validation", webhookHandler.HandleValidation).Methods(http.MethodPost)
	r.HandleFunc("/v1/metrics", reportHandler.HandleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/v1/customers", reportHandler.HandleCustomers).Methods(http.MethodGet)
	r.HandleFunc("/v1/heatmap", reportHandler.HandleHeatmap).Methods(http.MethodGet)
	r.HandleFunc("/v1/trends/{resolution}", reportHandler.HandleTrends).Methods(http.MethodGet)
	r.HandleFunc("/v1/live", hub.HandleLive)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Dur("run_interval", cfg.RunInterval).
			Msg("pesaflow listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}

func openStore(cfg config.Config) (store.Store, error) {
	if cfg.InMemory {
		return memory.New(), nil
	}
	return badgerdb.New(badgerdb.Config{
		Path:        cfg.DataDir,
		MaxMemoryMB: cfg.MaxMemoryMB,
	})
}

// runScheduler triggers a pipeline run on a fixed cadence. The scheduler,
// not the pipeline, owns the watermark: it reads the committed boundary
// before each run and advances it only after a fully successful one.
func runScheduler(
	ctx context.Context,
	log zerolog.Logger,
	cfg config.Config,
	st store.Store,
	coordinator *etl.Coordinator,
	hub *report.RunHub,
) {
	ticker := time.NewTicker(cfg.RunInterval)
	defer ticker.Stop()

	runOnce := func() {
		var since *time.Time
		wm, ok, err := st.Watermark(ctx)
		if err != nil {
			log.Error().Err(err).Msg("failed to read watermark, skipping run")
			return
		}
		if ok {
			since = &wm
		}

		result, err := coordinator.Run(ctx, since)
		if err != nil {
			// Retry is this scheduler's call; the next tick is the retry.
			log.Error().Err(err).Msg("scheduled run failed")
			return
		}

		if !result.Empty {
			if err := st.SetWatermark(ctx, result.MaxTransactionTime); err != nil {
				log.Error().Err(err).Msg("failed to advance watermark")
			}
		}
		hub.BroadcastRun(result)
	}

	// One run at startup, then on the tick.
	runOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}

// runBadgerGC reclaims value-log space periodically.
func runBadgerGC(ctx context.Context, log zerolog.Logger, st *badgerdb.Store) {
	ticker := time.NewTicker(badgerGCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := st.RunGC(badgerGCRatio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				log.Warn().Err(err).Msg("badger gc failed")
			}
		}
	}
}
