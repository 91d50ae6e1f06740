package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/intent"
	intentmemory "github.com/aifuun/yorutsuke-v2-sub006/internal/intent/store/memory"
	intentpostgres "github.com/aifuun/yorutsuke-v2-sub006/internal/intent/store/postgres"
	intentredis "github.com/aifuun/yorutsuke-v2-sub006/internal/intent/store/redis"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/permit/authority"
	pconfig "github.com/aifuun/yorutsuke-v2-sub006/internal/permit/config"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/permit/handler"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/permit/metrics"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/platform/config"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/platform/httpserver"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/platform/logger"
	platformredis "github.com/aifuun/yorutsuke-v2-sub006/internal/platform/redis"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/platform/httputil"
)

// main wires the signature authority: keyring, tier table, intent ledger and
// the HTTP surface. Business logic lives in internal/permit.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "permit-authority: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.AuthorityFromEnv()
	if err != nil {
		return err
	}
	log, logCloser, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	if cfg.Log.Dir != "" {
		if n, err := logger.Cleanup(cfg.Log.Dir, cfg.Log.RetentionDays, time.Now()); err == nil && n > 0 {
			log.Info("removed old log files", "count", n)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tiers, err := pconfig.LoadFile(cfg.TiersFile)
	if err != nil {
		return err
	}
	keyring, err := authority.NewKeyring(cfg.Keys)
	if err != nil {
		return err
	}
	if _, err := keyring.Active(); err != nil {
		return fmt.Errorf("refusing to start without signing keys: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	auth, err := authority.New(tiers, keyring,
		authority.WithLogger(log),
		authority.WithMetrics(metrics.New(reg)),
	)
	if err != nil {
		return err
	}

	store, closeStore, err := ledgerStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore.Close()
	ledger, err := intent.NewLedger(store, intent.WithTTL(cfg.IntentTTL), intent.WithLogger(log))
	if err != nil {
		return err
	}
	go ledger.RunJanitor(ctx, time.Hour)

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	handler.New(auth, ledger, log).Register(r)

	srv := httpserver.New(cfg.Addr, r)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting permit authority", "addr", cfg.Addr, "ledger", cfg.LedgerBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info("permit authority stopped")
	return nil
}

// ledgerStore opens the configured intent backend. Memory keeps replay
// within one process; redis and postgres share it across replicas.
func ledgerStore(ctx context.Context, cfg config.Authority, log *slog.Logger) (intent.Store, io.Closer, error) {
	switch cfg.LedgerBackend {
	case "redis":
		client, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return intentredis.New(client), client, nil
	case "postgres":
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		s := intentpostgres.New(db)
		if err := s.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return s, db, nil
	case "memory", "":
		log.Warn("intent ledger is in memory; replays do not survive restarts")
		return intentmemory.New(), nopCloser{}, nil
	}
	return nil, nil, fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
