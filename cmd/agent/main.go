package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/capture/watch"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/events"
	eventskafka "github.com/aifuun/yorutsuke-v2-sub006/internal/events/kafka"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/intent"
	intentbadger "github.com/aifuun/yorutsuke-v2-sub006/internal/intent/store/badger"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/network"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/permit/admission"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/permit/authority"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/permit/cache"
	permitclient "github.com/aifuun/yorutsuke-v2-sub006/internal/permit/client"
	permitmetrics "github.com/aifuun/yorutsuke-v2-sub006/internal/permit/metrics"
	permitmodels "github.com/aifuun/yorutsuke-v2-sub006/internal/permit/models"
	permitstore "github.com/aifuun/yorutsuke-v2-sub006/internal/permit/store"
	platformbadger "github.com/aifuun/yorutsuke-v2-sub006/internal/platform/badger"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/platform/config"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/platform/kafka"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/platform/logger"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/platform/sqlite"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/platform/telemetry"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/reconcile"
	reconcilemetrics "github.com/aifuun/yorutsuke-v2-sub006/internal/reconcile/metrics"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/reconcile/remote/httpsource"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/reconcile/remote/pgsource"
	recordstore "github.com/aifuun/yorutsuke-v2-sub006/internal/reconcile/store"
	uploadmetrics "github.com/aifuun/yorutsuke-v2-sub006/internal/upload/metrics"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/upload/models"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/upload/queue"
	uploadstore "github.com/aifuun/yorutsuke-v2-sub006/internal/upload/store"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/upload/transport"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/upload/transport/httpput"
	miniotransport "github.com/aifuun/yorutsuke-v2-sub006/internal/upload/transport/minio"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/platform/httpclient"
)

// main wires the capture agent: upload queue, permit cache, intent ledger and
// sync engine, each running on its own trigger.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "agent: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.AgentFromEnv()
	if err != nil {
		return err
	}
	subject, err := id.ParseSubjectID(cfg.SubjectID)
	if err != nil {
		return fmt.Errorf("YORU_SUBJECT_ID: %w", err)
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

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{ServiceName: "yorutsuke-agent", Exporter: cfg.TraceExporter})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("trace flush failed", "error", err)
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := sqlite.Open(filepath.Join(cfg.DataDir, "agent.db"))
	if err != nil {
		return err
	}
	defer db.Close()

	kv, err := platformbadger.Open(platformbadger.Config{
		Path:       filepath.Join(cfg.DataDir, "intents"),
		SyncWrites: true,
		Logger:     log,
	})
	if err != nil {
		return err
	}
	defer kv.Close()
	ledger, err := intent.NewLedger(intentbadger.New(kv), intent.WithTTL(cfg.IntentTTL), intent.WithLogger(log))
	if err != nil {
		return err
	}

	// A fresh permit may end a quota pause before the next periodic check.
	var queued atomic.Pointer[queue.Engine]
	onRefresh := func(_ context.Context, usage *permitmodels.LocalUsage) {
		if q := queued.Load(); q != nil && admission.CanConsume(usage, time.Now()).Reason != admission.ReasonQuotaExceeded {
			q.ResumeQuota()
		}
	}
	permits, err := newPermitCache(cfg, db, onRefresh, log)
	if err != nil {
		return err
	}

	bus := events.NewBus(64, log)
	defer bus.Close()
	monitor := network.NewMonitor(network.DialProber{Addr: cfg.ProbeAddr},
		network.WithInterval(cfg.ProbeInterval),
		network.WithLogger(log),
	)

	engine, err := newQueue(ctx, cfg, db, permits, ledger, bus, monitor, log)
	if err != nil {
		return err
	}
	queued.Store(engine)
	syncer, closeRemote, err := newSyncEngine(ctx, cfg, db, ledger, log)
	if err != nil {
		return err
	}
	defer closeRemote()
	trigger := reconcile.NewTrigger(syncer, subject,
		reconcile.WithSettleDelay(cfg.SettleDelay),
		reconcile.WithInterval(cfg.SyncInterval),
		reconcile.WithTriggerLogger(log),
	)

	go monitor.Run(ctx)
	go trigger.Run(ctx, bus.Subscribe())
	go ledger.RunJanitor(ctx, time.Hour)
	go resumeWhenQuotaReturns(ctx, engine, permits, subject, cfg.QuotaCheckInterval, log)

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		defer producer.Close()
		if err := producer.EnsureTopic(ctx); err != nil {
			log.Warn("could not ensure event topic", "topic", cfg.Kafka.Topic, "error", err)
		}
		go eventskafka.NewForwarder(producer, log).Run(ctx, bus.Subscribe())
	}

	if cfg.WatchDir != "" {
		w, err := watch.New(cfg.WatchDir, subject, engine, watch.WithLogger(log))
		if err != nil {
			return err
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				log.Error("watch folder stopped", "dir", cfg.WatchDir, "error", err)
			}
		}()
	}

	if err := engine.Start(ctx); err != nil {
		return err
	}
	log.Info("agent started", "subject_id", subject.String(), "data_dir", cfg.DataDir)

	<-ctx.Done()
	engine.Stop()
	log.Info("agent stopped")
	return nil
}

func newPermitCache(cfg config.Agent, db *sql.DB, onRefresh func(context.Context, *permitmodels.LocalUsage), log *slog.Logger) (*cache.Cache, error) {
	keyring, err := authority.NewKeyring(cfg.Keys)
	if err != nil {
		return nil, err
	}
	hc, err := httpclient.New(cfg.AuthorityURL, httpclient.WithRetries(3, 500*time.Millisecond, 5*time.Second))
	if err != nil {
		return nil, err
	}
	issuer, err := permitclient.New(hc)
	if err != nil {
		return nil, err
	}
	return cache.New(issuer, keyring, permitstore.NewSQLite(db),
		cache.WithLogger(log),
		cache.WithMetrics(permitmetrics.New(nil)),
		cache.WithOnRefresh(onRefresh),
	)
}

func newQueue(ctx context.Context, cfg config.Agent, db *sql.DB, permits *cache.Cache, ledger *intent.Ledger,
	bus *events.Bus, monitor *network.Monitor, log *slog.Logger) (*queue.Engine, error) {
	presigner, err := miniotransport.New(cfg.MinIO)
	if err != nil {
		return nil, err
	}
	if err := presigner.EnsureBucket(ctx); err != nil {
		log.Warn("could not ensure upload bucket", "bucket", cfg.MinIO.Bucket, "error", err)
	}
	uploader, err := transport.NewUploader(presigner, httpput.New(&http.Client{Timeout: time.Minute}))
	if err != nil {
		return nil, err
	}
	return queue.New(uploadstore.NewSQLite(db), permits, uploader, ledger,
		queue.WithLogger(log),
		queue.WithMetrics(uploadmetrics.New(nil)),
		queue.WithPublisher(bus),
		queue.WithNetwork(monitor),
		queue.WithPollInterval(cfg.PollInterval),
		queue.WithDeleteSource(cfg.DeleteAfterUpload),
	)
}

// newSyncEngine reads the remote snapshot straight from Postgres when a DSN is
// configured and through the HTTP API otherwise.
func newSyncEngine(ctx context.Context, cfg config.Agent, db *sql.DB, ledger *intent.Ledger, log *slog.Logger) (*reconcile.Engine, func(), error) {
	var (
		remote  reconcile.RemoteSource
		cleanup = func() {}
	)
	if cfg.RemoteDSN != "" {
		src, err := pgsource.Open(ctx, cfg.RemoteDSN)
		if err != nil {
			return nil, nil, err
		}
		remote = src
		cleanup = func() { _ = src.Close() }
	} else {
		hc, err := httpclient.New(cfg.RemoteURL,
			httpclient.WithToken(cfg.RemoteToken),
			httpclient.WithRetries(2, time.Second, 10*time.Second),
		)
		if err != nil {
			return nil, nil, err
		}
		if remote, err = httpsource.New(hc); err != nil {
			return nil, nil, err
		}
	}
	engine, err := reconcile.New(remote, recordstore.NewSQLite(db),
		reconcile.WithLogger(log),
		reconcile.WithMetrics(reconcilemetrics.New(nil)),
		reconcile.WithLedger(ledger),
	)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return engine, cleanup, nil
}

// resumeWhenQuotaReturns lifts a quota pause once admission stops reporting
// quota_exceeded, which happens after the permit expires and is reissued.
func resumeWhenQuotaReturns(ctx context.Context, engine *queue.Engine, permits *cache.Cache, subject id.SubjectID, every time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if engine.State() != models.QueuePausedQuota {
				continue
			}
			decision, err := permits.Admit(ctx, subject)
			if err != nil {
				log.Warn("quota check failed", "error", err)
				continue
			}
			if decision.Reason != admission.ReasonQuotaExceeded {
				engine.ResumeQuota()
			}
		}
	}
}
