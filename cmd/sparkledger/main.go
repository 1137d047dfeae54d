package main

import (
	"SparkLedger/internal/config"
	"SparkLedger/internal/core"
	"SparkLedger/internal/feed"
	"SparkLedger/internal/ingestion"
	"SparkLedger/internal/ledger"
	"SparkLedger/internal/market"
	"SparkLedger/internal/observability"
	"SparkLedger/internal/persistence"
	"SparkLedger/internal/projection"
	"SparkLedger/internal/query"
	"SparkLedger/internal/server"
	"SparkLedger/internal/treasury"
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

func main() {
	logger := observability.NewLogger("main")
	if err := run(logger); err != nil {
		logger.Fatal().Err(err).Msg("sparkledger exited")
	}
}

func run(logger zerolog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level := observability.ParseLogLevel(cfg.LogLevel)
	component := func(name string) zerolog.Logger {
		return observability.NewLoggerTo(os.Stdout, name, level)
	}
	logger = component("main")
	logger.Info().Msg("SparkLedger starting")

	eco, err := config.LoadEconomy(cfg.EconomyFile)
	if err != nil {
		return fmt.Errorf("load economy: %w", err)
	}
	eco = eco.Apply(cfg)

	// Producers (servers, consumers, ticker) stop on ctx; workers drain
	// their channels and stop on workerCtx after the channels close.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("postgres open: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	logger.Info().Msg("postgres connected")

	migrator := persistence.NewMigrator(db, cfg.MigrationsDir, component("migrate"))
	if _, err := migrator.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// --- Observability ---
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	healthChecker := observability.NewHealthChecker()
	healthChecker.AddCheck("postgres", func() error {
		pingCtx, c := context.WithTimeout(context.Background(), 2*time.Second)
		defer c()
		return db.PingContext(pingCtx)
	})

	// --- Channels ---
	// Persist blocks (backpressure), the others drop when full
	persistChan := make(chan core.Output, cfg.PersistChanSize)
	projectionChan := make(chan core.Output, cfg.ProjectionChanSize)
	feedChan := make(chan core.Output, cfg.ProjectionChanSize)
	var publishChan chan core.Output
	if cfg.NATSEnabled {
		publishChan = make(chan core.Output, cfg.ProjectionChanSize)
	}

	// --- Engine ---
	mkt := market.New(eco.Market)
	engine := core.NewEngine(
		ledger.New(eco.Rules),
		mkt,
		treasury.New(eco.Treasury, mkt),
		core.Options{
			LRUCapacity:    cfg.IdempotencyLRUCapacity,
			DBChecker:      persistence.NewPostgresIdempotencyChecker(db),
			Metrics:        metrics,
			PersistChan:    persistChan,
			ProjectionChan: projectionChan,
			PublishChan:    publishChan,
			FeedChan:       feedChan,
		},
	)

	// --- Recovery: snapshot + replay ---
	snapMgr := persistence.NewSnapshotManager(db)
	engineLogger := component("engine")
	if err := recoverEngine(ctx, engine, snapMgr, eco.Rules, metrics, engineLogger); err != nil {
		return fmt.Errorf("recover: %w", err)
	}

	// Projections may have missed dropped outputs before the restart
	var opening map[string]int64
	engine.View(func(l *ledger.Ledger, _ int64) {
		opening = make(map[string]int64, len(l.Opening))
		for k, v := range l.Opening {
			opening[k] = v
		}
	})
	if err := projection.RebuildProjections(ctx, db, opening, component("projection")); err != nil {
		return fmt.Errorf("rebuild projections: %w", err)
	}

	// --- Goroutines ---
	errChan := make(chan error, 16)
	var producers, workers sync.WaitGroup
	goProducer := func(name string, fn func() error) {
		producers.Add(1)
		go func() {
			defer producers.Done()
			if err := fn(); err != nil && ctx.Err() == nil {
				errChan <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}
	goWorker := func(name string, fn func() error) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := fn(); err != nil && workerCtx.Err() == nil {
				errChan <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	// 1. Persistence worker
	persistWorker := persistence.NewPersistenceWorker(db, persistChan, cfg.PersistBatchSize, cfg.PersistFlushTimeout, metrics, component("persistence"))
	goWorker("persistence", func() error { return persistWorker.Run(workerCtx) })

	// 2. Projection worker
	projWorker := projection.NewProjectionWorker(db, projectionChan, metrics, component("projection"))
	goWorker("projection", func() error { return projWorker.Run(workerCtx) })

	// 3. Feed hub
	hub := feed.NewHub(feedChan, metrics, component("feed"))
	goWorker("feed", func() error { return hub.Run(workerCtx) })

	// 4. NATS ingestion and outbound publishing
	var natsSubscriber *ingestion.NATSSubscriber
	if cfg.NATSEnabled {
		ingestLogger := component("ingestion")
		nc, js, err := ingestion.ConnectNATS(cfg.NATSURL, ingestLogger)
		if err != nil {
			return err
		}
		defer nc.Close()
		healthChecker.AddCheck("nats", func() error {
			if nc.Status() != nats.CONNECTED {
				return fmt.Errorf("nats status %s", nc.Status())
			}
			return nil
		})

		natsSubscriber, err = startNATS(ctx, workerCtx, js, engine, publishChan, metrics, ingestLogger, goProducer, goWorker)
		if err != nil {
			return err
		}
	} else {
		logger.Warn().Msg("NATS disabled, ingestion and outbound publishing are off")
	}

	// 5. gRPC + HTTP gateway
	serverLogger := component("server")
	api := server.NewAPI(engine, query.NewQueryService(db), query.NewMemoryReader(engine), metrics, serverLogger)
	grpcServer := server.NewGRPCServer(cfg.GRPCAddr, cfg.HTTPAddr, api, serverLogger)
	goProducer("grpc", func() error { return grpcServer.StartGRPC(ctx) })
	goProducer("http", func() error { return grpcServer.StartHTTPGateway(ctx) })

	// 6. Admin: metrics, health, feed
	admin := server.AdminHandler(prometheus.DefaultGatherer, healthChecker, hub.Handler())
	goProducer("admin", func() error { return server.ServeAdmin(ctx, cfg.AdminAddr, admin, serverLogger) })

	// 7. Economy ticker
	goProducer("ticker", func() error {
		runTicker(ctx, engine, cfg.TickInterval, engineLogger)
		return nil
	})

	// 8. Periodic snapshots and channel gauges
	goProducer("snapshots", func() error {
		runPeriodicSnapshots(ctx, engine, snapMgr, cfg.SnapshotInterval, metrics, component("persistence"))
		return nil
	})
	goProducer("channels", func() error {
		monitorChannels(ctx, metrics, map[string]chan core.Output{
			"persist":    persistChan,
			"projection": projectionChan,
			"publish":    publishChan,
			"feed":       feedChan,
		})
		return nil
	})

	healthChecker.SetReady(true)
	grpcServer.SetServing(true)
	logger.Info().
		Int64("sequence", engine.GetSequence()).
		Str("grpc", cfg.GRPCAddr).
		Str("http", cfg.HTTPAddr).
		Str("admin", cfg.AdminAddr).
		Msg("SparkLedger ready")

	// --- Wait for shutdown ---
	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case runErr = <-errChan:
		logger.Error().Err(runErr).Msg("component failed, shutting down")
	}

	// --- Graceful shutdown ---
	healthChecker.SetReady(false)
	grpcServer.SetServing(false)
	cancel()
	if natsSubscriber != nil {
		natsSubscriber.Stop()
	}
	producers.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := takeSnapshot(shutdownCtx, engine, snapMgr, metrics); err != nil {
		logger.Error().Err(err).Msg("final snapshot failed")
	} else {
		logger.Info().Int64("sequence", engine.GetSequence()).Msg("final snapshot saved")
	}

	// Nothing submits any more; let the workers drain
	close(persistChan)
	close(projectionChan)
	close(feedChan)
	if publishChan != nil {
		close(publishChan)
	}

	done := make(chan struct{})
	go func() {
		workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("workers did not drain before the shutdown deadline")
		cancelWorkers()
	}

	logger.Info().Msg("SparkLedger shutdown complete")
	return runErr
}

// startNATS ensures the streams, subscribes the command consumers, and
// starts the ingestor and outbound publisher.
func startNATS(
	ctx, workerCtx context.Context,
	js jetstream.JetStream,
	engine *core.Engine,
	publishChan <-chan core.Output,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	goProducer, goWorker func(string, func() error),
) (*ingestion.NATSSubscriber, error) {
	if err := ingestion.EnsureStreams(ctx, js, logger); err != nil {
		return nil, fmt.Errorf("ensure NATS streams: %w", err)
	}
	if err := ingestion.EnsureOutboundStream(ctx, js, logger); err != nil {
		return nil, fmt.Errorf("ensure outbound stream: %w", err)
	}

	parser, err := ingestion.NewParser()
	if err != nil {
		return nil, fmt.Errorf("compile schemas: %w", err)
	}

	rawChan := make(chan ingestion.RawCommand, 4096)
	subscriber := ingestion.NewNATSSubscriber(js, rawChan, logger)
	if err := subscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}

	ingestor := ingestion.NewIngestor(engine, parser, rawChan, metrics, logger)
	goProducer("ingestor", func() error { return ingestor.Run(ctx) })

	publisher := ingestion.NewOutboundPublisher(js, publishChan, logger)
	goWorker("publisher", func() error { return publisher.Run(workerCtx) })

	return subscriber, nil
}

// monitorChannels exports fan-out channel depth every few seconds.
func monitorChannels(ctx context.Context, metrics *observability.Metrics, chans map[string]chan core.Output) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, ch := range chans {
				if ch != nil {
					metrics.SetChannelMetrics(name, len(ch), cap(ch))
				}
			}
		}
	}
}
