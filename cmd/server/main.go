// Package main runs the simulation service: the phase orchestrator, the
// HTTP control surface with a websocket status stream, Prometheus metrics,
// and a cron-scheduled snapshot/archive job.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"token-arena/internal/amm"
	"token-arena/internal/api"
	"token-arena/internal/cache"
	"token-arena/internal/config"
	"token-arena/internal/decision"
	"token-arena/internal/domain"
	"token-arena/internal/messaging"
	"token-arena/internal/observability"
	"token-arena/internal/orchestrator"
	"token-arena/internal/pool"
	"token-arena/internal/scheduler"
	"token-arena/internal/storage"
	chstore "token-arena/internal/storage/clickhouse"
	"token-arena/internal/storage/memory"
	"token-arena/internal/storage/migrations"
	pgstore "token-arena/internal/storage/postgres"
)

type stores struct {
	agents    storage.AgentStore
	trades    storage.TradeLog
	messages  storage.MessageStore
	snapshots storage.SnapshotStore
	close     func()
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML configuration")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		logger.SetLevel(level)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("configuration load failed")
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("configuration invalid")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := buildStores(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("storage initialization failed")
	}
	defer st.close()

	poolStore, statusCache, err := buildPool(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("pool initialization failed")
	}

	board := messaging.NewBoard(messaging.Options{Store: st.messages})

	decider, err := buildDecider(cfg)
	if err != nil {
		logger.WithError(err).Fatal("decision collaborator initialization failed")
	}

	sched := scheduler.New(scheduler.Options{
		Decider:         decider,
		Pool:            poolStore,
		Board:           board,
		Logger:          logger,
		MaxConcurrent:   cfg.Decision.MaxConcurrent,
		PerAgentTimeout: time.Duration(cfg.Decision.TimeoutMs) * time.Millisecond,
	})

	orch, err := orchestrator.New(orchestrator.Options{
		Pool:         poolStore,
		Scheduler:    sched,
		Snapshots:    st.snapshots,
		Agents:       st.agents,
		Trades:       st.trades,
		Logger:       logger,
		OnTransition: func() { statusCache.Invalidate(cache.KeyStatus) },
	})
	if err != nil {
		logger.WithError(err).Fatal("orchestrator initialization failed")
	}

	registerCachedResources(statusCache, orch, poolStore)

	apiServer := api.NewServer(api.Options{
		Orchestrator: orch,
		Cache:        statusCache,
		Logger:       logger,
		DefaultRun:   cfg.RunConfig(),
	})

	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: apiServer.Routes(),
	}
	go func() {
		logger.WithField("addr", cfg.Server.ListenAddr).Info("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("http server failed")
		}
	}()

	cronRunner := startSnapshotJob(cfg, poolStore, st.snapshots, logger)

	if cfg.Simulation.AutoStart {
		if err := orch.Start(ctx, cfg.RunConfig()); err != nil {
			logger.WithError(err).Fatal("simulation auto-start failed")
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")

	if err := orch.Stop(); err != nil && !errors.Is(err, orchestrator.ErrNotRunning) {
		logger.WithError(err).Warn("simulation stop failed")
	}
	<-cronRunner.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown failed")
	}
}

// buildStores selects the persistence backend and runs migrations.
func buildStores(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*stores, error) {
	st := &stores{close: func() {}}

	switch cfg.Storage.Backend {
	case "postgres":
		pgPool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := migrations.RunPostgresMigrations(ctx, pgPool); err != nil {
			pgPool.Close()
			return nil, err
		}
		st.agents = pgstore.NewAgentStore(pgPool)
		st.trades = pgstore.NewTradeLog(pgPool)
		st.messages = pgstore.NewMessageStore(pgPool)
		st.snapshots = pgstore.NewSnapshotStore(pgPool)
		st.close = pgPool.Close
		logger.Info("using postgres storage")

	default: // memory
		st.agents = memory.NewAgentStore()
		st.trades = memory.NewTradeLog()
		st.messages = memory.NewMessageStore()
		st.snapshots = memory.NewSnapshotStore()
		logger.Info("using in-memory storage")
	}

	return st, nil
}

// buildPool wires the AMM engine, the pool state store, and the versioned
// state cache, with commit-time cache invalidation and gauge updates.
func buildPool(cfg *config.Config, logger *logrus.Logger) (*pool.Store, *cache.Cache, error) {
	feeRate, err := decimal.NewFromString(cfg.Pool.FeeRate)
	if err != nil {
		return nil, nil, err
	}
	minTradeSize, err := decimal.NewFromString(cfg.Pool.MinTradeSize)
	if err != nil {
		return nil, nil, err
	}
	baseReserve, err := decimal.NewFromString(cfg.Pool.BaseReserve)
	if err != nil {
		return nil, nil, err
	}
	tokenReserve, err := decimal.NewFromString(cfg.Pool.TokenReserve)
	if err != nil {
		return nil, nil, err
	}

	engine, err := amm.NewEngine(feeRate, minTradeSize)
	if err != nil {
		return nil, nil, err
	}

	statusCache := cache.New(time.Duration(cfg.Cache.TTLMs) * time.Millisecond)

	var poolStore *pool.Store
	poolStore, err = pool.NewStore(pool.Options{
		BaseReserve:  baseReserve,
		TokenReserve: tokenReserve,
		Engine:       engine,
		Logger:       logger,
		OnMutate: func() {
			statusCache.Invalidate(cache.KeyPool)
			statusCache.Invalidate(cache.KeyMarket)
			snap := poolStore.Snapshot()
			price, _ := snap.CurrentPrice.Float64()
			observability.UpdatePoolGauges(price, snap.Version)
		},
	})
	if err != nil {
		return nil, nil, err
	}
	return poolStore, statusCache, nil
}

func registerCachedResources(c *cache.Cache, orch *orchestrator.Orchestrator, poolStore *pool.Store) {
	c.Register(cache.KeyStatus,
		func(ctx context.Context) (interface{}, uint64, error) {
			return orch.Status(), orch.StateVersion(), nil
		},
		orch.StateVersion,
	)
	c.Register(cache.KeyPool,
		func(ctx context.Context) (interface{}, uint64, error) {
			snap := poolStore.Snapshot()
			return snap, snap.Version, nil
		},
		poolStore.Version,
	)
	c.Register(cache.KeyMarket,
		func(ctx context.Context) (interface{}, uint64, error) {
			snap := poolStore.MarketSnapshot()
			return snap, snap.Version, nil
		},
		poolStore.Version,
	)
}

func buildDecider(cfg *config.Config) (decision.Decider, error) {
	if cfg.Decision.Endpoint != "" {
		return decision.NewRemoteDecider(decision.RemoteOptions{
			Endpoint:   cfg.Decision.Endpoint,
			Timeout:    time.Duration(cfg.Decision.TimeoutMs) * time.Millisecond,
			RatePerSec: float64(cfg.Decision.RequestsPerSec),
		})
	}
	return decision.NewPersonalityDecider(time.Now().UnixNano()), nil
}

// startSnapshotJob schedules periodic pool snapshot persistence plus the
// optional clickhouse trade/price archive. Already-archived rows are skipped
// via a high-water timestamp.
func startSnapshotJob(cfg *config.Config, poolStore *pool.Store, snapshots storage.SnapshotStore, logger *logrus.Logger) *cron.Cron {
	log := logger.WithField("component", "snapshot-job")

	var archive *chstore.Archive
	if cfg.Storage.ClickhouseDSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		conn, err := chstore.NewConn(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			log.WithError(err).Warn("clickhouse unavailable, archiving disabled")
		} else if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			log.WithError(err).Warn("clickhouse migrations failed, archiving disabled")
		} else {
			archive = chstore.NewArchive(conn)
		}
	}

	var mu sync.Mutex
	var lastArchived time.Time

	runner := cron.New()
	runner.AddFunc(cfg.Snapshot.Cron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		snap := poolStore.Snapshot()
		if err := snapshots.SavePoolSnapshot(ctx, &snap); err != nil {
			observability.RecordPersistenceFailure()
			log.WithError(err).Warn("periodic pool snapshot failed")
		} else {
			observability.RecordSnapshotSaved()
		}

		if archive == nil {
			return
		}

		mu.Lock()
		cutoff := lastArchived
		mu.Unlock()

		var trades []domain.TradeRecord
		for _, t := range snap.RecentTrades {
			if t.Timestamp.After(cutoff) {
				trades = append(trades, t)
			}
		}
		var prices []domain.PricePoint
		for _, p := range snap.PriceHistory {
			if p.Timestamp.After(cutoff) {
				prices = append(prices, p)
			}
		}

		if err := archive.ArchiveTrades(ctx, trades); err != nil {
			log.WithError(err).Warn("trade archive failed")
			return
		}
		if err := archive.ArchivePrices(ctx, prices, snap.Version); err != nil {
			log.WithError(err).Warn("price archive failed")
			return
		}

		mu.Lock()
		if len(trades) > 0 {
			lastArchived = trades[len(trades)-1].Timestamp
		}
		if len(prices) > 0 && prices[len(prices)-1].Timestamp.After(lastArchived) {
			lastArchived = prices[len(prices)-1].Timestamp
		}
		mu.Unlock()
	})
	runner.Start()
	return runner
}
