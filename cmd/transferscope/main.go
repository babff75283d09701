package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"transferscope/internal/aggregate"
	"transferscope/internal/api"
	"transferscope/internal/cache"
	"transferscope/internal/chain"
	"transferscope/internal/config"
	"transferscope/internal/feed"
	"transferscope/internal/ingest"
	"transferscope/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "transferscope",
		Short:        "Token transfer tracker",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("rpc", "", "chain RPC URL")
	root.PersistentFlags().String("contract", "", "token contract address")
	root.PersistentFlags().Uint8("token-decimals", 6, "token decimals")
	root.PersistentFlags().String("pg-dsn", "", "Postgres DSN")
	root.PersistentFlags().String("redis-addr", "localhost:6379", "Redis address")
	root.PersistentFlags().String("redis-password", "", "Redis password")
	root.PersistentFlags().Int("redis-db", 0, "Redis database")
	root.PersistentFlags().Uint64("start-block", 11975000, "first block to index")
	root.PersistentFlags().Uint64("batch-size", 100, "blocks per ingestion cycle")
	root.PersistentFlags().Int("max-retries", 3, "RPC retry attempts")
	root.PersistentFlags().Duration("retry-delay", time.Second, "delay between RPC retries")
	root.PersistentFlags().Duration("block-time", 2*time.Second, "average chain block time")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion scheduler and API server",
		RunE:  runServe,
	}
	serveCmd.Flags().Int("port", 3000, "HTTP listen port")

	backfillCmd := &cobra.Command{
		Use:   "backfill",
		Short: "Ingest batches until the chain head is reached, then exit",
		RunE:  runBackfill,
	}

	root.AddCommand(serveCmd, backfillCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

type app struct {
	cfg       config.Config
	logger    *zap.Logger
	client    *chain.Client
	gateway   *chain.Gateway
	ledger    *postgres.Store
	kv        cache.KV
	cache     *cache.Store
	engine    *aggregate.Engine
	scheduler *ingest.Scheduler
	close     func()
}

func buildApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		logger.Sync()
		return nil, err
	}

	ledger, err := postgres.NewStore(ctx, cfg.DatabaseDSN, logger)
	if err != nil {
		client.Close()
		logger.Sync()
		return nil, err
	}

	var kv cache.KV
	redisKV, err := cache.NewRedisKV(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Warn("redis unavailable, falling back to in-memory cache", zap.Error(err))
		kv = cache.NewMemoryKV()
	} else {
		kv = redisKV
	}

	cacheStore := cache.NewStore(kv, logger)
	gateway := chain.NewGateway(client, common.HexToAddress(cfg.ContractAddress), cfg.MaxRetries, cfg.RetryDelay, logger)
	engine := aggregate.NewEngine(ledger, cacheStore, logger)
	scheduler := ingest.NewScheduler(ingest.Config{
		StartBlock:    cfg.StartBlock,
		BatchSize:     cfg.BatchSize,
		TokenDecimals: cfg.TokenDecimals,
		Interval:      cfg.BlockTime,
	}, gateway, ledger, cacheStore, engine, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		client:    client,
		gateway:   gateway,
		ledger:    ledger,
		kv:        kv,
		cache:     cacheStore,
		engine:    engine,
		scheduler: scheduler,
		close: func() {
			if redisKV != nil {
				redisKV.Close()
			}
			ledger.Close()
			client.Close()
			logger.Sync()
		},
	}, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	a.logger.Info("tracker start",
		zap.String("contract", a.cfg.ContractAddress),
		zap.Uint64("start_block", a.cfg.StartBlock),
		zap.Uint64("batch_size", a.cfg.BatchSize),
		zap.Duration("interval", a.cfg.BlockTime),
		zap.Int("port", a.cfg.Port),
	)

	a.scheduler.Start(ctx)

	broadcaster := feed.NewBroadcaster(a.gateway, a.logger)

	server := api.NewServer(api.ServerOpts{
		Stats:     a.engine,
		Head:      a.gateway,
		Cache:     a.cache,
		Feed:      broadcaster,
		Logger:    a.logger,
		Port:      a.cfg.Port,
		BlockTime: a.cfg.BlockTime,
		Decimals:  a.cfg.TokenDecimals,
	})
	return server.Listen(ctx)
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	a.logger.Info("backfill start",
		zap.String("contract", a.cfg.ContractAddress),
		zap.Uint64("start_block", a.cfg.StartBlock),
		zap.Uint64("batch_size", a.cfg.BatchSize),
	)
	return a.scheduler.Backfill(ctx)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
