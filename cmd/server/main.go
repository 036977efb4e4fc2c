package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ecomjrm/fulfillment-sync/internal/audit"
	"github.com/ecomjrm/fulfillment-sync/internal/balance"
	"github.com/ecomjrm/fulfillment-sync/internal/cache"
	"github.com/ecomjrm/fulfillment-sync/internal/config"
	"github.com/ecomjrm/fulfillment-sync/internal/courier"
	"github.com/ecomjrm/fulfillment-sync/internal/credentials"
	"github.com/ecomjrm/fulfillment-sync/internal/db"
	"github.com/ecomjrm/fulfillment-sync/internal/fulfillment"
	"github.com/ecomjrm/fulfillment-sync/internal/grpcserver"
	"github.com/ecomjrm/fulfillment-sync/internal/kafka"
	"github.com/ecomjrm/fulfillment-sync/internal/logger"
	"github.com/ecomjrm/fulfillment-sync/internal/repository/postgresql"
	"github.com/ecomjrm/fulfillment-sync/internal/server"
	"github.com/ecomjrm/fulfillment-sync/internal/tracking"
	"github.com/ecomjrm/fulfillment-sync/internal/validation"
)

func main() {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.ValidateServer()
	}
	if err != nil {
		logger.New("info").Fatal("failed to load config", zap.Error(err))
	}
	log := logger.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("service stopped with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("service stopped")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	database, err := db.NewDb(ctx, cfg.DB.DSN())
	if err != nil {
		return err
	}
	defer database.Close()

	health := map[string]server.Pinger{"postgres": database}
	grpcHealth := map[string]grpcserver.Pinger{"postgres": database}

	rdb, err := cache.Connect(ctx, &redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, 3, log)
	if err != nil {
		log.Warn("redis unavailable, running without cache and scheduler lock", zap.Error(err))
		rdb = nil
	}
	redisCache := cache.New(rdb, log)
	if redisCache.Enabled() {
		defer func() { _ = rdb.Close() }()
		health["redis"] = redisCache
		grpcHealth["redis"] = redisCache
	}

	orderRepo := postgresql.NewOrderRepo(database)
	historyRepo := postgresql.NewHistoryRepo(database)
	shipmentRepo := postgresql.NewShipmentRepo(database)
	eventRepo := postgresql.NewTrackingEventRepo(database)
	credentialRepo := postgresql.NewCredentialRepo(database)
	auditRepo := postgresql.NewAuditRepo(database)
	outboxRepo := postgresql.NewOutboxTaskRepo(database)
	jobRepo := postgresql.NewTrackingJobRepo(database)
	userRepo := postgresql.NewUserRepo(database)

	if cfg.Auth.AdminUser != "" && cfg.Auth.AdminPass != "" {
		if err := userRepo.EnsureUser(ctx, cfg.Auth.AdminUser, cfg.Auth.AdminPass, server.RoleSuperAdmin); err != nil {
			return err
		}
	}

	recorder := audit.NewRecorder(database, auditRepo, outboxRepo, cfg.Kafka.Topic, log)

	cipher, err := credentials.NewCipher(cfg.Encryption.CredentialKey)
	if err != nil {
		return err
	}
	resolver := credentials.NewResolver(credentialRepo, cipher, courier.Credentials{
		APIKey:   cfg.Courier.APIKey,
		Endpoint: cfg.Courier.Endpoint,
	}, log)
	provider := courier.NewProvider(resolver, func(c courier.Credentials) courier.Client {
		return courier.NewHTTPClient(c, cfg.Courier.HTTPTimeout, log)
	}, log)

	credentialStore := credentials.NewStore(database, credentialRepo, resolver, cipher, recorder, provider, redisCache, validation.New(), log)
	balanceService := balance.NewService(provider, redisCache, cfg.Courier.BalanceTTL, log)

	fulfillmentService := fulfillment.NewService(database, orderRepo, shipmentRepo, historyRepo, eventRepo, provider, recorder, cfg.Shipper, storeLocation(log), log)
	refresher := tracking.NewRefresher(database, shipmentRepo, eventRepo, orderRepo, historyRepo, provider, recorder, redisCache, cfg.Tracking, log)
	queue := tracking.NewQueue(jobRepo, recorder, log)
	worker := tracking.NewWorker(database, jobRepo, refresher, cfg.Tracking.JobPollInterval, cfg.Tracking.JobBatchSize, log)
	scheduler := tracking.NewScheduler(refresher, redisCache, cfg.Tracking.ScheduleInterval, cfg.Tracking.LockTTL, log)

	var producer kafka.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = kafka.NewWriterProducer(cfg.Kafka.Brokers, log)
	} else {
		producer = kafka.NewConsoleProducer(log)
	}
	publisher := kafka.NewPublisher(database, outboxRepo, producer, kafka.PublisherConfig{
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
	}, log)
	defer publisher.Shutdown()

	httpServer := server.New(server.Deps{
		Fulfillment: fulfillmentService,
		Credentials: credentialStore,
		Balance:     balanceService,
		Tracking:    refresher,
		Jobs:        queue,
		AuditLog:    recorder,
		AuditSink:   auditRepo,
		Users:       userRepo,
		Health:      health,
	}, cfg.Auth, cfg.Webhooks, log)
	grpcServer := grpcserver.NewServer(grpcHealth, 15*time.Second, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpServer.Run(gctx, cfg.HTTPPort) })
	g.Go(func() error { return grpcServer.Run(gctx, cfg.GRPCPort) })
	g.Go(func() error { return publisher.Run(gctx) })
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })

	log.Info("fulfillment sync started",
		zap.String("http_port", cfg.HTTPPort),
		zap.String("grpc_port", cfg.GRPCPort),
		zap.Bool("redis", redisCache.Enabled()),
		zap.Strings("kafka_brokers", cfg.Kafka.Brokers))

	return g.Wait()
}

// storeLocation is the zone pickup dates are checked in.
func storeLocation(log *zap.Logger) *time.Location {
	loc, err := time.LoadLocation("Asia/Kuala_Lumpur")
	if err != nil {
		log.Warn("tz database unavailable, using fixed UTC+8", zap.Error(err))
		return time.FixedZone("MYT", 8*60*60)
	}
	return loc
}
