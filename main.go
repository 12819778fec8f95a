package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"social-publisher/domain/repository"
	"social-publisher/infrastructure/cache"
	"social-publisher/infrastructure/clients"
	"social-publisher/infrastructure/configuration"
	"social-publisher/infrastructure/logger"
	"social-publisher/infrastructure/persistence"
	"social-publisher/infrastructure/pubsub"
	"social-publisher/infrastructure/realtime"
	"social-publisher/infrastructure/servicebus"
	"social-publisher/infrastructure/utils"
	"social-publisher/infrastructure/worker"
	httpHandler "social-publisher/interfaces/http"
	"social-publisher/server"
	"social-publisher/usecase"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"golang.org/x/sync/errgroup"
)

var httpServer *http.Server

func recoverPanic() {
	if err := recover(); err != nil {
		logger.GetLogger().WithField("error", err).Error("Application panic recovered")
	}
}

func main() {
	defer recoverPanic()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	g, ctx := errgroup.WithContext(ctx)

	cfg := configuration.C
	app := cfg.App
	if lvl, err := logrus.ParseLevel(app.LogLevel); err == nil && app.LogLevel != "" {
		logger.SetLevel(lvl)
	}

	db, err := persistence.NewPostgreSQLDB()
	if err != nil {
		logger.GetLogger().WithField("error", err).Fatal("PostgreSQL is required")
	}
	defer db.Close()
	if err := persistence.EnsureSchema(db); err != nil {
		logger.GetLogger().WithField("error", err).Fatal("Failed ensuring schema")
	}

	sealer, err := utils.NewSealer(cfg.Security.CredentialKey)
	if err != nil {
		logger.GetLogger().WithField("error", err).Fatal("Invalid credential key")
	}
	if !sealer.Enabled() {
		logger.GetLogger().Warn("Credential sealing disabled, tokens are stored as given")
	}

	connectionRepo, mssqlDb := initiateCredentialStore(db, sealer)
	if mssqlDb != nil {
		defer mssqlDb.Close()
	}
	jobRepo := persistence.NewPublishJobRepository(db)
	taskRepo := persistence.NewScheduledTaskRepository(db)
	campaignRepo := persistence.NewAdCampaignRepository(db)
	snapshotRepo, mongoDb := initiateSnapshotStore(db)
	if mongoDb != nil {
		defer func() { _ = mongoDb.Disconnect(context.Background()) }()
	}
	states, redisClient := initiateLinkStateStore(ctx)
	if redisClient != nil {
		defer redisClient.Close()
	}

	health := persistence.NewHealthRepository(db, mssqlDb, mongoDb)
	if redisClient != nil {
		health.With("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}

	hub := realtime.NewJobHub()
	events := []repository.IJobEventPublisher{hub}
	if pubSubClient, err := pubsub.NewPubSub(ctx, cfg.Pubsub.ProjectID); err != nil {
		logger.GetLogger().WithField("error", err).Info("Pub/Sub not configured - job events stay local")
	} else {
		publisher := pubsub.NewJobEventPublisher(pubSubClient, cfg.Pubsub.Topic)
		defer publisher.Close()
		events = append(events, publisher)
	}
	if sbClient, err := servicebus.NewServiceBus(ctx, cfg.ServiceBus.Namespace); err != nil {
		logger.GetLogger().WithField("error", err).Info("Service Bus not configured - job events stay local")
	} else {
		events = append(events, servicebus.NewJobEventSender(sbClient, cfg.ServiceBus.Queue))
	}

	registry := clients.NewRegistry(cfg)
	logger.GetLogger().WithField("networks", registry.Networks()).Info("Provider clients ready")

	connectionUC := usecase.NewConnectionUsecase(connectionRepo, states, registry)
	publishUC := usecase.NewPublishUsecase(jobRepo, taskRepo, connectionUC, registry, usecase.PublishConfig{
		Concurrency:      cfg.Publish.Concurrency,
		RetryMaxAttempts: cfg.Scheduler.RetryMaxAttempts,
		RetryBaseDelay:   time.Duration(cfg.Scheduler.RetryBaseDelaySeconds) * time.Second,
	}, events...)
	metricsUC := usecase.NewMetricsUsecase(jobRepo, snapshotRepo, connectionRepo, campaignRepo, connectionUC, registry, usecase.MetricsConfig{
		Lookback: time.Duration(cfg.Metrics.LookbackDays) * 24 * time.Hour,
		JobLimit: cfg.Metrics.JobLimit,
	})
	schedulerUC := usecase.NewSchedulerUsecase(taskRepo, jobRepo, publishUC, metricsUC, usecase.SchedulerConfig{
		BatchSize:        cfg.Scheduler.BatchSize,
		RetryMaxAttempts: cfg.Scheduler.RetryMaxAttempts,
		RetryBaseDelay:   time.Duration(cfg.Scheduler.RetryBaseDelaySeconds) * time.Second,
		MetricsInterval:  time.Duration(cfg.Scheduler.MetricsIntervalMinutes) * time.Minute,
	})
	campaignUC := usecase.NewAdCampaignUsecase(campaignRepo, connectionUC, registry)

	if cfg.Scheduler.Enabled {
		sweeper := worker.NewSweeper(schedulerUC, time.Duration(cfg.Scheduler.SweepIntervalSeconds)*time.Second)
		if err := sweeper.Start(ctx); err != nil {
			logger.GetLogger().WithField("error", err).Fatal("Failed to start scheduler")
		}
	} else {
		logger.GetLogger().Info("Scheduler disabled - due tasks will not run in this process")
	}

	router := server.InitiateRouter(server.Handlers{
		Health:     httpHandler.NewHealthHandler(health),
		Connection: httpHandler.NewConnectionHandler(connectionUC, cfg.Links),
		PublishJob: httpHandler.NewPublishJobHandler(publishUC, metricsUC),
		Task:       httpHandler.NewTaskHandler(schedulerUC),
		AdCampaign: httpHandler.NewAdCampaignHandler(campaignUC),
		Metrics:    httpHandler.NewMetricsHandler(metricsUC),
		JobStream:  hub.Serve,
	}, app.SecretKey, app.CORSOrigins)

	port := app.Port
	logger.GetLogger().WithFields(map[string]interface{}{"port": port, "tls": app.TLSEnabled}).Info("Starting application")
	httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		if app.TLSEnabled {
			cert := app.TLSCertFile
			key := app.TLSKeyFile
			if cert == "" || key == "" {
				logger.GetLogger().Error("TLS enabled but cert or key path empty; falling back to HTTP")
			} else {
				logger.GetLogger().WithFields(map[string]interface{}{"cert": cert, "key": key}).Info("Serving HTTPS")
				if err := httpServer.ListenAndServeTLS(cert, key); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			}
		}
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	select {
	case <-interrupt:
		logger.GetLogger().Info("Application shutdown requested")
	case <-ctx.Done():
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	_ = httpServer.Shutdown(shutdownCtx)

	if err := g.Wait(); err != nil {
		logger.GetLogger().WithField("error", err).Error("Server returned an error")
		os.Exit(2)
	}
}

// initiateCredentialStore keeps connections in SQL Server when the vendor is mssql
// (DB_VENDOR=mssql also works), otherwise next to everything else in PostgreSQL.
func initiateCredentialStore(db *sql.DB, sealer *utils.Sealer) (repository.IConnection, *sql.DB) {
	vendor := configuration.C.Database.Vendor
	if v := os.Getenv("DB_VENDOR"); v != "" {
		vendor = v
	}
	if vendor != "mssql" {
		return persistence.NewConnectionRepository(db, sealer), nil
	}
	mssqlDb, err := persistence.NewMSSQLDB()
	if err != nil {
		logger.GetLogger().WithField("error", err).Fatal("Cannot connect to MSSQL credential store")
	}
	if err := persistence.EnsureConnectionSchemaMSSQL(mssqlDb); err != nil {
		logger.GetLogger().WithField("error", err).Fatal("Failed ensuring MSSQL connection schema")
	}
	logger.GetLogger().Info("Credential store on MSSQL")
	return persistence.NewConnectionRepositoryMSSQL(mssqlDb, sealer), mssqlDb
}

// initiateSnapshotStore prefers MongoDB when it is configured and reachable.
func initiateSnapshotStore(db *sql.DB) (repository.IMetricsSnapshot, *mongo.Client) {
	m := configuration.C.Database.Mongo
	if m.Host == "" {
		return persistence.NewMetricsSnapshotRepository(db), nil
	}
	client, err := persistence.NewMongoDb(m.Host, m.Port, m.User, m.Password, m.Name)
	if err != nil {
		logger.GetLogger().WithField("error", err).Warn("MongoDB not available - metrics snapshots stay in PostgreSQL")
		return persistence.NewMetricsSnapshotRepository(db), nil
	}
	logger.GetLogger().Info("Metrics snapshots on MongoDB")
	return persistence.NewMetricsSnapshotRepositoryMongo(client, m.Name), client
}

// initiateLinkStateStore uses Redis so any replica can serve the OAuth callback.
// The in-memory store only works for a single instance.
func initiateLinkStateStore(ctx context.Context) (repository.ILinkStateStore, *redis.Client) {
	r := configuration.C.RedisClient
	if r.Host != "" {
		client, err := cache.NewCache(ctx, fmt.Sprintf("%s:%s", r.Host, r.Port), r.Username, r.Password)
		if err == nil {
			logger.GetLogger().Info("OAuth state store on Redis")
			return cache.NewRedisLinkStateStore(client), client
		}
		logger.GetLogger().WithField("error", err).Warn("Redis not available - using in-memory OAuth state store")
	}
	return cache.NewMemoryLinkStateStore(), nil
}
