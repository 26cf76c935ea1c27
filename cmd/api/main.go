package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/alfanzaky/socialtx/config"
	adapterfactory "github.com/alfanzaky/socialtx/internal/adapter/factory"
	mediaadapter "github.com/alfanzaky/socialtx/internal/adapter/media"
	relayadapter "github.com/alfanzaky/socialtx/internal/adapter/relay"
	"github.com/alfanzaky/socialtx/internal/domain"
	apihandler "github.com/alfanzaky/socialtx/internal/handler/api"
	"github.com/alfanzaky/socialtx/internal/repository/memory"
	"github.com/alfanzaky/socialtx/internal/repository/postgres"
	redisrepo "github.com/alfanzaky/socialtx/internal/repository/redis"
	"github.com/alfanzaky/socialtx/internal/usecase"
	"github.com/alfanzaky/socialtx/internal/worker"
	"github.com/alfanzaky/socialtx/pkg/auth"
	"github.com/alfanzaky/socialtx/pkg/logger"
	"github.com/alfanzaky/socialtx/pkg/observability"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	// Initialize logger
	logger.Init(cfg.App.Environment)
	defer logger.Sync()

	if cfg.App.IsDevelopment() {
		cfg.Print()
	}

	metricsHandler := observability.NewMetricsHandler(cfg.App.Name)

	// Initialize Redis connection
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		logger.Fatal("Failed to connect to Redis", logger.ErrorField(err))
	}
	defer rdb.Close()
	metricsHandler.AddReadinessCheck("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})

	// Initialize database connection; the submission ledger is optional
	var (
		db          *sqlx.DB
		submissions domain.SubmissionRepository
	)
	if cfg.Database.Enabled {
		db, err = sqlx.Connect("postgres", cfg.Database.GetDSN())
		if err != nil {
			logger.Fatal("Failed to connect to database", logger.ErrorField(err))
		}
		defer db.Close()
		db.SetMaxIdleConns(cfg.Database.MaxIdle)
		db.SetMaxOpenConns(cfg.Database.MaxOpen)
		db.SetConnMaxLifetime(cfg.Database.MaxLife)

		if err := postgres.EnsureSchema(context.Background(), db); err != nil {
			logger.Fatal("Failed to prepare database schema", logger.ErrorField(err))
		}
		submissions = postgres.NewSubmissionRepository(db)
		metricsHandler.AddReadinessCheck("postgres", db.PingContext)
	}

	logger.Info("Storage connections established",
		logger.Bool("postgres", db != nil),
		logger.String("queue_store", cfg.Queue.Store),
	)

	queueStore := newQueueStore(cfg, rdb, db)
	uploadCache := redisrepo.NewCacheRepository(rdb, cfg.Redis.KeyPrefix, cfg.Media.UploadURLTTL)

	// Initialize adapters
	relay := relayadapter.NewAdapter(cfg.Relay, nil)
	mediaBackend := mediaadapter.NewAdapter(cfg.Media, nil)

	wallet, err := adapterfactory.NewWalletFactory().Build(cfg.Wallet)
	if err != nil {
		logger.Fatal("Failed to initialize wallet", logger.String("mode", cfg.Wallet.Mode), logger.ErrorField(err))
	}

	// Initialize use cases
	signer := usecase.NewSigningAdapter(wallet, usecase.NewWalletSession(), domain.WalletIdentity{
		Name: cfg.Wallet.IdentityName,
		URI:  cfg.Wallet.IdentityURI,
	})
	builder := usecase.NewTransactionBuilder(relay, usecase.ComputeDefaults{
		UnitLimit:                cfg.Orchestrator.ComputeUnitLimit,
		PriorityFeeMicroLamports: cfg.Orchestrator.PriorityFeeMicroLamports,
	})
	orchestrator := usecase.NewOrchestrator(builder, signer, relay, submissions, usecase.OrchestratorConfig{
		PollAttempts: cfg.Orchestrator.PollAttempts,
		PollInterval: cfg.Orchestrator.PollInterval,
	})

	registry := usecase.NewProcessorRegistry(
		usecase.NewBlockchainProcessor(orchestrator, relay),
		usecase.NewMediaProcessor(mediaBackend, uploadCache, usecase.MediaProcessorConfig{
			MaxFileSize:         cfg.Media.MaxFileSize,
			AllowedMimePrefixes: cfg.Media.AllowedMimePrefixes,
		}),
	)
	engine := usecase.NewQueueEngine(queueStore, registry, retryPolicies(cfg.Queue))

	// Start background dispatch worker
	dispatchWorker := worker.NewDispatchWorker(engine, worker.DispatchWorkerConfig{
		PollingInterval: cfg.Queue.PollInterval,
		DepthInterval:   cfg.Queue.DepthInterval,
	})
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	var workerWG sync.WaitGroup
	workerWG.Add(1)
	go func() {
		defer workerWG.Done()
		dispatchWorker.Start(workerCtx)
	}()

	// Set Gin mode
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	authService := auth.NewJWTAuthService(cfg.Auth)

	router := gin.New()
	router.Use(observability.ObservabilityMiddleware())

	router.GET("/metrics", metricsHandler.MetricsEndpoint())
	router.GET("/health", metricsHandler.HealthEndpoint())
	router.GET("/ready", metricsHandler.ReadinessEndpoint())
	router.GET("/live", metricsHandler.LivenessEndpoint())

	apihandler.SetupRoutes(router, apihandler.Handlers{
		Transactions: apihandler.NewTransactionHandler(orchestrator, submissions),
		Queue:        apihandler.NewQueueHandler(engine),
		Wallet:       apihandler.NewWalletHandler(signer),
		Auth:         apihandler.NewAuthHandler(authService),
	}, authService, apihandler.RouteOptions{
		RequestsPerSecond: cfg.App.RequestsPerSecond,
		Burst:             cfg.App.Burst,
	})

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting server",
			logger.String("port", cfg.App.Port),
			logger.String("environment", cfg.App.Environment),
		)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", logger.ErrorField(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", logger.ErrorField(err))
	}

	// in-flight queue items go back to pending when their attempt is interrupted
	workerCancel()
	workerWG.Wait()

	logger.Info("Server exited")
}

func newQueueStore(cfg *config.Config, rdb *redis.Client, db *sqlx.DB) domain.QueueStore {
	switch cfg.Queue.Store {
	case config.QueueStorePostgres:
		if db == nil {
			logger.Fatal("Postgres queue store requires DB_ENABLED=true")
		}
		return postgres.NewQueueRepository(db)
	case config.QueueStoreMemory:
		logger.Warn("Using in-memory queue store, queued items will not survive a restart")
		return memory.NewQueueRepository()
	default:
		return redisrepo.NewQueueRepository(rdb, cfg.Redis.KeyPrefix)
	}
}

func retryPolicies(cfg config.QueueConfig) map[domain.QueueKind]usecase.RetryPolicy {
	return map[domain.QueueKind]usecase.RetryPolicy{
		domain.KindBlockchainTransaction: {
			MaxAttempts:  domain.BlockchainMaxAttempts,
			InitialDelay: cfg.BlockchainBase,
			MaxDelay:     cfg.BlockchainMaxDelay,
			EnableJitter: cfg.EnableJitter,
		},
		domain.KindMediaUpload: {
			MaxAttempts:  domain.MediaMaxAttempts,
			InitialDelay: cfg.MediaBase,
			MaxDelay:     cfg.MediaMaxDelay,
			EnableJitter: cfg.EnableJitter,
		},
	}
}
