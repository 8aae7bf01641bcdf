package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"distribution-service/config"
	"distribution-service/internal/api"
	"distribution-service/internal/auth"
	"distribution-service/internal/broker"
	"distribution-service/internal/redisclient"
	"distribution-service/internal/service"
	"distribution-service/internal/store"
	"distribution-service/internal/store/memstore"
	"distribution-service/internal/util"
	"distribution-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const serviceName = "distribution-service"

func main() {

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, serviceName); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting distribution service")

	if cfg.Observ.TracingEnabled {
		tp, err := util.InitTracer(serviceName, cfg.Observ.JaegerEndpoint)
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				log.Printf("Error shutting down tracer: %v", err)
			}
		}()
	}

	ctx := context.Background()

	repo, err := openStore(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer repo.Close()
	logger.Info("Store ready", zap.String("driver", cfg.Database.Driver))

	checks := map[string]api.Pinger{"store": repo}

	var snapshots service.SnapshotCache
	var redisClient *redisclient.Client
	if cfg.Redis.Enabled {
		redisClient, err = redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.SnapshotTTL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		snapshots = redisClient
		checks["redis"] = redisClient
		logger.Info("Redis connected")
	}

	inventoryCache := service.NewInventoryCache(repo, snapshots)
	if err := inventoryCache.Warm(ctx); err != nil {
		logger.Warn("Failed to warm snapshot cache", zap.Error(err))
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var publisher service.EventPublisher
	var projector *worker.InventoryProjector
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

		publisher = broker.NewEventPublisher(producer, broker.Topics{
			Order:   cfg.Kafka.TopicOrder,
			Sale:    cfg.Kafka.TopicSale,
			Product: cfg.Kafka.TopicProduct,
		})

		consumer := broker.NewConsumer(cfg.Kafka.Brokers,
			[]string{cfg.Kafka.TopicOrder, cfg.Kafka.TopicSale, cfg.Kafka.TopicProduct},
			cfg.Kafka.ConsumerGroup)
		var deduper worker.EventDeduper
		if redisClient != nil {
			deduper = redisClient
		}
		projector = worker.NewInventoryProjector(consumer, inventoryCache, deduper)
		go func() {
			if err := projector.Start(workerCtx); err != nil {
				logger.Error("Inventory projector stopped", zap.Error(err))
			}
		}()
	} else if snapshots != nil {
		publisher = service.NewLocalProjector(inventoryCache)
	} else {
		publisher = broker.NopPublisher{}
	}

	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	ledger := service.NewLedger()
	partnerService := service.NewPartnerService(repo, tokens, cfg.Auth.BcryptCost)

	if cfg.Auth.AdminPassword != "" {
		if err := partnerService.EnsureAdmin(ctx, cfg.Auth.AdminUserID, cfg.Auth.AdminPassword); err != nil {
			log.Fatalf("Failed to seed admin account: %v", err)
		}
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Services{
		Orders:   service.NewOrderService(repo, ledger, publisher, cfg.Business.DeliveryChannels),
		Sales:    service.NewSaleService(repo, ledger, publisher),
		Products: service.NewProductService(repo, ledger, inventoryCache, publisher),
		Partners: partnerService,
	}, tokens, checks)
	if err := handler.SetupRoutes(router, cfg.HTTP); err != nil {
		log.Fatalf("Failed to set up routes: %v", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if projector != nil {
		if err := projector.Stop(); err != nil {
			logger.Warn("Error stopping projector", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

// openStore picks the repository backend named by the config
func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.Repository, error) {
	if cfg.Driver == "memory" {
		return memstore.New(), nil
	}

	db, err := store.NewStore(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return db, nil
}
