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

	"pricing-service/config"
	"pricing-service/internal/api"
	"pricing-service/internal/broker"
	"pricing-service/internal/cache"
	"pricing-service/internal/progress"
	"pricing-service/internal/service"
	"pricing-service/internal/store"
	"pricing-service/internal/syncjob"
	"pricing-service/internal/util"
	"pricing-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting pricing service")

	tp, err := util.InitTracer("pricing-service", cfg.Observ.JaegerEndpoint)
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

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	breakdownCache, err := cache.NewCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Pricing.CacheTTL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer breakdownCache.Close()
	log.Println("Redis connected")

	rulesProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicRules)
	defer rulesProducer.Close()
	syncProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicSync)
	defer syncProducer.Close()
	log.Println("Kafka producers initialized")

	eventPublisher := broker.NewEventPublisher(rulesProducer, syncProducer)
	publisher := progress.NewPublisher()
	tracker := syncjob.NewTracker()

	pricingService := service.NewPricingService(db, breakdownCache, publisher, cfg.Pricing)
	adminService := service.NewAdminService(db, breakdownCache, eventPublisher)
	syncService := service.NewCatalogSyncService(db, breakdownCache, tracker, publisher, eventPublisher, cfg.Pricing)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	syncConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicSync, cfg.Kafka.ConsumerGroup)
	syncWorker := worker.NewSyncWorker(syncConsumer, syncService)
	go func() {
		if err := syncWorker.Start(workerCtx); err != nil {
			log.Printf("Sync worker error: %v", err)
		}
	}()

	invalidationConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicRules, "pricing-invalidation-group")
	invalidationWorker := worker.NewInvalidationWorker(invalidationConsumer, breakdownCache)
	go func() {
		if err := invalidationWorker.Start(workerCtx); err != nil {
			log.Printf("Invalidation worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(pricingService, adminService, syncService, breakdownCache, publisher, cfg.Pricing.PipelineTimeout)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	syncWorker.Stop()
	invalidationWorker.Stop()

	log.Println("Server exited")
}
