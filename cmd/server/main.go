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

	"compliance-service/config"
	"compliance-service/internal/aiclient"
	"compliance-service/internal/api"
	"compliance-service/internal/broker"
	"compliance-service/internal/redisclient"
	"compliance-service/internal/service"
	"compliance-service/internal/store"
	"compliance-service/internal/util"
	"compliance-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting compliance service")

	tp, err := util.InitTracer("compliance-service", cfg.Observ.JaegerEndpoint)
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

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	complianceProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicCompliance)
	defer complianceProducer.Close()
	ediProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEDI)
	defer ediProducer.Close()
	log.Println("Kafka producers initialized")

	eventPublisher := broker.NewEventPublisher(complianceProducer, ediProducer)

	aiClient := aiclient.NewClient(
		cfg.AI.APIKey,
		cfg.AI.Model,
		cfg.AI.MaxTokens,
		time.Duration(cfg.AI.TimeoutSeconds)*time.Second,
	)
	var contentGenerator service.ContentGenerator
	if aiClient.Enabled() {
		contentGenerator = aiClient
		log.Println("AI drafting enabled")
	} else {
		log.Println("AI drafting disabled, using basic generation only")
	}

	ledgerService := service.NewLedgerService(
		db, db, redisClient, eventPublisher,
		cfg.Compliance.RVCThresholdPercent,
		time.Duration(cfg.Compliance.LockTTLSeconds)*time.Second,
	)
	certificateService := service.NewCertificateService(db, db, eventPublisher)
	ediService := service.NewEdiService(db, db, eventPublisher, contentGenerator)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	ackConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEDI, cfg.Kafka.ConsumerGroup)
	ackWorker := worker.NewAcknowledgmentWorker(ackConsumer, db, ediService, cfg.Compliance.AutoAcknowledge)
	go func() {
		if err := ackWorker.Start(workerCtx); err != nil {
			log.Printf("Acknowledgment worker error: %v", err)
		}
	}()

	cacheConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicCompliance, "compliance-cache-group")
	cacheWorker := worker.NewCacheWorker(cacheConsumer, redisClient)
	go func() {
		if err := cacheWorker.Start(workerCtx); err != nil {
			log.Printf("Cache worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(ledgerService, certificateService, ediService)
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
	ackWorker.Stop()
	cacheWorker.Stop()

	log.Println("Server exited")
}
