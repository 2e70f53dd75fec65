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

	"registration-service/config"
	"registration-service/internal/api"
	"registration-service/internal/broker"
	"registration-service/internal/gateway"
	"registration-service/internal/notification"
	"registration-service/internal/provisioning"
	"registration-service/internal/redisclient"
	"registration-service/internal/service"
	"registration-service/internal/store"
	"registration-service/internal/util"
	"registration-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting registration service")

	tp, err := util.InitTracer("registration-service", cfg.Observ.JaegerEndpoint)
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

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicRegistration)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	httpTimeout := time.Duration(cfg.Business.HTTPTimeoutSeconds) * time.Second

	paymentGateway := gateway.NewClient(
		cfg.Gateway.BaseURL,
		cfg.Gateway.KeyID,
		cfg.Gateway.KeySecret,
		cfg.Gateway.WebhookSecret,
		httpTimeout,
	)
	provisioner := provisioning.NewClient(cfg.LMS.BaseURL, cfg.LMS.APIKey, httpTimeout)

	emailClient := notification.NewEmailClient(cfg.Email.APIURL, cfg.Email.APIKey, cfg.Email.FromAddress, httpTimeout)
	messagingClient := notification.NewMessagingClient(cfg.Messaging.WebhookURL, cfg.Messaging.APIKey, cfg.Messaging.CountryCode, httpTimeout)
	dispatcher := notification.NewDispatcher(emailClient, messagingClient, cfg.Email.OpsAddress)

	notifyPool := worker.NewNotificationPool(dispatcher, db, cfg.Business.NotifyWorkers, httpTimeout)
	notifyPool.Start()

	registrationService := service.NewRegistrationService(db, paymentGateway, cfg.Business.RegistrationFeeINR, cfg.Business.RegistrationFeeUSD)
	fulfillmentService := service.NewFulfillmentService(db, paymentGateway, provisioner, redisClient, notifyPool, eventPublisher)
	bulkImportService := service.NewBulkImportService(db, fulfillmentService, eventPublisher, cfg.Business.RegistrationFeeINR, cfg.Business.RegistrationFeeUSD)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(registrationService, fulfillmentService, bulkImportService)
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

	notifyPool.Stop()

	log.Println("Server exited")
}
