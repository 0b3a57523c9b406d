package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aivisio/platform/pkg/common/config"
	"github.com/aivisio/platform/pkg/common/database"
	"github.com/aivisio/platform/pkg/common/kafka"
	"github.com/aivisio/platform/pkg/common/logger"
	"github.com/aivisio/platform/pkg/credits"
	"github.com/aivisio/platform/pkg/httpclient"
	"github.com/aivisio/platform/pkg/identity"
	"github.com/aivisio/platform/pkg/middleware"
	"github.com/aivisio/platform/pkg/observability/metrics"
	"github.com/aivisio/platform/pkg/replicate"
	"github.com/aivisio/platform/pkg/storage"
	"github.com/aivisio/platform/pkg/training"
	"github.com/aivisio/platform/pkg/webhook"
	"github.com/gorilla/mux"
)

const eventsTopic = "training.events"

func main() {
	logger.Init()
	cfg := config.Load()

	plans, err := config.LoadPlans(cfg.PlansFile)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load credit plans")
	}

	db, err := database.NewPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.ClosePostgres(db)

	redisClient, err := database.NewRedis(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to redis")
	}
	defer redisClient.Close()

	creditsRepo := credits.NewRepository(db)
	if err := creditsRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate credits schema")
	}
	trainingRepo := training.NewRepository(db)
	if err := trainingRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate training schema")
	}

	objectStore, err := storage.NewObjectStore(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to initialize object storage")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := objectStore.EnsureBucket(ctx, cfg.TrainingDataBucket); err != nil {
		logger.Log.WithError(err).Fatal("Failed to ensure training data bucket")
	}
	cancel()

	providerClient := replicate.NewClient(cfg.ReplicateBaseURL, cfg.ReplicateAPIToken, httpclient.New(cfg.ProviderRequestTimeout))
	verifier := webhook.NewVerifier(providerClient)
	deduper := webhook.NewDeduper(redisClient, cfg.WebhookDedupeTTL)

	producer := kafka.NewProducer(cfg.KafkaBrokers, eventsTopic)
	defer producer.Close()

	creditsService := credits.NewService(creditsRepo, plans.Default())
	trainingService := training.NewService(trainingRepo, creditsService, objectStore, providerClient, training.Options{
		Owner:          cfg.ReplicateOwner,
		TrainerVersion: cfg.TrainerVersion,
		Steps:          cfg.TrainingSteps,
		TriggerWord:    cfg.TriggerWord,
		SiteURL:        cfg.SiteURL,
		Bucket:         cfg.TrainingDataBucket,
		SignedURLTTL:   cfg.SignedURLTTL,
	})
	reconciler := training.NewReconciler(trainingRepo, creditsService, objectStore, deduper, producer, cfg.TrainingDataBucket)
	handler := training.NewHandler(trainingService, reconciler, verifier)
	creditsHandler := credits.NewHandler(creditsService)

	authenticator, err := identity.NewAuthenticator(cfg.OIDCIssuer, cfg.OIDCClientID, cfg.OIDCClientSecret, httpclient.New(10*time.Second))
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to configure authenticator")
	}

	router := mux.NewRouter()
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.LimitBody(cfg.MaxRequestBody))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// The callback endpoint is gated by signature verification alone.
	handler.RegisterWebhook(router)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Authenticate(authenticator))
	handler.Register(api)
	creditsHandler.Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Training Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Training Service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}
}
