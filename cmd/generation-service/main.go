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
	"github.com/aivisio/platform/pkg/common/logger"
	"github.com/aivisio/platform/pkg/credits"
	"github.com/aivisio/platform/pkg/generation"
	"github.com/aivisio/platform/pkg/httpclient"
	"github.com/aivisio/platform/pkg/identity"
	"github.com/aivisio/platform/pkg/middleware"
	"github.com/aivisio/platform/pkg/observability/metrics"
	"github.com/aivisio/platform/pkg/replicate"
	"github.com/aivisio/platform/pkg/storage"
	"github.com/gorilla/mux"
)

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

	creditsRepo := credits.NewRepository(db)
	if err := creditsRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate credits schema")
	}
	imagesRepo := generation.NewRepository(db)
	if err := imagesRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate images schema")
	}

	objectStore, err := storage.NewObjectStore(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to initialize object storage")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := objectStore.EnsureBucket(ctx, cfg.GeneratedImgsBucket); err != nil {
		logger.Log.WithError(err).Fatal("Failed to ensure generated images bucket")
	}
	cancel()

	providerClient := replicate.NewClient(cfg.ReplicateBaseURL, cfg.ReplicateAPIToken, httpclient.New(cfg.ProviderRequestTimeout))

	creditsService := credits.NewService(creditsRepo, plans.Default())
	service := generation.NewService(
		imagesRepo,
		providerClient,
		creditsService,
		objectStore,
		httpclient.New(60*time.Second),
		cfg.GeneratedImgsBucket,
		cfg.SignedURLTTL,
	)
	handler := generation.NewHandler(service)

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

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Authenticate(authenticator))
	handler.Register(api)

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
		}).Info("Generation Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Generation Service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}
}
