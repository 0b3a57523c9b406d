package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aivisio/platform/pkg/common/config"
	"github.com/aivisio/platform/pkg/common/kafka"
	"github.com/aivisio/platform/pkg/common/logger"
	"github.com/aivisio/platform/pkg/httpclient"
	"github.com/aivisio/platform/pkg/identity"
	"github.com/aivisio/platform/pkg/notify"
)

const eventsTopic = "training.events"

func main() {
	logger.Init()
	cfg := config.Load()

	directory := identity.NewAdminClient(cfg.AuthBaseURL, cfg.AuthServiceRoleKey, httpclient.New(10*time.Second))
	mailer := notify.NewMailer(cfg.EmailAPIBaseURL, cfg.EmailAPIKey, cfg.EmailFrom, httpclient.New(15*time.Second))
	notifier := notify.NewNotifier(directory, mailer)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, eventsTopic, cfg.KafkaGroupID)
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		logger.Log.WithField("topic", eventsTopic).Info("Notifier Service started")
		if err := consumer.Consume(ctx, notifier.HandleEvent); err != nil && err != context.Canceled {
			logger.Log.WithError(err).Error("Consumer stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Notifier Service...")
	cancel()
}
