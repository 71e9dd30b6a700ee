package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"workflow-orchestrator/internal/alert"
	"workflow-orchestrator/internal/api"
	"workflow-orchestrator/internal/channel"
	"workflow-orchestrator/internal/config"
	"workflow-orchestrator/internal/ingest"
	"workflow-orchestrator/internal/ratelimit"
	"workflow-orchestrator/internal/store"
	"workflow-orchestrator/internal/telemetry"
)

func main() {
	cfg := config.Load()
	log := newLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.WithError(err).Fatal("migrations")
	}

	registry := alert.NewRegistry()
	registry.Register(channel.PluginDefineHTTP, channel.NewHTTPChannel(log))
	registry.Register(channel.PluginDefineShoutrrr, channel.NewShoutrrrChannel(log))

	sink := telemetry.NewPromSink()
	dispatcher := alert.NewDispatcher(st, registry, alert.Config{
		PollInterval: cfg.AlertPollInterval,
		WaitTimeout:  cfg.AlertWaitTimeout,
		BatchSize:    cfg.AlertBatchSize,
	}, sink, log)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	limiter := ratelimit.NewGroupLimiter(redisClient, cfg.RateLimitCapacity, cfg.RateLimitRefill, cfg.RateLimitTTL)

	server := api.New(st, dispatcher, limiter, log)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}
	go func() {
		log.WithField("addr", httpServer.Addr).Info("api listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen")
		}
	}()

	if len(cfg.KafkaBrokers) > 0 {
		consumer := ingest.NewConsumer(ingest.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, st, log)
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.WithError(err).Error("alert ingest consumer stopped")
			}
		}()
	}

	log.WithField("poll_interval", cfg.AlertPollInterval.String()).Info("alert server running")
	if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("alert dispatcher stopped")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	log.Info("alert server stopped")
}

func newLogger(cfg config.Config) *logrus.Logger {
	log := logrus.New()
	if cfg.Env == "prod" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}
