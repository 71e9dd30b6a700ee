package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"workflow-orchestrator/internal/config"
	"workflow-orchestrator/internal/materializer"
	"workflow-orchestrator/internal/store"
	"workflow-orchestrator/internal/telemetry"
	"workflow-orchestrator/internal/trigger"
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

	loc, err := time.LoadLocation(cfg.CronTimezone)
	if err != nil {
		log.WithError(err).WithField("timezone", cfg.CronTimezone).Fatal("load cron timezone")
	}

	sink := telemetry.NewPromSink()

	// The registry fires into the materializer and the materializer
	// deregisters through the registry, so the handler is bound late.
	var mat *materializer.Materializer
	registry := trigger.New(loc, func(ctx context.Context, fire trigger.FireEvent) error {
		return mat.OnFire(ctx, fire)
	}, log)
	mat = materializer.New(st, registry, sink, log)

	schedules, err := st.ListOnlineSchedules(ctx)
	if err != nil {
		log.WithError(err).Fatal("list online schedules")
	}
	for _, sched := range schedules {
		if err := registry.Register(sched); err != nil {
			log.WithError(err).WithField("schedule_id", sched.ID).Error("skip unregistrable schedule")
		}
	}
	log.WithField("schedules", len(schedules)).Info("cron jobs bootstrapped")

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.WithError(err).Warn("metrics server stopped")
		}
	}()

	registry.Start(ctx)
	log.WithField("timezone", cfg.CronTimezone).Info("master started")

	<-ctx.Done()
	registry.Stop()
	log.Info("master stopped")
}

func newLogger(cfg config.Config) *logrus.Logger {
	log := logrus.New()
	if cfg.Env == "prod" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}
