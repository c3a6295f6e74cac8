package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"

	"github.com/odontosimples/clinic-api/config"
	"github.com/odontosimples/clinic-api/internal/email"
	"github.com/odontosimples/clinic-api/internal/repository/postgres"
	"github.com/odontosimples/clinic-api/pkg/clock"
	"github.com/odontosimples/clinic-api/pkg/logger"
	"github.com/odontosimples/clinic-api/pkg/messaging/redis"
	"github.com/odontosimples/clinic-api/pkg/metrics"
	"github.com/odontosimples/clinic-api/pkg/worker"
)

// workerEnv carries the deployment-level switches. Everything else
// comes from the shared config file.
type workerEnv struct {
	OutboxEnabled   bool `envconfig:"OUTBOX_ENABLED" default:"true"`
	ReminderEnabled bool `envconfig:"REMINDER_ENABLED" default:"true"`
}

func main() {
	var env workerEnv
	if err := envconfig.Process("", &env); err != nil {
		log.Fatal().Err(err).Msg("failed to read environment")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	outboxRepo := postgres.NewOutboxRepository(db)
	appointmentRepo := postgres.NewAppointmentRepository(db)
	patientRepo := postgres.NewPatientRepository(db)
	practitionerRepo := postgres.NewPractitionerRepository(db)

	m := metrics.NewMetrics("clinic_worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	if env.OutboxEnabled {
		zl := log.With().Str("component", "redis-broker").Logger()
		broker, err := redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), &zl)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer broker.Close()

		processor := worker.NewOutboxProcessor(outboxRepo, broker, cfg.Outbox.ToWorkerConfig(), appLogger, m)
		wg.Add(1)
		go func() {
			defer wg.Done()
			processor.Start(ctx)
		}()
	}

	if env.ReminderEnabled {
		sender := email.NewService(email.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, appLogger)

		reminder := worker.NewReminderWorker(
			appointmentRepo,
			patientRepo,
			practitionerRepo,
			sender,
			cfg.Reminder.ToWorkerConfig(),
			clock.System(),
			appLogger,
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			reminder.Start(ctx)
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down workers")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		appLogger.Warn("workers did not stop in time")
	}
}
