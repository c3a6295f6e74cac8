package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/odontosimples/clinic-api/config"
	appointmenthandler "github.com/odontosimples/clinic-api/internal/handler/appointment"
	authhandler "github.com/odontosimples/clinic-api/internal/handler/auth"
	patienthandler "github.com/odontosimples/clinic-api/internal/handler/patient"
	paymenthandler "github.com/odontosimples/clinic-api/internal/handler/payment"
	practitionerhandler "github.com/odontosimples/clinic-api/internal/handler/practitioner"
	"github.com/odontosimples/clinic-api/internal/middleware"
	"github.com/odontosimples/clinic-api/internal/repository/postgres"
	"github.com/odontosimples/clinic-api/internal/router"
	"github.com/odontosimples/clinic-api/internal/schedule"
	authservice "github.com/odontosimples/clinic-api/internal/service/auth"
	patientservice "github.com/odontosimples/clinic-api/internal/service/patient"
	practitionerservice "github.com/odontosimples/clinic-api/internal/service/practitioner"
	"github.com/odontosimples/clinic-api/internal/service/scheduling"
	"github.com/odontosimples/clinic-api/internal/service/settlement"
	"github.com/odontosimples/clinic-api/pkg/auth"
	"github.com/odontosimples/clinic-api/pkg/clock"
	"github.com/odontosimples/clinic-api/pkg/logger"
	"github.com/odontosimples/clinic-api/pkg/metrics"
	"github.com/odontosimples/clinic-api/pkg/security"
	"github.com/odontosimples/clinic-api/pkg/validator"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)

	if err := validator.RegisterCustom(); err != nil {
		log.Fatal().Err(err).Msg("failed to register validators")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Repositories
	practitionerRepo := postgres.NewPractitionerRepository(db)
	patientRepo := postgres.NewPatientRepository(db)
	appointmentRepo := postgres.NewAppointmentRepository(db)
	paymentRepo := postgres.NewPaymentRepository(db)
	userRepo := postgres.NewUserRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	m := metrics.NewMetrics("clinic_api")

	// Services
	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	hasher := security.NewBcryptHasher(0)
	sysClock := clock.System()

	authSvc := authservice.NewService(userRepo, jwtSvc, hasher, appLogger)
	practitionerSvc := practitionerservice.NewService(practitionerRepo, appLogger)
	patientSvc := patientservice.NewService(patientRepo, appLogger)
	schedulingSvc := scheduling.NewService(
		appointmentRepo,
		practitionerRepo,
		patientRepo,
		outboxRepo,
		schedule.NewPractitionerLocker(cfg.Scheduling.LockWaitBudget),
		sysClock,
		appLogger,
	).WithMetrics(m)
	settlementSvc := settlement.NewService(paymentRepo, appointmentRepo, outboxRepo, sysClock, appLogger)

	// HTTP layer
	authMiddleware := middleware.NewAuthMiddleware(jwtSvc)

	r := router.NewRouter(
		authMiddleware,
		authhandler.NewHandler(authSvc),
		appointmenthandler.NewHandler(schedulingSvc),
		practitionerhandler.NewHandler(practitionerSvc, schedulingSvc),
		patienthandler.NewHandler(patientSvc),
		paymenthandler.NewHandler(settlementSvc),
		m,
		router.Config{
			RateLimitEnabled:  cfg.RateLimit.Enabled,
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			MetricsPath:       cfg.Monitoring.MetricsPath,
		},
	)

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		appLogger.Info("starting API server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
}
