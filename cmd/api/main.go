// Entry point for REST API
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkin.engine/internal/api"
	"checkin.engine/internal/config"
	"checkin.engine/internal/core"
	"checkin.engine/internal/ports/embedding"
	"checkin.engine/internal/ports/messaging"
	"checkin.engine/internal/ports/repository"
	"checkin.engine/pkg/aws"
	"checkin.engine/pkg/database"
	"checkin.engine/pkg/logger"
	"checkin.engine/pkg/telemetry"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load configuration")
	}

	// Configure structured logging
	logger.Setup(cfg.IsLocalDev)

	settings, err := cfg.EngineSettings()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid engine configuration")
	}

	// Configure OpenTelemetry Tracing
	shutdownTracer, err := telemetry.InitTracer("attendance-api", cfg.OTLPEndpoint, cfg.IsLocalDev)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to init tracer")
	}
	defer func() {
		_ = shutdownTracer(context.Background())
	}()

	// DB connection
	db, err := database.NewInstrumentedConnection(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening database")
	}
	defer db.Close()
	log.Info().Msg("Successfully connected to the database.")

	if cfg.DBMigrate {
		if err := repository.Migrate(context.Background(), db); err != nil {
			log.Fatal().Err(err).Msg("Database migration failed")
		}
	}

	// AWS SDK Config
	awsCfg, err := aws.NewAWSConfig(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to load SDK config")
	}

	// Initialize dependencies
	sqsClient := sqs.NewFromConfig(awsCfg)
	attendance := repository.NewAttendanceRepository(db)
	producer := messaging.NewSQSProducer(sqsClient, cfg.AttendanceSQSQueueURL)
	sink := messaging.NewOutboxSink(repository.NewCommandApplier(attendance), producer)

	faceModel := embedding.NewClient(cfg.FaceModelURL, cfg.FaceModelVersion, cfg.FaceModelTimeout)

	engine := core.NewAttendanceService(core.Deps{
		Attendance:  attendance,
		Enrollments: repository.NewEnrollmentRepository(db),
		Zones:       repository.NewZoneRepository(db),
		Schedules:   repository.NewScheduleRepository(db),
		Face:        faceModel,
		Sink:        sink,
	}, settings)

	// Setup router and server
	router := api.NewRouter(engine)

	// Middleware to inject logger with trace ID
	loggerMiddleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = logger.EnrichContextWithLogger(ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}

	// Wrap the router with OpenTelemetry middleware to create spans for each request
	handler := otelhttp.NewHandler(loggerMiddleware(router), "api")

	serverAddr := ":" + cfg.ServerPort
	srv := &http.Server{
		Addr:              serverAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.ServerPort).Msg("API Service starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	// The context is used to inform the server it has 5 seconds to finish
	// the requests it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting")
}
