// Entry point for the worker forwarding attendance events to the legacy system
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"checkin.engine/internal/config"
	"checkin.engine/internal/ports/repository"
	"checkin.engine/internal/worker"
	"checkin.engine/internal/worker/legacyapi"
	"checkin.engine/internal/worker/syncer"
	"checkin.engine/pkg/aws"
	"checkin.engine/pkg/database"
	"checkin.engine/pkg/logger"
	"checkin.engine/pkg/telemetry"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load configuration")
	}

	logger.Setup(cfg.IsLocalDev)

	shutdownTracer, err := telemetry.InitTracer("attendance-sync-worker", cfg.OTLPEndpoint, cfg.IsLocalDev)
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

	// AWS SDK Config
	awsCfg, err := aws.NewAWSConfig(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to load SDK config")
	}

	// Initialize Dependencies
	sqsClient := sqs.NewFromConfig(awsCfg)
	repo := repository.NewAttendanceRepository(db)
	legacyClient := legacyapi.NewHTTPClient(cfg.LegacyAPIURL, 0)
	processor := syncer.NewProcessor(repo, legacyClient)

	// Start Worker
	ctx, cancel := context.WithCancel(context.Background())
	app := worker.NewWorker(sqsClient, cfg.AttendanceSQSQueueURL, processor)
	app.Concurrency = cfg.WorkerConcurrency

	stopped := make(chan struct{})
	go func() {
		app.Start(ctx)
		close(stopped)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info().Msg("Shutting down worker...")

	// Cancel the context to signal the worker to stop polling.
	cancel()
	<-stopped

	log.Info().Msg("Worker exited gracefully")
}
