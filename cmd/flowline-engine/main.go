// Package main provides the flowline engine: the scheduler poller plus the
// binder and walker that turn schedule ticks into executions.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/campushq/flowline/pkg/binder"
	"github.com/campushq/flowline/pkg/cmd"
	"github.com/campushq/flowline/pkg/engine"
	"github.com/campushq/flowline/pkg/idempotency"
	"github.com/campushq/flowline/pkg/log"
	"github.com/campushq/flowline/pkg/metrics"
	"github.com/campushq/flowline/pkg/otelhelper"
	"github.com/campushq/flowline/pkg/scheduler"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

func main() {
	_ = godotenv.Load()

	command := &cli.Command{
		Name:                  "flowline-engine",
		Usage:                 "Run the scheduler and workflow execution engine",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (file:// or postgres://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "reservation-url",
				Usage:   "Redis URL for the idempotency reservation store (defaults to the persistence backend)",
				Sources: cli.EnvVars("RESERVATION_URL"),
			},
			&cli.StringFlag{
				Name:    "data-source-url",
				Usage:   "SQL connection URL for QUERY and DB_UPDATE collaborators",
				Sources: cli.EnvVars("DATA_SOURCE_URL"),
			},
			&cli.StringFlag{
				Name:    "queries-file",
				Usage:   "JSON file registering named queries for QUERY nodes",
				Sources: cli.EnvVars("QUERIES_FILE"),
			},
			&cli.StringFlag{
				Name:    "update-tables",
				Usage:   "Comma-separated table allow list for DB_UPDATE nodes",
				Sources: cli.EnvVars("UPDATE_TABLES"),
			},
			&cli.IntFlag{
				Name:    "max-in-flight",
				Usage:   "Maximum concurrent executions",
				Value:   16,
				Sources: cli.EnvVars("MAX_IN_FLIGHT"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Enable OpenTelemetry tracing",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "engine-" + uuid.New().String()[:8]
	}

	logger := log.WithModule("flowline-engine").With("worker_id", workerID)
	logger.InfoContext(ctx, "Initializing flowline engine")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return fmt.Errorf("failed to initialize persistence: %w", err)
	}
	defer func() {
		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), "flowline-engine", logger)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	reservations, err := cmd.NewReservations(store, command.String("reservation-url"))
	if err != nil {
		return fmt.Errorf("failed to initialize reservation store: %w", err)
	}

	collaborators, err := cmd.NewCollaborators(logger, cmd.CollaboratorConfig{
		DataSourceURL: command.String("data-source-url"),
		QueriesFile:   command.String("queries-file"),
		UpdateTables:  command.String("update-tables"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize collaborators: %w", err)
	}

	var tracer trace.Tracer
	if command.Bool("otel-enabled") {
		tracer, err = otelhelper.NewTracer(ctx, "flowline-engine")
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}
	}

	reg := cmd.NewRegistry(logger, collaborators)
	engineMetrics := metrics.NewDefault()

	walker := engine.NewWalker(
		logger, reg,
		store.ExecutionRepository(), store.ExecutionLogRepository(),
		eventBus, engineMetrics, tracer, workerID,
	)

	b := binder.NewBinder(binder.Config{
		Logger:       logger,
		Workflows:    store.WorkflowRepository(),
		Triggers:     store.TriggerRepository(),
		Executions:   store.ExecutionRepository(),
		Reservations: reservations,
		Runner:       walker,
		Resolver:     idempotency.NewResolver(nil),
		Publisher:    eventBus,
		Metrics:      engineMetrics,
		WorkerID:     workerID,
		MaxInFlight:  int64(command.Int("max-in-flight")),
	})

	sched := scheduler.NewScheduler(logger, store.ScheduleRepository(), b)
	sched.Start(ctx)

	logger.InfoContext(ctx, "Flowline engine started")

	<-ctx.Done()

	logger.Info("Shutting down flowline engine")
	sched.Stop(context.Background())
	b.Wait()

	return nil
}
