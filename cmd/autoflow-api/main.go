package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dukex/autoflow/pkg/cmd"
	"github.com/dukex/autoflow/pkg/log"
	"github.com/dukex/autoflow/pkg/orchestrator"
	"github.com/dukex/autoflow/pkg/otelhelper"
	"github.com/dukex/autoflow/pkg/schedule"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort     = 9091
	shutdownTimeout = 30 * time.Second
)

func main() {
	command := &cli.Command{
		Name:                  "autoflow-api",
		Usage:                 "Create, manage and trigger automations",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (file:// path or postgres:// URL)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for usage quota counters, logged only when empty",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (memory, kafka)",
				Value:   "memory",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "kafka:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "mode",
				Usage:   "Automation mode (builder, production)",
				Value:   string(orchestrator.ModeProduction),
				Sources: cli.EnvVars("AUTOMATION_MODE"),
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Worker pool size in production mode",
				Value:   4,
				Sources: cli.EnvVars("AUTOMATION_WORKERS"),
			},
			&cli.DurationFlag{
				Name:    "step-timeout",
				Usage:   "Maximum duration of a single step, zero disables the limit",
				Value:   orchestrator.DefaultStepTimeout,
				Sources: cli.EnvVars("AUTOMATION_STEP_TIMEOUT"),
			},
			&cli.BoolFlag{
				Name:    "schedule",
				Usage:   "Run CRON automations in this process",
				Sources: cli.EnvVars("SCHEDULER_ENABLED"),
			},
			&cli.BoolFlag{
				Name:    "otel",
				Usage:   "Export traces over OTLP/HTTP",
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

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("api")

	logger.InfoContext(ctx, "Initializing Autoflow API")

	mode, err := orchestrator.ParseMode(command.String("mode"))
	if err != nil {
		return err
	}

	tracer, shutdownTracer, err := otelhelper.NewTracer(ctx, "autoflow-api", command.Bool("otel"))
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
		}
	}()

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "autoflow-api", logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	meter, closeMeter, err := cmd.NewUsageMeter(ctx, logger, command.String("redis-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := closeMeter(); err != nil {
			logger.ErrorContext(ctx, "Failed to close usage meter", "error", err)
		}
	}()

	registry := cmd.NewRegistry(logger)

	engine := cmd.NewEngine(logger, registry, cmd.EngineConfig{
		Mode:        mode,
		Workers:     command.Int("workers"),
		StepTimeout: command.Duration("step-timeout"),
		Tracer:      tracer,
		Publisher:   eventBus,
		Meter:       meter,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if command.Bool("schedule") {
		scheduler := schedule.NewScheduler(persistence.Automations(), engine.Matcher, logger)

		if err := scheduler.Subscribe(ctx, eventBus); err != nil {
			return err
		}

		if err := scheduler.Start(ctx); err != nil {
			return err
		}

		engine.AddSource(scheduler)
	}

	app := NewAPI(logger, persistence, registry, engine.Matcher, eventBus).App()

	errCh := make(chan error, 1)

	go func() {
		errCh <- app.Listen(":" + strconv.Itoa(command.Int("port")))
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		logger.Info("Shutting down Autoflow API")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return errors.Join(err, app.ShutdownWithContext(shutdownCtx), engine.Shutdown(shutdownCtx))
}
