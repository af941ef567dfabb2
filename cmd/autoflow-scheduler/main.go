// Package main provides the scheduler that fires CRON automations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/autoflow/pkg/cmd"
	"github.com/dukex/autoflow/pkg/log"
	"github.com/dukex/autoflow/pkg/orchestrator"
	"github.com/dukex/autoflow/pkg/otelhelper"
	"github.com/dukex/autoflow/pkg/schedule"
	cli "github.com/urfave/cli/v3"
)

const shutdownTimeout = 30 * time.Second

func main() {
	command := &cli.Command{
		Name:                  "autoflow-scheduler",
		Usage:                 "Fire CRON automations on schedule",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
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
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "kafka:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Worker pool size",
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

	logger := log.WithModule("scheduler")

	logger.InfoContext(ctx, "Initializing Autoflow scheduler")

	tracer, shutdownTracer, err := otelhelper.NewTracer(ctx, "autoflow-scheduler", command.Bool("otel"))
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

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "autoflow-scheduler", logger)
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

	engine := cmd.NewEngine(logger, cmd.NewRegistry(logger), cmd.EngineConfig{
		Mode:        orchestrator.ModeProduction,
		Workers:     command.Int("workers"),
		StepTimeout: command.Duration("step-timeout"),
		Tracer:      tracer,
		Publisher:   eventBus,
		Meter:       meter,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewScheduler(persistence.Automations(), engine.Matcher, logger)

	if err := scheduler.Subscribe(ctx, eventBus); err != nil {
		return err
	}

	if err := scheduler.Start(ctx); err != nil {
		return err
	}

	engine.AddSource(scheduler)

	<-ctx.Done()

	logger.Info("Shutting down Autoflow scheduler")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return engine.Shutdown(shutdownCtx)
}
