package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/cadencehq/cadence/pkg/cmd"
	"github.com/cadencehq/cadence/pkg/log"
	"github.com/cadencehq/cadence/pkg/otelhelper"
	"github.com/cadencehq/cadence/pkg/scheduler"
)

func main() {
	command := &cli.Command{
		Name:                  "cadence-scheduler",
		Usage:                 "Start the step dispatcher that publishes due sequence steps",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "How often to poll for due steps",
				Value:   scheduler.DefaultPollInterval,
				Sources: cli.EnvVars("POLL_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "redispatch-after",
				Usage:   "How long a dispatched step waits before being re-published",
				Value:   scheduler.DefaultRedispatchAfter,
				Sources: cli.EnvVars("REDISPATCH_AFTER"),
			},
			&cli.StringFlag{
				Name:    "recovery-cron",
				Usage:   "Cron expression for the periodic recovery sweep",
				Value:   scheduler.DefaultRecoverySchedule,
				Sources: cli.EnvVars("RECOVERY_CRON"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			tracerProvider, err := otelhelper.InitTracer(ctx, "cadence-scheduler")
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}
			defer func() {
				if err := tracerProvider.Shutdown(ctx); err != nil {
					slog.Error("Failed to shutdown tracer provider", "error", err)
				}
			}()

			logger := log.WithModule("cadence-scheduler")

			logger.InfoContext(ctx, "Initializing Cadence Scheduler")

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			dispatcher, err := scheduler.NewDispatcher(logger, persistence.SequenceRepository(), eventBus, scheduler.Config{
				PollInterval:     command.Duration("poll-interval"),
				RedispatchAfter:  command.Duration("redispatch-after"),
				RecoverySchedule: command.String("recovery-cron"),
			})
			if err != nil {
				return fmt.Errorf("failed to create dispatcher: %w", err)
			}

			if err := dispatcher.Start(ctx); err != nil {
				return fmt.Errorf("failed to start dispatcher: %w", err)
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			select {
			case <-sigChan:
				logger.InfoContext(ctx, "Shutting down scheduler...")
			case <-ctx.Done():
			}

			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()

			return dispatcher.Stop(stopCtx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
