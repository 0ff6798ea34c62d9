package cli

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/m-mizutani/ctxlog"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/hoist/pkg/cli/config"
	"github.com/m-mizutani/hoist/pkg/domain/types"
)

// Run runs the CLI application
func Run(ctx context.Context, args []string) error {
	var (
		loggerCfg     config.Logger
		sentryCfg     config.Sentry
		logger        *slog.Logger
		sentryEnabled bool
	)

	app := &cli.Command{
		Name:    "hoist",
		Usage:   "Create a GitHub release and upload its assets, retrying until they are consistent",
		Version: types.Version,
		Flags:   append(loggerCfg.Flags(), sentryCfg.Flags()...),
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			var err error
			logger, err = loggerCfg.Configure(
				os.Getenv(config.EnvGitHubToken),
				os.Getenv(config.EnvGitHubAppPrivateKey),
				sentryCfg.DSN,
			)
			if err != nil {
				return nil, err
			}
			logger = logger.With("run_id", uuid.NewString())

			sentryEnabled, err = sentryCfg.Configure()
			if err != nil {
				return nil, err
			}

			slog.SetDefault(logger)
			ctx = ctxlog.With(ctx, logger)
			return ctx, nil
		},
		Commands: []*cli.Command{
			cmdPublish(),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("CLI execution failed", slog.Any("error", err))

		if sentryEnabled {
			sentry.CaptureException(err)
			sentry.Flush(2 * time.Second)
		}
		return err
	}

	return nil
}
