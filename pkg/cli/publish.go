package cli

import (
	"context"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/hoist/pkg/cli/config"
	"github.com/m-mizutani/hoist/pkg/domain/interfaces"
	"github.com/m-mizutani/hoist/pkg/domain/model"
	"github.com/m-mizutani/hoist/pkg/infra/source"
	"github.com/m-mizutani/hoist/pkg/usecase"
	"github.com/m-mizutani/hoist/pkg/utils/async"
)

const notifyTimeout = 10 * time.Second

func cmdPublish() *cli.Command {
	var (
		releaseCfg config.Release
		githubCfg  config.GitHub
		retryCfg   config.Retry
		slackCfg   config.Slack
		fileCfg    config.File
	)

	var flags []cli.Flag
	flags = append(flags, releaseCfg.Flags()...)
	flags = append(flags, githubCfg.Flags()...)
	flags = append(flags, retryCfg.Flags()...)
	flags = append(flags, slackCfg.Flags()...)
	flags = append(flags, fileCfg.Flags()...)

	return &cli.Command{
		Name:      "publish",
		Aliases:   []string{"p"},
		Usage:     "Create or reuse the release for a tag and upload the given files to it",
		ArgsUsage: "FILE[#NAME]...",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			values, err := fileCfg.Load()
			if err != nil {
				return err
			}
			if err := values.Apply(c.IsSet, &releaseCfg, &githubCfg, &retryCfg); err != nil {
				return err
			}

			target, err := releaseCfg.Target()
			if err != nil {
				return err
			}
			if err := retryCfg.Validate(); err != nil {
				return err
			}

			opener := source.New()
			defer func() {
				if err := opener.Close(); err != nil {
					logger.Warn("Failed to close asset sources", "error", err)
				}
			}()

			sources, err := opener.OpenAll(ctx, c.Args().Slice())
			if err != nil {
				return err
			}

			client, err := githubCfg.NewClient(releaseCfg.Owner, releaseCfg.Repo)
			if err != nil {
				return err
			}

			logger.Info("Starting publish",
				"repository", releaseCfg.Repository(),
				"tag", target.TagName,
				"api_url", githubCfg.APIURL,
			)

			publisher := usecase.NewPublisher(client, retryCfg.Options()...)
			result, runErr := publisher.Publish(ctx, target, sources)

			PrintSummary(c.Root().Writer, releaseCfg.Repository(), result, runErr)

			if notifier := slackCfg.Notifier(releaseCfg.Repository()); notifier != nil {
				notify(ctx, notifier, target, result, runErr)
			}

			if runErr != nil {
				return goerr.Wrap(runErr, "failed to publish release", goerr.V("tag", target.TagName))
			}
			return nil
		},
	}
}

// notify posts the run summary. A failed notification is only logged.
func notify(ctx context.Context, notifier interfaces.Notifier, target *model.ReleaseTarget, result *model.PublishResult, runErr error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	done := async.Go(ctx, func(ctx context.Context) error {
		return notifier.Notify(ctx, target, result, runErr)
	})

	select {
	case err := <-done:
		if err != nil {
			ctxlog.From(ctx).Warn("Failed to send notification", "error", err)
		}
	case <-ctx.Done():
		ctxlog.From(ctx).Warn("Notification timed out", "timeout", notifyTimeout)
	}
}
