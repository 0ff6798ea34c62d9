package config

import (
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/hoist/pkg/domain/interfaces"
	"github.com/m-mizutani/hoist/pkg/infra/notify"
)

// Slack holds notification configuration
type Slack struct {
	WebhookURL string `masq:"secret"`
}

func (c *Slack) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-webhook-url",
			Usage:       "Slack incoming webhook URL notified when the run ends",
			Destination: &c.WebhookURL,
			Sources:     cli.EnvVars("HOIST_SLACK_WEBHOOK_URL"),
		},
	}
}

// Notifier returns nil when no webhook is configured
func (c *Slack) Notifier(repository string) interfaces.Notifier {
	if c.WebhookURL == "" {
		return nil
	}
	return notify.NewSlack(c.WebhookURL, repository)
}
