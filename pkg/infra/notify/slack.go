package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"

	"github.com/m-mizutani/hoist/pkg/domain/model"
)

const (
	colorSuccess = "good"
	colorFailure = "danger"
)

// Slack posts a run summary to an incoming webhook
type Slack struct {
	webhookURL string
	repository string
}

// NewSlack creates a notifier. repository is shown in the message, e.g. "owner/repo".
func NewSlack(webhookURL, repository string) *Slack {
	return &Slack{
		webhookURL: webhookURL,
		repository: repository,
	}
}

func (s *Slack) Notify(ctx context.Context, target *model.ReleaseTarget, result *model.PublishResult, runErr error) error {
	msg := buildMessage(s.repository, target, result, runErr)
	if err := slack.PostWebhookContext(ctx, s.webhookURL, msg); err != nil {
		return goerr.Wrap(err, "failed to post Slack webhook", goerr.V("tag", target.TagName))
	}
	return nil
}

func buildMessage(repository string, target *model.ReleaseTarget, result *model.PublishResult, runErr error) *slack.WebhookMessage {
	succeeded := runErr == nil && result != nil && result.Succeeded()

	color := colorSuccess
	text := fmt.Sprintf("Published %s %s", repository, target.TagName)
	if !succeeded {
		color = colorFailure
		text = fmt.Sprintf("Failed to publish %s %s", repository, target.TagName)
	}

	attachment := slack.Attachment{
		Color:  color,
		Fields: []slack.AttachmentField{},
	}

	if result != nil && result.Release != nil {
		attachment.Title = result.Release.TagName
		attachment.TitleLink = result.Release.HTMLURL
		state := "reused"
		if result.ReleaseCreated {
			state = "created"
		}
		attachment.Fields = append(attachment.Fields, slack.AttachmentField{
			Title: "Release",
			Value: state,
			Short: true,
		})
	}

	if result != nil && len(result.Assets) > 0 {
		var lines []string
		for _, asset := range result.Assets {
			status := string(asset.Outcome)
			if !asset.Done() {
				status = "failed"
			}
			lines = append(lines, fmt.Sprintf("%s: %s (%d attempt(s))", asset.Name, status, asset.Attempts))
		}
		attachment.Fields = append(attachment.Fields, slack.AttachmentField{
			Title: "Assets",
			Value: strings.Join(lines, "\n"),
		})
	}

	if runErr != nil {
		attachment.Fields = append(attachment.Fields, slack.AttachmentField{
			Title: "Error",
			Value: runErr.Error(),
		})
	}

	return &slack.WebhookMessage{
		Text:        text,
		Attachments: []slack.Attachment{attachment},
	}
}
