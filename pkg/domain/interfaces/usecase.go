package interfaces

//go:generate moq -out mocks/usecase_mock.go -pkg mocks . Publisher Notifier

import (
	"context"

	"github.com/m-mizutani/hoist/pkg/domain/model"
)

// Publisher drives a release and its assets to the requested state
type Publisher interface {
	// Publish resolves the release for target and reconciles every source.
	// The result is returned even when err is not nil.
	Publish(ctx context.Context, target *model.ReleaseTarget, sources []AssetSource) (*model.PublishResult, error)
}

// Notifier reports the outcome of a run to an external channel
type Notifier interface {
	Notify(ctx context.Context, target *model.ReleaseTarget, result *model.PublishResult, runErr error) error
}
