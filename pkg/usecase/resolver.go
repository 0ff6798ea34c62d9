package usecase

import (
	"context"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/hoist/pkg/domain/interfaces"
	"github.com/m-mizutani/hoist/pkg/domain/model"
	"github.com/m-mizutani/hoist/pkg/domain/types"
)

// ReleaseResolver makes sure exactly one release exists for a tag
type ReleaseResolver struct {
	directory interfaces.ReleaseDirectory
}

// NewReleaseResolver creates a ReleaseResolver
func NewReleaseResolver(directory interfaces.ReleaseDirectory) *ReleaseResolver {
	return &ReleaseResolver{directory: directory}
}

// Resolve returns the release for target.TagName, creating it when absent.
// An existing release is returned as is, even if its name, body or flags
// differ from target. Resolve does not retry: a lost creation race comes
// back as a conflict and the next attempt finds the release by tag.
func (r *ReleaseResolver) Resolve(ctx context.Context, target *model.ReleaseTarget) (*model.Release, bool, error) {
	logger := ctxlog.From(ctx)

	if err := target.Validate(); err != nil {
		return nil, false, err
	}

	existing, err := r.directory.FindReleaseByTag(ctx, target.TagName)
	if err != nil {
		return nil, false, goerr.Wrap(err, "failed to find release by tag",
			goerr.V("tag", target.TagName))
	}
	if existing != nil {
		logger.Info("Reusing existing release",
			"tag", existing.TagName,
			"release_id", existing.ID,
		)
		return existing, false, nil
	}

	logger.Info("Creating release",
		"tag", target.TagName,
		"target_commitish", target.TargetCommitish,
		"draft", target.Draft,
		"prerelease", target.Prerelease,
	)

	created, err := r.directory.CreateRelease(ctx, target)
	if err != nil {
		if goerr.HasTag(err, types.ErrTagConflict) {
			logger.Warn("Release was created concurrently, will look it up again",
				"tag", target.TagName,
			)
		}
		return nil, false, goerr.Wrap(err, "failed to create release",
			goerr.V("tag", target.TagName))
	}

	logger.Info("Created release",
		"tag", created.TagName,
		"release_id", created.ID,
	)

	return created, true, nil
}
