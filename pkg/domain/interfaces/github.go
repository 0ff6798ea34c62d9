package interfaces

import (
	"context"
	"io"

	"github.com/m-mizutani/hoist/pkg/domain/model"
)

// ReleaseDirectory is the set of remote operations hoist relies on.
// Implementations bind to a single repository.
type ReleaseDirectory interface {
	// FindReleaseByTag returns the release for tag, or nil if there is none
	FindReleaseByTag(ctx context.Context, tag string) (*model.Release, error)

	// CreateRelease creates a release. Losing a race for the tag yields an
	// error tagged types.ErrTagConflict.
	CreateRelease(ctx context.Context, target *model.ReleaseTarget) (*model.Release, error)

	// ListAssets returns the assets attached to a release
	ListAssets(ctx context.Context, releaseID int64) ([]*model.Asset, error)

	// UploadAsset uploads size bytes read from r as a new asset named name
	UploadAsset(ctx context.Context, release *model.Release, name string, r io.Reader, size int64) (*model.Asset, error)

	// DeleteAsset removes an asset. Deleting an asset that is already gone succeeds.
	DeleteAsset(ctx context.Context, assetID int64) error
}

// AssetLocator finds an asset by name even when the release listing hides it,
// e.g. an upload that never left the "starter" state.
type AssetLocator interface {
	// LocateAsset returns the asset or nil if the remote has none by that name
	LocateAsset(ctx context.Context, release *model.Release, name string) (*model.Asset, error)
}

// AssetSource is a local counterpart of an asset. Bytes are read lazily.
type AssetSource interface {
	Name() string
	Size() int64
	Open(ctx context.Context) (io.ReadCloser, error)
}
