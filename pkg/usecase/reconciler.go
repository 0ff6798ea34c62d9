package usecase

import (
	"context"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/hoist/pkg/domain/interfaces"
	"github.com/m-mizutani/hoist/pkg/domain/model"
	"github.com/m-mizutani/hoist/pkg/domain/types"
)

// DecideAction compares the remote assets with a source of the given name and
// size and returns the corrective action. It performs no I/O.
func DecideAction(assets []*model.Asset, name string, size int64) model.Decision {
	existing := model.FindAsset(assets, name)
	switch {
	case existing == nil:
		return model.Decision{Action: model.ActionUpload}
	case existing.Matches(name, size):
		return model.Decision{Action: model.ActionSkip, Existing: existing}
	default:
		return model.Decision{Action: model.ActionReplace, Existing: existing}
	}
}

// AssetReconciler brings one asset of a release in line with its source
type AssetReconciler struct {
	directory interfaces.ReleaseDirectory
}

// NewAssetReconciler creates an AssetReconciler
func NewAssetReconciler(directory interfaces.ReleaseDirectory) *AssetReconciler {
	return &AssetReconciler{directory: directory}
}

// Reconcile performs a single observe-act-verify pass for src. Remote state is
// always listed afresh; nothing is remembered between calls.
//
// It returns OutcomeNeedsRetry when the upload was sent but could not be
// confirmed. Errors are returned for failed remote calls (transient unless
// tagged otherwise) and for unreadable sources (fatal).
func (r *AssetReconciler) Reconcile(ctx context.Context, release *model.Release, src interfaces.AssetSource) (model.Outcome, error) {
	logger := ctxlog.From(ctx).With("asset", src.Name())

	assets, err := r.observe(ctx, release, src.Name())
	if err != nil {
		return "", err
	}

	decision := DecideAction(assets, src.Name(), src.Size())
	logger.Debug("Decided asset action",
		"action", decision.Action,
		"local_size", src.Size(),
	)

	switch decision.Action {
	case model.ActionSkip:
		logger.Info("Asset already has the expected size and state",
			"asset_id", decision.Existing.ID,
			"size", decision.Existing.Size,
		)
		return model.OutcomeAlreadyConsistent, nil

	case model.ActionReplace:
		logger.Warn("Asset is stale or incomplete, replacing it",
			"asset_id", decision.Existing.ID,
			"remote_size", decision.Existing.Size,
			"remote_state", decision.Existing.State,
			"local_size", src.Size(),
		)
	}

	// Local bytes must be readable before anything remote is deleted.
	rc, err := src.Open(ctx)
	if err != nil {
		return "", goerr.Wrap(err, "failed to open asset source",
			goerr.V("asset", src.Name()),
			goerr.T(types.ErrTagFatal))
	}
	defer rc.Close()

	if decision.Action == model.ActionReplace {
		if err := r.directory.DeleteAsset(ctx, decision.Existing.ID); err != nil {
			return "", goerr.Wrap(err, "failed to delete stale asset",
				goerr.V("asset", src.Name()),
				goerr.V("asset_id", decision.Existing.ID))
		}
		logger.Info("Deleted stale asset", "asset_id", decision.Existing.ID)
	}

	logger.Info("Uploading asset", "size", src.Size())
	uploaded, err := r.directory.UploadAsset(ctx, release, src.Name(), rc, src.Size())
	if err != nil {
		return "", goerr.Wrap(err, "failed to upload asset",
			goerr.V("asset", src.Name()))
	}
	if uploaded != nil {
		logger.Debug("Upload accepted",
			"asset_id", uploaded.ID,
			"state", uploaded.State,
		)
	}

	return r.verify(ctx, release, src)
}

// observe lists the release's assets. If the listing has no asset of that
// name, an AssetLocator is asked for one the listing may hide.
func (r *AssetReconciler) observe(ctx context.Context, release *model.Release, name string) ([]*model.Asset, error) {
	assets, err := r.directory.ListAssets(ctx, release.ID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list assets",
			goerr.V("release_id", release.ID))
	}

	if model.FindAsset(assets, name) != nil {
		return assets, nil
	}

	locator, ok := r.directory.(interfaces.AssetLocator)
	if !ok {
		return assets, nil
	}

	hidden, err := locator.LocateAsset(ctx, release, name)
	if err != nil {
		ctxlog.From(ctx).Warn("Ignoring failed hidden asset lookup",
			"asset", name,
			"error", err,
		)
		return assets, nil
	}
	if hidden != nil {
		ctxlog.From(ctx).Info("Found asset missing from the release listing",
			"asset", name,
			"asset_id", hidden.ID,
			"state", hidden.State,
		)
		assets = append(assets, hidden)
	}

	return assets, nil
}

// verify re-lists the assets and checks the upload converged
func (r *AssetReconciler) verify(ctx context.Context, release *model.Release, src interfaces.AssetSource) (model.Outcome, error) {
	logger := ctxlog.From(ctx).With("asset", src.Name())

	assets, err := r.directory.ListAssets(ctx, release.ID)
	if err != nil {
		return "", goerr.Wrap(err, "failed to list assets for verification",
			goerr.V("release_id", release.ID))
	}

	asset := model.FindAsset(assets, src.Name())
	if asset == nil {
		logger.Warn("Uploaded asset is not listed yet")
		return model.OutcomeNeedsRetry, nil
	}
	if !asset.Matches(src.Name(), src.Size()) {
		logger.Warn("Uploaded asset does not have the expected size and state",
			"asset_id", asset.ID,
			"remote_size", asset.Size,
			"remote_state", asset.State,
			"local_size", src.Size(),
		)
		return model.OutcomeNeedsRetry, nil
	}

	logger.Info("Asset uploaded and verified",
		"asset_id", asset.ID,
		"size", asset.Size,
	)
	return model.OutcomeUploaded, nil
}
