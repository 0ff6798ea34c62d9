package model

// Outcome is the result of one reconciliation attempt for an asset
type Outcome string

const (
	OutcomeUploaded          Outcome = "uploaded"
	OutcomeAlreadyConsistent Outcome = "already-consistent"
	OutcomeNeedsRetry        Outcome = "needs-retry"
)

// AssetAction is the corrective action chosen for an asset
type AssetAction string

const (
	ActionSkip    AssetAction = "skip"    // remote copy already matches
	ActionUpload  AssetAction = "upload"  // no remote copy
	ActionReplace AssetAction = "replace" // remote copy is stale or incomplete; delete then upload
)

// Decision is the pure result of comparing remote assets with a source
type Decision struct {
	Action   AssetAction
	Existing *Asset // Remote asset with the source's name, if any
}

// AssetResult is the final state of one requested asset after a run
type AssetResult struct {
	Name     string
	Size     int64
	Outcome  Outcome
	Attempts int
	Err      error
}

// Done reports whether the asset converged
func (r *AssetResult) Done() bool {
	return r.Err == nil && (r.Outcome == OutcomeUploaded || r.Outcome == OutcomeAlreadyConsistent)
}

// PublishResult summarizes a run
type PublishResult struct {
	Release         *Release
	ReleaseCreated  bool
	ReleaseAttempts int
	Assets          []*AssetResult
}

// Failed returns the assets that did not converge
func (r *PublishResult) Failed() []*AssetResult {
	var failed []*AssetResult
	for _, asset := range r.Assets {
		if !asset.Done() {
			failed = append(failed, asset)
		}
	}
	return failed
}

// Succeeded reports whether the release exists and every asset converged
func (r *PublishResult) Succeeded() bool {
	return r.Release != nil && len(r.Failed()) == 0
}
