package model

import (
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/hoist/pkg/domain/types"
)

// ReleaseTarget describes the release requested by one invocation
type ReleaseTarget struct {
	TagName         string // Tag to create or reuse
	TargetCommitish string // Commit-ish the tag is created from; unused if the tag exists
	Name            string // Display name; empty means the tag name is used
	Body            string // Release notes
	Draft           bool
	Prerelease      bool
}

// Validate checks the target can be sent to the remote directory
func (t *ReleaseTarget) Validate() error {
	if t.TagName == "" {
		return goerr.New("tag name is required", goerr.T(types.ErrTagFatal))
	}
	return nil
}

// Release is a release as observed on the remote directory
type Release struct {
	ID         int64
	TagName    string
	Name       string
	Body       string
	Draft      bool
	Prerelease bool
	UploadURL  string // Upload endpoint template, e.g. ".../releases/1/assets{?name,label}"
	HTMLURL    string
}
