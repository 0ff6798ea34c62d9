package usecase_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/hoist/pkg/domain/model"
	"github.com/m-mizutani/hoist/pkg/domain/types"
)

// fakeDirectory is an in-memory release directory with scripted faults.
// Hooks receive the 1-based number of the call being made.
type fakeDirectory struct {
	mu       sync.Mutex
	releases map[string]*model.Release
	assets   map[int64][]*model.Asset
	nextID   int64

	findCalls   int
	createCalls int
	listCalls   int
	uploadCalls map[string]int
	deleteCalls int

	findErr   func(n int) error
	createErr func(n int) error
	listErr   func(n int) error
	deleteErr func(n int) error
	// uploadHook may fail the upload or override the state the remote ends up in
	uploadHook func(name string, n int) (model.AssetState, error)
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		releases:    make(map[string]*model.Release),
		assets:      make(map[int64][]*model.Asset),
		uploadCalls: make(map[string]int),
		nextID:      100,
	}
}

func (f *fakeDirectory) id() int64 {
	f.nextID++
	return f.nextID
}

// addRelease seeds a release as if another process had created it
func (f *fakeDirectory) addRelease(target model.ReleaseTarget) *model.Release {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addReleaseLocked(&target)
}

func (f *fakeDirectory) addReleaseLocked(target *model.ReleaseTarget) *model.Release {
	release := &model.Release{
		ID:         f.id(),
		TagName:    target.TagName,
		Name:       target.Name,
		Body:       target.Body,
		Draft:      target.Draft,
		Prerelease: target.Prerelease,
	}
	f.releases[target.TagName] = release
	return release
}

// addAsset seeds an asset on a release
func (f *fakeDirectory) addAsset(releaseID int64, name string, size int64, state model.AssetState) *model.Asset {
	f.mu.Lock()
	defer f.mu.Unlock()
	asset := &model.Asset{ID: f.id(), Name: name, Size: size, State: state}
	f.assets[releaseID] = append(f.assets[releaseID], asset)
	return asset
}

func (f *fakeDirectory) releaseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.releases)
}

func (f *fakeDirectory) assetsOf(releaseID int64) []model.Asset {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Asset
	for _, a := range f.assets[releaseID] {
		out = append(out, *a)
	}
	return out
}

func (f *fakeDirectory) FindReleaseByTag(ctx context.Context, tag string) (*model.Release, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls++
	if f.findErr != nil {
		if err := f.findErr(f.findCalls); err != nil {
			return nil, err
		}
	}
	release, ok := f.releases[tag]
	if !ok {
		return nil, nil
	}
	copied := *release
	return &copied, nil
}

func (f *fakeDirectory) CreateRelease(ctx context.Context, target *model.ReleaseTarget) (*model.Release, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		if err := f.createErr(f.createCalls); err != nil {
			return nil, err
		}
	}
	if _, ok := f.releases[target.TagName]; ok {
		return nil, goerr.New("release already exists", goerr.T(types.ErrTagConflict))
	}
	release := f.addReleaseLocked(target)
	copied := *release
	return &copied, nil
}

func (f *fakeDirectory) ListAssets(ctx context.Context, releaseID int64) ([]*model.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		if err := f.listErr(f.listCalls); err != nil {
			return nil, err
		}
	}
	var out []*model.Asset
	for _, a := range f.assets[releaseID] {
		copied := *a
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeDirectory) UploadAsset(ctx context.Context, release *model.Release, name string, r io.Reader, size int64) (*model.Asset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadCalls[name]++

	if model.FindAsset(f.assets[release.ID], name) != nil {
		return nil, goerr.New("asset already exists", goerr.V("name", name))
	}

	state := model.AssetStateUploaded
	if f.uploadHook != nil {
		s, err := f.uploadHook(name, f.uploadCalls[name])
		if err != nil {
			return nil, err
		}
		if s != "" {
			state = s
		}
	}

	asset := &model.Asset{ID: f.id(), Name: name, Size: int64(len(data)), State: state}
	f.assets[release.ID] = append(f.assets[release.ID], asset)
	copied := *asset
	return &copied, nil
}

func (f *fakeDirectory) DeleteAsset(ctx context.Context, assetID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if f.deleteErr != nil {
		if err := f.deleteErr(f.deleteCalls); err != nil {
			return err
		}
	}
	for releaseID, assets := range f.assets {
		for i, a := range assets {
			if a.ID == assetID {
				f.assets[releaseID] = append(assets[:i:i], assets[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

// hiddenDirectory hides assets in the starter state from listings and
// exposes them through LocateAsset, like the GitHub REST API does.
type hiddenDirectory struct {
	*fakeDirectory
	locateCalls int
	locateErr   error
}

func (h *hiddenDirectory) ListAssets(ctx context.Context, releaseID int64) ([]*model.Asset, error) {
	assets, err := h.fakeDirectory.ListAssets(ctx, releaseID)
	if err != nil {
		return nil, err
	}
	var visible []*model.Asset
	for _, a := range assets {
		if a.State != model.AssetStateStarter {
			visible = append(visible, a)
		}
	}
	return visible, nil
}

func (h *hiddenDirectory) LocateAsset(ctx context.Context, release *model.Release, name string) (*model.Asset, error) {
	h.locateCalls++
	if h.locateErr != nil {
		return nil, h.locateErr
	}
	assets, err := h.fakeDirectory.ListAssets(ctx, release.ID)
	if err != nil {
		return nil, err
	}
	return model.FindAsset(assets, name), nil
}

// memSource is an in-memory asset source
type memSource struct {
	name    string
	data    []byte
	openErr error
	opens   int
}

func newMemSource(name string, size int) *memSource {
	return &memSource{name: name, data: bytes.Repeat([]byte("x"), size)}
}

func (s *memSource) Name() string { return s.name }
func (s *memSource) Size() int64  { return int64(len(s.data)) }

func (s *memSource) Open(ctx context.Context) (io.ReadCloser, error) {
	s.opens++
	if s.openErr != nil {
		return nil, s.openErr
	}
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

var errNetwork = errors.New("connection reset by peer")
