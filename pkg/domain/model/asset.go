package model

// AssetState is the processing state the remote reports for an asset
type AssetState string

const (
	// AssetStateUploaded is the only state in which an asset is complete
	AssetStateUploaded AssetState = "uploaded"
	// AssetStateStarter is reported while an upload is in flight or was abandoned
	AssetStateStarter AssetState = "starter"
)

// IsHealthy reports whether the asset is fully processed
func (s AssetState) IsHealthy() bool {
	return s == AssetStateUploaded
}

// Asset is a file attached to a release
type Asset struct {
	ID          int64
	Name        string
	Size        int64
	State       AssetState
	DownloadURL string
}

// Matches reports whether the asset is a complete copy of a source with the given name and size.
// Only the byte length is compared; the remote exposes no content digest.
func (a *Asset) Matches(name string, size int64) bool {
	return a.Name == name && a.Size == size && a.State.IsHealthy()
}

// FindAsset returns the first asset named name, or nil
func FindAsset(assets []*Asset, name string) *Asset {
	for _, asset := range assets {
		if asset != nil && asset.Name == name {
			return asset
		}
	}
	return nil
}
