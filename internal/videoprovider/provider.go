// Package videoprovider talks to the hosted video service that stores, encodes
// and streams Vind videos. Clients upload bytes directly to a signed URL
// handed out by the provider; Vind only creates uploads and reads their state.
package videoprovider

import (
	"context"
	"errors"
	"fmt"
)

// Upload states reported by the provider.
const (
	UploadWaiting      = "waiting"
	UploadAssetCreated = "asset_created"
	UploadErrored      = "errored"
	UploadCancelled    = "cancelled"
	UploadTimedOut     = "timed_out"
)

// Asset states reported by the provider.
const (
	AssetPreparing = "preparing"
	AssetReady     = "ready"
	AssetErrored   = "errored"
)

// ErrNotFound is returned when the provider does not know an upload or asset.
var ErrNotFound = errors.New("videoprovider: not found")

// Upload is a direct upload slot.
type Upload struct {
	ID      string `json:"upload_id"`
	URL     string `json:"upload_url,omitempty"`
	Status  string `json:"status"`
	AssetID string `json:"asset_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// PlaybackID is a public handle used by players to stream an asset.
type PlaybackID struct {
	ID     string `json:"id"`
	Policy string `json:"policy"`
}

// Asset is an encoded video.
type Asset struct {
	ID          string       `json:"id"`
	Status      string       `json:"status"`
	PlaybackIDs []PlaybackID `json:"playback_ids"`
	Duration    float64      `json:"duration,omitempty"`
}

// Ready reports whether the asset can be played.
func (a *Asset) Ready() bool {
	return a.Status == AssetReady && len(a.PlaybackIDs) > 0
}

// PlaybackID returns the first playback id, or "" if there is none.
func (a *Asset) PlaybackID() string {
	if len(a.PlaybackIDs) == 0 {
		return ""
	}
	return a.PlaybackIDs[0].ID
}

// Provider is the subset of the hosted video API Vind depends on.
type Provider interface {
	CreateUpload(ctx context.Context) (*Upload, error)
	GetUpload(ctx context.Context, uploadID string) (*Upload, error)
	GetAsset(ctx context.Context, assetID string) (*Asset, error)
}

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("videoprovider: status %d: %s", e.StatusCode, e.Message)
}
