package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/vind/internal/apperror"
	"github.com/sakif/vind/internal/ingest"
	"github.com/sakif/vind/internal/videoprovider"
)

// ErrUploadsDisabled is the cause reported when no provider is configured.
var ErrUploadsDisabled = errors.New("video provider is not configured")

// PublishQueue runs background publish jobs. *ingest.Watcher implements it.
type PublishQueue interface {
	Submit(req ingest.Request) (ingest.Job, error)
	Job(uploadID string) (ingest.Job, bool)
}

// UploadService fronts the video provider. provider and queue may be nil when
// uploads are not configured; every method then reports an upstream failure.
type UploadService struct {
	provider videoprovider.Provider
	queue    PublishQueue
	logger   *slog.Logger
}

func NewUploadService(provider videoprovider.Provider, queue PublishQueue, logger *slog.Logger) *UploadService {
	return &UploadService{provider: provider, queue: queue, logger: logger}
}

// CreateUpload opens a direct upload slot for the client.
func (s *UploadService) CreateUpload(ctx context.Context) (*videoprovider.Upload, error) {
	if s.provider == nil {
		return nil, apperror.Upstream("Failed to create upload", ErrUploadsDisabled)
	}
	u, err := s.provider.CreateUpload(ctx)
	if err != nil {
		return nil, apperror.Upstream("Failed to create upload", err)
	}
	return u, nil
}

// GetUpload reads an upload's state once.
func (s *UploadService) GetUpload(ctx context.Context, uploadID string) (*videoprovider.Upload, error) {
	if strings.TrimSpace(uploadID) == "" {
		return nil, apperror.ValidationFailed("upload_id", "Upload ID is required")
	}
	if s.provider == nil {
		return nil, apperror.Upstream("Failed to retrieve upload", ErrUploadsDisabled)
	}
	u, err := s.provider.GetUpload(ctx, uploadID)
	if err != nil {
		if errors.Is(err, videoprovider.ErrNotFound) {
			return nil, apperror.NotFoundMessage("Upload not found")
		}
		return nil, apperror.Upstream("Failed to retrieve upload", err)
	}
	return u, nil
}

// GetAsset reads an asset once.
func (s *UploadService) GetAsset(ctx context.Context, assetID string) (*videoprovider.Asset, error) {
	if strings.TrimSpace(assetID) == "" {
		return nil, apperror.ValidationFailed("asset_id", "Asset ID is required")
	}
	if s.provider == nil {
		return nil, apperror.Upstream("Failed to retrieve asset", ErrUploadsDisabled)
	}
	a, err := s.provider.GetAsset(ctx, assetID)
	if err != nil {
		if errors.Is(err, videoprovider.ErrNotFound) {
			return nil, apperror.NotFoundMessage("Asset not found")
		}
		return nil, apperror.Upstream("Failed to retrieve asset", err)
	}
	return a, nil
}

// Publish queues the upload to become username's video once it is playable.
func (s *UploadService) Publish(ctx context.Context, uploadID, username, description string) (*ingest.Job, error) {
	if strings.TrimSpace(uploadID) == "" {
		return nil, apperror.ValidationFailed("upload_id", "Upload ID is required")
	}
	if username == "" {
		return nil, apperror.ValidationFailed("username", "Username is required")
	}
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return nil, apperror.ValidationFailed("description",
			fmt.Sprintf("Description must be %d characters or less", MaxDescriptionLength))
	}
	if s.queue == nil {
		return nil, apperror.Upstream("Failed to publish upload", ErrUploadsDisabled)
	}

	if existing, ok := s.queue.Job(uploadID); ok && existing.Username != username {
		return nil, apperror.Forbidden("This upload belongs to another user")
	}

	job, err := s.queue.Submit(ingest.Request{UploadID: uploadID, Username: username, Description: description})
	if err != nil {
		return nil, apperror.Upstream("Failed to publish upload", err)
	}
	return &job, nil
}

// PublishStatus returns the publish job of uploadID if it belongs to username.
func (s *UploadService) PublishStatus(ctx context.Context, uploadID, username string) (*ingest.Job, error) {
	if s.queue == nil {
		return nil, apperror.NotFoundMessage("Publish job not found")
	}
	job, ok := s.queue.Job(uploadID)
	if !ok || job.Username != username {
		return nil, apperror.NotFoundMessage("Publish job not found")
	}
	return &job, nil
}
