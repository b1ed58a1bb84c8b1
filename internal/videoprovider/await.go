package videoprovider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// Default polling cadence for AwaitAsset.
const (
	DefaultPollInterval = 10 * time.Second
	DefaultPollAttempts = 30
)

// ErrTimeout is returned when an upload does not become a playable asset
// within the configured number of attempts.
var ErrTimeout = errors.New("videoprovider: asset not ready in time")

// PollConfig controls AwaitAsset.
type PollConfig struct {
	Interval time.Duration
	Attempts int
	// OnAttempt, when set, is called after every unsuccessful poll.
	OnAttempt func(attempt int, upload *Upload, asset *Asset)
}

func (c PollConfig) withDefaults() PollConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultPollInterval
	}
	if c.Attempts <= 0 {
		c.Attempts = DefaultPollAttempts
	}
	return c
}

// FailedError is a terminal failure reported by the provider itself.
type FailedError struct {
	Status string
	Reason string
}

func (e *FailedError) Error() string {
	if e.Reason == "" {
		return "videoprovider: processing failed with status " + e.Status
	}
	return fmt.Sprintf("videoprovider: processing failed with status %s: %s", e.Status, e.Reason)
}

var errNotReady = errors.New("not ready")

// AwaitAsset polls an upload until its asset is ready to play. It checks the
// upload, then the asset once one exists, waiting cfg.Interval between
// attempts. Provider-reported failures stop polling immediately; transport
// errors are retried like a not-ready state.
func AwaitAsset(ctx context.Context, p Provider, uploadID string, cfg PollConfig) (*Asset, error) {
	cfg = cfg.withDefaults()

	var (
		ready   *Asset
		attempt int
		lastErr error
	)
	backoff := retry.WithMaxRetries(uint64(cfg.Attempts-1), retry.NewConstant(cfg.Interval))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		upload, asset, err := pollOnce(ctx, p, uploadID)
		if err != nil {
			var failed *FailedError
			if errors.As(err, &failed) || errors.Is(err, ErrNotFound) {
				return err
			}
			lastErr = err
		}
		if asset != nil && asset.Ready() {
			ready = asset
			return nil
		}
		if cfg.OnAttempt != nil {
			cfg.OnAttempt(attempt, upload, asset)
		}
		return retry.RetryableError(errNotReady)
	})

	switch {
	case err == nil:
		return ready, nil
	case errors.Is(err, errNotReady):
		if lastErr != nil {
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrTimeout, attempt, lastErr)
		}
		return nil, fmt.Errorf("%w after %d attempts", ErrTimeout, attempt)
	default:
		return nil, err
	}
}

func pollOnce(ctx context.Context, p Provider, uploadID string) (*Upload, *Asset, error) {
	upload, err := p.GetUpload(ctx, uploadID)
	if err != nil {
		return nil, nil, err
	}
	switch upload.Status {
	case UploadErrored, UploadCancelled, UploadTimedOut:
		return upload, nil, &FailedError{Status: upload.Status, Reason: upload.Error}
	}
	if upload.AssetID == "" {
		return upload, nil, nil
	}

	asset, err := p.GetAsset(ctx, upload.AssetID)
	if err != nil {
		return upload, nil, err
	}
	if asset.Status == AssetErrored {
		return upload, asset, &FailedError{Status: asset.Status}
	}
	return upload, asset, nil
}
