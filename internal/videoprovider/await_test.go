package videoprovider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// scriptedProvider returns the next upload/asset state on every call.
type scriptedProvider struct {
	mu      sync.Mutex
	uploads []*Upload
	assets  []*Asset
	calls   int
	err     error
}

func (p *scriptedProvider) CreateUpload(context.Context) (*Upload, error) {
	return &Upload{ID: "up1", Status: UploadWaiting}, nil
}

func (p *scriptedProvider) GetUpload(_ context.Context, id string) (*Upload, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	i := min(p.calls, len(p.uploads)-1)
	p.calls++
	return p.uploads[i], nil
}

func (p *scriptedProvider) GetAsset(_ context.Context, id string) (*Asset, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := min(p.calls-1, len(p.assets)-1)
	return p.assets[i], nil
}

var fastPoll = PollConfig{Interval: time.Millisecond, Attempts: 5}

func TestAwaitAsset_ReadyAfterProcessing(t *testing.T) {
	p := &scriptedProvider{
		uploads: []*Upload{
			{ID: "up1", Status: UploadWaiting},
			{ID: "up1", Status: UploadAssetCreated, AssetID: "as1"},
			{ID: "up1", Status: UploadAssetCreated, AssetID: "as1"},
		},
		assets: []*Asset{
			{ID: "as1", Status: AssetPreparing},
			{ID: "as1", Status: AssetPreparing},
			{ID: "as1", Status: AssetReady, PlaybackIDs: []PlaybackID{{ID: "pb1"}}},
		},
	}

	var attempts []int
	cfg := fastPoll
	cfg.OnAttempt = func(n int, _ *Upload, _ *Asset) { attempts = append(attempts, n) }

	a, err := AwaitAsset(context.Background(), p, "up1", cfg)
	if err != nil {
		t.Fatalf("AwaitAsset() error = %v", err)
	}
	if a.PlaybackID() != "pb1" {
		t.Errorf("PlaybackID() = %q, want pb1", a.PlaybackID())
	}
	if len(attempts) != 2 {
		t.Errorf("unsuccessful attempts = %v, want 2", attempts)
	}
}

func TestAwaitAsset_GivesUpAfterAttempts(t *testing.T) {
	p := &scriptedProvider{uploads: []*Upload{{ID: "up1", Status: UploadWaiting}}}

	_, err := AwaitAsset(context.Background(), p, "up1", fastPoll)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("AwaitAsset() error = %v, want ErrTimeout", err)
	}
	if p.calls != fastPoll.Attempts {
		t.Errorf("GetUpload calls = %d, want %d", p.calls, fastPoll.Attempts)
	}
}

func TestAwaitAsset_StopsOnProviderFailure(t *testing.T) {
	p := &scriptedProvider{uploads: []*Upload{{ID: "up1", Status: UploadErrored, Error: "bad file"}}}

	_, err := AwaitAsset(context.Background(), p, "up1", fastPoll)
	var failed *FailedError
	if !errors.As(err, &failed) {
		t.Fatalf("AwaitAsset() error = %v, want *FailedError", err)
	}
	if failed.Reason != "bad file" {
		t.Errorf("Reason = %q, want bad file", failed.Reason)
	}
	if p.calls != 1 {
		t.Errorf("GetUpload calls = %d, want 1", p.calls)
	}
}

func TestAwaitAsset_UnknownUpload(t *testing.T) {
	p := &scriptedProvider{err: ErrNotFound}

	if _, err := AwaitAsset(context.Background(), p, "nope", fastPoll); !errors.Is(err, ErrNotFound) {
		t.Errorf("AwaitAsset() error = %v, want ErrNotFound", err)
	}
}

func TestAwaitAsset_ContextCanceled(t *testing.T) {
	p := &scriptedProvider{uploads: []*Upload{{ID: "up1", Status: UploadWaiting}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := AwaitAsset(ctx, p, "up1", PollConfig{Interval: time.Hour, Attempts: 30})
	if err == nil {
		t.Fatal("AwaitAsset() with canceled context succeeded")
	}
}
