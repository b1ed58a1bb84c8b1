// Package ingest turns finished uploads into published videos in the
// background. A client uploads bytes straight to the video provider, then
// asks Vind to publish; a Watcher polls the provider until the asset is
// playable and creates the video record.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sakif/vind/internal/model"
	"github.com/sakif/vind/internal/videoprovider"
)

// State is the lifecycle position of a publish job.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StatePublished  State = "published"
	StateFailed     State = "failed"
)

var (
	ErrQueueFull = errors.New("ingest: queue is full")
	ErrStopped   = errors.New("ingest: watcher is stopped")
)

var jobsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "vind_ingest_jobs_total",
		Help: "Publish jobs by final state",
	},
	[]string{"state"},
)

// Request asks for an upload to be published as username's video.
type Request struct {
	UploadID    string
	Username    string
	Description string
}

// Job is a snapshot of a publish job.
type Job struct {
	ID          string        `json:"id"`
	UploadID    string        `json:"uploadId"`
	Username    string        `json:"username"`
	Description string        `json:"description"`
	State       State         `json:"state"`
	Attempts    int           `json:"attempts"`
	AssetID     string        `json:"assetId,omitempty"`
	VideoID     model.VideoID `json:"videoId,omitempty"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Publisher creates the video record once an asset is playable.
type Publisher interface {
	PublishAsset(ctx context.Context, draft model.VideoDraft) (*model.Video, error)
}

// Config sizes the watcher.
type Config struct {
	Workers   int
	QueueSize int
	Poll      videoprovider.PollConfig
}

// Watcher runs publish jobs on a fixed set of worker goroutines. Jobs are
// kept in memory keyed by upload id.
type Watcher struct {
	provider  videoprovider.Provider
	publisher Publisher
	config    Config
	logger    *slog.Logger

	queue  chan string
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once

	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewWatcher creates a watcher. Call Start before submitting jobs.
func NewWatcher(provider videoprovider.Provider, publisher Publisher, cfg Config, logger *slog.Logger) *Watcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		provider:  provider,
		publisher: publisher,
		config:    cfg,
		logger:    logger,
		queue:     make(chan string, cfg.QueueSize),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		jobs:      make(map[string]*Job),
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (w *Watcher) Start() {
	w.startOnce.Do(func() {
		w.logger.Info("starting ingest watcher", slog.Int("workers", w.config.Workers))
		for range w.config.Workers {
			w.wg.Add(1)
			go w.worker()
		}
	})
}

// Stop cancels in-flight polls and waits for the workers to exit. Jobs still
// queued are marked failed.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("shutting down ingest watcher")
		close(w.done)
		w.cancel()
		w.wg.Wait()

		for {
			select {
			case uploadID := <-w.queue:
				w.finish(uploadID, func(j *Job) {
					j.State = StateFailed
					j.Error = "server shutting down"
				})
			default:
				return
			}
		}
	})
}

// Submit enqueues a publish job. Submitting an upload that already has a
// pending, processing or published job returns that job unchanged; a failed
// job is replaced.
func (w *Watcher) Submit(req Request) (Job, error) {
	select {
	case <-w.done:
		return Job{}, ErrStopped
	default:
	}

	w.mu.Lock()
	if existing, ok := w.jobs[req.UploadID]; ok && existing.State != StateFailed {
		snapshot := *existing
		w.mu.Unlock()
		return snapshot, nil
	}

	now := time.Now().UTC()
	job := &Job{
		ID:          uuid.NewString(),
		UploadID:    req.UploadID,
		Username:    req.Username,
		Description: req.Description,
		State:       StatePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	select {
	case w.queue <- req.UploadID:
		w.jobs[req.UploadID] = job
		snapshot := *job
		w.mu.Unlock()
		w.logger.Info("publish job queued", slog.String("jobID", job.ID), slog.String("uploadID", job.UploadID))
		return snapshot, nil
	default:
		w.mu.Unlock()
		return Job{}, ErrQueueFull
	}
}

// Job returns the current snapshot of the job for uploadID.
func (w *Watcher) Job(uploadID string) (Job, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	j, ok := w.jobs[uploadID]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

func (w *Watcher) worker() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case uploadID := <-w.queue:
			w.run(uploadID)
		}
	}
}

func (w *Watcher) run(uploadID string) {
	job, ok := w.update(uploadID, func(j *Job) { j.State = StateProcessing })
	if !ok {
		return
	}
	logger := w.logger.With(slog.String("jobID", job.ID), slog.String("uploadID", uploadID))

	poll := w.config.Poll
	poll.OnAttempt = func(attempt int, _ *videoprovider.Upload, asset *videoprovider.Asset) {
		w.update(uploadID, func(j *Job) {
			j.Attempts = attempt
			if asset != nil {
				j.AssetID = asset.ID
			}
		})
	}

	asset, err := videoprovider.AwaitAsset(w.ctx, w.provider, uploadID, poll)
	if err != nil {
		logger.Warn("publish job failed", slog.String("error", err.Error()))
		w.finish(uploadID, func(j *Job) {
			j.State = StateFailed
			j.Error = failureMessage(err)
		})
		return
	}

	video, err := w.publisher.PublishAsset(w.ctx, model.VideoDraft{
		Username:    job.Username,
		Description: job.Description,
		PlaybackID:  asset.PlaybackID(),
		AssetID:     asset.ID,
		Thumbnail:   thumbnailURL(asset.PlaybackID()),
	})
	if err != nil {
		logger.Error("creating video for asset failed", slog.String("assetID", asset.ID), slog.String("error", err.Error()))
		w.finish(uploadID, func(j *Job) {
			j.State = StateFailed
			j.AssetID = asset.ID
			j.Error = "Failed to create video"
		})
		return
	}

	logger.Info("video published", slog.String("videoID", string(video.ID)), slog.String("assetID", asset.ID))
	w.finish(uploadID, func(j *Job) {
		j.State = StatePublished
		j.AssetID = asset.ID
		j.VideoID = video.ID
	})
}

func (w *Watcher) update(uploadID string, fn func(*Job)) (Job, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	j, ok := w.jobs[uploadID]
	if !ok {
		return Job{}, false
	}
	fn(j)
	j.UpdatedAt = time.Now().UTC()
	return *j, true
}

func (w *Watcher) finish(uploadID string, fn func(*Job)) {
	if j, ok := w.update(uploadID, fn); ok {
		jobsTotal.WithLabelValues(string(j.State)).Inc()
	}
}

func failureMessage(err error) string {
	var failed *videoprovider.FailedError
	switch {
	case errors.As(err, &failed):
		return "Processing failed"
	case errors.Is(err, videoprovider.ErrTimeout):
		return "Processing timed out"
	case errors.Is(err, videoprovider.ErrNotFound):
		return "Upload not found"
	case errors.Is(err, context.Canceled):
		return "server shutting down"
	}
	return "Processing failed"
}

func thumbnailURL(playbackID string) string {
	if playbackID == "" {
		return ""
	}
	return fmt.Sprintf("https://image.mux.com/%s/thumbnail.jpg", playbackID)
}
