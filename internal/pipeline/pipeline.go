// Package pipeline implements the per-video distribute→poll→collect→manifest
// state machine: the hub that calls out to workers, tracks status, and
// writes the final HLS artifacts. It plays the role the teacher's
// internal/usecase.TranscodeService plays for a single local ffmpeg run,
// generalized to fan out across a pool of remote workers.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/hszk-dev/streamcast/internal/config"
	"github.com/hszk-dev/streamcast/internal/filestore"
	"github.com/hszk-dev/streamcast/internal/manifest"
	"github.com/hszk-dev/streamcast/internal/metrics"
	"github.com/hszk-dev/streamcast/internal/model"
	"github.com/hszk-dev/streamcast/internal/statusstore"
	"github.com/hszk-dev/streamcast/internal/workerclient"
)

// WorkerClient is the subset of workerclient.Client the pipeline depends on,
// narrowed so tests can supply a fake.
type WorkerClient interface {
	Start(ctx context.Context, worker string, timeout time.Duration, req workerclient.ConvertRequest) (bool, error)
	Poll(ctx context.Context, worker string, timeout time.Duration, videoID string) (workerclient.Status, string, error)
	List(ctx context.Context, worker string, timeout time.Duration, videoID string) ([]string, error)
	Fetch(ctx context.Context, worker string, timeout time.Duration, videoID, filename string, dst io.Writer) error
}

// Engine drives the state machine for every ingested video. One Engine is
// shared by all pipeline tasks; its semaphore bounds how many may hold the
// distribute/poll/collect span concurrently.
type Engine struct {
	cfg    config.PipelineConfig
	status *statusstore.Store
	source *filestore.SourceStore
	hls    *filestore.HLSStore
	client WorkerClient
	sem    *semaphore.Weighted
	log    *slog.Logger

	onTerminal func(videoID string) // cache invalidation hook, nil-safe
}

// New creates an Engine. onTerminal, if non-nil, is invoked once a video
// reaches ready or error, so a read cache sitting in front of the status
// store can drop its entry.
func New(cfg config.PipelineConfig, status *statusstore.Store, source *filestore.SourceStore, hls *filestore.HLSStore, client WorkerClient, logger *slog.Logger, onTerminal func(videoID string)) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Engine{
		cfg:        cfg,
		status:     status,
		source:     source,
		hls:        hls,
		client:     client,
		sem:        semaphore.NewWeighted(maxConcurrent),
		log:        logger,
		onTerminal: onTerminal,
	}
}

// Run executes the full state machine for videoID against sourceURL. It
// acquires the engine's concurrency slot for its entire distribute/poll/
// collect span — callers queue rather than fail when the cap is reached,
// since Acquire blocks until a slot frees up or ctx is done. Run never
// returns an error to its caller: every failure is recorded on the video's
// status record instead.
func (e *Engine) Run(ctx context.Context, videoID, sourceURL string) {
	started := time.Now()
	if err := e.sem.Acquire(ctx, 1); err != nil {
		e.log.Error("pipeline task could not acquire concurrency slot", slog.String("video_id", videoID), slog.String("error", err.Error()))
		return
	}
	metrics.PipelineActiveGauge.Inc()
	defer e.sem.Release(1)
	defer metrics.PipelineActiveGauge.Dec()

	e.runLocked(ctx, videoID, sourceURL)
	metrics.PipelineDuration.Observe(time.Since(started).Seconds())

	if e.onTerminal != nil {
		e.onTerminal(videoID)
	}
}

func (e *Engine) runLocked(ctx context.Context, videoID, sourceURL string) {
	e.transition(videoID, model.StatusDistributing)

	active := e.distribute(ctx, videoID, sourceURL)
	if len(active) == 0 {
		e.fail(videoID, "No conversion jobs could be started")
		return
	}

	e.transition(videoID, model.StatusPolling)
	completed := e.poll(ctx, videoID, active)
	if len(completed) == 0 {
		e.fail(videoID, "all variants failed during polling")
		return
	}

	e.transition(videoID, model.StatusCollecting)
	collected := e.collect(ctx, videoID, completed)
	if len(collected) == 0 {
		e.fail(videoID, "no variant artifacts could be collected")
		return
	}

	e.transition(videoID, model.StatusManifesting)
	e.buildManifest(ctx, videoID, collected)
}

// distribute fans out POST /convert calls to every configured variant's
// worker. It returns the labels that accepted the job.
func (e *Engine) distribute(ctx context.Context, videoID, sourceURL string) []string {
	type result struct {
		label string
		ok    bool
		err   error
	}
	results := make([]result, len(e.cfg.Variants))

	g, gctx := errgroup.WithContext(ctx)
	for i, v := range e.cfg.Variants {
		i, v := i, v
		g.Go(func() error {
			worker, ok := e.cfg.Workers[v.Label]
			if !ok {
				results[i] = result{label: v.Label, err: fmt.Errorf("no worker configured for %s", v.Label)}
				return nil
			}
			ok, err := e.client.Start(gctx, worker, e.cfg.ConvertTimeout, workerclient.ConvertRequest{
				VideoID:      videoID,
				SourceURL:    sourceURL,
				TargetHeight: v.Height,
				VideoBitrate: v.VideoBitrate,
				AudioBitrate: v.AudioBitrate,
				Timeout:      e.cfg.FFmpegTimeout,
			})
			results[i] = result{label: v.Label, ok: ok, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var active []string
	for _, r := range results {
		if r.err != nil {
			e.appendError(videoID, fmt.Sprintf("%s: convert trigger failed: %s", r.label, r.err))
			continue
		}
		if !r.ok {
			e.appendError(videoID, fmt.Sprintf("%s: worker did not accept conversion", r.label))
			continue
		}
		active = append(active, r.label)
	}
	return active
}

// poll round-robins GET /status calls over the pending queue until it
// drains or the overall polling deadline expires.
func (e *Engine) poll(ctx context.Context, videoID string, active []string) []string {
	deadline := time.Now().Add(e.cfg.PollingDeadline())
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	pending := append([]string(nil), active...)
	var completed []string
	first := true

	metrics.PollQueueDepthGauge.Set(float64(len(pending)))
	for len(pending) > 0 {
		if ctx.Err() != nil {
			for _, label := range pending {
				e.appendError(videoID, fmt.Sprintf("%s: polling deadline exceeded", label))
			}
			break
		}

		if !first {
			select {
			case <-time.After(e.cfg.PollInterval):
			case <-ctx.Done():
				for _, label := range pending {
					e.appendError(videoID, fmt.Sprintf("%s: polling deadline exceeded", label))
				}
				pending = nil
			}
			if len(pending) == 0 {
				break
			}
		}
		first = false

		label := pending[0]
		pending = pending[1:]

		worker := e.cfg.Workers[label]
		status, reason, err := e.client.Poll(ctx, worker, e.cfg.PollTimeout, videoID)
		switch {
		case err != nil && workerclient.IsNotFound(err):
			e.appendError(videoID, fmt.Sprintf("%s: worker lost state", label))
		case err != nil && workerclient.IsMalformed(err):
			e.appendError(videoID, fmt.Sprintf("%s: worker returned a malformed status response", label))
		case err != nil:
			pending = append(pending, label)
		case status == workerclient.StatusCompleted:
			completed = append(completed, label)
			_ = e.status.Update(videoID, func(rec *model.Record) { rec.AddQualityDone(label) })
		case status == workerclient.StatusError:
			if reason != "" {
				e.appendError(videoID, fmt.Sprintf("%s: worker reported conversion error: %s", label, reason))
			} else {
				e.appendError(videoID, fmt.Sprintf("%s: worker reported conversion error", label))
			}
		default:
			pending = append(pending, label)
		}
		metrics.PollQueueDepthGauge.Set(float64(len(pending)))
	}

	return completed
}

// collect downloads every artifact a completed variant produced, guarding
// against path traversal and leaving no partial variant directory behind on
// failure.
func (e *Engine) collect(ctx context.Context, videoID string, completed []string) map[string]string {
	type result struct {
		label        string
		playlistPath string
		ok           bool
	}
	results := make([]result, len(completed))

	g, gctx := errgroup.WithContext(ctx)
	for i, label := range completed {
		i, label := i, label
		g.Go(func() error {
			worker := e.cfg.Workers[label]

			files, err := e.client.List(gctx, worker, e.cfg.ListTimeout, videoID)
			if err != nil {
				e.appendError(videoID, fmt.Sprintf("%s: listing artifacts failed: %s", label, err))
				return nil
			}

			var playlist string
			ok := true
			for _, filename := range files {
				if invalidArtifactName(filename) {
					e.appendError(videoID, fmt.Sprintf("%s: rejected unsafe filename %q", label, filename))
					ok = false
					break
				}
				relPath := label + "/" + filename
				if err := e.fetchOne(gctx, videoID, worker, filename, relPath); err != nil {
					e.appendError(videoID, fmt.Sprintf("%s: download of %s failed: %s", label, filename, err))
					ok = false
					break
				}
				if isPlaylist(filename) {
					playlist = relPath
				}
			}
			if playlist == "" {
				ok = false
			}
			if !ok {
				e.removeVariantDir(videoID, label)
				return nil
			}
			results[i] = result{label: label, playlistPath: playlist, ok: true}
			return nil
		})
	}
	_ = g.Wait()

	collected := make(map[string]string)
	for _, r := range results {
		if r.ok {
			collected[r.label] = r.playlistPath
		}
	}
	return collected
}

// fetchOne streams one artifact straight from the worker response into its
// destination file, without buffering the whole artifact in memory: the
// worker client writes into the pipe while the filestore reads from it
// concurrently.
func (e *Engine) fetchOne(ctx context.Context, videoID, worker, filename, relPath string) error {
	pr, pw := io.Pipe()
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.hls.WriteStream(videoID, relPath, pr)
	}()

	fetchErr := e.client.Fetch(ctx, worker, e.cfg.FetchTimeout, videoID, filename, pw)
	pw.CloseWithError(fetchErr)
	writeErr := <-errCh
	if fetchErr != nil {
		return fetchErr
	}
	return writeErr
}

func (e *Engine) removeVariantDir(videoID, label string) {
	dir, err := e.hls.VideoDir(videoID)
	if err != nil {
		return
	}
	removeVariantSubdir(dir, label)
}

// buildManifest renders and writes the master playlist, then cleans up the
// source file on success.
func (e *Engine) buildManifest(ctx context.Context, videoID string, collected map[string]string) {
	var variants []manifest.Variant
	for _, v := range e.cfg.Variants {
		if path, ok := collected[v.Label]; ok {
			variants = append(variants, manifest.Variant{Spec: v, PlaylistPath: path})
		}
	}

	text, err := manifest.BuildMaster(variants)
	if err != nil {
		e.fail(videoID, fmt.Sprintf("manifest generation failed: %s", err))
		return
	}

	if err := e.hls.WriteFile(videoID, "master.m3u8", []byte(text)); err != nil {
		e.fail(videoID, fmt.Sprintf("failed to write master playlist: %s", err))
		return
	}

	manifestPath := videoID + "/master.m3u8"
	_ = e.status.Update(videoID, func(rec *model.Record) {
		rec.ManifestPath = manifestPath
		_ = rec.TransitionTo(model.StatusReady)
	})
	metrics.PipelineTransitionsTotal.WithLabelValues(string(model.StatusManifesting), string(model.StatusReady)).Inc()

	if err := e.source.Delete(videoID); err != nil {
		e.log.Warn("failed to delete source file after successful manifest", slog.String("video_id", videoID), slog.String("error", err.Error()))
	}
}

func (e *Engine) transition(videoID string, next model.Status) {
	var prev model.Status
	_ = e.status.Update(videoID, func(rec *model.Record) {
		prev = rec.Status
		_ = rec.TransitionTo(next)
	})
	metrics.PipelineTransitionsTotal.WithLabelValues(string(prev), string(next)).Inc()
}

func (e *Engine) fail(videoID, reason string) {
	e.appendError(videoID, reason)
	e.transition(videoID, model.StatusError)
}

func (e *Engine) appendError(videoID, msg string) {
	_ = e.status.Update(videoID, func(rec *model.Record) { rec.AppendError(msg) })
}
