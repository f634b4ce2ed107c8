package pipeline

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hszk-dev/streamcast/internal/config"
	"github.com/hszk-dev/streamcast/internal/filestore"
	"github.com/hszk-dev/streamcast/internal/model"
	"github.com/hszk-dev/streamcast/internal/statusstore"
	"github.com/hszk-dev/streamcast/internal/workerclient"
)

func testConfig() config.PipelineConfig {
	return config.PipelineConfig{
		ConvertTimeout: time.Second,
		PollTimeout:    time.Second,
		ListTimeout:    time.Second,
		FetchTimeout:   time.Second,
		PollInterval:    time.Millisecond,
		FFmpegTimeout:   10 * time.Millisecond,
		PollGracePeriod: 10 * time.Millisecond,
		MaxConcurrent:   4,
		Variants: []model.Variant{
			{Label: "360p", Height: 360, VideoBitrate: "800k", AudioBitrate: "96k"},
			{Label: "480p", Height: 480, VideoBitrate: "1400k", AudioBitrate: "128k"},
			{Label: "720p", Height: 720, VideoBitrate: "2800k", AudioBitrate: "128k"},
		},
		Workers: map[string]string{
			"360p": "http://worker-360",
			"480p": "http://worker-480",
			"720p": "http://worker-720",
		},
	}
}

func newTestEngine(t *testing.T, client WorkerClient) (*Engine, *statusstore.Store) {
	t.Helper()
	store := statusstore.New(filepath.Join(t.TempDir(), "status.json"), nil)
	source := filestore.NewSourceStore(t.TempDir())
	hls := filestore.NewHLSStore(t.TempDir())
	eng := New(testConfig(), store, source, hls, client, nil, nil)
	return eng, store
}

func TestEngine_Run_HappyPath(t *testing.T) {
	client := &mockWorkerClient{
		listFn: func(ctx context.Context, worker string, timeout time.Duration, videoID string) ([]string, error) {
			return []string{"playlist.m3u8", "segment000.ts"}, nil
		},
		fetchFn: func(ctx context.Context, worker string, timeout time.Duration, videoID, filename string, dst io.Writer) error {
			_, err := dst.Write([]byte("data:" + filename))
			return err
		},
	}
	eng, store := newTestEngine(t, client)

	_ = store.Create(model.NewRecord("v1"))
	eng.Run(context.Background(), "v1", "http://core/download_source/v1")

	rec, err := store.Get("v1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != model.StatusReady {
		t.Fatalf("status = %s, want ready; error=%s", rec.Status, rec.Error)
	}
	if len(rec.QualitiesDone) != 3 {
		t.Errorf("qualities_done = %v, want 3 entries", rec.QualitiesDone)
	}
	if rec.ManifestPath != "v1/master.m3u8" {
		t.Errorf("manifest_path = %q", rec.ManifestPath)
	}
}

func TestEngine_Run_SingleWorkerDown(t *testing.T) {
	client := &mockWorkerClient{
		startFn: func(ctx context.Context, worker string, timeout time.Duration, req workerclient.ConvertRequest) (bool, error) {
			if worker == "http://worker-720" {
				return false, nil
			}
			return true, nil
		},
		listFn: func(ctx context.Context, worker string, timeout time.Duration, videoID string) ([]string, error) {
			return []string{"playlist.m3u8"}, nil
		},
		fetchFn: func(ctx context.Context, worker string, timeout time.Duration, videoID, filename string, dst io.Writer) error {
			_, err := dst.Write([]byte("x"))
			return err
		},
	}
	eng, store := newTestEngine(t, client)
	_ = store.Create(model.NewRecord("v1"))
	eng.Run(context.Background(), "v1", "http://core/download_source/v1")

	rec, _ := store.Get("v1")
	if rec.Status != model.StatusReady {
		t.Fatalf("status = %s, want ready; error=%s", rec.Status, rec.Error)
	}
	if len(rec.QualitiesDone) != 2 {
		t.Errorf("qualities_done = %v, want 2 entries", rec.QualitiesDone)
	}
	if !strings.Contains(rec.Error, "720p") {
		t.Errorf("expected 720p failure diagnostic, got %q", rec.Error)
	}
}

func TestEngine_Run_AllWorkersRefuse(t *testing.T) {
	client := &mockWorkerClient{
		startFn: func(ctx context.Context, worker string, timeout time.Duration, req workerclient.ConvertRequest) (bool, error) {
			return false, nil
		},
	}
	eng, store := newTestEngine(t, client)
	_ = store.Create(model.NewRecord("v1"))
	eng.Run(context.Background(), "v1", "http://core/download_source/v1")

	rec, _ := store.Get("v1")
	if rec.Status != model.StatusError {
		t.Fatalf("status = %s, want error", rec.Status)
	}
	if !strings.Contains(rec.Error, "No conversion jobs could be started") {
		t.Errorf("error = %q", rec.Error)
	}
}

func TestEngine_Run_PathTraversalArtifactRejected(t *testing.T) {
	client := &mockWorkerClient{
		listFn: func(ctx context.Context, worker string, timeout time.Duration, videoID string) ([]string, error) {
			return []string{"../../etc/passwd"}, nil
		},
	}
	eng, store := newTestEngine(t, client)
	_ = store.Create(model.NewRecord("v1"))
	eng.Run(context.Background(), "v1", "http://core/download_source/v1")

	rec, _ := store.Get("v1")
	if rec.Status != model.StatusError {
		t.Fatalf("status = %s, want error", rec.Status)
	}
	if !strings.Contains(rec.Error, "unsafe filename") {
		t.Errorf("expected unsafe-filename diagnostic, got %q", rec.Error)
	}
}

func TestEngine_Run_PollingDeadlineExceeded(t *testing.T) {
	client := &mockWorkerClient{
		pollFn: func(ctx context.Context, worker string, timeout time.Duration, videoID string) (workerclient.Status, string, error) {
			return workerclient.StatusProcessing, "", nil
		},
	}
	eng, store := newTestEngine(t, client)
	_ = store.Create(model.NewRecord("v1"))
	eng.Run(context.Background(), "v1", "http://core/download_source/v1")

	rec, _ := store.Get("v1")
	if rec.Status != model.StatusError {
		t.Fatalf("status = %s, want error (deadline exceeded, nothing ever completed)", rec.Status)
	}
	if !strings.Contains(rec.Error, "polling deadline exceeded") {
		t.Errorf("error = %q", rec.Error)
	}
}

func TestEngine_Run_WorkerNotFoundDuringPoll(t *testing.T) {
	client := &mockWorkerClient{
		pollFn: func(ctx context.Context, worker string, timeout time.Duration, videoID string) (workerclient.Status, string, error) {
			return "", "", workerclient.ErrNotFound
		},
	}
	eng, store := newTestEngine(t, client)
	_ = store.Create(model.NewRecord("v1"))
	eng.Run(context.Background(), "v1", "http://core/download_source/v1")

	rec, _ := store.Get("v1")
	if rec.Status != model.StatusError {
		t.Fatalf("status = %s, want error", rec.Status)
	}
	if !strings.Contains(rec.Error, "worker lost state") {
		t.Errorf("error = %q", rec.Error)
	}
}

func TestEngine_Run_WorkerReportedErrorDuringPoll(t *testing.T) {
	client := &mockWorkerClient{
		pollFn: func(ctx context.Context, worker string, timeout time.Duration, videoID string) (workerclient.Status, string, error) {
			return workerclient.StatusError, "ffmpeg exited with status 1", nil
		},
	}
	eng, store := newTestEngine(t, client)
	_ = store.Create(model.NewRecord("v1"))
	eng.Run(context.Background(), "v1", "http://core/download_source/v1")

	rec, _ := store.Get("v1")
	if rec.Status != model.StatusError {
		t.Fatalf("status = %s, want error", rec.Status)
	}
	if !strings.Contains(rec.Error, "ffmpeg exited with status 1") {
		t.Errorf("expected the worker's reported reason in the diagnostic, got %q", rec.Error)
	}
}
