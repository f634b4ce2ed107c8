package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hszk-dev/streamcast/internal/transcoder"
)

// fakeDownloader writes canned bytes instead of hitting the network.
type fakeDownloader struct {
	err error
}

func (d fakeDownloader) Download(ctx context.Context, url, dst string) error {
	if d.err != nil {
		return d.err
	}
	return os.WriteFile(dst, []byte("fake source bytes"), 0o644)
}

func testFFmpegConfig() transcoder.FFmpegConfig {
	cfg := transcoder.DefaultFFmpegConfig()
	cfg.FFmpegPath = "/non/existent/ffmpeg" // tests never reach the real transcode step
	return cfg
}

func newTestRouter(t *testing.T, downloader Downloader) (*chi.Mux, *Handler) {
	t.Helper()
	h := NewHandler(t.TempDir(), testFFmpegConfig(), downloader, nil)
	r := chi.NewRouter()
	h.Routes(r)
	return r, h
}

func TestHandler_Status_UnknownVideoReturns404(t *testing.T) {
	r, _ := newTestRouter(t, fakeDownloader{})
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status/unknown-id")
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status code = %d, want 404", resp.StatusCode)
	}
}

func TestHandler_Convert_RejectsMissingFields(t *testing.T) {
	r, _ := newTestRouter(t, fakeDownloader{})
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/convert", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("convert request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status code = %d, want 400", resp.StatusCode)
	}
}

func TestHandler_Fetch_RejectsPathTraversal(t *testing.T) {
	r, h := newTestRouter(t, fakeDownloader{})
	h.jobs.Start("v1", t.TempDir())
	h.jobs.Complete("v1")

	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/files/v1/..%2f..%2fetc%2fpasswd")
	if err != nil {
		t.Fatalf("fetch request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status code = %d, want 404 for traversal attempt", resp.StatusCode)
	}
}

func TestHandler_Files_ExcludesSourceAndListsArtifacts(t *testing.T) {
	r, h := newTestRouter(t, fakeDownloader{})
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "source.input"), []byte("raw"), 0o644)
	os.WriteFile(filepath.Join(dir, "playlist.m3u8"), []byte("#EXTM3U"), 0o644)
	os.WriteFile(filepath.Join(dir, "segment_000.ts"), []byte("ts"), 0o644)
	h.jobs.Start("v2", dir)
	h.jobs.Complete("v2")

	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/files/v2")
	if err != nil {
		t.Fatalf("files request failed: %v", err)
	}
	defer resp.Body.Close()

	var out filesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode files response: %v", err)
	}

	if len(out.Files) != 2 {
		t.Fatalf("files = %v, want 2 entries excluding source.input", out.Files)
	}
	for _, f := range out.Files {
		if f == "source.input" {
			t.Errorf("source file leaked into files listing: %v", out.Files)
		}
	}
}

func TestHandler_Convert_TransitionsToErrorOnDownloadFailure(t *testing.T) {
	r, h := newTestRouter(t, fakeDownloader{err: errors.New("connection refused")})
	srv := httptest.NewServer(r)
	defer srv.Close()

	body := `{"video_id":"v3","source_url":"http://example.invalid/source.mp4","target_height":360,"video_bitrate":"800k","audio_bitrate":"96k"}`
	resp, err := http.Post(srv.URL+"/convert", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("convert request failed: %v", err)
	}
	resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if job, ok := h.jobs.Get("v3"); ok && job.Status == StatusError {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job never transitioned to error after download failure")
}
