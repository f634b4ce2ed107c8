package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hszk-dev/streamcast/internal/transcoder"
)

// Downloader fetches a source video into the file at dst. httpDownloader,
// built by NewHTTPDownloader, implements it with a plain GET; tests supply a
// fake.
type Downloader interface {
	Download(ctx context.Context, url, dst string) error
}

// httpDownloader implements Downloader with a plain GET.
type httpDownloader struct {
	client *http.Client
}

func (d httpDownloader) Download(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("download source: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download source: HTTP %d", resp.StatusCode)
	}

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create source file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("write source file: %w", err)
	}
	return nil
}

// NewHTTPDownloader builds a Downloader with the given per-call timeout.
func NewHTTPDownloader(timeout time.Duration) Downloader {
	return httpDownloader{client: &http.Client{Timeout: timeout}}
}

// Handler implements the worker HTTP contract: /convert, /status/{id},
// /files/{id}, /files/{id}/{filename}.
type Handler struct {
	jobs       *Store
	baseConfig transcoder.FFmpegConfig
	downloader Downloader
	tempDir    string
	log        *slog.Logger
}

// NewHandler creates a Handler. baseConfig supplies the codec/preset/segment
// settings shared across every conversion; height and bitrate are
// overridden per request from the convert payload.
func NewHandler(tempDir string, baseConfig transcoder.FFmpegConfig, downloader Downloader, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		jobs:       NewStore(),
		baseConfig: baseConfig,
		downloader: downloader,
		tempDir:    tempDir,
		log:        logger,
	}
}

type convertRequest struct {
	VideoID      string        `json:"video_id"`
	SourceURL    string        `json:"source_url"`
	TargetHeight int           `json:"target_height"`
	VideoBitrate string        `json:"video_bitrate"`
	AudioBitrate string        `json:"audio_bitrate"`
	Timeout      time.Duration `json:"timeout"`
}

type convertResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type statusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type filesResponse struct {
	Files []string `json:"files"`
}

// Routes mounts the worker contract onto r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/convert", h.Convert)
	r.Get("/status/{videoID}", h.Status)
	r.Get("/files/{videoID}", h.Files)
	r.Get("/files/{videoID}/{filename}", h.Fetch)
}

// Convert accepts a conversion job and replies as soon as it's accepted; the
// actual download+transcode runs in the background, observable via Status.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, convertResponse{Status: "error", Error: "malformed convert request"})
		return
	}
	if req.VideoID == "" || req.SourceURL == "" {
		respondJSON(w, http.StatusBadRequest, convertResponse{Status: "error", Error: "video_id and source_url are required"})
		return
	}

	dir := filepath.Join(h.tempDir, req.VideoID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		respondJSON(w, http.StatusInternalServerError, convertResponse{Status: "error", Error: "failed to prepare working directory"})
		return
	}

	h.jobs.Start(req.VideoID, dir)
	respondJSON(w, http.StatusOK, convertResponse{Status: "processing_started"})

	go h.process(req, dir)
}

func (h *Handler) process(req convertRequest, dir string) {
	ctx := context.Background()
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	h.jobs.SetStatus(req.VideoID, StatusDownloading)
	inputPath := filepath.Join(dir, "source.input")
	if err := h.downloader.Download(ctx, req.SourceURL, inputPath); err != nil {
		h.log.Warn("source download failed", slog.String("video_id", req.VideoID), slog.String("error", err.Error()))
		h.jobs.Fail(req.VideoID, fmt.Sprintf("download failed: %s", err))
		return
	}

	h.jobs.SetStatus(req.VideoID, StatusProcessing)
	cfg := h.baseConfig.WithVariant(req.TargetHeight, req.VideoBitrate, req.AudioBitrate)
	tc := transcoder.NewFFmpegTranscoder(cfg)
	if _, err := tc.TranscodeToHLS(ctx, inputPath, dir); err != nil {
		h.log.Warn("transcode failed", slog.String("video_id", req.VideoID), slog.String("error", err.Error()))
		h.jobs.Fail(req.VideoID, fmt.Sprintf("transcode failed: %s", err))
		return
	}

	h.jobs.Complete(req.VideoID)
}

// Status reports a job's current state. An unknown video ID answers HTTP
// 404 — the pipeline treats that as the worker having lost state.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")
	job, ok := h.jobs.Get(videoID)
	if !ok {
		respondJSON(w, http.StatusNotFound, statusResponse{Status: "error", Error: "unknown video id"})
		return
	}
	respondJSON(w, http.StatusOK, statusResponse{Status: string(job.Status), Error: job.Error})
}

// Files lists the artifacts a completed job produced. The downloaded source
// file is never listed: only playlists and segments are exposed.
func (h *Handler) Files(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")
	job, ok := h.jobs.Get(videoID)
	if !ok || job.Status != StatusCompleted {
		respondJSON(w, http.StatusNotFound, filesResponse{})
		return
	}

	entries, err := os.ReadDir(job.Dir)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, filesResponse{})
		return
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), "source.") {
			continue
		}
		files = append(files, e.Name())
	}
	respondJSON(w, http.StatusOK, filesResponse{Files: files})
}

// Fetch streams one artifact back to the caller, guarding against path
// traversal in the requested filename.
func (h *Handler) Fetch(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")
	filename := chi.URLParam(r, "filename")

	if filename == "" || strings.Contains(filename, "..") || strings.HasPrefix(filename, "/") {
		http.NotFound(w, r)
		return
	}

	job, ok := h.jobs.Get(videoID)
	if !ok {
		http.NotFound(w, r)
		return
	}

	f, err := os.Open(filepath.Join(job.Dir, filename))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	io.Copy(w, f)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
