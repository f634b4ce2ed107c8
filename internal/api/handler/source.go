package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hszk-dev/streamcast/internal/filestore"
)

// SourceHandler implements GET /download_source/{videoID}: the endpoint a
// worker's Downloader fetches the uploaded original from.
type SourceHandler struct {
	source *filestore.SourceStore
}

func NewSourceHandler(source *filestore.SourceStore) *SourceHandler {
	return &SourceHandler{source: source}
}

// Get streams the uploaded source file for videoID back to the caller,
// inline rather than as an attachment, for a worker's Downloader to fetch.
func (h *SourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")
	if !validVideoID(videoID) {
		Error(w, http.StatusBadRequest, "bad_request", "invalid video id")
		return
	}

	f, _, err := h.source.Open(videoID)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) || errors.Is(err, filestore.ErrInvalidID) {
			Error(w, http.StatusNotFound, "not_found", "source file not found")
			return
		}
		if errors.Is(err, filestore.ErrEmpty) {
			Error(w, http.StatusInternalServerError, "internal_error", "source file is empty")
			return
		}
		Error(w, http.StatusInternalServerError, "internal_error", "failed to open source file")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	io.Copy(w, f)
}
