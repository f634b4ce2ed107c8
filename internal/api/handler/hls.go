package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hszk-dev/streamcast/internal/filestore"
)

// HLSHandler implements GET /hls/{videoID}/*: serves the master playlist,
// variant playlists, and segments a ready video produced.
type HLSHandler struct {
	hls *filestore.HLSStore
}

func NewHLSHandler(hls *filestore.HLSStore) *HLSHandler {
	return &HLSHandler{hls: hls}
}

// Get streams one HLS artifact. The wildcard path segment is passed to the
// store verbatim; safeJoin there is the actual traversal guard.
func (h *HLSHandler) Get(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")
	relPath := chi.URLParam(r, "*")
	if !validVideoID(videoID) {
		Error(w, http.StatusBadRequest, "bad_request", "invalid video id")
		return
	}

	f, err := h.hls.Open(videoID, relPath)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) || errors.Is(err, filestore.ErrInvalidID) {
			http.NotFound(w, r)
			return
		}
		Error(w, http.StatusInternalServerError, "internal_error", "failed to open hls artifact")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", contentTypeFor(relPath))
	w.Header().Set("Access-Control-Allow-Origin", "*")
	io.Copy(w, f)
}

func contentTypeFor(relPath string) string {
	switch {
	case strings.HasSuffix(relPath, ".m3u8"):
		return "application/vnd.apple.mpegurl"
	case strings.HasSuffix(relPath, ".ts"):
		return "video/mp2t"
	default:
		return "application/octet-stream"
	}
}
