package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hszk-dev/streamcast/internal/model"
	"github.com/hszk-dev/streamcast/internal/statusstore"
)

// StatusReader is the subset of cache.CachedStore the status handler
// depends on.
type StatusReader interface {
	Get(ctx context.Context, videoID string) (*model.Record, error)
}

// StatusHandler implements GET /status/{videoID}.
type StatusHandler struct {
	store StatusReader
}

func NewStatusHandler(store StatusReader) *StatusHandler {
	return &StatusHandler{store: store}
}

type statusResponse struct {
	VideoID       string          `json:"video_id"`
	Status        model.Status    `json:"status"`
	QualitiesDone []string        `json:"qualities_done"`
	Error         string          `json:"error,omitempty"`
	ManifestPath  string          `json:"manifest_path,omitempty"`
	ManifestURL   string          `json:"manifest_url,omitempty"`
	Attempt       int             `json:"attempt"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
}

// Get reports a video's current pipeline status. An unknown ID answers with
// HTTP 200 and a synthetic not_found status rather than a bare 404, so
// pollers get a uniform contract regardless of outcome.
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")

	rec, err := h.store.Get(r.Context(), videoID)
	if err != nil {
		if errors.Is(err, statusstore.ErrNotFound) {
			JSON(w, http.StatusOK, statusResponse{VideoID: videoID, Status: model.StatusNotFound})
			return
		}
		Error(w, http.StatusInternalServerError, "internal_error", "failed to read status")
		return
	}

	resp := statusResponse{
		VideoID:       rec.VideoID,
		Status:        rec.Status,
		QualitiesDone: rec.QualitiesDone,
		Error:         rec.Error,
		ManifestPath:  rec.ManifestPath,
		Attempt:       rec.Attempt,
		CreatedAt:     rec.CreatedAt.Format(timeFormat),
		UpdatedAt:     rec.UpdatedAt.Format(timeFormat),
	}
	if rec.Status == model.StatusReady {
		resp.ManifestURL = "/hls/" + rec.VideoID + "/master.m3u8"
	}
	JSON(w, http.StatusOK, resp)
}

const timeFormat = "2006-01-02T15:04:05Z07:00"
