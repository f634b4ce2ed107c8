package handler

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/hszk-dev/streamcast/internal/filestore"
	"github.com/hszk-dev/streamcast/internal/model"
	"github.com/hszk-dev/streamcast/internal/statusstore"
	"github.com/hszk-dev/streamcast/internal/urlderive"
)

// PipelineRunner starts the distribute/poll/collect/manifest state machine
// for a freshly ingested video. It's run in the background; Upload does not
// wait for it to finish.
type PipelineRunner interface {
	Run(ctx context.Context, videoID, sourceURL string)
}

// IngestHandler implements POST /upload: accept a multipart video file,
// mint an ID, persist the source, create its status record, and hand it
// off to the pipeline.
type IngestHandler struct {
	source           *filestore.SourceStore
	status           *statusstore.Store
	pipeline         PipelineRunner
	maxContentLength int64
}

func NewIngestHandler(source *filestore.SourceStore, status *statusstore.Store, pipeline PipelineRunner, maxContentLength int64) *IngestHandler {
	return &IngestHandler{source: source, status: status, pipeline: pipeline, maxContentLength: maxContentLength}
}

type uploadResponse struct {
	Success bool   `json:"success"`
	VideoID string `json:"video_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Upload handles POST /upload (multipart field "video").
func (h *IngestHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxContentLength)

	file, header, err := r.FormFile("video")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			uploadError(w, http.StatusRequestEntityTooLarge, "upload exceeds the maximum allowed size")
			return
		}
		uploadError(w, http.StatusBadRequest, "a video file is required under the \"video\" field")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		uploadError(w, http.StatusBadRequest, "uploaded file must have a filename")
		return
	}

	videoID := uuid.New().String()
	ext := sanitizeExt(header.Filename)

	path, err := h.source.Save(videoID, ext, file)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			uploadError(w, http.StatusRequestEntityTooLarge, "upload exceeds the maximum allowed size")
			return
		}
		uploadError(w, http.StatusInternalServerError, "failed to save uploaded file")
		return
	}

	info, statErr := os.Stat(path)
	if statErr != nil || info.Size() == 0 {
		h.source.Delete(videoID)
		uploadError(w, http.StatusInternalServerError, "saved file is missing or empty")
		return
	}

	sourceURL, err := urlderive.SourceURL(r, videoID)
	if err != nil {
		h.source.Delete(videoID)
		uploadError(w, http.StatusInternalServerError, "could not determine an externally reachable source URL")
		return
	}

	rec := model.NewRecord(videoID)
	if err := h.status.Create(rec); err != nil {
		h.source.Delete(videoID)
		uploadError(w, http.StatusInternalServerError, "failed to persist video record")
		return
	}

	go h.pipeline.Run(context.Background(), videoID, sourceURL)

	JSON(w, http.StatusOK, uploadResponse{Success: true, VideoID: videoID})
}

func uploadError(w http.ResponseWriter, status int, message string) {
	JSON(w, status, uploadResponse{Success: false, Error: message})
}

// sanitizeExt extracts an alphanumeric-only file extension from filename,
// defaulting to ".mp4" when nothing usable survives the filter.
func sanitizeExt(filename string) string {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	var b strings.Builder
	for _, r := range ext {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ".mp4"
	}
	return "." + b.String()
}
