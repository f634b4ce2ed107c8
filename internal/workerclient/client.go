// Package workerclient implements the HTTP contract the orchestrator speaks
// to remote transcoding workers: trigger a conversion, poll its status, list
// produced artifacts, and stream them down. It plays the role the teacher's
// internal/infrastructure/storage client plays for MinIO, adapted to an
// HTTP-based worker API instead of an object store SDK.
package workerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hszk-dev/streamcast/internal/metrics"
)

// ErrNotFound indicates the worker returned HTTP 404: it has lost track of
// the video, and the pipeline should not keep re-enqueuing it.
var ErrNotFound = errors.New("worker returned not found")

// ErrMalformed indicates the worker replied with a body that did not parse
// as the expected JSON shape.
var ErrMalformed = errors.New("worker returned a malformed response")

// Status is a worker's reported progress for one in-flight conversion.
type Status string

const (
	StatusPending     Status = "pending"
	StatusProcessing  Status = "processing"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
)

// ConvertRequest is the body POSTed to a worker's /convert endpoint.
type ConvertRequest struct {
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
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

type filesResponse struct {
	Files []string `json:"files"`
}

// Client speaks the worker HTTP contract. A zero-value Client is not usable;
// construct one with New.
type Client struct {
	http *http.Client
}

// New creates a worker client. Each call applies its own deadline via
// context, so the underlying http.Client carries no default timeout.
func New() *Client {
	return &Client{http: &http.Client{}}
}

// Start triggers a conversion on worker. It returns true iff the worker
// replied with processing_started; any other outcome — HTTP error, timeout,
// malformed body, a rejection — returns false along with a diagnostic
// describing what went wrong.
func (c *Client) Start(ctx context.Context, worker string, timeout time.Duration, req ConvertRequest) (bool, error) {
	start := time.Now()
	body, err := json.Marshal(req)
	if err != nil {
		return false, fmt.Errorf("encode convert request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, worker+"/convert", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build convert request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	metrics.WorkerCallDuration.WithLabelValues(metrics.CallConvert).Observe(time.Since(start).Seconds())
	if err != nil {
		c.recordOutcome(metrics.CallConvert, ctx, err)
		return false, fmt.Errorf("call %s/convert: %w", worker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.WorkerCallsTotal.WithLabelValues(metrics.CallConvert, metrics.StatusError).Inc()
		return false, fmt.Errorf("%s/convert returned HTTP %d", worker, resp.StatusCode)
	}

	var out convertResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.WorkerCallsTotal.WithLabelValues(metrics.CallConvert, metrics.StatusError).Inc()
		return false, fmt.Errorf("decode convert response from %s: %w", worker, err)
	}

	if out.Status != "processing_started" {
		metrics.WorkerCallsTotal.WithLabelValues(metrics.CallConvert, metrics.StatusError).Inc()
		if out.Error != "" {
			return false, fmt.Errorf("%s rejected conversion: %s", worker, out.Error)
		}
		return false, fmt.Errorf("%s returned unexpected status %q", worker, out.Status)
	}

	metrics.WorkerCallsTotal.WithLabelValues(metrics.CallConvert, metrics.StatusSuccess).Inc()
	return true, nil
}

// Poll queries a worker's conversion status for videoID. The returned
// string is the worker's own reported reason (its statusResponse.Error
// field), populated whenever the worker supplies one — most notably
// alongside StatusError, so the pipeline can surface the worker's actual
// diagnostic instead of a generic message.
func (c *Client) Poll(ctx context.Context, worker string, timeout time.Duration, videoID string) (Status, string, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, worker+"/status/"+videoID, nil)
	if err != nil {
		return "", "", fmt.Errorf("build status request: %w", err)
	}

	resp, err := c.http.Do(httpReq)
	metrics.WorkerCallDuration.WithLabelValues(metrics.CallStatus).Observe(time.Since(start).Seconds())
	if err != nil {
		c.recordOutcome(metrics.CallStatus, ctx, err)
		return "", "", fmt.Errorf("call %s/status/%s: %w", worker, videoID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		metrics.WorkerCallsTotal.WithLabelValues(metrics.CallStatus, metrics.StatusError).Inc()
		return "", "", fmt.Errorf("%s/status/%s: %w", worker, videoID, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.WorkerCallsTotal.WithLabelValues(metrics.CallStatus, metrics.StatusError).Inc()
		return "", "", fmt.Errorf("%s/status/%s returned HTTP %d", worker, videoID, resp.StatusCode)
	}

	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.WorkerCallsTotal.WithLabelValues(metrics.CallStatus, metrics.StatusError).Inc()
		return "", "", fmt.Errorf("%s/status/%s: %w: %s", worker, videoID, ErrMalformed, err)
	}

	metrics.WorkerCallsTotal.WithLabelValues(metrics.CallStatus, metrics.StatusSuccess).Inc()
	return out.Status, out.Error, nil
}

// List retrieves the artifact filenames a completed conversion produced.
func (c *Client) List(ctx context.Context, worker string, timeout time.Duration, videoID string) ([]string, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, worker+"/files/"+videoID, nil)
	if err != nil {
		return nil, fmt.Errorf("build files request: %w", err)
	}

	resp, err := c.http.Do(httpReq)
	metrics.WorkerCallDuration.WithLabelValues(metrics.CallFiles).Observe(time.Since(start).Seconds())
	if err != nil {
		c.recordOutcome(metrics.CallFiles, ctx, err)
		return nil, fmt.Errorf("call %s/files/%s: %w", worker, videoID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.WorkerCallsTotal.WithLabelValues(metrics.CallFiles, metrics.StatusError).Inc()
		return nil, fmt.Errorf("%s/files/%s returned HTTP %d", worker, videoID, resp.StatusCode)
	}

	var out filesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.WorkerCallsTotal.WithLabelValues(metrics.CallFiles, metrics.StatusError).Inc()
		return nil, fmt.Errorf("decode files response from %s: %w", worker, err)
	}

	metrics.WorkerCallsTotal.WithLabelValues(metrics.CallFiles, metrics.StatusSuccess).Inc()
	return out.Files, nil
}

// Fetch streams one named artifact from worker into dst, applying timeout to
// the whole transfer.
func (c *Client) Fetch(ctx context.Context, worker string, timeout time.Duration, videoID, filename string, dst io.Writer) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, worker+"/files/"+videoID+"/"+filename, nil)
	if err != nil {
		return fmt.Errorf("build fetch request: %w", err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.recordOutcome(metrics.CallFetch, ctx, err)
		metrics.WorkerCallDuration.WithLabelValues(metrics.CallFetch).Observe(time.Since(start).Seconds())
		return fmt.Errorf("call %s/files/%s/%s: %w", worker, videoID, filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.WorkerCallsTotal.WithLabelValues(metrics.CallFetch, metrics.StatusError).Inc()
		metrics.WorkerCallDuration.WithLabelValues(metrics.CallFetch).Observe(time.Since(start).Seconds())
		return fmt.Errorf("%s/files/%s/%s returned HTTP %d", worker, videoID, filename, resp.StatusCode)
	}

	if _, err := io.Copy(dst, resp.Body); err != nil {
		metrics.WorkerCallsTotal.WithLabelValues(metrics.CallFetch, metrics.StatusError).Inc()
		metrics.WorkerCallDuration.WithLabelValues(metrics.CallFetch).Observe(time.Since(start).Seconds())
		return fmt.Errorf("stream %s/files/%s/%s: %w", worker, videoID, filename, err)
	}

	metrics.WorkerCallsTotal.WithLabelValues(metrics.CallFetch, metrics.StatusSuccess).Inc()
	metrics.WorkerCallDuration.WithLabelValues(metrics.CallFetch).Observe(time.Since(start).Seconds())
	return nil
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsMalformed reports whether err wraps ErrMalformed.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformed)
}

// recordOutcome classifies a transport-level error as a timeout or a plain
// error for metrics purposes.
func (c *Client) recordOutcome(call string, ctx context.Context, _ error) {
	if ctx.Err() == context.DeadlineExceeded {
		metrics.WorkerCallsTotal.WithLabelValues(call, metrics.StatusTimeout).Inc()
		return
	}
	metrics.WorkerCallsTotal.WithLabelValues(call, metrics.StatusError).Inc()
}
