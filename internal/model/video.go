// Package model holds the domain types shared across the orchestrator:
// the per-video record, its status machine, and the static variant
// configuration workers are instructed to produce.
package model

import (
	"errors"
	"time"
)

// Status represents where a video is in the distribute/poll/collect/manifest
// pipeline.
type Status string

const (
	StatusUploaded     Status = "uploaded"
	StatusDistributing Status = "distributing"
	StatusPolling      Status = "polling"
	StatusCollecting   Status = "collecting"
	StatusManifesting  Status = "manifesting"
	StatusReady        Status = "ready"
	StatusError        Status = "error"

	// StatusNotFound is never stored; it's synthesized by the status API
	// for unknown video IDs so pollers get a uniform response shape.
	StatusNotFound Status = "not_found"
)

// validTransitions enumerates the only state changes the pipeline may make.
// Ready and Error are terminal: nothing transitions out of them.
var validTransitions = map[Status][]Status{
	StatusUploaded:     {StatusDistributing, StatusError},
	StatusDistributing: {StatusPolling, StatusError},
	StatusPolling:      {StatusCollecting, StatusError},
	StatusCollecting:   {StatusManifesting, StatusError},
	StatusManifesting:  {StatusReady, StatusError},
	StatusReady:        {},
	StatusError:        {},
}

func (s Status) IsTerminal() bool {
	return s == StatusReady || s == StatusError
}

func (s Status) CanTransitionTo(next Status) bool {
	allowed, ok := validTransitions[s]
	if !ok {
		return false
	}
	for _, candidate := range allowed {
		if candidate == next {
			return true
		}
	}
	return false
}

var ErrInvalidTransition = errors.New("invalid status transition")

// Record is the persisted state of a single ingested video.
type Record struct {
	VideoID       string    `json:"video_id"`
	Status        Status    `json:"status"`
	QualitiesDone []string  `json:"qualities_done"`
	Error         string    `json:"error,omitempty"`
	ManifestPath  string    `json:"manifest_path,omitempty"`
	Attempt       int       `json:"attempt"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers can't mutate store-owned state
// through a returned pointer.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.QualitiesDone = append([]string(nil), r.QualitiesDone...)
	return &c
}

// TransitionTo validates and applies a status change, bumping UpdatedAt.
func (r *Record) TransitionTo(next Status) error {
	if !r.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	r.Status = next
	r.UpdatedAt = time.Now()
	return nil
}

// AppendError joins a new diagnostic onto the record's append-only error
// log. Prior content is never truncated.
func (r *Record) AppendError(msg string) {
	if msg == "" {
		return
	}
	if r.Error == "" {
		r.Error = msg
	} else {
		r.Error = r.Error + "\n" + msg
	}
	r.UpdatedAt = time.Now()
}

// AddQualityDone records a completed variant, deduplicated.
func (r *Record) AddQualityDone(label string) {
	for _, q := range r.QualitiesDone {
		if q == label {
			return
		}
	}
	r.QualitiesDone = append(r.QualitiesDone, label)
	r.UpdatedAt = time.Now()
}

// NewRecord creates a fresh record in the uploaded state.
func NewRecord(videoID string) *Record {
	now := time.Now()
	return &Record{
		VideoID:       videoID,
		Status:        StatusUploaded,
		QualitiesDone: []string{},
		Attempt:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Variant is one target resolution/bitrate output, from static configuration.
type Variant struct {
	Label        string `json:"label"`
	Height       int    `json:"height"`
	VideoBitrate string `json:"video_bitrate"`
	AudioBitrate string `json:"audio_bitrate"`
}

// BandwidthBPS converts the variant's video bitrate string ("2800k") into
// bits per second, as required for the master playlist's BANDWIDTH attribute.
func (v Variant) BandwidthBPS() int {
	return ParseBitrate(v.VideoBitrate)
}

// ParseBitrate converts a "<n>k"/"<n>m" style bitrate string into bits per
// second. A string with no k/m suffix is parsed as a plain decimal; any
// other non-digit character makes the input malformed. Malformed
// input yields 0 rather than an error — callers treat a zero bandwidth as
// "unknown" rather than fail manifest generation over cosmetic data.
func ParseBitrate(s string) int {
	if s == "" {
		return 0
	}
	n := len(s)
	mult := 1
	switch s[n-1] {
	case 'k', 'K':
		mult = 1000
		s = s[:n-1]
	case 'm', 'M':
		mult = 1000000
		s = s[:n-1]
	}
	val := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		val = val*10 + int(c-'0')
	}
	return val * mult
}
