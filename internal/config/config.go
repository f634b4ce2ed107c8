// Package config loads process configuration from the environment using
// struct tags, the same way the rest of this family of services do.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hszk-dev/streamcast/internal/model"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server   ServerConfig
	Pipeline PipelineConfig
	Worker   WorkerConfig
	Redis    RedisConfig
}

type ServerConfig struct {
	Port            int           `envconfig:"PORT" default:"8000"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"10s"`

	UploadDir       string `envconfig:"UPLOAD_DIR" default:"./uploads"`
	HLSDir          string `envconfig:"HLS_DIR" default:"./static/hls"`
	VideoStatusFile string `envconfig:"VIDEO_STATUS_FILE" default:"./video_status.json"`

	MaxContentLength int64 `envconfig:"MAX_CONTENT_LENGTH" default:"1073741824"`
}

// PipelineConfig controls the distribute/poll/collect/manifest engine.
type PipelineConfig struct {
	// ConvertTimeout bounds the POST /convert trigger call.
	ConvertTimeout time.Duration `envconfig:"PIPELINE_CONVERT_TIMEOUT" default:"20s"`
	// PollTimeout bounds a single GET /status call.
	PollTimeout time.Duration `envconfig:"PIPELINE_POLL_TIMEOUT" default:"15s"`
	// ListTimeout bounds a single GET /files call.
	ListTimeout time.Duration `envconfig:"PIPELINE_LIST_TIMEOUT" default:"20s"`
	// FetchTimeout bounds a single segment/playlist download.
	FetchTimeout time.Duration `envconfig:"PIPELINE_FETCH_TIMEOUT" default:"120s"`
	// PollInterval is the sleep between successive dequeues in the poll phase.
	PollInterval time.Duration `envconfig:"PIPELINE_POLL_INTERVAL" default:"20s"`
	// FFmpegTimeout is the advisory per-job timeout passed to workers; the
	// overall polling deadline is derived from it plus PollGracePeriod.
	FFmpegTimeout time.Duration `envconfig:"FFMPEG_TIMEOUT" default:"3600s"`
	// PollGracePeriod is added to FFmpegTimeout to get the overall polling
	// deadline, accounting for orchestration overhead beyond worker runtime.
	PollGracePeriod time.Duration `envconfig:"PIPELINE_POLL_GRACE_PERIOD" default:"600s"`
	// MaxConcurrent bounds the number of pipeline tasks allowed to run their
	// distribute/poll/collect span simultaneously.
	MaxConcurrent int64 `envconfig:"PIPELINE_MAX_CONCURRENT" default:"16"`

	// Variants is the static set of target resolutions/bitrates, decoded
	// from VariantsJSON by Load.
	Variants []model.Variant `envconfig:"-"`
	// Workers maps a variant label to the base URL of the worker responsible
	// for producing it, decoded from WorkersJSON by Load.
	Workers map[string]string `envconfig:"-"`

	VariantsJSON string `envconfig:"RESOLUTIONS_JSON" default:"[{\"label\":\"360p\",\"height\":360,\"video_bitrate\":\"800k\",\"audio_bitrate\":\"96k\"},{\"label\":\"480p\",\"height\":480,\"video_bitrate\":\"1400k\",\"audio_bitrate\":\"128k\"},{\"label\":\"720p\",\"height\":720,\"video_bitrate\":\"2800k\",\"audio_bitrate\":\"128k\"}]"`
	WorkersJSON  string `envconfig:"CONVERTER_SERVERS_JSON" default:"{\"360p\":\"http://localhost:9360\",\"480p\":\"http://localhost:9480\",\"720p\":\"http://localhost:9720\"}"`
}

// PollingDeadline is the overall budget for the poll phase of one pipeline
// run: FFMPEG_TIMEOUT plus the configured grace period for orchestration
// overhead.
func (c PipelineConfig) PollingDeadline() time.Duration {
	return c.FFmpegTimeout + c.PollGracePeriod
}

// WorkerConfig configures the standalone reference worker binary
// (cmd/worker); the orchestrator process doesn't use it directly but the
// struct tree shares one envconfig pass.
type WorkerConfig struct {
	Port    int    `envconfig:"WORKER_PORT" default:"9000"`
	TempDir string `envconfig:"WORKER_TEMP_DIR" default:"/tmp/streamcast-worker"`

	FFmpegPath         string `envconfig:"WORKER_FFMPEG_PATH" default:"ffmpeg"`
	VideoCodec         string `envconfig:"WORKER_VIDEO_CODEC" default:"libx264"`
	VideoPreset        string `envconfig:"WORKER_VIDEO_PRESET" default:"fast"`
	AudioCodec         string `envconfig:"WORKER_AUDIO_CODEC" default:"aac"`
	HLSSegmentDuration int    `envconfig:"WORKER_HLS_SEGMENT_DURATION" default:"6"`
	HLSPlaylistType    string `envconfig:"WORKER_HLS_PLAYLIST_TYPE" default:"vod"`

	DownloadTimeout time.Duration `envconfig:"WORKER_DOWNLOAD_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"WORKER_SHUTDOWN_TIMEOUT" default:"10s"`
}

// RedisConfig enables the optional status-read cache when Addr is set.
type RedisConfig struct {
	Addr     string        `envconfig:"REDIS_ADDR" default:""`
	Password string        `envconfig:"REDIS_PASSWORD" default:""`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	TTL      time.Duration `envconfig:"REDIS_STATUS_TTL" default:"5s"`
}

func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// Load reads configuration from the environment, applying defaults, and
// decodes the variant/worker maps carried as JSON env vars.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := json.Unmarshal([]byte(cfg.Pipeline.VariantsJSON), &cfg.Pipeline.Variants); err != nil {
		return nil, fmt.Errorf("failed to parse RESOLUTIONS_JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(cfg.Pipeline.WorkersJSON), &cfg.Pipeline.Workers); err != nil {
		return nil, fmt.Errorf("failed to parse CONVERTER_SERVERS_JSON: %w", err)
	}

	return &cfg, nil
}
