package imgengine

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/imgengine/internal/codec"
)

// Config holds the engine options. Use DefaultConfig as a starting point;
// New treats zero sizes as "use the default" but validates everything else.
type Config struct {
	// Workers is the number of jobs processed concurrently.
	Workers int `yaml:"worker_count" json:"worker_count"`

	// QueueCapacity is how many submitted jobs may wait for a worker before
	// Submit blocks and TrySubmit reports ErrWouldBlock.
	QueueCapacity int `yaml:"queue_capacity" json:"queue_capacity"`

	// PoolCapacity is the maximum number of released buffers kept for reuse.
	PoolCapacity int `yaml:"pool_capacity" json:"pool_capacity"`

	// MaxBufferBytes rejects any single frame larger than this. Zero means
	// no limit beyond MaxDimension.
	MaxBufferBytes int64 `yaml:"max_buffer_bytes" json:"max_buffer_bytes"`

	// MaxOutstandingBuffers caps buffers in use at once. Zero means no cap.
	// Workers wait for a free buffer before decoding; a job that reaches the
	// cap later fails with ResourceError(PoolExhausted).
	MaxOutstandingBuffers int `yaml:"max_outstanding_buffers" json:"max_outstanding_buffers"`

	// MaxInputBytes and MaxDimension bound what the decoders accept.
	MaxInputBytes int64 `yaml:"max_input_bytes" json:"max_input_bytes"`
	MaxDimension  int   `yaml:"max_dimension" json:"max_dimension"`

	// JobTimeout bounds the processing time of one job. Negative disables
	// the limit. In YAML and JSON it is written as a duration string, "30s".
	JobTimeout time.Duration `yaml:"-" json:"-"`

	// AutoOrient applies embedded EXIF orientation before the caller's
	// pipeline unless a request opts out.
	AutoOrient bool `yaml:"auto_orient" json:"auto_orient"`

	// DefaultQuality is the JPEG quality for requests that leave it unset.
	DefaultQuality int `yaml:"default_quality" json:"default_quality"`

	// LogLevel is "info" or "debug".
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Logger receives engine logs. Nil logs to stderr.
	Logger *log.Logger `yaml:"-" json:"-"`
}

// Environment variables read by ApplyEnv.
const (
	EnvWorkers       = "IMGENGINE_WORKERS"
	EnvQueueCapacity = "IMGENGINE_QUEUE_CAPACITY"
	EnvPoolCapacity  = "IMGENGINE_POOL_CAPACITY"
	EnvJobTimeout    = "IMGENGINE_JOB_TIMEOUT"
	EnvLogLevel      = "IMGENGINE_LOG_LEVEL"
)

// DefaultConfig returns the defaults: one worker per CPU, a queue of four
// jobs per worker, 32 pooled buffers, 30 MiB inputs up to 8000 pixels a side,
// 30 second jobs, auto orientation, JPEG quality 80.
func DefaultConfig() Config {
	workers := runtime.GOMAXPROCS(0)
	return Config{
		Workers:        workers,
		QueueCapacity:  4 * workers,
		PoolCapacity:   32,
		MaxInputBytes:  codec.DefaultMaxInputBytes,
		MaxDimension:   codec.DefaultMaxDimension,
		JobTimeout:     30 * time.Second,
		AutoOrient:     true,
		DefaultQuality: codec.DefaultQuality,
		LogLevel:       "info",
	}
}

// document is the on-disk shape of Config.
type document struct {
	Config     `yaml:",inline"`
	JobTimeout string `yaml:"job_timeout" json:"job_timeout"`
}

// ParseConfig reads a YAML or JSON configuration. A document starting with
// '{' is parsed as JSON. Keys that are absent keep their DefaultConfig value.
//
// Example:
//
//	worker_count: 4
//	queue_capacity: 16
//	pool_capacity: 8
//	job_timeout: 10s
//	log_level: debug
//
// Returns:
//   - Config: The parsed configuration, validated.
//   - error: Syntax errors, unknown duration strings or out-of-range values.
func ParseConfig(data []byte) (Config, error) {
	doc := document{Config: DefaultConfig()}

	trimmed := bytes.TrimSpace(data)
	var err error
	if len(trimmed) > 0 && trimmed[0] == '{' {
		err = json.Unmarshal(trimmed, &doc)
	} else {
		err = yaml.Unmarshal(trimmed, &doc)
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := doc.Config
	if doc.JobTimeout != "" {
		d, err := time.ParseDuration(doc.JobTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("invalid job_timeout: %w", err)
		}
		cfg.JobTimeout = d
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg from the IMGENGINE_* environment variables that are
// set. Unset or empty variables leave the field alone.
func ApplyEnv(cfg *Config) error {
	var errs []error
	envInt := func(name string, dst *int) {
		v := os.Getenv(name)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = n
	}

	envInt(EnvWorkers, &cfg.Workers)
	envInt(EnvQueueCapacity, &cfg.QueueCapacity)
	envInt(EnvPoolCapacity, &cfg.PoolCapacity)

	if v := os.Getenv(EnvJobTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvJobTimeout, err))
		} else {
			cfg.JobTimeout = d
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	return errors.Join(errs...)
}

// Validate reports every out-of-range option.
func (c Config) Validate() error {
	var errs []error
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("worker_count cannot be negative, got %d", c.Workers))
	}
	if c.QueueCapacity < 0 {
		errs = append(errs, fmt.Errorf("queue_capacity cannot be negative, got %d", c.QueueCapacity))
	}
	if c.PoolCapacity < 0 {
		errs = append(errs, fmt.Errorf("pool_capacity cannot be negative, got %d", c.PoolCapacity))
	}
	if c.MaxBufferBytes < 0 || c.MaxInputBytes < 0 {
		errs = append(errs, fmt.Errorf("byte limits cannot be negative"))
	}
	if c.MaxOutstandingBuffers < 0 {
		errs = append(errs, fmt.Errorf("max_outstanding_buffers cannot be negative, got %d", c.MaxOutstandingBuffers))
	}
	if c.MaxOutstandingBuffers > 0 && c.MaxOutstandingBuffers < 2 {
		// A transform reads one buffer while writing the next.
		errs = append(errs, fmt.Errorf("max_outstanding_buffers must be at least 2, got %d", c.MaxOutstandingBuffers))
	}
	if c.MaxDimension < 0 {
		errs = append(errs, fmt.Errorf("max_dimension cannot be negative, got %d", c.MaxDimension))
	}
	if c.DefaultQuality < 0 || c.DefaultQuality > 100 {
		errs = append(errs, fmt.Errorf("default_quality must be 1-100, got %d", c.DefaultQuality))
	}
	switch c.LogLevel {
	case "", "info", "debug":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c Config) limits() codec.Limits {
	return codec.Limits{MaxInputBytes: c.MaxInputBytes, MaxDimension: c.MaxDimension}
}

func (c Config) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.New(os.Stderr, "imgengine: ", log.Ldate|log.Ltime|log.Lshortfile)
}
