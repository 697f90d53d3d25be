package streamclient

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxMergeCount  = 10
	DefaultMaxBatchSize   = 300
	DefaultGroupSeparator = "#-#"
	DefaultMaxRetry       = 3
	DefaultBasePause      = 200 * time.Millisecond
)

// ErrMissingStreamName is returned when a Config has no stream name.
var ErrMissingStreamName = errors.New("stream name is required")

// Config describes one PutRecords call: the destination stream and how
// payloads are merged, batched and retried.
type Config struct {
	StreamName string `yaml:"stream_name"`
	// MaxMergeCount is how many serialized payloads share one entry. It also
	// bounds the size of retry batches.
	MaxMergeCount int `yaml:"max_merge_count"`
	// MaxBatchSize is how many entries go into one initial batch call.
	MaxBatchSize   int           `yaml:"max_batch_size"`
	GroupSeparator string        `yaml:"group_separator"`
	MaxRetry       int           `yaml:"max_retry"`
	BasePause      time.Duration `yaml:"base_pause"`
}

// DefaultConfig returns the default settings for streamName.
func DefaultConfig(streamName string) Config {
	return Config{
		StreamName:     streamName,
		MaxMergeCount:  DefaultMaxMergeCount,
		MaxBatchSize:   DefaultMaxBatchSize,
		GroupSeparator: DefaultGroupSeparator,
		MaxRetry:       DefaultMaxRetry,
		BasePause:      DefaultBasePause,
	}
}

// Validate checks the settings PutRecords depends on.
func (c Config) Validate() error {
	if c.StreamName == "" {
		return ErrMissingStreamName
	}
	if c.MaxMergeCount <= 0 {
		return fmt.Errorf("max merge count must be positive, got %d", c.MaxMergeCount)
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("max batch size must be positive, got %d", c.MaxBatchSize)
	}
	if c.MaxRetry < 0 {
		return fmt.Errorf("max retry cannot be negative, got %d", c.MaxRetry)
	}
	if c.BasePause < 0 {
		return fmt.Errorf("base pause cannot be negative, got %s", c.BasePause)
	}
	return nil
}

// LoadConfigFromEnv builds a Config from STREAM_* environment variables,
// falling back to the defaults for anything unset or unparsable.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig(os.Getenv("STREAM_NAME"))
	if cfg.StreamName == "" {
		return Config{}, fmt.Errorf("STREAM_NAME environment variable not set: %w", ErrMissingStreamName)
	}

	envInt("STREAM_MAX_MERGE_COUNT", &cfg.MaxMergeCount)
	envInt("STREAM_MAX_BATCH_SIZE", &cfg.MaxBatchSize)
	envInt("STREAM_MAX_RETRY", &cfg.MaxRetry)
	if sep, ok := os.LookupEnv("STREAM_GROUP_SEPARATOR"); ok {
		cfg.GroupSeparator = sep
	}
	if bp := os.Getenv("STREAM_BASE_PAUSE"); bp != "" {
		if val, err := time.ParseDuration(bp); err == nil {
			cfg.BasePause = val
		} else {
			log.Warn().Err(err).Str("value", bp).Msg("STREAM_BASE_PAUSE is not a duration, using default.")
		}
	}
	return cfg, cfg.Validate()
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	val, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Str("value", v).Msg("Ignoring non-integer environment variable.")
		return
	}
	*dst = val
}
