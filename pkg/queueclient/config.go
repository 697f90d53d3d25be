package queueclient

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxRetry  = 3
	DefaultBasePause = 200 * time.Millisecond
	// DefaultChunkSize is the batch size used when neither the call nor the
	// Config sets one.
	DefaultChunkSize = 10
)

// ErrMissingQueueURL is returned when a Config has no queue URL.
var ErrMissingQueueURL = errors.New("queue url is required")

// Config holds the settings shared by every call of a Client.
type Config struct {
	QueueURL  string        `yaml:"queue_url"`
	MaxRetry  int           `yaml:"max_retry"`
	BasePause time.Duration `yaml:"base_pause"`
	// ChunkSize is the batch size for calls that pass chunkSize <= 0. Zero
	// means DefaultChunkSize.
	ChunkSize int `yaml:"chunk_size"`
}

// DefaultConfig returns the default settings for queueURL.
func DefaultConfig(queueURL string) Config {
	return Config{
		QueueURL:  queueURL,
		MaxRetry:  DefaultMaxRetry,
		BasePause: DefaultBasePause,
		ChunkSize: DefaultChunkSize,
	}
}

// Validate checks the settings.
func (c Config) Validate() error {
	if c.QueueURL == "" {
		return ErrMissingQueueURL
	}
	if c.MaxRetry < 0 {
		return fmt.Errorf("max retry cannot be negative, got %d", c.MaxRetry)
	}
	if c.BasePause < 0 {
		return fmt.Errorf("base pause cannot be negative, got %s", c.BasePause)
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("chunk size cannot be negative, got %d", c.ChunkSize)
	}
	return nil
}

// LoadConfigFromEnv builds a Config from QUEUE_* environment variables.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig(os.Getenv("QUEUE_URL"))
	if cfg.QueueURL == "" {
		return Config{}, fmt.Errorf("QUEUE_URL environment variable not set: %w", ErrMissingQueueURL)
	}
	if v := os.Getenv("QUEUE_MAX_RETRY"); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetry = val
		} else {
			log.Warn().Err(err).Str("value", v).Msg("QUEUE_MAX_RETRY is not an integer, using default.")
		}
	}
	if v := os.Getenv("QUEUE_CHUNK_SIZE"); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			cfg.ChunkSize = val
		} else {
			log.Warn().Err(err).Str("value", v).Msg("QUEUE_CHUNK_SIZE is not an integer, using default.")
		}
	}
	if v := os.Getenv("QUEUE_BASE_PAUSE"); v != "" {
		if val, err := time.ParseDuration(v); err == nil {
			cfg.BasePause = val
		} else {
			log.Warn().Err(err).Str("value", v).Msg("QUEUE_BASE_PAUSE is not a duration, using default.")
		}
	}
	return cfg, cfg.Validate()
}
