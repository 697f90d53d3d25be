// Package config loads delivery settings for the stream and queue clients
// from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/illmade-knight/go-batchsend/pkg/queueclient"
	"github.com/illmade-knight/go-batchsend/pkg/streamclient"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// DeadLetterConfig names the Pub/Sub topic dropped entries are published to.
// An empty TopicID disables dead-lettering. deadletter.NewPublisherFromConfig
// builds the publisher from it.
type DeadLetterConfig struct {
	ProjectID string `yaml:"project_id"`
	TopicID   string `yaml:"topic_id"`
}

// Enabled reports whether a dead-letter topic is configured.
func (d DeadLetterConfig) Enabled() bool {
	return d.TopicID != ""
}

// DeliveryConfig is the top-level YAML document.
//
//	stream:
//	  stream_name: events
//	  max_merge_count: 10
//	  max_batch_size: 300
//	  group_separator: "#-#"
//	  max_retry: 3
//	  base_pause: 200ms
//	queue:
//	  queue_url: https://sqs.eu-west-1.amazonaws.com/123456789012/jobs
//	  max_retry: 3
//	  base_pause: 200ms
//	  chunk_size: 10
//	dead_letter:
//	  project_id: my-project
//	  topic_id: delivery-dlt
type DeliveryConfig struct {
	Stream     streamclient.Config `yaml:"stream"`
	Queue      queueclient.Config  `yaml:"queue"`
	DeadLetter DeadLetterConfig    `yaml:"dead_letter"`
}

// HasStream reports whether the stream block names a stream.
func (c *DeliveryConfig) HasStream() bool {
	return c.Stream.StreamName != ""
}

// HasQueue reports whether the queue block names a queue.
func (c *DeliveryConfig) HasQueue() bool {
	return c.Queue.QueueURL != ""
}

// Validate checks every configured block.
func (c *DeliveryConfig) Validate() error {
	if !c.HasStream() && !c.HasQueue() {
		return errors.New("validation error: neither stream.stream_name nor queue.queue_url is set")
	}
	if c.HasStream() {
		if err := c.Stream.Validate(); err != nil {
			return fmt.Errorf("validation error in stream: %w", err)
		}
	}
	if c.HasQueue() {
		if err := c.Queue.Validate(); err != nil {
			return fmt.Errorf("validation error in queue: %w", err)
		}
	}
	if c.DeadLetter.Enabled() && c.DeadLetter.ProjectID == "" {
		return errors.New("validation error: dead_letter.project_id is required when topic_id is set")
	}
	return nil
}

// Parse decodes YAML data on top of the package defaults, so omitted keys
// keep their default values.
func Parse(data []byte) (*DeliveryConfig, error) {
	cfg := DeliveryConfig{
		Stream: streamclient.DefaultConfig(""),
		Queue:  queueclient.DefaultConfig(""),
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}
	return &cfg, nil
}

// LoadAndValidateConfig reads the YAML file at configPath, fills defaults and
// validates the result.
func LoadAndValidateConfig(configPath string) (*DeliveryConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config file '%s': %w", configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info().Str("path", configPath).
		Bool("stream", cfg.HasStream()).
		Bool("queue", cfg.HasQueue()).
		Bool("dead_letter", cfg.DeadLetter.Enabled()).
		Msg("Delivery configuration loaded.")
	return cfg, nil
}
