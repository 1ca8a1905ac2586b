package vqa

import (
	"fmt"
	"os"
)

// Config holds the dataset configuration
type Config struct {
	JSONPath          string       `yaml:"JSON_PATH"`
	FeaturePath       FeaturePaths `yaml:"FEATURE_PATH"`
	BatchSize         int          `yaml:"BATCH_SIZE"`
	Workers           int          `yaml:"WORKERS"`
	MaxQuestionLength int          `yaml:"MAX_QUESTION_LENGTH"`
	MaxAnswerLength   int          `yaml:"MAX_ANSWER_LENGTH"`
	MinFreq           int          `yaml:"MIN_FREQ"`
	Shuffle           bool         `yaml:"SHUFFLE"`
	Seed              int64        `yaml:"SEED"`
}

// FeaturePaths locates per-modality features.
type FeaturePaths struct {
	Image string `yaml:"IMAGE"`
}

// ConfigOption is a functional option for Config
type ConfigOption func(*Config)

// NewConfig creates a new Config with default values
func NewConfig(jsonPath string, opts ...ConfigOption) (*Config, error) {
	c := &Config{JSONPath: jsonPath}
	c.ApplyDefaults()

	for _, opt := range opts {
		opt(c)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 32
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.MaxQuestionLength == 0 {
		c.MaxQuestionLength = 30
	}
	if c.MaxAnswerLength == 0 {
		c.MaxAnswerLength = 10
	}
	if c.MinFreq == 0 {
		c.MinFreq = 1
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := os.Stat(c.JSONPath); err != nil {
		return fmt.Errorf("annotation file: %w", err)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.MaxQuestionLength < 2 || c.MaxAnswerLength < 2 {
		return fmt.Errorf("sequence lengths must be at least 2")
	}
	return nil
}

// WithImagePath sets the image or feature directory
func WithImagePath(path string) ConfigOption {
	return func(c *Config) {
		c.FeaturePath.Image = path
	}
}

// WithBatchSize sets the batch size
func WithBatchSize(n int) ConfigOption {
	return func(c *Config) {
		c.BatchSize = n
	}
}

// WithWorkers sets the number of concurrent item loaders
func WithWorkers(n int) ConfigOption {
	return func(c *Config) {
		c.Workers = n
	}
}

// WithMaxLengths sets the encoded question and answer lengths
func WithMaxLengths(question, answer int) ConfigOption {
	return func(c *Config) {
		c.MaxQuestionLength = question
		c.MaxAnswerLength = answer
	}
}

// WithMinFreq sets the vocabulary frequency cutoff
func WithMinFreq(n int) ConfigOption {
	return func(c *Config) {
		c.MinFreq = n
	}
}

// WithShuffle enables seeded shuffling of batch order
func WithShuffle(seed int64) ConfigOption {
	return func(c *Config) {
		c.Shuffle = true
		c.Seed = seed
	}
}
