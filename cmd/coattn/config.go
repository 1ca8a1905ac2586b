package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"coattn-go/purego/tensor"
	"coattn-go/vqa"
)

// Config mirrors the YAML configuration tree.
type Config struct {
	Model   tensor.EncoderConfig `yaml:"MODEL"`
	Dataset vqa.Config           `yaml:"DATASET"`
}

// defaultConfig returns the values a configuration file overrides.
func defaultConfig() *Config {
	c := &Config{
		Model: tensor.EncoderConfig{DModel: 512, Layers: 4},
	}
	for _, block := range []*tensor.AttentionConfig{
		&c.Model.VisionLanguage, &c.Model.LanguageVision, &c.Model.VisionSelf, &c.Model.LanguageSelf,
	} {
		block.Dropout = 0.1
	}
	return c
}

// LoadConfig reads a YAML configuration. An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	c := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	c.Model.ApplyDefaults()
	c.Dataset.ApplyDefaults()

	if err := c.Model.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
