package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coattn-go/purego/tensor"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 512, cfg.Model.DModel)
	assert.Equal(t, 4, cfg.Model.Layers)
	assert.Equal(t, 8, cfg.Model.VisionSelf.Heads)
	assert.Equal(t, 2048, cfg.Model.VisionSelf.DFF)
	assert.InDelta(t, 0.1, cfg.Model.LanguageVision.Dropout, 1e-6)
	assert.Equal(t, 32, cfg.Dataset.BatchSize)
	assert.Equal(t, 10, cfg.Dataset.MaxAnswerLength)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
MODEL:
  D_MODEL: 64
  LAYERS: 2
  VISION_LANGUAGE_ATTENTION:
    HEAD: 4
    D_FF: 128
    DROPOUT: 0.2
    ACTIVATION: gelu
DATASET:
  JSON_PATH: train.json
  FEATURE_PATH:
    IMAGE: /data/features
  BATCH_SIZE: 16
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.Model.DModel)
	assert.Equal(t, 2, cfg.Model.Layers)
	assert.Equal(t, tensor.AttentionConfig{
		Heads: 4, DModel: 64, DFF: 128, Dropout: 0.2, Activation: tensor.ActivationGELU, NormEps: 1e-5,
	}, cfg.Model.VisionLanguage)
	assert.Equal(t, 256, cfg.Model.LanguageSelf.DFF)
	assert.Equal(t, "/data/features", cfg.Dataset.FeaturePath.Image)
	assert.Equal(t, 16, cfg.Dataset.BatchSize)
	assert.Equal(t, 4, cfg.Dataset.Workers)
}

func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("MODEL:\n  D_MODEL: 30\n"), 0o644))

	_, err := LoadConfig(path)
	assert.ErrorIs(t, err, tensor.ErrConfiguration)
}
