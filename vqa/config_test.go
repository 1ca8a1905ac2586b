package vqa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	path := writeRawData(t, sampleRawData())
	cfg, err := NewConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 32, cfg.BatchSize)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 30, cfg.MaxQuestionLength)
	assert.Equal(t, 10, cfg.MaxAnswerLength)
	assert.Equal(t, 1, cfg.MinFreq)
	assert.False(t, cfg.Shuffle)
}

func TestNewConfigOptions(t *testing.T) {
	path := writeRawData(t, sampleRawData())
	cfg, err := NewConfig(path,
		WithBatchSize(2),
		WithWorkers(3),
		WithMaxLengths(12, 5),
		WithImagePath("/features"),
		WithShuffle(11),
	)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.BatchSize)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 12, cfg.MaxQuestionLength)
	assert.Equal(t, "/features", cfg.FeaturePath.Image)
	assert.True(t, cfg.Shuffle)
	assert.Equal(t, int64(11), cfg.Seed)
}

func TestNewConfigInvalid(t *testing.T) {
	path := writeRawData(t, sampleRawData())

	_, err := NewConfig(path+".missing")
	assert.Error(t, err)

	_, err = NewConfig(path, WithBatchSize(-1))
	assert.Error(t, err)

	_, err = NewConfig(path, WithMaxLengths(1, 5))
	assert.Error(t, err)
}
