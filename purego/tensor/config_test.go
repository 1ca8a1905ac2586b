package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttentionConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*AttentionConfig)
	}{
		{"zero d_model", func(c *AttentionConfig) { c.DModel = 0 }},
		{"zero heads", func(c *AttentionConfig) { c.Heads = 0 }},
		{"indivisible heads", func(c *AttentionConfig) { c.Heads = 3 }},
		{"zero d_ff", func(c *AttentionConfig) { c.DFF = 0 }},
		{"dropout one", func(c *AttentionConfig) { c.Dropout = 1 }},
		{"negative dropout", func(c *AttentionConfig) { c.Dropout = -0.1 }},
		{"unknown activation", func(c *AttentionConfig) { c.Activation = "swish" }},
	}

	require.NoError(t, DefaultAttentionConfig(16).Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultAttentionConfig(16)
			tt.modify(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrConfiguration)
		})
	}
}

func TestEncoderConfigValidate(t *testing.T) {
	cfg := NewEncoderConfig(16, 2)
	require.NoError(t, cfg.Validate())

	cfg.Layers = 0
	assert.ErrorIs(t, cfg.Validate(), ErrConfiguration)

	cfg = NewEncoderConfig(16, 2)
	cfg.LanguageSelf.DModel = 32
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "LANGUAGE_SELF_ATTENTION")

	_, err = NewCoAttentionEncoder(cfg)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestEncoderConfigApplyDefaults(t *testing.T) {
	cfg := &EncoderConfig{DModel: 32, Layers: 1}
	cfg.VisionSelf.Heads = 4
	cfg.ApplyDefaults()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1024, cfg.MaxLen)
	assert.Equal(t, 8, cfg.VisionLanguage.Heads)
	assert.Equal(t, 4, cfg.VisionSelf.Heads)
	assert.Equal(t, 128, cfg.LanguageSelf.DFF)
	assert.Equal(t, ActivationReLU, cfg.LanguageVision.Activation)
}

func TestEstimateParametersMatchesEnumeration(t *testing.T) {
	cfg := NewEncoderConfig(16, 2)
	enc, err := NewCoAttentionEncoder(cfg)
	require.NoError(t, err)

	total := int64(0)
	for _, p := range enc.Parameters() {
		total += int64(len(p.Tensor.Data))
	}
	assert.Equal(t, cfg.EstimateParameters(), total)
}
