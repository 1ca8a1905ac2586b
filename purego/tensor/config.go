package tensor

import (
	"fmt"
	"log/slog"
)

// ActivationType defines the feed-forward nonlinearity
type ActivationType string

const (
	ActivationReLU ActivationType = "relu" // ReLU (default)
	ActivationGELU ActivationType = "gelu" // GELU (BERT-style blocks)
)

// AttentionConfig configures one ladder of encoder layers.
type AttentionConfig struct {
	Heads      int            `yaml:"HEAD"`
	DModel     int            `yaml:"D_MODEL"`
	DFF        int            `yaml:"D_FF"`
	Dropout    float32        `yaml:"DROPOUT"`
	Activation ActivationType `yaml:"ACTIVATION"`
	NormEps    float32        `yaml:"NORM_EPS"`
}

// HeadDim returns DModel / Heads.
func (c AttentionConfig) HeadDim() int {
	return c.DModel / c.Heads
}

// Validate checks the block invariants.
func (c AttentionConfig) Validate() error {
	switch {
	case c.DModel <= 0:
		return fmt.Errorf("%w: d_model must be positive, got %d", ErrConfiguration, c.DModel)
	case c.Heads <= 0:
		return fmt.Errorf("%w: head count must be positive, got %d", ErrConfiguration, c.Heads)
	case c.DModel%c.Heads != 0:
		return fmt.Errorf("%w: d_model (%d) must be divisible by head count (%d)", ErrConfiguration, c.DModel, c.Heads)
	case c.DFF <= 0:
		return fmt.Errorf("%w: d_ff must be positive, got %d", ErrConfiguration, c.DFF)
	case c.Dropout < 0 || c.Dropout >= 1:
		return fmt.Errorf("%w: dropout must be in [0, 1), got %g", ErrConfiguration, c.Dropout)
	}

	switch c.Activation {
	case ActivationReLU, ActivationGELU:
	default:
		return fmt.Errorf("%w: unknown activation %q", ErrConfiguration, c.Activation)
	}
	return nil
}

// EncoderConfig holds the co-attention encoder configuration. Field tags
// follow the YAML configuration tree.
type EncoderConfig struct {
	DModel  int     `yaml:"D_MODEL"`
	Layers  int     `yaml:"LAYERS"`
	MaxLen  int     `yaml:"MAX_LEN"`
	PosBase float64 `yaml:"POS_BASE"`
	NormEps float32 `yaml:"NORM_EPS"`

	VisionLanguage AttentionConfig `yaml:"VISION_LANGUAGE_ATTENTION"`
	LanguageVision AttentionConfig `yaml:"LANGUAGE_VISION_ATTENTION"`
	VisionSelf     AttentionConfig `yaml:"VISION_SELF_ATTENTION"`
	LanguageSelf   AttentionConfig `yaml:"LANGUAGE_SELF_ATTENTION"`
}

// DefaultAttentionConfig returns the block configuration used by every ladder
// unless overridden.
func DefaultAttentionConfig(dModel int) AttentionConfig {
	return AttentionConfig{
		Heads:      8,
		DModel:     dModel,
		DFF:        4 * dModel,
		Dropout:    0.1,
		Activation: ActivationReLU,
		NormEps:    1e-5,
	}
}

// NewEncoderConfig creates an encoder config with identical ladders.
func NewEncoderConfig(dModel, layers int) *EncoderConfig {
	block := DefaultAttentionConfig(dModel)
	return &EncoderConfig{
		DModel:         dModel,
		Layers:         layers,
		MaxLen:         1024,
		PosBase:        10000.0,
		NormEps:        1e-5,
		VisionLanguage: block,
		LanguageVision: block,
		VisionSelf:     block,
		LanguageSelf:   block,
	}
}

// ApplyDefaults fills zero-valued fields, e.g. after decoding a partial YAML
// file. Block widths default to the top-level D_MODEL.
func (c *EncoderConfig) ApplyDefaults() {
	if c.MaxLen == 0 {
		c.MaxLen = 1024
	}
	if c.PosBase == 0 {
		c.PosBase = 10000.0
	}
	if c.NormEps == 0 {
		c.NormEps = 1e-5
	}

	for _, block := range c.ladders() {
		def := DefaultAttentionConfig(c.DModel)
		if block.DModel == 0 {
			block.DModel = c.DModel
		}
		if block.Heads == 0 {
			block.Heads = def.Heads
		}
		if block.DFF == 0 {
			block.DFF = 4 * block.DModel
		}
		if block.Activation == "" {
			block.Activation = def.Activation
		}
		if block.NormEps == 0 {
			block.NormEps = c.NormEps
		}
	}
}

func (c *EncoderConfig) ladders() []*AttentionConfig {
	return []*AttentionConfig{&c.VisionLanguage, &c.LanguageVision, &c.VisionSelf, &c.LanguageSelf}
}

// Validate checks the encoder invariants.
func (c *EncoderConfig) Validate() error {
	if c.DModel <= 0 {
		return fmt.Errorf("%w: D_MODEL must be positive, got %d", ErrConfiguration, c.DModel)
	}
	if c.Layers < 1 {
		return fmt.Errorf("%w: LAYERS must be at least 1, got %d", ErrConfiguration, c.Layers)
	}
	if c.MaxLen < 0 {
		return fmt.Errorf("%w: MAX_LEN must not be negative, got %d", ErrConfiguration, c.MaxLen)
	}

	for i, block := range c.ladders() {
		name := ladderNames[i]
		if err := block.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if block.DModel != c.DModel {
			return fmt.Errorf("%w: %s d_model %d differs from D_MODEL %d", ErrConfiguration, name, block.DModel, c.DModel)
		}
	}
	return nil
}

// ladderNames follows the order of ladders().
var ladderNames = [4]string{
	"VISION_LANGUAGE_ATTENTION",
	"LANGUAGE_VISION_ATTENTION",
	"VISION_SELF_ATTENTION",
	"LANGUAGE_SELF_ATTENTION",
}

// EstimateParameters estimates total parameter count
func (c *EncoderConfig) EstimateParameters() int64 {
	// entry norms
	params := 4 * int64(c.DModel)

	for _, block := range c.ladders() {
		perLayer := int64(0)
		// Q, K, V, Out with biases
		perLayer += 4 * int64(block.DModel*block.DModel+block.DModel)
		// FFN with biases
		perLayer += 2*int64(block.DModel*block.DFF) + int64(block.DFF+block.DModel)
		// attention and FFN norms
		perLayer += 4 * int64(block.DModel)
		params += int64(c.Layers) * perLayer
	}
	return params
}

// LogValue implements slog.LogValuer.
func (c *EncoderConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("d_model", c.DModel),
		slog.Int("layers", c.Layers),
		slog.Int("heads", c.VisionLanguage.Heads),
		slog.Int("d_ff", c.VisionLanguage.DFF),
		slog.Int64("parameters", c.EstimateParameters()),
	)
}
