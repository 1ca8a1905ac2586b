package tensor

import (
	"fmt"
	"math/rand"
)

// CoAttentionEncoder refines vision and language features with alternating
// cross-modal and per-modality self-attention, in the style of ViLBERT
// (https://arxiv.org/abs/1908.02265).
//
// Layer i runs, in this order:
//
//	vision   <- VisionLanguage[i](vision, language, language, languageMask)
//	language <- LanguageVision[i](language, vision, vision, visionMask)
//	vision   <- VisionSelf[i](vision, vision, vision, visionMask)
//	language <- LanguageSelf[i](language, language, language, languageMask)
//
// The language cross-attention step reads the vision features already updated
// in the same layer.
type CoAttentionEncoder struct {
	Config *EncoderConfig

	PosEncoder   *SinusoidEncoder
	VisionNorm   *LayerNormLayer
	LanguageNorm *LayerNormLayer

	// cross-attention ladders
	VisionLanguage []*EncoderLayer
	LanguageVision []*EncoderLayer

	// self-attention ladders
	VisionSelf   []*EncoderLayer
	LanguageSelf []*EncoderLayer
}

// NewCoAttentionEncoder builds an encoder with identity norms and zeroed
// projections. Call InitParameters or LoadWeights before use.
func NewCoAttentionEncoder(cfg *EncoderConfig) (*CoAttentionEncoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	enc := &CoAttentionEncoder{
		Config:       cfg,
		PosEncoder:   NewSinusoidEncoder(cfg.DModel, cfg.MaxLen, cfg.PosBase),
		VisionNorm:   NewLayerNormLayer(cfg.DModel, cfg.NormEps),
		LanguageNorm: NewLayerNormLayer(cfg.DModel, cfg.NormEps),
	}

	ladders := []*[]*EncoderLayer{&enc.VisionLanguage, &enc.LanguageVision, &enc.VisionSelf, &enc.LanguageSelf}
	for i, blockCfg := range cfg.ladders() {
		ladder := make([]*EncoderLayer, cfg.Layers)
		for l := range ladder {
			layer, err := NewEncoderLayer(*blockCfg)
			if err != nil {
				return nil, fmt.Errorf("%s layer %d: %w", ladderNames[i], l, err)
			}
			ladder[l] = layer
		}
		*ladders[i] = ladder
	}

	return enc, nil
}

// Validate checks that the four ladders are complete and of equal length.
func (e *CoAttentionEncoder) Validate() error {
	n := len(e.VisionLanguage)
	if n == 0 {
		return fmt.Errorf("%w: encoder has no layers", ErrConfiguration)
	}
	for i, ladder := range [][]*EncoderLayer{e.VisionLanguage, e.LanguageVision, e.VisionSelf, e.LanguageSelf} {
		if len(ladder) != n {
			return fmt.Errorf("%w: %s has %d layers, want %d", ErrConfiguration, ladderNames[i], len(ladder), n)
		}
		for l, layer := range ladder {
			if layer == nil {
				return fmt.Errorf("%w: %s layer %d is missing", ErrConfiguration, ladderNames[i], l)
			}
		}
	}
	return nil
}

// NumLayers returns the ladder length L.
func (e *CoAttentionEncoder) NumLayers() int {
	return len(e.VisionLanguage)
}

// Forward runs the encoder in inference mode.
//
//	vision:       [batch, Sv, d_model]
//	visionMask:   [batch, Sv] or broadcastable, nil for no padding
//	language:     [batch, Sl, d_model]
//	languageMask: [batch, Sl] or broadcastable, nil for no padding
//
// Returns refined features with the input shapes. Inputs are not modified.
func (e *CoAttentionEncoder) Forward(vision *Tensor, visionMask *Mask, language *Tensor, languageMask *Mask) (*Tensor, *Tensor, error) {
	return e.ForwardWithDropout(vision, visionMask, language, languageMask, nil)
}

// ForwardWithDropout runs the encoder with dropout drawn from rng. A nil rng
// is equivalent to Forward.
func (e *CoAttentionEncoder) ForwardWithDropout(vision *Tensor, visionMask *Mask, language *Tensor, languageMask *Mask, rng *rand.Rand) (*Tensor, *Tensor, error) {
	if err := e.checkInputs(vision, language); err != nil {
		return nil, nil, err
	}

	// normalize, then add position
	vision = Add(e.VisionNorm.Forward(vision), e.PosEncoder.Forward(vision))
	language = Add(e.LanguageNorm.Forward(language), e.PosEncoder.Forward(language))

	var err error
	for i := range e.VisionLanguage {
		// cross-attention
		vision, err = e.VisionLanguage[i].ForwardWithDropout(vision, language, language, languageMask, rng)
		if err != nil {
			return nil, nil, fmt.Errorf("layer %d vision-language: %w", i, err)
		}
		language, err = e.LanguageVision[i].ForwardWithDropout(language, vision, vision, visionMask, rng)
		if err != nil {
			return nil, nil, fmt.Errorf("layer %d language-vision: %w", i, err)
		}

		// self-attention
		vision, err = e.VisionSelf[i].ForwardWithDropout(vision, vision, vision, visionMask, rng)
		if err != nil {
			return nil, nil, fmt.Errorf("layer %d vision-self: %w", i, err)
		}
		language, err = e.LanguageSelf[i].ForwardWithDropout(language, language, language, languageMask, rng)
		if err != nil {
			return nil, nil, fmt.Errorf("layer %d language-self: %w", i, err)
		}
	}

	return vision, language, nil
}

func (e *CoAttentionEncoder) checkInputs(vision, language *Tensor) error {
	if vision == nil || language == nil {
		return fmt.Errorf("%w: vision and language features are required", ErrShapeMismatch)
	}
	if len(vision.Shape) != 3 || len(language.Shape) != 3 {
		return fmt.Errorf("%w: features must be [batch, seq, d_model], got vision %v, language %v",
			ErrShapeMismatch, vision.Shape, language.Shape)
	}
	d := e.Config.DModel
	if vision.Shape[2] != d || language.Shape[2] != d {
		return fmt.Errorf("%w: feature width must be %d, got vision %d, language %d",
			ErrShapeMismatch, d, vision.Shape[2], language.Shape[2])
	}
	if vision.Shape[0] != language.Shape[0] {
		return fmt.Errorf("%w: batch sizes differ: vision %d, language %d", ErrShapeMismatch, vision.Shape[0], language.Shape[0])
	}
	return nil
}
