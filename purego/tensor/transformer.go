package tensor

import (
	"fmt"
	"math/rand"
)

// EncoderLayer is one fused attention unit: multi-head attention followed by
// a position-wise feed-forward network, each wrapped in residual + LayerNorm
// (post-norm).
type EncoderLayer struct {
	Config    AttentionConfig
	Attention *MultiHeadAttention
	AttnNorm  *LayerNormLayer
	FFN       *FeedForward
	FFNNorm   *LayerNormLayer
}

// NewEncoderLayer validates cfg and allocates a layer with identity norms and
// zeroed projections. Use InitParameters or LoadWeights to fill it.
func NewEncoderLayer(cfg AttentionConfig) (*EncoderLayer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &EncoderLayer{
		Config:    cfg,
		Attention: NewMultiHeadAttention(cfg),
		AttnNorm:  NewLayerNormLayer(cfg.DModel, cfg.NormEps),
		FFN:       NewFeedForward(cfg),
		FFNNorm:   NewLayerNormLayer(cfg.DModel, cfg.NormEps),
	}, nil
}

// Forward applies the layer in inference mode. queries: [batch, q, d_model];
// keys, values: [batch, k, d_model]; the result has the queries' shape.
func (l *EncoderLayer) Forward(queries, keys, values *Tensor, mask *Mask) (*Tensor, error) {
	return l.ForwardWithDropout(queries, keys, values, mask, nil)
}

// ForwardWithDropout applies the layer with dropout drawn from rng. A nil rng
// disables dropout.
func (l *EncoderLayer) ForwardWithDropout(queries, keys, values *Tensor, mask *Mask, rng *rand.Rand) (*Tensor, error) {
	att, err := l.Attention.Forward(queries, keys, values, mask)
	if err != nil {
		return nil, fmt.Errorf("attention: %w", err)
	}

	// Attention with residual connection
	x := l.AttnNorm.Forward(Add(queries, Dropout(att, l.Config.Dropout, rng)))

	// Feed-forward with residual connection
	ff := l.FFN.ForwardWithDropout(x, rng)
	return l.FFNNorm.Forward(Add(x, Dropout(ff, l.Config.Dropout, rng))), nil
}

// FeedForward implements the position-wise feed-forward network
type FeedForward struct {
	W1         *Tensor // [hidden, ffn_dim]
	B1         *Tensor // [ffn_dim]
	W2         *Tensor // [ffn_dim, hidden]
	B2         *Tensor // [hidden]
	Hidden     int
	FFNDim     int
	Activation ActivationType
	Dropout    float32
}

// NewFeedForward allocates zeroed weights for cfg.
func NewFeedForward(cfg AttentionConfig) *FeedForward {
	return &FeedForward{
		W1:         NewTensor(cfg.DModel, cfg.DFF),
		B1:         NewTensor(cfg.DFF),
		W2:         NewTensor(cfg.DFF, cfg.DModel),
		B2:         NewTensor(cfg.DModel),
		Hidden:     cfg.DModel,
		FFNDim:     cfg.DFF,
		Activation: cfg.Activation,
		Dropout:    cfg.Dropout,
	}
}

// Forward applies the feed-forward network
func (ffn *FeedForward) Forward(x *Tensor) *Tensor {
	return ffn.ForwardWithDropout(x, nil)
}

// ForwardWithDropout applies the network with dropout on the hidden
// activation.
func (ffn *FeedForward) ForwardWithDropout(x *Tensor, rng *rand.Rand) *Tensor {
	h := Linear(x, ffn.W1, ffn.B1)

	switch ffn.Activation {
	case ActivationGELU:
		h = GELU(h)
	default:
		h = ReLU(h)
	}

	return Linear(Dropout(h, ffn.Dropout, rng), ffn.W2, ffn.B2)
}

// LayerNormLayer wraps layer normalization with parameters
type LayerNormLayer struct {
	Weight *Tensor
	Bias   *Tensor
	Eps    float32
}

// NewLayerNormLayer creates an identity-initialized LayerNorm.
func NewLayerNormLayer(hidden int, eps float32) *LayerNormLayer {
	ln := &LayerNormLayer{
		Weight: NewTensor(hidden),
		Bias:   NewTensor(hidden),
		Eps:    eps,
	}
	for i := range ln.Weight.Data {
		ln.Weight.Data[i] = 1
	}
	return ln
}

// Forward applies layer normalization
func (ln *LayerNormLayer) Forward(x *Tensor) *Tensor {
	return LayerNorm(x, ln.Weight, ln.Bias, ln.Eps)
}
