package tensor

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cespare/xxhash/v2"
)

// ParamKind tells initializers and loaders how to treat a parameter.
type ParamKind int

const (
	ParamLinearWeight ParamKind = iota // [in, out], stored as [out, in] in PyTorch
	ParamBias
	ParamNormWeight
	ParamNormBias
)

// Parameter is a named, live view of one learned tensor. Writing to
// Tensor.Data updates the model.
type Parameter struct {
	Name   string
	Kind   ParamKind
	Tensor *Tensor
}

// Parameters enumerates every learned tensor using PyTorch state-dict names,
// e.g. "vision_language_attn_layers.0.mhatt.attention.fc_q.weight".
func (e *CoAttentionEncoder) Parameters() []Parameter {
	var params []Parameter
	params = append(params, normParameters("vision_layer_norm", e.VisionNorm)...)
	params = append(params, normParameters("language_layer_norm", e.LanguageNorm)...)

	prefixes := [4]string{
		"vision_language_attn_layers",
		"language_vision_attn_layers",
		"vision_self_attn_layers",
		"language_self_attn_layers",
	}
	for i, ladder := range [][]*EncoderLayer{e.VisionLanguage, e.LanguageVision, e.VisionSelf, e.LanguageSelf} {
		for l, layer := range ladder {
			params = append(params, layer.Parameters(fmt.Sprintf("%s.%d", prefixes[i], l))...)
		}
	}
	return params
}

// Parameters enumerates the layer's learned tensors under prefix.
func (l *EncoderLayer) Parameters(prefix string) []Parameter {
	att := prefix + ".mhatt.attention"
	params := []Parameter{
		{att + ".fc_q.weight", ParamLinearWeight, l.Attention.QWeight},
		{att + ".fc_q.bias", ParamBias, l.Attention.QBias},
		{att + ".fc_k.weight", ParamLinearWeight, l.Attention.KWeight},
		{att + ".fc_k.bias", ParamBias, l.Attention.KBias},
		{att + ".fc_v.weight", ParamLinearWeight, l.Attention.VWeight},
		{att + ".fc_v.bias", ParamBias, l.Attention.VBias},
		{att + ".fc_o.weight", ParamLinearWeight, l.Attention.OutWeight},
		{att + ".fc_o.bias", ParamBias, l.Attention.OutBias},
	}
	params = append(params, normParameters(prefix+".mhatt.layer_norm", l.AttnNorm)...)

	params = append(params,
		Parameter{prefix + ".pwff.fc1.weight", ParamLinearWeight, l.FFN.W1},
		Parameter{prefix + ".pwff.fc1.bias", ParamBias, l.FFN.B1},
		Parameter{prefix + ".pwff.fc2.weight", ParamLinearWeight, l.FFN.W2},
		Parameter{prefix + ".pwff.fc2.bias", ParamBias, l.FFN.B2},
	)
	return append(params, normParameters(prefix+".pwff.layer_norm", l.FFNNorm)...)
}

func normParameters(prefix string, ln *LayerNormLayer) []Parameter {
	return []Parameter{
		{prefix + ".weight", ParamNormWeight, ln.Weight},
		{prefix + ".bias", ParamNormBias, ln.Bias},
	}
}

// InitParameters fills every parameter deterministically: Xavier-uniform
// linear weights, zero biases, identity LayerNorms. Each tensor draws from its
// own generator seeded by the parameter name and seed, so the result does
// not depend on enumeration order.
func InitParameters(e *CoAttentionEncoder, seed uint64) {
	for _, p := range e.Parameters() {
		switch p.Kind {
		case ParamLinearWeight:
			rng := rand.New(rand.NewSource(int64(xxhash.Sum64String(p.Name) ^ seed)))
			in, out := p.Tensor.Shape[0], p.Tensor.Shape[1]
			limit := math.Sqrt(6.0 / float64(in+out))
			for i := range p.Tensor.Data {
				p.Tensor.Data[i] = float32((rng.Float64()*2 - 1) * limit)
			}
		case ParamNormWeight:
			for i := range p.Tensor.Data {
				p.Tensor.Data[i] = 1
			}
		default:
			clear(p.Tensor.Data)
		}
	}
}
