package tensor

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

func randomTensor(rng *rand.Rand, shape ...int) *Tensor {
	t := NewTensor(shape...)
	for i := range t.Data {
		t.Data[i] = float32(rng.NormFloat64())
	}
	return t
}

func newTestEncoder(t *testing.T, dModel, layers, heads int) *CoAttentionEncoder {
	t.Helper()
	cfg := NewEncoderConfig(dModel, layers)
	for _, block := range cfg.ladders() {
		block.Heads = heads
	}
	enc, err := NewCoAttentionEncoder(cfg)
	require.NoError(t, err)
	InitParameters(enc, 42)
	return enc
}

func TestCoAttentionShapes(t *testing.T) {
	for _, heads := range []int{1, 2, 4, 8} {
		enc := newTestEncoder(t, 16, 2, heads)
		rng := newTestRand(1)
		vision := randomTensor(rng, 2, 4, 16)
		language := randomTensor(rng, 2, 3, 16)

		v, l, err := enc.Forward(vision, nil, language, nil)
		require.NoError(t, err)
		assert.Equal(t, []int{2, 4, 16}, v.Shape, "heads=%d", heads)
		assert.Equal(t, []int{2, 3, 16}, l.Shape, "heads=%d", heads)
	}
}

func TestCoAttentionDoesNotModifyInputs(t *testing.T) {
	enc := newTestEncoder(t, 16, 1, 4)
	rng := newTestRand(2)
	vision := randomTensor(rng, 1, 4, 16)
	language := randomTensor(rng, 1, 3, 16)
	vCopy, lCopy := vision.Clone(), language.Clone()

	_, _, err := enc.Forward(vision, nil, language, nil)
	require.NoError(t, err)
	assert.Equal(t, vCopy.Data, vision.Data)
	assert.Equal(t, lCopy.Data, language.Data)
}

func TestCoAttentionDeterministic(t *testing.T) {
	enc := newTestEncoder(t, 16, 2, 4)
	rng := newTestRand(3)
	vision := randomTensor(rng, 2, 4, 16)
	language := randomTensor(rng, 2, 3, 16)
	vMask := NewPaddingMask([]int{4, 2}, 4)
	lMask := NewPaddingMask([]int{3, 1}, 3)

	v1, l1, err := enc.Forward(vision, vMask, language, lMask)
	require.NoError(t, err)
	v2, l2, err := enc.Forward(vision, vMask, language, lMask)
	require.NoError(t, err)

	assert.Equal(t, v1.Data, v2.Data)
	assert.Equal(t, l1.Data, l2.Data)

	// a second encoder with the same seed is identical
	other := newTestEncoder(t, 16, 2, 4)
	v3, l3, err := other.Forward(vision, vMask, language, lMask)
	require.NoError(t, err)
	assert.Equal(t, v1.Data, v3.Data)
	assert.Equal(t, l1.Data, l3.Data)
}

func TestCoAttentionIgnoresMaskedContent(t *testing.T) {
	enc := newTestEncoder(t, 16, 2, 4)
	rng := newTestRand(4)
	vision := randomTensor(rng, 1, 4, 16)
	language := randomTensor(rng, 1, 3, 16)
	vMask := NewPaddingMask([]int{3}, 4)
	lMask := NewPaddingMask([]int{2}, 3)

	v1, l1, err := enc.Forward(vision, vMask, language, lMask)
	require.NoError(t, err)

	// rewrite the padded positions
	vision2, language2 := vision.Clone(), language.Clone()
	for c := 0; c < 16; c++ {
		vision2.Set(100, 0, 3, c)
		language2.Set(-50, 0, 2, c)
	}
	v2, l2, err := enc.Forward(vision2, vMask, language2, lMask)
	require.NoError(t, err)

	// outputs at unmasked positions are unchanged
	assert.Equal(t, v1.Data[:3*16], v2.Data[:3*16])
	assert.Equal(t, l1.Data[:2*16], l2.Data[:2*16])
}

func TestCoAttentionFullyMaskedRowIsFinite(t *testing.T) {
	enc := newTestEncoder(t, 8, 1, 2)
	rng := newTestRand(5)
	vision := randomTensor(rng, 1, 2, 8)
	language := randomTensor(rng, 1, 2, 8)

	v, l, err := enc.Forward(vision, NewPaddingMask([]int{0}, 2), language, NewPaddingMask([]int{0}, 2))
	require.NoError(t, err)
	for _, x := range append(v.Data, l.Data...) {
		assert.False(t, math.IsNaN(float64(x)), "NaN in output")
	}
}

func TestCoAttentionShapeErrors(t *testing.T) {
	enc := newTestEncoder(t, 16, 1, 4)
	rng := newTestRand(6)

	_, _, err := enc.Forward(randomTensor(rng, 2, 4, 8), nil, randomTensor(rng, 2, 3, 16), nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, _, err = enc.Forward(randomTensor(rng, 2, 4, 16), nil, randomTensor(rng, 3, 3, 16), nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, _, err = enc.Forward(randomTensor(rng, 4, 16), nil, randomTensor(rng, 2, 3, 16), nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	// vision mask with the language length
	_, _, err = enc.Forward(randomTensor(rng, 2, 4, 16), NewPaddingMask([]int{3, 3}, 3), randomTensor(rng, 2, 3, 16), nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestCoAttentionValidate(t *testing.T) {
	enc := newTestEncoder(t, 16, 2, 4)
	assert.Equal(t, 2, enc.NumLayers())
	enc.LanguageSelf = enc.LanguageSelf[:1]
	assert.ErrorIs(t, enc.Validate(), ErrConfiguration)

	enc = newTestEncoder(t, 16, 2, 4)
	enc.VisionSelf[1] = nil
	assert.ErrorIs(t, enc.Validate(), ErrConfiguration)
}

func TestCoAttentionDropout(t *testing.T) {
	enc := newTestEncoder(t, 16, 1, 4)
	rng := newTestRand(7)
	vision := randomTensor(rng, 1, 4, 16)
	language := randomTensor(rng, 1, 3, 16)

	v0, _, err := enc.Forward(vision, nil, language, nil)
	require.NoError(t, err)

	va, _, err := enc.ForwardWithDropout(vision, nil, language, nil, newTestRand(9))
	require.NoError(t, err)
	vb, _, err := enc.ForwardWithDropout(vision, nil, language, nil, newTestRand(9))
	require.NoError(t, err)

	assert.Equal(t, va.Data, vb.Data)
	assert.NotEqual(t, v0.Data, va.Data)
}

func TestEncoderLayerSelfAndCross(t *testing.T) {
	layer, err := NewEncoderLayer(DefaultAttentionConfig(16))
	require.NoError(t, err)
	rng := newTestRand(8)
	q := randomTensor(rng, 2, 5, 16)
	kv := randomTensor(rng, 2, 7, 16)

	out, err := layer.Forward(q, kv, kv, NewPaddingMask([]int{7, 3}, 7))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5, 16}, out.Shape)

	_, err = layer.Forward(q, kv, randomTensor(rng, 2, 6, 16), nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}
