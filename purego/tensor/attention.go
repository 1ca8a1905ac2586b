package tensor

import (
	"fmt"
	"math"
)

// MultiHeadAttention implements multi-head scaled dot-product attention over
// distinct query, key and value sequences. Passing the same tensor three
// times gives self-attention.
type MultiHeadAttention struct {
	NumHeads int
	HeadDim  int
	Hidden   int

	// Weights
	QWeight   *Tensor // [hidden, hidden]
	KWeight   *Tensor
	VWeight   *Tensor
	OutWeight *Tensor

	// Biases
	QBias   *Tensor // [hidden]
	KBias   *Tensor
	VBias   *Tensor
	OutBias *Tensor
}

// NewMultiHeadAttention allocates zeroed projections for cfg.
func NewMultiHeadAttention(cfg AttentionConfig) *MultiHeadAttention {
	hidden := cfg.DModel
	return &MultiHeadAttention{
		NumHeads:  cfg.Heads,
		HeadDim:   cfg.HeadDim(),
		Hidden:    hidden,
		QWeight:   NewTensor(hidden, hidden),
		KWeight:   NewTensor(hidden, hidden),
		VWeight:   NewTensor(hidden, hidden),
		OutWeight: NewTensor(hidden, hidden),
		QBias:     NewTensor(hidden),
		KBias:     NewTensor(hidden),
		VBias:     NewTensor(hidden),
		OutBias:   NewTensor(hidden),
	}
}

// Forward attends queries [batch, q, hidden] over keys/values
// [batch, k, hidden] and returns [batch, q, hidden].
func (mha *MultiHeadAttention) Forward(queries, keys, values *Tensor, mask *Mask) (*Tensor, error) {
	if err := mha.checkInputs(queries, keys, values); err != nil {
		return nil, err
	}

	batchSize, qLen, kLen := queries.Shape[0], queries.Shape[1], keys.Shape[1]

	view, err := mask.broadcast(batchSize, mha.NumHeads, qLen, kLen)
	if err != nil {
		return nil, err
	}

	// Linear projections: x @ W + b, then [batch, heads, seq, head_dim]
	Q := mha.splitHeads(Linear(queries, mha.QWeight, mha.QBias), batchSize, qLen)
	K := mha.splitHeads(Linear(keys, mha.KWeight, mha.KBias), batchSize, kLen)
	V := mha.splitHeads(Linear(values, mha.VWeight, mha.VBias), batchSize, kLen)

	output := mha.scaledDotProductAttention(Q, K, V, view)

	output = mha.combineHeads(output, batchSize, qLen)
	return Linear(output, mha.OutWeight, mha.OutBias), nil
}

func (mha *MultiHeadAttention) checkInputs(queries, keys, values *Tensor) error {
	for i, t := range []*Tensor{queries, keys, values} {
		name := [...]string{"queries", "keys", "values"}[i]
		if t == nil {
			return fmt.Errorf("%w: %s is nil", ErrShapeMismatch, name)
		}
		if len(t.Shape) != 3 {
			return fmt.Errorf("%w: %s must be [batch, seq, %d], got %v", ErrShapeMismatch, name, mha.Hidden, t.Shape)
		}
		if t.Shape[2] != mha.Hidden {
			return fmt.Errorf("%w: %s width %d, want %d", ErrShapeMismatch, name, t.Shape[2], mha.Hidden)
		}
	}
	if keys.Shape[0] != queries.Shape[0] || values.Shape[0] != queries.Shape[0] {
		return fmt.Errorf("%w: batch sizes differ: queries %d, keys %d, values %d",
			ErrShapeMismatch, queries.Shape[0], keys.Shape[0], values.Shape[0])
	}
	if keys.Shape[1] != values.Shape[1] {
		return fmt.Errorf("%w: keys length %d differs from values length %d", ErrShapeMismatch, keys.Shape[1], values.Shape[1])
	}
	return nil
}

func (mha *MultiHeadAttention) splitHeads(x *Tensor, batchSize, seqLen int) *Tensor {
	// [batch, seq, hidden] -> [batch, heads, seq, head_dim]
	result := NewTensor(batchSize, mha.NumHeads, seqLen, mha.HeadDim)

	for b := 0; b < batchSize; b++ {
		for s := 0; s < seqLen; s++ {
			for h := 0; h < mha.NumHeads; h++ {
				src := b*seqLen*mha.Hidden + s*mha.Hidden + h*mha.HeadDim
				dst := ((b*mha.NumHeads+h)*seqLen + s) * mha.HeadDim
				copy(result.Data[dst:dst+mha.HeadDim], x.Data[src:src+mha.HeadDim])
			}
		}
	}

	return result
}

func (mha *MultiHeadAttention) combineHeads(x *Tensor, batchSize, seqLen int) *Tensor {
	// [batch, heads, seq, head_dim] -> [batch, seq, hidden]
	result := NewTensor(batchSize, seqLen, mha.Hidden)

	for b := 0; b < batchSize; b++ {
		for h := 0; h < mha.NumHeads; h++ {
			for s := 0; s < seqLen; s++ {
				src := ((b*mha.NumHeads+h)*seqLen + s) * mha.HeadDim
				dst := b*seqLen*mha.Hidden + s*mha.Hidden + h*mha.HeadDim
				copy(result.Data[dst:dst+mha.HeadDim], x.Data[src:src+mha.HeadDim])
			}
		}
	}

	return result
}

func (mha *MultiHeadAttention) scaledDotProductAttention(Q, K, V *Tensor, mask *maskView) *Tensor {
	// Q: [batch, heads, q, head_dim]; K, V: [batch, heads, k, head_dim]
	batchSize, numHeads, qLen, headDim := Q.Shape[0], Q.Shape[1], Q.Shape[2], Q.Shape[3]
	kLen := K.Shape[2]

	scale := float32(1.0 / math.Sqrt(float64(headDim)))

	result := NewTensor(batchSize, numHeads, qLen, headDim)
	if kLen == 0 {
		return result
	}

	scores := make([]float32, kLen)
	weights := make([]float32, kLen)

	for b := 0; b < batchSize; b++ {
		for h := 0; h < numHeads; h++ {
			qOffset := (b*numHeads + h) * qLen * headDim
			kvOffset := (b*numHeads + h) * kLen * headDim

			for i := 0; i < qLen; i++ {
				q := Q.Data[qOffset+i*headDim : qOffset+(i+1)*headDim]

				// Q @ K^T
				for j := 0; j < kLen; j++ {
					k := K.Data[kvOffset+j*headDim : kvOffset+(j+1)*headDim]
					sum := float32(0)
					for d, qVal := range q {
						sum += qVal * k[d]
					}
					scores[j] = sum * scale
					if mask != nil && mask.excluded(b, h, i, j) {
						scores[j] += maskBias
					}
				}

				softmaxRow(scores, weights)

				// weights @ V
				out := result.Data[qOffset+i*headDim : qOffset+(i+1)*headDim]
				for j, w := range weights {
					if w == 0 {
						continue
					}
					v := V.Data[kvOffset+j*headDim : kvOffset+(j+1)*headDim]
					for d := range out {
						out[d] += w * v[d]
					}
				}
			}
		}
	}

	return result
}
