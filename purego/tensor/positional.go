package tensor

import "math"

// Fixed sinusoidal position signal, added once to each modality before the
// first co-attention layer.

// SinusoidEncoder stores a precomputed sinusoid table.
type SinusoidEncoder struct {
	Table  *Tensor // [max_len, d_model]
	DModel int
	MaxLen int
	Base   float64 // Usually 10000.0
}

// NewSinusoidEncoder precomputes the signal for maxLen positions.
func NewSinusoidEncoder(dModel, maxLen int, base float64) *SinusoidEncoder {
	pe := &SinusoidEncoder{
		DModel: dModel,
		MaxLen: maxLen,
		Base:   base,
	}
	pe.Table = pe.compute(maxLen)
	return pe
}

// compute fills rows for positions 1..seqLen. Positions count valid tokens,
// so the first row encodes position 1.
func (pe *SinusoidEncoder) compute(seqLen int) *Tensor {
	table := NewTensor(seqLen, pe.DModel)
	for s := 0; s < seqLen; s++ {
		pos := float64(s + 1)
		row := table.Data[s*pe.DModel : (s+1)*pe.DModel]
		for c := range row {
			// channels 2i and 2i+1 share the frequency base^(2i/d)
			freq := math.Pow(pe.Base, float64(2*(c/2))/float64(pe.DModel))
			if c%2 == 0 {
				row[c] = float32(math.Sin(pos / freq))
			} else {
				row[c] = float32(math.Cos(pos / freq))
			}
		}
	}
	return table
}

// Rows returns the [seqLen, d_model] signal. Rows within MaxLen come from the
// cached table and must not be modified.
func (pe *SinusoidEncoder) Rows(seqLen int) *Tensor {
	if seqLen <= pe.MaxLen {
		return pe.Table.Slice(0, seqLen)
	}
	return pe.compute(seqLen)
}

// Forward returns the positional signal for x, with x's shape.
// x: [batch, seq, d_model]
func (pe *SinusoidEncoder) Forward(x *Tensor) *Tensor {
	batch, seqLen := x.Shape[0], x.Shape[1]
	rows := pe.Rows(seqLen)

	result := NewTensor(batch, seqLen, pe.DModel)
	n := seqLen * pe.DModel
	for b := 0; b < batch; b++ {
		copy(result.Data[b*n:(b+1)*n], rows.Data)
	}
	return result
}
