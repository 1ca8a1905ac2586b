package tensor

import (
	"fmt"
	"slices"
)

// maskBias is added to attention scores at excluded key positions. It is
// large enough that exp() underflows to exactly zero in float32 while a fully
// masked row still yields a finite, uniform softmax.
const maskBias = -1e9

// Mask marks attention positions to exclude. True means excluded (padding).
//
// Accepted shapes, broadcast against scores of shape [batch, heads, q, k]:
//
//	[B, K]
//	[B, Q, K]
//	[B, H, Q, K]
//
// Every dimension other than K may be 1 (broadcast) or equal to the target.
// K must match the key length exactly.
type Mask struct {
	Data  []bool
	Shape []int
}

// NewMask creates an all-false mask of the given shape.
func NewMask(shape ...int) *Mask {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return &Mask{Data: make([]bool, size), Shape: slices.Clone(shape)}
}

// NewPaddingMask builds a [batch, maxLen] mask where positions at or beyond
// lengths[b] are padding.
func NewPaddingMask(lengths []int, maxLen int) *Mask {
	m := NewMask(len(lengths), maxLen)
	for b, n := range lengths {
		for s := n; s < maxLen; s++ {
			m.Data[b*maxLen+s] = true
		}
	}
	return m
}

// PaddingMaskFromTokens marks every token equal to pad.
func PaddingMaskFromTokens(tokens [][]int, pad int) *Mask {
	seqLen := 0
	for _, row := range tokens {
		seqLen = max(seqLen, len(row))
	}
	m := NewMask(len(tokens), seqLen)
	for b, row := range tokens {
		for s := 0; s < seqLen; s++ {
			m.Data[b*seqLen+s] = s >= len(row) || row[s] == pad
		}
	}
	return m
}

// PaddingMaskFromFeatures marks feature rows that are entirely zero.
// features: [batch, seq, d]
func PaddingMaskFromFeatures(features *Tensor) *Mask {
	batch, seqLen, d := features.Shape[0], features.Shape[1], features.Shape[2]
	m := NewMask(batch, seqLen)
	for i := 0; i < batch*seqLen; i++ {
		zero := true
		for _, v := range features.Data[i*d : (i+1)*d] {
			if v != 0 {
				zero = false
				break
			}
		}
		m.Data[i] = zero
	}
	return m
}

// Lengths returns the number of unmasked positions per batch row of a
// [batch, seq] mask.
func (m *Mask) Lengths() []int {
	batch, seqLen := m.Shape[0], m.Shape[len(m.Shape)-1]
	lengths := make([]int, batch)
	for b := 0; b < batch; b++ {
		for _, masked := range m.Data[b*seqLen : (b+1)*seqLen] {
			if !masked {
				lengths[b]++
			}
		}
	}
	return lengths
}

// maskView indexes a Mask broadcast to [batch, heads, q, k].
type maskView struct {
	data    []bool
	strides [4]int
}

func (v *maskView) excluded(b, h, i, j int) bool {
	return v.data[b*v.strides[0]+h*v.strides[1]+i*v.strides[2]+j*v.strides[3]]
}

// broadcast validates the mask against the target score shape.
// A nil mask yields a nil view.
func (m *Mask) broadcast(batch, heads, q, k int) (*maskView, error) {
	if m == nil {
		return nil, nil
	}

	var shape [4]int
	switch len(m.Shape) {
	case 2:
		shape = [4]int{m.Shape[0], 1, 1, m.Shape[1]}
	case 3:
		shape = [4]int{m.Shape[0], 1, m.Shape[1], m.Shape[2]}
	case 4:
		shape = [4]int{m.Shape[0], m.Shape[1], m.Shape[2], m.Shape[3]}
	default:
		return nil, fmt.Errorf("%w: mask rank %d, want 2, 3 or 4", ErrShapeMismatch, len(m.Shape))
	}

	size := shape[0] * shape[1] * shape[2] * shape[3]
	if size != len(m.Data) {
		return nil, fmt.Errorf("%w: mask shape %v holds %d values, got %d", ErrShapeMismatch, m.Shape, size, len(m.Data))
	}

	if shape[3] != k {
		return nil, fmt.Errorf("%w: mask key length %d, want %d", ErrShapeMismatch, shape[3], k)
	}

	target := [4]int{batch, heads, q, k}
	for i := 0; i < 3; i++ {
		if shape[i] != 1 && shape[i] != target[i] {
			return nil, fmt.Errorf("%w: mask shape %v does not broadcast to %v", ErrShapeMismatch, m.Shape, target)
		}
	}

	v := &maskView{data: m.Data}
	stride := 1
	for i := 3; i >= 0; i-- {
		if shape[i] != 1 {
			v.strides[i] = stride
		}
		stride *= shape[i]
	}
	return v, nil
}
