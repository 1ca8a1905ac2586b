package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatMul(t *testing.T) {
	a := FromSlice([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	b := FromSlice([]float32{7, 8, 9, 10, 11, 12}, 3, 2)

	c := MatMul(a, b)
	assert.Equal(t, []int{2, 2}, c.Shape)
	assert.Equal(t, []float32{58, 64, 139, 154}, c.Data)
}

func TestLinearBatched(t *testing.T) {
	x := FromSlice([]float32{1, 0, 0, 1, 1, 1}, 1, 3, 2)
	w := FromSlice([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	b := FromSlice([]float32{1, 1, 1}, 3)

	y := Linear(x, w, b)
	assert.Equal(t, []int{1, 3, 3}, y.Shape)
	assert.Equal(t, []float32{2, 3, 4, 5, 6, 7, 6, 8, 10}, y.Data)
}

func TestTranspose(t *testing.T) {
	x := FromSlice([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := Transpose(x)
	assert.Equal(t, []int{3, 2}, y.Shape)
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, y.Data)
}

func TestSoftmaxRowsSumToOne(t *testing.T) {
	x := FromSlice([]float32{1, 2, 3, -1, 0, 1000}, 2, 3)
	y := Softmax(x)

	for r := 0; r < 2; r++ {
		sum := float32(0)
		for _, v := range y.Data[r*3 : (r+1)*3] {
			assert.False(t, math.IsNaN(float64(v)))
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-6)
	}
	assert.InDelta(t, 1.0, y.At(1, 2), 1e-6)
}

func TestLayerNorm(t *testing.T) {
	x := FromSlice([]float32{1, 2, 3, 4, 10, 10, 10, 10}, 2, 4)
	ln := NewLayerNormLayer(4, 1e-5)
	y := ln.Forward(x)

	mean := float32(0)
	for _, v := range y.Data[:4] {
		mean += v
	}
	assert.InDelta(t, 0, mean/4, 1e-6)

	// constant rows normalize to zero
	for _, v := range y.Data[4:] {
		assert.InDelta(t, 0, v, 1e-6)
	}
}

func TestReshapeSizeMismatchPanics(t *testing.T) {
	x := NewTensor(2, 3)
	require.Panics(t, func() { x.Reshape(4, 2) })
	assert.Equal(t, []int{3, 2}, x.Reshape(3, 2).Shape)
}

func TestDropout(t *testing.T) {
	x := FromSlice([]float32{1, 1, 1, 1, 1, 1, 1, 1}, 8)

	// inference leaves the tensor untouched
	assert.Same(t, x, Dropout(x, 0.5, nil))

	rng := newTestRand(7)
	y := Dropout(x, 0.5, rng)
	for _, v := range y.Data {
		assert.Contains(t, []float32{0, 2}, v)
	}

	require.Panics(t, func() { Dropout(x, 1, rng) })
}
