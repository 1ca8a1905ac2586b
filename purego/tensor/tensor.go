package tensor

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Tensor represents a multi-dimensional array
type Tensor struct {
	Data  []float32
	Shape []int
}

// NewTensor creates a new tensor with given shape
func NewTensor(shape ...int) *Tensor {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return &Tensor{
		Data:  make([]float32, size),
		Shape: slices.Clone(shape),
	}
}

// FromSlice wraps data in a tensor without copying it.
func FromSlice(data []float32, shape ...int) *Tensor {
	t := &Tensor{Data: data, Shape: slices.Clone(shape)}
	if t.Size() != len(data) {
		panic(fmt.Sprintf("data length %d does not match shape %v", len(data), shape))
	}
	return t
}

// Size returns total number of elements
func (t *Tensor) Size() int {
	size := 1
	for _, dim := range t.Shape {
		size *= dim
	}
	return size
}

// Dim returns the size of dimension i; negative i counts from the end.
func (t *Tensor) Dim(i int) int {
	if i < 0 {
		i += len(t.Shape)
	}
	return t.Shape[i]
}

// At returns element at given indices
func (t *Tensor) At(indices ...int) float32 {
	return t.Data[t.flatIndex(indices)]
}

// Set sets element at given indices
func (t *Tensor) Set(val float32, indices ...int) {
	t.Data[t.flatIndex(indices)] = val
}

func (t *Tensor) flatIndex(indices []int) int {
	if len(indices) != len(t.Shape) {
		panic(fmt.Sprintf("wrong number of indices: got %d, want %d", len(indices), len(t.Shape)))
	}
	idx := 0
	stride := 1
	for i := len(indices) - 1; i >= 0; i-- {
		idx += indices[i] * stride
		stride *= t.Shape[i]
	}
	return idx
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{Data: slices.Clone(t.Data), Shape: slices.Clone(t.Shape)}
}

// SameShape reports whether a and b have identical shapes.
func SameShape(a, b *Tensor) bool {
	return slices.Equal(a.Shape, b.Shape)
}

// MatMul performs matrix multiplication: [m,k] x [k,n] -> [m,n]
func MatMul(a, b *Tensor) *Tensor {
	if len(a.Shape) != 2 || len(b.Shape) != 2 {
		panic("MatMul requires 2D tensors")
	}
	if a.Shape[1] != b.Shape[0] {
		panic(fmt.Sprintf("incompatible shapes: [%d,%d] x [%d,%d]", a.Shape[0], a.Shape[1], b.Shape[0], b.Shape[1]))
	}

	m, k, n := a.Shape[0], a.Shape[1], b.Shape[1]
	result := NewTensor(m, n)
	if m == 0 || n == 0 || k == 0 {
		return result
	}

	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas32.General{Rows: m, Cols: k, Stride: k, Data: a.Data},
		blas32.General{Rows: k, Cols: n, Stride: n, Data: b.Data},
		0,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: result.Data},
	)
	return result
}

// Linear applies x @ W + b over the last dimension of x.
// x: [..., in], weight: [in, out], bias: [out] or nil.
func Linear(x, weight, bias *Tensor) *Tensor {
	in := x.Dim(-1)
	rows := x.Size() / max(in, 1)
	out := weight.Shape[1]

	result := MatMul(x.Reshape(rows, in), weight)
	if bias != nil {
		for i := 0; i < rows; i++ {
			row := result.Data[i*out : (i+1)*out]
			for j := range row {
				row[j] += bias.Data[j]
			}
		}
	}

	shape := slices.Clone(x.Shape)
	shape[len(shape)-1] = out
	return result.Reshape(shape...)
}

// Add performs element-wise addition
func Add(a, b *Tensor) *Tensor {
	if len(a.Data) != len(b.Data) {
		panic("tensors must have same size")
	}
	result := NewTensor(a.Shape...)
	for i := range a.Data {
		result.Data[i] = a.Data[i] + b.Data[i]
	}
	return result
}

// Transpose swaps dimensions of a 2D tensor
func Transpose(t *Tensor) *Tensor {
	if len(t.Shape) != 2 {
		panic("Transpose requires 2D tensor")
	}
	m, n := t.Shape[0], t.Shape[1]
	result := NewTensor(n, m)

	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			result.Data[j*m+i] = t.Data[i*n+j]
		}
	}
	return result
}

// Softmax applies softmax along the last dimension
func Softmax(t *Tensor) *Tensor {
	result := NewTensor(t.Shape...)
	cols := t.Dim(-1)
	if cols == 0 {
		return result
	}

	for off := 0; off < len(t.Data); off += cols {
		softmaxRow(t.Data[off:off+cols], result.Data[off:off+cols])
	}
	return result
}

func softmaxRow(src, dst []float32) {
	// Find max for numerical stability
	maxVal := src[0]
	for _, v := range src[1:] {
		if v > maxVal {
			maxVal = v
		}
	}

	sum := float32(0)
	for j, v := range src {
		e := float32(math.Exp(float64(v - maxVal)))
		dst[j] = e
		sum += e
	}

	for j := range dst {
		dst[j] /= sum
	}
}

// GELU activation function
func GELU(t *Tensor) *Tensor {
	result := NewTensor(t.Shape...)
	for i, x := range t.Data {
		// 0.5 * x * (1 + tanh(sqrt(2/pi) * (x + 0.044715 * x^3)))
		x3 := x * x * x
		inner := math.Sqrt(2.0/math.Pi) * float64(x+0.044715*x3)
		result.Data[i] = 0.5 * x * (1.0 + float32(math.Tanh(inner)))
	}
	return result
}

// ReLU activation function
func ReLU(t *Tensor) *Tensor {
	result := NewTensor(t.Shape...)
	for i, x := range t.Data {
		if x > 0 {
			result.Data[i] = x
		}
	}
	return result
}

// LayerNorm applies layer normalization over the last dimension.
func LayerNorm(t *Tensor, weight, bias *Tensor, eps float32) *Tensor {
	result := NewTensor(t.Shape...)

	hiddenSize := t.Dim(-1)
	if hiddenSize == 0 {
		return result
	}
	totalRows := len(t.Data) / hiddenSize

	for i := 0; i < totalRows; i++ {
		offset := i * hiddenSize
		row := t.Data[offset : offset+hiddenSize]
		out := result.Data[offset : offset+hiddenSize]

		mean := float32(0)
		for _, v := range row {
			mean += v
		}
		mean /= float32(hiddenSize)

		variance := float32(0)
		for _, v := range row {
			diff := v - mean
			variance += diff * diff
		}
		variance /= float32(hiddenSize)

		std := float32(math.Sqrt(float64(variance + eps)))
		for j, v := range row {
			out[j] = (v-mean)/std*weight.Data[j] + bias.Data[j]
		}
	}

	return result
}

// Reshape returns a new tensor with different shape (same data)
func (t *Tensor) Reshape(shape ...int) *Tensor {
	newSize := 1
	for _, dim := range shape {
		newSize *= dim
	}
	if newSize != t.Size() {
		panic(fmt.Sprintf("cannot reshape: size mismatch %d vs %d", newSize, t.Size()))
	}
	return &Tensor{
		Data:  t.Data,
		Shape: slices.Clone(shape),
	}
}

// Slice extracts a slice along first dimension
func (t *Tensor) Slice(start, end int) *Tensor {
	if len(t.Shape) < 1 {
		panic("cannot slice scalar")
	}

	stride := 1
	for i := 1; i < len(t.Shape); i++ {
		stride *= t.Shape[i]
	}

	newShape := slices.Clone(t.Shape)
	newShape[0] = end - start

	return &Tensor{
		Data:  t.Data[start*stride : end*stride],
		Shape: newShape,
	}
}
