package tensor

import "math/rand"

// Dropout zeroes elements with probability p and scales the survivors by
// 1/(1-p). A nil rng or p == 0 returns t unchanged (inference).
func Dropout(t *Tensor, p float32, rng *rand.Rand) *Tensor {
	if rng == nil || p == 0 {
		return t
	}
	if p < 0 || p >= 1 {
		panic("dropout probability must be in [0, 1)")
	}

	result := NewTensor(t.Shape...)
	scale := 1 / (1 - p)
	for i, v := range t.Data {
		if rng.Float32() >= p {
			result.Data[i] = v * scale
		}
	}
	return result
}
