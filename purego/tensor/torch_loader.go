package tensor

import (
	"fmt"
	"slices"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
)

// LoadTorchStateDict reads a PyTorch checkpoint saved with torch.save. The
// state dict may sit at the top level or under a "state_dict" or "model" key.
func LoadTorchStateDict(path string) (map[string]*Tensor, error) {
	m, err := pytorch.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	entries, err := dictEntries(m)
	if err != nil {
		return nil, err
	}
	for _, wrapper := range []string{"state_dict", "model"} {
		if inner, ok := entries[wrapper]; ok {
			if entries, err = dictEntries(inner); err != nil {
				return nil, fmt.Errorf("%s: %w", wrapper, err)
			}
			break
		}
	}

	tensors := make(map[string]*Tensor, len(entries))
	for name, v := range entries {
		pt, ok := v.(*pytorch.Tensor)
		if !ok {
			continue
		}
		t, err := fromTorch(pt)
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		tensors[name] = t
	}
	return tensors, nil
}

func dictEntries(v any) (map[string]any, error) {
	out := make(map[string]any)
	switch d := v.(type) {
	case *types.Dict:
		for _, k := range d.Keys() {
			name, ok := k.(string)
			if !ok {
				continue
			}
			val, _ := d.Get(k)
			out[name] = val
		}
	case *types.OrderedDict:
		for e := d.List.Front(); e != nil; e = e.Next() {
			entry := e.Value.(*types.OrderedDictEntry)
			if name, ok := entry.Key.(string); ok {
				out[name] = entry.Value
			}
		}
	default:
		return nil, fmt.Errorf("unexpected checkpoint type %T", v)
	}
	return out, nil
}

// fromTorch copies a possibly strided torch tensor into a contiguous Tensor.
func fromTorch(pt *pytorch.Tensor) (*Tensor, error) {
	var src []float32
	switch s := pt.Source.(type) {
	case *pytorch.FloatStorage:
		src = s.Data
	case *pytorch.HalfStorage:
		src = s.Data
	case *pytorch.BFloat16Storage:
		src = s.Data
	default:
		return nil, fmt.Errorf("unsupported storage %T", pt.Source)
	}

	shape := slices.Clone(pt.Size)
	if len(shape) == 0 {
		shape = []int{1}
	}
	strides := slices.Clone(pt.Stride)
	if len(strides) == 0 {
		strides = []int{1}
	}

	out := NewTensor(shape...)
	idx := make([]int, len(shape))
	for i := range out.Data {
		off := pt.StorageOffset
		for d, n := range idx {
			off += n * strides[d]
		}
		if off < 0 || off >= len(src) {
			return nil, fmt.Errorf("storage offset %d out of range %d", off, len(src))
		}
		out.Data[i] = src[off]

		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
		}
	}
	return out, nil
}
