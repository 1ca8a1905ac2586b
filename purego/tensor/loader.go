package tensor

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"slices"
	"sort"

	"github.com/x448/float16"
)

// TensorInfo describes a tensor in safetensors format
type TensorInfo struct {
	Dtype  string   `json:"dtype"`
	Shape  []int    `json:"shape"`
	Offset [2]int64 `json:"data_offsets"`
}

// ReadSafetensors reads every tensor in a safetensors file as float32.
func ReadSafetensors(path string) (map[string]*Tensor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return parseSafetensors(data)
}

func parseSafetensors(data []byte) (map[string]*Tensor, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("safetensors: file too short")
	}

	// Parse header
	headerSize := binary.LittleEndian.Uint64(data[:8])
	if headerSize > uint64(len(data)-8) {
		return nil, fmt.Errorf("safetensors: header size %d exceeds file size", headerSize)
	}
	headerBytes := data[8 : 8+headerSize]
	tensorData := data[8+headerSize:]

	var metadata map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	tensors := make(map[string]*Tensor, len(metadata))
	for name, raw := range metadata {
		if name == "__metadata__" {
			continue
		}

		var info TensorInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			return nil, fmt.Errorf("failed to parse tensor %s: %w", name, err)
		}

		t, err := decodeTensor(tensorData, info)
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		tensors[name] = t
	}

	return tensors, nil
}

// decodeTensor converts one tensor's bytes to float32
func decodeTensor(data []byte, info TensorInfo) (*Tensor, error) {
	start, end := info.Offset[0], info.Offset[1]
	if start < 0 || end < start || end > int64(len(data)) {
		return nil, fmt.Errorf("data offsets [%d, %d] out of range", start, end)
	}
	tensorBytes := data[start:end]

	numElements := 1
	for _, dim := range info.Shape {
		numElements *= dim
	}

	width := map[string]int{"F32": 4, "F16": 2, "BF16": 2}[info.Dtype]
	if width == 0 {
		return nil, fmt.Errorf("unsupported dtype: %s", info.Dtype)
	}
	if len(tensorBytes) != numElements*width {
		return nil, fmt.Errorf("%d bytes for %d %s elements", len(tensorBytes), numElements, info.Dtype)
	}

	tensorData := make([]float32, numElements)
	for i := range tensorData {
		switch info.Dtype {
		case "F32":
			tensorData[i] = math.Float32frombits(binary.LittleEndian.Uint32(tensorBytes[i*4:]))
		case "F16":
			tensorData[i] = float16.Frombits(binary.LittleEndian.Uint16(tensorBytes[i*2:])).Float32()
		case "BF16":
			tensorData[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(tensorBytes[i*2:])) << 16)
		}
	}

	return &Tensor{
		Data:  tensorData,
		Shape: slices.Clone(info.Shape),
	}, nil
}

// WriteSafetensors writes tensors as F32 in safetensors format, in name
// order.
func WriteSafetensors(path string, tensors map[string]*Tensor) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]TensorInfo, len(names))
	var offset int64
	for _, name := range names {
		size := int64(len(tensors[name].Data) * 4)
		header[name] = TensorInfo{
			Dtype:  "F32",
			Shape:  tensors[name].Shape,
			Offset: [2]int64{offset, offset + size},
		}
		offset += size
	}

	headerBytes, err := json.Marshal(header)
	if err != nil {
		return err
	}

	buf := make([]byte, 8, 8+len(headerBytes)+int(offset))
	binary.LittleEndian.PutUint64(buf, uint64(len(headerBytes)))
	buf = append(buf, headerBytes...)
	for _, name := range names {
		for _, v := range tensors[name].Data {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
	}

	return os.WriteFile(path, buf, 0o644)
}

// StateDict exports the encoder parameters with PyTorch names and layouts
// (linear weights as [out, in]).
func (e *CoAttentionEncoder) StateDict() map[string]*Tensor {
	params := e.Parameters()
	state := make(map[string]*Tensor, len(params))
	for _, p := range params {
		if p.Kind == ParamLinearWeight {
			state[p.Name] = Transpose(p.Tensor)
		} else {
			state[p.Name] = p.Tensor.Clone()
		}
	}
	return state
}

// LoadWeights copies a PyTorch-named state dict into the encoder. Linear
// weights are expected as [out, in] and are transposed. Every encoder
// parameter must be present; unknown keys are ignored.
func (e *CoAttentionEncoder) LoadWeights(state map[string]*Tensor) error {
	if err := e.Validate(); err != nil {
		return err
	}

	params := e.Parameters()
	for _, p := range params {
		src, ok := state[p.Name]
		if !ok {
			return fmt.Errorf("tensor not found: %s", p.Name)
		}

		if p.Kind == ParamLinearWeight {
			if len(src.Shape) != 2 {
				return fmt.Errorf("%w: %s has shape %v, want 2D", ErrShapeMismatch, p.Name, src.Shape)
			}
			src = Transpose(src)
		}
		if !SameShape(src, p.Tensor) {
			return fmt.Errorf("%w: %s has shape %v, want %v", ErrShapeMismatch, p.Name, src.Shape, p.Tensor.Shape)
		}
		copy(p.Tensor.Data, src.Data)
	}

	if extra := len(state) - len(params); extra > 0 {
		slog.Debug("ignored tensors not used by the encoder", "count", extra)
	}
	return nil
}

// LoadEncoderWeights loads a .safetensors file, or a PyTorch .pt/.pth
// checkpoint, into e.
func LoadEncoderWeights(e *CoAttentionEncoder, path string) error {
	var (
		state map[string]*Tensor
		err   error
	)
	switch ext := fileExt(path); ext {
	case ".safetensors":
		state, err = ReadSafetensors(path)
	case ".pt", ".pth", ".bin":
		state, err = LoadTorchStateDict(path)
	default:
		return fmt.Errorf("unsupported weights format %q", ext)
	}
	if err != nil {
		return err
	}

	if err := e.LoadWeights(state); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	slog.Info("loaded encoder weights", "path", path, "tensors", len(state))
	return nil
}

func fileExt(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i:]
		}
	}
	return ""
}
