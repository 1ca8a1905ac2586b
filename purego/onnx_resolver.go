package purego

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/image/draw"

	"coattn-go/purego/tensor"
	"coattn-go/vqa"
)

// ImageNet normalization, the usual convention of exported vision backbones.
var (
	imageMean = [3]float32{0.485, 0.456, 0.406}
	imageStd  = [3]float32{0.229, 0.224, 0.225}
)

// ONNXExtractorConfig describes a region-feature extractor exported to ONNX.
// The model takes pixels [1, 3, ImageSize, ImageSize] and returns features
// [1, Regions, DModel].
type ONNXExtractorConfig struct {
	ModelPath  string
	ImageSize  int
	Regions    int
	DModel     int
	InputName  string // "pixel_values" when empty
	OutputName string // "features" when empty
	Threads    int
}

// ONNXImageResolver loads images from Base and runs them through an ONNX
// feature extractor. It is safe for concurrent use; inference is serialized.
type ONNXImageResolver struct {
	Base string

	config  ONNXExtractorConfig
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	mu      sync.Mutex
}

// NewONNXImageResolver initializes ONNX Runtime and creates the session.
func NewONNXImageResolver(base string, cfg ONNXExtractorConfig) (*ONNXImageResolver, error) {
	if cfg.ImageSize <= 0 || cfg.Regions <= 0 || cfg.DModel <= 0 {
		return nil, fmt.Errorf("extractor sizes must be positive: %+v", cfg)
	}
	if cfg.InputName == "" {
		cfg.InputName = "pixel_values"
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "features"
	}

	// Initialize ONNX Runtime
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if cfg.Threads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.Threads); err != nil {
			return nil, fmt.Errorf("failed to set threads: %w", err)
		}
	}

	size := int64(cfg.ImageSize)
	input, err := ort.NewTensor(ort.NewShape(1, 3, size, size), make([]float32, 3*cfg.ImageSize*cfg.ImageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	output, err := ort.NewTensor(ort.NewShape(1, int64(cfg.Regions), int64(cfg.DModel)), make([]float32, cfg.Regions*cfg.DModel))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	// Create session with pre-allocated tensors
	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.Value{input},
		[]ort.Value{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("feature extractor loaded", "model", cfg.ModelPath, "regions", cfg.Regions, "d_model", cfg.DModel)
	return &ONNXImageResolver{
		Base:    base,
		config:  cfg,
		session: session,
		input:   input,
		output:  output,
	}, nil
}

// Resolve implements vqa.ImageResolver.
func (r *ONNXImageResolver) Resolve(filename string) (vqa.Image, error) {
	path := filepath.Join(r.Base, filename)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return vqa.Image{}, fmt.Errorf("image %s: %w", path, vqa.ErrNotFound)
	} else if err != nil {
		return vqa.Image{}, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return vqa.Image{}, fmt.Errorf("decode %s: %w", path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	PreprocessImage(img, r.config.ImageSize, r.input.GetData())
	if err := r.session.Run(); err != nil {
		return vqa.Image{}, fmt.Errorf("inference failed: %w", err)
	}

	features := tensor.NewTensor(r.config.Regions, r.config.DModel)
	copy(features.Data, r.output.GetData())
	return vqa.Image{Filename: filename, Path: path, Features: features}, nil
}

// Close releases the session and its tensors.
func (r *ONNXImageResolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, d := range []interface{ Destroy() error }{r.session, r.input, r.output} {
		if err := d.Destroy(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// PreprocessImage resizes img to size x size and writes normalized CHW
// pixels into dst, which must hold 3*size*size values.
func PreprocessImage(img image.Image, size int, dst []float32) {
	resized := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := resized.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := float32(resized.Pix[off+c]) / 255
				dst[c*plane+y*size+x] = (v - imageMean[c]) / imageStd[c]
			}
		}
	}
}
