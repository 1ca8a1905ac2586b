package vqa

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"coattn-go/purego/tensor"
)

// Image is the resolved form of an annotation's image.
type Image struct {
	Filename string
	Path     string

	// Features holds region features [regions, d_model], or nil when the
	// resolver only locates the file.
	Features *tensor.Tensor
}

// ImageResolver turns an image filename into an Image.
type ImageResolver interface {
	Resolve(filename string) (Image, error)
}

// PathResolver joins filenames onto Base and checks that the file exists.
type PathResolver struct {
	Base string
}

// Resolve implements ImageResolver.
func (r PathResolver) Resolve(filename string) (Image, error) {
	path := filepath.Join(r.Base, filename)
	if err := statFile(path); err != nil {
		return Image{}, err
	}
	return Image{Filename: filename, Path: path}, nil
}

// FeatureResolver loads precomputed region features stored as
// <Base>/<stem>.safetensors, where stem is the image filename without its
// extension.
type FeatureResolver struct {
	Base string

	// Tensor names the tensor to read, "features" when empty.
	Tensor string
}

// Resolve implements ImageResolver.
func (r FeatureResolver) Resolve(filename string) (Image, error) {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	path := filepath.Join(r.Base, stem+".safetensors")
	if err := statFile(path); err != nil {
		return Image{}, err
	}

	tensors, err := tensor.ReadSafetensors(path)
	if err != nil {
		return Image{}, err
	}

	name := r.Tensor
	if name == "" {
		name = "features"
	}
	features, ok := tensors[name]
	if !ok {
		return Image{}, fmt.Errorf("%s: tensor %q: %w", path, name, ErrNotFound)
	}
	if len(features.Shape) != 2 {
		return Image{}, fmt.Errorf("%s: features must be [regions, d_model], got %v", path, features.Shape)
	}

	return Image{Filename: filename, Path: path, Features: features}, nil
}

func statFile(path string) error {
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("image %s: %w", path, ErrNotFound)
	}
	return err
}
