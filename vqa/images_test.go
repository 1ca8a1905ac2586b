package vqa

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coattn-go/purego/tensor"
)

func TestPathResolver(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("jpeg"), 0o644))

	r := PathResolver{Base: dir}
	img, err := r.Resolve("a.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a.jpg"), img.Path)
	assert.Nil(t, img.Features)

	_, err = r.Resolve("b.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFeatureResolver(t *testing.T) {
	dir := t.TempDir()
	features := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, 3, 2)
	require.NoError(t, tensor.WriteSafetensors(filepath.Join(dir, "COCO_1.safetensors"),
		map[string]*tensor.Tensor{"features": features}))

	r := FeatureResolver{Base: dir}
	img, err := r.Resolve("COCO_1.jpg")
	require.NoError(t, err)
	assert.Equal(t, "COCO_1.jpg", img.Filename)
	require.NotNil(t, img.Features)
	assert.Equal(t, []int{3, 2}, img.Features.Shape)
	assert.Equal(t, features.Data, img.Features.Data)

	_, err = r.Resolve("COCO_2.jpg")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = FeatureResolver{Base: dir, Tensor: "grid"}.Resolve("COCO_1.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
}
