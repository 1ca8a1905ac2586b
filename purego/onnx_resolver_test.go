package purego

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreprocessImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 128, A: 255})
		}
	}

	dst := make([]float32, 3*2*2)
	PreprocessImage(img, 2, dst)

	red := (1 - imageMean[0]) / imageStd[0]
	green := (0 - imageMean[1]) / imageStd[1]
	for i := 0; i < 4; i++ {
		assert.InDelta(t, red, dst[i], 1e-5)
		assert.InDelta(t, green, dst[4+i], 1e-5)
	}
	assert.InDelta(t, (128.0/255-imageMean[2])/imageStd[2], dst[8], 1e-5)
}

func TestNewONNXImageResolverRejectsSizes(t *testing.T) {
	_, err := NewONNXImageResolver(t.TempDir(), ONNXExtractorConfig{ModelPath: "x.onnx"})
	assert.Error(t, err)
}
