package opencv

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/go-firesmoke/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestLoaderResizesAndKeepsColourOrder(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			src.Set(x, y, color.RGBA{R: 250, G: 40, B: 5, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "flame.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, src))
	require.NoError(t, f.Close())

	loader, err := NewLoader(images.Options{Width: 224, Height: 224})
	require.NoError(t, err)

	img, err := loader.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 224, img.Bounds().Dx())
	assert.Equal(t, 224, img.Bounds().Dy())

	r, g, b, _ := img.At(112, 112).RGBA()
	assert.Equal(t, uint32(250), r>>8, "red channel must not be swapped with blue")
	assert.Equal(t, uint32(40), g>>8)
	assert.Equal(t, uint32(5), b>>8)
}

func TestLoaderMissingFile(t *testing.T) {
	loader, err := NewLoader(images.Options{Width: 224, Height: 224})
	require.NoError(t, err)
	_, err = loader.Load(filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Error(t, err)
}

func TestInterpolationFlag(t *testing.T) {
	assert.Equal(t, gocv.InterpolationNearestNeighbor, interpolationFlag(images.InterpolationNearest))
	assert.Equal(t, gocv.InterpolationLinear, interpolationFlag(images.InterpolationBilinear))
	assert.Equal(t, gocv.InterpolationCubic, interpolationFlag(images.InterpolationBicubic))
	assert.Equal(t, gocv.InterpolationLanczos4, interpolationFlag(images.InterpolationLanczos3))
}

func TestNewLoaderRejectsBadSize(t *testing.T) {
	_, err := NewLoader(images.Options{Width: 224})
	assert.Error(t, err)
}
