package images

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func writeFile(t *testing.T, name string, encode func(*bytes.Buffer) error) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, encode(&buf))
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestDecodeFormats(t *testing.T) {
	src := gradient(40, 30)
	cases := []struct {
		name   string
		format ImageFormat
		encode func(*bytes.Buffer) error
	}{
		{"img.png", FormatPNG, func(b *bytes.Buffer) error { return png.Encode(b, src) }},
		{"img.jpg", FormatJPEG, func(b *bytes.Buffer) error { return jpeg.Encode(b, src, &jpeg.Options{Quality: 90}) }},
		{"img.bmp", FormatBMP, func(b *bytes.Buffer) error { return bmp.Encode(b, src) }},
		{"img.webp", FormatWebP, func(b *bytes.Buffer) error { return webp.Encode(b, src, &webp.Options{Lossless: true}) }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			path := writeFile(t, c.name, c.encode)
			img, format, err := Decode(path)
			require.NoError(t, err)
			assert.Equal(t, c.format, format)
			assert.Equal(t, 40, img.Bounds().Dx())
			assert.Equal(t, 30, img.Bounds().Dy())
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	_, _, err := Decode(filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Error(t, err)

	corrupt := filepath.Join(t.TempDir(), "corrupt.jpg")
	require.NoError(t, os.WriteFile(corrupt, []byte("definitely not a jpeg"), 0o644))
	_, _, err = Decode(corrupt)
	assert.Error(t, err)

	_, _, err = DecodeBytes(nil)
	assert.Error(t, err)
}

func TestParseInterpolation(t *testing.T) {
	cases := map[string]Interpolation{
		"":         InterpolationNearest,
		"Nearest":  InterpolationNearest,
		"bilinear": InterpolationBilinear,
		"bicubic":  InterpolationBicubic,
		"lanczos":  InterpolationLanczos3,
		"lanczos3": InterpolationLanczos3,
	}
	for in, want := range cases {
		got, err := ParseInterpolation(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseInterpolation("area")
	assert.Error(t, err)
}

func TestResize(t *testing.T) {
	src := gradient(300, 200)
	for _, interp := range []Interpolation{InterpolationNearest, InterpolationBilinear, InterpolationLanczos3} {
		out := Resize(src, 224, 224, interp)
		assert.Equal(t, image.Rect(0, 0, 224, 224), out.Bounds(), "interp %s", interp)
	}

	same := gradient(224, 224)
	assert.Same(t, same, Resize(same, 224, 224, InterpolationNearest).(*image.RGBA))
}

func TestResizeNearestKeepsSolidColour(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 17, 9))
	red := color.RGBA{R: 200, G: 10, B: 20, A: 255}
	for y := 0; y < 9; y++ {
		for x := 0; x < 17; x++ {
			src.Set(x, y, red)
		}
	}
	out := Resize(src, 224, 224, InterpolationNearest)
	r, g, b, _ := out.At(100, 100).RGBA()
	assert.Equal(t, uint32(200), r>>8)
	assert.Equal(t, uint32(10), g>>8)
	assert.Equal(t, uint32(20), b>>8)
}

func TestNativeLoader(t *testing.T) {
	path := writeFile(t, "fire.png", func(b *bytes.Buffer) error { return png.Encode(b, gradient(640, 480)) })

	loader, err := NewNativeLoader(Options{Width: 224, Height: 224})
	require.NoError(t, err)
	assert.Equal(t, InterpolationNearest, loader.Options().Interpolation)

	img, err := loader.Load(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 224, 224), img.Bounds())

	_, err = loader.Load(filepath.Join(t.TempDir(), "nope.png"))
	assert.Error(t, err)

	_, err = NewNativeLoader(Options{Width: 0, Height: 224})
	assert.Error(t, err)
}
