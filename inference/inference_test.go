package inference

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvr-ai/go-firesmoke/dataset"
	"github.com/nvr-ai/go-firesmoke/images"
	"github.com/nvr-ai/go-firesmoke/inference/providers"
	"github.com/nvr-ai/go-firesmoke/models/model/preprocess"
	"github.com/nvr-ai/go-firesmoke/store"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExtractor derives a deterministic vector from the path length.
type fakeExtractor struct {
	dim    int
	calls  int
	bad    map[string][]float32
	failOn string
}

func (f *fakeExtractor) Extract(_ context.Context, path string) ([]float32, error) {
	f.calls++
	if path == f.failOn {
		return nil, errors.New("corrupt image")
	}
	if v, ok := f.bad[path]; ok {
		return v, nil
	}
	vec := make([]float32, f.dim)
	for i := range vec {
		vec[i] = float32(len(path) + i)
	}
	return vec, nil
}

func (f *fakeExtractor) ExtractImage(_ context.Context, img image.Image) ([]float32, error) {
	vec := make([]float32, f.dim)
	vec[0] = float32(img.Bounds().Dx())
	return vec, nil
}

func (f *fakeExtractor) Dim() int     { return f.dim }
func (f *fakeExtractor) Close() error { return nil }

func samplesOf(paths ...string) []dataset.Sample {
	out := make([]dataset.Sample, len(paths))
	for i, p := range paths {
		out[i] = dataset.Sample{Path: p, Label: dataset.Labels[i%dataset.NumClasses]}
	}
	return out
}

func TestExtractAll(t *testing.T) {
	ext := &fakeExtractor{dim: 8}
	feats, stats, err := ExtractAll(context.Background(), ext, samplesOf("a.jpg", "bb.jpg", "ccc.jpg"))
	require.NoError(t, err)
	require.Len(t, feats, 3)
	for _, f := range feats {
		assert.Len(t, f, ext.Dim())
	}
	assert.Equal(t, float32(5), feats[0][0])
	assert.Equal(t, float32(7), feats[2][0])
	assert.Equal(t, 3, stats.Count)
}

func TestExtractAllPropagatesErrors(t *testing.T) {
	ext := &fakeExtractor{dim: 4, failOn: "bad.jpg"}
	_, _, err := ExtractAll(context.Background(), ext, samplesOf("a.jpg", "bad.jpg", "c.jpg"))
	require.Error(t, err)
	assert.Equal(t, 2, ext.calls)
}

func TestExtractAllRejectsInvalidVectors(t *testing.T) {
	nan := float32(math.NaN())
	ext := &fakeExtractor{dim: 3, bad: map[string][]float32{
		"short.jpg": {1, 2},
		"nan.jpg":   {1, nan, 3},
	}}

	_, _, err := ExtractAll(context.Background(), ext, samplesOf("short.jpg"))
	assert.ErrorContains(t, err, "length 2")

	_, _, err = ExtractAll(context.Background(), ext, samplesOf("nan.jpg"))
	assert.ErrorContains(t, err, "non-finite")
}

func TestExtractAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ext := &fakeExtractor{dim: 2}
	_, _, err := ExtractAll(ctx, ext, samplesOf("a.jpg"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, ext.calls)
}

func TestValidateVector(t *testing.T) {
	assert.NoError(t, ValidateVector([]float32{0, -1, 1e30}, 3))
	assert.Error(t, ValidateVector([]float32{float32(math.Inf(-1))}, 1))
	assert.Error(t, ValidateVector(nil, 1))
}

func TestNorm(t *testing.T) {
	assert.InDelta(t, 5.0, Norm([]float32{3, 4}), 1e-6)
	assert.Zero(t, Norm(nil))
}

func TestTimingStats(t *testing.T) {
	var s TimingStats
	assert.Zero(t, s.Mean())
	s.Add(3 * time.Millisecond)
	s.Add(1 * time.Millisecond)
	s.Add(2 * time.Millisecond)
	assert.Equal(t, time.Millisecond, s.Min)
	assert.Equal(t, 3*time.Millisecond, s.Max)
	assert.Equal(t, 2*time.Millisecond, s.Mean())
}

func TestResolveInputShape(t *testing.T) {
	shape, order, err := ResolveInputShape([]int64{-1, 224, 224, 3}, 224, 224, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 224, 224, 3}, shape)
	assert.Equal(t, preprocess.ChannelOrderHWC, order)

	shape, order, err = ResolveInputShape([]int64{1, 3, -1, -1}, 224, 224, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 224, 224}, shape)
	assert.Equal(t, preprocess.ChannelOrderCHW, order)

	_, _, err = ResolveInputShape([]int64{-1, 299, 299, 3}, 224, 224, 3)
	assert.Error(t, err)

	_, _, err = ResolveInputShape([]int64{8, 224, 224, 3}, 224, 224, 3)
	assert.Error(t, err)

	_, _, err = ResolveInputShape([]int64{-1, 224, 224}, 224, 224, 3)
	assert.Error(t, err)
}

func TestResolveOutputShape(t *testing.T) {
	shape, dim, err := ResolveOutputShape([]int64{-1, 7, 7, 512})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 7, 7, 512}, shape)
	assert.Equal(t, 25088, dim)

	_, _, err = ResolveOutputShape([]int64{-1, -1, 7, 512})
	assert.Error(t, err)

	_, _, err = ResolveOutputShape([]int64{512})
	assert.Error(t, err)
}

func TestCachedExtractor(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	img := filepath.Join(dir, "fire.jpg")
	require.NoError(t, os.WriteFile(img, []byte("not really a jpeg"), 0o644))

	cache, err := store.Open(filepath.Join(dir, "features.db"))
	require.NoError(t, err)
	defer cache.Close()

	inner := &fakeExtractor{dim: 4}
	ext := NewCachedExtractor(inner, cache, "vgg16")

	first, err := ext.Extract(ctx, img)
	require.NoError(t, err)
	second, err := ext.Extract(ctx, img)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 1, ext.Hits())
	assert.Equal(t, 1, ext.Misses())

	// Another model key misses.
	other := NewCachedExtractor(inner, cache, "resnet50")
	_, err = other.Extract(ctx, img)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)

	_, err = ext.Extract(ctx, filepath.Join(dir, "missing.jpg"))
	assert.Error(t, err)
}

// constExtractor returns the same value in every component.
type constExtractor struct {
	value float32
	calls int
}

func (c *constExtractor) Extract(_ context.Context, _ string) ([]float32, error) {
	c.calls++
	return []float32{c.value, c.value, c.value, c.value}, nil
}

func (c *constExtractor) ExtractImage(_ context.Context, _ image.Image) ([]float32, error) {
	return []float32{c.value, c.value, c.value, c.value}, nil
}

func (c *constExtractor) Dim() int     { return 4 }
func (c *constExtractor) Close() error { return nil }

func TestFeatureKey(t *testing.T) {
	base := FeatureKey{
		ModelPath:     "models/vgg16_notop.onnx",
		Backbone:      "vgg16",
		Loader:        "native",
		Interpolation: images.InterpolationNearest,
		Width:         224,
		Height:        224,
	}
	assert.Equal(t, "models/vgg16_notop.onnx|vgg16|native|nearest|224x224", base.String())

	variants := []func(k *FeatureKey){
		func(k *FeatureKey) { k.ModelPath = "models/other.onnx" },
		func(k *FeatureKey) { k.Backbone = "resnet50" },
		func(k *FeatureKey) { k.Loader = "opencv" },
		func(k *FeatureKey) { k.Interpolation = images.InterpolationBilinear },
		func(k *FeatureKey) { k.Width = 160 },
		func(k *FeatureKey) { k.Height = 160 },
	}
	seen := map[string]bool{base.String(): true}
	for _, mutate := range variants {
		k := base
		mutate(&k)
		assert.False(t, seen[k.String()], "duplicate key %s", k)
		seen[k.String()] = true
	}
}

func TestCachedExtractorSettingsChange(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	img := filepath.Join(dir, "smoke.jpg")
	require.NoError(t, os.WriteFile(img, []byte("not really a jpeg"), 0o644))

	cache, err := store.Open(filepath.Join(dir, "features.db"))
	require.NoError(t, err)
	defer cache.Close()

	key := FeatureKey{
		ModelPath:     "models/vgg16_notop.onnx",
		Backbone:      "vgg16",
		Loader:        "native",
		Interpolation: images.InterpolationNearest,
		Width:         224,
		Height:        224,
	}
	before := NewCachedExtractor(&constExtractor{value: 1}, cache, key.String())
	vec, err := before.Extract(ctx, img)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1, 1, 1}, vec)

	key.Interpolation = images.InterpolationBilinear
	inner := &constExtractor{value: 2}
	after := NewCachedExtractor(inner, cache, key.String())
	vec, err = after.Extract(ctx, img)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 2, 2, 2}, vec)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 1, after.Misses())
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 90, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

// TestONNXExtractor runs the real network. Set FIRESMOKE_TEST_MODEL to a
// headless VGG16 export and make the onnxruntime library resolvable to enable it.
func TestONNXExtractor(t *testing.T) {
	modelPath := os.Getenv("FIRESMOKE_TEST_MODEL")
	if modelPath == "" {
		modelPath = filepath.Join("..", "models", "vgg16_notop.onnx")
	}
	if _, err := os.Stat(modelPath); err != nil {
		t.Skipf("model not available: %s", modelPath)
	}
	libPath, err := providers.SharedLibPath("")
	if err != nil {
		t.Skipf("no onnxruntime library for this platform: %v", err)
	}
	if _, err := os.Stat(libPath); err != nil {
		t.Skipf("onnxruntime library not available: %s", libPath)
	}

	ext, err := NewONNXExtractor(ONNXConfig{
		ModelPath: modelPath,
		Providers: providers.Config{Backend: providers.CPUProviderBackend, SharedLibPath: libPath},
	})
	require.NoError(t, err)
	defer ext.Close()

	require.Greater(t, ext.Dim(), 0)
	assert.Contains(t, ext.ModelKey(), "|vgg16|native|nearest|224x224")

	dir := t.TempDir()
	small := filepath.Join(dir, "small.png")
	large := filepath.Join(dir, "large.png")
	writePNG(t, small, 64, 48)
	writePNG(t, large, 640, 360)

	ctx := context.Background()
	a, err := ext.Extract(ctx, small)
	require.NoError(t, err)
	b, err := ext.Extract(ctx, large)
	require.NoError(t, err)

	assert.Len(t, a, ext.Dim())
	assert.Len(t, b, ext.Dim())
	assert.NoError(t, ValidateVector(a, ext.Dim()))
	assert.NoError(t, ValidateVector(b, ext.Dim()))

	c, err := ext.ExtractImage(ctx, image.NewRGBA(image.Rect(0, 0, 300, 200)))
	require.NoError(t, err)
	assert.Len(t, c, ext.Dim())

	_, err = ext.Extract(ctx, filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
	assert.Equal(t, int64(3), ext.Stats().Runs)
}
