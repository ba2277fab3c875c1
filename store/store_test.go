package store

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *FeatureCache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "features.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestVectorCodec(t *testing.T) {
	vec := []float32{0, 1.5, -2.25, float32(math.Inf(1)), 3.4028235e38}
	got, err := DecodeVector(EncodeVector(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = DecodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	c := openTemp(t)

	key := FileKey{Path: "/data/Train/Fire/a.jpg", Size: 1234, ModTime: time.Unix(1700000000, 42)}
	vec := []float32{0.5, 0.25, 0.125}

	_, ok, err := c.Get(ctx, key, "vgg16")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, key, "vgg16", vec))

	got, ok, err := c.Get(ctx, key, "vgg16")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, vec, got)

	_, ok, err = c.Get(ctx, key, "resnet50")
	require.NoError(t, err)
	assert.False(t, ok, "entries are scoped to the model key")

	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStaleEntriesMiss(t *testing.T) {
	ctx := context.Background()
	c := openTemp(t)

	key := FileKey{Path: "a.jpg", Size: 10, ModTime: time.Unix(100, 0)}
	require.NoError(t, c.Put(ctx, key, "m", []float32{1}))

	resized := key
	resized.Size = 11
	_, ok, err := c.Get(ctx, resized, "m")
	require.NoError(t, err)
	assert.False(t, ok)

	touched := key
	touched.ModTime = time.Unix(101, 0)
	_, ok, err = c.Get(ctx, touched, "m")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutReplaces(t *testing.T) {
	ctx := context.Background()
	c := openTemp(t)

	key := FileKey{Path: "a.jpg", Size: 10, ModTime: time.Unix(100, 0)}
	require.NoError(t, c.Put(ctx, key, "m", []float32{1, 2}))
	key.Size = 20
	require.NoError(t, c.Put(ctx, key, "m", []float32{3, 4}))

	got, ok, err := c.Get(ctx, key, "m")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{3, 4}, got)

	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStatKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	key, err := StatKey(path)
	require.NoError(t, err)
	assert.Equal(t, path, key.Path)
	assert.Equal(t, int64(5), key.Size)

	_, err = StatKey(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
