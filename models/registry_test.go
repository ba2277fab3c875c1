package models

import (
	"testing"

	"github.com/nvr-ai/go-firesmoke/models/model/preprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupVGG16(t *testing.T) {
	b, err := Lookup("vgg16")
	require.NoError(t, err)

	assert.Equal(t, 25088, b.FeatureDim(224, 224))

	cfg := b.Preprocess(0, 0)
	assert.Equal(t, preprocess.VGG16Config(), cfg)

	resized := b.Preprocess(160, 128)
	assert.Equal(t, 160, resized.InputWidth)
	assert.Equal(t, 128, resized.InputHeight)
	assert.Equal(t, 224, b.Preprocess(0, 0).InputWidth, "configs are not shared")
}

func TestLookupOthers(t *testing.T) {
	r, err := Lookup("resnet50")
	require.NoError(t, err)
	assert.Equal(t, 100352, r.FeatureDim(224, 224))
	assert.Equal(t, "resnet50", r.Preprocess(0, 0).Name)
	assert.Equal(t, preprocess.NormalizeCaffe, r.Preprocess(0, 0).NormalizationType)

	m, err := Lookup("mobilenetv2")
	require.NoError(t, err)
	cfg := m.Preprocess(0, 0)
	assert.Equal(t, preprocess.NormalizeMinusOneToOne, cfg.NormalizationType)
	assert.Equal(t, preprocess.ColorModeRGB, cfg.ColorMode)
	_, err = preprocess.NewPreprocessor(cfg)
	assert.NoError(t, err)
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("inception")
	assert.ErrorIs(t, err, ErrUnknownBackbone)
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"mobilenetv2", "resnet50", "vgg16", "vgg19"}, Names())
}
