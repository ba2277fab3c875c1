// Package models - Registry of the frozen backbones the feature extractor can
// run, with the preprocessing each one was trained with.
package models

import (
	"sort"

	"github.com/nvr-ai/go-firesmoke/models/model/preprocess"
	"github.com/pkg/errors"
)

// Name is the unique identifier of a backbone.
type Name string

const (
	// NameVGG16 is VGG16 with ImageNet weights and no classifier head.
	NameVGG16 Name = "vgg16"
	// NameVGG19 is VGG19 with ImageNet weights and no classifier head.
	NameVGG19 Name = "vgg19"
	// NameResNet50 is ResNet50 with ImageNet weights and no classifier head.
	NameResNet50 Name = "resnet50"
	// NameMobileNetV2 is MobileNetV2 with ImageNet weights and no classifier head.
	NameMobileNetV2 Name = "mobilenetv2"
)

// ErrUnknownBackbone is returned for names missing from the registry.
var ErrUnknownBackbone = errors.New("unknown backbone")

// Backbone describes a registered feature network.
type Backbone struct {
	Name Name
	// Channels is the depth of the final feature map.
	Channels int
	// Stride is the total spatial downsampling of the network.
	Stride int
	config func() *preprocess.ModelConfig
}

// FeatureDim returns the flattened feature length for a width×height input.
func (b Backbone) FeatureDim(width, height int) int {
	return (width / b.Stride) * (height / b.Stride) * b.Channels
}

// Preprocess returns the preprocessing configuration resized to width×height.
// Non-positive sizes keep the backbone default.
//
// Arguments:
//   - width: Network input width.
//   - height: Network input height.
//
// Returns:
//   - *preprocess.ModelConfig: A fresh configuration the caller may modify.
func (b Backbone) Preprocess(width, height int) *preprocess.ModelConfig {
	cfg := b.config()
	if width > 0 {
		cfg.InputWidth = width
	}
	if height > 0 {
		cfg.InputHeight = height
	}
	return cfg
}

func caffe(name Name) func() *preprocess.ModelConfig {
	return func() *preprocess.ModelConfig {
		cfg := preprocess.VGG16Config()
		cfg.Name = string(name)
		return cfg
	}
}

var registry = map[Name]Backbone{
	NameVGG16:    {Name: NameVGG16, Channels: 512, Stride: 32, config: preprocess.VGG16Config},
	NameVGG19:    {Name: NameVGG19, Channels: 512, Stride: 32, config: caffe(NameVGG19)},
	NameResNet50: {Name: NameResNet50, Channels: 2048, Stride: 32, config: caffe(NameResNet50)},
	NameMobileNetV2: {Name: NameMobileNetV2, Channels: 1280, Stride: 32, config: func() *preprocess.ModelConfig {
		return &preprocess.ModelConfig{
			Name:              string(NameMobileNetV2),
			InputWidth:        224,
			InputHeight:       224,
			InputChannels:     3,
			NormalizationType: preprocess.NormalizeMinusOneToOne,
			ChannelOrder:      preprocess.ChannelOrderHWC,
			ColorMode:         preprocess.ColorModeRGB,
		}
	}},
}

// Lookup returns the registered backbone for name.
//
// Arguments:
//   - name: The backbone name, e.g. "vgg16".
//
// Returns:
//   - Backbone: The registered backbone.
//   - error: ErrUnknownBackbone when the name is not registered.
func Lookup(name string) (Backbone, error) {
	b, ok := registry[Name(name)]
	if !ok {
		return Backbone{}, errors.Wrapf(ErrUnknownBackbone, "%q", name)
	}
	return b, nil
}

// Names lists the registered backbones in sorted order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, string(n))
	}
	sort.Strings(out)
	return out
}
