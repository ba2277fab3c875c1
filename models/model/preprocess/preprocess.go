// Package preprocess - Converts resized images into normalised network input tensors.
package preprocess

import (
	"fmt"
	"image"
	"image/color"

	"github.com/pkg/errors"
)

// ErrInvalidInput is returned when an image does not match the configured
// input geometry.
var ErrInvalidInput = errors.New("invalid preprocessing input")

// NormalizationType defines how pixel values are normalized.
type NormalizationType int

const (
	// NormalizeNone keeps pixel values as 0-255.
	NormalizeNone NormalizationType = iota
	// NormalizeZeroToOne scales pixel values to [0, 1].
	NormalizeZeroToOne
	// NormalizeMinusOneToOne scales pixel values to [-1, 1].
	NormalizeMinusOneToOne
	// NormalizeStandardize applies mean and std normalization.
	NormalizeStandardize
	// NormalizeCaffe subtracts per-channel means without scaling (VGG/ResNet caffe weights).
	NormalizeCaffe
)

// ChannelOrder defines the ordering of image channels.
type ChannelOrder int

const (
	// ChannelOrderCHW is Channel-Height-Width ordering.
	ChannelOrderCHW ChannelOrder = iota
	// ChannelOrderHWC is Height-Width-Channel ordering (Keras exports).
	ChannelOrderHWC
)

// ColorMode defines the color space of the image.
type ColorMode int

const (
	// ColorModeRGB is standard RGB color mode.
	ColorModeRGB ColorMode = iota
	// ColorModeBGR is BGR color mode (caffe-style weights).
	ColorModeBGR
	// ColorModeGrayscale is single channel grayscale.
	ColorModeGrayscale
)

// ModelConfig defines preprocessing configuration for a specific network.
type ModelConfig struct {
	// Name of the model for debugging purposes.
	Name string
	// InputWidth is the expected width of the model input.
	InputWidth int
	// InputHeight is the expected height of the model input.
	InputHeight int
	// InputChannels is the number of channels (1 for grayscale, 3 for color).
	InputChannels int
	// NormalizationType defines how to normalize pixel values.
	NormalizationType NormalizationType
	// MeanValues per channel, in tensor channel order.
	MeanValues []float32
	// StdValues per channel, in tensor channel order (NormalizeStandardize only).
	StdValues []float32
	// ChannelOrder defines the channel ordering (CHW or HWC).
	ChannelOrder ChannelOrder
	// ColorMode defines the color space (RGB, BGR, Grayscale).
	ColorMode ColorMode
}

// PreprocessingResult contains the preprocessed image data and metadata.
type PreprocessingResult struct {
	// Data is the preprocessed float32 tensor data.
	Data []float32
	// Shape is the batched tensor shape, [1,H,W,C] or [1,C,H,W].
	Shape []int64
}

// Preprocessor handles image preprocessing for ONNX models.
type Preprocessor struct {
	config *ModelConfig
}

// VGG16Config returns the preprocessing used by Keras VGG16 with ImageNet
// weights: 224×224 RGB input reordered to BGR, per-channel ImageNet mean
// subtracted, no scaling, channels-last.
//
// Returns:
//   - *ModelConfig: The VGG16 configuration.
func VGG16Config() *ModelConfig {
	return &ModelConfig{
		Name:              "vgg16",
		InputWidth:        224,
		InputHeight:       224,
		InputChannels:     3,
		NormalizationType: NormalizeCaffe,
		MeanValues:        []float32{103.939, 116.779, 123.68},
		ChannelOrder:      ChannelOrderHWC,
		ColorMode:         ColorModeBGR,
	}
}

// NewPreprocessor creates a new preprocessor with the given configuration.
//
// Arguments:
//   - config: The model-specific preprocessing configuration.
//
// Returns:
//   - *Preprocessor: A configured Preprocessor instance.
//   - error: If the configuration is inconsistent.
func NewPreprocessor(config *ModelConfig) (*Preprocessor, error) {
	if config == nil {
		return nil, errors.New("preprocess config is nil")
	}
	if config.InputWidth <= 0 || config.InputHeight <= 0 {
		return nil, errors.Errorf("invalid input size %dx%d", config.InputWidth, config.InputHeight)
	}
	if config.InputChannels != 1 && config.InputChannels != 3 {
		return nil, errors.Errorf("unsupported channel count %d", config.InputChannels)
	}
	if config.ColorMode == ColorModeGrayscale && config.InputChannels != 1 {
		return nil, errors.New("grayscale color mode requires a single input channel")
	}
	switch config.NormalizationType {
	case NormalizeCaffe:
		if len(config.MeanValues) != config.InputChannels {
			return nil, errors.Errorf("caffe normalization needs %d mean values, got %d",
				config.InputChannels, len(config.MeanValues))
		}
	case NormalizeStandardize:
		if len(config.MeanValues) != config.InputChannels || len(config.StdValues) != config.InputChannels {
			return nil, errors.Errorf("standardization needs %d mean and std values", config.InputChannels)
		}
		for _, s := range config.StdValues {
			if s == 0 {
				return nil, errors.New("standardization std values must be non-zero")
			}
		}
	}
	return &Preprocessor{config: config}, nil
}

// Config returns the preprocessor configuration.
func (p *Preprocessor) Config() *ModelConfig {
	return p.config
}

// Size returns the number of float32 values one preprocessed image occupies.
func (p *Preprocessor) Size() int {
	return p.config.InputWidth * p.config.InputHeight * p.config.InputChannels
}

// Shape returns the batched tensor shape for a single image.
func (p *Preprocessor) Shape() []int64 {
	c := int64(p.config.InputChannels)
	h := int64(p.config.InputHeight)
	w := int64(p.config.InputWidth)
	if p.config.ChannelOrder == ChannelOrderCHW {
		return []int64{1, c, h, w}
	}
	return []int64{1, h, w, c}
}

// Preprocess converts an image that is already at the configured input size
// into a normalised tensor.
//
// Arguments:
//   - img: The resized input image.
//
// Returns:
//   - *PreprocessingResult: The tensor and its shape.
//   - error: If the image is nil or has the wrong size.
func (p *Preprocessor) Preprocess(img image.Image) (*PreprocessingResult, error) {
	data := make([]float32, p.Size())
	if err := p.PreprocessInto(img, data); err != nil {
		return nil, err
	}
	return &PreprocessingResult{Data: data, Shape: p.Shape()}, nil
}

// PreprocessInto writes the normalised tensor for img into dst, which is
// typically the backing slice of a preallocated onnxruntime input tensor.
//
// Arguments:
//   - img: The resized input image.
//   - dst: Destination slice with at least Size() elements.
//
// Returns:
//   - error: If validation fails.
func (p *Preprocessor) PreprocessInto(img image.Image, dst []float32) error {
	if err := p.validateInput(img); err != nil {
		return errors.Wrap(err, "input validation failed")
	}
	if len(dst) < p.Size() {
		return errors.Errorf("destination holds %d floats, needs %d", len(dst), p.Size())
	}
	p.imageToTensor(img, dst[:p.Size()])
	p.normalize(dst[:p.Size()])
	return nil
}

func (p *Preprocessor) validateInput(img image.Image) error {
	if img == nil {
		return errors.Wrap(ErrInvalidInput, "image is nil")
	}
	b := img.Bounds()
	if b.Dx() != p.config.InputWidth || b.Dy() != p.config.InputHeight {
		return errors.Wrap(ErrInvalidInput, fmt.Sprintf("image is %dx%d, expected %dx%d",
			b.Dx(), b.Dy(), p.config.InputWidth, p.config.InputHeight))
	}
	return nil
}

// imageToTensor writes raw 0-255 channel values in the configured order.
func (p *Preprocessor) imageToTensor(img image.Image, tensor []float32) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	plane := width * height

	idx := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			// Straight (non-premultiplied) colour; alpha is dropped.
			px := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			r8 := float32(px.R)
			g8 := float32(px.G)
			b8 := float32(px.B)

			if p.config.InputChannels == 1 {
				gray := 0.299*r8 + 0.587*g8 + 0.114*b8
				if p.config.ChannelOrder == ChannelOrderCHW {
					tensor[y*width+x] = gray
				} else {
					tensor[idx] = gray
					idx++
				}
				continue
			}

			ch0, ch1, ch2 := r8, g8, b8
			if p.config.ColorMode == ColorModeBGR {
				ch0, ch2 = b8, r8
			}
			if p.config.ChannelOrder == ChannelOrderCHW {
				tensor[y*width+x] = ch0
				tensor[plane+y*width+x] = ch1
				tensor[2*plane+y*width+x] = ch2
			} else {
				tensor[idx] = ch0
				tensor[idx+1] = ch1
				tensor[idx+2] = ch2
				idx += 3
			}
		}
	}
}

// normalize applies normalization to the tensor in place.
func (p *Preprocessor) normalize(tensor []float32) {
	switch p.config.NormalizationType {
	case NormalizeZeroToOne:
		for i := range tensor {
			tensor[i] /= 255.0
		}
	case NormalizeMinusOneToOne:
		for i := range tensor {
			tensor[i] = (tensor[i] / 127.5) - 1.0
		}
	case NormalizeCaffe:
		p.perChannel(tensor, func(v float32, c int) float32 {
			return v - p.config.MeanValues[c]
		})
	case NormalizeStandardize:
		p.perChannel(tensor, func(v float32, c int) float32 {
			return (v - p.config.MeanValues[c]) / p.config.StdValues[c]
		})
	}
}

func (p *Preprocessor) perChannel(tensor []float32, fn func(v float32, c int) float32) {
	channels := p.config.InputChannels
	pixelsPerChannel := len(tensor) / channels
	for c := 0; c < channels; c++ {
		if p.config.ChannelOrder == ChannelOrderCHW {
			offset := c * pixelsPerChannel
			for i := 0; i < pixelsPerChannel; i++ {
				tensor[offset+i] = fn(tensor[offset+i], c)
			}
		} else {
			for i := c; i < len(tensor); i += channels {
				tensor[i] = fn(tensor[i], c)
			}
		}
	}
}
