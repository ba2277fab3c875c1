// Package images - Image decoding and resizing for feature extraction.
package images

import (
	"image"
	"strings"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// Interpolation names a resampling method.
type Interpolation string

// Interpolation constants.
const (
	// InterpolationNearest matches the default of the Keras image loader.
	InterpolationNearest  Interpolation = "nearest"
	InterpolationBilinear Interpolation = "bilinear"
	InterpolationBicubic  Interpolation = "bicubic"
	InterpolationLanczos3 Interpolation = "lanczos3"
)

// ParseInterpolation converts a case-insensitive name into an Interpolation.
// An empty string yields InterpolationNearest.
func ParseInterpolation(s string) (Interpolation, error) {
	switch Interpolation(strings.ToLower(strings.TrimSpace(s))) {
	case "", InterpolationNearest:
		return InterpolationNearest, nil
	case InterpolationBilinear:
		return InterpolationBilinear, nil
	case InterpolationBicubic:
		return InterpolationBicubic, nil
	case InterpolationLanczos3, "lanczos":
		return InterpolationLanczos3, nil
	default:
		return "", errors.Errorf("unknown interpolation %q", s)
	}
}

func (i Interpolation) function() resize.InterpolationFunction {
	switch i {
	case InterpolationBilinear:
		return resize.Bilinear
	case InterpolationBicubic:
		return resize.Bicubic
	case InterpolationLanczos3:
		return resize.Lanczos3
	default:
		return resize.NearestNeighbor
	}
}

// Resize scales img to exactly width×height, ignoring aspect ratio. The
// returned image's bounds start at the origin.
//
// Arguments:
//   - img: The source image.
//   - width: Target width.
//   - height: Target height.
//   - interp: Resampling method.
//
// Returns:
//   - image.Image: The resized image.
func Resize(img image.Image, width, height int, interp Interpolation) image.Image {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height && b.Min == (image.Point{}) {
		return img
	}
	return resize.Resize(uint(width), uint(height), img, interp.function())
}

// Options configures a Loader.
type Options struct {
	// Width is the output width in pixels.
	Width int `json:"width"         yaml:"width"`
	// Height is the output height in pixels.
	Height int `json:"height"        yaml:"height"`
	// Interpolation used when resizing.
	Interpolation Interpolation `json:"interpolation" yaml:"interpolation"`
}

// Loader reads an image from disk and returns it at the configured size.
type Loader interface {
	Load(path string) (image.Image, error)
}

// NativeLoader decodes with the Go image decoders and resizes with nfnt/resize.
type NativeLoader struct {
	opts Options
}

// NewNativeLoader creates a loader producing width×height images.
func NewNativeLoader(opts Options) (*NativeLoader, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, errors.Errorf("invalid loader size %dx%d", opts.Width, opts.Height)
	}
	if opts.Interpolation == "" {
		opts.Interpolation = InterpolationNearest
	}
	return &NativeLoader{opts: opts}, nil
}

// Load decodes path and resizes it.
func (l *NativeLoader) Load(path string) (image.Image, error) {
	img, _, err := Decode(path)
	if err != nil {
		return nil, err
	}
	return Resize(img, l.opts.Width, l.opts.Height, l.opts.Interpolation), nil
}

// Options returns the loader configuration.
func (l *NativeLoader) Options() Options {
	return l.opts
}
