// Package opencv - OpenCV-backed image loader.
//
// Kept separate from package images so that callers not selecting the OpenCV
// loader do not link against OpenCV.
package opencv

import (
	"image"

	"github.com/nvr-ai/go-firesmoke/images"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Loader decodes and resizes images with OpenCV.
type Loader struct {
	opts images.Options
}

// NewLoader creates an OpenCV loader producing width×height images.
func NewLoader(opts images.Options) (*Loader, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, errors.Errorf("invalid loader size %dx%d", opts.Width, opts.Height)
	}
	if opts.Interpolation == "" {
		opts.Interpolation = images.InterpolationNearest
	}
	return &Loader{opts: opts}, nil
}

// Load reads path with IMRead, resizes it and converts the BGR Mat into an
// RGBA image.Image.
//
// Arguments:
//   - path: The image file to load.
//
// Returns:
//   - image.Image: The resized image.
//   - error: If OpenCV cannot read the file or the conversion fails.
func (l *Loader) Load(path string) (image.Image, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return nil, errors.Errorf("opencv could not read image %s", path)
	}
	defer mat.Close()

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(mat, &resized, image.Point{X: l.opts.Width, Y: l.opts.Height}, 0, 0, interpolationFlag(l.opts.Interpolation))
	if resized.Empty() {
		return nil, errors.Errorf("opencv resize produced an empty image for %s", path)
	}

	// ToImage interprets 3-channel Mats as BGR.
	img, err := resized.ToImage()
	if err != nil {
		return nil, errors.Wrapf(err, "converting %s to image", path)
	}
	return img, nil
}

func interpolationFlag(i images.Interpolation) gocv.InterpolationFlags {
	switch i {
	case images.InterpolationBilinear:
		return gocv.InterpolationLinear
	case images.InterpolationBicubic:
		return gocv.InterpolationCubic
	case images.InterpolationLanczos3:
		return gocv.InterpolationLanczos4
	default:
		return gocv.InterpolationNearestNeighbor
	}
}
