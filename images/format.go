package images

import (
	"bytes"
	"image"
	// Register the stdlib decoders.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	// Register the WebP, BMP and TIFF decoders.
	_ "github.com/chai2010/webp"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// ImageFormat represents supported image formats
type ImageFormat string

// ImageFormat constants as reported by image.Decode.
const (
	FormatJPEG ImageFormat = "jpeg"
	FormatPNG  ImageFormat = "png"
	FormatGIF  ImageFormat = "gif"
	FormatBMP  ImageFormat = "bmp"
	FormatTIFF ImageFormat = "tiff"
	FormatWebP ImageFormat = "webp"
)

// Decode reads and decodes an image file of any registered format.
//
// Arguments:
//   - path: The image file to decode.
//
// Returns:
//   - image.Image: The decoded image.
//   - ImageFormat: The detected format.
//   - error: If the file is missing, unreadable or not a recognised image.
func Decode(path string) (image.Image, ImageFormat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", errors.Wrapf(err, "reading image %s", path)
	}
	img, format, err := DecodeBytes(data)
	if err != nil {
		return nil, "", errors.Wrapf(err, "decoding image %s", path)
	}
	return img, format, nil
}

// DecodeBytes decodes an in-memory image of any registered format.
func DecodeBytes(data []byte) (image.Image, ImageFormat, error) {
	if len(data) == 0 {
		return nil, "", errors.New("image data is empty")
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	return img, ImageFormat(format), nil
}
