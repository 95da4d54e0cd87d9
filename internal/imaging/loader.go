package imaging

import (
	"fmt"
	"image"
	"io"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// LoadRGB decodes an image file and discards its alpha channel.
//
// Parameters:
//   - path: Absolute or relative file path to the image. Supported formats are
//     PNG, JPEG, GIF, BMP, TIFF and WebP.
//
// Returns:
//   - *image.NRGBA: An opaque copy of the image whose bounds start at (0,0).
//     Color samples are the un-premultiplied source values; only alpha is
//     replaced, so a semi-transparent pixel keeps its stored RGB.
//   - error: Non-nil if the file cannot be opened or decoded.
//
// EXIF orientation is deliberately ignored: patches are cut from the pixel
// grid exactly as stored.
func LoadRGB(path string) (*image.NRGBA, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	return DiscardAlpha(img), nil
}

// DecodeRGB is LoadRGB for an already-open stream.
func DecodeRGB(r io.Reader) (*image.NRGBA, error) {
	img, err := imaging.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return DiscardAlpha(img), nil
}

// DiscardAlpha returns an opaque NRGBA copy of img with bounds starting at (0,0).
func DiscardAlpha(img image.Image) *image.NRGBA {
	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	return out
}

// SavePNG writes img to path as PNG.
func SavePNG(path string, img image.Image) error {
	if err := imgio.Save(path, img, imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}
