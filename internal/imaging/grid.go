package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"strconv"

	"github.com/disintegration/imaging"
)

// TileOverlayResult contains the image with the patch grid drawn over it
type TileOverlayResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Rows        int    `json:"rows"`
	Cols        int    `json:"cols"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// TileOverlay draws the patch boundaries Tile would use over a copy of img.
// The bottom and right remainder that tiling discards is darkened so it is
// obvious which pixels never reach the classifier.
func TileOverlay(img image.Image, shape PatchShape, lineColorHex string) (*TileOverlayResult, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}

	lineColor, err := parseHexColor(lineColorHex)
	if err != nil {
		lineColor = color.NRGBA{255, 0, 0, 255} // Default: red
	}

	result := DrawTileOverlay(img, shape, lineColor)
	rows, cols := GridShape(result.Bounds().Dx(), result.Bounds().Dy(), shape)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, result, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return &TileOverlayResult{
		Width:       result.Bounds().Dx(),
		Height:      result.Bounds().Dy(),
		Rows:        rows,
		Cols:        cols,
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

// DrawTileOverlay returns an NRGBA copy of img with patch boundaries drawn in
// lineColor and the cropped remainder shaded.
func DrawTileOverlay(img image.Image, shape PatchShape, lineColor color.NRGBA) *image.NRGBA {
	result := imaging.Clone(img)
	width := result.Bounds().Dx()
	height := result.Bounds().Dy()
	rows, cols := GridShape(width, height, shape)
	usedW, usedH := cols*shape.Width, rows*shape.Height

	// Shade discarded pixels
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x < usedW && y < usedH {
				continue
			}
			i := result.PixOffset(x, y)
			result.Pix[i] /= 3
			result.Pix[i+1] /= 3
			result.Pix[i+2] /= 3
		}
	}

	// Vertical patch boundaries
	for c := 0; c <= cols && rows > 0; c++ {
		x := c * shape.Width
		if x >= width {
			x = width - 1
		}
		for y := 0; y < usedH; y++ {
			result.SetNRGBA(x, y, lineColor)
		}
	}

	// Horizontal patch boundaries
	for r := 0; r <= rows && cols > 0; r++ {
		y := r * shape.Height
		if y >= height {
			y = height - 1
		}
		for x := 0; x < usedW; x++ {
			result.SetNRGBA(x, y, lineColor)
		}
	}

	return result
}

// parseHexColor parses a hex color string like "#FF0000" or "#FF000080"
func parseHexColor(hex string) (color.NRGBA, error) {
	if len(hex) == 0 {
		return color.NRGBA{}, fmt.Errorf("empty color string")
	}
	if hex[0] == '#' {
		hex = hex[1:]
	}

	var r, g, b, a uint8 = 0, 0, 0, 255

	switch len(hex) {
	case 6:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.NRGBA{}, err
		}
		r = uint8(val >> 16)
		g = uint8(val >> 8)
		b = uint8(val)
	case 8:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.NRGBA{}, err
		}
		r = uint8(val >> 24)
		g = uint8(val >> 16)
		b = uint8(val >> 8)
		a = uint8(val)
	default:
		return color.NRGBA{}, fmt.Errorf("invalid hex color length")
	}

	return color.NRGBA{R: r, G: g, B: b, A: a}, nil
}
