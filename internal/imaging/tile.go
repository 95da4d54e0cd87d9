package imaging

import (
	"fmt"
	"image"
	"strings"

	"github.com/ironsheep/deep-ocr/internal/labels"
	"github.com/ironsheep/deep-ocr/internal/ocrerr"
)

// PatchShape is the fixed size of every patch fed to the classifier.
type PatchShape struct {
	Height   int `json:"height"`
	Width    int `json:"width"`
	Channels int `json:"channels"`
}

// DefaultPatchShape is an 18x640 RGB strip.
var DefaultPatchShape = PatchShape{Height: 18, Width: 640, Channels: 3}

// Validate rejects non-positive sizes and anything other than three channels.
func (s PatchShape) Validate() error {
	if s.Height <= 0 || s.Width <= 0 {
		return ocrerr.Configf("patch shape %s must have positive height and width", s)
	}
	if s.Channels != 3 {
		return ocrerr.Configf("patch shape %s must have 3 channels", s)
	}
	return nil
}

// Fits reports whether img has exactly this height and width.
func (s PatchShape) Fits(img image.Image) bool {
	b := img.Bounds()
	return b.Dx() == s.Width && b.Dy() == s.Height
}

func (s PatchShape) String() string {
	return fmt.Sprintf("(%d, %d, %d)", s.Height, s.Width, s.Channels)
}

// Grid is the row-major arrangement of patches cut from one image.
//
// Patches[r*Cols+c] is the patch whose top-left corner sits at pixel
// (c*Width, r*Height) of the source image.
type Grid struct {
	Rows    int
	Cols    int
	Patches []*image.NRGBA
}

// Len returns the number of patches.
func (g Grid) Len() int { return len(g.Patches) }

// Tile partitions img into non-overlapping patches of the given shape.
//
// The image is cropped to its top-left floor(H/Ph)*Ph by floor(W/Pw)*Pw region;
// the bottom and right remainder is discarded, never padded. Patches are
// ordered left-to-right within a row and rows top-to-bottom. Each patch is a
// strided view into img (no pixel copy), so img must not be mutated while the
// grid is in use.
//
// An image smaller than one patch in either dimension, or a shape that fails
// Validate, yields an empty grid with Rows == Cols == 0.
func Tile(img *image.NRGBA, shape PatchShape) Grid {
	b := img.Bounds()
	rows, cols := GridShape(b.Dx(), b.Dy(), shape)
	if rows == 0 || cols == 0 {
		return Grid{}
	}

	patches := make([]*image.NRGBA, 0, rows*cols)
	for r := 0; r < rows; r++ {
		y := b.Min.Y + r*shape.Height
		for c := 0; c < cols; c++ {
			x := b.Min.X + c*shape.Width
			rect := image.Rect(x, y, x+shape.Width, y+shape.Height)
			patches = append(patches, img.SubImage(rect).(*image.NRGBA))
		}
	}
	return Grid{Rows: rows, Cols: cols, Patches: patches}
}

// GridShape returns the (rows, cols) Tile would produce for a w x h image.
func GridShape(w, h int, shape PatchShape) (rows, cols int) {
	if shape.Validate() != nil {
		return 0, 0
	}
	rows, cols = h/shape.Height, w/shape.Width
	if rows == 0 || cols == 0 {
		return 0, 0
	}
	return rows, cols
}

// PredictionGrid holds one predicted sequence per patch, in the same
// row-major order Tile produced the patches.
type PredictionGrid struct {
	Rows  int
	Cols  int
	Cells []labels.Sequence
}

// Stitch reassembles predictions into text: the cell at (r, c) becomes the
// c-th substring of the r-th line. Cells are joined without separator, lines
// with "\n". Pad spaces are kept; trimming is the caller's policy.
func Stitch(pg PredictionGrid) (string, error) {
	if len(pg.Cells) != pg.Rows*pg.Cols {
		return "", fmt.Errorf("prediction grid %dx%d has %d cells", pg.Rows, pg.Cols, len(pg.Cells))
	}
	if len(pg.Cells) == 0 {
		return "", nil
	}

	lines := make([]string, pg.Rows)
	var sb strings.Builder
	for r := 0; r < pg.Rows; r++ {
		sb.Reset()
		for c := 0; c < pg.Cols; c++ {
			sb.WriteString(labels.Decode(pg.Cells[r*pg.Cols+c]))
		}
		lines[r] = sb.String()
	}
	return strings.Join(lines, "\n"), nil
}
