package onnx

import (
	"image"
	"unicode/utf8"

	"github.com/ironsheep/deep-ocr/internal/imaging"
	"github.com/ironsheep/deep-ocr/internal/labels"
	"github.com/ironsheep/deep-ocr/internal/ocrerr"
)

// validateMetadata fills defaults and checks the exported tensor shapes
// against the configured geometry.
func validateMetadata(meta *Metadata, shape imaging.PatchShape, codec labels.Codec) error {
	if meta.Layout == "" {
		meta.Layout = LayoutNHWC
	}
	if meta.InputName == "" {
		meta.InputName = "input"
	}
	if meta.OutputName == "" {
		meta.OutputName = "output"
	}

	var wantIn []int64
	switch meta.Layout {
	case LayoutNHWC:
		wantIn = []int64{int64(shape.Height), int64(shape.Width), int64(shape.Channels)}
	case LayoutNCHW:
		wantIn = []int64{int64(shape.Channels), int64(shape.Height), int64(shape.Width)}
	default:
		return ocrerr.Configf("unknown tensor layout %q", meta.Layout)
	}
	if len(meta.InputShape) != 4 || !equalDims(meta.InputShape[1:], wantIn) || meta.InputShape[0] <= 0 {
		return ocrerr.Configf("model input shape %v does not match patch shape %s (%s)", meta.InputShape, shape, meta.Layout)
	}

	wantOut := []int64{meta.InputShape[0], int64(codec.MaxChars), int64(codec.Alphabet.Len())}
	if !equalDims(meta.OutputShape, wantOut) {
		return ocrerr.Configf("model output shape %v, want %v", meta.OutputShape, wantOut)
	}

	if len(meta.Classes) > 0 {
		classes, err := alphabetFromClasses(meta.Classes)
		if err != nil {
			return err
		}
		if !classes.Equal(codec.Alphabet) {
			return ocrerr.Configf("model classes %q do not match configured alphabet %q", classes, codec.Alphabet)
		}
	}
	return nil
}

func alphabetFromClasses(classes []string) (*labels.Alphabet, error) {
	runes := make([]rune, len(classes))
	for i, c := range classes {
		if utf8.RuneCountInString(c) != 1 {
			return nil, ocrerr.Configf("class %d is %q, want a single symbol", i, c)
		}
		runes[i], _ = utf8.DecodeRuneInString(c)
	}
	return labels.FromRunes(runes)
}

func equalDims(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// fillInput packs patches into data as float32 in [0,1]. Slots beyond
// len(patches) are zeroed.
func fillInput(data []float32, patches []*image.NRGBA, shape imaging.PatchShape, layout string) {
	h, w := shape.Height, shape.Width
	plane := h * w
	per := plane * 3
	for i := range data {
		data[i] = 0
	}

	for n, p := range patches {
		base := n * per
		b := p.Bounds()
		for y := 0; y < h; y++ {
			off := p.PixOffset(b.Min.X, b.Min.Y+y)
			for x := 0; x < w; x++ {
				r := float32(p.Pix[off]) / 255
				g := float32(p.Pix[off+1]) / 255
				bl := float32(p.Pix[off+2]) / 255
				off += 4
				if layout == LayoutNCHW {
					px := y*w + x
					data[base+px] = r
					data[base+plane+px] = g
					data[base+2*plane+px] = bl
				} else {
					px := base + (y*w+x)*3
					data[px] = r
					data[px+1] = g
					data[px+2] = bl
				}
			}
		}
	}
}

// decodeOutput takes the argmax over the class axis of the first count
// (MaxChars, NC) score blocks.
func decodeOutput(data []float32, count, maxChars int, classes *labels.Alphabet) []labels.Sequence {
	nc := classes.Len()
	out := make([]labels.Sequence, count)
	for n := 0; n < count; n++ {
		seq := make(labels.Sequence, maxChars)
		for pos := 0; pos < maxChars; pos++ {
			scores := data[(n*maxChars+pos)*nc : (n*maxChars+pos+1)*nc]
			best := 0
			for c := 1; c < nc; c++ {
				if scores[c] > scores[best] {
					best = c
				}
			}
			seq[pos] = classes.Symbol(best)
		}
		out[n] = seq
	}
	return out
}
