// Package synth renders labelled training patches.
//
// Text is drawn with the 7x13 bitmap face from golang.org/x/image onto a
// canvas holding exactly MaxChars glyph cells, then scaled to the patch shape
// with nearest-neighbour sampling so that glyph i lands in the i-th of the
// MaxChars column slabs of the patch. Foreground and background colours are
// drawn per patch from a seeded source, so a given seed always produces the
// same dataset.
package synth

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/nfnt/resize"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ironsheep/deep-ocr/internal/dataset"
	"github.com/ironsheep/deep-ocr/internal/imaging"
	"github.com/ironsheep/deep-ocr/internal/labels"
	"github.com/ironsheep/deep-ocr/internal/ocrerr"
)

const (
	glyphWidth  = 7
	glyphHeight = 13
	glyphAscent = 11
)

// Config for a Generator.
type Config struct {
	Shape imaging.PatchShape
	Codec labels.Codec
	Seed  int64
	// MinLen and MaxLen bound generated label lengths. MaxLen defaults to
	// Codec.MaxChars.
	MinLen int
	MaxLen int
	Logger logrus.FieldLogger
}

// Palette is the colour pair a patch is painted with.
type Palette struct {
	Foreground color.NRGBA
	Background color.NRGBA
}

// Generator produces random labelled patches.
type Generator struct {
	cfg     Config
	rng     *rand.Rand
	log     logrus.FieldLogger
	symbols []rune
	ink     []rune
}

// New validates cfg and seeds a generator.
func New(cfg Config) (*Generator, error) {
	if err := cfg.Shape.Validate(); err != nil {
		return nil, err
	}
	if cfg.Codec.Alphabet == nil || cfg.Codec.MaxChars <= 0 {
		return nil, ocrerr.Configf("synth: codec is not configured")
	}
	if cfg.MinLen <= 0 {
		cfg.MinLen = 1
	}
	if cfg.MaxLen <= 0 || cfg.MaxLen > cfg.Codec.MaxChars {
		cfg.MaxLen = cfg.Codec.MaxChars
	}
	if cfg.MinLen > cfg.MaxLen {
		return nil, ocrerr.Configf("synth: min length %d exceeds max length %d", cfg.MinLen, cfg.MaxLen)
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	symbols := cfg.Codec.Alphabet.Symbols()
	var ink []rune
	for _, r := range symbols {
		if r == ',' || r == '\n' || r == '\r' {
			return nil, ocrerr.Configf("synth: symbol %q cannot be written to an index file", r)
		}
		if r != labels.Pad {
			ink = append(ink, r)
		}
	}
	if len(ink) == 0 {
		return nil, ocrerr.Configf("synth: alphabet has no printable symbols")
	}

	return &Generator{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		log:     log.WithField("component", "synth"),
		symbols: symbols,
		ink:     ink,
	}, nil
}

// RandomLabel returns a label of MinLen..MaxLen alphabet symbols. The last
// symbol is never the pad symbol, since index lines are trimmed on load.
func (g *Generator) RandomLabel() string {
	n := g.cfg.MinLen + g.rng.Intn(g.cfg.MaxLen-g.cfg.MinLen+1)
	out := make([]rune, n)
	for i := range out {
		out[i] = g.symbols[g.rng.Intn(len(g.symbols))]
	}
	out[n-1] = g.ink[g.rng.Intn(len(g.ink))]
	return string(out)
}

// RandomPalette picks a random hue and pairs a light and a dark shade of it,
// swapping them half of the time.
func (g *Generator) RandomPalette() Palette {
	hue := g.rng.Float64() * 360
	light := colorful.Hsv(hue, 0.1+0.3*g.rng.Float64(), 0.85+0.15*g.rng.Float64())
	dark := colorful.Hsv(hue, 0.3+0.7*g.rng.Float64(), 0.25*g.rng.Float64())
	p := Palette{Foreground: toNRGBA(dark), Background: toNRGBA(light)}
	if g.rng.Intn(2) == 1 {
		p.Foreground, p.Background = p.Background, p.Foreground
	}
	return p
}

func toNRGBA(c colorful.Color) color.NRGBA {
	r, gr, b := c.Clamped().RGB255()
	return color.NRGBA{R: r, G: gr, B: b, A: 255}
}

// DefaultPalette is black text on white.
var DefaultPalette = Palette{
	Foreground: color.NRGBA{0, 0, 0, 255},
	Background: color.NRGBA{255, 255, 255, 255},
}

// RenderPatch draws text into a patch of the configured shape. Text longer
// than MaxChars is rejected with the codec's error.
func (g *Generator) RenderPatch(text string, p Palette) (*image.NRGBA, error) {
	if _, err := g.cfg.Codec.Encode(text); err != nil {
		return nil, err
	}
	return renderPatch(text, p, g.cfg.Shape, g.cfg.Codec.MaxChars), nil
}

func renderPatch(text string, p Palette, shape imaging.PatchShape, maxChars int) *image.NRGBA {
	canvas := image.NewNRGBA(image.Rect(0, 0, maxChars*glyphWidth, glyphHeight))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(p.Background), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(p.Foreground),
		Face: basicfont.Face7x13,
	}
	for i, r := range []rune(text) {
		if r == labels.Pad {
			continue
		}
		d.Dot = fixed.P(i*glyphWidth, glyphAscent)
		d.DrawString(string(r))
	}

	scaled := resize.Resize(uint(shape.Width), uint(shape.Height), canvas, resize.NearestNeighbor)
	return imaging.DiscardAlpha(scaled)
}

// RenderDocument lays out rows of cell texts as one image, one patch per
// cell, rows top to bottom and cells left to right. Short rows are filled
// with blank patches.
func (g *Generator) RenderDocument(rows [][]string, p Palette) (*image.NRGBA, error) {
	cols := 0
	for _, row := range rows {
		if len(row) > cols {
			cols = len(row)
		}
	}
	shape := g.cfg.Shape
	doc := image.NewNRGBA(image.Rect(0, 0, cols*shape.Width, len(rows)*shape.Height))
	draw.Draw(doc, doc.Bounds(), image.NewUniform(p.Background), image.Point{}, draw.Src)

	for r, row := range rows {
		for c, text := range row {
			patch, err := g.RenderPatch(text, p)
			if err != nil {
				return nil, fmt.Errorf("row %d cell %d: %w", r, c, err)
			}
			at := image.Pt(c*shape.Width, r*shape.Height)
			draw.Draw(doc, image.Rectangle{Min: at, Max: at.Add(image.Pt(shape.Width, shape.Height))}, patch, image.Point{}, draw.Src)
		}
	}
	return doc, nil
}

// WriteDataset renders count random patches into dir and writes the index
// file. It returns the records in index order.
func (g *Generator) WriteDataset(dir string, count int) ([]dataset.Record, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create dataset directory: %w", err)
	}

	records := make([]dataset.Record, 0, count)
	var index strings.Builder
	for i := 0; i < count; i++ {
		label := g.RandomLabel()
		patch, err := g.RenderPatch(label, g.RandomPalette())
		if err != nil {
			return nil, err
		}
		name := fmt.Sprintf("%06d.png", i)
		if err := imaging.SavePNG(filepath.Join(dir, name), patch); err != nil {
			return nil, err
		}
		records = append(records, dataset.Record{Filename: name, Label: label})
		fmt.Fprintf(&index, "%s,%s\n", name, label)
	}

	if err := os.WriteFile(filepath.Join(dir, dataset.DefaultIndexFile), []byte(index.String()), 0644); err != nil {
		return nil, fmt.Errorf("failed to write index: %w", err)
	}
	g.log.WithFields(logrus.Fields{
		"dir":     dir,
		"records": count,
	}).Info("synthetic dataset written")
	return records, nil
}
