package synth

import (
	"bytes"
	"image"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/deep-ocr/internal/dataset"
	"github.com/ironsheep/deep-ocr/internal/imaging"
	"github.com/ironsheep/deep-ocr/internal/labels"
	"github.com/ironsheep/deep-ocr/internal/ocrerr"
)

var smallShape = imaging.PatchShape{Height: 18, Width: 80, Channels: 3}

func newGenerator(t *testing.T, seed int64) *Generator {
	t.Helper()
	codec, err := labels.NewCodec(labels.DefaultAlphabet(), 8)
	require.NoError(t, err)
	log := logrus.New()
	log.SetOutput(io.Discard)
	g, err := New(Config{Shape: smallShape, Codec: codec, Seed: seed, Logger: log})
	require.NoError(t, err)
	return g
}

func samePixels(a, b *image.NRGBA) bool {
	if a.Bounds().Size() != b.Bounds().Size() {
		return false
	}
	ab, bb := a.Bounds(), b.Bounds()
	for y := 0; y < ab.Dy(); y++ {
		ra := a.Pix[a.PixOffset(ab.Min.X, ab.Min.Y+y):][:4*ab.Dx()]
		rb := b.Pix[b.PixOffset(bb.Min.X, bb.Min.Y+y):][:4*bb.Dx()]
		if !bytes.Equal(ra, rb) {
			return false
		}
	}
	return true
}

func TestNew_Validation(t *testing.T) {
	codec, err := labels.NewCodec(labels.DefaultAlphabet(), 8)
	require.NoError(t, err)

	_, err = New(Config{Shape: imaging.PatchShape{Height: 18, Width: 80, Channels: 1}, Codec: codec})
	assert.ErrorIs(t, err, ocrerr.ErrConfig)

	_, err = New(Config{Shape: smallShape})
	assert.ErrorIs(t, err, ocrerr.ErrConfig)

	_, err = New(Config{Shape: smallShape, Codec: codec, MinLen: 6, MaxLen: 3})
	assert.ErrorIs(t, err, ocrerr.ErrConfig)

	comma, err := labels.NewAlphabet("ab, ")
	require.NoError(t, err)
	_, err = New(Config{Shape: smallShape, Codec: labels.Codec{Alphabet: comma, MaxChars: 8}})
	assert.ErrorIs(t, err, ocrerr.ErrConfig)
}

func TestRandomLabel(t *testing.T) {
	g := newGenerator(t, 1)
	alphabet := labels.DefaultAlphabet()

	for i := 0; i < 200; i++ {
		label := []rune(g.RandomLabel())
		require.GreaterOrEqual(t, len(label), 1)
		require.LessOrEqual(t, len(label), 8)
		require.NotEqual(t, labels.Pad, label[len(label)-1])
		for _, r := range label {
			require.True(t, alphabet.Contains(r), "symbol %q", r)
		}
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	a, b := newGenerator(t, 99), newGenerator(t, 99)
	for i := 0; i < 10; i++ {
		la, lb := a.RandomLabel(), b.RandomLabel()
		require.Equal(t, la, lb)
		pa, pb := a.RandomPalette(), b.RandomPalette()
		require.Equal(t, pa, pb)
	}

	c := newGenerator(t, 100)
	var differ bool
	for i := 0; i < 10; i++ {
		if a.RandomLabel() != c.RandomLabel() {
			differ = true
		}
	}
	assert.True(t, differ)
}

func TestRandomPalette_Contrast(t *testing.T) {
	g := newGenerator(t, 3)
	for i := 0; i < 50; i++ {
		p := g.RandomPalette()
		assert.NotEqual(t, p.Foreground, p.Background)
		assert.Equal(t, uint8(255), p.Foreground.A)
		assert.Equal(t, uint8(255), p.Background.A)
	}
}

func TestRenderPatch_Shape(t *testing.T) {
	g := newGenerator(t, 1)

	patch, err := g.RenderPatch("Hello 42", DefaultPalette)
	require.NoError(t, err)
	assert.True(t, smallShape.Fits(patch))

	_, err = g.RenderPatch("way too long", DefaultPalette)
	assert.ErrorIs(t, err, labels.ErrLabelTooLong)

	_, err = g.RenderPatch("a-b", DefaultPalette)
	assert.ErrorIs(t, err, labels.ErrUnknownSymbol)
}

func TestRenderPatch_BlankIsBackground(t *testing.T) {
	g := newGenerator(t, 1)
	patch, err := g.RenderPatch("", DefaultPalette)
	require.NoError(t, err)

	for y := 0; y < smallShape.Height; y++ {
		for x := 0; x < smallShape.Width; x++ {
			require.Equal(t, DefaultPalette.Background, patch.NRGBAAt(x, y))
		}
	}
}

func TestRenderPatch_GlyphStaysInItsSlab(t *testing.T) {
	g := newGenerator(t, 1)
	// 8 chars over 80 px gives 10 px slabs
	patch, err := g.RenderPatch("W", DefaultPalette)
	require.NoError(t, err)

	var inked bool
	for y := 0; y < smallShape.Height; y++ {
		for x := 0; x < smallShape.Width; x++ {
			if patch.NRGBAAt(x, y) == DefaultPalette.Background {
				continue
			}
			inked = true
			require.Less(t, x, 11, "ink outside the first slab at x=%d", x)
		}
	}
	assert.True(t, inked)
}

func TestRenderDocument_TilesBackToCells(t *testing.T) {
	g := newGenerator(t, 1)
	rows := [][]string{{"HELLO", "there"}, {"WORLD"}}

	doc, err := g.RenderDocument(rows, DefaultPalette)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2*smallShape.Width, 2*smallShape.Height), doc.Bounds())

	grid := imaging.Tile(doc, smallShape)
	require.Equal(t, 2, grid.Rows)
	require.Equal(t, 2, grid.Cols)

	want := []string{"HELLO", "there", "WORLD", ""}
	for i, text := range want {
		patch, err := g.RenderPatch(text, DefaultPalette)
		require.NoError(t, err)
		assert.True(t, samePixels(patch, grid.Patches[i]), "cell %d", i)
	}
}

func TestWriteDataset_LoadsBack(t *testing.T) {
	g := newGenerator(t, 5)
	dir := t.TempDir()

	records, err := g.WriteDataset(dir, 12)
	require.NoError(t, err)
	require.Len(t, records, 12)

	ds, err := dataset.Load(dir, dataset.Options{Shape: smallShape, Codec: g.cfg.Codec, Logger: g.log})
	require.NoError(t, err)
	require.Equal(t, 12, ds.Len())
	for i, rec := range records {
		assert.Equal(t, rec.Filename, ds.Filenames[i])
		assert.Equal(t, rec.Label, ds.Raw[i])
	}
}
