package convnet

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/deep-ocr/internal/classifier"
	"github.com/ironsheep/deep-ocr/internal/imaging"
	"github.com/ironsheep/deep-ocr/internal/labels"
	"github.com/ironsheep/deep-ocr/internal/ocrerr"
)

var _ classifier.Classifier = (*Network)(nil)

var (
	tinyShape   = imaging.PatchShape{Height: 2, Width: 8, Channels: 3}
	symbolColor = map[rune]color.NRGBA{
		'a': {255, 0, 0, 255},
		'b': {0, 255, 0, 255},
		' ': {255, 255, 255, 255},
	}
)

func tinyConfig(t *testing.T) Config {
	t.Helper()
	alphabet, err := labels.NewAlphabet("ab ")
	require.NoError(t, err)
	codec, err := labels.NewCodec(alphabet, 4)
	require.NoError(t, err)

	cfg := DefaultConfig(tinyShape, codec)
	cfg.Hidden = 8
	cfg.BatchSize = 16
	cfg.LearnRate = 0.05
	cfg.MaxIterations = 200
	cfg.Tolerance = 1e-3
	cfg.Seed = 7
	return cfg
}

// renderTiny paints each 2-pixel slab of a patch in the color of its symbol.
func renderTiny(s string) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, tinyShape.Width, tinyShape.Height))
	for i, r := range []rune(s) {
		for y := 0; y < tinyShape.Height; y++ {
			img.SetNRGBA(2*i, y, symbolColor[r])
			img.SetNRGBA(2*i+1, y, symbolColor[r])
		}
	}
	return img
}

// tinyDataset returns every 4-symbol string over "ab " rendered as patches.
func tinyDataset(t *testing.T, codec labels.Codec) ([]*image.NRGBA, []labels.Sequence) {
	t.Helper()
	symbols := []rune("ab ")
	var patches []*image.NRGBA
	var targets []labels.Sequence
	for i := 0; i < 81; i++ {
		s := make([]rune, 4)
		v := i
		for j := range s {
			s[j] = symbols[v%3]
			v /= 3
		}
		seq, err := codec.Encode(string(s))
		require.NoError(t, err)
		patches = append(patches, renderTiny(string(s)))
		targets = append(targets, seq)
	}
	return patches, targets
}

func TestNew_RejectsIndivisibleWidth(t *testing.T) {
	cfg := tinyConfig(t)
	cfg.Shape = imaging.PatchShape{Height: 2, Width: 9, Channels: 3}

	_, err := New(cfg)
	assert.ErrorIs(t, err, ocrerr.ErrConfig)
}

func TestPredict_BeforeTraining(t *testing.T) {
	n, err := New(tinyConfig(t))
	require.NoError(t, err)

	_, err = n.Predict(context.Background(), []*image.NRGBA{renderTiny("ab  ")})
	assert.Error(t, err)
}

func TestFitPredict_LearnsSlabColors(t *testing.T) {
	cfg := tinyConfig(t)
	n, err := New(cfg)
	require.NoError(t, err)

	patches, targets := tinyDataset(t, cfg.Codec)
	require.NoError(t, n.Fit(context.Background(), patches, targets))

	got, err := n.Predict(context.Background(), patches)
	require.NoError(t, err)
	assert.Equal(t, targets, got)
}

func TestPredict_ChunkedIsIdentical(t *testing.T) {
	cfg := tinyConfig(t)
	cfg.MaxIterations = 5
	n, err := New(cfg)
	require.NoError(t, err)

	patches, targets := tinyDataset(t, cfg.Codec)
	require.NoError(t, n.Fit(context.Background(), patches, targets))

	single, err := n.Predict(context.Background(), patches)
	require.NoError(t, err)
	chunked, err := classifier.PredictChunked(context.Background(), n, patches, 32, 4)
	require.NoError(t, err)
	assert.Equal(t, single, chunked)
}

func TestPredict_WrongShape(t *testing.T) {
	cfg := tinyConfig(t)
	cfg.MaxIterations = 1
	n, err := New(cfg)
	require.NoError(t, err)
	patches, targets := tinyDataset(t, cfg.Codec)
	require.NoError(t, n.Fit(context.Background(), patches, targets))

	_, err = n.Predict(context.Background(), []*image.NRGBA{image.NewNRGBA(image.Rect(0, 0, 4, 4))})
	assert.ErrorIs(t, err, ocrerr.ErrConfig)
}

func TestFit_RejectsMisalignedTargets(t *testing.T) {
	cfg := tinyConfig(t)
	n, err := New(cfg)
	require.NoError(t, err)
	patches, targets := tinyDataset(t, cfg.Codec)

	err = n.Fit(context.Background(), patches, targets[:3])
	assert.ErrorIs(t, err, ocrerr.ErrConfig)
}

func TestFit_ContinuesTraining(t *testing.T) {
	cfg := tinyConfig(t)
	n, err := New(cfg)
	require.NoError(t, err)
	patches, targets := tinyDataset(t, cfg.Codec)

	n.SetMaxIterations(0)
	require.NoError(t, n.Fit(context.Background(), patches, targets))
	before := headKernel(t, n)

	n.SetMaxIterations(1)
	require.NoError(t, n.Fit(context.Background(), patches, targets))
	assert.NotEqual(t, before, headKernel(t, n))
}

// headKernel copies the output convolution's weights.
func headKernel(t *testing.T, n *Network) []float64 {
	t.Helper()
	_, head, err := n.layers(n.net)
	require.NoError(t, err)
	return floats(head.Filters.Vector)
}

func TestFit_Cancelled(t *testing.T) {
	cfg := tinyConfig(t)
	n, err := New(cfg)
	require.NoError(t, err)
	patches, targets := tinyDataset(t, cfg.Codec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Fit(ctx, patches, targets), context.Canceled)
}

func TestSaveRestore_RoundTrip(t *testing.T) {
	cfg := tinyConfig(t)
	cfg.MaxIterations = 20
	n, err := New(cfg)
	require.NoError(t, err)
	patches, targets := tinyDataset(t, cfg.Codec)
	require.NoError(t, n.Fit(context.Background(), patches, targets))

	path := filepath.Join(t.TempDir(), "model", "ocrnet.bin")
	require.NoError(t, n.Save(path))

	restored, err := New(cfg)
	require.NoError(t, err)
	ok, err := restored.Restore(path)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, restored.RestoreClasses(cfg.Codec.Alphabet))

	want, err := n.Predict(context.Background(), patches)
	require.NoError(t, err)
	got, err := restored.Predict(context.Background(), patches)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRestore_Missing(t *testing.T) {
	n, err := New(tinyConfig(t))
	require.NoError(t, err)

	ok, err := n.Restore(filepath.Join(t.TempDir(), "absent.bin"))
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestRestore_Corrupt(t *testing.T) {
	n, err := New(tinyConfig(t))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "corrupt.bin")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))
	ok, err := n.Restore(path)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestRestore_GeometryMismatch(t *testing.T) {
	cfg := tinyConfig(t)
	cfg.MaxIterations = 1
	n, err := New(cfg)
	require.NoError(t, err)
	patches, targets := tinyDataset(t, cfg.Codec)
	require.NoError(t, n.Fit(context.Background(), patches, targets))
	path := filepath.Join(t.TempDir(), "ocrnet.bin")
	require.NoError(t, n.Save(path))

	other := cfg
	other.Shape = imaging.PatchShape{Height: 4, Width: 8, Channels: 3}
	m, err := New(other)
	require.NoError(t, err)
	_, err = m.Restore(path)
	assert.ErrorIs(t, err, ocrerr.ErrConfig)

	alphabet, err := labels.NewAlphabet("ba ")
	require.NoError(t, err)
	other = cfg
	other.Codec = labels.Codec{Alphabet: alphabet, MaxChars: 4}
	m, err = New(other)
	require.NoError(t, err)
	_, err = m.Restore(path)
	assert.ErrorIs(t, err, ocrerr.ErrConfig)
}

func TestRestoreClasses_Mismatch(t *testing.T) {
	n, err := New(tinyConfig(t))
	require.NoError(t, err)

	assert.ErrorIs(t, n.RestoreClasses(labels.DefaultAlphabet()), ocrerr.ErrConfig)
}

func TestSave_Untrained(t *testing.T) {
	n, err := New(tinyConfig(t))
	require.NoError(t, err)
	assert.Error(t, n.Save(filepath.Join(t.TempDir(), "m.bin")))
}
