package classifier_test

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/deep-ocr/internal/classifier"
	"github.com/ironsheep/deep-ocr/internal/classifier/stub"
	"github.com/ironsheep/deep-ocr/internal/imaging"
	"github.com/ironsheep/deep-ocr/internal/labels"
	"github.com/ironsheep/deep-ocr/internal/ocrerr"
)

var testShape = imaging.PatchShape{Height: 2, Width: 8, Channels: 3}

func testCodec(t *testing.T) labels.Codec {
	t.Helper()
	codec, err := labels.NewCodec(labels.DefaultAlphabet(), 8)
	require.NoError(t, err)
	return codec
}

// numberedPatches returns n distinct patches; the oracle reads the number back.
func numberedPatches(n int) []*image.NRGBA {
	out := make([]*image.NRGBA, n)
	for i := range out {
		p := image.NewNRGBA(image.Rect(0, 0, testShape.Width, testShape.Height))
		p.SetNRGBA(0, 0, color.NRGBA{uint8(i), uint8(i >> 8), 0, 255})
		out[i] = p
	}
	return out
}

func numberOracle(p *image.NRGBA) string {
	c := p.NRGBAAt(0, 0)
	return fmt.Sprintf("n%d", int(c.R)|int(c.G)<<8)
}

type failingClassifier struct {
	*stub.Classifier
	failAfter int
	calls     int
}

func (f *failingClassifier) Predict(ctx context.Context, patches []*image.NRGBA) ([]labels.Sequence, error) {
	f.calls++
	if f.calls > f.failAfter {
		return nil, errors.New("boom")
	}
	return f.Classifier.Predict(ctx, patches)
}

func TestPredictChunked_MatchesSingleBatch(t *testing.T) {
	ctx := context.Background()
	patches := numberedPatches(100)

	for _, tt := range []struct {
		chunk, workers int
	}{
		{32, 1},
		{32, 4},
		{7, 3},
		{1, 1},
		{1000, 2},
	} {
		t.Run(fmt.Sprintf("chunk=%d/workers=%d", tt.chunk, tt.workers), func(t *testing.T) {
			c := stub.New(testCodec(t))
			c.Oracle = numberOracle

			single, err := c.Predict(ctx, patches)
			require.NoError(t, err)

			chunked, err := classifier.PredictChunked(ctx, c, patches, tt.chunk, tt.workers)
			require.NoError(t, err)
			assert.Equal(t, single, chunked)

			for _, n := range c.PredictCalls()[1:] {
				assert.LessOrEqual(t, n, tt.chunk)
			}
		})
	}
}

func TestPredictChunked_PreservesOrder(t *testing.T) {
	c := stub.New(testCodec(t))
	c.Oracle = numberOracle

	got, err := classifier.PredictChunked(context.Background(), c, numberedPatches(65), 32, 3)
	require.NoError(t, err)
	require.Len(t, got, 65)
	for i, s := range got {
		assert.Equal(t, fmt.Sprintf("n%d", i), labels.TrimPadding(labels.Decode(s)))
	}
}

func TestPredictChunked_Empty(t *testing.T) {
	c := stub.New(testCodec(t))

	got, err := classifier.PredictChunked(context.Background(), c, nil, 32, 1)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, c.PredictCalls())
}

func TestPredictChunked_PropagatesError(t *testing.T) {
	f := &failingClassifier{Classifier: stub.New(testCodec(t)), failAfter: 1}

	_, err := classifier.PredictChunked(context.Background(), f, numberedPatches(10), 4, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestPredictChunked_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := classifier.PredictChunked(ctx, stub.New(testCodec(t)), numberedPatches(3), 1, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClasses_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), classifier.ClassesFile)
	alphabet := labels.DefaultAlphabet()

	require.NoError(t, classifier.SaveClasses(path, alphabet))
	got, err := classifier.LoadClasses(path)
	require.NoError(t, err)
	assert.True(t, alphabet.Equal(got))
}

func TestLoadClasses_TrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), classifier.ClassesFile)
	require.NoError(t, os.WriteFile(path, []byte("a\nb\n \n"), 0644))

	got, err := classifier.LoadClasses(path)
	require.NoError(t, err)
	assert.Equal(t, "ab ", got.String())
}

func TestLoadClasses_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := classifier.LoadClasses(filepath.Join(dir, "missing.txt"))
	assert.ErrorIs(t, err, ocrerr.ErrConfig)

	bad := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(bad, []byte("a\nbc\n "), 0644))
	_, err = classifier.LoadClasses(bad)
	assert.ErrorIs(t, err, ocrerr.ErrConfig)

	dup := filepath.Join(dir, "dup.txt")
	require.NoError(t, os.WriteFile(dup, []byte("a\na\n "), 0644))
	_, err = classifier.LoadClasses(dup)
	assert.ErrorIs(t, err, ocrerr.ErrConfig)
}

func TestCheckShapes(t *testing.T) {
	patches := numberedPatches(3)
	assert.NoError(t, classifier.CheckShapes(testShape, patches))

	patches = append(patches, image.NewNRGBA(image.Rect(0, 0, 3, 3)))
	err := classifier.CheckShapes(testShape, patches)
	assert.ErrorIs(t, err, ocrerr.ErrConfig)
}

func TestCheckTargets(t *testing.T) {
	codec := testCodec(t)
	patches := numberedPatches(2)
	a, err := codec.Encode("a")
	require.NoError(t, err)

	assert.NoError(t, classifier.CheckTargets(codec, patches, []labels.Sequence{a, a}))
	assert.Error(t, classifier.CheckTargets(codec, patches, []labels.Sequence{a}))
	assert.Error(t, classifier.CheckTargets(codec, patches, []labels.Sequence{a, labels.Sequence("a")}))
}

func TestClose_NoCloser(t *testing.T) {
	assert.NoError(t, classifier.Close(stub.New(testCodec(t))))
}
