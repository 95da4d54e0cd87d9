package imaging

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestImage writes an NRGBA image to a PNG file in a temp dir and returns its path.
func createTestImage(t *testing.T, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-image.png")

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, png.Encode(f, img))
	return path
}

func TestLoadRGB_DiscardsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	src.SetNRGBA(0, 0, color.NRGBA{200, 100, 50, 0})
	src.SetNRGBA(1, 0, color.NRGBA{10, 20, 30, 128})
	src.SetNRGBA(2, 1, color.NRGBA{1, 2, 3, 255})

	img, err := LoadRGB(createTestImage(t, src))
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 4, 2), img.Bounds())
	assert.Equal(t, color.NRGBA{10, 20, 30, 255}, img.NRGBAAt(1, 0))
	assert.Equal(t, color.NRGBA{1, 2, 3, 255}, img.NRGBAAt(2, 1))
	for i := 3; i < len(img.Pix); i += 4 {
		require.Equal(t, uint8(255), img.Pix[i])
	}
}

func TestLoadRGB_Missing(t *testing.T) {
	_, err := LoadRGB(filepath.Join(t.TempDir(), "nope.png"))
	assert.Error(t, err)
}

func TestLoadRGB_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0644))

	_, err := LoadRGB(path)
	assert.Error(t, err)
}

func TestDiscardAlpha_NormalizesOrigin(t *testing.T) {
	src := image.NewRGBA(image.Rect(5, 5, 8, 7))
	src.Set(5, 5, color.RGBA{255, 0, 0, 255})

	out := DiscardAlpha(src)
	assert.Equal(t, image.Rect(0, 0, 3, 2), out.Bounds())
	assert.Equal(t, color.NRGBA{255, 0, 0, 255}, out.NRGBAAt(0, 0))
}

func TestSavePNG_RoundTrip(t *testing.T) {
	src := createSolidImage(7, 3, color.NRGBA{12, 34, 56, 255})
	path := filepath.Join(t.TempDir(), "out.png")

	require.NoError(t, SavePNG(path, src))

	img, err := LoadRGB(path)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, img.Pix)
}
