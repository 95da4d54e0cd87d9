package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/deep-ocr/internal/classifier/stub"
	"github.com/ironsheep/deep-ocr/internal/imaging"
	"github.com/ironsheep/deep-ocr/internal/labels"
	"github.com/ironsheep/deep-ocr/internal/pipeline"
)

var testShape = imaging.PatchShape{Height: 4, Width: 12, Channels: 3}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// newTestServer builds a server over a stub classifier that reads every
// light patch as "HI" and every dark patch as "LO".
func newTestServer(t *testing.T) *Server {
	t.Helper()
	codec, err := labels.NewCodec(labels.DefaultAlphabet(), 6)
	require.NoError(t, err)
	cfg := pipeline.DefaultConfig()
	cfg.Shape = testShape
	cfg.Codec = codec
	cfg.ModelDir = filepath.Join(t.TempDir(), "model")
	cfg.DataDir = t.TempDir()

	clf := stub.New(codec)
	clf.Oracle = func(p *image.NRGBA) string {
		c := p.NRGBAAt(p.Bounds().Min.X, p.Bounds().Min.Y)
		if c.R > 128 {
			return "HI"
		}
		return "LO"
	}
	orch, err := pipeline.New(clf, cfg, quietLogger())
	require.NoError(t, err)
	return New(orch, quietLogger(), "test")
}

// writeDocument saves a two-row, two-column document: a light top row and a
// dark bottom row, plus a 3px right and 1px bottom remainder.
func writeDocument(t *testing.T) string {
	t.Helper()
	w, h := 2*testShape.Width+3, 2*testShape.Height+1
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		shade := uint8(240)
		if y >= testShape.Height {
			shade = 20
		}
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{shade, shade, shade, 255})
		}
	}
	path := filepath.Join(t.TempDir(), "doc.png")
	require.NoError(t, imaging.SavePNG(path, img))
	return path
}

// encodeDocument returns the document written by writeDocument as base64.
func encodeDocument(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(writeDocument(t))
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(data)
}

func callTool(t *testing.T, s *Server, name string, args interface{}) *MCPResponse {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	params, err := json.Marshal(ToolCallParams{Name: name, Arguments: raw})
	require.NoError(t, err)
	return s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  params,
	})
}

// toolText extracts the JSON text payload of a successful tool response and
// decodes it into out.
func toolText(t *testing.T, resp *MCPResponse, out interface{}) {
	t.Helper()
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(map[string]interface{})
	require.True(t, ok, "Result is %T", resp.Result)
	content, ok := result["content"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, content, 1)
	text, _ := content[0]["text"].(string)
	require.NoError(t, json.Unmarshal([]byte(text), out), "tool text %q", text)
}
