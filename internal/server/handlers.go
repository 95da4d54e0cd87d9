package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/ironsheep/deep-ocr/internal/eval"
	"github.com/ironsheep/deep-ocr/internal/imaging"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "ocr_image").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.log.WithError(err).WithField("tool", params.Name).Warn("tool failed")
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "ocr_image":
		return s.handleOCRImage(ctx, args)
	case "ocr_tile_info":
		return s.handleTileInfo(args)
	case "ocr_tile_overlay":
		return s.handleTileOverlay(args)
	case "ocr_score":
		return s.handleScore(args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// imageArgs names the input image either by path or inline as base64.
type imageArgs struct {
	Path        string `json:"path"`
	ImageBase64 string `json:"image_base64"`
}

// load returns the image the arguments name. Exactly one source must be set.
func (a imageArgs) load() (*image.NRGBA, error) {
	switch {
	case a.Path != "" && a.ImageBase64 != "":
		return nil, errors.New("give either path or image_base64, not both")
	case a.ImageBase64 != "":
		return imaging.DecodeRGB(base64.NewDecoder(base64.StdEncoding, strings.NewReader(a.ImageBase64)))
	case a.Path != "":
		return imaging.LoadRGB(a.Path)
	default:
		return nil, errors.New("path or image_base64 is required")
	}
}

func decodeImage(args json.RawMessage) (*image.NRGBA, error) {
	var a imageArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return a.load()
}

func (s *Server) handleOCRImage(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a imageArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Path != "" && a.ImageBase64 == "" {
		return s.orch.RecognizeFile(ctx, a.Path)
	}
	img, err := a.load()
	if err != nil {
		return nil, err
	}
	return s.orch.Recognize(ctx, img)
}

// TileInfo describes how an image would be tiled.
type TileInfo struct {
	Width       int                `json:"width"`
	Height      int                `json:"height"`
	Rows        int                `json:"rows"`
	Cols        int                `json:"cols"`
	Patches     int                `json:"patches"`
	PatchShape  imaging.PatchShape `json:"patch_shape"`
	IgnoredCols int                `json:"ignored_right_px"`
	IgnoredRows int                `json:"ignored_bottom_px"`
}

func (s *Server) handleTileInfo(args json.RawMessage) (interface{}, error) {
	img, err := decodeImage(args)
	if err != nil {
		return nil, err
	}
	shape := s.orch.Config().Shape
	b := img.Bounds()
	rows, cols := imaging.GridShape(b.Dx(), b.Dy(), shape)
	info := &TileInfo{
		Width:       b.Dx(),
		Height:      b.Dy(),
		Rows:        rows,
		Cols:        cols,
		Patches:     rows * cols,
		PatchShape:  shape,
		IgnoredCols: b.Dx() - cols*shape.Width,
		IgnoredRows: b.Dy() - rows*shape.Height,
	}
	return info, nil
}

type tileOverlayArgs struct {
	imageArgs
	LineColor string `json:"line_color"`
}

func (s *Server) handleTileOverlay(args json.RawMessage) (interface{}, error) {
	var a tileOverlayArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.LineColor == "" {
		a.LineColor = "#FF000080"
	}
	img, err := a.load()
	if err != nil {
		return nil, err
	}
	return imaging.TileOverlay(img, s.orch.Config().Shape, a.LineColor)
}

type scoreArgs struct {
	Predicted []string `json:"predicted"`
	Truth     []string `json:"truth"`
}

// ScoreResult is the output of ocr_score.
type ScoreResult struct {
	Score float64   `json:"score"`
	Rows  []float64 `json:"rows"`
}

func (s *Server) handleScore(args json.RawMessage) (interface{}, error) {
	var a scoreArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	score, err := eval.Score(a.Predicted, a.Truth)
	if err != nil {
		return nil, err
	}
	rows := make([]float64, len(a.Truth))
	for i := range a.Truth {
		rows[i] = eval.RowAccuracy(a.Predicted[i], a.Truth[i])
	}
	return &ScoreResult{Score: score, Rows: rows}, nil
}
