package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the image file",
	}
}

func base64Property() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Image file contents encoded as standard base64. Use instead of path",
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "ocr_image",
			Description: "Read the text of a document image. The image is cut into fixed-size strips, each strip is recognized, and the strips are joined back into lines in reading order.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":         pathProperty(),
					"image_base64": base64Property(),
				},
			},
		},
		{
			Name:        "ocr_tile_info",
			Description: "Report the image size and how many strip rows and columns recognition would use. Pixels beyond the last full strip are ignored.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":         pathProperty(),
					"image_base64": base64Property(),
				},
			},
		},
		{
			Name:        "ocr_tile_overlay",
			Description: "Draw the strip grid over an image and return it as base64-encoded PNG. The ignored remainder is shaded.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":         pathProperty(),
					"image_base64": base64Property(),
					"line_color": map[string]interface{}{
						"type":        "string",
						"description": "Grid line color in hex format (e.g., '#FF000080'). Default: semi-transparent red",
						"default":     "#FF000080",
					},
				},
			},
		},
		{
			Name:        "ocr_score",
			Description: "Score predicted strings against ground truth: per-character accuracy over the shorter of each pair, averaged per row and then over rows.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"predicted": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Predicted strings, one per row",
					},
					"truth": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Ground truth strings, same length as predicted",
					},
				},
				"required": []string{"predicted", "truth"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
