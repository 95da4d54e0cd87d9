// Package server exposes strip-tiling OCR as an MCP (Model Context Protocol)
// tool server.
//
// # Protocol
//
// The server speaks JSON-RPC 2.0 over a pair of streams, normally stdio:
//   - Input: one request per line
//   - Output: one response per line
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
//   - ocr_image: Recognize the text of an image file
//   - ocr_tile_info: Report the strip grid an image would be cut into
//   - ocr_tile_overlay: Render that grid over the image as PNG
//   - ocr_score: Score predicted strings against ground truth
//
// The orchestrator passed to New must already be started, so every tool call
// is inference only. The model is never retrained from a tool call.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with code
// -32000 and the Go error string as data. Malformed tools/call params yield
// -32602 and unknown methods -32601.
package server
