package types

import "encoding/json"

// Content block kinds carried in a ToolResult.
const (
	ContentText  = "text"
	ContentImage = "image"
)

// Content is one block of a ToolResult.
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// TextContent returns a text block.
func TextContent(text string) Content {
	return Content{Type: ContentText, Text: text}
}

// ImageContent returns a base64 image block.
func ImageContent(data, mimeType string) Content {
	return Content{Type: ContentImage, Data: data, MimeType: mimeType}
}

// ToolResult is the uniform envelope returned by tools and pushed to clients.
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError"`
}

// TextResult is a successful single-text result.
func TextResult(text string) ToolResult {
	return ToolResult{Content: []Content{TextContent(text)}}
}

// ErrorResult is a failed single-text result.
func ErrorResult(text string) ToolResult {
	return ToolResult{Content: []Content{TextContent(text)}, IsError: true}
}

// Text joins the text blocks of r.
func (r ToolResult) Text() string {
	var s string
	for _, c := range r.Content {
		if c.Type != ContentText {
			continue
		}
		if s != "" {
			s += "\n"
		}
		s += c.Text
	}
	return s
}

// CallToolRequest is the downstream tool-call frame.
type CallToolRequest struct {
	ToolName string          `json:"toolName"`
	Args     json.RawMessage `json:"args"`
}

// Command is an ad hoc message pushed to a downstream client or sent
// upstream. Only the type discriminator is interpreted.
type Command map[string]any

// NewCommand builds {type, data}.
func NewCommand(typ string, data any) Command {
	return Command{"type": typ, "data": data}
}

// Type returns the discriminator, or "".
func (c Command) Type() string {
	s, _ := c["type"].(string)
	return s
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status            string `json:"status"`
	UpstreamConnected bool   `json:"upstreamConnected"`
	ActiveSessions    int    `json:"activeSessions"`
}

// MessageResponse is the generic {message} reply of the browser-control endpoints.
type MessageResponse struct {
	Message   string `json:"message"`
	PathCount *int   `json:"pathCount,omitempty"`
}
