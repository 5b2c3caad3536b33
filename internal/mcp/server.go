// Package mcp exposes the browser tool registry over the Model Context
// Protocol so external agents can drive connected clients.
package mcp

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vowser/controlhub/internal/crashlog"
	"github.com/vowser/controlhub/internal/logging"
	"github.com/vowser/controlhub/internal/tools"
	"github.com/vowser/controlhub/internal/types"
)

// Server adapts a tools.Registry to an MCP server.
type Server struct {
	registry *tools.Registry
	server   *mcp.Server
}

// NewServer creates an MCP server with every registry tool registered.
func NewServer(registry *tools.Registry, version string) *Server {
	if version == "" {
		version = "dev"
	}
	s := &Server{
		registry: registry,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "controlhub",
			Version: version,
		}, nil),
	}
	for _, tool := range registry.List() {
		s.server.AddTool(&mcp.Tool{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.Schema(),
		}, s.createToolHandler(tool.Name()))
	}
	return s
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

// Handler serves the streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}

func (s *Server) createToolHandler(toolName string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (retResult *mcp.CallToolResult, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				crashlog.LogPanic("mcp", r, map[string]string{"tool": toolName})
				retResult = &mcp.CallToolResult{
					Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("tool execution failed: %v", r)}},
					IsError: true,
				}
				retErr = nil
			}
		}()

		args := req.Params.Arguments
		logging.Infof("[MCP] tool call received: %s input=%s", toolName, logging.Truncate(string(args), 200))

		result := s.registry.Call(ctx, toolName, args)
		logging.Infof("[MCP] tool %s result: isError=%v", toolName, result.IsError)

		return toCallToolResult(result), nil
	}
}

func toCallToolResult(r types.ToolResult) *mcp.CallToolResult {
	out := &mcp.CallToolResult{IsError: r.IsError}
	for _, c := range r.Content {
		switch c.Type {
		case types.ContentImage:
			data, err := base64.StdEncoding.DecodeString(c.Data)
			if err != nil {
				out.Content = append(out.Content, &mcp.TextContent{Text: "invalid image data: " + err.Error()})
				continue
			}
			out.Content = append(out.Content, &mcp.ImageContent{Data: data, MIMEType: c.MimeType})
		default:
			out.Content = append(out.Content, &mcp.TextContent{Text: c.Text})
		}
	}
	if len(out.Content) == 0 {
		out.Content = []mcp.Content{&mcp.TextContent{Text: ""}}
	}
	return out
}
