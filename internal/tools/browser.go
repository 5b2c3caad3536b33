package tools

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/vowser/controlhub/internal/logging"
	"github.com/vowser/controlhub/internal/types"
)

// Tool names as clients call them.
const (
	NameNavigate  = "navigate"
	NameClick     = "clickElement"
	NameGoBack    = "goBack"
	NameGoForward = "goForward"
)

// DefaultDescription is used by tools that carry no description of their own.
func DefaultDescription(name string) string {
	return "Browser automation tool: " + name
}

// BrowserTools returns the built-in tool set bound to c.
func BrowserTools(c Commander) []Tool {
	return []Tool{
		&NavigateTool{browserTool{c}},
		&ClickTool{browserTool{c}},
		&GoBackTool{browserTool{c}},
		&GoForwardTool{browserTool{c}},
	}
}

// browserTool is embedded by tools that act on the active client. They are
// only available while a client is connected.
type browserTool struct {
	commander Commander
}

func (b *browserTool) IsAvailable() bool {
	return b.commander != nil && b.commander.ActiveCount() > 0
}

func objectSchema(props map[string]*jsonschema.Schema) *jsonschema.Schema {
	if props == nil {
		props = map[string]*jsonschema.Schema{}
	}
	return &jsonschema.Schema{Type: "object", Properties: props}
}

// NavigateTool opens a URL in the client browser.
type NavigateTool struct {
	browserTool
}

type navigateArgs struct {
	URL string `json:"url"`
}

func (t *NavigateTool) Name() string { return NameNavigate }

func (t *NavigateTool) Description() string { return "Navigates browser to a specified URL" }

func (t *NavigateTool) Schema() *jsonschema.Schema {
	return objectSchema(map[string]*jsonschema.Schema{
		"url": {Type: "string", Description: "Target URL; https:// is assumed when no scheme is given"},
	})
}

func (t *NavigateTool) Execute(_ context.Context, raw json.RawMessage) (types.ToolResult, error) {
	var args navigateArgs
	if err := decodeArgs(raw, &args); err != nil {
		return types.ToolResult{}, err
	}
	logging.Infof("[Tools] navigate: url=%s", args.URL)

	if strings.TrimSpace(args.URL) == "" {
		return types.ErrorResult("error: URL is empty"), nil
	}
	target := normalizeURL(args.URL)
	if !validURL(target) {
		logging.Warnf("[Tools] navigate: invalid URL %s", target)
		return types.ErrorResult("error: invalid URL format - " + target), nil
	}

	t.commander.SendCommand(types.Command{"action": types.ActionNavigate, "url": target})
	return types.TextResult("Successfully navigated to: " + target), nil
}

func normalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return "https://" + s
	}
	return s
}

func validURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Host != "" && !strings.ContainsAny(u.Host, " \t")
}

// ClickTool clicks an element by CSS selector or id.
type ClickTool struct {
	browserTool
}

type clickArgs struct {
	ElementID string `json:"elementId"`
}

func (t *ClickTool) Name() string { return NameClick }

func (t *ClickTool) Description() string {
	return "Clicks on a specified element using CSS selector or element ID"
}

func (t *ClickTool) Schema() *jsonschema.Schema {
	return objectSchema(map[string]*jsonschema.Schema{
		"elementId": {Type: "string", Description: "CSS selector or element id"},
	})
}

func (t *ClickTool) Execute(_ context.Context, raw json.RawMessage) (types.ToolResult, error) {
	var args clickArgs
	if err := decodeArgs(raw, &args); err != nil {
		return types.ToolResult{}, err
	}
	logging.Infof("[Tools] click: elementId=%s", args.ElementID)

	if strings.TrimSpace(args.ElementID) == "" {
		return types.ErrorResult("error: element id is empty"), nil
	}

	t.commander.SendCommand(types.Command{"action": types.ActionClick, "selector": args.ElementID})
	return types.TextResult("Successfully clicked element: '" + args.ElementID + "'"), nil
}
