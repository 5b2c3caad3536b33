package tools

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/vowser/controlhub/internal/logging"
	"github.com/vowser/controlhub/internal/types"
)

// GoBackTool moves the client browser one entry back in history.
type GoBackTool struct {
	browserTool
}

func (t *GoBackTool) Name() string { return NameGoBack }

func (t *GoBackTool) Description() string {
	return "Navigates back to the previous page in browser history"
}

// Schema accepts an optional placeholder so clients that always send an
// argument object still validate.
func (t *GoBackTool) Schema() *jsonschema.Schema {
	return objectSchema(map[string]*jsonschema.Schema{
		"placeholder": {Type: "string"},
	})
}

func (t *GoBackTool) Execute(_ context.Context, raw json.RawMessage) (types.ToolResult, error) {
	var args struct {
		Placeholder string `json:"placeholder"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return types.ToolResult{}, err
	}
	logging.Infof("[Tools] goBack")

	t.commander.SendCommand(types.Command{"action": types.ActionGoBack})
	return types.TextResult("browser navigation: go back command sent to client"), nil
}

// GoForwardTool moves the client browser one entry forward in history.
type GoForwardTool struct {
	browserTool
}

func (t *GoForwardTool) Name() string { return NameGoForward }

func (t *GoForwardTool) Description() string {
	return "Navigates forward to the next page in browser history"
}

func (t *GoForwardTool) Schema() *jsonschema.Schema { return objectSchema(nil) }

func (t *GoForwardTool) Execute(_ context.Context, raw json.RawMessage) (types.ToolResult, error) {
	var args struct{}
	if err := decodeArgs(raw, &args); err != nil {
		return types.ToolResult{}, err
	}
	logging.Infof("[Tools] goForward")

	t.commander.SendCommand(types.Command{"action": types.ActionGoForward})
	return types.TextResult("browser navigation: go forward command sent to client"), nil
}
