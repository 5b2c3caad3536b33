package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/vowser/controlhub/internal/crashlog"
	"github.com/vowser/controlhub/internal/logging"
	"github.com/vowser/controlhub/internal/types"
)

// ErrInvalidArguments marks an argument conversion failure. Tools wrap their
// decode errors with it so callers can tell bad input from a failed run.
var ErrInvalidArguments = errors.New("invalid arguments")

// Tool interface that all tools must implement
type Tool interface {
	// Name returns the tool's unique name
	Name() string

	// Description returns a one-line summary for clients
	Description() string

	// Schema returns the JSON schema for the tool's arguments
	Schema() *jsonschema.Schema

	// Execute runs the tool. Expected failures come back as an error
	// ToolResult; a returned error means the tool itself broke.
	Execute(ctx context.Context, args json.RawMessage) (types.ToolResult, error)

	// IsAvailable reports whether the tool can deliver its effect right now
	IsAvailable() bool
}

// Commander is the part of the control service tools push commands through.
type Commander interface {
	SendCommand(cmd types.Command)
	ActiveCount() int
}

type entry struct {
	tool     Tool
	resolved *jsonschema.Resolved
}

// Registry manages available tools
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*entry
	order []string
}

// NewRegistry creates a registry holding the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]*entry)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds a tool. A second tool with an existing name is ignored so
// the first registration wins.
func (r *Registry) Register(tool Tool) bool {
	e := &entry{tool: tool}
	if s := tool.Schema(); s != nil {
		resolved, err := s.Resolve(nil)
		if err != nil {
			logging.Warnf("[Tools] schema for %s does not resolve, arguments will not be validated: %v", tool.Name(), err)
		} else {
			e.resolved = resolved
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.tools[tool.Name()]; ok {
		logging.Warnf("[Tools] tool %q already registered (%T), ignoring %T", tool.Name(), existing.tool, tool)
		return false
	}
	r.tools[tool.Name()] = e
	r.order = append(r.order, tool.Name())
	return true
}

// Lookup returns a tool by name
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		logging.Debugf("[Tools] lookup miss: %s", name)
		return nil, false
	}
	return e.tool, true
}

// List returns all tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].tool)
	}
	return out
}

// AvailableNames returns the names of tools whose IsAvailable holds now.
func (r *Registry) AvailableNames() []string {
	names := []string{}
	for _, t := range r.List() {
		if t.IsAvailable() {
			names = append(names, t.Name())
		}
	}
	return names
}

// Call runs the dispatch path shared by every caller: lookup, availability
// gate, argument conversion, execution. It always returns a well-formed
// result.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (result types.ToolResult) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		logging.Warnf("[Tools] unknown tool: %s", name)
		return types.ErrorResult("tool not found: " + name)
	}
	if !e.tool.IsAvailable() {
		logging.Warnf("[Tools] tool not available: %s", name)
		return types.ErrorResult("tool not available: " + name)
	}

	args = normalizeArgs(args)
	if err := e.validate(args); err != nil {
		return types.ErrorResult("argument conversion failed: " + err.Error())
	}

	defer func() {
		if rec := recover(); rec != nil {
			crashlog.LogPanic("tools", rec, map[string]string{"tool": name})
			result = types.ErrorResult(fmt.Sprintf("tool execution failed: %v", rec))
		}
	}()

	logging.Infof("[Tools] executing tool: %s", name)
	res, err := e.tool.Execute(ctx, args)
	if err != nil {
		if errors.Is(err, ErrInvalidArguments) {
			return types.ErrorResult("argument conversion failed: " + err.Error())
		}
		logging.Errorf("[Tools] tool %s failed: %v", name, err)
		return types.ErrorResult("tool execution failed: " + err.Error())
	}
	if res.Content == nil {
		res.Content = []types.Content{}
	}
	return res
}

func (e *entry) validate(args json.RawMessage) error {
	var instance any
	if err := json.Unmarshal(args, &instance); err != nil {
		return err
	}
	if e.resolved == nil {
		return nil
	}
	return e.resolved.Validate(instance)
}

// normalizeArgs maps absent or null args to an empty object.
func normalizeArgs(args json.RawMessage) json.RawMessage {
	if len(args) == 0 || string(args) == "null" {
		return json.RawMessage("{}")
	}
	return args
}

// decodeArgs unmarshals args into v, wrapping failures in ErrInvalidArguments.
func decodeArgs(args json.RawMessage, v any) error {
	if err := json.Unmarshal(normalizeArgs(args), v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}
