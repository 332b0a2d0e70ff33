package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"devteam/pkg/logx"
	"devteam/pkg/metrics"
)

// Registry errors.
var (
	ErrDuplicateTool    = errors.New("tool already registered")
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// Registry holds the tools available to agents for one engine instance and
// mediates every invocation: argument validation, logging, and metrics.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	logger   *logx.Logger
	recorder *metrics.Recorder
}

// NewRegistry creates an empty registry. The recorder may be nil.
func NewRegistry(recorder *metrics.Recorder) *Registry {
	return &Registry{
		tools:    make(map[string]Tool),
		logger:   logx.NewLogger("tools"),
		recorder: recorder,
	}
}

// Register adds a tool. Registering a second tool with the same name fails.
func (r *Registry) Register(tool Tool) error {
	name := tool.Definition().Name
	if name == "" {
		return fmt.Errorf("%w: tool has empty name", ErrInvalidArguments)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = tool
	return nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return tool, nil
}

// List returns the definitions of all registered tools, sorted by name.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, tool.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Invoke validates args against the tool's schema and executes it. Every
// invocation is logged with its duration regardless of outcome.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (*Result, error) {
	tool, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	if err := validateArgs(tool.Definition().InputSchema, args); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := tool.Exec(ctx, args)
	elapsed := time.Since(start)

	if r.recorder != nil {
		r.recorder.ObserveToolInvocation(name, elapsed, err)
	}

	if err != nil {
		r.logger.Warn("tool %s failed after %s: args=%v err=%v", name, elapsed.Round(time.Millisecond), args, err)
		return nil, fmt.Errorf("invoke tool %s: %w", name, err)
	}
	r.logger.Info("tool %s completed in %s: args=%v result=%s", name, elapsed.Round(time.Millisecond), args, summarize(result.Content))
	return result, nil
}

// validateArgs checks required parameters and basic type conformance.
func validateArgs(schema InputSchema, args map[string]any) error {
	for _, key := range schema.Required {
		if _, ok := args[key]; !ok {
			return fmt.Errorf("%w: missing required argument %q", ErrInvalidArguments, key)
		}
	}
	for key, value := range args {
		prop, ok := schema.Properties[key]
		if !ok {
			return fmt.Errorf("%w: unexpected argument %q", ErrInvalidArguments, key)
		}
		if !typeMatches(prop.Type, value) {
			return fmt.Errorf("%w: argument %q must be of type %s", ErrInvalidArguments, key, prop.Type)
		}
	}
	return nil
}

func typeMatches(schemaType string, value any) bool {
	switch schemaType {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer", "number":
		switch value.(type) {
		case int, int64, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		switch value.(type) {
		case []any, []string:
			return true
		}
		return false
	default:
		return true
	}
}

// summarize truncates long result payloads for log lines, cutting on a rune
// boundary so log lines stay valid UTF-8.
func summarize(content string) string {
	const maxLogged = 200
	if len(content) <= maxLogged {
		return content
	}
	cut := maxLogged
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "..."
}
