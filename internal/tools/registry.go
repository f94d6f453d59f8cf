package tools

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Kirito123l/emission-agent/pkg/models"
)

// Registry is a simple name→tool map. It is read-only once the serve
// command has registered the tools at startup: nothing in the turn-processing path registers or unregisters a
// tool, so reads need no lock beyond what the map itself already
// guarantees is safe for concurrent readers once writes have stopped —
// the mutex below exists only to make that init-then-freeze discipline
// explicit and to guard against a future caller registering late.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register compiles the tool's schema and adds it under its name. A
// compile failure is logged and the tool is skipped — one broken tool's
// schema must never stop the other four from registering.
func (r *Registry) Register(logger *slog.Logger, tool Tool) {
	compiled, err := compileSchema(tool.Name(), tool.Schema())
	if err != nil {
		logger.Error("tool registration failed: invalid schema", "tool", tool.Name(), "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
	r.schemas[tool.Name()] = compiled
}

func compileSchema(name string, raw []byte) (*jsonschema.Schema, error) {
	resourceURL := "mem://tool-schema/" + name
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceURL, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	schema, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	return schema, nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Validate checks args against the tool's compiled JSON Schema.
func (r *Registry) Validate(name string, args map[string]any) error {
	r.mu.RLock()
	schema, ok := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := schema.Validate(args); err != nil {
		return fmt.Errorf("tool %s: invalid arguments: %w", name, err)
	}
	return nil
}

// Descriptors returns the static list of tool descriptors exposed to the
// LLM, in no particular order — callers that need a stable order sort it.
func (r *Registry) Descriptors() []models.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ToolDescriptor, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, models.ToolDescriptor{
			Name:        t.Name(),
			Description: t.Description(),
			Schema:      t.Schema(),
		})
	}
	return out
}
