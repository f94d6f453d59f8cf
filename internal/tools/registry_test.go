package tools

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/Kirito123l/emission-agent/pkg/models"
)

type stubTool struct {
	name   string
	schema json.RawMessage
}

func (s *stubTool) Name() string           { return s.name }
func (s *stubTool) Description() string    { return "a stub tool for tests" }
func (s *stubTool) Schema() json.RawMessage { return s.schema }
func (s *stubTool) Execute(ctx context.Context, args map[string]any) (*models.ToolResult, error) {
	return &models.ToolResult{Success: true}, nil
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	tool := &stubTool{name: "query_emission_factors", schema: json.RawMessage(`{"type":"object"}`)}
	r.Register(silentLogger(), tool)

	got, ok := r.Get("query_emission_factors")
	if !ok {
		t.Fatalf("expected tool to be registered")
	}
	if got.Name() != "query_emission_factors" {
		t.Fatalf("Get() returned wrong tool: %s", got.Name())
	}
}

func TestRegistryGetUnknownTool(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get("does_not_exist"); ok {
		t.Fatalf("expected unknown tool lookup to fail")
	}
}

func TestRegistrySkipsToolWithInvalidSchema(t *testing.T) {
	r := NewRegistry()
	tool := &stubTool{name: "broken", schema: json.RawMessage(`{not valid json`)}
	r.Register(silentLogger(), tool)

	if _, ok := r.Get("broken"); ok {
		t.Fatalf("expected tool with invalid schema to be skipped")
	}
}

func TestRegistryOneBadToolDoesNotBlockOthers(t *testing.T) {
	r := NewRegistry()
	r.Register(silentLogger(), &stubTool{name: "broken", schema: json.RawMessage(`{not valid`)})
	r.Register(silentLogger(), &stubTool{name: "good", schema: json.RawMessage(`{"type":"object"}`)})

	if _, ok := r.Get("good"); !ok {
		t.Fatalf("expected the valid tool to still register")
	}
}

func TestRegistryValidateRejectsWrongType(t *testing.T) {
	r := NewRegistry()
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"vehicle_type": {"type": "string"}},
		"required": ["vehicle_type"]
	}`)
	r.Register(silentLogger(), &stubTool{name: "needs_vehicle", schema: schema})

	if err := r.Validate("needs_vehicle", map[string]any{}); err == nil {
		t.Fatalf("expected validation error for missing required field")
	}
	if err := r.Validate("needs_vehicle", map[string]any{"vehicle_type": true}); err == nil {
		t.Fatalf("expected validation error for a non-string vehicle_type")
	}
	if err := r.Validate("needs_vehicle", map[string]any{"vehicle_type": "Passenger Car"}); err != nil {
		t.Fatalf("Validate() unexpected error = %v", err)
	}
}

func TestRegistryValidateUnknownToolIsNoop(t *testing.T) {
	r := NewRegistry()
	if err := r.Validate("nope", map[string]any{}); err != nil {
		t.Fatalf("expected no error validating against an unregistered tool, got %v", err)
	}
}

func TestRegistryDescriptors(t *testing.T) {
	r := NewRegistry()
	r.Register(silentLogger(), &stubTool{name: "a", schema: json.RawMessage(`{"type":"object"}`)})
	r.Register(silentLogger(), &stubTool{name: "b", schema: json.RawMessage(`{"type":"object"}`)})

	descs := r.Descriptors()
	if len(descs) != 2 {
		t.Fatalf("Descriptors() returned %d entries, want 2", len(descs))
	}
}
