// Package tools defines the tool contract every concrete tool implements
// (C4) and a thread-safe registry the executor dispatches through.
package tools

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/Kirito123l/emission-agent/pkg/models"
)

// Tool is the contract every concrete capability implements: a name and
// description shown to the LLM, a JSON Schema for its arguments, and a
// single Execute call. Execute never returns an error for a user-facing
// failure — it reports failure through ToolResult.Success/Error so the
// router can synthesize a message instead of aborting the turn.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, args map[string]any) (*models.ToolResult, error)
}

// DecodeArgs round-trips a dispatch-time argument map into a tool's typed
// parameter struct via JSON, so each tool can declare its parameters as a
// normal Go struct instead of picking values out of map[string]any by hand.
func DecodeArgs(args map[string]any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// ToJSONValue round-trips a Go value through JSON, turning typed structs
// and slices into the plain map[string]any/[]any/float64 shapes a JSON
// wire response would carry. Tools call this before putting a result into
// ToolResult.Data so downstream consumers (the web API, chart/table
// extraction) see the same JSON-generic shape a client would, not a Go
// type assertion away from the tool's internal structs.
func ToJSONValue(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// GenerateSchema builds a JSON Schema document from a Go struct describing
// a tool's parameters. Tools call this once, at package init, to avoid
// hand-writing JSON Schema literals that drift from the struct they
// validate against.
func GenerateSchema(v any) json.RawMessage {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	schema := reflector.Reflect(v)
	schema.Version = ""
	out, err := json.Marshal(schema)
	if err != nil {
		panic("tools: failed to marshal generated schema: " + err.Error())
	}
	return out
}
