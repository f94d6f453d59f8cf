// Package models holds the data shapes shared across the conversation
// orchestrator: tool descriptors/results, assembled context, memory layers,
// and persisted session/history records.
package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// DataType classifies how an assistant history entry should be rendered.
type DataType string

const (
	DataTypeText  DataType = "text"
	DataTypeChart DataType = "chart"
	DataTypeTable DataType = "table"
)

// ToolCall represents an LLM's request to execute a tool.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDescriptor is the shape exposed to the LLM verbatim: name, human
// description, and a structured parameter schema. Schema is the Tool Use
// JSON-schema form: {type:"object", properties, required}.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"input_schema"`
}

// ToolResult is the tagged structure every tool returns.
type ToolResult struct {
	Success      bool           `json:"success"`
	Data         map[string]any `json:"data,omitempty"`
	Error        string         `json:"error,omitempty"`
	Summary      string         `json:"summary,omitempty"`
	ChartData    map[string]any `json:"chart_data,omitempty"`
	TableData    map[string]any `json:"table_data,omitempty"`
	DownloadFile any            `json:"download_file,omitempty"` // string or DownloadHandle
}

// DownloadHandle points to a file inside the outputs directory, addressable
// by filename or by (session_id, message_id).
type DownloadHandle struct {
	Path     string `json:"path"`
	Filename string `json:"filename"`
}

// Turn is one working-memory entry: a user message and the assistant reply
// it produced, plus whatever tool calls were made along the way.
type Turn struct {
	User         string           `json:"user"`
	Assistant    string           `json:"assistant"`
	ToolCalls    []CompletedCall  `json:"tool_calls,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
}

// CompletedCall records a tool invocation's name, arguments, and whether it
// reported success, for fact extraction and compressed-memory summaries.
type CompletedCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Success   bool           `json:"success"`
}

// FactMemory is the structured-facts layer.
type FactMemory struct {
	RecentVehicle    string         `json:"recent_vehicle,omitempty"`
	RecentPollutants []string       `json:"recent_pollutants,omitempty"`
	RecentYear       int            `json:"recent_year,omitempty"`
	ActiveFile       string         `json:"active_file,omitempty"`
	FileAnalysis     map[string]any `json:"file_analysis,omitempty"`
	UserPreferences  map[string]any `json:"user_preferences,omitempty"`
}

// AssembledContext is the Router-consumable output of the context assembler.
type AssembledContext struct {
	SystemPrompt    string
	Tools           []ToolDescriptor
	Messages        []ChatMessage
	EstimatedTokens int
}

// ChatMessage is one entry in the message list sent to the LLM.
type ChatMessage struct {
	Role       Role            `json:"role"`
	Content    string          `json:"content"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// HistoryEntry is one persisted message in a session's history, user or
// assistant. Assistant entries additionally carry presentation metadata.
type HistoryEntry struct {
	Role         Role           `json:"role"`
	Content      string         `json:"content"`
	MessageID    string         `json:"message_id,omitempty"`
	DataType     DataType       `json:"data_type,omitempty"`
	ChartData    map[string]any `json:"chart_data,omitempty"`
	TableData    map[string]any `json:"table_data,omitempty"`
	DownloadFile *DownloadHandle `json:"download_file,omitempty"`
	FileID       string         `json:"file_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// SessionMeta is the per-session record held in sessions_meta.json.
type SessionMeta struct {
	SessionID      string    `json:"session_id"`
	Title          string    `json:"title"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	MessageCount   int       `json:"message_count"`
	LastResultFile string    `json:"last_result_file,omitempty"`
}

// RouterResponse is the Router's single public return shape.
type RouterResponse struct {
	Text         string          `json:"text"`
	ChartData    map[string]any  `json:"chart_data,omitempty"`
	TableData    map[string]any  `json:"table_data,omitempty"`
	DownloadFile *DownloadHandle `json:"download_file,omitempty"`
}
