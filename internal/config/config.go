package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Kirito123l/emission-agent/pkg/models"
)

// ToolDefinitionsFunc is injected by main after the tool registry is built,
// so the config loader can satisfy C1's load_tool_definitions() operation
// without internal/config importing internal/tools (which itself needs the
// standardizer, not the config loader, at construction time).
type ToolDefinitionsFunc func() []models.ToolDescriptor

// Bundle is everything C1 loads once at process startup.
type Bundle struct {
	Mappings *Mappings
	Prompts  *Prompts
	Server   *ServerConfig

	toolDefs ToolDefinitionsFunc
}

// ServerConfig holds the environment-derived runtime settings named in
// spec.md §6: LLM credentials, proxy, outputs directory, ports, CORS.
type ServerConfig struct {
	LLMProvider    string // "openai" or "anthropic"
	LLMAPIKey      string
	LLMBaseURL     string
	LLMModel       string
	HTTPProxy      string
	HTTPSProxy     string
	DataDir        string
	OutputsDir     string
	TmpDir         string
	Addr           string
	CORSOrigins    []string
	LLMTimeout     time.Duration
	HeartbeatEvery time.Duration
	OutputsTTL     time.Duration

	KnowledgeCorpusPath string
	CleanupCronSpec     string
	ServiceName         string
}

// ServerConfigFromEnv reads the indicative environment variables from
// spec.md §6, applying sane defaults for anything optional.
func ServerConfigFromEnv() *ServerConfig {
	dataDir := envOr("EMISSION_AGENT_DATA_DIR", "data")
	cfg := &ServerConfig{
		LLMProvider:    strings.ToLower(envOr("LLM_PROVIDER", "openai")),
		LLMAPIKey:      os.Getenv("LLM_API_KEY"),
		LLMBaseURL:     os.Getenv("LLM_BASE_URL"),
		LLMModel:       envOr("LLM_MODEL", "qwen-plus"),
		HTTPProxy:      os.Getenv("HTTP_PROXY"),
		HTTPSProxy:     os.Getenv("HTTPS_PROXY"),
		DataDir:        dataDir,
		OutputsDir:     envOr("EMISSION_AGENT_OUTPUTS_DIR", dataDir+"/outputs"),
		TmpDir:         envOr("EMISSION_AGENT_TMP_DIR", dataDir+"/tmp/emission_agent"),
		Addr:           envOr("EMISSION_AGENT_ADDR", ":8080"),
		LLMTimeout:     envDuration("LLM_TIMEOUT_SECONDS", 120*time.Second, time.Second),
		HeartbeatEvery: envDuration("STREAM_HEARTBEAT_SECONDS", 15*time.Second, time.Second),
		OutputsTTL:     envDuration("OUTPUTS_TTL_HOURS", 72*time.Hour, time.Hour),

		KnowledgeCorpusPath: envOr("KNOWLEDGE_CORPUS_PATH", dataDir+"/knowledge.jsonl"),
		CleanupCronSpec:     envOr("CLEANUP_CRON_SPEC", "@hourly"),
		ServiceName:         envOr("SERVICE_NAME", "emission-agent"),
	}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = strings.Split(origins, ",")
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback, unit time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return time.Duration(n) * unit
}

// Load loads both bundles. Either failure is fatal at startup per spec.md
// §4.1 — the caller (main) should treat a non-nil error as unrecoverable.
func Load(mappingsPath, promptsPath string) (*Bundle, error) {
	mappings, err := LoadMappings(mappingsPath)
	if err != nil {
		return nil, fmt.Errorf("fatal: %w", err)
	}
	prompts, err := LoadPrompts(promptsPath)
	if err != nil {
		return nil, fmt.Errorf("fatal: %w", err)
	}
	return &Bundle{
		Mappings: mappings,
		Prompts:  prompts,
		Server:   ServerConfigFromEnv(),
	}, nil
}

// SetToolDefinitions wires the static tool-definitions accessor after the
// registry is built in main.
func (b *Bundle) SetToolDefinitions(fn ToolDefinitionsFunc) {
	b.toolDefs = fn
}

// LoadToolDefinitions returns the static list of tool descriptors shipped
// with the program (C1's load_tool_definitions()).
func (b *Bundle) LoadToolDefinitions() []models.ToolDescriptor {
	if b.toolDefs == nil {
		return nil
	}
	return b.toolDefs()
}

// GetRequiredColumns delegates to the loaded mapping dictionary.
func (b *Bundle) GetRequiredColumns(taskType string) []string {
	return b.Mappings.GetRequiredColumns(taskType)
}

// GetColumnPatterns delegates to the loaded mapping dictionary.
func (b *Bundle) GetColumnPatterns(taskType, fieldName string) []string {
	return b.Mappings.GetColumnPatterns(taskType, fieldName)
}
