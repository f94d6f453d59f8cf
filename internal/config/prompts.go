package config

import "fmt"

// Prompts is the prompts bundle: the agent's system prompt and the
// synthesis-only prompt used when the router summarizes tool results
// without tool-use enabled.
type Prompts struct {
	SystemPrompt    string `yaml:"system_prompt"`
	SynthesisPrompt string `yaml:"synthesis_prompt"`
	RefinerPrompt   string `yaml:"refiner_prompt"`
}

// LoadPrompts loads the prompts bundle from path. Failure is fatal: the
// router cannot assemble a context without a system prompt.
func LoadPrompts(path string) (*Prompts, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	var p Prompts
	if err := decodeRaw(raw, &p); err != nil {
		return nil, fmt.Errorf("decode prompts: %w", err)
	}
	if p.SystemPrompt == "" {
		return nil, fmt.Errorf("prompts %s: system_prompt is required", path)
	}
	if p.SynthesisPrompt == "" {
		return nil, fmt.Errorf("prompts %s: synthesis_prompt is required", path)
	}
	return &p, nil
}
