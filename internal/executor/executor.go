// Package executor dispatches one tool call at a time, transparently
// standardizing user vocabulary in the arguments before the tool ever sees
// them (C6). The LLM names a vehicle or pollutant however the user phrased
// it; the executor rewrites it to the canonical form the tool expects, so
// no tool has to know about standardization at all.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/Kirito123l/emission-agent/internal/observability"
	"github.com/Kirito123l/emission-agent/internal/standardize"
	"github.com/Kirito123l/emission-agent/internal/tools"
)

// ErrorType classifies why a tool call didn't produce a result, so the
// router can decide whether to retry, ask the user for clarification, or
// give up.
type ErrorType string

const (
	ErrorTypeUnknownTool       ErrorType = "unknown_tool"
	ErrorTypeStandardization   ErrorType = "standardization"
	ErrorTypeExecution         ErrorType = "execution"
	ErrorTypeTimeout           ErrorType = "timeout"
	ErrorTypePanic             ErrorType = "panic"
)

// Result is the uniform shape every tool call collapses into, regardless
// of whether it succeeded, was rejected before it ran, or panicked.
type Result struct {
	Success      bool
	Data         map[string]any
	Error        string
	ErrorType    ErrorType
	Suggestions  []string
	Summary      string
	ChartData    map[string]any
	TableData    map[string]any
	DownloadFile any
}

// Executor looks up, standardizes, runs, and normalizes one tool call.
type Executor struct {
	registry     *tools.Registry
	standardizer *standardize.Standardizer
	timeout      time.Duration
	logger       *slog.Logger
	observer     *observability.Observer
}

// New builds an Executor. A zero timeout disables the per-call deadline.
func New(registry *tools.Registry, standardizer *standardize.Standardizer, timeout time.Duration, logger *slog.Logger) *Executor {
	return &Executor{registry: registry, standardizer: standardizer, timeout: timeout, logger: logger}
}

// SetObserver attaches metrics/tracing for every subsequent Execute call.
// A nil observer (the default) disables observability with no overhead
// beyond the nil checks already built into observability.Observer.
func (e *Executor) SetObserver(obs *observability.Observer) {
	e.observer = obs
}

// Execute runs tool name with arguments, standardizing vehicle_type,
// pollutant, and pollutants entries first, injecting filePath as
// file_path when the tool didn't already receive one, then recovering and
// reporting (never propagating) a panic from inside the tool.
func (e *Executor) Execute(ctx context.Context, name string, arguments map[string]any, filePath string) Result {
	ctx, done := e.observer.ToolCall(ctx, name)
	result := e.execute(ctx, name, arguments, filePath)
	done(result.Success, resultError(result))
	return result
}

func resultError(r Result) error {
	if r.Success || r.Error == "" {
		return nil
	}
	return fmt.Errorf("%s", r.Error)
}

func (e *Executor) execute(ctx context.Context, name string, arguments map[string]any, filePath string) Result {
	tool, ok := e.registry.Get(name)
	if !ok {
		return Result{Success: false, Error: fmt.Sprintf("unknown tool: %s", name), ErrorType: ErrorTypeUnknownTool}
	}

	standardized, err := e.standardizeArguments(arguments)
	if err != nil {
		se := err.(*standardizationError)
		return Result{Success: false, Error: se.Error(), ErrorType: ErrorTypeStandardization, Suggestions: se.suggestions}
	}

	if filePath != "" {
		if _, ok := standardized["file_path"]; !ok {
			standardized["file_path"] = filePath
		}
	}

	if err := e.registry.Validate(name, standardized); err != nil {
		return Result{Success: false, Error: err.Error(), ErrorType: ErrorTypeStandardization}
	}

	return e.runWithRecovery(ctx, tool, standardized)
}

func (e *Executor) runWithRecovery(ctx context.Context, tool tools.Tool, args map[string]any) Result {
	execCtx := ctx
	var cancel context.CancelFunc
	if e.timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	type outcome struct {
		result Result
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				if e.logger != nil {
					e.logger.Error("tool panicked", "tool", tool.Name(), "panic", r, "stack", string(debug.Stack()))
				}
				done <- outcome{Result{Success: false, Error: fmt.Sprintf("panic: %v", r), ErrorType: ErrorTypePanic}}
			}
		}()

		toolResult, err := tool.Execute(execCtx, args)
		if err != nil {
			done <- outcome{Result{Success: false, Error: err.Error(), ErrorType: ErrorTypeExecution}}
			return
		}
		done <- outcome{Result{
			Success:      toolResult.Success,
			Data:         toolResult.Data,
			Error:        toolResult.Error,
			Summary:      toolResult.Summary,
			ChartData:    toolResult.ChartData,
			TableData:    toolResult.TableData,
			DownloadFile: toolResult.DownloadFile,
		}}
	}()

	select {
	case o := <-done:
		return o.result
	case <-execCtx.Done():
		if ctx.Err() == nil {
			return Result{Success: false, Error: "tool execution timed out", ErrorType: ErrorTypeTimeout}
		}
		return Result{Success: false, Error: ctx.Err().Error(), ErrorType: ErrorTypeExecution}
	}
}

type standardizationError struct {
	message     string
	suggestions []string
}

func (e *standardizationError) Error() string { return e.message }

// standardizeArguments rewrites vehicle_type/pollutant/pollutants entries
// to their canonical form. Unrecognized single values (vehicle_type,
// pollutant) fail the whole call with suggestions; unrecognized entries
// inside a pollutants list are kept verbatim rather than failing the call,
// matching the tolerant original behavior.
func (e *Executor) standardizeArguments(arguments map[string]any) (map[string]any, error) {
	standardized := make(map[string]any, len(arguments))
	for key, value := range arguments {
		switch key {
		case "vehicle_type":
			raw, _ := value.(string)
			if raw == "" {
				standardized[key] = value
				continue
			}
			std := e.standardizer.StandardizeVehicle(raw)
			if std == "" {
				return nil, &standardizationError{
					message:     fmt.Sprintf("cannot recognize vehicle type: %q", raw),
					suggestions: e.standardizer.GetVehicleSuggestions(),
				}
			}
			standardized[key] = std

		case "pollutant":
			raw, _ := value.(string)
			if raw == "" {
				standardized[key] = value
				continue
			}
			std := e.standardizer.StandardizePollutant(raw)
			if std == "" {
				return nil, &standardizationError{
					message:     fmt.Sprintf("cannot recognize pollutant: %q", raw),
					suggestions: e.standardizer.GetPollutantSuggestions(),
				}
			}
			standardized[key] = std

		case "pollutants":
			standardized[key] = e.standardizePollutantList(value)

		default:
			standardized[key] = value
		}
	}
	return standardized, nil
}

func (e *Executor) standardizePollutantList(value any) any {
	rawList, ok := value.([]any)
	if !ok {
		return value
	}
	out := make([]string, 0, len(rawList))
	for _, item := range rawList {
		raw, ok := item.(string)
		if !ok {
			continue
		}
		std := e.standardizer.StandardizePollutant(raw)
		if std != "" {
			out = append(out, std)
		} else {
			out = append(out, raw)
		}
	}
	return out
}
