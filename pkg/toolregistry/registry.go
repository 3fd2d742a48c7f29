package toolregistry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/aldan/opschat/internal/metrics"
	"github.com/aldan/opschat/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// maxOutputBytes bounds tool output before it is fed back to the
// reasoning engine.
const maxOutputBytes = 16 * 1024

// DefaultTimeout applies when the caller does not bound an execution.
const DefaultTimeout = 30 * time.Second

// Parameter describes one tool argument for the engine's benefit
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// Handler executes a tool against validated arguments and returns the
// payload to feed back to the engine.
type Handler func(ctx context.Context, args map[string]interface{}) (string, error)

// Definition declares a callable tool
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Handler     Handler     `json:"-"`
}

// InputSchema renders the definition as a JSON Schema object in the
// shape reasoning engines expect for function calling.
func (d Definition) InputSchema() map[string]interface{} {
	properties := make(map[string]interface{}, len(d.Parameters))
	required := []string{}

	for _, param := range d.Parameters {
		prop := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			prop["default"] = param.Default
		}
		properties[param.Name] = prop

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Result is the captured outcome of one tool execution
type Result struct {
	Success   bool
	Output    string
	Error     string
	Err       error // one of the package sentinel errors, nil on success
	Truncated bool
	Duration  time.Duration
}

// Content renders the result as tool-message content for the engine.
func (r Result) Content() string {
	if r.Success {
		return r.Output
	}
	return fmt.Sprintf("Error: %s", r.Error)
}

// Registry maps tool names to their schemas and executors
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*Definition
	schemas map[string]*gojsonschema.Schema
	logger  zerolog.Logger
}

// New creates an empty tool registry
func New(logger zerolog.Logger) *Registry {
	metrics.EnsureRegistered()

	return &Registry{
		tools:   make(map[string]*Definition),
		schemas: make(map[string]*gojsonschema.Schema),
		logger:  logger,
	}
}

// Register adds a tool. Names are unique within the registry.
func (r *Registry) Register(def Definition) error {
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := compileSchema(def)
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, def.Name)
	}

	r.tools[def.Name] = &def
	r.schemas[def.Name] = schema

	r.logger.Info().Str("tool", def.Name).Msg("Tool registered")
	return nil
}

// Get returns a tool definition by name, or nil
func (r *Registry) Get(name string) *Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Definitions returns every registered tool, sorted by name, for
// exposure to the reasoning engine.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, def := range r.tools {
		defs = append(defs, *def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Names returns the registered tool names, sorted
func (r *Registry) Names() []string {
	defs := r.Definitions()
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names
}

// Execute resolves a tool by name, validates the engine-supplied
// arguments against its schema, and runs the handler under a timeout.
// All failure classes are captured into the Result.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}, timeout time.Duration) Result {
	start := time.Now()

	ctx, span := tracing.StartSpan(
		ctx,
		"opschat.toolregistry",
		"tool.execute",
		attribute.String("tool", name),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, r.logger)

	r.mu.RLock()
	def := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()

	if def == nil {
		logger.Warn().Str("tool", name).Msg("Tool not found")
		return r.failure(name, start, ErrToolNotFound, fmt.Sprintf("tool not found: %s", name))
	}

	if err := validateArgs(schema, args); err != nil {
		logger.Warn().Str("tool", name).Err(err).Msg("Tool argument validation failed")
		return r.failure(name, start, ErrInvalidArguments, fmt.Sprintf("invalid arguments for %s: %v", name, err))
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outCh := make(chan string, 1)
	errCh := make(chan error, 1)

	go func() {
		output, err := def.Handler(execCtx, args)
		if err != nil {
			errCh <- err
			return
		}
		outCh <- output
	}()

	select {
	case output := <-outCh:
		duration := time.Since(start)
		truncated := false
		if len(output) > maxOutputBytes {
			output = output[:maxOutputBytes] + "\n[output truncated]"
			truncated = true
		}

		logger.Debug().
			Str("tool", name).
			Dur("duration", duration).
			Bool("truncated", truncated).
			Msg("Tool execution completed")
		metrics.RecordToolExecution(name, duration, true)

		return Result{
			Success:   true,
			Output:    output,
			Truncated: truncated,
			Duration:  duration,
		}

	case err := <-errCh:
		logger.Warn().Str("tool", name).Err(err).Msg("Tool execution failed")
		return r.failure(name, start, fmt.Errorf("%w: %v", ErrExecutionFailed, err), err.Error())

	case <-execCtx.Done():
		logger.Warn().Str("tool", name).Dur("timeout", timeout).Msg("Tool execution timed out")
		return r.failure(name, start, fmt.Errorf("%w: %v", ErrExecutionFailed, execCtx.Err()),
			fmt.Sprintf("tool %s timed out after %v", name, timeout))
	}
}

func (r *Registry) failure(name string, start time.Time, err error, msg string) Result {
	duration := time.Since(start)
	metrics.RecordToolExecution(name, duration, false)
	return Result{
		Success:  false,
		Error:    msg,
		Err:      err,
		Duration: duration,
	}
}

func validateDefinition(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}
	return nil
}

func compileSchema(def Definition) (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.InputSchema()))
}

func validateArgs(schema *gojsonschema.Schema, args map[string]interface{}) error {
	if args == nil {
		args = map[string]interface{}{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return fmt.Errorf("%s", errs[0].String())
		}
		return fmt.Errorf("arguments do not match schema")
	}
	return nil
}
