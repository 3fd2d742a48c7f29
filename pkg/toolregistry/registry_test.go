package toolregistry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return New(zerolog.Nop())
}

func echoTool() Definition {
	return Definition{
		Name:        "echo",
		Description: "Echoes the input back",
		Parameters: []Parameter{
			{Name: "input", Type: "string", Description: "Text to echo", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			return args["input"].(string), nil
		},
	}
}

func TestRegister(t *testing.T) {
	t.Run("should register a valid tool", func(t *testing.T) {
		r := newTestRegistry(t)
		require.NoError(t, r.Register(echoTool()))
		assert.NotNil(t, r.Get("echo"))
	})

	t.Run("should reject duplicate names", func(t *testing.T) {
		r := newTestRegistry(t)
		require.NoError(t, r.Register(echoTool()))

		err := r.Register(echoTool())
		assert.ErrorIs(t, err, ErrDuplicateTool)
	})

	t.Run("should reject a definition without a handler", func(t *testing.T) {
		r := newTestRegistry(t)
		def := echoTool()
		def.Handler = nil
		assert.Error(t, r.Register(def))
	})

	t.Run("should reject unknown parameter types", func(t *testing.T) {
		r := newTestRegistry(t)
		def := echoTool()
		def.Parameters[0].Type = "tuple"
		assert.Error(t, r.Register(def))
	})
}

func TestDefinitions(t *testing.T) {
	t.Run("should list tools sorted by name", func(t *testing.T) {
		r := newTestRegistry(t)

		for _, name := range []string{"zeta", "alpha", "mid"} {
			def := echoTool()
			def.Name = name
			require.NoError(t, r.Register(def))
		}

		assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.Names())
	})

	t.Run("should render an engine-facing schema", func(t *testing.T) {
		schema := echoTool().InputSchema()

		assert.Equal(t, "object", schema["type"])
		props := schema["properties"].(map[string]interface{})
		assert.Contains(t, props, "input")
		assert.Equal(t, []string{"input"}, schema["required"])
	})
}

func TestExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("should execute a registered tool", func(t *testing.T) {
		r := newTestRegistry(t)
		require.NoError(t, r.Register(echoTool()))

		result := r.Execute(ctx, "echo", map[string]interface{}{"input": "hello"}, time.Second)
		require.True(t, result.Success)
		assert.Equal(t, "hello", result.Output)
		assert.Equal(t, "hello", result.Content())
	})

	t.Run("should capture unknown tool as a failure result", func(t *testing.T) {
		r := newTestRegistry(t)

		result := r.Execute(ctx, "ghost", nil, time.Second)
		assert.False(t, result.Success)
		assert.ErrorIs(t, result.Err, ErrToolNotFound)
		assert.Contains(t, result.Content(), "Error:")
	})

	t.Run("should reject a payload missing required arguments", func(t *testing.T) {
		r := newTestRegistry(t)
		require.NoError(t, r.Register(echoTool()))

		result := r.Execute(ctx, "echo", map[string]interface{}{}, time.Second)
		assert.False(t, result.Success)
		assert.ErrorIs(t, result.Err, ErrInvalidArguments)
	})

	t.Run("should reject a payload with wrong argument types", func(t *testing.T) {
		r := newTestRegistry(t)
		require.NoError(t, r.Register(echoTool()))

		result := r.Execute(ctx, "echo", map[string]interface{}{"input": 42}, time.Second)
		assert.False(t, result.Success)
		assert.ErrorIs(t, result.Err, ErrInvalidArguments)
	})

	t.Run("should capture handler errors", func(t *testing.T) {
		r := newTestRegistry(t)
		def := echoTool()
		def.Name = "failing"
		def.Handler = func(ctx context.Context, args map[string]interface{}) (string, error) {
			return "", errors.New("backend returned 503")
		}
		require.NoError(t, r.Register(def))

		result := r.Execute(ctx, "failing", map[string]interface{}{"input": "x"}, time.Second)
		assert.False(t, result.Success)
		assert.ErrorIs(t, result.Err, ErrExecutionFailed)
		assert.Contains(t, result.Error, "503")
	})

	t.Run("should time out slow handlers", func(t *testing.T) {
		r := newTestRegistry(t)
		def := echoTool()
		def.Name = "slow"
		def.Handler = func(ctx context.Context, args map[string]interface{}) (string, error) {
			select {
			case <-time.After(5 * time.Second):
				return "too late", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		require.NoError(t, r.Register(def))

		result := r.Execute(ctx, "slow", map[string]interface{}{"input": "x"}, 20*time.Millisecond)
		assert.False(t, result.Success)
		assert.ErrorIs(t, result.Err, ErrExecutionFailed)
	})

	t.Run("should truncate oversized output", func(t *testing.T) {
		r := newTestRegistry(t)
		def := echoTool()
		def.Name = "big"
		def.Handler = func(ctx context.Context, args map[string]interface{}) (string, error) {
			return strings.Repeat("x", maxOutputBytes+100), nil
		}
		require.NoError(t, r.Register(def))

		result := r.Execute(ctx, "big", map[string]interface{}{"input": "x"}, time.Second)
		require.True(t, result.Success)
		assert.True(t, result.Truncated)
		assert.Contains(t, result.Output, "[output truncated]")
	})

	t.Run("should tolerate optional arguments", func(t *testing.T) {
		r := newTestRegistry(t)
		def := Definition{
			Name:        "range_query",
			Description: "Query with optional window",
			Parameters: []Parameter{
				{Name: "query", Type: "string", Description: "Query expression", Required: true},
				{Name: "window", Type: "string", Description: "Time window", Required: false, Default: "5m"},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
				window := "5m"
				if w, ok := args["window"].(string); ok {
					window = w
				}
				return fmt.Sprintf("%v over %s", args["query"], window), nil
			},
		}
		require.NoError(t, r.Register(def))

		result := r.Execute(ctx, "range_query", map[string]interface{}{"query": "up"}, time.Second)
		require.True(t, result.Success)
		assert.Equal(t, "up over 5m", result.Output)
	})
}
