package engine

import (
	"context"
	"fmt"

	"github.com/aldan/opschat/internal/config"
	"github.com/aldan/opschat/pkg/session"
	"github.com/aldan/opschat/pkg/toolregistry"
)

// Request describes a single reasoning call. Messages carry the full
// conversation so far, including tool results from earlier rounds of
// the same turn.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []session.Message
	Tools        []toolregistry.Definition
	Temperature  float64
	MaxTokens    int

	// JSONMode asks the provider to emit a single JSON object. Used by
	// the dashboard agent; providers without native support approximate
	// it through the system prompt.
	JSONMode bool
}

// Usage reports token consumption for a single call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Answer is the provider response for one call. Either Text, tool
// invocations, or both may be present.
type Answer struct {
	Text            string
	ToolInvocations []session.ToolInvocation
	Usage           *Usage
}

// RequiresTools reports whether the model asked for tool executions.
func (a *Answer) RequiresTools() bool {
	return len(a.ToolInvocations) > 0
}

// Client is a reasoning backend. Invoke makes exactly one attempt:
// retry policy belongs to the caller, and in practice a failed call
// degrades the turn rather than being retried.
type Client interface {
	Provider() string
	Invoke(ctx context.Context, req Request) (*Answer, error)
}

// New builds a client from an engine profile.
func New(profile config.EngineProfile) (Client, error) {
	switch profile.Provider {
	case "openai":
		return NewOpenAIClient(profile.APIKey), nil
	case "anthropic":
		return NewAnthropicClient(profile.APIKey), nil
	default:
		return nil, fmt.Errorf("unknown engine provider %q", profile.Provider)
	}
}
