package session

import (
	"time"
)

// Message roles. Tool invocation requests ride on assistant messages;
// tool results come back as tool messages correlated by invocation ID.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolInvocation is an engine-assigned request to call a named tool.
// Arguments are engine-supplied and untrusted until validated by the
// tool's executor.
type ToolInvocation struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// Message represents a single conversation turn entry
type Message struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`

	// ToolInvocations is set only on assistant messages that request
	// tool calls; such messages may carry no content at all.
	ToolInvocations []ToolInvocation `json:"tool_invocations,omitempty"`

	// ToolInvocationID and ToolName are set only on tool messages and
	// reference the invocation this message answers.
	ToolInvocationID string `json:"tool_invocation_id,omitempty"`
	ToolName         string `json:"tool_name,omitempty"`

	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}
