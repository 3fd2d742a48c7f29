package agent

import (
	"time"
)

// Agent types select system prompt, cache TTL, and output mode for a
// turn.
const (
	TypeChat        = "chat"
	TypeDashboard   = "dashboard"
	TypeDiagnostics = "diagnostics"
)

// State tracks where a turn is in its lifecycle.
type State string

const (
	StateAwaitingAnswer State = "awaiting_answer"
	StateToolsRequested State = "tools_requested"
	StateExecutingTools State = "executing_tools"
	StateFinal          State = "final"
	StateDegraded       State = "degraded"
	StateExhausted      State = "exhausted"
)

// Terminal reports whether the state ends the turn.
func (s State) Terminal() bool {
	return s == StateFinal || s == StateDegraded || s == StateExhausted
}

// TurnRequest is one validated inbound chat request. SessionID may be
// empty, in which case a new session is created. Principal is an
// opaque identifier used only for logging and metrics correlation.
type TurnRequest struct {
	SessionID string
	Message   string
	Context   map[string]interface{}
	Principal string
	AgentType string
}

// ResponseMessage is the assistant message produced by a turn.
type ResponseMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// TurnMetadata describes how the turn was produced.
type TurnMetadata struct {
	ToolsUsed int   `json:"tools_used"`
	Rounds    int   `json:"rounds"`
	Cached    bool  `json:"cached"`
	Degraded  bool  `json:"degraded"`
	State     State `json:"state"`
}

// TurnResponse is the caller-facing result of one turn. Degraded and
// exhausted turns are still successful responses.
type TurnResponse struct {
	Success   bool            `json:"success"`
	SessionID string          `json:"session_id"`
	Message   ResponseMessage `json:"message"`
	Metadata  TurnMetadata    `json:"metadata"`
}
