package agent

// defaultFallbacks are the degraded answers used when the reasoning
// engine cannot be reached. Keyed by agent type.
var defaultFallbacks = map[string]string{
	TypeChat:        "I'm having trouble reaching the reasoning service right now. Your message was saved; please try again in a moment.",
	TypeDashboard:   "Dashboard generation is temporarily unavailable because the reasoning service cannot be reached. Please try again shortly.",
	TypeDiagnostics: "Diagnostics are temporarily unavailable because the reasoning service cannot be reached. Please retry in a moment.",
}

const genericFallback = "The assistant is temporarily unavailable. Please try again in a moment."

// Fallback provides static degraded answers per agent type. Lookups
// never fail; unknown agent types get a generic message.
type Fallback struct {
	answers map[string]string
}

// NewFallback creates a provider with the built-in answers, overlaid
// with any overrides. Empty override values are ignored.
func NewFallback(overrides map[string]string) *Fallback {
	answers := make(map[string]string, len(defaultFallbacks))
	for agentType, text := range defaultFallbacks {
		answers[agentType] = text
	}
	for agentType, text := range overrides {
		if text != "" {
			answers[agentType] = text
		}
	}
	return &Fallback{answers: answers}
}

// AnswerFor returns the degraded answer for an agent type. The result
// is always non-empty.
func (f *Fallback) AnswerFor(agentType string) string {
	if text, ok := f.answers[agentType]; ok {
		return text
	}
	return genericFallback
}
