package agent

import (
	"fmt"
	"strings"

	"github.com/aldan/opschat/pkg/toolregistry"
)

const defaultSystemPrompt = `You are an operations assistant for a service platform.
You answer questions about service health, metrics, and incidents, and you can create
dashboards on request. Use the available tools to ground your answers in live data
instead of guessing. When a tool fails, say so and answer with what you have. Keep
answers concise and factual.`

// buildSystemPrompt renders the fixed behavioral instruction plus a
// summary of the registered tools.
func buildSystemPrompt(base string, tools []toolregistry.Definition) string {
	if base == "" {
		base = defaultSystemPrompt
	}
	if len(tools) == 0 {
		return base
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nAvailable tools:\n")
	for _, tool := range tools {
		fmt.Fprintf(&b, "- %s: %s\n", tool.Name, tool.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}
