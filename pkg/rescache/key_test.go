package rescache

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldan/opschat/pkg/session"
)

func sampleMessages() []session.Message {
	return []session.Message{
		{Role: session.RoleUser, Content: "how is the api doing?"},
		{Role: session.RoleAssistant, ToolInvocations: []session.ToolInvocation{
			{ID: "call-1", Name: "query_metrics", Arguments: map[string]interface{}{"query": "rate(http_requests_total[5m])"}},
		}},
		{Role: session.RoleTool, Content: "1532 req/s", ToolInvocationID: "call-1", ToolName: "query_metrics"},
	}
}

func TestKey(t *testing.T) {
	t.Run("should be deterministic for equal inputs", func(t *testing.T) {
		k1 := Key("chat", sampleMessages())
		k2 := Key("chat", sampleMessages())
		assert.Equal(t, k1, k2)
	})

	t.Run("should ignore message ids and timestamps", func(t *testing.T) {
		a := sampleMessages()
		b := sampleMessages()
		b[0].ID = "different-id"

		assert.Equal(t, Key("chat", a), Key("chat", b))
	})

	t.Run("should discriminate by agent type", func(t *testing.T) {
		msgs := sampleMessages()
		assert.NotEqual(t, Key("chat", msgs), Key("dashboard", msgs))
	})

	t.Run("should discriminate by content", func(t *testing.T) {
		a := sampleMessages()
		b := sampleMessages()
		b[0].Content = "how is the db doing?"

		assert.NotEqual(t, Key("chat", a), Key("chat", b))
	})

	t.Run("should stay within the subsystem namespace", func(t *testing.T) {
		key := Key("chat", sampleMessages())
		assert.True(t, strings.HasPrefix(key, KeyPrefix+"chat:"))
	})

	t.Run("should not collide across many distinct inputs", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 2000; i++ {
			msgs := []session.Message{
				{Role: session.RoleUser, Content: fmt.Sprintf("unique question %d", i)},
			}
			key := Key("chat", msgs)
			require.False(t, seen[key], "collision at input %d", i)
			seen[key] = true
		}
	})
}

func TestKeyForPrompt(t *testing.T) {
	t.Run("should be deterministic and discriminating", func(t *testing.T) {
		assert.Equal(t, KeyForPrompt("dashboard", "cpu overview"), KeyForPrompt("dashboard", "cpu overview"))
		assert.NotEqual(t, KeyForPrompt("dashboard", "cpu overview"), KeyForPrompt("dashboard", "memory overview"))
	})
}
