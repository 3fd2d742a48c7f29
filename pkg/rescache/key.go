package rescache

import (
	"crypto/sha256"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/aldan/opschat/pkg/session"
)

// KeyPrefix namespaces every key this subsystem owns. Administrative
// operations never touch keys outside this prefix.
const KeyPrefix = "opschat:resp:"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// keyMessage is the canonical shape hashed into a cache key. Only
// fields that change the meaning of a conversation participate;
// message ids and timestamps do not.
type keyMessage struct {
	Role             string                    `json:"role"`
	Content          string                    `json:"content,omitempty"`
	ToolInvocations  []session.ToolInvocation  `json:"tool_invocations,omitempty"`
	ToolInvocationID string                    `json:"tool_invocation_id,omitempty"`
	ToolName         string                    `json:"tool_name,omitempty"`
}

// Key derives the content-addressed cache key for an agent type and a
// message list. Identical inputs always produce identical keys; the
// SHA-256 digest makes accidental collisions negligible.
func Key(agentType string, messages []session.Message) string {
	canonical := make([]keyMessage, len(messages))
	for i, msg := range messages {
		canonical[i] = keyMessage{
			Role:             msg.Role,
			Content:          msg.Content,
			ToolInvocations:  msg.ToolInvocations,
			ToolInvocationID: msg.ToolInvocationID,
			ToolName:         msg.ToolName,
		}
	}

	payload, err := json.Marshal(canonical)
	if err != nil {
		// Marshal of plain structs cannot realistically fail; fall back
		// to an unhashed representation rather than returning an error
		// on the advisory path.
		payload = []byte(fmt.Sprintf("%v", canonical))
	}

	digest := sha256.Sum256(append([]byte(agentType+"\x00"), payload...))
	return fmt.Sprintf("%s%s:%x", KeyPrefix, agentType, digest)
}

// KeyForPrompt derives a key for a bare prompt string, used by call
// sites that memoize a single generation rather than a conversation.
func KeyForPrompt(agentType, prompt string) string {
	digest := sha256.Sum256([]byte(agentType + "\x00" + prompt))
	return fmt.Sprintf("%s%s:%x", KeyPrefix, agentType, digest)
}
