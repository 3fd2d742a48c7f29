package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/aldan/opschat/internal/metrics"
	"github.com/aldan/opschat/pkg/session"
)

// defaultAnthropicMaxTokens applies when the caller does not set a
// limit; the Anthropic API requires one.
const defaultAnthropicMaxTokens = 4096

// AnthropicClient implements Client against the Anthropic messages API.
type AnthropicClient struct {
	client anthropic.Client
}

// NewAnthropicClient creates an Anthropic-backed engine client.
func NewAnthropicClient(apiKey string) *AnthropicClient {
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Provider returns the provider name.
func (c *AnthropicClient) Provider() string {
	return "anthropic"
}

// Invoke makes a single messages API call.
func (c *AnthropicClient) Invoke(ctx context.Context, req Request) (*Answer, error) {
	start := time.Now()
	answer, err := c.invoke(ctx, req)
	metrics.RecordEngineCall("anthropic", callStatus(err), time.Since(start))
	return answer, err
}

func (c *AnthropicClient) invoke(ctx context.Context, req Request) (*Answer, error) {
	anthropicMessages := []anthropic.MessageParam{}

	for _, msg := range req.Messages {
		switch msg.Role {
		case session.RoleTool:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolInvocationID, msg.Content, false),
			))
		case session.RoleAssistant:
			if len(msg.ToolInvocations) > 0 {
				blocks := []anthropic.ContentBlockParamUnion{}
				if msg.Content != "" {
					blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
				}
				for _, inv := range msg.ToolInvocations {
					blocks = append(blocks, anthropic.NewToolUseBlock(inv.ID, inv.Arguments, inv.Name))
				}
				anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleAssistant,
					Content: blocks,
				})
			} else {
				anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
					Role: anthropic.MessageParamRoleAssistant,
					Content: []anthropic.ContentBlockParamUnion{
						anthropic.NewTextBlock(msg.Content),
					},
				})
			}
		case session.RoleUser:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	reqParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  anthropicMessages,
		MaxTokens: int64(maxTokens),
	}

	systemPrompt := req.SystemPrompt
	if req.JSONMode {
		// The messages API has no response format parameter, so JSON
		// output is requested through the system prompt instead.
		if systemPrompt != "" {
			systemPrompt += "\n\n"
		}
		systemPrompt += "Respond with a single well-formed JSON object and nothing else."
	}
	if systemPrompt != "" {
		reqParams.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}

	if req.Temperature > 0 {
		reqParams.Temperature = anthropic.Float(req.Temperature)
	}

	if len(req.Tools) > 0 {
		tools := []anthropic.ToolUnionParam{}
		for _, def := range req.Tools {
			schema := def.InputSchema()

			toolParam := anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schema["properties"],
				},
			}

			if required, ok := schema["required"].([]string); ok {
				toolParam.InputSchema.Required = required
			}

			tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
		}
		reqParams.Tools = tools
	}

	response, err := c.client.Messages.New(ctx, reqParams)
	if err != nil {
		return nil, classify(err)
	}

	text := ""
	invocations := []session.ToolInvocation{}

	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text += b.Text
		case anthropic.ToolUseBlock:
			var args map[string]interface{}
			if err := json.Unmarshal([]byte(b.JSON.Input.Raw()), &args); err != nil {
				return nil, fmt.Errorf("failed to parse tool input: %w", err)
			}
			invocations = append(invocations, session.ToolInvocation{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: args,
			})
		}
	}

	return &Answer{
		Text:            text,
		ToolInvocations: invocations,
		Usage: &Usage{
			InputTokens:  int(response.Usage.InputTokens),
			OutputTokens: int(response.Usage.OutputTokens),
		},
	}, nil
}
