package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/aldan/opschat/internal/metrics"
	"github.com/aldan/opschat/pkg/session"
)

// OpenAIClient implements Client against the OpenAI chat completions API.
type OpenAIClient struct {
	client openai.Client
}

// NewOpenAIClient creates an OpenAI-backed engine client.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Provider returns the provider name.
func (c *OpenAIClient) Provider() string {
	return "openai"
}

// Invoke makes a single chat completion call.
func (c *OpenAIClient) Invoke(ctx context.Context, req Request) (*Answer, error) {
	start := time.Now()
	answer, err := c.invoke(ctx, req)
	metrics.RecordEngineCall("openai", callStatus(err), time.Since(start))
	return answer, err
}

// openAIMessages renders the conversation in the chat completions
// wire shape. Tool results carry their invocation id as tool_call_id
// so the engine can correlate them with its requests.
func openAIMessages(req Request) ([]openai.ChatCompletionMessageParamUnion, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}

	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case session.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case session.RoleAssistant:
			if len(msg.ToolInvocations) > 0 {
				toolCalls := []openai.ChatCompletionMessageToolCall{}
				for _, inv := range msg.ToolInvocations {
					argsJSON, err := json.Marshal(inv.Arguments)
					if err != nil {
						return nil, fmt.Errorf("failed to marshal tool arguments: %w", err)
					}
					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
						ID:   inv.ID,
						Type: "function",
						Function: openai.ChatCompletionMessageToolCallFunction{
							Name:      inv.Name,
							Arguments: string(argsJSON),
						},
					})
				}
				assistantMsg := openai.ChatCompletionMessage{
					Role:      "assistant",
					Content:   msg.Content,
					ToolCalls: toolCalls,
				}
				messages = append(messages, assistantMsg.ToParam())
			} else {
				messages = append(messages, openai.AssistantMessage(msg.Content))
			}
		case session.RoleTool:
			messages = append(messages, openai.ToolMessage(msg.Content, msg.ToolInvocationID))
		}
	}

	return messages, nil
}

func (c *OpenAIClient) invoke(ctx context.Context, req Request) (*Answer, error) {
	messages, err := openAIMessages(req)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}

	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	if req.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	if len(req.Tools) > 0 {
		tools := []openai.ChatCompletionToolParam{}
		for _, def := range req.Tools {
			tools = append(tools, openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        def.Name,
					Description: openai.String(def.Description),
					Parameters:  openai.FunctionParameters(def.InputSchema()),
				},
			})
		}
		params.Tools = tools
	}

	response, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("%w: no response choices returned", ErrUnavailable)
	}

	choice := response.Choices[0]
	invocations := []session.ToolInvocation{}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
		}
		invocations = append(invocations, session.ToolInvocation{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	return &Answer{
		Text:            choice.Message.Content,
		ToolInvocations: invocations,
		Usage: &Usage{
			InputTokens:  int(response.Usage.PromptTokens),
			OutputTokens: int(response.Usage.CompletionTokens),
		},
	}, nil
}
