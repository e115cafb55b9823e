// Package genai provides model-backed operations using the OpenAI API.
//
// It wraps chat completions in three shapes the rest of the system needs:
// plain text generation, structured JSON-schema generation (triage and
// preference rewrites), and tool-call generation (the draft stage).
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/kaptinlin/jsonrepair"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey  string
	BaseURL string
	Model   shared.ChatModel
}

// Option configures the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL sets a custom API endpoint (for OpenAI-compatible providers).
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithModel overrides the default chat model.
func WithModel(model shared.ChatModel) Option {
	return func(o *Opts) { o.Model = model }
}

// ToolCallFunction is the function portion of a model tool call.
type ToolCallFunction struct {
	Name      string
	Arguments string
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID       string
	Function ToolCallFunction
}

// ToolCallResponse is the model output of a tool-enabled completion:
// optional assistant text plus zero or more tool calls.
type ToolCallResponse struct {
	Content   string
	ToolCalls []ToolCall
}

// ClientInterface defines the GenAI operations consumed by the flow package.
// It exists so flows can be tested with a fake client.
type ClientInterface interface {
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
	GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*ToolCallResponse, error)
	GenerateStructured(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, schemaName string, schema map[string]interface{}, out interface{}) error
}

// chatService is the minimal completion surface used by Client; satisfied by
// the openai-go chat completion service and by test fakes.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat  chatService
	model shared.ChatModel
}

// NewClient initializes a GenAI client. The API key falls back to the
// OPENAI_API_KEY environment variable when not set via options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}

	requestOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(cfg.BaseURL))
	}
	cli := openai.NewClient(requestOpts...)
	slog.Debug("genai.NewClient: client initialized", "model", cfg.Model, "custom_base_url", cfg.BaseURL != "")
	return &Client{chat: &cli.Chat.Completions, model: cfg.Model}, nil
}

// GenerateWithMessages generates a plain text completion for the messages.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		slog.Error("genai.GenerateWithMessages: completion failed", "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateWithTools generates a completion with the given tool definitions.
// Tool choice is forced so the model must select an action.
func (c *Client) GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*ToolCallResponse, error) {
	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
		Tools:    tools,
		ToolChoice: openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: param.NewOpt("required"),
		},
	})
	if err != nil {
		slog.Error("genai.GenerateWithTools: completion failed", "error", err)
		return nil, fmt.Errorf("tool completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	message := resp.Choices[0].Message
	result := &ToolCallResponse{Content: message.Content}
	for _, tc := range message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID: tc.ID,
			Function: ToolCallFunction{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	slog.Debug("genai.GenerateWithTools: completion succeeded", "toolCallCount", len(result.ToolCalls), "hasContent", result.Content != "")
	return result, nil
}

// GenerateStructured generates a completion constrained to the given JSON
// schema and decodes it into out.
func (c *Client) GenerateStructured(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, schemaName string, schema map[string]interface{}, out interface{}) error {
	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   schemaName,
					Schema: schema,
					Strict: param.NewOpt(true),
				},
			},
		},
	})
	if err != nil {
		slog.Error("genai.GenerateStructured: completion failed", "error", err, "schema", schemaName)
		return fmt.Errorf("structured completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("no choices returned")
	}
	return DecodeJSON(resp.Choices[0].Message.Content, out)
}

// DecodeJSON unmarshals model-produced JSON into out, attempting a repair pass
// when the raw payload is malformed. Models occasionally emit trailing commas
// or unquoted keys; jsonrepair recovers most of these.
func DecodeJSON(raw string, out interface{}) error {
	if err := json.Unmarshal([]byte(raw), out); err == nil {
		return nil
	}
	repaired, repairErr := jsonrepair.JSONRepair(raw)
	if repairErr != nil {
		slog.Warn("genai.DecodeJSON: repair failed", "error", repairErr, "rawLength", len(raw))
		return fmt.Errorf("failed to decode model JSON: %w", repairErr)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("failed to decode repaired model JSON: %w", err)
	}
	slog.Debug("genai.DecodeJSON: payload recovered via repair", "rawLength", len(raw))
	return nil
}
