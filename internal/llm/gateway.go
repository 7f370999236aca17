// Package llm is the completion gateway: it turns a chat transcript into a
// streamed model reply.
package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/raphaelgruber/kaiwa/internal/config"
	"github.com/raphaelgruber/kaiwa/internal/metrics"
	"github.com/raphaelgruber/kaiwa/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrEmptyResponse is returned when the provider produced no choices.
var ErrEmptyResponse = errors.New("no response choices")

// Gateway streams completions from the configured provider. Model, system
// prompt and token limit are fixed at construction.
type Gateway struct {
	llm          llms.Model
	modelName    string
	systemPrompt string
	maxTokens    int
	metrics      *metrics.Collector
}

// NewGateway creates the gateway for cfg.LLMProvider. A missing credential
// for the selected provider is an error here rather than on the first request.
func NewGateway(ctx context.Context, cfg config.Config, mc *metrics.Collector) (*Gateway, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY environment variable is not defined", config.ErrMissingCredential)
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderBedrock:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		model, err = bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY environment variable is not defined", config.ErrMissingCredential)
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return newGateway(model, cfg, mc), nil
}

func newGateway(model llms.Model, cfg config.Config, mc *metrics.Collector) *Gateway {
	return &Gateway{
		llm:          model,
		modelName:    cfg.LLMModel,
		systemPrompt: cfg.SystemPrompt,
		maxTokens:    cfg.MaxTokens,
		metrics:      mc,
	}
}

// Model returns the LLM model name.
func (g *Gateway) Model() string {
	return g.modelName
}

// Stream sends the transcript to the model and calls onDelta for every text
// fragment in arrival order. It returns the concatenated reply. An error from
// onDelta stops generation and is returned as is.
func (g *Gateway) Stream(ctx context.Context, msgs []models.ChatMessage, onDelta func(string) error) (string, error) {
	content, err := g.buildMessages(msgs)
	if err != nil {
		return "", err
	}

	streamed := false
	var callbackErr error
	opts := []llms.CallOption{
		llms.WithMaxTokens(g.maxTokens),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			streamed = true
			if err := onDelta(string(chunk)); err != nil {
				callbackErr = err
				return err
			}
			return nil
		}),
	}

	start := time.Now()
	resp, err := g.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		g.metrics.RecordTiming(metrics.OpLLMStream, time.Since(start), err)
		if callbackErr != nil {
			return "", callbackErr
		}
		return "", fmt.Errorf("stream completion: %w", wrapFatalError(err))
	}
	if len(resp.Choices) == 0 {
		g.metrics.RecordTiming(metrics.OpLLMStream, time.Since(start), ErrEmptyResponse)
		return "", ErrEmptyResponse
	}

	choice := resp.Choices[0]
	in, out := usage(choice.GenerationInfo)
	g.metrics.RecordLLMUsage(metrics.OpLLMStream, time.Since(start), in, out, nil)

	// Some providers ignore the streaming callback; emit the reply as one delta.
	if !streamed && choice.Content != "" {
		if err := onDelta(choice.Content); err != nil {
			return "", err
		}
	}
	return choice.Content, nil
}

// buildMessages prepends the system prompt and converts each chat message.
func (g *Gateway) buildMessages(msgs []models.ChatMessage) ([]llms.MessageContent, error) {
	out := make([]llms.MessageContent, 0, len(msgs)+1)
	if g.systemPrompt != "" {
		out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, g.systemPrompt))
	}
	for _, m := range msgs {
		mc, err := toMessageContent(m)
		if err != nil {
			return nil, err
		}
		out = append(out, mc)
	}
	return out, nil
}

func toMessageContent(m models.ChatMessage) (llms.MessageContent, error) {
	role := llms.ChatMessageTypeHuman
	if m.Role == models.RoleAssistant {
		role = llms.ChatMessageTypeAI
	}

	switch c := models.BuildContent(m).(type) {
	case models.TextContent:
		return llms.TextParts(role, c.Text), nil
	case models.MultimodalContent:
		parts := make([]llms.ContentPart, 0, len(c.Parts))
		for _, p := range c.Parts {
			switch p := p.(type) {
			case models.ImagePart:
				data, err := base64.StdEncoding.DecodeString(p.Data)
				if err != nil {
					return llms.MessageContent{}, fmt.Errorf("%w: image data is not base64", models.ErrInvalidMessage)
				}
				parts = append(parts, llms.BinaryPart(string(p.MediaType), data))
			case models.TextPart:
				parts = append(parts, llms.TextPart(p.Text))
			}
		}
		return llms.MessageContent{Role: role, Parts: parts}, nil
	default:
		return llms.MessageContent{}, fmt.Errorf("unknown content %T", c)
	}
}

// usage reads token counts from generation info. Providers disagree on key
// names, so both the Anthropic and OpenAI spellings are checked.
func usage(info map[string]any) (in, out int64) {
	in = firstInt(info, "InputTokens", "PromptTokens")
	out = firstInt(info, "OutputTokens", "CompletionTokens")
	return in, out
}

func firstInt(info map[string]any, keys ...string) int64 {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return int64(v)
		case int32:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
	}
	return 0
}
