package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/raphaelgruber/kaiwa/internal/config"
	"github.com/raphaelgruber/kaiwa/internal/metrics"
	"github.com/raphaelgruber/kaiwa/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// fakeModel replays chunks through the streaming callback.
type fakeModel struct {
	chunks   []string
	noStream bool
	err      error
	info     map[string]any

	gotMessages []llms.MessageContent
	gotOpts     llms.CallOptions
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.gotMessages = messages
	for _, o := range options {
		o(&f.gotOpts)
	}
	if f.err != nil {
		return nil, f.err
	}
	if !f.noStream && f.gotOpts.StreamingFunc != nil {
		for _, c := range f.chunks {
			if err := f.gotOpts.StreamingFunc(ctx, []byte(c)); err != nil {
				return nil, err
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:        strings.Join(f.chunks, ""),
		GenerationInfo: f.info,
	}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func testConfig() config.Config {
	return config.Config{
		LLMModel:     "test-model",
		MaxTokens:    4096,
		SystemPrompt: config.DefaultSystemPrompt,
	}
}

func collect(t *testing.T, g *Gateway, msgs []models.ChatMessage) ([]string, string, error) {
	t.Helper()
	var deltas []string
	full, err := g.Stream(context.Background(), msgs, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	return deltas, full, err
}

func TestStreamForwardsDeltasInOrder(t *testing.T) {
	fm := &fakeModel{chunks: []string{"Hel", "lo"}, info: map[string]any{"InputTokens": 12, "OutputTokens": 2}}
	mc := metrics.NewCollector()
	g := newGateway(fm, testConfig(), mc)

	deltas, full, err := collect(t, g, []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	assert.Equal(t, "Hello", full)

	assert.Equal(t, 4096, fm.gotOpts.MaxTokens)
	require.Len(t, fm.gotMessages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, fm.gotMessages[0].Role)
	assert.Equal(t, llms.TextContent{Text: config.DefaultSystemPrompt}, fm.gotMessages[0].Parts[0])
	assert.Equal(t, llms.ChatMessageTypeHuman, fm.gotMessages[1].Role)

	snap := mc.Snapshot()
	require.NotNil(t, snap.LLMStream)
	assert.Equal(t, int64(1), snap.LLMStream.Count)
	assert.Equal(t, int64(12), *snap.LLMStream.InputTokens)
}

func TestStreamWithoutStreamingFallsBackToSingleDelta(t *testing.T) {
	fm := &fakeModel{chunks: []string{"whole reply"}, noStream: true}
	g := newGateway(fm, testConfig(), nil)

	deltas, full, err := collect(t, g, []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"whole reply"}, deltas)
	assert.Equal(t, "whole reply", full)
}

func TestStreamMapsRolesAndImages(t *testing.T) {
	fm := &fakeModel{chunks: []string{"ok"}}
	g := newGateway(fm, testConfig(), nil)

	raw := []byte{0x89, 'P', 'N', 'G'}
	msgs := []models.ChatMessage{
		{Role: models.RoleUser, Content: "first"},
		{Role: models.RoleAssistant, Content: "reply"},
		{Role: models.RoleUser, Content: "describe", Images: []models.ImageAttachment{{
			ID:        "a",
			Type:      models.ImageType,
			MediaType: models.MediaTypePNG,
			Data:      base64.StdEncoding.EncodeToString(raw),
		}}},
	}
	_, _, err := collect(t, g, msgs)
	require.NoError(t, err)

	require.Len(t, fm.gotMessages, 4)
	assert.Equal(t, llms.ChatMessageTypeAI, fm.gotMessages[2].Role)

	last := fm.gotMessages[3]
	assert.Equal(t, llms.ChatMessageTypeHuman, last.Role)
	require.Len(t, last.Parts, 2)
	assert.Equal(t, llms.BinaryPart("image/png", raw), last.Parts[0])
	assert.Equal(t, llms.TextContent{Text: "describe"}, last.Parts[1])
}

func TestStreamRejectsBadImageData(t *testing.T) {
	fm := &fakeModel{}
	g := newGateway(fm, testConfig(), nil)

	_, _, err := collect(t, g, []models.ChatMessage{{Role: models.RoleUser, Images: []models.ImageAttachment{{
		Type: models.ImageType, MediaType: models.MediaTypePNG, Data: "%%%",
	}}}})
	assert.ErrorIs(t, err, models.ErrInvalidMessage)
	assert.Nil(t, fm.gotMessages, "provider must not be called")
}

func TestStreamWrapsFatalErrors(t *testing.T) {
	mc := metrics.NewCollector()
	g := newGateway(&fakeModel{err: errors.New("HTTP 401: invalid api key")}, testConfig(), mc)

	_, _, err := collect(t, g, []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}})
	assert.ErrorIs(t, err, ErrFatalAPI)
	assert.Equal(t, int64(1), mc.Snapshot().LLMStream.Errors)
}

func TestStreamStopsOnCallbackError(t *testing.T) {
	g := newGateway(&fakeModel{chunks: []string{"a", "b", "c"}}, testConfig(), nil)
	stop := errors.New("client gone")

	var seen []string
	_, err := g.Stream(context.Background(), []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}}, func(d string) error {
		seen = append(seen, d)
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []string{"a"}, seen)
}

func TestNewGatewayRequiresCredentials(t *testing.T) {
	for _, provider := range []string{config.ProviderAnthropic, config.ProviderOpenAI} {
		t.Run(provider, func(t *testing.T) {
			cfg := testConfig()
			cfg.LLMProvider = provider
			_, err := NewGateway(context.Background(), cfg, nil)
			assert.ErrorIs(t, err, config.ErrMissingCredential)
		})
	}

	cfg := testConfig()
	cfg.LLMProvider = "palm"
	_, err := NewGateway(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "unsupported LLM provider")
}

func TestUsageKeys(t *testing.T) {
	in, out := usage(map[string]any{"PromptTokens": 7, "CompletionTokens": 3})
	assert.Equal(t, int64(7), in)
	assert.Equal(t, int64(3), out)

	in, out = usage(nil)
	assert.Zero(t, in)
	assert.Zero(t, out)
}
