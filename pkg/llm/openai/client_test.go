package openai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcaldas/storysprout/pkg/events"
	"github.com/kcaldas/storysprout/pkg/logging"
	"github.com/kcaldas/storysprout/pkg/tokens"
)

type mockChatCompletions struct {
	t         *testing.T
	mu        sync.Mutex
	requests  []openai.ChatCompletionNewParams
	responses []*openai.ChatCompletion
	err       error
}

func (m *mockChatCompletions) New(ctx context.Context, params openai.ChatCompletionNewParams, _ ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, params)

	if m.err != nil {
		return nil, m.err
	}

	if len(m.responses) == 0 {
		require.FailNow(m.t, "mock chat completions received more calls than configured responses")
	}

	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

type mockModerations struct {
	mu       sync.Mutex
	requests []openai.ModerationNewParams
	response *openai.ModerationNewResponse
	err      error
}

func (m *mockModerations) New(ctx context.Context, params openai.ModerationNewParams, _ ...option.RequestOption) (*openai.ModerationNewResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, params)
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

// wordSource encodes one token per word for every model.
type wordSource struct{}

type wordEncoder struct{}

func (wordEncoder) Encode(text string, _ []string, _ []string) []int {
	return make([]int, len(strings.Fields(text)))
}

func (wordSource) EncodingForModel(string) (tokens.Encoder, error) { return wordEncoder{}, nil }

func (wordSource) GetEncoding(string) (tokens.Encoder, error) { return wordEncoder{}, nil }

type recordingPublisher struct {
	events []interface{}
}

func (r *recordingPublisher) Publish(_ string, event interface{}) {
	r.events = append(r.events, event)
}

func newChatCompletion(content, finishReason string, totalTokens int64) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		ID:     "chatcmpl-test",
		Object: constant.ChatCompletion(""),
		Model:  string(shared.ChatModelGPT4),
		Choices: []openai.ChatCompletionChoice{{
			Index:        0,
			FinishReason: finishReason,
			Message: openai.ChatCompletionMessage{
				Role:    constant.Assistant(""),
				Content: content,
			},
		}},
		Usage: openai.CompletionUsage{TotalTokens: totalTokens},
	}
}

func newTestClient(t *testing.T, cfg Config, chat *mockChatCompletions, moderations *mockModerations, opts ...Option) *Client {
	t.Helper()
	estimator := tokens.NewEstimator(tokens.WithEncoderSource(wordSource{}), tokens.WithLogger(logging.NewDisabledLogger()))
	all := []Option{
		WithEstimator(estimator),
		WithLogger(logging.NewDisabledLogger()),
	}
	if chat != nil {
		all = append(all, WithChatClient(chat))
	}
	if moderations != nil {
		all = append(all, WithModerationClient(moderations))
	}
	client, err := NewClient(cfg, append(all, opts...)...)
	require.NoError(t, err)
	return client
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "missing model", mutate: func(c *Config) { c.Model = " " }, wantErr: "model is required"},
		{name: "zero max tokens", mutate: func(c *Config) { c.MaxTokens = 0 }, wantErr: "max tokens"},
		{name: "frequency penalty too high", mutate: func(c *Config) { c.FrequencyPenalty = 2.5 }, wantErr: "frequency penalty"},
		{name: "presence penalty too low", mutate: func(c *Config) { c.PresencePenalty = -3 }, wantErr: "presence penalty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			_, err := NewClient(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "gpt-4", cfg.Model)
	assert.Equal(t, int64(2048), cfg.MaxTokens)
	assert.Equal(t, 0.2, cfg.FrequencyPenalty)
	assert.Equal(t, 0.2, cfg.PresencePenalty)
	assert.Empty(t, cfg.Instruction)
}

func TestClient_Moderate_TestModeSkipsNetwork(t *testing.T) {
	moderations := &mockModerations{}
	client := newTestClient(t, DefaultConfig(), nil, moderations)

	flagged, err := client.Moderate(context.Background(), "a perfectly nice story", ModerateOptions{Test: true, TestFlagged: true})
	require.NoError(t, err)
	assert.True(t, flagged)

	flagged, err = client.Moderate(context.Background(), "anything", ModerateOptions{Test: true})
	require.NoError(t, err)
	assert.False(t, flagged)

	assert.Empty(t, moderations.requests)
}

func TestClient_Moderate_Remote(t *testing.T) {
	moderations := &mockModerations{
		response: &openai.ModerationNewResponse{Results: []openai.Moderation{{Flagged: true}}},
	}
	cfg := DefaultConfig()
	cfg.ModerationModel = "omni-moderation-latest"
	client := newTestClient(t, cfg, nil, moderations)

	flagged, err := client.Moderate(context.Background(), "something awful", ModerateOptions{})
	require.NoError(t, err)
	assert.True(t, flagged)

	require.Len(t, moderations.requests, 1)
	request := moderations.requests[0]
	require.True(t, request.Input.OfString.Valid())
	assert.Equal(t, "something awful", request.Input.OfString.Value)
	assert.Equal(t, "omni-moderation-latest", string(request.Model))
}

func TestClient_Moderate_NoResults(t *testing.T) {
	moderations := &mockModerations{response: &openai.ModerationNewResponse{}}
	client := newTestClient(t, DefaultConfig(), nil, moderations)

	_, err := client.Moderate(context.Background(), "text", ModerateOptions{})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestClient_Moderate_RemoteErrorIsNotWrapped(t *testing.T) {
	remoteErr := errors.New("401 invalid api key")
	client := newTestClient(t, DefaultConfig(), nil, &mockModerations{err: remoteErr})

	_, err := client.Moderate(context.Background(), "text", ModerateOptions{})
	assert.Same(t, remoteErr, err)
}

func TestClient_Generate_TestMode(t *testing.T) {
	tests := []struct {
		reason string
		want   string
	}{
		{reason: "bogus", want: "stop"},
		{reason: "", want: "stop"},
		{reason: "top", want: "stop"},
		{reason: "stop", want: "stop"},
		{reason: "length", want: "length"},
		{reason: "content_filter", want: "content_filter"},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			chat := &mockChatCompletions{t: t}
			var slept []time.Duration
			client := newTestClient(t, DefaultConfig(), chat, nil,
				WithSleep(func(d time.Duration) { slept = append(slept, d) }))

			got, err := client.Generate(context.Background(), GenerateRequest{
				UserMessage: "a bunny",
				Test:        true,
				TestReason:  tt.reason,
				TestDelay:   250 * time.Millisecond,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.FinishReason)
			assert.Equal(t, ExampleStory, got.Text)
			assert.Equal(t, []time.Duration{250 * time.Millisecond}, slept)
			assert.Empty(t, chat.requests)
			assert.Zero(t, client.EstimatedTokens())
			assert.Zero(t, client.TotalTokens())
		})
	}
}

func TestClient_Generate_TestModeCustomStory(t *testing.T) {
	client := newTestClient(t, DefaultConfig(), nil, nil,
		WithExampleStory("A tiny tale."), WithSleep(func(time.Duration) {}))

	got, err := client.Generate(context.Background(), GenerateRequest{Test: true})
	require.NoError(t, err)
	assert.Equal(t, "A tiny tale.", got.Text)
}

func TestClient_Generate_SingleShot(t *testing.T) {
	chat := &mockChatCompletions{
		t: t,
		responses: []*openai.ChatCompletion{
			newChatCompletion("Once upon a time...", "length", 120),
		},
	}
	publisher := &recordingPublisher{}
	client := newTestClient(t, DefaultConfig(), chat, nil, WithPublisher(publisher))
	require.False(t, client.Persistent())

	got, err := client.Generate(context.Background(), GenerateRequest{
		UserMessage: "a shy dragon",
		Instruction: "You write gentle stories.",
	})
	require.NoError(t, err)
	assert.Equal(t, "Once upon a time...", got.Text)
	assert.Equal(t, "length", got.FinishReason)

	// gpt-4 accounts as gpt-4-0314: 3 per message, one token per word of role
	// and content, 3 priming.
	assert.Equal(t, (3+1+4)+(3+1+3)+3, client.EstimatedTokens())
	assert.Equal(t, 120, client.TotalTokens())
	assert.Empty(t, client.Messages())

	require.Len(t, chat.requests, 1)
	request := chat.requests[0]
	assert.Equal(t, shared.ChatModel("gpt-4"), request.Model)
	assert.Equal(t, int64(2048), request.MaxCompletionTokens.Value)
	assert.Equal(t, 0.2, request.FrequencyPenalty.Value)
	assert.Equal(t, 0.2, request.PresencePenalty.Value)
	require.Len(t, request.Messages, 2)
	require.NotNil(t, request.Messages[0].OfSystem)
	assert.Equal(t, "You write gentle stories.", request.Messages[0].OfSystem.Content.OfString.Value)
	require.NotNil(t, request.Messages[1].OfUser)
	assert.Equal(t, "a shy dragon", request.Messages[1].OfUser.Content.OfString.Value)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, events.TokenCountEvent{Model: "gpt-4", EstimatedTokens: 18, TotalTokens: 120}, publisher.events[0])
}

func TestClient_Generate_SingleShotWithoutInstruction(t *testing.T) {
	chat := &mockChatCompletions{
		t:         t,
		responses: []*openai.ChatCompletion{newChatCompletion("story", "stop", 10)},
	}
	client := newTestClient(t, DefaultConfig(), chat, nil)

	_, err := client.Generate(context.Background(), GenerateRequest{UserMessage: "a cat"})
	require.NoError(t, err)

	require.Len(t, chat.requests, 1)
	require.Len(t, chat.requests[0].Messages, 1)
	assert.NotNil(t, chat.requests[0].Messages[0].OfUser)
}

func TestClient_Generate_Persistent(t *testing.T) {
	chat := &mockChatCompletions{
		t: t,
		responses: []*openai.ChatCompletion{
			newChatCompletion("first story", "stop", 100),
			newChatCompletion("second story", "stop", 40),
		},
	}
	cfg := DefaultConfig()
	cfg.Instruction = "You write gentle stories."
	client := newTestClient(t, cfg, chat, nil)
	require.True(t, client.Persistent())
	require.Len(t, client.Messages(), 1)

	_, err := client.Generate(context.Background(), GenerateRequest{UserMessage: "a brave mouse"})
	require.NoError(t, err)
	firstEstimate := client.EstimatedTokens()

	_, err = client.Generate(context.Background(), GenerateRequest{
		UserMessage: "the mouse goes to school",
		Instruction: "ignored on persistent conversations",
	})
	require.NoError(t, err)

	messages := client.Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, tokens.Message{Role: tokens.RoleSystem, Content: "You write gentle stories."}, messages[0])
	assert.Equal(t, tokens.Message{Role: tokens.RoleUser, Content: "a brave mouse"}, messages[1])
	assert.Equal(t, tokens.Message{Role: tokens.RoleUser, Content: "the mouse goes to school"}, messages[2])

	assert.Greater(t, client.EstimatedTokens(), firstEstimate)
	assert.Equal(t, (3+1+4)+(3+1+3)+(3+1+5)+3, client.EstimatedTokens())

	require.Len(t, chat.requests, 2)
	assert.Len(t, chat.requests[0].Messages, 2)
	second := chat.requests[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, "You write gentle stories.", second[0].OfSystem.Content.OfString.Value)

	// usage is overwritten, not accumulated
	assert.Equal(t, 40, client.TotalTokens())
}

func TestClient_Generate_RemoteErrorIsNotWrapped(t *testing.T) {
	remoteErr := errors.New("429 quota exceeded")
	chat := &mockChatCompletions{t: t, err: remoteErr}
	cfg := DefaultConfig()
	cfg.Instruction = "Be kind."
	client := newTestClient(t, cfg, chat, nil)

	_, err := client.Generate(context.Background(), GenerateRequest{UserMessage: "a lost kite"})
	assert.Same(t, remoteErr, err)
	assert.Len(t, chat.requests, 1, "no retries")

	assert.Len(t, client.Messages(), 1, "failed turns are not committed")
	assert.Equal(t, (3+1+2)+(3+1+3)+3, client.EstimatedTokens())
	assert.Zero(t, client.TotalTokens())
}

func TestClient_Generate_UnsupportedModel(t *testing.T) {
	chat := &mockChatCompletions{t: t}
	cfg := DefaultConfig()
	cfg.Model = "made-up-model-9000"
	client := newTestClient(t, cfg, chat, nil)

	_, err := client.Generate(context.Background(), GenerateRequest{UserMessage: "hello"})
	assert.ErrorIs(t, err, tokens.ErrUnsupportedModel)
	assert.Empty(t, chat.requests)
}

func TestClient_Generate_NoChoices(t *testing.T) {
	chat := &mockChatCompletions{
		t:         t,
		responses: []*openai.ChatCompletion{{ID: "empty"}},
	}
	client := newTestClient(t, DefaultConfig(), chat, nil)

	_, err := client.Generate(context.Background(), GenerateRequest{UserMessage: "hello"})
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Zero(t, client.TotalTokens())
}

func TestClient_MissingAPIKey(t *testing.T) {
	client := newTestClient(t, DefaultConfig(), nil, nil)

	_, err := client.Generate(context.Background(), GenerateRequest{UserMessage: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")

	_, err = client.Moderate(context.Background(), "hello", ModerateOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestNormalizeFinishReason(t *testing.T) {
	assert.Equal(t, "stop", NormalizeFinishReason("stop"))
	assert.Equal(t, "length", NormalizeFinishReason("length"))
	assert.Equal(t, "content_filter", NormalizeFinishReason("content_filter"))
	assert.Equal(t, "stop", NormalizeFinishReason("tool_calls"))
}
