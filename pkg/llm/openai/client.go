package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/kcaldas/storysprout/pkg/events"
	"github.com/kcaldas/storysprout/pkg/logging"
	"github.com/kcaldas/storysprout/pkg/tokens"
)

// Finish reasons reported by the chat completions API.
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonContentFilter = "content_filter"
)

var (
	errMissingAPIKey = errors.New("openai backend not configured")

	// ErrMalformedResponse is returned when a response lacks the choices or
	// moderation results the client reads.
	ErrMalformedResponse = errors.New("malformed openai response")
)

type chatCompletionClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

type moderationClient interface {
	New(ctx context.Context, body openai.ModerationNewParams, opts ...option.RequestOption) (*openai.ModerationNewResponse, error)
}

// TokenEstimator is the local token accounting the client runs before each call.
type TokenEstimator interface {
	Estimate(model string, messages []tokens.Message) (int, error)
}

// ModerateOptions selects the offline test variant of Moderate.
type ModerateOptions struct {
	Test        bool
	TestFlagged bool
}

// GenerateRequest is one story request.
type GenerateRequest struct {
	UserMessage string
	// Instruction is the per-call system message. It is only used by
	// single-shot clients; persistent clients keep their seeded instruction.
	Instruction string

	Test       bool
	TestReason string
	TestDelay  time.Duration
}

// Completion is the generated text and the reason generation stopped.
type Completion struct {
	Text         string
	FinishReason string
}

// Option configures the OpenAI client.
type Option func(*Client)

// WithChatClient injects a custom Chat Completions client (primarily for tests).
func WithChatClient(chat chatCompletionClient) Option {
	return func(c *Client) {
		if chat != nil {
			c.chatCompletions = chat
		}
	}
}

// WithModerationClient injects a custom Moderations client (primarily for tests).
func WithModerationClient(moderations moderationClient) Option {
	return func(c *Client) {
		if moderations != nil {
			c.moderations = moderations
		}
	}
}

// WithEstimator replaces the tiktoken-backed estimator.
func WithEstimator(estimator TokenEstimator) Option {
	return func(c *Client) {
		if estimator != nil {
			c.estimator = estimator
		}
	}
}

// WithPublisher publishes a TokenCountEvent after every successful generation.
func WithPublisher(publisher events.Publisher) Option {
	return func(c *Client) {
		if publisher != nil {
			c.publisher = publisher
		}
	}
}

// WithLogger injects a custom logger implementation.
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithExampleStory overrides the text returned by test-mode generation.
func WithExampleStory(story string) Option {
	return func(c *Client) {
		if strings.TrimSpace(story) != "" {
			c.exampleStory = story
		}
	}
}

// WithSleep replaces the blocking sleep used to simulate latency in test mode.
func WithSleep(sleep func(time.Duration)) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// Client mediates moderation and story generation against OpenAI and keeps the
// token bookkeeping of the last call. A Client is meant for a single caller.
type Client struct {
	cfg Config

	chatCompletions chatCompletionClient
	moderations     moderationClient
	estimator       TokenEstimator
	publisher       events.Publisher
	logger          logging.Logger

	exampleStory string
	sleep        func(time.Duration)

	conversation    []tokens.Message
	estimatedTokens int
	totalTokens     int
}

// NewClient validates cfg and builds a client. Credentials are only checked
// on the first remote call, so test-mode calls work without them.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := &Client{
		cfg:          cfg,
		publisher:    &events.NoOpEventBus{},
		logger:       logging.NewAPILogger("openai"),
		exampleStory: ExampleStory,
		sleep:        time.Sleep,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.estimator == nil {
		client.estimator = tokens.NewEstimator(tokens.WithLogger(client.logger))
	}

	if instruction := strings.TrimSpace(cfg.Instruction); instruction != "" {
		client.conversation = []tokens.Message{{Role: tokens.RoleSystem, Content: instruction}}
	}

	return client, nil
}

// Persistent reports whether the client keeps a growing conversation.
func (c *Client) Persistent() bool {
	return len(c.conversation) > 0
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.cfg.Model
}

// EstimatedTokens is the local estimate computed before the most recent call.
func (c *Client) EstimatedTokens() int {
	return c.estimatedTokens
}

// TotalTokens is the usage reported for the most recent successful call.
func (c *Client) TotalTokens() int {
	return c.totalTokens
}

// Messages returns a copy of the persistent conversation.
func (c *Client) Messages() []tokens.Message {
	return append([]tokens.Message(nil), c.conversation...)
}

// Moderate reports whether text violates the provider's usage policies.
func (c *Client) Moderate(ctx context.Context, text string, opts ModerateOptions) (bool, error) {
	if opts.Test {
		return opts.TestFlagged, nil
	}
	if err := c.ensureModerationClient(); err != nil {
		return false, err
	}

	params := openai.ModerationNewParams{
		Input: openai.ModerationNewParamsInputUnion{OfString: openai.String(text)},
	}
	if c.cfg.ModerationModel != "" {
		params.Model = openai.ModerationModel(c.cfg.ModerationModel)
	}

	resp, err := c.moderations.New(ctx, params)
	if err != nil {
		return false, err
	}
	if resp == nil || len(resp.Results) == 0 {
		return false, fmt.Errorf("%w: moderation returned no results", ErrMalformedResponse)
	}

	c.logger.Debug("moderation finished", "flagged", resp.Results[0].Flagged)
	return resp.Results[0].Flagged, nil
}

// Generate requests a completion for req.UserMessage. Remote errors are
// returned as they come from the SDK; nothing is retried.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (Completion, error) {
	if req.Test {
		return c.testCompletion(req), nil
	}

	messages := c.nextMessages(req)
	estimate, err := c.estimator.Estimate(c.cfg.Model, messages)
	if err != nil {
		return Completion{}, err
	}
	c.estimatedTokens = estimate

	if err := c.ensureChatClient(); err != nil {
		return Completion{}, err
	}

	params := openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(c.cfg.Model),
		Messages:            toParams(messages),
		MaxCompletionTokens: openai.Int(c.cfg.MaxTokens),
		FrequencyPenalty:    openai.Float(c.cfg.FrequencyPenalty),
		PresencePenalty:     openai.Float(c.cfg.PresencePenalty),
	}

	c.logger.Debug("requesting completion", "model", c.cfg.Model, "messages", len(messages), "estimated_tokens", estimate)
	resp, err := c.chatCompletions.New(ctx, params)
	if err != nil {
		return Completion{}, err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("%w: chat completion returned no choices", ErrMalformedResponse)
	}

	choice := resp.Choices[0]
	c.totalTokens = int(resp.Usage.TotalTokens)
	if c.Persistent() {
		c.conversation = messages
	}

	events.Emit(c.publisher, events.TokenCountEvent{
		Model:           c.cfg.Model,
		EstimatedTokens: c.estimatedTokens,
		TotalTokens:     c.totalTokens,
	})
	c.logger.Debug("completion received", "finish_reason", choice.FinishReason, "total_tokens", c.totalTokens)

	return Completion{
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}, nil
}

// nextMessages is the message list for one request. The persistent
// conversation is only extended once the request succeeds.
func (c *Client) nextMessages(req GenerateRequest) []tokens.Message {
	user := tokens.Message{Role: tokens.RoleUser, Content: req.UserMessage}

	if c.Persistent() {
		if strings.TrimSpace(req.Instruction) != "" {
			c.logger.Debug("ignoring per-call instruction on persistent conversation")
		}
		messages := make([]tokens.Message, 0, len(c.conversation)+1)
		messages = append(messages, c.conversation...)
		return append(messages, user)
	}

	if instruction := strings.TrimSpace(req.Instruction); instruction != "" {
		return []tokens.Message{{Role: tokens.RoleSystem, Content: instruction}, user}
	}
	return []tokens.Message{user}
}

func (c *Client) testCompletion(req GenerateRequest) Completion {
	c.sleep(req.TestDelay)
	return Completion{
		Text:         c.exampleStory,
		FinishReason: NormalizeFinishReason(req.TestReason),
	}
}

// NormalizeFinishReason maps anything other than stop, length or
// content_filter to stop.
func NormalizeFinishReason(reason string) string {
	switch reason {
	case FinishReasonStop, FinishReasonLength, FinishReasonContentFilter:
		return reason
	default:
		return FinishReasonStop
	}
}

func (c *Client) ensureChatClient() error {
	if c.chatCompletions != nil {
		return nil
	}
	client, err := c.newAPIClient()
	if err != nil {
		return err
	}
	service := client.Chat.Completions
	c.chatCompletions = &service
	return nil
}

func (c *Client) ensureModerationClient() error {
	if c.moderations != nil {
		return nil
	}
	client, err := c.newAPIClient()
	if err != nil {
		return err
	}
	service := client.Moderations
	c.moderations = &service
	return nil
}

func (c *Client) newAPIClient() (*openai.Client, error) {
	apiKey := strings.TrimSpace(c.cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: please export OPENAI_API_KEY (and optionally OPENAI_BASE_URL or OPENAI_ORG_ID)", errMissingAPIKey)
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(c.cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if org := strings.TrimSpace(c.cfg.Organization); org != "" {
		opts = append(opts, option.WithOrganization(org))
	}
	// The SDK retries twice by default; failures surface immediately here.
	opts = append(opts, option.WithMaxRetries(0))

	client := openai.NewClient(opts...)
	return &client, nil
}

func toParams(messages []tokens.Message) []openai.ChatCompletionMessageParamUnion {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		params = append(params, toParam(msg))
	}
	return params
}

func toParam(msg tokens.Message) openai.ChatCompletionMessageParamUnion {
	switch msg.Role {
	case tokens.RoleSystem:
		p := openai.ChatCompletionSystemMessageParam{
			Content: openai.ChatCompletionSystemMessageParamContentUnion{OfString: openai.String(msg.Content)},
		}
		if msg.Name != "" {
			p.Name = openai.String(msg.Name)
		}
		return openai.ChatCompletionMessageParamUnion{OfSystem: &p}
	case tokens.RoleAssistant:
		p := openai.ChatCompletionAssistantMessageParam{
			Content: openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(msg.Content)},
		}
		if msg.Name != "" {
			p.Name = openai.String(msg.Name)
		}
		return openai.ChatCompletionMessageParamUnion{OfAssistant: &p}
	default:
		p := openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{OfString: openai.String(msg.Content)},
		}
		if msg.Name != "" {
			p.Name = openai.String(msg.Name)
		}
		return openai.ChatCompletionMessageParamUnion{OfUser: &p}
	}
}
