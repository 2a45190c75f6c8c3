// Package tokens estimates how many prompt tokens a chat request consumes
// before it is sent, following the provider's chat formatting rules.
package tokens

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/kcaldas/storysprout/pkg/logging"
)

// FallbackEncoding is used when no encoder is registered for a model.
const FallbackEncoding = "cl100k_base"

// replyPriming is added once per request: every reply is primed with
// <|start|>assistant<|message|>.
const replyPriming = 3

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversational turn. A non-empty Name marks a named participant.
type Message struct {
	Role    Role
	Content string
	Name    string
}

// Encoder turns text into tokens. *tiktoken.Tiktoken satisfies it.
type Encoder interface {
	Encode(text string, allowedSpecial []string, disallowedSpecial []string) []int
}

// EncoderSource resolves encoders by model or by encoding name.
type EncoderSource interface {
	EncodingForModel(model string) (Encoder, error)
	GetEncoding(name string) (Encoder, error)
}

type tiktokenSource struct{}

func (tiktokenSource) EncodingForModel(model string) (Encoder, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, err
	}
	return enc, nil
}

func (tiktokenSource) GetEncoding(name string) (Encoder, error) {
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, err
	}
	return enc, nil
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithEncoderSource replaces the tiktoken-backed encoder source (primarily for tests).
func WithEncoderSource(source EncoderSource) Option {
	return func(e *Estimator) {
		if source != nil {
			e.source = source
		}
	}
}

// WithLogger injects a custom logger implementation.
func WithLogger(logger logging.Logger) Option {
	return func(e *Estimator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Estimator counts prompt tokens locally. It is safe for concurrent use; encoders
// are loaded once per snapshot and cached.
type Estimator struct {
	source EncoderSource
	logger logging.Logger

	mu       sync.Mutex
	encoders map[string]Encoder
}

// NewEstimator builds an Estimator backed by tiktoken unless overridden.
func NewEstimator(opts ...Option) *Estimator {
	e := &Estimator{
		source:   tiktokenSource{},
		logger:   logging.NewComponentLogger("tokens"),
		encoders: make(map[string]Encoder),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate returns the number of prompt tokens messages will use on model.
// Rolling aliases are estimated with the snapshot they are pinned to.
func (e *Estimator) Estimate(model string, messages []Message) (int, error) {
	snapshot, _, err := Resolve(model)
	if err != nil {
		return 0, err
	}
	rule := snapshots[snapshot]

	encoder, err := e.encoderFor(snapshot)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, msg := range messages {
		total += rule.perMessage
		total += len(encoder.Encode(string(msg.Role), nil, nil))
		total += len(encoder.Encode(msg.Content, nil, nil))
		if msg.Name != "" {
			total += len(encoder.Encode(msg.Name, nil, nil))
			total += rule.perName
		}
	}
	return total + replyPriming, nil
}

func (e *Estimator) encoderFor(model string) (Encoder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if enc, ok := e.encoders[model]; ok {
		return enc, nil
	}

	enc, err := e.source.EncodingForModel(model)
	if err != nil || enc == nil {
		e.logger.Warn("model not found, using fallback encoding", "model", model, "encoding", FallbackEncoding)
		enc, err = e.source.GetEncoding(FallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("get encoding %s: %w", FallbackEncoding, err)
		}
	}

	e.encoders[model] = enc
	return enc, nil
}
