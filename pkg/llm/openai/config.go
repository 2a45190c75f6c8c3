package openai

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultModel            = "gpt-4"
	DefaultMaxTokens        = 2048
	DefaultFrequencyPenalty = 0.2
	DefaultPresencePenalty  = 0.2

	minPenalty = -2.0
	maxPenalty = 2.0
)

// ErrInvalidConfig is wrapped by every Config validation failure.
var ErrInvalidConfig = errors.New("invalid client configuration")

// Config is the typed construction-time configuration of a Client.
type Config struct {
	// Model is sent with every chat completion and selects the token accounting rule.
	Model            string
	MaxTokens        int64
	FrequencyPenalty float64
	PresencePenalty  float64

	// Instruction, when set, seeds a persistent conversation with a system
	// message and switches the client to multi-turn mode.
	Instruction string

	// ModerationModel is optional; the provider default is used when empty.
	ModerationModel string

	APIKey       string
	BaseURL      string
	Organization string
}

// DefaultConfig returns the documented defaults: gpt-4, 2048 output tokens and
// 0.2 for both penalties.
func DefaultConfig() Config {
	return Config{
		Model:            DefaultModel,
		MaxTokens:        DefaultMaxTokens,
		FrequencyPenalty: DefaultFrequencyPenalty,
		PresencePenalty:  DefaultPresencePenalty,
	}
}

// Validate checks the sampling controls against the ranges the API accepts.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("%w: max tokens must be positive, got %d", ErrInvalidConfig, c.MaxTokens)
	}
	if c.FrequencyPenalty < minPenalty || c.FrequencyPenalty > maxPenalty {
		return fmt.Errorf("%w: frequency penalty %.2f outside [-2, 2]", ErrInvalidConfig, c.FrequencyPenalty)
	}
	if c.PresencePenalty < minPenalty || c.PresencePenalty > maxPenalty {
		return fmt.Errorf("%w: presence penalty %.2f outside [-2, 2]", ErrInvalidConfig, c.PresencePenalty)
	}
	return nil
}
