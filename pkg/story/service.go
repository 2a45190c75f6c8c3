// Package story drives one reader session: prompt checks, story generation,
// result bookkeeping and feedback.
package story

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kcaldas/storysprout/pkg/config"
	"github.com/kcaldas/storysprout/pkg/events"
	"github.com/kcaldas/storysprout/pkg/ledger"
	"github.com/kcaldas/storysprout/pkg/llm/openai"
	"github.com/kcaldas/storysprout/pkg/logging"
	"github.com/kcaldas/storysprout/pkg/notify"
	"github.com/kcaldas/storysprout/pkg/prompts"
)

var (
	// ErrPromptNotAccepted is returned when a story is requested for a prompt
	// that was not checked, was rejected, or changed since the check.
	ErrPromptNotAccepted = errors.New("prompt has not been accepted")
	// ErrNoStory is returned when feedback is submitted before any story exists.
	ErrNoStory = errors.New("no story to rate")
	// ErrInvalidRating is returned for ratings outside the configured options.
	ErrInvalidRating = errors.New("invalid rating")
	// ErrFeedbackGiven is returned when the current story was already rated.
	ErrFeedbackGiven = errors.New("feedback already given for this story")
)

// Generator is the part of the OpenAI client the service needs.
type Generator interface {
	Moderate(ctx context.Context, text string, opts openai.ModerateOptions) (bool, error)
	Generate(ctx context.Context, req openai.GenerateRequest) (openai.Completion, error)
	EstimatedTokens() int
	TotalTokens() int
}

// Option configures a Service.
type Option func(*Service)

// WithLedger stores results and feedback in l.
func WithLedger(l ledger.Ledger) Option {
	return func(s *Service) {
		s.ledger = l
	}
}

// WithNotifier mails a notification for every story.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithPublisher publishes session events on p.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithLogger injects a custom logger implementation.
func WithLogger(logger logging.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTestConfig switches moderation and generation to their offline variants.
func WithTestConfig(cfg config.TestConfig) Option {
	return func(s *Service) {
		s.test = cfg
	}
}

// Service runs the story workflow on top of a Generator.
type Service struct {
	generator Generator
	storyCopy prompts.StoryCopy
	ledger    ledger.Ledger
	notifier  notify.Notifier
	publisher events.Publisher
	logger    logging.Logger
	test      config.TestConfig
	now       func() time.Time
}

// NewService builds a Service. Without a ledger nothing is recorded.
func NewService(generator Generator, storyCopy prompts.StoryCopy, opts ...Option) *Service {
	s := &Service{
		generator: generator,
		storyCopy: storyCopy,
		notifier:  notify.NoopNotifier{},
		publisher: &events.NoOpEventBus{},
		logger:    logging.NewComponentLogger("story"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Copy returns the texts the service was configured with.
func (s *Service) Copy() prompts.StoryCopy {
	return s.storyCopy
}

// NewSession starts a session with the configured default age.
func (s *Service) NewSession() *Session {
	return NewSession(s.storyCopy.DefaultAge)
}

// CheckPrompt validates and moderates the session's prompt. A rejected prompt
// is reported through sess.PromptError; the returned error is only set when
// moderation itself failed.
func (s *Service) CheckPrompt(ctx context.Context, sess *Session) (bool, error) {
	sess.PromptChecked = false
	msgs := s.storyCopy.Messages

	var promptError string
	flagged := false
	switch {
	case strings.TrimSpace(sess.UserMessage) == "":
		promptError = msgs.NoText
	case utf8.RuneCountInString(sess.UserMessage) > s.storyCopy.MaxPromptChars:
		promptError = fmt.Sprintf(msgs.TooLong, s.storyCopy.MaxPromptChars)
	case sess.Age < s.storyCopy.MinAge || sess.Age > s.storyCopy.MaxAge:
		promptError = fmt.Sprintf(msgs.AgeOutOfRange, s.storyCopy.MinAge, s.storyCopy.MaxAge)
	default:
		var err error
		flagged, err = s.Moderate(ctx, sess.UserMessage)
		if err != nil {
			return false, fmt.Errorf("moderation failed: %w", err)
		}
		if flagged {
			promptError = msgs.Flagged
		}
	}

	sess.markChecked(promptError)
	s.logger.Debug("prompt checked", "session", sess.ID, "accepted", promptError == "", "flagged", flagged)
	events.Emit(s.publisher, events.PromptCheckedEvent{
		SessionID: sess.ID,
		Prompt:    sess.UserMessage,
		Flagged:   flagged,
		Error:     promptError,
	})
	return promptError == "", nil
}

// Moderate runs moderation alone, honoring the configured test switches.
func (s *Service) Moderate(ctx context.Context, text string) (bool, error) {
	return s.generator.Moderate(ctx, text, openai.ModerateOptions{
		Test:        s.test.Moderation,
		TestFlagged: s.test.ModerationFlagged,
	})
}

// UserMessageFor is the text sent to the model for prompt and age.
func UserMessageFor(prompt string, age int) string {
	return fmt.Sprintf("%s.\n\nMake the story for a %d year old.", prompt, age)
}

// GenerateStory writes a story for the session's accepted prompt, records it
// and sends the notification. Recording and notification failures are logged
// and do not fail the call.
func (s *Service) GenerateStory(ctx context.Context, sess *Session) error {
	if !sess.Accepted() {
		return ErrPromptNotAccepted
	}

	userMessage := UserMessageFor(sess.UserMessage, sess.Age)
	completion, err := s.generator.Generate(ctx, openai.GenerateRequest{
		UserMessage: userMessage,
		Instruction: s.storyCopy.SystemPrompt,
		Test:        s.test.Story,
		TestReason:  s.test.Reason,
		TestDelay:   s.test.WaitTime,
	})
	if err != nil {
		return fmt.Errorf("story generation failed: %w", err)
	}

	sess.UserMessageComplete = userMessage
	sess.Story = completion.Text
	sess.Stories = append(sess.Stories, completion.Text)
	sess.FinishReason = completion.FinishReason
	sess.StoryWarning = s.warningFor(completion.FinishReason)
	sess.FeedbackGiven = false

	s.record(ctx, sess)

	events.Emit(s.publisher, events.StoryGeneratedEvent{
		SessionID:    sess.ID,
		Prompt:       sess.UserMessage,
		Story:        sess.Story,
		FinishReason: sess.FinishReason,
		Warning:      sess.StoryWarning,
	})
	return nil
}

func (s *Service) warningFor(finishReason string) string {
	switch finishReason {
	case openai.FinishReasonLength:
		return s.storyCopy.Messages.LengthWarning
	case openai.FinishReasonContentFilter:
		return s.storyCopy.Messages.ContentFilterWarning
	default:
		return ""
	}
}

func (s *Service) record(ctx context.Context, sess *Session) {
	result := ledger.ResultRecord{
		SessionID:           sess.ID,
		UserMessage:         sess.UserMessage,
		Age:                 sess.Age,
		UserMessageComplete: sess.UserMessageComplete,
		Story:               sess.Story,
		FinishReason:        sess.FinishReason,
		EstimatedTokens:     s.generator.EstimatedTokens(),
		TotalTokens:         s.generator.TotalTokens(),
		CreatedAt:           s.now(),
	}

	if s.ledger != nil {
		if err := s.ledger.SaveResult(ctx, result); err != nil {
			logging.LogError(s.logger, "could not save result", err, "session", sess.ID)
		}
	}

	note := notify.Notification{
		Time: result.CreatedAt,
		Fields: []notify.Field{
			{Key: "user_message", Value: result.UserMessage},
			{Key: "age", Value: result.Age},
			{Key: "user_message_complete", Value: result.UserMessageComplete},
			{Key: "story", Value: result.Story},
			{Key: "finish_reason", Value: result.FinishReason},
			{Key: "total_tokens", Value: result.TotalTokens},
		},
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		logging.LogError(s.logger, "could not send notification", err, "session", sess.ID)
	}
}

// SubmitFeedback rates the session's latest story.
func (s *Service) SubmitFeedback(ctx context.Context, sess *Session, rating int, comments string) error {
	if sess.Story == "" {
		return ErrNoStory
	}
	if sess.FeedbackGiven {
		return ErrFeedbackGiven
	}
	if _, ok := s.storyCopy.RateOptions[rating]; !ok {
		return fmt.Errorf("%w: %d", ErrInvalidRating, rating)
	}

	sess.Feedback = rating
	sess.AdditionalComments = comments

	if s.ledger != nil {
		err := s.ledger.SaveFeedback(ctx, ledger.FeedbackRecord{
			SessionID:           sess.ID,
			UserMessage:         sess.UserMessage,
			Age:                 sess.Age,
			UserMessageComplete: sess.UserMessageComplete,
			Story:               sess.Story,
			Rating:              rating,
			AdditionalComments:  comments,
			CreatedAt:           s.now(),
		})
		if err != nil {
			logging.LogError(s.logger, "could not save feedback", err, "session", sess.ID)
		}
	}

	sess.FeedbackGiven = true
	events.Emit(s.publisher, events.FeedbackSubmittedEvent{
		SessionID: sess.ID,
		Rating:    rating,
		Comments:  comments,
	})
	return nil
}

// History returns the most recent stored results. Without a ledger it is empty.
func (s *Service) History(ctx context.Context, limit int) ([]ledger.ResultRecord, error) {
	if s.ledger == nil {
		return nil, nil
	}
	return s.ledger.Results(ctx, limit)
}
