package events

// Event is anything that knows its own topic.
type Event interface {
	Topic() string
}

// Emit publishes e on its own topic.
func Emit(p Publisher, e Event) {
	if p == nil {
		return
	}
	p.Publish(e.Topic(), e)
}

// PromptCheckedEvent is published after a prompt went through validation and moderation.
type PromptCheckedEvent struct {
	SessionID string
	Prompt    string
	Flagged   bool
	// Error is the message shown to the reader; empty when the prompt was accepted.
	Error string
}

func (e PromptCheckedEvent) Topic() string {
	return "prompt.checked"
}

// StoryGeneratedEvent is published once a story has been produced.
type StoryGeneratedEvent struct {
	SessionID    string
	Prompt       string
	Story        string
	FinishReason string
	Warning      string
}

func (e StoryGeneratedEvent) Topic() string {
	return "story.generated"
}

// FeedbackSubmittedEvent is published when a reader rates a story.
type FeedbackSubmittedEvent struct {
	SessionID string
	Rating    int
	Comments  string
}

func (e FeedbackSubmittedEvent) Topic() string {
	return "feedback.submitted"
}

// TokenCountEvent carries the local estimate and the usage reported by the provider.
type TokenCountEvent struct {
	SessionID       string
	Model           string
	EstimatedTokens int
	TotalTokens     int
}

func (e TokenCountEvent) Topic() string {
	return "token.count"
}
