package story

import (
	"github.com/google/uuid"
)

// Session is the state of one reader's visit: the current prompt, the
// stories produced so far and the feedback given.
type Session struct {
	ID string

	UserMessage         string
	Age                 int
	UserMessageComplete string

	Story        string
	Stories      []string
	FinishReason string
	StoryWarning string

	// PromptError is the message shown when the prompt was rejected.
	PromptError   string
	PromptChecked bool

	Feedback           int
	AdditionalComments string
	FeedbackGiven      bool

	defaultAge     int
	checkedMessage string
	checkedAge     int
}

// NewSession starts a session with a fresh ID and the given default age.
func NewSession(defaultAge int) *Session {
	s := &Session{defaultAge: defaultAge}
	s.Reset()
	return s
}

// Reset discards every story and answer and assigns a new ID.
func (s *Session) Reset() {
	*s = Session{
		ID:         uuid.NewString(),
		Age:        s.defaultAge,
		Stories:    []string{},
		defaultAge: s.defaultAge,
	}
}

// Accepted reports whether the current prompt and age passed CheckPrompt.
// Editing either afterwards requires a new check.
func (s *Session) Accepted() bool {
	return s.PromptChecked &&
		s.PromptError == "" &&
		s.checkedMessage == s.UserMessage &&
		s.checkedAge == s.Age
}

func (s *Session) markChecked(promptError string) {
	s.PromptChecked = true
	s.PromptError = promptError
	s.checkedMessage = s.UserMessage
	s.checkedAge = s.Age
}
