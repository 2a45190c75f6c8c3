// Package ledger records generated stories and reader feedback. It takes the
// place of the "Results" and "Feedback" worksheets the app used to append to.
package ledger

import (
	"context"
	"time"
)

// ResultRecord is one generated story.
type ResultRecord struct {
	ID                  string
	SessionID           string
	UserMessage         string
	Age                 int
	UserMessageComplete string
	Story               string
	FinishReason        string
	EstimatedTokens     int
	TotalTokens         int
	CreatedAt           time.Time
}

// FeedbackRecord is a reader's rating of a story.
type FeedbackRecord struct {
	ID                  string
	SessionID           string
	UserMessage         string
	Age                 int
	UserMessageComplete string
	Story               string
	Rating              int
	AdditionalComments  string
	CreatedAt           time.Time
}

// Ledger stores results and feedback rows.
type Ledger interface {
	SaveResult(ctx context.Context, record ResultRecord) error
	SaveFeedback(ctx context.Context, record FeedbackRecord) error
	// Results returns the most recent results first. limit <= 0 means all.
	Results(ctx context.Context, limit int) ([]ResultRecord, error)
	Feedback(ctx context.Context, sessionID string) ([]FeedbackRecord, error)
	Close() error
}
