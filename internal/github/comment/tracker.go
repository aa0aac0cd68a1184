package comment

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// ErrCommentsDisabled is returned instead of posting when comments are turned off.
var ErrCommentsDisabled = errors.New("comment posting is disabled")

// Client is the part of the issue tracker the tracker needs.
type Client interface {
	CreateComment(ctx context.Context, repo string, number int, body string) (int64, error)
	EditComment(ctx context.Context, repo string, commentID int64, body string) error
	DeleteComment(ctx context.Context, repo string, commentID int64) error
}

// Tracker posts bot comments and keeps existing ones in sync with their rendered text.
type Tracker struct {
	client  Client
	enabled bool
}

// NewTracker creates a tracker. With enabled false nothing is ever sent.
func NewTracker(client Client, enabled bool) *Tracker {
	return &Tracker{client: client, enabled: enabled}
}

// Enabled reports whether comments are actually posted.
func (t *Tracker) Enabled() bool { return t != nil && t.enabled }

// Post renders t and creates a new comment, returning its id and text.
func (t *Tracker) Post(ctx context.Context, issue Issue, ct Type) (int64, string, error) {
	text := Render(issue, ct)
	if !t.Enabled() {
		log.Printf("[Comment] Skipping comment to %s#%d, comment posts are disabled", issue.Repository, issue.Number)
		return 0, text, ErrCommentsDisabled
	}
	id, err := t.client.CreateComment(ctx, issue.Repository, issue.Number, text)
	if err != nil {
		return 0, text, fmt.Errorf("create comment on %s#%d: %w", issue.Repository, issue.Number, err)
	}
	return id, text, nil
}

// Sync re-renders ct and edits commentID only when the text differs from previous.
// It returns the current text and whether an edit was issued.
func (t *Tracker) Sync(ctx context.Context, issue Issue, commentID int64, previous string, ct Type) (string, bool, error) {
	text := Render(issue, ct)
	if text == previous {
		return text, false, nil
	}
	if !t.Enabled() {
		return previous, false, ErrCommentsDisabled
	}
	if err := t.client.EditComment(ctx, issue.Repository, commentID, text); err != nil {
		return previous, false, fmt.Errorf("edit comment %d on %s: %w", commentID, issue.Repository, err)
	}
	return text, true, nil
}

// Withdraw deletes a comment created by Post whose state could not be recorded.
func (t *Tracker) Withdraw(ctx context.Context, issue Issue, commentID int64) error {
	if !t.Enabled() || commentID == 0 {
		return nil
	}
	if err := t.client.DeleteComment(ctx, issue.Repository, commentID); err != nil {
		return fmt.Errorf("delete comment %d on %s: %w", commentID, issue.Repository, err)
	}
	return nil
}
