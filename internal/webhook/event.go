package webhook

import (
	"fmt"

	"github.com/cexll/fcpbot/internal/github"
)

// Kind distinguishes the deliveries the bot acts on.
type Kind string

const (
	// KindComment is a created or edited issue comment.
	KindComment Kind = "issue_comment"
	// KindIssue is a change to the issue itself (state, labels, title).
	KindIssue Kind = "issues"
)

// Event is one accepted delivery, ready for the dispatcher.
type Event struct {
	// DeliveryID is GitHub's X-GitHub-Delivery value, or a generated id.
	DeliveryID string
	Kind       Kind
	Action     string
	Issue      github.Issue
	// Comment is set for KindComment.
	Comment *github.Comment
}

// Key identifies the issue the event belongs to.
func (e *Event) Key() string {
	return fmt.Sprintf("%s#%d", e.Issue.Repository, e.Issue.Number)
}

// EventDispatcher queues events for asynchronous processing.
type EventDispatcher interface {
	Enqueue(event *Event) error
}
