package store

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"time"

	"github.com/cexll/fcpbot/internal/fcp"
)

// User is a GitHub account seen in comments or review lists.
type User struct {
	ID    int64  `gorm:"primaryKey;autoIncrement:false"`
	Login string `gorm:"size:64;uniqueIndex;not null"`
}

// Issue mirrors a GitHub issue or pull request. ID is the GitHub id.
type Issue struct {
	ID         int64    `gorm:"primaryKey;autoIncrement:false"`
	Repository string   `gorm:"size:128;not null;uniqueIndex:idx_issue_repo_number"`
	Number     int      `gorm:"not null;uniqueIndex:idx_issue_repo_number"`
	Title      string   `gorm:"size:512"`
	Author     string   `gorm:"size:64"`
	Open       bool     `gorm:"not null"`
	Labels     []string `gorm:"serializer:json"`
	UpdatedAt  time.Time
}

// HasLabel reports whether the issue carries label.
func (i *Issue) HasLabel(label string) bool {
	return slices.Contains(i.Labels, label)
}

// Comment is an issue comment. ID is the GitHub id.
type Comment struct {
	ID        int64  `gorm:"primaryKey;autoIncrement:false"`
	IssueID   int64  `gorm:"index;not null"`
	Author    string `gorm:"size:64;not null"`
	Body      string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Proposal is an FCP proposal. An issue has at most one.
type Proposal struct {
	ID                int64           `gorm:"primaryKey;autoIncrement"`
	IssueID           int64           `gorm:"uniqueIndex;not null"`
	Initiator         string          `gorm:"size:64;not null"`
	InitiatingComment int64           `gorm:"not null"`
	Disposition       fcp.Disposition `gorm:"size:16;not null"`
	TrackingComment   int64           `gorm:"not null"`
	FCPStart          *time.Time
	FCPClosed         bool `gorm:"not null"`
}

// Started reports whether the final comment period is running or over.
func (p *Proposal) Started() bool { return p.FCPStart != nil }

// ReviewRequest is one required reviewer's sign-off on a proposal.
type ReviewRequest struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	ProposalID int64  `gorm:"not null;uniqueIndex:idx_review_proposal_reviewer"`
	Reviewer   string `gorm:"size:64;not null;uniqueIndex:idx_review_proposal_reviewer"`
	Reviewed   bool   `gorm:"not null"`
}

// Concern blocks a proposal until its initiator resolves it.
type Concern struct {
	ID                int64  `gorm:"primaryKey;autoIncrement"`
	ProposalID        int64  `gorm:"not null;uniqueIndex:idx_concern_proposal_name"`
	Name              string `gorm:"type:text;not null"`
	NameKey           string `gorm:"size:64;not null;uniqueIndex:idx_concern_proposal_name"`
	Initiator         string `gorm:"size:64;not null"`
	InitiatingComment int64  `gorm:"not null"`
	ResolvedComment   *int64
}

// Resolved reports whether the concern has been resolved.
func (c *Concern) Resolved() bool { return c.ResolvedComment != nil }

// FeedbackRequest asks a user for input on an issue.
type FeedbackRequest struct {
	ID              int64  `gorm:"primaryKey;autoIncrement"`
	IssueID         int64  `gorm:"index;not null"`
	Initiator       string `gorm:"size:64;not null"`
	RequestedUser   string `gorm:"size:64;not null"`
	FeedbackComment *int64
}

// Poll is a question put to one or more teams.
type Poll struct {
	ID                int64    `gorm:"primaryKey;autoIncrement"`
	IssueID           int64    `gorm:"index;not null"`
	Initiator         string   `gorm:"size:64;not null"`
	InitiatingComment int64    `gorm:"not null"`
	Question          string   `gorm:"type:text"`
	QuestionKey       string   `gorm:"size:64;index"`
	Teams             []string `gorm:"serializer:json"`
	TrackingComment   int64    `gorm:"not null"`
	Closed            bool     `gorm:"not null"`
}

// PollReviewRequest is one team member's answer slot on a poll.
type PollReviewRequest struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	PollID   int64  `gorm:"not null;uniqueIndex:idx_poll_review_poll_reviewer"`
	Reviewer string `gorm:"size:64;not null;uniqueIndex:idx_poll_review_poll_reviewer"`
	Reviewed bool   `gorm:"not null"`
}

// ExactKey returns a fixed-width key that compares equal only for byte-identical
// strings, whatever the column collation.
func ExactKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Models lists every persisted type, for schema migration.
func Models() []any {
	return []any{
		&User{}, &Issue{}, &Comment{}, &Proposal{}, &ReviewRequest{},
		&Concern{}, &FeedbackRequest{}, &Poll{}, &PollReviewRequest{},
	}
}
