// Package store defines the persisted FCP state and the storage contract.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when an insert violates a uniqueness constraint.
	ErrDuplicate = errors.New("store: duplicate")
)

// Stage selects proposals by lifecycle position.
type Stage int

const (
	// StageOpen is every proposal whose FCP has not closed.
	StageOpen Stage = iota
	// StagePending is proposals still collecting reviews.
	StagePending
	// StageStarted is proposals in their final comment period.
	StageStarted
	// StageAll includes closed proposals.
	StageAll
)

// Matches reports whether p belongs to the stage.
func (s Stage) Matches(p *Proposal) bool {
	switch s {
	case StagePending:
		return p.FCPStart == nil
	case StageStarted:
		return p.FCPStart != nil && !p.FCPClosed
	case StageAll:
		return true
	default:
		return !p.FCPClosed
	}
}

// Store persists FCP state. Implementations must be safe for concurrent use.
//
// Get* methods return ErrNotFound when nothing matches. Create* methods assign
// the generated ID back into their argument.
type Store interface {
	// WithTx runs fn against a transactional view. All writes made through the
	// view are committed if fn returns nil and discarded otherwise.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	UpsertUser(ctx context.Context, u *User) error

	UpsertIssue(ctx context.Context, i *Issue) error
	GetIssue(ctx context.Context, id int64) (*Issue, error)
	GetIssueByNumber(ctx context.Context, repo string, number int) (*Issue, error)

	UpsertComment(ctx context.Context, c *Comment) error
	GetComment(ctx context.Context, id int64) (*Comment, error)

	// CreateProposal returns ErrDuplicate if the issue already has a proposal.
	CreateProposal(ctx context.Context, p *Proposal) error
	GetProposal(ctx context.Context, id int64) (*Proposal, error)
	GetProposalByIssue(ctx context.Context, issueID int64) (*Proposal, error)
	UpdateProposal(ctx context.Context, p *Proposal) error
	// DeleteProposal removes the proposal with its review requests and concerns.
	DeleteProposal(ctx context.Context, id int64) error
	// ListProposals returns proposals of the stage ordered by ID.
	ListProposals(ctx context.Context, stage Stage) ([]Proposal, error)

	CreateReviewRequests(ctx context.Context, reqs []ReviewRequest) error
	// ListReviewRequests returns the proposal's review requests ordered by reviewer.
	ListReviewRequests(ctx context.Context, proposalID int64) ([]ReviewRequest, error)
	UpdateReviewRequest(ctx context.Context, r *ReviewRequest) error

	// CreateConcern returns ErrDuplicate if the name is taken on the proposal.
	CreateConcern(ctx context.Context, c *Concern) error
	// ListConcerns returns the proposal's concerns ordered by ID.
	ListConcerns(ctx context.Context, proposalID int64) ([]Concern, error)
	UpdateConcern(ctx context.Context, c *Concern) error

	CreateFeedbackRequest(ctx context.Context, f *FeedbackRequest) error
	// ListOpenFeedbackRequests returns the issue's unresolved feedback requests.
	ListOpenFeedbackRequests(ctx context.Context, issueID int64) ([]FeedbackRequest, error)
	UpdateFeedbackRequest(ctx context.Context, f *FeedbackRequest) error

	CreatePoll(ctx context.Context, p *Poll) error
	GetPollByQuestion(ctx context.Context, issueID int64, question string) (*Poll, error)
	// ListOpenPolls returns polls that are not closed, ordered by ID.
	ListOpenPolls(ctx context.Context) ([]Poll, error)
	UpdatePoll(ctx context.Context, p *Poll) error
	CreatePollReviewRequests(ctx context.Context, reqs []PollReviewRequest) error
	// ListPollReviewRequests returns the poll's review requests ordered by reviewer.
	ListPollReviewRequests(ctx context.Context, pollID int64) ([]PollReviewRequest, error)
	UpdatePollReviewRequest(ctx context.Context, r *PollReviewRequest) error
}
