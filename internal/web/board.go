package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cexll/fcpbot/internal/fcp"
	"github.com/cexll/fcpbot/internal/github/comment"
	"github.com/cexll/fcpbot/internal/store"
)

var (
	// ErrNotTracked means the issue has never been seen by the bot.
	ErrNotTracked = errors.New("issue not tracked")
	// ErrNoProposal means the issue has no proposal.
	ErrNoProposal = errors.New("no proposal on this issue")
)

// Reviewer is one row of a proposal's checklist.
type Reviewer struct {
	Login    string `json:"login"`
	Reviewed bool   `json:"reviewed"`
}

// Concern is a listed concern with a link to its latest comment.
type Concern struct {
	Name     string `json:"name"`
	Resolved bool   `json:"resolved"`
	URL      string `json:"url"`
}

// Proposal is the read-only view of one proposal.
type Proposal struct {
	Repository  string     `json:"repository"`
	Number      int        `json:"number"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Initiator   string     `json:"initiator"`
	Disposition string     `json:"disposition"`
	Status      string     `json:"status"`
	FCPStart    *time.Time `json:"fcp_start,omitempty"`
	FCPEnd      *time.Time `json:"fcp_end,omitempty"`
	Reviewers   []Reviewer `json:"reviewers"`
	Pending     []string   `json:"pending_reviewers"`
	Concerns    []Concern  `json:"concerns,omitempty"`
}

// Board builds proposal views from the store.
type Board struct {
	store store.Store
	wait  time.Duration
}

// NewBoard creates a Board. A non-positive wait means fcp.WaitPeriod.
func NewBoard(st store.Store, wait time.Duration) *Board {
	if wait <= 0 {
		wait = fcp.WaitPeriod
	}
	return &Board{store: st, wait: wait}
}

// Open returns every proposal whose FCP has not closed, ordered by proposal
// ID. A non-empty repo restricts the result to that repository.
func (b *Board) Open(ctx context.Context, repo string) ([]Proposal, error) {
	proposals, err := b.store.ListProposals(ctx, store.StageOpen)
	if err != nil {
		return nil, err
	}
	out := make([]Proposal, 0, len(proposals))
	for i := range proposals {
		p := &proposals[i]
		issue, err := b.store.GetIssue(ctx, p.IssueID)
		if err != nil {
			log.Printf("[Web] skipping proposal %d: %v", p.ID, err)
			continue
		}
		if repo != "" && issue.Repository != repo {
			continue
		}
		view, err := b.view(ctx, issue, p)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

// Lookup returns the proposal on repo#number, finished or not.
func (b *Board) Lookup(ctx context.Context, repo string, number int) (Proposal, error) {
	issue, err := b.store.GetIssueByNumber(ctx, repo, number)
	if errors.Is(err, store.ErrNotFound) {
		return Proposal{}, ErrNotTracked
	}
	if err != nil {
		return Proposal{}, fmt.Errorf("load issue: %w", err)
	}
	p, err := b.store.GetProposalByIssue(ctx, issue.ID)
	if errors.Is(err, store.ErrNotFound) {
		return Proposal{}, ErrNoProposal
	}
	if err != nil {
		return Proposal{}, fmt.Errorf("load proposal: %w", err)
	}
	return b.view(ctx, issue, p)
}

func (b *Board) view(ctx context.Context, issue *store.Issue, p *store.Proposal) (Proposal, error) {
	reviews, err := b.store.ListReviewRequests(ctx, p.ID)
	if err != nil {
		return Proposal{}, fmt.Errorf("review requests: %w", err)
	}
	concerns, err := b.store.ListConcerns(ctx, p.ID)
	if err != nil {
		return Proposal{}, fmt.Errorf("concerns: %w", err)
	}

	ref := comment.Issue{Repository: issue.Repository, Number: issue.Number}
	v := Proposal{
		Repository:  issue.Repository,
		Number:      issue.Number,
		Title:       issue.Title,
		URL:         fmt.Sprintf("https://github.com/%s/issues/%d", issue.Repository, issue.Number),
		Initiator:   p.Initiator,
		Disposition: p.Disposition.String(),
		Status:      status(p),
		FCPStart:    p.FCPStart,
		Reviewers:   make([]Reviewer, 0, len(reviews)),
		Pending:     []string{},
	}
	if p.FCPStart != nil {
		end := p.FCPStart.Add(b.wait)
		v.FCPEnd = &end
	}
	for _, r := range reviews {
		v.Reviewers = append(v.Reviewers, Reviewer{Login: r.Reviewer, Reviewed: r.Reviewed})
		if !r.Reviewed {
			v.Pending = append(v.Pending, r.Reviewer)
		}
	}
	for _, c := range concerns {
		cv := Concern{Name: c.Name, Resolved: c.Resolved(), URL: ref.CommentURL(c.InitiatingComment)}
		if c.ResolvedComment != nil {
			cv.URL = ref.CommentURL(*c.ResolvedComment)
		}
		v.Concerns = append(v.Concerns, cv)
	}
	return v, nil
}

func status(p *store.Proposal) string {
	switch {
	case p.FCPClosed:
		return "finished"
	case p.FCPStart != nil:
		return "in-fcp"
	default:
		return "pending-review"
	}
}
