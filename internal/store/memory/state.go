package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/cexll/fcpbot/internal/store"
)

// state holds the tables. It implements store.Store without locking; Store
// guards it and WithTx hands a private clone to the transaction.
type state struct {
	nextID      int64
	users       map[int64]store.User
	issues      map[int64]store.Issue
	comments    map[int64]store.Comment
	proposals   map[int64]store.Proposal
	reviews     map[int64]store.ReviewRequest
	concerns    map[int64]store.Concern
	feedback    map[int64]store.FeedbackRequest
	polls       map[int64]store.Poll
	pollReviews map[int64]store.PollReviewRequest
}

func newState() *state {
	return &state{
		users:       make(map[int64]store.User),
		issues:      make(map[int64]store.Issue),
		comments:    make(map[int64]store.Comment),
		proposals:   make(map[int64]store.Proposal),
		reviews:     make(map[int64]store.ReviewRequest),
		concerns:    make(map[int64]store.Concern),
		feedback:    make(map[int64]store.FeedbackRequest),
		polls:       make(map[int64]store.Poll),
		pollReviews: make(map[int64]store.PollReviewRequest),
	}
}

// clone copies the tables. Values are copied on every read and write, so a
// shallow map copy is enough.
func (s *state) clone() *state {
	return &state{
		nextID:      s.nextID,
		users:       maps.Clone(s.users),
		issues:      maps.Clone(s.issues),
		comments:    maps.Clone(s.comments),
		proposals:   maps.Clone(s.proposals),
		reviews:     maps.Clone(s.reviews),
		concerns:    maps.Clone(s.concerns),
		feedback:    maps.Clone(s.feedback),
		polls:       maps.Clone(s.polls),
		pollReviews: maps.Clone(s.pollReviews),
	}
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneInt(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyIssue(i store.Issue) store.Issue {
	i.Labels = slices.Clone(i.Labels)
	return i
}

func copyProposal(p store.Proposal) store.Proposal {
	p.FCPStart = cloneTime(p.FCPStart)
	return p
}

func copyConcern(c store.Concern) store.Concern {
	c.ResolvedComment = cloneInt(c.ResolvedComment)
	return c
}

func copyFeedback(f store.FeedbackRequest) store.FeedbackRequest {
	f.FeedbackComment = cloneInt(f.FeedbackComment)
	return f
}

func copyPoll(p store.Poll) store.Poll {
	p.Teams = slices.Clone(p.Teams)
	return p
}

func (s *state) WithTx(_ context.Context, fn func(store.Store) error) error {
	return fn(s)
}

func (s *state) UpsertUser(_ context.Context, u *store.User) error {
	s.users[u.ID] = *u
	return nil
}

func (s *state) UpsertIssue(_ context.Context, i *store.Issue) error {
	for id, existing := range s.issues {
		if id != i.ID && existing.Repository == i.Repository && existing.Number == i.Number {
			return store.ErrDuplicate
		}
	}
	s.issues[i.ID] = copyIssue(*i)
	return nil
}

func (s *state) GetIssue(_ context.Context, id int64) (*store.Issue, error) {
	i, ok := s.issues[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	i = copyIssue(i)
	return &i, nil
}

func (s *state) GetIssueByNumber(_ context.Context, repo string, number int) (*store.Issue, error) {
	for _, i := range s.issues {
		if i.Repository == repo && i.Number == number {
			i = copyIssue(i)
			return &i, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *state) UpsertComment(_ context.Context, c *store.Comment) error {
	s.comments[c.ID] = *c
	return nil
}

func (s *state) GetComment(_ context.Context, id int64) (*store.Comment, error) {
	c, ok := s.comments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *state) CreateProposal(_ context.Context, p *store.Proposal) error {
	for _, existing := range s.proposals {
		if existing.IssueID == p.IssueID {
			return store.ErrDuplicate
		}
	}
	p.ID = s.id()
	s.proposals[p.ID] = copyProposal(*p)
	return nil
}

func (s *state) GetProposal(_ context.Context, id int64) (*store.Proposal, error) {
	p, ok := s.proposals[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	p = copyProposal(p)
	return &p, nil
}

func (s *state) GetProposalByIssue(_ context.Context, issueID int64) (*store.Proposal, error) {
	for _, p := range s.proposals {
		if p.IssueID == issueID {
			p = copyProposal(p)
			return &p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *state) UpdateProposal(_ context.Context, p *store.Proposal) error {
	if _, ok := s.proposals[p.ID]; !ok {
		return store.ErrNotFound
	}
	s.proposals[p.ID] = copyProposal(*p)
	return nil
}

func (s *state) DeleteProposal(_ context.Context, id int64) error {
	if _, ok := s.proposals[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.proposals, id)
	for rid, r := range s.reviews {
		if r.ProposalID == id {
			delete(s.reviews, rid)
		}
	}
	for cid, c := range s.concerns {
		if c.ProposalID == id {
			delete(s.concerns, cid)
		}
	}
	return nil
}

func (s *state) ListProposals(_ context.Context, stage store.Stage) ([]store.Proposal, error) {
	out := make([]store.Proposal, 0, len(s.proposals))
	for _, p := range s.proposals {
		if stage.Matches(&p) {
			out = append(out, copyProposal(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *state) CreateReviewRequests(_ context.Context, reqs []store.ReviewRequest) error {
	for i := range reqs {
		for _, existing := range s.reviews {
			if existing.ProposalID == reqs[i].ProposalID && existing.Reviewer == reqs[i].Reviewer {
				return store.ErrDuplicate
			}
		}
		reqs[i].ID = s.id()
		s.reviews[reqs[i].ID] = reqs[i]
	}
	return nil
}

func (s *state) ListReviewRequests(_ context.Context, proposalID int64) ([]store.ReviewRequest, error) {
	var out []store.ReviewRequest
	for _, r := range s.reviews {
		if r.ProposalID == proposalID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reviewer < out[j].Reviewer })
	return out, nil
}

func (s *state) UpdateReviewRequest(_ context.Context, r *store.ReviewRequest) error {
	if _, ok := s.reviews[r.ID]; !ok {
		return store.ErrNotFound
	}
	s.reviews[r.ID] = *r
	return nil
}

func (s *state) CreateConcern(_ context.Context, c *store.Concern) error {
	for _, existing := range s.concerns {
		if existing.ProposalID == c.ProposalID && existing.Name == c.Name {
			return store.ErrDuplicate
		}
	}
	c.ID = s.id()
	s.concerns[c.ID] = copyConcern(*c)
	return nil
}

func (s *state) ListConcerns(_ context.Context, proposalID int64) ([]store.Concern, error) {
	var out []store.Concern
	for _, c := range s.concerns {
		if c.ProposalID == proposalID {
			out = append(out, copyConcern(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *state) UpdateConcern(_ context.Context, c *store.Concern) error {
	if _, ok := s.concerns[c.ID]; !ok {
		return store.ErrNotFound
	}
	s.concerns[c.ID] = copyConcern(*c)
	return nil
}

func (s *state) CreateFeedbackRequest(_ context.Context, f *store.FeedbackRequest) error {
	f.ID = s.id()
	s.feedback[f.ID] = copyFeedback(*f)
	return nil
}

func (s *state) ListOpenFeedbackRequests(_ context.Context, issueID int64) ([]store.FeedbackRequest, error) {
	var out []store.FeedbackRequest
	for _, f := range s.feedback {
		if f.IssueID == issueID && f.FeedbackComment == nil {
			out = append(out, copyFeedback(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *state) UpdateFeedbackRequest(_ context.Context, f *store.FeedbackRequest) error {
	if _, ok := s.feedback[f.ID]; !ok {
		return store.ErrNotFound
	}
	s.feedback[f.ID] = copyFeedback(*f)
	return nil
}

func (s *state) CreatePoll(_ context.Context, p *store.Poll) error {
	p.ID = s.id()
	s.polls[p.ID] = copyPoll(*p)
	return nil
}

func (s *state) GetPollByQuestion(_ context.Context, issueID int64, question string) (*store.Poll, error) {
	for _, p := range s.polls {
		if p.IssueID == issueID && p.Question == question {
			p = copyPoll(p)
			return &p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *state) ListOpenPolls(_ context.Context) ([]store.Poll, error) {
	var out []store.Poll
	for _, p := range s.polls {
		if !p.Closed {
			out = append(out, copyPoll(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *state) UpdatePoll(_ context.Context, p *store.Poll) error {
	if _, ok := s.polls[p.ID]; !ok {
		return store.ErrNotFound
	}
	s.polls[p.ID] = copyPoll(*p)
	return nil
}

func (s *state) CreatePollReviewRequests(_ context.Context, reqs []store.PollReviewRequest) error {
	for i := range reqs {
		for _, existing := range s.pollReviews {
			if existing.PollID == reqs[i].PollID && existing.Reviewer == reqs[i].Reviewer {
				return store.ErrDuplicate
			}
		}
		reqs[i].ID = s.id()
		s.pollReviews[reqs[i].ID] = reqs[i]
	}
	return nil
}

func (s *state) ListPollReviewRequests(_ context.Context, pollID int64) ([]store.PollReviewRequest, error) {
	var out []store.PollReviewRequest
	for _, r := range s.pollReviews {
		if r.PollID == pollID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reviewer < out[j].Reviewer })
	return out, nil
}

func (s *state) UpdatePollReviewRequest(_ context.Context, r *store.PollReviewRequest) error {
	if _, ok := s.pollReviews[r.ID]; !ok {
		return store.ErrNotFound
	}
	s.pollReviews[r.ID] = *r
	return nil
}
