// Package memory is an in-process store.Store used when no database is configured
// and in tests.
package memory

import (
	"context"
	"sync"

	"github.com/cexll/fcpbot/internal/store"
)

// Store is a mutex-guarded set of maps.
type Store struct {
	mu   sync.RWMutex
	data *state
}

var _ store.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{data: newState()}
}

// WithTx runs fn against a private copy of the tables and swaps it in on success.
// Other callers block until the transaction finishes.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := s.data.clone()
	if err := fn(tx); err != nil {
		return err
	}
	s.data = tx
	return nil
}

func (s *Store) read(fn func(*state) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.data)
}

func (s *Store) write(fn func(*state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func (s *Store) UpsertUser(ctx context.Context, u *store.User) error {
	return s.write(func(st *state) error { return st.UpsertUser(ctx, u) })
}

func (s *Store) UpsertIssue(ctx context.Context, i *store.Issue) error {
	return s.write(func(st *state) error { return st.UpsertIssue(ctx, i) })
}

func (s *Store) GetIssue(ctx context.Context, id int64) (out *store.Issue, err error) {
	err = s.read(func(st *state) error { out, err = st.GetIssue(ctx, id); return err })
	return out, err
}

func (s *Store) GetIssueByNumber(ctx context.Context, repo string, number int) (out *store.Issue, err error) {
	err = s.read(func(st *state) error { out, err = st.GetIssueByNumber(ctx, repo, number); return err })
	return out, err
}

func (s *Store) UpsertComment(ctx context.Context, c *store.Comment) error {
	return s.write(func(st *state) error { return st.UpsertComment(ctx, c) })
}

func (s *Store) GetComment(ctx context.Context, id int64) (out *store.Comment, err error) {
	err = s.read(func(st *state) error { out, err = st.GetComment(ctx, id); return err })
	return out, err
}

func (s *Store) CreateProposal(ctx context.Context, p *store.Proposal) error {
	return s.write(func(st *state) error { return st.CreateProposal(ctx, p) })
}

func (s *Store) GetProposal(ctx context.Context, id int64) (out *store.Proposal, err error) {
	err = s.read(func(st *state) error { out, err = st.GetProposal(ctx, id); return err })
	return out, err
}

func (s *Store) GetProposalByIssue(ctx context.Context, issueID int64) (out *store.Proposal, err error) {
	err = s.read(func(st *state) error { out, err = st.GetProposalByIssue(ctx, issueID); return err })
	return out, err
}

func (s *Store) UpdateProposal(ctx context.Context, p *store.Proposal) error {
	return s.write(func(st *state) error { return st.UpdateProposal(ctx, p) })
}

func (s *Store) DeleteProposal(ctx context.Context, id int64) error {
	return s.write(func(st *state) error { return st.DeleteProposal(ctx, id) })
}

func (s *Store) ListProposals(ctx context.Context, stage store.Stage) (out []store.Proposal, err error) {
	err = s.read(func(st *state) error { out, err = st.ListProposals(ctx, stage); return err })
	return out, err
}

func (s *Store) CreateReviewRequests(ctx context.Context, reqs []store.ReviewRequest) error {
	return s.write(func(st *state) error { return st.CreateReviewRequests(ctx, reqs) })
}

func (s *Store) ListReviewRequests(ctx context.Context, proposalID int64) (out []store.ReviewRequest, err error) {
	err = s.read(func(st *state) error { out, err = st.ListReviewRequests(ctx, proposalID); return err })
	return out, err
}

func (s *Store) UpdateReviewRequest(ctx context.Context, r *store.ReviewRequest) error {
	return s.write(func(st *state) error { return st.UpdateReviewRequest(ctx, r) })
}

func (s *Store) CreateConcern(ctx context.Context, c *store.Concern) error {
	return s.write(func(st *state) error { return st.CreateConcern(ctx, c) })
}

func (s *Store) ListConcerns(ctx context.Context, proposalID int64) (out []store.Concern, err error) {
	err = s.read(func(st *state) error { out, err = st.ListConcerns(ctx, proposalID); return err })
	return out, err
}

func (s *Store) UpdateConcern(ctx context.Context, c *store.Concern) error {
	return s.write(func(st *state) error { return st.UpdateConcern(ctx, c) })
}

func (s *Store) CreateFeedbackRequest(ctx context.Context, f *store.FeedbackRequest) error {
	return s.write(func(st *state) error { return st.CreateFeedbackRequest(ctx, f) })
}

func (s *Store) ListOpenFeedbackRequests(ctx context.Context, issueID int64) (out []store.FeedbackRequest, err error) {
	err = s.read(func(st *state) error { out, err = st.ListOpenFeedbackRequests(ctx, issueID); return err })
	return out, err
}

func (s *Store) UpdateFeedbackRequest(ctx context.Context, f *store.FeedbackRequest) error {
	return s.write(func(st *state) error { return st.UpdateFeedbackRequest(ctx, f) })
}

func (s *Store) CreatePoll(ctx context.Context, p *store.Poll) error {
	return s.write(func(st *state) error { return st.CreatePoll(ctx, p) })
}

func (s *Store) GetPollByQuestion(ctx context.Context, issueID int64, question string) (out *store.Poll, err error) {
	err = s.read(func(st *state) error { out, err = st.GetPollByQuestion(ctx, issueID, question); return err })
	return out, err
}

func (s *Store) ListOpenPolls(ctx context.Context) (out []store.Poll, err error) {
	err = s.read(func(st *state) error { out, err = st.ListOpenPolls(ctx); return err })
	return out, err
}

func (s *Store) UpdatePoll(ctx context.Context, p *store.Poll) error {
	return s.write(func(st *state) error { return st.UpdatePoll(ctx, p) })
}

func (s *Store) CreatePollReviewRequests(ctx context.Context, reqs []store.PollReviewRequest) error {
	return s.write(func(st *state) error { return st.CreatePollReviewRequests(ctx, reqs) })
}

func (s *Store) ListPollReviewRequests(ctx context.Context, pollID int64) (out []store.PollReviewRequest, err error) {
	err = s.read(func(st *state) error { out, err = st.ListPollReviewRequests(ctx, pollID); return err })
	return out, err
}

func (s *Store) UpdatePollReviewRequest(ctx context.Context, r *store.PollReviewRequest) error {
	return s.write(func(st *state) error { return st.UpdatePollReviewRequest(ctx, r) })
}
