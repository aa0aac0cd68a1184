package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cexll/fcpbot/internal/fcp"
	"github.com/cexll/fcpbot/internal/store"
)

func seedProposal(t *testing.T, s *Store, issueID int64) *store.Proposal {
	t.Helper()
	p := &store.Proposal{IssueID: issueID, Initiator: "alice", InitiatingComment: 1, Disposition: fcp.Merge, TrackingComment: 2}
	if err := s.CreateProposal(context.Background(), p); err != nil {
		t.Fatalf("CreateProposal: %v", err)
	}
	return p
}

func TestStore_IssueRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	issue := &store.Issue{ID: 10, Repository: "o/r", Number: 3, Open: true, Labels: []string{"T-lang"}}
	if err := s.UpsertIssue(ctx, issue); err != nil {
		t.Fatalf("UpsertIssue: %v", err)
	}
	issue.Labels[0] = "mutated"

	got, err := s.GetIssueByNumber(ctx, "o/r", 3)
	if err != nil {
		t.Fatalf("GetIssueByNumber: %v", err)
	}
	if got.ID != 10 || !got.HasLabel("T-lang") {
		t.Fatalf("stored issue shares caller memory: %+v", got)
	}
	if _, err := s.GetIssue(ctx, 99); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetIssue missing err = %v", err)
	}
	if err := s.UpsertIssue(ctx, &store.Issue{ID: 11, Repository: "o/r", Number: 3}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("duplicate number err = %v", err)
	}
}

func TestStore_ProposalUniquePerIssue(t *testing.T) {
	s := New()
	seedProposal(t, s, 1)
	err := s.CreateProposal(context.Background(), &store.Proposal{IssueID: 1, Disposition: fcp.Close})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("second proposal err = %v, want ErrDuplicate", err)
	}
}

func TestStore_DeleteProposalCascades(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := seedProposal(t, s, 1)
	other := seedProposal(t, s, 2)

	if err := s.CreateReviewRequests(ctx, []store.ReviewRequest{
		{ProposalID: p.ID, Reviewer: "a"}, {ProposalID: other.ID, Reviewer: "a"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateConcern(ctx, &store.Concern{ProposalID: p.ID, Name: "x"}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteProposal(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProposal: %v", err)
	}
	if reqs, _ := s.ListReviewRequests(ctx, p.ID); len(reqs) != 0 {
		t.Errorf("review requests survived: %v", reqs)
	}
	if cs, _ := s.ListConcerns(ctx, p.ID); len(cs) != 0 {
		t.Errorf("concerns survived: %v", cs)
	}
	if reqs, _ := s.ListReviewRequests(ctx, other.ID); len(reqs) != 1 {
		t.Errorf("other proposal lost its review requests: %v", reqs)
	}
	if err := s.DeleteProposal(ctx, p.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestStore_ConcernNameUnique(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := seedProposal(t, s, 1)
	if err := s.CreateConcern(ctx, &store.Concern{ProposalID: p.ID, Name: "naming"}); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateConcern(ctx, &store.Concern{ProposalID: p.ID, Name: "naming"}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("duplicate concern err = %v", err)
	}
	if err := s.CreateConcern(ctx, &store.Concern{ProposalID: p.ID, Name: "Naming"}); err != nil {
		t.Fatalf("names are exact-match, got %v", err)
	}
}

func TestStore_ListProposalsByStage(t *testing.T) {
	s := New()
	ctx := context.Background()
	pending := seedProposal(t, s, 1)
	started := seedProposal(t, s, 2)
	closed := seedProposal(t, s, 3)

	now := time.Now()
	started.FCPStart = &now
	closed.FCPStart = &now
	closed.FCPClosed = true
	for _, p := range []*store.Proposal{started, closed} {
		if err := s.UpdateProposal(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		stage store.Stage
		want  []int64
	}{
		{store.StagePending, []int64{pending.ID}},
		{store.StageStarted, []int64{started.ID}},
		{store.StageOpen, []int64{pending.ID, started.ID}},
		{store.StageAll, []int64{pending.ID, started.ID, closed.ID}},
	}
	for _, tt := range tests {
		got, err := s.ListProposals(ctx, tt.stage)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("stage %d: got %d proposals, want %d", tt.stage, len(got), len(tt.want))
		}
		for i := range got {
			if got[i].ID != tt.want[i] {
				t.Errorf("stage %d [%d] = %d, want %d", tt.stage, i, got[i].ID, tt.want[i])
			}
		}
	}
}

func TestStore_WithTxRollsBack(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Store) error {
		if err := tx.CreateProposal(ctx, &store.Proposal{IssueID: 1, Disposition: fcp.Merge}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx err = %v", err)
	}
	if _, err := s.GetProposalByIssue(ctx, 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("rolled back proposal visible, err = %v", err)
	}

	err = s.WithTx(ctx, func(tx store.Store) error {
		return tx.CreateProposal(ctx, &store.Proposal{IssueID: 1, Disposition: fcp.Merge})
	})
	if err != nil {
		t.Fatalf("WithTx commit: %v", err)
	}
	if _, err := s.GetProposalByIssue(ctx, 1); err != nil {
		t.Fatalf("committed proposal missing: %v", err)
	}
}

func TestStore_FeedbackAndPolls(t *testing.T) {
	s := New()
	ctx := context.Background()

	f := &store.FeedbackRequest{IssueID: 1, Initiator: "a", RequestedUser: "b"}
	if err := s.CreateFeedbackRequest(ctx, f); err != nil {
		t.Fatal(err)
	}
	open, _ := s.ListOpenFeedbackRequests(ctx, 1)
	if len(open) != 1 {
		t.Fatalf("open feedback = %v", open)
	}
	id := int64(77)
	f.FeedbackComment = &id
	if err := s.UpdateFeedbackRequest(ctx, f); err != nil {
		t.Fatal(err)
	}
	if open, _ = s.ListOpenFeedbackRequests(ctx, 1); len(open) != 0 {
		t.Fatalf("resolved feedback still open: %v", open)
	}

	poll := &store.Poll{IssueID: 1, Question: "ok?", Teams: []string{"T-lang"}}
	if err := s.CreatePoll(ctx, poll); err != nil {
		t.Fatal(err)
	}
	if err := s.CreatePollReviewRequests(ctx, []store.PollReviewRequest{{PollID: poll.ID, Reviewer: "b"}, {PollID: poll.ID, Reviewer: "a"}}); err != nil {
		t.Fatal(err)
	}
	reqs, _ := s.ListPollReviewRequests(ctx, poll.ID)
	if len(reqs) != 2 || reqs[0].Reviewer != "a" {
		t.Fatalf("poll reviews = %v", reqs)
	}
	got, err := s.GetPollByQuestion(ctx, 1, "ok?")
	if err != nil || got.ID != poll.ID {
		t.Fatalf("GetPollByQuestion = %v, %v", got, err)
	}
	poll.Closed = true
	if err := s.UpdatePoll(ctx, poll); err != nil {
		t.Fatal(err)
	}
	if polls, _ := s.ListOpenPolls(ctx); len(polls) != 0 {
		t.Fatalf("closed poll listed: %v", polls)
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			_ = s.UpsertUser(ctx, &store.User{ID: n, Login: "u"})
			_, _ = s.ListProposals(ctx, store.StageOpen)
		}(int64(i))
	}
	wg.Wait()
}
