package gormstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/cexll/fcpbot/internal/fcp"
	"github.com/cexll/fcpbot/internal/store"
)

func TestEnsureParam(t *testing.T) {
	tests := []struct {
		dsn, key, val, want string
	}{
		{"u:p@tcp(h)/db", "parseTime", "true", "u:p@tcp(h)/db?parseTime=true"},
		{"u:p@tcp(h)/db?charset=utf8", "parseTime", "true", "u:p@tcp(h)/db?charset=utf8&parseTime=true"},
		{"u:p@tcp(h)/db?parseTime=false", "parseTime", "true", "u:p@tcp(h)/db?parseTime=false"},
	}
	for _, tt := range tests {
		if got := ensureParam(tt.dsn, tt.key, tt.val); got != tt.want {
			t.Errorf("ensureParam(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}

func TestTranslate(t *testing.T) {
	other := errors.New("other")
	tests := []struct {
		in   error
		want error
	}{
		{nil, nil},
		{gorm.ErrRecordNotFound, store.ErrNotFound},
		{fmt.Errorf("wrapped: %w", gorm.ErrDuplicatedKey), store.ErrDuplicate},
		{other, other},
	}
	for _, tt := range tests {
		if got := translate(tt.in); !errors.Is(got, tt.want) && got != tt.want {
			t.Errorf("translate(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if !isRetryable(errors.New("dial tcp 127.0.0.1:3306: connect: connection refused")) {
		t.Error("connection refused should be retryable")
	}
	if isRetryable(errors.New("Error 1045: Access denied for user")) {
		t.Error("access denied should not be retryable")
	}
}

// TestStore_MySQL runs against a real server when FCPBOT_TEST_MYSQL_DSN is set.
func TestStore_MySQL(t *testing.T) {
	dsn := os.Getenv("FCPBOT_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("FCPBOT_TEST_MYSQL_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	issueID := time.Now().UnixNano()
	if err := s.UpsertIssue(ctx, &store.Issue{ID: issueID, Repository: "o/r", Number: int(issueID % 1e6), Open: true, Labels: []string{"T-lang"}}); err != nil {
		t.Fatalf("UpsertIssue: %v", err)
	}

	p := &store.Proposal{IssueID: issueID, Initiator: "alice", InitiatingComment: 1, Disposition: fcp.Merge, TrackingComment: 2}
	if err := s.CreateProposal(ctx, p); err != nil {
		t.Fatalf("CreateProposal: %v", err)
	}
	if err := s.CreateProposal(ctx, &store.Proposal{IssueID: issueID, Disposition: fcp.Close}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("duplicate proposal err = %v", err)
	}

	if err := s.CreateReviewRequests(ctx, []store.ReviewRequest{{ProposalID: p.ID, Reviewer: "alice", Reviewed: true}, {ProposalID: p.ID, Reviewer: "bob"}}); err != nil {
		t.Fatalf("CreateReviewRequests: %v", err)
	}
	for _, name := range []string{"naming", "Naming", strings.Repeat("long concern ", 40)} {
		if err := s.CreateConcern(ctx, &store.Concern{ProposalID: p.ID, Name: name, Initiator: "bob", InitiatingComment: 3}); err != nil {
			t.Fatalf("CreateConcern(%.20q): %v", name, err)
		}
	}
	if err := s.CreateConcern(ctx, &store.Concern{ProposalID: p.ID, Name: "naming", Initiator: "bob", InitiatingComment: 4}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("duplicate concern err = %v", err)
	}
	if concerns, _ := s.ListConcerns(ctx, p.ID); len(concerns) != 3 || concerns[1].Name != "Naming" {
		t.Fatalf("concerns = %+v", concerns)
	}

	if err := s.CreatePoll(ctx, &store.Poll{IssueID: issueID, Initiator: "alice", InitiatingComment: 5, Question: "Ship it?", TrackingComment: 6}); err != nil {
		t.Fatalf("CreatePoll: %v", err)
	}
	if _, err := s.GetPollByQuestion(ctx, issueID, "ship it?"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("poll lookup ignored case, err = %v", err)
	}
	if poll, err := s.GetPollByQuestion(ctx, issueID, "Ship it?"); err != nil || poll.Question != "Ship it?" {
		t.Errorf("GetPollByQuestion = %+v, %v", poll, err)
	}

	if err := s.DeleteProposal(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProposal: %v", err)
	}
	if reqs, _ := s.ListReviewRequests(ctx, p.ID); len(reqs) != 0 {
		t.Errorf("review requests survived delete: %v", reqs)
	}
	if _, err := s.GetProposalByIssue(ctx, issueID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetProposalByIssue after delete err = %v", err)
	}
}
