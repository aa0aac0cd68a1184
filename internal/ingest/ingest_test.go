package ingest

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/cexll/fcpbot/internal/github"
	ghtest "github.com/cexll/fcpbot/internal/github/testing"
	"github.com/cexll/fcpbot/internal/nag"
	"github.com/cexll/fcpbot/internal/store/memory"
	"github.com/cexll/fcpbot/internal/teams"
)

type countingSource struct {
	Source
	issueLoads map[int]int
}

func (s *countingSource) GetIssue(ctx context.Context, repo string, number int) (*github.Issue, error) {
	s.issueLoads[number]++
	return s.Source.GetIssue(ctx, repo, number)
}

type recordingHandler struct {
	seen []int64
	fail map[int64]bool
}

func (h *recordingHandler) HandleComment(ctx context.Context, ev nag.CommentEvent) error {
	h.seen = append(h.seen, ev.Comment.ID)
	if h.fail[ev.Comment.ID] {
		return errors.New("boom")
	}
	return nil
}

func TestRepo_ReplaysInCreationOrder(t *testing.T) {
	srv := ghtest.NewServer()
	defer srv.Close()
	srv.PageSize = 2
	srv.AddIssue("octo/rfcs", 1, 1, "zoe")
	srv.AddIssue("octo/rfcs", 2, 2, "zoe")

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := srv.AddComment("octo/rfcs", 1, "alice", "third", base.Add(3*time.Hour))
	first := srv.AddComment("octo/rfcs", 2, "bob", "first", base.Add(time.Hour))
	second := srv.AddComment("octo/rfcs", 1, "carol", "second", base.Add(2*time.Hour))
	srv.AddComment("other/repo", 1, "dave", "elsewhere", base)

	source := &countingSource{Source: srv.Client(), issueLoads: map[int]int{}}
	h := &recordingHandler{}
	stats, err := New(source, h).Repo(context.Background(), "octo/rfcs", time.Time{})
	if err != nil {
		t.Fatalf("Repo: %v", err)
	}

	if want := []int64{first, second, late}; !slices.Equal(h.seen, want) {
		t.Errorf("order = %v, want %v", h.seen, want)
	}
	if stats != (Stats{Comments: 3, Issues: 2}) {
		t.Errorf("stats = %+v", stats)
	}
	if source.issueLoads[1] != 1 || source.issueLoads[2] != 1 {
		t.Errorf("issue loads = %v, want one per issue", source.issueLoads)
	}
}

func TestRepo_ContinuesPastFailures(t *testing.T) {
	srv := ghtest.NewServer()
	defer srv.Close()
	srv.AddIssue("octo/rfcs", 1, 1, "zoe")

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bad := srv.AddComment("octo/rfcs", 1, "alice", "one", base)
	srv.AddComment("octo/rfcs", 7, "alice", "issue is gone", base.Add(time.Minute))
	good := srv.AddComment("octo/rfcs", 1, "bob", "two", base.Add(2*time.Minute))

	h := &recordingHandler{fail: map[int64]bool{bad: true}}
	stats, err := New(srv.Client(), h).Repo(context.Background(), "octo/rfcs", time.Time{})
	if err != nil {
		t.Fatalf("Repo: %v", err)
	}
	if !slices.Equal(h.seen, []int64{bad, good}) {
		t.Errorf("seen = %v", h.seen)
	}
	if stats.Comments != 1 || stats.Failed != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRepo_ListingFailure(t *testing.T) {
	srv := ghtest.NewServer()
	defer srv.Close()

	_, err := New(srv.Client(), &recordingHandler{}).Repo(context.Background(), "not-a-repo", time.Time{})
	if err == nil {
		t.Fatal("expected error for malformed repository")
	}
}

func TestRepo_StopsOnCancel(t *testing.T) {
	srv := ghtest.NewServer()
	defer srv.Close()
	srv.AddIssue("octo/rfcs", 1, 1, "zoe")
	srv.AddComment("octo/rfcs", 1, "alice", "one", time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(srv.Client(), &recordingHandler{}).Repo(ctx, "octo/rfcs", time.Time{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestRepos_JoinsErrors(t *testing.T) {
	srv := ghtest.NewServer()
	defer srv.Close()
	srv.AddIssue("octo/rfcs", 1, 1, "zoe")
	srv.AddComment("octo/rfcs", 1, "alice", "one", time.Now())

	h := &recordingHandler{}
	err := New(srv.Client(), h).Repos(context.Background(), []string{"bogus", "octo/rfcs"}, time.Time{})
	if err == nil {
		t.Fatal("expected error for the malformed repository")
	}
	if len(h.seen) != 1 {
		t.Errorf("valid repository was not ingested: %v", h.seen)
	}
}

func TestRepo_RebuildsProposalIdempotently(t *testing.T) {
	srv := ghtest.NewServer()
	defer srv.Close()
	srv.AddIssue("octo/rfcs", 10, 3, "zoe", "T-core")

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	srv.AddComment("octo/rfcs", 3, "alice", "@rfcbot fcp merge", base)
	srv.AddComment("octo/rfcs", 3, "bob", "@rfcbot reviewed", base.Add(time.Hour))

	setup, err := teams.Parse(`
[teams."T-core"]
name = "Core"
ping = "octo/core"
members = ["alice", "bob", "carol"]
`)
	if err != nil {
		t.Fatalf("teams.Parse: %v", err)
	}
	st := memory.New()
	eval := nag.New(st, srv.Client(), setup, nag.Config{Mention: "@rfcbot", PostComments: true})
	ing := New(srv.Client(), eval)
	ctx := context.Background()

	if _, err := ing.Repo(ctx, "octo/rfcs", time.Time{}); err != nil {
		t.Fatalf("Repo: %v", err)
	}
	p, err := st.GetProposalByIssue(ctx, 10)
	if err != nil {
		t.Fatalf("GetProposalByIssue: %v", err)
	}
	reviews, err := st.ListReviewRequests(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListReviewRequests: %v", err)
	}
	got := map[string]bool{}
	for _, r := range reviews {
		got[r.Reviewer] = r.Reviewed
	}
	if !got["alice"] || !got["bob"] || got["carol"] {
		t.Errorf("reviews = %v", got)
	}

	// The second pass also sees the bot's own tracking comment.
	posts := srv.CallsMatching("POST", "/comments")
	if _, err := ing.Repo(ctx, "octo/rfcs", time.Time{}); err != nil {
		t.Fatalf("second Repo: %v", err)
	}
	if n := srv.CallsMatching("POST", "/comments"); n != posts {
		t.Errorf("replay posted %d more comments", n-posts)
	}
	again, err := st.GetProposalByIssue(ctx, 10)
	if err != nil || again.ID != p.ID {
		t.Errorf("proposal changed on replay: %+v, %v", again, err)
	}
}
