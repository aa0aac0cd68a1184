package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/cexll/fcpbot/internal/fcp"
	"github.com/cexll/fcpbot/internal/store"
	"github.com/cexll/fcpbot/internal/store/memory"
)

func seed(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	st := memory.New()

	issues := []store.Issue{
		{ID: 10, Repository: "rust-lang/rfcs", Number: 1, Title: "Pending RFC", Open: true},
		{ID: 11, Repository: "rust-lang/rfcs", Number: 2, Title: "Running RFC", Open: true},
		{ID: 12, Repository: "rust-lang/rfcs", Number: 3, Title: "Finished RFC", Open: false},
	}
	for i := range issues {
		if err := st.UpsertIssue(ctx, &issues[i]); err != nil {
			t.Fatalf("UpsertIssue: %v", err)
		}
	}

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	proposals := []*store.Proposal{
		{IssueID: 10, Initiator: "alice", InitiatingComment: 100, Disposition: fcp.Merge, TrackingComment: 101},
		{IssueID: 11, Initiator: "bob", InitiatingComment: 200, Disposition: fcp.Close, TrackingComment: 201, FCPStart: &start},
		{IssueID: 12, Initiator: "carol", InitiatingComment: 300, Disposition: fcp.Postpone, TrackingComment: 301, FCPStart: &start, FCPClosed: true},
	}
	for _, p := range proposals {
		if err := st.CreateProposal(ctx, p); err != nil {
			t.Fatalf("CreateProposal: %v", err)
		}
		reqs := []store.ReviewRequest{
			{ProposalID: p.ID, Reviewer: "alice", Reviewed: true},
			{ProposalID: p.ID, Reviewer: "bob", Reviewed: p.FCPStart != nil},
			{ProposalID: p.ID, Reviewer: "carol"},
		}
		if err := st.CreateReviewRequests(ctx, reqs); err != nil {
			t.Fatalf("CreateReviewRequests: %v", err)
		}
	}

	resolved := int64(105)
	concerns := []*store.Concern{
		{ProposalID: proposals[0].ID, Name: "naming", Initiator: "carol", InitiatingComment: 104},
		{ProposalID: proposals[0].ID, Name: "docs", Initiator: "bob", InitiatingComment: 103, ResolvedComment: &resolved},
	}
	for _, c := range concerns {
		if err := st.CreateConcern(ctx, c); err != nil {
			t.Fatalf("CreateConcern: %v", err)
		}
	}
	return st
}

func newRouter(t *testing.T, st store.Store) *mux.Router {
	t.Helper()
	h, err := NewHandler(st, 0)
	if err != nil {
		t.Fatalf("NewHandler failed: %v", err)
	}
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_ListJSON(t *testing.T) {
	r := newRouter(t, seed(t))

	w := get(r, "/api/fcps")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var got []Proposal
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 open proposals, got %d", len(got))
	}

	pending, running := got[0], got[1]
	if pending.Number != 1 || pending.Status != "pending-review" || pending.FCPEnd != nil {
		t.Errorf("pending = %+v", pending)
	}
	if strings.Join(pending.Pending, ",") != "bob,carol" {
		t.Errorf("pending reviewers = %v", pending.Pending)
	}
	if pending.Concerns != nil {
		t.Errorf("list view should omit concerns, got %v", pending.Concerns)
	}

	if running.Status != "in-fcp" || running.Disposition != "close" {
		t.Errorf("running = %+v", running)
	}
	wantEnd := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)
	if running.FCPEnd == nil || !running.FCPEnd.Equal(wantEnd) {
		t.Errorf("fcp end = %v, want %v", running.FCPEnd, wantEnd)
	}
	if running.URL != "https://github.com/rust-lang/rfcs/issues/2" {
		t.Errorf("url = %q", running.URL)
	}
}

func TestHandler_DetailJSON(t *testing.T) {
	r := newRouter(t, seed(t))

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"pending proposal", "/api/fcps/rust-lang/rfcs/1", http.StatusOK},
		{"finished proposal", "/api/fcps/rust-lang/rfcs/3", http.StatusOK},
		{"untracked issue", "/api/fcps/rust-lang/rfcs/99", http.StatusNotFound},
		{"untracked repository", "/api/fcps/other/repo/1", http.StatusNotFound},
		{"non-numeric", "/api/fcps/rust-lang/rfcs/abc", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(r, tt.path)
			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}

	w := get(r, "/api/fcps/rust-lang/rfcs/1")
	var got Proposal
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Concerns) != 2 {
		t.Fatalf("concerns = %+v", got.Concerns)
	}
	// Ordered by creation.
	naming, docs := got.Concerns[0], got.Concerns[1]
	if naming.Name != "naming" || naming.Resolved || !strings.HasSuffix(naming.URL, "#issuecomment-104") {
		t.Errorf("naming = %+v", naming)
	}
	if docs.Name != "docs" || !docs.Resolved || !strings.HasSuffix(docs.URL, "#issuecomment-105") {
		t.Errorf("docs = %+v", docs)
	}

	w = get(r, "/api/fcps/rust-lang/rfcs/3")
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != "finished" {
		t.Errorf("status = %q, want finished", got.Status)
	}
}

func TestHandler_NoProposalOnIssue(t *testing.T) {
	st := memory.New()
	issue := &store.Issue{ID: 1, Repository: "octo/repo", Number: 5, Open: true}
	if err := st.UpsertIssue(context.Background(), issue); err != nil {
		t.Fatalf("UpsertIssue: %v", err)
	}
	r := newRouter(t, st)

	w := get(r, "/api/fcps/octo/repo/5")
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "no proposal") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestHandler_HTMLList(t *testing.T) {
	r := newRouter(t, seed(t))

	w := get(r, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"rust-lang/rfcs#1", "Running RFC", "2026-03-11", "@carol", "naming"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(body, "Finished RFC") {
		t.Error("finished proposal should not be listed")
	}
}

func TestHandler_HTMLListEmpty(t *testing.T) {
	r := newRouter(t, memory.New())

	w := get(r, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "No open proposals.") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestBoard_OpenFiltersByRepository(t *testing.T) {
	st := seed(t)
	ctx := context.Background()
	other := &store.Issue{ID: 20, Repository: "octo/other", Number: 9, Title: "Elsewhere", Open: true}
	if err := st.UpsertIssue(ctx, other); err != nil {
		t.Fatalf("UpsertIssue: %v", err)
	}
	p := &store.Proposal{IssueID: 20, Initiator: "dave", InitiatingComment: 900, Disposition: fcp.Merge, TrackingComment: 901}
	if err := st.CreateProposal(ctx, p); err != nil {
		t.Fatalf("CreateProposal: %v", err)
	}

	b := NewBoard(st, 0)
	all, err := b.Open(ctx, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all = %d, want 3", len(all))
	}
	only, err := b.Open(ctx, "octo/other")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(only) != 1 || only[0].Initiator != "dave" {
		t.Fatalf("filtered = %+v", only)
	}
}

func TestBoard_LookupErrors(t *testing.T) {
	b := NewBoard(seed(t), 0)
	ctx := context.Background()

	if _, err := b.Lookup(ctx, "rust-lang/rfcs", 404); !errors.Is(err, ErrNotTracked) {
		t.Errorf("untracked err = %v", err)
	}
	st := memory.New()
	if err := st.UpsertIssue(ctx, &store.Issue{ID: 1, Repository: "octo/repo", Number: 1}); err != nil {
		t.Fatalf("UpsertIssue: %v", err)
	}
	if _, err := NewBoard(st, 0).Lookup(ctx, "octo/repo", 1); !errors.Is(err, ErrNoProposal) {
		t.Errorf("no proposal err = %v", err)
	}
}
