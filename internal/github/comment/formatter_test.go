package comment

import (
	"strings"
	"testing"

	"github.com/cexll/fcpbot/internal/fcp"
)

var testIssue = Issue{Repository: "rust-lang/rfcs", Number: 42}

func int64p(v int64) *int64 { return &v }

func TestRender_Proposed(t *testing.T) {
	got := Render(testIssue, Proposed{
		Initiator:   "alice",
		Disposition: fcp.Merge,
		Reviewers: []Review{
			{Login: "carol"},
			{Login: "alice", Reviewed: true},
			{Login: "bob"},
		},
		Concerns: []Concern{
			{Name: "naming", InitiatingComment: 7},
			{Name: "perf", InitiatingComment: 8, ResolvedComment: int64p(9)},
		},
	})

	wantPrefix := "Team member @alice has proposed to merge this. The next step is review by the rest of the tagged team members:\n\n" +
		"* [x] @alice\n* [ ] @bob\n* [ ] @carol\n" +
		"\nConcerns:\n\n" +
		"* naming (https://github.com/rust-lang/rfcs/issues/42#issuecomment-7)\n" +
		"* ~~perf~~ resolved by https://github.com/rust-lang/rfcs/issues/42#issuecomment-9\n"
	if !strings.HasPrefix(got, wantPrefix) {
		t.Fatalf("unexpected proposed text:\n%s", got)
	}
	if !strings.HasSuffix(got, docsLink) {
		t.Errorf("missing static footer:\n%s", got)
	}
}

func TestRender_ProposedNoConcerns(t *testing.T) {
	got := Render(testIssue, Proposed{Initiator: "alice", Disposition: fcp.Postpone, Reviewers: []Review{{Login: "alice", Reviewed: true}}})
	if !strings.Contains(got, "proposed to postpone this") {
		t.Errorf("missing disposition: %s", got)
	}
	if !strings.Contains(got, "\nNo concerns currently listed.\n") {
		t.Errorf("missing empty concerns note: %s", got)
	}
}

func TestRender_Deterministic(t *testing.T) {
	ct := Proposed{
		Initiator:   "alice",
		Disposition: fcp.Close,
		Reviewers:   []Review{{Login: "b"}, {Login: "a", Reviewed: true}},
		Concerns:    []Concern{{Name: "x", InitiatingComment: 1}},
	}
	if Render(testIssue, ct) != Render(testIssue, ct) {
		t.Fatal("render is not deterministic")
	}
}

func TestRender_Cancelled(t *testing.T) {
	if got := Render(testIssue, ProposalCancelled{Initiator: "bob"}); got != "@bob proposal cancelled." {
		t.Errorf("got %q", got)
	}
}

func TestRender_AllReviewedNoConcerns(t *testing.T) {
	tests := []struct {
		name     string
		added    bool
		wantNote bool
	}{
		{"label added", true, false},
		{"label failed", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Render(testIssue, AllReviewedNoConcerns{Author: "alice", StatusCommentID: 5, AddedLabel: tt.added})
			if !strings.Contains(got, "final comment period") || !strings.Contains(got, "#issuecomment-5") {
				t.Errorf("missing announcement: %s", got)
			}
			hasNote := strings.Contains(got, "psst @alice") && strings.Contains(got, "`final-comment-period`")
			if hasNote != tt.wantNote {
				t.Errorf("note present = %v, want %v: %s", hasNote, tt.wantNote, got)
			}
		})
	}
}

func TestRender_WeekPassed(t *testing.T) {
	tests := []struct {
		name       string
		d          fcp.Disposition
		auto       bool
		added      bool
		wantAction string
		wantNote   bool
	}{
		{"merge never acts", fcp.Merge, true, true, "", false},
		{"close with auto action", fcp.Close, true, true, "this is now **closed**", false},
		{"close without auto action", fcp.Close, false, true, "", false},
		{"postpone with auto action", fcp.Postpone, true, false, "**postponed**", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Render(testIssue, WeekPassed{Author: "alice", StatusCommentID: 5, AddedLabel: tt.added, Disposition: tt.d, AutoAction: tt.auto})
			if !strings.Contains(got, "disposition to **"+tt.d.String()+"**") {
				t.Errorf("missing disposition: %s", got)
			}
			hasAction := strings.Contains(got, "By the power vested in me")
			if tt.wantAction == "" && hasAction {
				t.Errorf("unexpected action sentence: %s", got)
			}
			if tt.wantAction != "" && !strings.Contains(got, tt.wantAction) {
				t.Errorf("missing action %q: %s", tt.wantAction, got)
			}
			hasNote := strings.Contains(got, "`finished-final-comment-period`")
			if hasNote != tt.wantNote {
				t.Errorf("note present = %v, want %v", hasNote, tt.wantNote)
			}
		})
	}
}

func TestRender_Poll(t *testing.T) {
	got := Render(testIssue, Poll{
		Initiator: "alice",
		Teams:     []string{"T-libs", "T-lang"},
		Question:  "ship it?",
		Reviewers: []Review{{Login: "bob"}, {Login: "alice", Reviewed: true}},
	})
	want := "Team member @alice has asked teams: T-lang, T-libs, for consensus on:\n\n> ship it?\n\n* [x] @alice\n* [ ] @bob\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	closed := Render(testIssue, Poll{Initiator: "alice", Question: "q", Closed: true})
	if !strings.Contains(closed, "the tagged teams") || !strings.HasSuffix(closed, "This poll is closed.\n") {
		t.Errorf("closed poll: %q", closed)
	}
}
