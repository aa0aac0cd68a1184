package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gh "github.com/google/go-github/v66/github"
)

const testSecret = "test-webhook-secret"

type mockDispatcher struct {
	enqueueFunc func(event *Event) error
	events      []*Event
}

func (m *mockDispatcher) Enqueue(event *Event) error {
	m.events = append(m.events, event)
	if m.enqueueFunc != nil {
		return m.enqueueFunc(event)
	}
	return nil
}

type failingDeduper struct{}

func (failingDeduper) MarkIfNew(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

func commentPayload(t *testing.T, action, body string, updated time.Time) []byte {
	t.Helper()
	ts := gh.Timestamp{Time: updated}
	ev := gh.IssueCommentEvent{
		Action: gh.String(action),
		Issue: &gh.Issue{
			ID:     gh.Int64(900),
			Number: gh.Int(12),
			Title:  gh.String("RFC: widgets"),
			State:  gh.String("open"),
			User:   &gh.User{Login: gh.String("zoe")},
			Labels: []*gh.Label{{Name: gh.String("T-lang")}},
		},
		Comment: &gh.IssueComment{
			ID:        gh.Int64(3001),
			Body:      gh.String(body),
			User:      &gh.User{Login: gh.String("alice"), ID: gh.Int64(7)},
			CreatedAt: &ts,
			UpdatedAt: &ts,
		},
		Repo: &gh.Repository{FullName: gh.String("rust-lang/rfcs")},
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return payload
}

func issuesPayload(t *testing.T, action, state string) []byte {
	t.Helper()
	ev := gh.IssuesEvent{
		Action: gh.String(action),
		Issue: &gh.Issue{
			ID:     gh.Int64(900),
			Number: gh.Int(12),
			State:  gh.String(state),
			User:   &gh.User{Login: gh.String("zoe")},
		},
		Repo: &gh.Repository{FullName: gh.String("rust-lang/rfcs")},
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return payload
}

func deliver(h *Handler, eventType, delivery string, payload []byte, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set("X-GitHub-Event", eventType)
	if delivery != "" {
		req.Header.Set("X-GitHub-Delivery", delivery)
	}
	req.Header.Set("X-Hub-Signature-256", sign(secret, payload))
	rr := httptest.NewRecorder()
	h.Handle(rr, req)
	return rr
}

func TestHandle_IssueComment(t *testing.T) {
	updated := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name       string
		action     string
		wantStatus int
		wantQueued bool
	}{
		{"created", "created", http.StatusAccepted, true},
		{"edited", "edited", http.StatusAccepted, true},
		{"deleted is ignored", "deleted", http.StatusOK, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &mockDispatcher{}
			h := NewHandler([]string{testSecret}, d, nil)

			rr := deliver(h, "issue_comment", "d-1", commentPayload(t, tt.action, "@rfcbot fcp merge", updated), testSecret)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if got := len(d.events) == 1; got != tt.wantQueued {
				t.Fatalf("queued = %d events", len(d.events))
			}
			if !tt.wantQueued {
				return
			}
			ev := d.events[0]
			if ev.Kind != KindComment || ev.DeliveryID != "d-1" || ev.Key() != "rust-lang/rfcs#12" {
				t.Errorf("event = %+v", ev)
			}
			if ev.Comment == nil || ev.Comment.ID != 3001 || ev.Comment.Author != "alice" || ev.Comment.IssueNumber != 12 {
				t.Errorf("comment = %+v", ev.Comment)
			}
			if ev.Issue.ID != 900 || !ev.Issue.Open || len(ev.Issue.Labels) != 1 || ev.Issue.Labels[0] != "T-lang" {
				t.Errorf("issue = %+v", ev.Issue)
			}
		})
	}
}

func TestHandle_DuplicateAndEditedDeliveries(t *testing.T) {
	d := &mockDispatcher{}
	h := NewHandler([]string{testSecret}, d, NewMemoryDeduper(time.Hour))
	first := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	payload := commentPayload(t, "created", "@rfcbot reviewed", first)
	if rr := deliver(h, "issue_comment", "d-1", payload, testSecret); rr.Code != http.StatusAccepted {
		t.Fatalf("first delivery status = %d", rr.Code)
	}
	if rr := deliver(h, "issue_comment", "d-1-retry", payload, testSecret); rr.Code != http.StatusOK {
		t.Fatalf("redelivery status = %d", rr.Code)
	}
	edited := commentPayload(t, "edited", "@rfcbot concern x", first.Add(time.Minute))
	if rr := deliver(h, "issue_comment", "d-2", edited, testSecret); rr.Code != http.StatusAccepted {
		t.Fatalf("edit status = %d", rr.Code)
	}
	if len(d.events) != 2 {
		t.Fatalf("queued %d events, want 2", len(d.events))
	}
}

func TestHandle_IssuesEvent(t *testing.T) {
	d := &mockDispatcher{}
	h := NewHandler([]string{testSecret}, d, nil)

	if rr := deliver(h, "issues", "d-9", issuesPayload(t, "closed", "closed"), testSecret); rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr := deliver(h, "issues", "d-10", issuesPayload(t, "assigned", "open"), testSecret); rr.Code != http.StatusOK {
		t.Fatalf("assigned status = %d", rr.Code)
	}
	if len(d.events) != 1 {
		t.Fatalf("queued %d events, want 1", len(d.events))
	}
	if ev := d.events[0]; ev.Kind != KindIssue || ev.Action != "closed" || ev.Issue.Open || ev.Comment != nil {
		t.Errorf("event = %+v", ev)
	}
}

func TestHandle_Signatures(t *testing.T) {
	payload := commentPayload(t, "created", "@rfcbot fcp merge", time.Now())
	tests := []struct {
		name       string
		secrets    []string
		signWith   string
		wantStatus int
	}{
		{"valid", []string{testSecret}, testSecret, http.StatusAccepted},
		{"rotated secret", []string{"old", testSecret}, testSecret, http.StatusAccepted},
		{"wrong secret", []string{testSecret}, "nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(tt.secrets, &mockDispatcher{}, nil)
			if rr := deliver(h, "issue_comment", "", payload, tt.signWith); rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}

	t.Run("truncated digest", func(t *testing.T) {
		h := NewHandler([]string{testSecret}, &mockDispatcher{}, nil)
		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
		req.Header.Set("X-GitHub-Event", "issue_comment")
		req.Header.Set("X-Hub-Signature-256", sign(testSecret, payload)[:20])
		rr := httptest.NewRecorder()
		h.Handle(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("status = %d", rr.Code)
		}
	})

	t.Run("missing header", func(t *testing.T) {
		h := NewHandler([]string{testSecret}, &mockDispatcher{}, nil)
		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
		req.Header.Set("X-GitHub-Event", "issue_comment")
		rr := httptest.NewRecorder()
		h.Handle(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("status = %d", rr.Code)
		}
	})
}

func TestHandle_PingAndUnknownEvents(t *testing.T) {
	d := &mockDispatcher{}
	h := NewHandler([]string{testSecret}, d, nil)

	rr := deliver(h, "ping", "p-1", []byte(`{"zen":"Keep it logically awesome."}`), testSecret)
	if rr.Code != http.StatusOK || rr.Body.String() != "pong" {
		t.Errorf("ping: %d %q", rr.Code, rr.Body.String())
	}
	rr = deliver(h, "not_a_real_event", "u-1", []byte(`{}`), testSecret)
	if rr.Code != http.StatusOK {
		t.Errorf("unknown event status = %d", rr.Code)
	}
	if len(d.events) != 0 {
		t.Errorf("queued %d events", len(d.events))
	}
}

func TestHandle_EnqueueErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"queue full", ErrQueueFull, http.StatusServiceUnavailable},
		{"queue closed", ErrQueueClosed, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &mockDispatcher{enqueueFunc: func(*Event) error { return tt.err }}
			h := NewHandler([]string{testSecret}, d, nil)
			rr := deliver(h, "issue_comment", "e-1", commentPayload(t, "created", "hi", time.Now()), testSecret)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}

func TestHandle_DeduperFailureFailsOpen(t *testing.T) {
	d := &mockDispatcher{}
	h := NewHandler([]string{testSecret}, d, failingDeduper{})
	rr := deliver(h, "issue_comment", "f-1", commentPayload(t, "created", "@rfcbot reviewed", time.Now()), testSecret)
	if rr.Code != http.StatusAccepted || len(d.events) != 1 {
		t.Fatalf("status = %d, queued = %d", rr.Code, len(d.events))
	}
}
