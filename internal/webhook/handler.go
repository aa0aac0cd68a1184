// Package webhook receives GitHub deliveries and hands accepted events to a dispatcher.
package webhook

import (
	"errors"
	"io"
	"log"
	"net/http"

	gh "github.com/google/go-github/v66/github"
	"github.com/google/uuid"

	"github.com/cexll/fcpbot/internal/github"
)

// maxPayloadBytes bounds a single delivery body.
const maxPayloadBytes = 25 << 20

// Handler handles GitHub webhook events
type Handler struct {
	secrets    Secrets
	dispatcher EventDispatcher
	deduper    Deduper
}

// NewHandler creates a webhook handler. Any of secrets may sign a delivery.
// A nil deduper remembers deliveries in memory.
func NewHandler(secrets []string, dispatcher EventDispatcher, deduper Deduper) *Handler {
	if deduper == nil {
		deduper = NewMemoryDeduper(DefaultDedupeTTL)
	}
	return &Handler{
		secrets:    Secrets(secrets),
		dispatcher: dispatcher,
		deduper:    deduper,
	}
}

// Handle handles issue_comment and issues deliveries.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		log.Printf("[Webhook] Error reading payload: %v", err)
		http.Error(w, "Error reading payload", http.StatusBadRequest)
		return
	}

	digest, err := ParseSignature(r.Header.Get("X-Hub-Signature-256"))
	if err != nil {
		log.Printf("[Webhook] Invalid signature header: %v", err)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}
	if !h.secrets.Match(payload, digest) {
		log.Printf("[Webhook] Signature verification failed")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	delivery := r.Header.Get("X-GitHub-Delivery")
	if delivery == "" {
		delivery = uuid.NewString()
	}

	parsed, err := gh.ParseWebHook(eventType, payload)
	if err != nil {
		log.Printf("[Webhook] Ignoring %s delivery %s: %v", eventType, delivery, err)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Event ignored"))
		return
	}

	var (
		event *Event
		key   string
	)
	switch ev := parsed.(type) {
	case *gh.PingEvent:
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
		return
	case *gh.IssueCommentEvent:
		event, key = h.commentEvent(ev, delivery)
	case *gh.IssuesEvent:
		event, key = h.issueEvent(ev, delivery)
	}
	if event == nil {
		log.Printf("[Webhook] Ignoring %s delivery %s", eventType, delivery)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Event ignored"))
		return
	}

	fresh, err := h.deduper.MarkIfNew(r.Context(), key)
	if err != nil {
		// Fail open; comment handling is idempotent.
		log.Printf("[Webhook] Deduper unavailable for %s: %v", key, err)
		fresh = true
	}
	if !fresh {
		log.Printf("[Webhook] Ignoring duplicate delivery %s (%s)", delivery, key)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Duplicate ignored"))
		return
	}

	if err := h.dispatcher.Enqueue(event); err != nil {
		log.Printf("[Webhook] Failed to enqueue %s for %s: %v", event.Kind, event.Key(), err)
		switch {
		case errors.Is(err, ErrQueueFull):
			http.Error(w, "Event queue is busy, try again later", http.StatusServiceUnavailable)
		case errors.Is(err, ErrQueueClosed):
			http.Error(w, "Event queue unavailable", http.StatusServiceUnavailable)
		default:
			http.Error(w, "Failed to enqueue event", http.StatusInternalServerError)
		}
		return
	}

	log.Printf("[Webhook] Queued %s/%s for %s (delivery %s)", event.Kind, event.Action, event.Key(), delivery)
	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte("Event queued"))
}

func (h *Handler) commentEvent(ev *gh.IssueCommentEvent, delivery string) (*Event, string) {
	switch ev.GetAction() {
	case "created", "edited":
	default:
		return nil, ""
	}
	repo := ev.GetRepo().GetFullName()
	if repo == "" || ev.Issue == nil || ev.Comment == nil {
		return nil, ""
	}
	issue := github.IssueFromGitHub(repo, ev.Issue)
	comment := github.CommentFromGitHub(repo, issue.Number, ev.Comment)
	return &Event{
		DeliveryID: delivery,
		Kind:       KindComment,
		Action:     ev.GetAction(),
		Issue:      *issue,
		Comment:    comment,
	}, CommentKey(comment.ID, comment.UpdatedAt)
}

func (h *Handler) issueEvent(ev *gh.IssuesEvent, delivery string) (*Event, string) {
	switch ev.GetAction() {
	case "opened", "edited", "closed", "reopened", "labeled", "unlabeled":
	default:
		return nil, ""
	}
	repo := ev.GetRepo().GetFullName()
	if repo == "" || ev.Issue == nil {
		return nil, ""
	}
	return &Event{
		DeliveryID: delivery,
		Kind:       KindIssue,
		Action:     ev.GetAction(),
		Issue:      *github.IssueFromGitHub(repo, ev.Issue),
	}, "delivery:" + delivery
}
