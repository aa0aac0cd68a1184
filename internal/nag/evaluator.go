// Package nag applies bot commands to FCP proposals and periodically advances them.
package nag

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cexll/fcpbot/internal/command"
	"github.com/cexll/fcpbot/internal/fcp"
	"github.com/cexll/fcpbot/internal/github"
	"github.com/cexll/fcpbot/internal/github/comment"
	"github.com/cexll/fcpbot/internal/store"
)

// IssueTracker is the GitHub surface the evaluator drives.
type IssueTracker interface {
	GetIssue(ctx context.Context, repo string, number int) (*github.Issue, error)
	GetComment(ctx context.Context, repo string, id int64) (*github.Comment, error)
	CreateComment(ctx context.Context, repo string, number int, body string) (int64, error)
	EditComment(ctx context.Context, repo string, id int64, body string) error
	DeleteComment(ctx context.Context, repo string, id int64) error
	AddLabel(ctx context.Context, repo string, number int, label string) error
	RemoveLabel(ctx context.Context, repo string, number int, label string) error
	CloseIssue(ctx context.Context, repo string, number int) error
}

// TeamDirectory resolves team membership and per-repository behavior.
type TeamDirectory interface {
	command.TeamResolver
	// MembersForLabels returns the members of every team whose label is in labels.
	MembersForLabels(labels []string) []string
	// MembersOf returns the members of the named teams.
	MembersOf(teams []string) []string
	// AutoExecute reports whether the disposition is carried out automatically on repo.
	AutoExecute(repo string, d fcp.Disposition) bool
}

// Config holds evaluator settings.
type Config struct {
	// Mention is the token commands start with, e.g. "@rfcbot".
	Mention string
	// BotLogin is the bot's own account; its comments are never parsed.
	BotLogin string
	// PostComments false is a dry run: no comment is created or edited.
	PostComments bool
	// WaitPeriod is the FCP length. Zero means fcp.WaitPeriod.
	WaitPeriod time.Duration
}

// CommentEvent is one created or edited issue comment.
type CommentEvent struct {
	Issue   github.Issue
	Comment github.Comment
}

// Evaluator owns the FCP state machine. One mutex serializes every command
// application and every sweep pass.
type Evaluator struct {
	mu sync.Mutex

	store    store.Store
	tracker  IssueTracker
	teams    TeamDirectory
	comments *comment.Tracker
	parser   *command.Parser
	cfg      Config
	now      func() time.Time
}

// New creates an evaluator.
func New(st store.Store, tracker IssueTracker, teams TeamDirectory, cfg Config) *Evaluator {
	if cfg.WaitPeriod <= 0 {
		cfg.WaitPeriod = fcp.WaitPeriod
	}
	if cfg.BotLogin == "" {
		cfg.BotLogin = strings.TrimPrefix(cfg.Mention, "@")
	}
	return &Evaluator{
		store:    st,
		tracker:  tracker,
		teams:    teams,
		comments: comment.NewTracker(tracker, cfg.PostComments),
		parser:   command.NewParser(cfg.Mention, teams),
		cfg:      cfg,
		now:      time.Now,
	}
}

// RecordIssue mirrors an issue into the store.
func (e *Evaluator) RecordIssue(ctx context.Context, issue github.Issue) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.recordIssue(ctx, issue)
	return err
}

// HandleComment records the comment and applies every command in it. Calling it
// twice for the same comment is harmless. Returned errors include parse errors
// from malformed explicit invocations.
func (e *Evaluator) HandleComment(ctx context.Context, ev CommentEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	issue, err := e.recordIssue(ctx, ev.Issue)
	if err != nil {
		return err
	}
	trigger := &store.Comment{
		ID:        ev.Comment.ID,
		IssueID:   issue.ID,
		Author:    ev.Comment.Author,
		Body:      ev.Comment.Body,
		CreatedAt: ev.Comment.CreatedAt,
		UpdatedAt: ev.Comment.UpdatedAt,
	}
	if ev.Comment.AuthorID != 0 {
		if err := e.store.UpsertUser(ctx, &store.User{ID: ev.Comment.AuthorID, Login: ev.Comment.Author}); err != nil {
			log.Printf("[Nag] Failed to record user %s: %v", ev.Comment.Author, err)
		}
	}
	if err := e.store.UpsertComment(ctx, trigger); err != nil {
		return fmt.Errorf("record comment %d: %w", trigger.ID, err)
	}

	if e.isBot(trigger.Author) {
		return nil
	}

	cmds, parseErr := e.parser.Parse(trigger.Body)
	if parseErr != nil {
		log.Printf("[Nag] Parse errors in comment %d on %s#%d: %v", trigger.ID, issue.Repository, issue.Number, parseErr)
	}

	if len(cmds) == 0 {
		if err := e.resolveFeedback(ctx, issue, trigger); err != nil {
			return errors.Join(parseErr, err)
		}
		return parseErr
	}

	reviewers := e.teams.MembersForLabels(issue.Labels)
	errs := []error{parseErr}
	for _, cmd := range cmds {
		if err := e.apply(ctx, cmd, trigger.Author, issue, trigger, reviewers); err != nil {
			log.Printf("[Nag] Failed to apply %v from %s on %s#%d: %v", cmd, trigger.Author, issue.Repository, issue.Number, err)
			errs = append(errs, err)
		}
	}

	if err := e.refreshTrackingComment(ctx, issue); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Apply performs one command on behalf of actor. reviewers is the member set of
// the teams labelled on issue; commands from anyone outside it are ignored.
func (e *Evaluator) Apply(ctx context.Context, cmd command.Command, actor string, issue *store.Issue, trigger *store.Comment, reviewers []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.apply(ctx, cmd, actor, issue, trigger, reviewers); err != nil {
		return err
	}
	return e.refreshTrackingComment(ctx, issue)
}

func (e *Evaluator) isBot(login string) bool {
	return strings.EqualFold(login, e.cfg.BotLogin) || strings.HasSuffix(login, "[bot]")
}

func (e *Evaluator) recordIssue(ctx context.Context, gi github.Issue) (*store.Issue, error) {
	issue := &store.Issue{
		ID:         gi.ID,
		Repository: gi.Repository,
		Number:     gi.Number,
		Title:      gi.Title,
		Author:     gi.Author,
		Open:       gi.Open,
		Labels:     slices.Clone(gi.Labels),
		UpdatedAt:  e.now(),
	}
	if err := e.store.UpsertIssue(ctx, issue); err != nil {
		return nil, fmt.Errorf("record issue %s#%d: %w", gi.Repository, gi.Number, err)
	}
	return issue, nil
}

func ref(issue *store.Issue) comment.Issue {
	return comment.Issue{Repository: issue.Repository, Number: issue.Number}
}

// post creates a bot comment and records it. Disabled posting is not logged as a failure.
func (e *Evaluator) post(ctx context.Context, st store.Store, issue *store.Issue, ct comment.Type) (int64, error) {
	id, text, err := e.comments.Post(ctx, ref(issue), ct)
	if err != nil {
		return 0, err
	}
	e.recordBotComment(ctx, st, issue, id, text)
	return id, nil
}

func (e *Evaluator) recordBotComment(ctx context.Context, st store.Store, issue *store.Issue, id int64, text string) {
	now := e.now()
	c := &store.Comment{ID: id, IssueID: issue.ID, Author: e.cfg.BotLogin, Body: text, CreatedAt: now, UpdatedAt: now}
	if err := st.UpsertComment(ctx, c); err != nil {
		log.Printf("[Nag] Failed to record bot comment %d: %v", id, err)
	}
}

// notify posts a best-effort comment.
func (e *Evaluator) notify(ctx context.Context, issue *store.Issue, ct comment.Type) {
	if _, err := e.post(ctx, e.store, issue, ct); err != nil && !errors.Is(err, comment.ErrCommentsDisabled) {
		log.Printf("[Nag] Failed to post comment on %s#%d: %v", issue.Repository, issue.Number, err)
	}
}

// addLabel adds label on GitHub and in the mirrored issue. It reports success.
func (e *Evaluator) addLabel(ctx context.Context, issue *store.Issue, label fcp.Label) bool {
	if err := e.tracker.AddLabel(ctx, issue.Repository, issue.Number, label.String()); err != nil {
		log.Printf("[Nag] Failed to add label %s to %s#%d: %v", label, issue.Repository, issue.Number, err)
		return false
	}
	if !issue.HasLabel(label.String()) {
		issue.Labels = append(issue.Labels, label.String())
		e.saveIssue(ctx, issue)
	}
	return true
}

func (e *Evaluator) removeLabel(ctx context.Context, issue *store.Issue, label fcp.Label) {
	if err := e.tracker.RemoveLabel(ctx, issue.Repository, issue.Number, label.String()); err != nil {
		log.Printf("[Nag] Failed to remove label %s from %s#%d: %v", label, issue.Repository, issue.Number, err)
		return
	}
	if issue.HasLabel(label.String()) {
		issue.Labels = slices.DeleteFunc(issue.Labels, func(l string) bool { return l == label.String() })
		e.saveIssue(ctx, issue)
	}
}

func (e *Evaluator) saveIssue(ctx context.Context, issue *store.Issue) {
	issue.UpdatedAt = e.now()
	if err := e.store.UpsertIssue(ctx, issue); err != nil {
		log.Printf("[Nag] Failed to save issue %s#%d: %v", issue.Repository, issue.Number, err)
	}
}

// refreshTrackingComment re-renders the issue's pending proposal, if any.
func (e *Evaluator) refreshTrackingComment(ctx context.Context, issue *store.Issue) error {
	p, err := e.store.GetProposalByIssue(ctx, issue.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load proposal for %s#%d: %w", issue.Repository, issue.Number, err)
	}
	if p.FCPClosed {
		return nil
	}
	reviews, err := e.store.ListReviewRequests(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("list review requests: %w", err)
	}
	concerns, err := e.store.ListConcerns(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("list concerns: %w", err)
	}
	return e.syncProposalComment(ctx, issue, p, reviews, concerns)
}

// syncProposalComment edits the tracking comment when its rendering changed.
func (e *Evaluator) syncProposalComment(ctx context.Context, issue *store.Issue, p *store.Proposal, reviews []store.ReviewRequest, concerns []store.Concern) error {
	previous := ""
	if stored, err := e.store.GetComment(ctx, p.TrackingComment); err == nil {
		previous = stored.Body
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load tracking comment %d: %w", p.TrackingComment, err)
	}

	text, changed, err := e.comments.Sync(ctx, ref(issue), p.TrackingComment, previous, proposedComment(p, reviews, concerns))
	if errors.Is(err, comment.ErrCommentsDisabled) {
		return nil
	}
	if err != nil {
		log.Printf("[Nag] Failed to update tracking comment on %s#%d: %v", issue.Repository, issue.Number, err)
		return nil
	}
	if changed {
		e.recordBotComment(ctx, e.store, issue, p.TrackingComment, text)
	}
	return nil
}

func proposedComment(p *store.Proposal, reviews []store.ReviewRequest, concerns []store.Concern) comment.Proposed {
	ct := comment.Proposed{
		Initiator:   p.Initiator,
		Disposition: p.Disposition,
		Reviewers:   make([]comment.Review, 0, len(reviews)),
		Concerns:    make([]comment.Concern, 0, len(concerns)),
	}
	for _, r := range reviews {
		ct.Reviewers = append(ct.Reviewers, comment.Review{Login: r.Reviewer, Reviewed: r.Reviewed})
	}
	for _, c := range concerns {
		ct.Concerns = append(ct.Concerns, comment.Concern{Name: c.Name, InitiatingComment: c.InitiatingComment, ResolvedComment: c.ResolvedComment})
	}
	return ct
}
