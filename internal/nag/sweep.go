package nag

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cexll/fcpbot/internal/fcp"
	"github.com/cexll/fcpbot/internal/github/comment"
	"github.com/cexll/fcpbot/internal/store"
)

// maxOutstandingReviews is the number of missing sign-offs at which an FCP can no longer start.
const maxOutstandingReviews = 3

// Sweep re-evaluates every open proposal and poll. A failure on one item is
// logged and the pass continues; the returned error only reports that the
// work lists could not be loaded.
func (e *Evaluator) Sweep(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	log.Printf("[Sweep] Starting pass at %s", now.UTC().Format("2006-01-02T15:04:05Z"))

	pending, err := e.store.ListProposals(ctx, store.StagePending)
	if err != nil {
		return fmt.Errorf("list pending proposals: %w", err)
	}
	for i := range pending {
		if err := e.sweepPending(ctx, &pending[i], now); err != nil {
			log.Printf("[Sweep] Proposal %d: %v", pending[i].ID, err)
		}
	}

	started, err := e.store.ListProposals(ctx, store.StageStarted)
	if err != nil {
		return fmt.Errorf("list started proposals: %w", err)
	}
	for i := range started {
		p := &started[i]
		if p.FCPStart.Add(e.cfg.WaitPeriod).After(now) {
			continue
		}
		if err := e.finish(ctx, p); err != nil {
			log.Printf("[Sweep] Proposal %d: %v", p.ID, err)
		}
	}

	polls, err := e.store.ListOpenPolls(ctx)
	if err != nil {
		return fmt.Errorf("list open polls: %w", err)
	}
	for i := range polls {
		if err := e.sweepPoll(ctx, &polls[i]); err != nil {
			log.Printf("[Sweep] Poll %d: %v", polls[i].ID, err)
		}
	}
	return nil
}

// loadIssue returns the stored issue refreshed from the tracker when possible.
func (e *Evaluator) loadIssue(ctx context.Context, id int64) (*store.Issue, error) {
	issue, err := e.store.GetIssue(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load issue %d: %w", id, err)
	}
	live, err := e.tracker.GetIssue(ctx, issue.Repository, issue.Number)
	if err != nil {
		log.Printf("[Sweep] Could not refresh %s#%d, using stored state: %v", issue.Repository, issue.Number, err)
		return issue, nil
	}
	if live.Open != issue.Open || !sameLabels(live.Labels, issue.Labels) || live.Title != issue.Title {
		issue.Open = live.Open
		issue.Labels = live.Labels
		issue.Title = live.Title
		e.saveIssue(ctx, issue)
	}
	return issue, nil
}

func sameLabels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, l := range a {
		seen[l]++
	}
	for _, l := range b {
		if seen[l] == 0 {
			return false
		}
		seen[l]--
	}
	return true
}

// trackingBody returns the live body of a bot comment, falling back to the stored copy.
func (e *Evaluator) trackingBody(ctx context.Context, issue *store.Issue, id int64) string {
	if live, err := e.tracker.GetComment(ctx, issue.Repository, id); err == nil {
		return live.Body
	}
	if stored, err := e.store.GetComment(ctx, id); err == nil {
		return stored.Body
	}
	return ""
}

func (e *Evaluator) sweepPending(ctx context.Context, p *store.Proposal, now time.Time) error {
	issue, err := e.loadIssue(ctx, p.IssueID)
	if err != nil {
		return err
	}

	reviews, err := e.store.ListReviewRequests(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("list review requests: %w", err)
	}
	boxes := comment.ParseChecklist(e.trackingBody(ctx, issue, p.TrackingComment))
	for i := range reviews {
		r := &reviews[i]
		checked, ok := boxes[r.Reviewer]
		if !ok || checked == r.Reviewed {
			continue
		}
		r.Reviewed = checked
		if err := e.store.UpdateReviewRequest(ctx, r); err != nil {
			return fmt.Errorf("sync review of %s: %w", r.Reviewer, err)
		}
	}

	if !issue.Open {
		log.Printf("[Sweep] %s#%d was closed, cancelling its proposal", issue.Repository, issue.Number)
		return e.cancelProposal(ctx, issue, p)
	}

	concerns, err := e.store.ListConcerns(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("list concerns: %w", err)
	}
	unresolved := 0
	for _, c := range concerns {
		if !c.Resolved() {
			unresolved++
		}
	}
	complete := 0
	for _, r := range reviews {
		if r.Reviewed {
			complete++
		}
	}
	incomplete := len(reviews) - complete

	if err := e.syncProposalComment(ctx, issue, p, reviews, concerns); err != nil {
		return err
	}

	if unresolved > 0 || incomplete >= complete || incomplete >= maxOutstandingReviews {
		return nil
	}

	start := now
	p.FCPStart = &start
	if err := e.store.UpdateProposal(ctx, p); err != nil {
		return fmt.Errorf("start fcp: %w", err)
	}
	log.Printf("[Sweep] %s#%d entered its final comment period (%d/%d reviewed)", issue.Repository, issue.Number, complete, len(reviews))

	added := e.addLabel(ctx, issue, fcp.LabelFCP)
	e.removeLabel(ctx, issue, fcp.LabelProposed)
	if e.comments.Enabled() {
		e.notify(ctx, issue, comment.AllReviewedNoConcerns{Author: p.Initiator, StatusCommentID: p.TrackingComment, AddedLabel: added})
	}
	return nil
}

func (e *Evaluator) finish(ctx context.Context, p *store.Proposal) error {
	issue, err := e.store.GetIssue(ctx, p.IssueID)
	if err != nil {
		return fmt.Errorf("load issue %d: %w", p.IssueID, err)
	}

	p.FCPClosed = true
	if err := e.store.UpdateProposal(ctx, p); err != nil {
		return fmt.Errorf("close fcp: %w", err)
	}
	log.Printf("[Sweep] Final comment period on %s#%d is complete", issue.Repository, issue.Number)

	added := e.addLabel(ctx, issue, fcp.LabelFinished)
	e.removeLabel(ctx, issue, fcp.LabelFCP)

	auto := e.teams.AutoExecute(issue.Repository, p.Disposition)
	e.notify(ctx, issue, comment.WeekPassed{
		Author:          p.Initiator,
		StatusCommentID: p.TrackingComment,
		AddedLabel:      added,
		Disposition:     p.Disposition,
		AutoAction:      auto,
	})
	if !auto {
		return nil
	}

	switch p.Disposition {
	case fcp.Close:
		e.addLabel(ctx, issue, fcp.LabelClosed)
		e.removeLabel(ctx, issue, fcp.LabelDispositionClose)
	case fcp.Postpone:
		e.addLabel(ctx, issue, fcp.LabelPostponed)
		e.removeLabel(ctx, issue, fcp.LabelDispositionPostpone)
	default:
		return nil
	}
	if err := e.tracker.CloseIssue(ctx, issue.Repository, issue.Number); err != nil {
		log.Printf("[Sweep] Failed to close %s#%d: %v", issue.Repository, issue.Number, err)
		return nil
	}
	issue.Open = false
	e.saveIssue(ctx, issue)
	return nil
}

func (e *Evaluator) sweepPoll(ctx context.Context, poll *store.Poll) error {
	issue, err := e.loadIssue(ctx, poll.IssueID)
	if err != nil {
		return err
	}
	reqs, err := e.store.ListPollReviewRequests(ctx, poll.ID)
	if err != nil {
		return fmt.Errorf("list poll review requests: %w", err)
	}

	boxes := comment.ParseChecklist(e.trackingBody(ctx, issue, poll.TrackingComment))
	answered := 0
	reviews := make([]comment.Review, 0, len(reqs))
	for i := range reqs {
		r := &reqs[i]
		if checked, ok := boxes[r.Reviewer]; ok && checked != r.Reviewed {
			r.Reviewed = checked
			if err := e.store.UpdatePollReviewRequest(ctx, r); err != nil {
				return fmt.Errorf("sync poll answer of %s: %w", r.Reviewer, err)
			}
		}
		if r.Reviewed {
			answered++
		}
		reviews = append(reviews, comment.Review{Login: r.Reviewer, Reviewed: r.Reviewed})
	}

	closing := answered == len(reqs) || !issue.Open
	previous := ""
	if stored, err := e.store.GetComment(ctx, poll.TrackingComment); err == nil {
		previous = stored.Body
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load poll comment: %w", err)
	}
	ct := comment.Poll{Initiator: poll.Initiator, Teams: poll.Teams, Question: poll.Question, Reviewers: reviews, Closed: closing}
	text, changed, err := e.comments.Sync(ctx, ref(issue), poll.TrackingComment, previous, ct)
	switch {
	case errors.Is(err, comment.ErrCommentsDisabled):
	case err != nil:
		log.Printf("[Sweep] Failed to update poll comment on %s#%d: %v", issue.Repository, issue.Number, err)
	case changed:
		e.recordBotComment(ctx, e.store, issue, poll.TrackingComment, text)
	}

	if closing {
		poll.Closed = true
		if err := e.store.UpdatePoll(ctx, poll); err != nil {
			return fmt.Errorf("close poll: %w", err)
		}
		log.Printf("[Sweep] Poll %d on %s#%d closed", poll.ID, issue.Repository, issue.Number)
	}
	return nil
}
