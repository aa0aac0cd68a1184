package nag

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"

	"github.com/cexll/fcpbot/internal/command"
	"github.com/cexll/fcpbot/internal/fcp"
	"github.com/cexll/fcpbot/internal/github/comment"
	"github.com/cexll/fcpbot/internal/store"
)

func (e *Evaluator) apply(ctx context.Context, cmd command.Command, actor string, issue *store.Issue, trigger *store.Comment, reviewers []string) error {
	if !slices.Contains(reviewers, actor) {
		log.Printf("[Nag] Ignoring %v from %s on %s#%d: not a member of a tagged team", cmd, actor, issue.Repository, issue.Number)
		return nil
	}

	switch c := cmd.(type) {
	case command.Propose:
		return e.propose(ctx, c.Disposition, actor, issue, trigger, reviewers)
	case command.Cancel:
		return e.cancel(ctx, issue)
	case command.Reviewed:
		return e.reviewed(ctx, actor, issue)
	case command.NewConcern:
		return e.newConcern(ctx, c.Name, actor, issue, trigger)
	case command.ResolveConcern:
		return e.resolveConcern(ctx, c.Name, actor, issue, trigger)
	case command.FeedbackRequest:
		return e.requestFeedback(ctx, c.Username, actor, issue)
	case command.AskQuestion:
		return e.askQuestion(ctx, c, actor, issue, trigger)
	default:
		return fmt.Errorf("unsupported command %T", cmd)
	}
}

// activeProposal returns the issue's proposal, or nil when there is none or its
// final comment period is over.
func (e *Evaluator) activeProposal(ctx context.Context, issue *store.Issue) (*store.Proposal, error) {
	p, err := e.store.GetProposalByIssue(ctx, issue.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load proposal for %s#%d: %w", issue.Repository, issue.Number, err)
	}
	if p.FCPClosed {
		return nil, nil
	}
	return p, nil
}

func (e *Evaluator) propose(ctx context.Context, d fcp.Disposition, actor string, issue *store.Issue, trigger *store.Comment, reviewers []string) error {
	if _, err := e.store.GetProposalByIssue(ctx, issue.ID); err == nil {
		log.Printf("[Nag] %s#%d already has a proposal, ignoring new %s proposal", issue.Repository, issue.Number, d)
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load proposal for %s#%d: %w", issue.Repository, issue.Number, err)
	}

	reviews := make([]comment.Review, 0, len(reviewers))
	for _, r := range reviewers {
		reviews = append(reviews, comment.Review{Login: r, Reviewed: r == actor})
	}
	trackingID, text, err := e.comments.Post(ctx, ref(issue), comment.Proposed{Initiator: actor, Disposition: d, Reviewers: reviews})
	if err != nil {
		return fmt.Errorf("post proposal comment, abandoning proposal: %w", err)
	}

	err = e.store.WithTx(ctx, func(tx store.Store) error {
		p := &store.Proposal{
			IssueID:           issue.ID,
			Initiator:         actor,
			InitiatingComment: trigger.ID,
			Disposition:       d,
			TrackingComment:   trackingID,
		}
		if err := tx.CreateProposal(ctx, p); err != nil {
			return err
		}
		reqs := make([]store.ReviewRequest, 0, len(reviewers))
		for _, r := range reviewers {
			reqs = append(reqs, store.ReviewRequest{ProposalID: p.ID, Reviewer: r, Reviewed: r == actor})
		}
		if err := tx.CreateReviewRequests(ctx, reqs); err != nil {
			return fmt.Errorf("create review requests: %w", err)
		}
		e.recordBotComment(ctx, tx, issue, trackingID, text)
		return nil
	})
	if err != nil {
		e.withdraw(ctx, issue, trackingID)
	}
	if errors.Is(err, store.ErrDuplicate) {
		log.Printf("[Nag] Proposal for %s#%d was created concurrently, treating as existing", issue.Repository, issue.Number)
		return nil
	}
	if err != nil {
		return fmt.Errorf("create proposal for %s#%d: %w", issue.Repository, issue.Number, err)
	}

	log.Printf("[Nag] %s proposed to %s %s#%d with %d reviewers", actor, d, issue.Repository, issue.Number, len(reviewers))
	e.addLabel(ctx, issue, fcp.LabelProposed)
	e.addLabel(ctx, issue, d.Label())
	return nil
}

func (e *Evaluator) cancel(ctx context.Context, issue *store.Issue) error {
	p, err := e.activeProposal(ctx, issue)
	if err != nil || p == nil {
		return err
	}
	if err := e.cancelProposal(ctx, issue, p); err != nil {
		return err
	}
	log.Printf("[Nag] Proposal on %s#%d cancelled", issue.Repository, issue.Number)
	return nil
}

// cancelProposal deletes p and clears its labels. The cancellation comment is best-effort.
func (e *Evaluator) cancelProposal(ctx context.Context, issue *store.Issue, p *store.Proposal) error {
	if err := e.store.DeleteProposal(ctx, p.ID); err != nil {
		return fmt.Errorf("delete proposal %d: %w", p.ID, err)
	}
	e.notify(ctx, issue, comment.ProposalCancelled{Initiator: p.Initiator})
	e.removeLabel(ctx, issue, fcp.LabelProposed)
	e.removeLabel(ctx, issue, fcp.LabelFCP)
	e.removeLabel(ctx, issue, p.Disposition.Label())
	return nil
}

func (e *Evaluator) reviewed(ctx context.Context, actor string, issue *store.Issue) error {
	p, err := e.activeProposal(ctx, issue)
	if err != nil || p == nil {
		return err
	}
	reviews, err := e.store.ListReviewRequests(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("list review requests: %w", err)
	}
	for i := range reviews {
		r := &reviews[i]
		if r.Reviewer != actor || r.Reviewed {
			continue
		}
		r.Reviewed = true
		if err := e.store.UpdateReviewRequest(ctx, r); err != nil {
			return fmt.Errorf("mark %s reviewed: %w", actor, err)
		}
	}
	return nil
}

func (e *Evaluator) newConcern(ctx context.Context, name, actor string, issue *store.Issue, trigger *store.Comment) error {
	p, err := e.activeProposal(ctx, issue)
	if err != nil || p == nil {
		return err
	}

	reopened := false
	err = e.store.WithTx(ctx, func(tx store.Store) error {
		c := &store.Concern{ProposalID: p.ID, Name: name, Initiator: actor, InitiatingComment: trigger.ID}
		if err := tx.CreateConcern(ctx, c); err != nil {
			return err
		}
		if p.FCPStart != nil {
			p.FCPStart = nil
			if err := tx.UpdateProposal(ctx, p); err != nil {
				return fmt.Errorf("reopen proposal %d: %w", p.ID, err)
			}
			reopened = true
		}
		return nil
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("add concern %q: %w", name, err)
	}

	if reopened {
		log.Printf("[Nag] Concern %q reopened the proposal on %s#%d", name, issue.Repository, issue.Number)
		e.removeLabel(ctx, issue, fcp.LabelFCP)
		e.addLabel(ctx, issue, fcp.LabelProposed)
	}
	return nil
}

func (e *Evaluator) resolveConcern(ctx context.Context, name, actor string, issue *store.Issue, trigger *store.Comment) error {
	p, err := e.activeProposal(ctx, issue)
	if err != nil || p == nil {
		return err
	}
	concerns, err := e.store.ListConcerns(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("list concerns: %w", err)
	}
	for i := range concerns {
		c := &concerns[i]
		if c.Name != name || c.Initiator != actor || c.Resolved() {
			continue
		}
		id := trigger.ID
		c.ResolvedComment = &id
		if err := e.store.UpdateConcern(ctx, c); err != nil {
			return fmt.Errorf("resolve concern %q: %w", name, err)
		}
	}
	return nil
}

func (e *Evaluator) requestFeedback(ctx context.Context, username, actor string, issue *store.Issue) error {
	username = strings.TrimPrefix(username, "@")
	open, err := e.store.ListOpenFeedbackRequests(ctx, issue.ID)
	if err != nil {
		return fmt.Errorf("list feedback requests: %w", err)
	}
	for _, f := range open {
		if strings.EqualFold(f.RequestedUser, username) {
			return nil
		}
	}
	f := &store.FeedbackRequest{IssueID: issue.ID, Initiator: actor, RequestedUser: username}
	if err := e.store.CreateFeedbackRequest(ctx, f); err != nil {
		return fmt.Errorf("request feedback from %s: %w", username, err)
	}
	return nil
}

// resolveFeedback closes the open feedback requests addressed to the comment's author.
func (e *Evaluator) resolveFeedback(ctx context.Context, issue *store.Issue, trigger *store.Comment) error {
	open, err := e.store.ListOpenFeedbackRequests(ctx, issue.ID)
	if err != nil {
		return fmt.Errorf("list feedback requests: %w", err)
	}
	for i := range open {
		f := &open[i]
		if !strings.EqualFold(f.RequestedUser, trigger.Author) {
			continue
		}
		id := trigger.ID
		f.FeedbackComment = &id
		if err := e.store.UpdateFeedbackRequest(ctx, f); err != nil {
			return fmt.Errorf("resolve feedback request %d: %w", f.ID, err)
		}
		log.Printf("[Nag] %s answered feedback request on %s#%d", trigger.Author, issue.Repository, issue.Number)
	}
	return nil
}

func (e *Evaluator) askQuestion(ctx context.Context, q command.AskQuestion, actor string, issue *store.Issue, trigger *store.Comment) error {
	teams := slices.Clone(q.Teams)
	if len(teams) == 0 {
		for _, l := range issue.Labels {
			if label, ok := e.teams.ResolveTeam(l); ok && label == l {
				teams = append(teams, label)
			}
		}
		slices.Sort(teams)
	}

	if _, err := e.store.GetPollByQuestion(ctx, issue.ID, q.Question); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load poll: %w", err)
	}

	members := e.teams.MembersOf(teams)
	reviews := make([]comment.Review, 0, len(members))
	for _, m := range members {
		reviews = append(reviews, comment.Review{Login: m, Reviewed: m == actor})
	}
	trackingID, text, err := e.comments.Post(ctx, ref(issue), comment.Poll{Initiator: actor, Teams: teams, Question: q.Question, Reviewers: reviews})
	if err != nil {
		return fmt.Errorf("post poll comment, abandoning poll: %w", err)
	}

	err = e.store.WithTx(ctx, func(tx store.Store) error {
		poll := &store.Poll{
			IssueID:           issue.ID,
			Initiator:         actor,
			InitiatingComment: trigger.ID,
			Question:          q.Question,
			Teams:             teams,
			TrackingComment:   trackingID,
		}
		if err := tx.CreatePoll(ctx, poll); err != nil {
			return fmt.Errorf("create poll: %w", err)
		}
		reqs := make([]store.PollReviewRequest, 0, len(members))
		for _, m := range members {
			reqs = append(reqs, store.PollReviewRequest{PollID: poll.ID, Reviewer: m, Reviewed: m == actor})
		}
		if err := tx.CreatePollReviewRequests(ctx, reqs); err != nil {
			return fmt.Errorf("create poll review requests: %w", err)
		}
		e.recordBotComment(ctx, tx, issue, trackingID, text)
		return nil
	})
	if err != nil {
		e.withdraw(ctx, issue, trackingID)
		return err
	}
	log.Printf("[Nag] %s opened a poll on %s#%d for %v", actor, issue.Repository, issue.Number, teams)
	return nil
}

// withdraw removes a tracking comment whose proposal or poll was never stored.
func (e *Evaluator) withdraw(ctx context.Context, issue *store.Issue, commentID int64) {
	if err := e.comments.Withdraw(ctx, ref(issue), commentID); err != nil {
		log.Printf("[Nag] Orphaned comment %d left on %s#%d: %v", commentID, issue.Repository, issue.Number, err)
		return
	}
	log.Printf("[Nag] Withdrew comment %d on %s#%d", commentID, issue.Repository, issue.Number)
}
