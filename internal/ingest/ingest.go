// Package ingest replays a repository's existing comments through the evaluator.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cexll/fcpbot/internal/github"
	"github.com/cexll/fcpbot/internal/nag"
)

// Source lists a repository's comments and loads their issues.
type Source interface {
	ListRepoComments(ctx context.Context, repo string, since time.Time) ([]github.Comment, error)
	GetIssue(ctx context.Context, repo string, number int) (*github.Issue, error)
}

// Handler consumes one comment at a time.
type Handler interface {
	HandleComment(ctx context.Context, ev nag.CommentEvent) error
}

// Stats summarizes one ingestion run.
type Stats struct {
	Comments int
	Issues   int
	Failed   int
}

// Ingester feeds historical comments to a Handler in creation order.
type Ingester struct {
	source  Source
	handler Handler
}

// New creates an Ingester.
func New(source Source, handler Handler) *Ingester {
	return &Ingester{source: source, handler: handler}
}

// Repo ingests every comment in repo updated at or after since. A comment that
// fails is logged and counted; the run only stops when the listing itself fails
// or ctx is done.
func (i *Ingester) Repo(ctx context.Context, repo string, since time.Time) (Stats, error) {
	var stats Stats

	comments, err := i.source.ListRepoComments(ctx, repo, since)
	if err != nil {
		return stats, fmt.Errorf("list comments: %w", err)
	}
	log.Printf("[Ingest] %s: %d comments to replay", repo, len(comments))

	issues := make(map[int]*github.Issue)
	for _, c := range comments {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		issue, ok := issues[c.IssueNumber]
		if !ok {
			issue, err = i.source.GetIssue(ctx, repo, c.IssueNumber)
			if err != nil {
				log.Printf("[Ingest] Skipping comment %d: load %s#%d: %v", c.ID, repo, c.IssueNumber, err)
				stats.Failed++
				continue
			}
			issues[c.IssueNumber] = issue
			stats.Issues++
		}

		ev := nag.CommentEvent{Issue: *issue, Comment: c}
		if err := i.handler.HandleComment(ctx, ev); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return stats, err
			}
			log.Printf("[Ingest] Comment %d on %s#%d: %v", c.ID, repo, c.IssueNumber, err)
			stats.Failed++
			continue
		}
		stats.Comments++
	}

	log.Printf("[Ingest] %s: replayed %d comments across %d issues (%d failed)", repo, stats.Comments, stats.Issues, stats.Failed)
	return stats, nil
}

// Repos ingests each repository in turn. Failures are logged per repository and
// joined into the returned error.
func (i *Ingester) Repos(ctx context.Context, repos []string, since time.Time) error {
	var errs []error
	for _, repo := range repos {
		if _, err := i.Repo(ctx, repo, since); err != nil {
			log.Printf("[Ingest] Unable to ingest %s: %v", repo, err)
			errs = append(errs, fmt.Errorf("%s: %w", repo, err))
			if ctx.Err() != nil {
				break
			}
		}
	}
	return errors.Join(errs...)
}
