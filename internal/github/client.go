// Package github talks to the GitHub REST API on behalf of the bot.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"
)

// Issue is the subset of a GitHub issue the bot tracks.
type Issue struct {
	ID         int64
	Repository string
	Number     int
	Title      string
	Author     string
	Open       bool
	Labels     []string
}

// Comment is the subset of an issue comment the bot tracks.
type Comment struct {
	ID          int64
	Repository  string
	IssueNumber int
	Author      string
	AuthorID    int64
	Body        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Client wraps a go-github client. All repo arguments are "owner/name".
type Client struct {
	gh *gh.Client
}

// NewClient uses httpClient for every request. A nil httpClient means
// unauthenticated access.
func NewClient(httpClient *http.Client) *Client {
	return &Client{gh: gh.NewClient(httpClient)}
}

// NewAuthenticatedClient signs each request with a token from auth.
func NewAuthenticatedClient(auth AuthProvider) *Client {
	return NewClient(&http.Client{
		Timeout:   30 * time.Second,
		Transport: &authTransport{auth: auth},
	})
}

// WithBaseURL points the client at another API root, such as a test server.
func (c *Client) WithBaseURL(base string) (*Client, error) {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	c.gh.BaseURL = u
	return c, nil
}

// GitHub exposes the underlying client.
func (c *Client) GitHub() *gh.Client { return c.gh }

// GetIssue fetches an issue or pull request by number.
func (c *Client) GetIssue(ctx context.Context, repo string, number int) (*Issue, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return nil, err
	}
	issue, _, err := c.gh.Issues.Get(ctx, owner, name, number)
	if err != nil {
		return nil, fmt.Errorf("get issue %s#%d: %w", repo, number, err)
	}
	return IssueFromGitHub(repo, issue), nil
}

// GetComment fetches an issue comment by id.
func (c *Client) GetComment(ctx context.Context, repo string, id int64) (*Comment, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return nil, err
	}
	comment, _, err := c.gh.Issues.GetComment(ctx, owner, name, id)
	if err != nil {
		return nil, fmt.Errorf("get comment %d on %s: %w", id, repo, err)
	}
	return CommentFromGitHub(repo, 0, comment), nil
}

// CreateComment posts a new comment and returns its id.
func (c *Client) CreateComment(ctx context.Context, repo string, number int, body string) (int64, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return 0, err
	}
	comment, _, err := c.gh.Issues.CreateComment(ctx, owner, name, number, &gh.IssueComment{Body: gh.String(body)})
	if err != nil {
		return 0, err
	}
	if comment.GetID() == 0 {
		return 0, errors.New("created comment has no id")
	}
	return comment.GetID(), nil
}

// EditComment replaces the body of an existing comment.
func (c *Client) EditComment(ctx context.Context, repo string, id int64, body string) error {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return err
	}
	_, _, err = c.gh.Issues.EditComment(ctx, owner, name, id, &gh.IssueComment{Body: gh.String(body)})
	return err
}

// DeleteComment removes a comment.
func (c *Client) DeleteComment(ctx context.Context, repo string, id int64) error {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return err
	}
	_, err = c.gh.Issues.DeleteComment(ctx, owner, name, id)
	return err
}

// AddLabel adds label to the issue. Adding a present label is a no-op on GitHub's side.
func (c *Client) AddLabel(ctx context.Context, repo string, number int, label string) error {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return err
	}
	_, _, err = c.gh.Issues.AddLabelsToIssue(ctx, owner, name, number, []string{label})
	if err != nil {
		return fmt.Errorf("add label %q to %s#%d: %w", label, repo, number, err)
	}
	return nil
}

// RemoveLabel removes label from the issue. A missing label is not an error.
func (c *Client) RemoveLabel(ctx context.Context, repo string, number int, label string) error {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return err
	}
	resp, err := c.gh.Issues.RemoveLabelForIssue(ctx, owner, name, number, label)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("remove label %q from %s#%d: %w", label, repo, number, err)
	}
	return nil
}

// CloseIssue closes the issue.
func (c *Client) CloseIssue(ctx context.Context, repo string, number int) error {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return err
	}
	_, _, err = c.gh.Issues.Edit(ctx, owner, name, number, &gh.IssueRequest{State: gh.String("closed")})
	if err != nil {
		return fmt.Errorf("close %s#%d: %w", repo, number, err)
	}
	return nil
}

// ListRepoComments returns every issue comment in repo updated at or after since
// (all comments when since is zero), oldest first.
func (c *Client) ListRepoComments(ctx context.Context, repo string, since time.Time) ([]Comment, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return nil, err
	}

	opts := &gh.IssueListCommentsOptions{
		Sort:        gh.String("created"),
		Direction:   gh.String("asc"),
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	if !since.IsZero() {
		opts.Since = &since
	}

	var out []Comment
	for {
		page, resp, err := c.gh.Issues.ListComments(ctx, owner, name, 0, opts)
		if err != nil {
			return nil, fmt.Errorf("list comments for %s: %w", repo, err)
		}
		for _, comment := range page {
			number, ok := issueNumberFromURL(comment.GetIssueURL())
			if !ok {
				continue
			}
			out = append(out, *CommentFromGitHub(repo, number, comment))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// IssueFromGitHub converts a go-github issue.
func IssueFromGitHub(repo string, issue *gh.Issue) *Issue {
	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.GetName())
	}
	return &Issue{
		ID:         issue.GetID(),
		Repository: repo,
		Number:     issue.GetNumber(),
		Title:      issue.GetTitle(),
		Author:     issue.GetUser().GetLogin(),
		Open:       issue.GetState() != "closed",
		Labels:     labels,
	}
}

// CommentFromGitHub converts a go-github issue comment.
func CommentFromGitHub(repo string, number int, comment *gh.IssueComment) *Comment {
	if number == 0 {
		number, _ = issueNumberFromURL(comment.GetIssueURL())
	}
	return &Comment{
		ID:          comment.GetID(),
		Repository:  repo,
		IssueNumber: number,
		Author:      comment.GetUser().GetLogin(),
		AuthorID:    comment.GetUser().GetID(),
		Body:        comment.GetBody(),
		CreatedAt:   comment.GetCreatedAt().Time,
		UpdatedAt:   comment.GetUpdatedAt().Time,
	}
}

// issueNumberFromURL reads the trailing number of .../issues/{n}.
func issueNumberFromURL(u string) (int, bool) {
	idx := strings.LastIndex(u, "/")
	if idx < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(u[idx+1:])
	if err != nil {
		return 0, false
	}
	return n, true
}
