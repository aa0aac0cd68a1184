// Package testing provides a fake GitHub REST API for tests.
package testing

import (
	"encoding/json"
	"fmt"
	"hash/crc32"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cexll/fcpbot/internal/github"
)

// Call is one recorded mutating request.
type Call struct {
	Method string
	Path   string
	Body   string
}

// Server is an httptest server that keeps issues, labels and comments in memory
// and answers the endpoints used by github.Client:
//   - GET    /repos/{o}/{r}/issues/{n}
//   - PATCH  /repos/{o}/{r}/issues/{n}                (state)
//   - POST   /repos/{o}/{r}/issues/{n}/comments
//   - GET    /repos/{o}/{r}/issues/comments            (list, one page per PageSize)
//   - GET    /repos/{o}/{r}/issues/comments/{id}
//   - PATCH  /repos/{o}/{r}/issues/comments/{id}
//   - DELETE /repos/{o}/{r}/issues/comments/{id}
//   - POST   /repos/{o}/{r}/issues/{n}/labels
//   - DELETE /repos/{o}/{r}/issues/{n}/labels/{name}
type Server struct {
	*httptest.Server

	// PageSize splits comment listings into pages; zero means one page.
	PageSize int
	// FailCreateComment makes comment creation return 500.
	FailCreateComment bool
	// FailLabels makes label changes return 500.
	FailLabels bool

	mu       sync.Mutex
	issues   map[string]*fakeIssue
	comments map[int64]*fakeComment
	nextID   int64
	calls    []Call
}

type fakeIssue struct {
	id     int64
	repo   string
	number int
	title  string
	author string
	state  string
	labels []string
}

type fakeComment struct {
	id      int64
	repo    string
	number  int
	author  string
	body    string
	created time.Time
}

var (
	reIssue         = regexp.MustCompile(`^/repos/([^/]+/[^/]+)/issues/(\d+)$`)
	reIssueComments = regexp.MustCompile(`^/repos/([^/]+/[^/]+)/issues/(\d+)/comments$`)
	reRepoComments  = regexp.MustCompile(`^/repos/([^/]+/[^/]+)/issues/comments$`)
	reComment       = regexp.MustCompile(`^/repos/([^/]+/[^/]+)/issues/comments/(\d+)$`)
	reLabels        = regexp.MustCompile(`^/repos/([^/]+/[^/]+)/issues/(\d+)/labels$`)
	reLabel         = regexp.MustCompile(`^/repos/([^/]+/[^/]+)/issues/(\d+)/labels/(.+)$`)
)

// NewServer starts a fake API. Call Close when done.
func NewServer() *Server {
	s := &Server{
		issues:   make(map[string]*fakeIssue),
		comments: make(map[int64]*fakeComment),
		nextID:   1000,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// Client returns a github.Client that talks to the fake server.
func (s *Server) Client() *github.Client {
	c, err := github.NewClient(s.Server.Client()).WithBaseURL(s.URL)
	if err != nil {
		panic(err)
	}
	return c
}

// AddIssue registers an open issue with labels.
func (s *Server) AddIssue(repo string, id int64, number int, author string, labels ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues[issueKey(repo, number)] = &fakeIssue{id: id, repo: repo, number: number, title: fmt.Sprintf("Issue %d", number), author: author, state: "open", labels: append([]string(nil), labels...)}
}

// AddComment registers an existing comment and returns its id.
func (s *Server) AddComment(repo string, number int, author, body string, created time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.comments[s.nextID] = &fakeComment{id: s.nextID, repo: repo, number: number, author: author, body: body, created: created}
	return s.nextID
}

// SetState sets an issue's state ("open" or "closed").
func (s *Server) SetState(repo string, number int, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if is, ok := s.issues[issueKey(repo, number)]; ok {
		is.state = state
	}
}

// SetCommentBody overwrites a comment, as a user ticking a checkbox would.
func (s *Server) SetCommentBody(id int64, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.comments[id]; ok {
		c.body = body
	}
}

// Labels returns the issue's current labels, sorted.
func (s *Server) Labels(repo string, number int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	is, ok := s.issues[issueKey(repo, number)]
	if !ok {
		return nil
	}
	out := append([]string(nil), is.labels...)
	sort.Strings(out)
	return out
}

// State returns the issue state.
func (s *Server) State(repo string, number int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if is, ok := s.issues[issueKey(repo, number)]; ok {
		return is.state
	}
	return ""
}

// CommentBody returns the current body of a comment.
func (s *Server) CommentBody(id int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.comments[id]; ok {
		return c.body
	}
	return ""
}

// HasComment reports whether comment id exists.
func (s *Server) HasComment(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.comments[id]
	return ok
}

// Calls returns the mutating requests seen so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsMatching counts recorded calls with the method whose path ends with suffix.
func (s *Server) CallsMatching(method, suffix string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Method == method && strings.HasSuffix(c.Path, suffix) {
			n++
		}
	}
	return n
}

func issueKey(repo string, number int) string { return repo + "#" + strconv.Itoa(number) }

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v3")
	var body map[string]any
	var rawLabels []string
	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPatch) {
		if reLabels.MatchString(path) {
			_ = json.NewDecoder(r.Body).Decode(&rawLabels)
		} else {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Method != http.MethodGet {
		recorded, _ := json.Marshal(body)
		if rawLabels != nil {
			recorded, _ = json.Marshal(rawLabels)
		}
		s.calls = append(s.calls, Call{Method: r.Method, Path: path, Body: string(recorded)})
	}

	switch {
	case reIssue.MatchString(path):
		m := reIssue.FindStringSubmatch(path)
		is := s.issue(m[1], m[2])
		if is == nil {
			http.NotFound(w, r)
			return
		}
		if r.Method == http.MethodPatch {
			if state, ok := body["state"].(string); ok {
				is.state = state
			}
		}
		writeJSON(w, http.StatusOK, issueJSON(is))

	case reIssueComments.MatchString(path) && r.Method == http.MethodPost:
		if s.FailCreateComment {
			http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
			return
		}
		m := reIssueComments.FindStringSubmatch(path)
		number, _ := strconv.Atoi(m[2])
		s.nextID++
		text, _ := body["body"].(string)
		c := &fakeComment{id: s.nextID, repo: m[1], number: number, author: "rfcbot", body: text, created: time.Now()}
		s.comments[c.id] = c
		writeJSON(w, http.StatusCreated, commentJSON(s.URL, c))

	case reRepoComments.MatchString(path) && r.Method == http.MethodGet:
		repo := reRepoComments.FindStringSubmatch(path)[1]
		s.listComments(w, r, repo)

	case reComment.MatchString(path):
		m := reComment.FindStringSubmatch(path)
		id, _ := strconv.ParseInt(m[2], 10, 64)
		c, ok := s.comments[id]
		if !ok || c.repo != m[1] {
			http.NotFound(w, r)
			return
		}
		switch r.Method {
		case http.MethodPatch:
			c.body, _ = body["body"].(string)
		case http.MethodDelete:
			delete(s.comments, id)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, commentJSON(s.URL, c))

	case reLabels.MatchString(path) && r.Method == http.MethodPost:
		if s.FailLabels {
			http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
			return
		}
		m := reLabels.FindStringSubmatch(path)
		is := s.issue(m[1], m[2])
		if is == nil {
			http.NotFound(w, r)
			return
		}
		for _, l := range rawLabels {
			if !contains(is.labels, l) {
				is.labels = append(is.labels, l)
			}
		}
		writeJSON(w, http.StatusOK, labelsJSON(is.labels))

	case reLabel.MatchString(path) && r.Method == http.MethodDelete:
		if s.FailLabels {
			http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
			return
		}
		m := reLabel.FindStringSubmatch(path)
		is := s.issue(m[1], m[2])
		if is == nil || !contains(is.labels, m[3]) {
			http.Error(w, `{"message":"Label does not exist"}`, http.StatusNotFound)
			return
		}
		kept := is.labels[:0]
		for _, l := range is.labels {
			if l != m[3] {
				kept = append(kept, l)
			}
		}
		is.labels = kept
		writeJSON(w, http.StatusOK, labelsJSON(is.labels))

	default:
		http.NotFound(w, r)
	}
}

func (s *Server) issue(repo, number string) *fakeIssue {
	n, _ := strconv.Atoi(number)
	return s.issues[issueKey(repo, n)]
}

func (s *Server) listComments(w http.ResponseWriter, r *http.Request, repo string) {
	var all []*fakeComment
	for _, c := range s.comments {
		if c.repo == repo {
			all = append(all, c)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].id < all[j].id })

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	if s.PageSize > 0 {
		start := (page - 1) * s.PageSize
		end := start + s.PageSize
		if start > len(all) {
			start = len(all)
		}
		if end < len(all) {
			next := *r.URL
			q := next.Query()
			q.Set("page", strconv.Itoa(page+1))
			next.RawQuery = q.Encode()
			w.Header().Set("Link", fmt.Sprintf(`<%s%s>; rel="next"`, s.URL, next.RequestURI()))
		} else {
			end = len(all)
		}
		all = all[start:end]
	}

	out := make([]map[string]any, 0, len(all))
	for _, c := range all {
		out = append(out, commentJSON(s.URL, c))
	}
	writeJSON(w, http.StatusOK, out)
}

func issueJSON(is *fakeIssue) map[string]any {
	return map[string]any{
		"id":     is.id,
		"number": is.number,
		"title":  is.title,
		"state":  is.state,
		"user":   map[string]any{"login": is.author},
		"labels": labelsJSON(is.labels),
	}
}

func commentJSON(base string, c *fakeComment) map[string]any {
	return map[string]any{
		"id":         c.id,
		"body":       c.body,
		"user":       map[string]any{"login": c.author, "id": int64(crc32.ChecksumIEEE([]byte(c.author)))},
		"issue_url":  fmt.Sprintf("%s/repos/%s/issues/%d", base, c.repo, c.number),
		"created_at": c.created.UTC().Format(time.RFC3339),
		"updated_at": c.created.UTC().Format(time.RFC3339),
	}
}

func labelsJSON(labels []string) []map[string]string {
	out := make([]map[string]string, 0, len(labels))
	for _, l := range labels {
		out = append(out, map[string]string{"name": l})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
