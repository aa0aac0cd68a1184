// Package command parses bot invocations out of issue comment text.
package command

import (
	"fmt"

	"github.com/cexll/fcpbot/internal/fcp"
)

// Command is one parsed bot instruction. The set of implementations is closed:
// Propose, Cancel, Reviewed, NewConcern, ResolveConcern, FeedbackRequest and
// AskQuestion.
type Command interface {
	isCommand()
}

// Propose starts an FCP proposal with the given disposition.
type Propose struct {
	Disposition fcp.Disposition
}

// Cancel withdraws the issue's proposal.
type Cancel struct{}

// Reviewed marks the author's review request as done.
type Reviewed struct{}

// NewConcern registers a blocking concern.
type NewConcern struct {
	Name string
}

// ResolveConcern resolves a concern previously raised by the same author.
type ResolveConcern struct {
	Name string
}

// FeedbackRequest asks a user for feedback on the issue.
type FeedbackRequest struct {
	Username string
}

// AskQuestion opens a poll addressed to a set of teams.
// Teams is sorted and free of duplicates.
type AskQuestion struct {
	Teams    []string
	Question string
}

func (Propose) isCommand()         {}
func (Cancel) isCommand()          {}
func (Reviewed) isCommand()        {}
func (NewConcern) isCommand()      {}
func (ResolveConcern) isCommand()  {}
func (FeedbackRequest) isCommand() {}
func (AskQuestion) isCommand()     {}

func (c Propose) String() string         { return "propose " + c.Disposition.String() }
func (Cancel) String() string            { return "cancel" }
func (Reviewed) String() string          { return "reviewed" }
func (c NewConcern) String() string      { return fmt.Sprintf("concern %q", c.Name) }
func (c ResolveConcern) String() string  { return fmt.Sprintf("resolve %q", c.Name) }
func (c FeedbackRequest) String() string { return "f? @" + c.Username }
func (c AskQuestion) String() string     { return fmt.Sprintf("ask %v %q", c.Teams, c.Question) }

// ParseError reports a malformed explicit invocation (`fcp <sub>`, `pr <sub>`, `f?`).
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid command %q: %s", e.Line, e.Reason)
}
