// Package comment renders the bot's comments and keeps tracking comments in sync.
package comment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cexll/fcpbot/internal/fcp"
)

// Issue identifies where a comment is posted.
type Issue struct {
	Repository string // owner/name
	Number     int
}

// CommentURL links to a single comment on the issue.
func (i Issue) CommentURL(id int64) string {
	return fmt.Sprintf("https://github.com/%s/issues/%d#issuecomment-%d", i.Repository, i.Number, id)
}

// Review is one reviewer's checkbox.
type Review struct {
	Login    string
	Reviewed bool
}

// Concern is one listed concern. ResolvedComment is nil while it is open.
type Concern struct {
	Name              string
	InitiatingComment int64
	ResolvedComment   *int64
}

// Type is the semantic kind of a bot comment.
type Type interface {
	isType()
}

// Proposed is the tracking comment of a pending proposal.
type Proposed struct {
	Initiator   string
	Disposition fcp.Disposition
	Reviewers   []Review
	Concerns    []Concern
}

// ProposalCancelled acknowledges a cancel.
type ProposalCancelled struct {
	Initiator string
}

// AllReviewedNoConcerns announces the start of the final comment period.
type AllReviewedNoConcerns struct {
	Author          string
	StatusCommentID int64
	AddedLabel      bool
}

// WeekPassed announces the end of the final comment period. AutoAction is set when
// the repository lets the bot carry out the disposition itself.
type WeekPassed struct {
	Author          string
	StatusCommentID int64
	AddedLabel      bool
	Disposition     fcp.Disposition
	AutoAction      bool
}

// Poll is the tracking comment of a team poll.
type Poll struct {
	Initiator string
	Teams     []string
	Question  string
	Reviewers []Review
	Closed    bool
}

func (Proposed) isType()              {}
func (ProposalCancelled) isType()     {}
func (AllReviewedNoConcerns) isType() {}
func (WeekPassed) isType()            {}
func (Poll) isType()                  {}

const docsLink = "See [this document](https://github.com/rust-lang/rfcbot-rs/blob/master/README.md) " +
	"for info about what commands tagged team members can give me."

// Render produces the canonical text for t. Equal inputs give byte-identical output.
func Render(issue Issue, t Type) string {
	switch t := t.(type) {
	case Proposed:
		return renderProposed(issue, t)
	case ProposalCancelled:
		return fmt.Sprintf("@%s proposal cancelled.", t.Initiator)
	case AllReviewedNoConcerns:
		var b strings.Builder
		fmt.Fprintf(&b, ":bell: **This is now entering its final comment period**, as per the [review above](%s). :bell:",
			issue.CommentURL(t.StatusCommentID))
		writeLabelNote(&b, t.AddedLabel, t.Author, fcp.LabelFCP)
		return b.String()
	case WeekPassed:
		return renderWeekPassed(issue, t)
	case Poll:
		return renderPoll(t)
	default:
		return ""
	}
}

func renderProposed(issue Issue, p Proposed) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Team member @%s has proposed to %s this. The next step is review by the rest of the tagged team members:\n\n",
		p.Initiator, p.Disposition)
	b.WriteString(FormatChecklist(p.Reviewers))

	if len(p.Concerns) == 0 {
		b.WriteString("\nNo concerns currently listed.\n")
	} else {
		b.WriteString("\nConcerns:\n\n")
		for _, c := range p.Concerns {
			if c.ResolvedComment != nil {
				fmt.Fprintf(&b, "* ~~%s~~ resolved by %s\n", c.Name, issue.CommentURL(*c.ResolvedComment))
			} else {
				fmt.Fprintf(&b, "* %s (%s)\n", c.Name, issue.CommentURL(c.InitiatingComment))
			}
		}
	}

	b.WriteString("\nOnce a majority of reviewers approve (and at most 2 approvals are outstanding), ")
	b.WriteString("this will enter its final comment period. ")
	b.WriteString("If you spot a major issue that hasn't been raised at any point in this process, please speak up!\n\n")
	b.WriteString(docsLink)
	return b.String()
}

func renderWeekPassed(issue Issue, w WeekPassed) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The final comment period, with a disposition to **%s**, as per the [review above](%s), is now **complete**.",
		w.Disposition, issue.CommentURL(w.StatusCommentID))

	if w.AutoAction {
		switch w.Disposition {
		case fcp.Close:
			b.WriteString("\n\nBy the power vested in me by the tagged teams, this is now **closed**.")
		case fcp.Postpone:
			b.WriteString("\n\nBy the power vested in me by the tagged teams, this is now **postponed** and closed.")
		}
	}

	writeLabelNote(&b, w.AddedLabel, w.Author, fcp.LabelFinished)
	return b.String()
}

func renderPoll(p Poll) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Team member @%s has asked ", p.Initiator)
	if len(p.Teams) == 0 {
		b.WriteString("the tagged teams")
	} else {
		teams := append([]string(nil), p.Teams...)
		sort.Strings(teams)
		b.WriteString("teams: ")
		b.WriteString(strings.Join(teams, ", "))
	}
	b.WriteString(", for consensus on:\n\n")
	for _, line := range strings.Split(p.Question, "\n") {
		b.WriteString("> ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(FormatChecklist(p.Reviewers))
	if p.Closed {
		b.WriteString("\nThis poll is closed.\n")
	}
	return b.String()
}

func writeLabelNote(b *strings.Builder, added bool, author string, label fcp.Label) {
	if added {
		return
	}
	fmt.Fprintf(b, "\n\npsst @%s, I wasn't able to add the `%s` label, please do so.", author, label)
}
