// Package fcp holds the vocabulary shared by the parser, the renderer and the
// evaluator of the final comment period workflow.
package fcp

import (
	"fmt"
	"time"
)

// WaitPeriod is how long an FCP runs before it is considered complete.
const WaitPeriod = 10 * 24 * time.Hour

// Disposition is the proposed outcome of an FCP proposal.
type Disposition string

const (
	Merge    Disposition = "merge"
	Close    Disposition = "close"
	Postpone Disposition = "postpone"
)

// String returns the stable lowercase representation used for storage and labels.
func (d Disposition) String() string { return string(d) }

// Label returns the disposition-specific issue label.
func (d Disposition) Label() Label {
	switch d {
	case Close:
		return LabelDispositionClose
	case Postpone:
		return LabelDispositionPostpone
	default:
		return LabelDispositionMerge
	}
}

// ParseDisposition is the inverse of Disposition.String.
func ParseDisposition(s string) (Disposition, error) {
	switch Disposition(s) {
	case Merge, Close, Postpone:
		return Disposition(s), nil
	}
	return "", fmt.Errorf("unknown disposition %q", s)
}

// Label is an issue label managed by the bot.
type Label string

const (
	LabelProposed            Label = "proposed-final-comment-period"
	LabelFCP                 Label = "final-comment-period"
	LabelFinished            Label = "finished-final-comment-period"
	LabelPostponed           Label = "postponed"
	LabelClosed              Label = "closed"
	LabelDispositionMerge    Label = "disposition-merge"
	LabelDispositionClose    Label = "disposition-close"
	LabelDispositionPostpone Label = "disposition-postpone"
)

func (l Label) String() string { return string(l) }
