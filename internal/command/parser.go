package command

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/cexll/fcpbot/internal/fcp"
)

// TeamResolver maps a team reference (short label, `T-` label or `@org/team`
// mention) to the team's label.
type TeamResolver interface {
	ResolveTeam(candidate string) (string, bool)
}

type kind int

const (
	kindMerge kind = iota
	kindClose
	kindPostpone
	kindCancel
	kindReviewed
	kindConcern
	kindResolve
	kindPoll
)

// synonyms maps every accepted inflection of a subcommand to its kind.
var synonyms = buildSynonyms(map[kind][]string{
	kindMerge:    {"merge", "merged", "merging", "merges"},
	kindClose:    {"close", "closed", "closing", "closes"},
	kindPostpone: {"postpone", "postponed", "postponing", "postpones"},
	kindCancel:   {"cancel", "canceled", "canceling", "cancels"},
	kindReviewed: {"reviewed", "review", "reviewing", "reviews"},
	kindConcern:  {"concern", "concerned", "concerning", "concerns"},
	kindResolve:  {"resolve", "resolved", "resolving", "resolves"},
	kindPoll: {
		"ask", "asked", "asking", "asks",
		"poll", "polled", "polling", "polls",
		"query", "queried", "querying", "queries",
		"inquire", "inquired", "inquiring", "inquires",
		"quiz", "quizzed", "quizzing", "quizzes",
		"survey", "surveyed", "surveying", "surveys",
	},
})

func buildSynonyms(groups map[kind][]string) map[string]kind {
	m := make(map[string]kind)
	for k, words := range groups {
		for _, w := range words {
			m[w] = k
		}
	}
	return m
}

// Parser extracts commands addressed to a bot mention.
type Parser struct {
	mention string
	teams   TeamResolver
}

// NewParser creates a parser for lines starting with mention (e.g. "@rfcbot").
// teams may be nil, in which case polls never match a team.
func NewParser(mention string, teams TeamResolver) *Parser {
	return &Parser{mention: mention, teams: teams}
}

// Parse returns one command per well-formed invocation line, in document order.
// Lines that look like an implicit invocation but match no subcommand are skipped.
// Malformed explicit invocations are reported through the joined error while the
// remaining lines are still parsed.
func (p *Parser) Parse(body string) ([]Command, error) {
	var (
		cmds []Command
		errs []error
	)
	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)
		if !p.addressed(line) {
			continue
		}
		cmd, err := p.parseLine(line)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return cmds, errors.Join(errs...)
}

// addressed reports whether line starts with the mention as a whole word.
func (p *Parser) addressed(line string) bool {
	if p.mention == "" || !strings.HasPrefix(line, p.mention) {
		return false
	}
	rest := line[len(p.mention):]
	if rest == "" {
		return true
	}
	r := rune(rest[0])
	return r == ':' || unicode.IsSpace(r)
}

func (p *Parser) parseLine(line string) (Command, error) {
	rest := strings.TrimSpace(strings.TrimPrefix(line, p.mention))
	rest = strings.TrimSpace(strings.TrimPrefix(rest, ":"))

	invocation, rest := nextToken(rest)
	switch invocation {
	case "":
		return nil, nil
	case "fcp", "pr":
		sub, rest := nextToken(rest)
		if sub == "" {
			return nil, &ParseError{Line: line, Reason: "missing subcommand after " + invocation}
		}
		cmd, err := p.subcommand(sub, rest)
		if err != nil {
			return nil, &ParseError{Line: line, Reason: err.Error()}
		}
		if cmd == nil {
			return nil, &ParseError{Line: line, Reason: fmt.Sprintf("unrecognized subcommand %q", sub)}
		}
		return cmd, nil
	case "f?":
		user, _ := nextToken(rest)
		login := strings.TrimPrefix(user, "@")
		if !strings.HasPrefix(user, "@") || login == "" {
			return nil, &ParseError{Line: line, Reason: "no user specified"}
		}
		return FeedbackRequest{Username: login}, nil
	default:
		// Implicit invocation: anything that does not parse is ordinary prose.
		cmd, err := p.subcommand(invocation, rest)
		if err != nil {
			return nil, nil
		}
		return cmd, nil
	}
}

// subcommand resolves sub against the synonym sets. rest is the remainder of the
// line after sub. A nil command with a nil error means sub is not a subcommand.
func (p *Parser) subcommand(sub, rest string) (Command, error) {
	k, ok := synonyms[sub]
	if !ok {
		return nil, nil
	}

	switch k {
	case kindMerge:
		return Propose{Disposition: fcp.Merge}, nil
	case kindClose:
		return Propose{Disposition: fcp.Close}, nil
	case kindPostpone:
		return Propose{Disposition: fcp.Postpone}, nil
	case kindCancel:
		return Cancel{}, nil
	case kindReviewed:
		return Reviewed{}, nil
	case kindConcern:
		name := strings.TrimSpace(rest)
		if name == "" {
			return nil, errors.New("missing concern name")
		}
		return NewConcern{Name: name}, nil
	case kindResolve:
		name := strings.TrimSpace(rest)
		if name == "" {
			return nil, errors.New("missing concern name")
		}
		return ResolveConcern{Name: name}, nil
	default:
		return p.poll(rest)
	}
}

// poll consumes leading team references; whatever follows is the question.
func (p *Parser) poll(rest string) (Command, error) {
	seen := make(map[string]struct{})
	for p.teams != nil {
		candidate, after := nextToken(rest)
		if candidate == "" {
			break
		}
		team, ok := p.teams.ResolveTeam(candidate)
		if !ok {
			break
		}
		seen[team] = struct{}{}
		rest = after
	}

	question := strings.TrimSpace(rest)
	if question == "" {
		return nil, errors.New("missing question")
	}

	teams := make([]string, 0, len(seen))
	for team := range seen {
		teams = append(teams, team)
	}
	sort.Strings(teams)
	return AskQuestion{Teams: teams, Question: question}, nil
}

// nextToken splits off the first whitespace-separated token of s.
func nextToken(s string) (string, string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	if s == "" {
		return "", ""
	}
	end := strings.IndexFunc(s, unicode.IsSpace)
	if end < 0 {
		return s, ""
	}
	return s[:end], s[end:]
}
