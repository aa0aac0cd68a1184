// Package teams loads the subteam roster and per-repository FCP behaviors.
package teams

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/cexll/fcpbot/internal/fcp"
)

// Team is one subteam whose label marks issues it is responsible for.
type Team struct {
	Label   string   `toml:"-"`
	Name    string   `toml:"name"`
	Ping    string   `toml:"ping"`
	Members []string `toml:"members"`
}

// Behavior holds the automatic disposition flags for one repository.
type Behavior struct {
	Close    bool `toml:"close"`
	Postpone bool `toml:"postpone"`
}

// Setup is the parsed setup file.
type Setup struct {
	teams     map[string]*Team
	behaviors map[string]Behavior
}

type setupFile struct {
	Teams        map[string]*Team    `toml:"teams"`
	FCPBehaviors map[string]Behavior `toml:"fcp_behaviors"`
}

// Load reads a setup file from disk.
func Load(path string) (*Setup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read setup file: %w", err)
	}
	return Parse(string(data))
}

// Parse decodes setup TOML:
//
//	[teams."T-lang"]
//	name = "Language team"
//	ping = "rust-lang/lang"
//	members = ["alice", "bob"]
//
//	[fcp_behaviors."rust-lang/rfcs"]
//	close = true
//	postpone = true
func Parse(data string) (*Setup, error) {
	var file setupFile
	if _, err := toml.Decode(data, &file); err != nil {
		return nil, fmt.Errorf("decode setup file: %w", err)
	}

	s := &Setup{
		teams:     make(map[string]*Team, len(file.Teams)),
		behaviors: make(map[string]Behavior, len(file.FCPBehaviors)),
	}
	for label, team := range file.Teams {
		if team == nil {
			continue
		}
		if len(team.Members) == 0 {
			return nil, fmt.Errorf("team %s has no members", label)
		}
		team.Label = label
		s.teams[label] = team
	}
	for repo, b := range file.FCPBehaviors {
		s.behaviors[repo] = b
	}
	return s, nil
}

// Teams returns all teams ordered by label.
func (s *Setup) Teams() []*Team {
	out := make([]*Team, 0, len(s.teams))
	for _, t := range s.teams {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// MembersForLabels returns the sorted, de-duplicated logins of every team whose
// label appears in labels.
func (s *Setup) MembersForLabels(labels []string) []string {
	return s.MembersOf(labels)
}

// MembersOf returns the sorted, de-duplicated logins of the named teams.
// Unknown team labels are ignored.
func (s *Setup) MembersOf(labels []string) []string {
	seen := make(map[string]struct{})
	for _, label := range labels {
		team, ok := s.teams[label]
		if !ok {
			continue
		}
		for _, m := range team.Members {
			seen[m] = struct{}{}
		}
	}
	members := make([]string, 0, len(seen))
	for m := range seen {
		members = append(members, m)
	}
	sort.Strings(members)
	return members
}

// ResolveTeam matches a short label ("lang"), a full label ("T-lang") or a
// team mention ("@rust-lang/lang"), case-insensitively.
func (s *Setup) ResolveTeam(candidate string) (string, bool) {
	want := strings.ToLower(strings.TrimPrefix(candidate, "T-"))
	ping := strings.ToLower(strings.TrimPrefix(candidate, "@"))
	if want == "" {
		return "", false
	}
	for _, team := range s.Teams() {
		if strings.ToLower(strings.TrimPrefix(team.Label, "T-")) == want {
			return team.Label, true
		}
		if team.Ping != "" && strings.ToLower(strings.TrimPrefix(team.Ping, "@")) == ping {
			return team.Label, true
		}
	}
	return "", false
}

// Behavior returns the FCP behavior configured for repo ("owner/name").
func (s *Setup) Behavior(repo string) Behavior {
	return s.behaviors[repo]
}

// AutoExecute reports whether the disposition may be carried out automatically
// once the FCP on repo completes. Merges are never automatic.
func (s *Setup) AutoExecute(repo string, d fcp.Disposition) bool {
	b := s.Behavior(repo)
	switch d {
	case fcp.Close:
		return b.Close
	case fcp.Postpone:
		return b.Postpone
	default:
		return false
	}
}
