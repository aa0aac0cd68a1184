package comment

import (
	"sort"
	"strings"
)

// FormatChecklist renders one "* [x] @login" line per review, sorted by login.
func FormatChecklist(reviews []Review) string {
	sorted := append([]Review(nil), reviews...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Login < sorted[j].Login })

	var b strings.Builder
	for _, r := range sorted {
		if r.Reviewed {
			b.WriteString("* [x] @")
		} else {
			b.WriteString("* [ ] @")
		}
		b.WriteString(r.Login)
		b.WriteByte('\n')
	}
	return b.String()
}

// ParseChecklist reads reviewer checkboxes back out of a tracking comment body.
// The result maps login to checked state. Only the first run of consecutive
// checklist lines is read, so checklist-looking text further down (a concern
// name, say) never counts as a reviewer.
func ParseChecklist(body string) map[string]bool {
	out := make(map[string]bool)
	inBlock := false
	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)
		var checked bool
		switch {
		case strings.HasPrefix(line, "* [x] @"), strings.HasPrefix(line, "* [X] @"):
			checked = true
		case strings.HasPrefix(line, "* [ ] @"):
		default:
			if inBlock {
				return out
			}
			continue
		}
		inBlock = true
		login := strings.TrimSpace(line[len("* [ ] @"):])
		if i := strings.IndexFunc(login, func(r rune) bool { return r == ' ' || r == '\t' }); i >= 0 {
			login = login[:i]
		}
		if login == "" {
			continue
		}
		out[login] = checked
	}
	return out
}
