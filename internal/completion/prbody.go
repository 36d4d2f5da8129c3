package completion

import (
	"fmt"
	"regexp"
	"strings"
)

// maxChecklistItemLen bounds checklist items in the PR body.
const maxChecklistItemLen = 100

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// BranchName derives the deterministic branch for a session:
// <prefix>/<role>/issue-<number>.
func BranchName(prefix string, issueNumber int, role string) string {
	return fmt.Sprintf("%s/%s/issue-%d", prefix, role, issueNumber)
}

// SanitizeChecklistItem strips markdown control characters, replaces raw URLs
// with a placeholder, and truncates the item. This keeps injected agent
// output from corrupting the rendered PR body or smuggling active links.
func SanitizeChecklistItem(item string) string {
	s := strings.Map(func(r rune) rune {
		switch r {
		case '`', '*', '_', '[', ']', '(', ')':
			return -1
		}
		return r
	}, item)
	s = urlPattern.ReplaceAllString(s, "[URL]")
	// Truncate by rune so a multi-byte character spanning the limit cannot
	// leave invalid UTF-8 in the rendered body.
	if runes := []rune(s); len(runes) > maxChecklistItemLen {
		s = string(runes[:maxChecklistItemLen])
	}
	return s
}

// PRBody renders the pull request body: summary, sanitized checklist, testing
// section, and the "Closes #N" trailer that links the PR to its issue.
func PRBody(issueNumber int, role string, checklist []string) string {
	var sb strings.Builder

	sb.WriteString("## Summary\n\n")
	fmt.Fprintf(&sb, "This PR addresses issue #%d.\n\n", issueNumber)
	fmt.Fprintf(&sb, "**Agent Role**: %s\n\n", role)
	sb.WriteString("## Changes\n\n")

	if len(checklist) > 0 {
		for _, item := range checklist {
			fmt.Fprintf(&sb, "- [ ] %s\n", SanitizeChecklistItem(item))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Testing\n\n")
	sb.WriteString("- [ ] CI passes\n")
	sb.WriteString("- [ ] Manual testing completed\n")
	sb.WriteString("- [ ] Documentation updated if needed\n\n")

	sb.WriteString("---\n\n")
	fmt.Fprintf(&sb, "Closes #%d\n", issueNumber)

	return sb.String()
}
