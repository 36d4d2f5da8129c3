package completion

import (
	"fmt"
	"strings"
	"time"
)

// maxLogLines bounds the log excerpt included in failure comments.
const maxLogLines = 10

// StartedBody is the comment posted when an agent begins working an issue.
func StartedBody(role string) string {
	var sb strings.Builder
	sb.WriteString("**Swarm Agent Started**\n\n")
	fmt.Fprintf(&sb, "The **%s** agent has been triggered and is now working on this issue.\n\n", role)
	fmt.Fprintf(&sb, "- **Started at**: %s\n", time.Now().UTC().Format(time.RFC3339))
	sb.WriteString("- **Status**: In Progress\n\n")
	sb.WriteString("I'll update this issue when the work is complete.")
	return sb.String()
}

// SuccessBody is the comment posted after a pull request has been opened.
func SuccessBody(prNumber int, branch string) string {
	var sb strings.Builder
	sb.WriteString("**Work Complete**\n\n")
	sb.WriteString("I've created a pull request with the proposed changes:\n\n")
	fmt.Fprintf(&sb, "- **Pull Request**: #%d\n", prNumber)
	fmt.Fprintf(&sb, "- **Branch**: `%s`\n", branch)
	fmt.Fprintf(&sb, "- **Completed at**: %s\n\n", time.Now().UTC().Format(time.RFC3339))
	sb.WriteString("Please review the PR and provide feedback!")
	return sb.String()
}

// FailureBody is the comment posted when a session fails. It includes the
// error, the last few log lines, and retry instructions.
func FailureBody(errMsg string, logs []string) string {
	var sb strings.Builder
	sb.WriteString("**Agent Failed**\n\n")
	sb.WriteString("The swarm agent encountered an error while processing this issue:\n\n")
	fmt.Fprintf(&sb, "```\n%s\n```\n\n", errMsg)
	fmt.Fprintf(&sb, "**Failed at**: %s\n", time.Now().UTC().Format(time.RFC3339))

	if len(logs) > 0 {
		if len(logs) > maxLogLines {
			logs = logs[len(logs)-maxLogLines:]
		}
		fmt.Fprintf(&sb, "\n**Recent logs**:\n\n```\n%s\n```\n", strings.Join(logs, "\n"))
	}

	sb.WriteString("\n---\n\n**Retry Instructions**:\n")
	sb.WriteString("1. Check the error message above\n")
	sb.WriteString("2. Fix any issues in the repository or configuration\n")
	sb.WriteString("3. Remove and re-add the `agent:go` label to retry\n")

	return sb.String()
}
