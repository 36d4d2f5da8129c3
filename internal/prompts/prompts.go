// Package prompts loads agent role prompts from markdown files and assembles
// the final prompt sent to the remote agent.
package prompts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kerrigan/swarm/internal/models"
)

// Load reads a prompt file from <dir>/prompts/, falling back to
// <dir>/.github/agents/. A missing file returns a stub prompt rather than an
// error so a misconfigured role still produces a traceable dispatch.
func Load(promptFile, dir string) string {
	if dir == "" {
		dir = "."
	}

	for _, candidate := range []string{
		filepath.Join(dir, "prompts", promptFile),
		filepath.Join(dir, ".github", "agents", promptFile),
	} {
		if data, err := os.ReadFile(candidate); err == nil {
			return string(data)
		}
	}
	return fmt.Sprintf("# %s\n\nPrompt file not found.", promptFile)
}

// BuildSystemMessage wraps the role prompt in the agent envelope, with the
// constitution appended when present.
func BuildSystemMessage(role, promptContent, constitution string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<swarm_agent role=%q>\n", role)
	sb.WriteString(promptContent)
	if constitution != "" {
		sb.WriteString("\n\n<constitution>\n")
		sb.WriteString(constitution)
		sb.WriteString("\n</constitution>")
	}
	sb.WriteString("\n</swarm_agent>")
	return sb.String()
}

// Build assembles the user prompt from the agent context: the role prompt
// followed by the issue and any supplementary artifacts.
func Build(ctx models.AgentContext) string {
	var sb strings.Builder
	sb.WriteString(ctx.Prompt)

	sb.WriteString("\n\n## Issue Context\n")
	fmt.Fprintf(&sb, "Issue #%d: %s\n", ctx.Issue.Number, ctx.Issue.Title)
	sb.WriteString("\n" + ctx.Issue.Body + "\n")

	if ctx.Artifacts.Constitution != "" {
		sb.WriteString("\n## Constitution\n" + ctx.Artifacts.Constitution + "\n")
	}
	if ctx.Artifacts.Spec != "" {
		sb.WriteString("\n## Specification\n" + ctx.Artifacts.Spec + "\n")
	}
	if ctx.Artifacts.Architecture != "" {
		sb.WriteString("\n## Architecture\n" + ctx.Artifacts.Architecture + "\n")
	}
	if ctx.Artifacts.Plan != "" {
		sb.WriteString("\n## Implementation Plan\n" + ctx.Artifacts.Plan + "\n")
	}

	return sb.String()
}
