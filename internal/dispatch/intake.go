package dispatch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kerrigan/swarm/internal/githubapi"
	"github.com/kerrigan/swarm/internal/models"
	"github.com/kerrigan/swarm/internal/prompts"
	"github.com/kerrigan/swarm/internal/roles"
)

// GateClosedError is returned by Prepare when an issue carries no autonomy
// gate label.
type GateClosedError struct {
	IssueNumber int
	Reason      string
}

func (e *GateClosedError) Error() string {
	return fmt.Sprintf("issue #%d not eligible: %s", e.IssueNumber, e.Reason)
}

// Intake turns an issue number into a ready-to-dispatch AgentContext: it
// fetches the issue, checks the autonomy gate, determines the role, and loads
// the role prompt and repository artifacts.
type Intake struct {
	Issues     githubapi.IssueReader
	Roles      *roles.Table
	Owner      string
	Repo       string
	PromptsDir string
}

// Prepare builds the AgentContext for one issue. roleOverride, when non-empty,
// bypasses label-based role determination. A closed autonomy gate is reported
// as *GateClosedError.
func (in *Intake) Prepare(issueNumber int, roleOverride string) (models.AgentContext, error) {
	issue, err := in.Issues.GetIssue(in.Owner, in.Repo, issueNumber)
	if err != nil {
		return models.AgentContext{}, fmt.Errorf("fetch issue #%d: %w", issueNumber, err)
	}

	if ok, reason := roles.ShouldProcess(issue.Labels); !ok {
		return models.AgentContext{}, &GateClosedError{IssueNumber: issueNumber, Reason: reason}
	}

	role := in.Roles.Determine(issue.Labels)
	if roleOverride != "" {
		r, ok := in.Roles.ByName(roleOverride)
		if !ok {
			return models.AgentContext{}, fmt.Errorf("unknown role: %s", roleOverride)
		}
		role = r
	}

	return models.AgentContext{
		Issue: models.Issue{
			Number: issue.Number,
			Title:  issue.Title,
			Body:   issue.Body,
			Labels: issue.Labels,
		},
		Repository: models.Repository{Owner: in.Owner, Name: in.Repo},
		Role:       role.Name,
		Artifacts:  in.loadArtifacts(),
		Prompt:     prompts.Load(role.PromptFile, in.PromptsDir),
	}, nil
}

// loadArtifacts reads the optional repository documents injected into every
// prompt. Missing files are simply skipped.
func (in *Intake) loadArtifacts() models.Artifacts {
	read := func(name string) string {
		data, err := os.ReadFile(filepath.Join(in.PromptsDir, name))
		if err != nil {
			return ""
		}
		return string(data)
	}
	return models.Artifacts{
		Constitution: read("constitution.md"),
		Spec:         read("spec.md"),
		Architecture: read("architecture.md"),
		Plan:         read("plan.md"),
	}
}
