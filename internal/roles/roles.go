// Package roles maps issue labels to agent roles and enforces the autonomy
// gate that decides whether an issue may be processed at all.
package roles

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Role describes one agent role: the label that selects it, the prompt file
// it runs with, and a human-readable description used in PR titles.
type Role struct {
	Name        string `yaml:"name"`
	Label       string `yaml:"label"`
	PromptFile  string `yaml:"prompt_file"`
	Description string `yaml:"description"`
}

// builtin is the default role table. A roles.yaml file replaces it entirely.
var builtin = []Role{
	{Name: "spec", Label: "role:spec", PromptFile: "kickoff-spec.md", Description: "Spec Agent - Define project goals and acceptance criteria"},
	{Name: "architect", Label: "role:architect", PromptFile: "architecture-design.md", Description: "Architect Agent - Design system architecture and create implementation plan"},
	{Name: "swe", Label: "role:swe", PromptFile: "implementation-swe.md", Description: "SWE Agent - Implement features with tests"},
	{Name: "deploy", Label: "role:deploy", PromptFile: "deployment-ops.md", Description: "Deploy Agent - Create operational runbooks"},
	{Name: "security", Label: "role:security", PromptFile: "security-review.md", Description: "Security Agent - Security review and hardening"},
	{Name: "triage", Label: "role:triage", PromptFile: "triage-analysis.md", Description: "Triage Agent - Analyze and categorize issues"},
}

// Table is a lookup table of agent roles.
type Table struct {
	roles []Role
}

// NewTable returns the built-in role table.
func NewTable() *Table {
	return &Table{roles: builtin}
}

// LoadTable reads a role table from a YAML file. An empty path returns the
// built-in table.
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return NewTable(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roles file: %w", err)
	}

	var roles []Role
	if err := yaml.Unmarshal(data, &roles); err != nil {
		return nil, fmt.Errorf("parse roles file: %w", err)
	}
	if len(roles) == 0 {
		return nil, fmt.Errorf("roles file %s defines no roles", path)
	}
	return &Table{roles: roles}, nil
}

// All returns the roles in table order.
func (t *Table) All() []Role {
	return slices.Clone(t.roles)
}

// Determine picks the role for an issue from its labels. The first role whose
// label is present wins; with no role label the swe role (or the first role,
// if no swe is defined) is the default.
func (t *Table) Determine(labels []string) Role {
	for _, r := range t.roles {
		if slices.Contains(labels, r.Label) {
			return r
		}
	}
	for _, r := range t.roles {
		if r.Name == "swe" {
			return r
		}
	}
	return t.roles[0]
}

// ByName looks a role up by name.
func (t *Table) ByName(name string) (Role, bool) {
	for _, r := range t.roles {
		if r.Name == name {
			return r, true
		}
	}
	return Role{}, false
}

// Autonomy gate labels.
const (
	LabelAgentGo          = "agent:go"
	LabelAgentSprint      = "agent:sprint"
	LabelAutonomyOverride = "autonomy:override"
)

// ShouldProcess reports whether an issue's labels open the autonomy gate,
// along with the reason for the decision.
func ShouldProcess(labels []string) (bool, string) {
	switch {
	case slices.Contains(labels, LabelAutonomyOverride):
		return true, LabelAutonomyOverride + " label present"
	case slices.Contains(labels, LabelAgentGo):
		return true, LabelAgentGo + " label present"
	case slices.Contains(labels, LabelAgentSprint):
		return true, LabelAgentSprint + " label present"
	}
	return false, "no autonomy gate label found (agent:go, agent:sprint, or autonomy:override)"
}

// RoleLabels filters labels down to the role:* labels, which carry over onto
// the pull request.
func RoleLabels(labels []string) []string {
	var out []string
	for _, l := range labels {
		if len(l) > 5 && l[:5] == "role:" {
			out = append(out, l)
		}
	}
	return out
}
