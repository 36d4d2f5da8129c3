package prompts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerrigan/swarm/internal/models"
)

func TestLoadFromPromptsDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "prompts"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompts", "implementation-swe.md"), []byte("# SWE"), 0644))

	assert.Equal(t, "# SWE", Load("implementation-swe.md", dir))
}

func TestLoadFallsBackToGithubAgents(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".github", "agents"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".github", "agents", "triage-analysis.md"), []byte("# Triage"), 0644))

	assert.Equal(t, "# Triage", Load("triage-analysis.md", dir))
}

func TestLoadMissingFileReturnsStub(t *testing.T) {
	got := Load("absent.md", t.TempDir())
	assert.Contains(t, got, "absent.md")
	assert.Contains(t, got, "Prompt file not found")
}

func TestBuildSystemMessage(t *testing.T) {
	got := BuildSystemMessage("swe", "Implement the feature.", "")
	assert.Contains(t, got, `<swarm_agent role="swe">`)
	assert.Contains(t, got, "Implement the feature.")
	assert.NotContains(t, got, "<constitution>")

	got = BuildSystemMessage("swe", "Implement.", "Be careful.")
	assert.Contains(t, got, "<constitution>\nBe careful.\n</constitution>")
}

func TestBuildAppendsIssueAndArtifacts(t *testing.T) {
	got := Build(models.AgentContext{
		Issue:  models.Issue{Number: 42, Title: "Add caching", Body: "We need a cache."},
		Role:   "swe",
		Prompt: "You are the swe agent.",
		Artifacts: models.Artifacts{
			Spec: "spec text",
			Plan: "plan text",
		},
	})

	assert.Contains(t, got, "You are the swe agent.")
	assert.Contains(t, got, "## Issue Context")
	assert.Contains(t, got, "Issue #42: Add caching")
	assert.Contains(t, got, "We need a cache.")
	assert.Contains(t, got, "## Specification\nspec text")
	assert.Contains(t, got, "## Implementation Plan\nplan text")
	assert.NotContains(t, got, "## Architecture")
}
