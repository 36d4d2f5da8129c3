package roles

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetermineByLabel(t *testing.T) {
	table := NewTable()

	r := table.Determine([]string{"agent:go", "role:security"})
	assert.Equal(t, "security", r.Name)

	r = table.Determine([]string{"role:architect", "role:deploy"})
	assert.Equal(t, "architect", r.Name, "first role in table order wins")
}

func TestDetermineDefaultsToSWE(t *testing.T) {
	table := NewTable()
	r := table.Determine([]string{"agent:go", "enhancement"})
	assert.Equal(t, "swe", r.Name)
}

func TestByName(t *testing.T) {
	table := NewTable()

	r, ok := table.ByName("triage")
	require.True(t, ok)
	assert.Equal(t, "role:triage", r.Label)

	_, ok = table.ByName("wizard")
	assert.False(t, ok)
}

func TestShouldProcess(t *testing.T) {
	ok, reason := ShouldProcess([]string{"agent:go"})
	assert.True(t, ok)
	assert.Contains(t, reason, "agent:go")

	ok, _ = ShouldProcess([]string{"agent:sprint"})
	assert.True(t, ok)

	ok, _ = ShouldProcess([]string{"autonomy:override"})
	assert.True(t, ok)

	ok, reason = ShouldProcess([]string{"bug", "role:swe"})
	assert.False(t, ok)
	assert.Contains(t, reason, "no autonomy gate label")

	ok, _ = ShouldProcess(nil)
	assert.False(t, ok)
}

func TestRoleLabels(t *testing.T) {
	got := RoleLabels([]string{"agent:go", "role:swe", "bug", "role:security"})
	assert.Equal(t, []string{"role:swe", "role:security"}, got)

	assert.Nil(t, RoleLabels([]string{"bug"}))
}

func TestLoadTableFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.yaml")
	yaml := `- name: reviewer
  label: "role:reviewer"
  prompt_file: review.md
  description: Code review agent
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	table, err := LoadTable(path)
	require.NoError(t, err)
	require.Len(t, table.All(), 1)
	assert.Equal(t, "reviewer", table.All()[0].Name)
	assert.Equal(t, "review.md", table.All()[0].PromptFile)

	// The only role is the fallback even without swe defined.
	assert.Equal(t, "reviewer", table.Determine(nil).Name)
}

func TestLoadTableEmptyPathUsesBuiltin(t *testing.T) {
	table, err := LoadTable("")
	require.NoError(t, err)
	assert.Len(t, table.All(), 6)
}

func TestLoadTableErrors(t *testing.T) {
	_, err := LoadTable(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0644))
	_, err = LoadTable(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defines no roles")
}
