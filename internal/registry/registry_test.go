package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerrigan/swarm/internal/models"
)

func newSession(id string, issue int) *models.Session {
	now := time.Now().UTC()
	return &models.Session{
		ID:          id,
		IssueNumber: issue,
		State:       models.SessionStateCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestRegisterAndGet(t *testing.T) {
	r := New("", nil)
	require.NoError(t, r.Register(newSession("s1", 1)))

	got, ok := r.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "s1", got.ID)
	assert.Equal(t, models.SessionStateCreated, got.State)
}

func TestRegisterDuplicateID(t *testing.T) {
	r := New("", nil)
	require.NoError(t, r.Register(newSession("s1", 1)))
	assert.ErrorIs(t, r.Register(newSession("s1", 2)), ErrDuplicateSession)
}

func TestGetReturnsCopy(t *testing.T) {
	r := New("", nil)
	require.NoError(t, r.Register(newSession("s1", 1)))

	got, _ := r.Get("s1")
	got.State = models.SessionStateFailed

	again, _ := r.Get("s1")
	assert.Equal(t, models.SessionStateCreated, again.State)
}

func TestUpdateStateStampsCompletedAt(t *testing.T) {
	r := New("", nil)
	require.NoError(t, r.Register(newSession("s1", 1)))

	r.UpdateState("s1", models.SessionStateRunning, "")
	got, _ := r.Get("s1")
	assert.Nil(t, got.CompletedAt)

	r.UpdateState("s1", models.SessionStateCompleted, "")
	got, _ = r.Get("s1")
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, models.SessionStateCompleted, got.State)
}

func TestTerminalStateIsImmutable(t *testing.T) {
	r := New("", nil)
	require.NoError(t, r.Register(newSession("s1", 1)))

	r.UpdateState("s1", models.SessionStateFailed, "boom")
	r.UpdateState("s1", models.SessionStateCompleted, "")
	r.UpdateState("s1", models.SessionStateRunning, "")

	got, _ := r.Get("s1")
	assert.Equal(t, models.SessionStateFailed, got.State)
	assert.Equal(t, "boom", got.Error)
}

func TestUpdateStateUnknownSessionIgnored(t *testing.T) {
	r := New("", nil)
	// Must not panic.
	r.UpdateState("nope", models.SessionStateFailed, "late event")
	assert.Equal(t, 0, r.Len())
}

func TestSetResult(t *testing.T) {
	r := New("", nil)
	require.NoError(t, r.Register(newSession("s1", 42)))

	r.SetResult("s1", 7, "sdk-agent/swe/issue-42")
	got, _ := r.Get("s1")
	assert.Equal(t, 7, got.PRNumber)
	assert.Equal(t, "sdk-agent/swe/issue-42", got.Branch)
}

func TestGetByIssuePicksNewest(t *testing.T) {
	r := New("", nil)

	old := newSession("s-old", 5)
	old.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, r.Register(old))
	require.NoError(t, r.Register(newSession("s-new", 5)))

	got, ok := r.GetByIssue(5)
	require.True(t, ok)
	assert.Equal(t, "s-new", got.ID)

	_, ok = r.GetByIssue(99)
	assert.False(t, ok)
}

func TestActiveCountExcludesTerminal(t *testing.T) {
	r := New("", nil)
	require.NoError(t, r.Register(newSession("s1", 1)))
	require.NoError(t, r.Register(newSession("s2", 2)))
	require.NoError(t, r.Register(newSession("s3", 3)))

	r.UpdateState("s2", models.SessionStateCompleted, "")
	r.UpdateState("s3", models.SessionStateFailed, "x")

	assert.Equal(t, 1, r.ActiveCount())
	assert.Len(t, r.ListActive(), 1)
	assert.Equal(t, 3, r.Len())
}

func TestActiveByIssue(t *testing.T) {
	r := New("", nil)
	require.NoError(t, r.Register(newSession("s1", 1)))
	assert.True(t, r.ActiveByIssue(1))

	r.UpdateState("s1", models.SessionStateCompleted, "")
	assert.False(t, r.ActiveByIssue(1))
}

func TestSweepTerminal(t *testing.T) {
	r := New("", nil)
	require.NoError(t, r.Register(newSession("s1", 1)))
	require.NoError(t, r.Register(newSession("s2", 2)))
	r.UpdateState("s1", models.SessionStateCompleted, "")

	assert.Equal(t, []string{"s1"}, r.SweepTerminal())
	assert.Equal(t, 1, r.Len())

	_, ok := r.Get("s1")
	assert.False(t, ok)
	_, ok = r.Get("s2")
	assert.True(t, ok)
}

func TestListNewestFirst(t *testing.T) {
	r := New("", nil)

	old := newSession("s-old", 1)
	old.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, r.Register(old))
	require.NoError(t, r.Register(newSession("s-new", 2)))

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "s-new", list[0].ID)
	assert.Equal(t, "s-old", list[1].ID)
}

func TestSnapshotRoundTrip(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state", "sessions.json")

	r := New(statePath, nil)
	require.NoError(t, r.Register(newSession("s1", 42)))
	r.UpdateState("s1", models.SessionStateRunning, "")
	r.SetResult("s1", 7, "sdk-agent/swe/issue-42")

	// A fresh registry replays the snapshot.
	r2 := New(statePath, nil)
	got, ok := r2.Get("s1")
	require.True(t, ok)
	assert.Equal(t, 42, got.IssueNumber)
	assert.Equal(t, models.SessionStateRunning, got.State)
	assert.Equal(t, 7, got.PRNumber)
}

func TestLoadMissingSnapshotStartsEmpty(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "absent.json"), nil)
	assert.Equal(t, 0, r.Len())
}

func TestLoadCorruptSnapshotStartsEmpty(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "sessions.json")
	require.NoError(t, os.WriteFile(statePath, []byte("{not json"), 0644))

	r := New(statePath, nil)
	assert.Equal(t, 0, r.Len())
}
