package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerrigan/swarm/internal/models"
	"github.com/kerrigan/swarm/internal/registry"
)

type nopLog struct{}

func (nopLog) Info(string, ...any)    {}
func (nopLog) Success(string, ...any) {}
func (nopLog) Warning(string, ...any) {}
func (nopLog) Error(string, ...any)   {}

// fakeRepo implements githubapi.RepoMutator and githubapi.Notifier in memory.
type fakeRepo struct {
	mu sync.Mutex

	branches []string
	commits  []string
	prTitles []string
	prBodies []string
	prLabels [][]string
	comments []string

	branchErr error
	prErr     error
	prCalls   int
}

func (f *fakeRepo) DefaultBranch(owner, repo string) (string, error) {
	return "main", nil
}

func (f *fakeRepo) CreateBranch(owner, repo, branch, from string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.branchErr != nil {
		return f.branchErr
	}
	f.branches = append(f.branches, branch)
	return nil
}

func (f *fakeRepo) CommitFile(owner, repo, branch, path, content, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, path)
	return nil
}

func (f *fakeRepo) CreatePullRequest(owner, repo, head, base, title, body string, labels []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prCalls++
	if f.prErr != nil {
		return 0, f.prErr
	}
	f.prTitles = append(f.prTitles, title)
	f.prBodies = append(f.prBodies, body)
	f.prLabels = append(f.prLabels, labels)
	return 100 + f.prCalls, nil
}

func (f *fakeRepo) PostComment(owner, repo string, issueNumber int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, fmt.Sprintf("#%d: %s", issueNumber, body))
	return nil
}

func newPipeline(t *testing.T, repo *fakeRepo) (*Pipeline, *registry.Registry) {
	t.Helper()
	reg := registry.New("", nil)
	p := New(reg, repo, repo, nil, nopLog{}, Config{
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	})
	return p, reg
}

func registerSession(t *testing.T, reg *registry.Registry, id string, issue int) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, reg.Register(&models.Session{
		ID:          id,
		IssueNumber: issue,
		Context: models.AgentContext{
			Issue: models.Issue{
				Number: issue,
				Title:  "Add rate limiting",
				Labels: []string{"agent:go", "role:swe"},
			},
			Repository: models.Repository{Owner: "kerrigan", Name: "widget"},
			Role:       "swe",
		},
		State:     models.SessionStateRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}))
}

func TestHandleSuccessPublishesAndCompletes(t *testing.T) {
	repo := &fakeRepo{}
	p, reg := newPipeline(t, repo)
	registerSession(t, reg, "s1", 42)

	p.HandleSuccess(context.Background(), "s1", "agent findings")

	sess, ok := reg.Get("s1")
	require.True(t, ok)
	assert.Equal(t, models.SessionStateCompleted, sess.State)
	assert.Equal(t, 101, sess.PRNumber)
	assert.Equal(t, "sdk-agent/swe/issue-42", sess.Branch)

	require.Len(t, repo.branches, 1)
	assert.Equal(t, "sdk-agent/swe/issue-42", repo.branches[0])
	require.Len(t, repo.commits, 1)
	assert.Contains(t, repo.commits[0], "docs/research/issue-42-swe-")

	require.Len(t, repo.prTitles, 1)
	assert.Equal(t, "[swe] Add rate limiting", repo.prTitles[0])
	assert.Contains(t, repo.prBodies[0], "Closes #42")
	assert.Equal(t, []string{"role:swe"}, repo.prLabels[0])

	// Success comment posted on the issue.
	require.Len(t, repo.comments, 1)
	assert.Contains(t, repo.comments[0], "#42:")
	assert.Contains(t, repo.comments[0], "#101")
}

func TestHandleSuccessFiresExactlyOnce(t *testing.T) {
	repo := &fakeRepo{}
	p, reg := newPipeline(t, repo)
	registerSession(t, reg, "s1", 42)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.HandleSuccess(context.Background(), "s1", "output")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, repo.prCalls)
	assert.Len(t, repo.branches, 1)
}

func TestFailureAfterSuccessIsAbsorbed(t *testing.T) {
	repo := &fakeRepo{}
	p, reg := newPipeline(t, repo)
	registerSession(t, reg, "s1", 42)

	p.HandleSuccess(context.Background(), "s1", "output")
	p.HandleFailure(context.Background(), "s1", "watchdog fired late")

	sess, _ := reg.Get("s1")
	assert.Equal(t, models.SessionStateCompleted, sess.State)
	assert.Empty(t, sess.Error)
	// Only the success comment, no failure comment.
	assert.Len(t, repo.comments, 1)
}

func TestHandleFailurePostsRetryInstructions(t *testing.T) {
	repo := &fakeRepo{}
	p, reg := newPipeline(t, repo)
	registerSession(t, reg, "s1", 42)

	p.HandleFailure(context.Background(), "s1", "model overloaded")

	sess, _ := reg.Get("s1")
	assert.Equal(t, models.SessionStateFailed, sess.State)
	assert.Equal(t, "model overloaded", sess.Error)

	require.Len(t, repo.comments, 1)
	assert.Contains(t, repo.comments[0], "model overloaded")
	assert.Contains(t, repo.comments[0], "Remove and re-add the `agent:go` label")
}

func TestSuccessPathDivertsToFailureOnPRError(t *testing.T) {
	repo := &fakeRepo{prErr: errors.New("422 validation failed")}
	p, reg := newPipeline(t, repo)
	registerSession(t, reg, "s1", 42)

	p.HandleSuccess(context.Background(), "s1", "output")

	sess, _ := reg.Get("s1")
	assert.Equal(t, models.SessionStateFailed, sess.State)
	assert.Contains(t, sess.Error, "create pull request")

	require.Len(t, repo.comments, 1)
	assert.Contains(t, repo.comments[0], "Agent Failed")
}

func TestBranchCreationIsRetried(t *testing.T) {
	repo := &fakeRepo{branchErr: errors.New("502 bad gateway")}
	p, reg := newPipeline(t, repo)
	registerSession(t, reg, "s1", 42)

	p.HandleSuccess(context.Background(), "s1", "output")

	sess, _ := reg.Get("s1")
	assert.Equal(t, models.SessionStateFailed, sess.State)
	assert.True(t, strings.Contains(sess.Error, "create branch"))
}

func TestForgetReleasesSweptClaims(t *testing.T) {
	repo := &fakeRepo{}
	p, reg := newPipeline(t, repo)
	registerSession(t, reg, "s1", 42)

	p.HandleSuccess(context.Background(), "s1", "output")
	swept := reg.SweepTerminal()
	require.Equal(t, []string{"s1"}, swept)

	p.Forget(swept)
	p.mu.Lock()
	claims := len(p.fired)
	p.mu.Unlock()
	assert.Equal(t, 0, claims)

	// A late trigger for the swept session is a no-op: the claim is open
	// again but the registry no longer knows the session.
	p.HandleFailure(context.Background(), "s1", "stale watchdog")
	assert.Len(t, repo.comments, 1)
}

func TestHandleSuccessUnknownSessionIsNoop(t *testing.T) {
	repo := &fakeRepo{}
	p, _ := newPipeline(t, repo)

	p.HandleSuccess(context.Background(), "ghost", "output")
	assert.Empty(t, repo.branches)
	assert.Empty(t, repo.comments)
}
