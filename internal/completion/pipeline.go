// Package completion drives the side effects that follow a session's
// terminal event: PR creation on success, failure reporting on error.
// Each session's terminal outcome fires exactly once.
package completion

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kerrigan/swarm/internal/githubapi"
	"github.com/kerrigan/swarm/internal/history"
	"github.com/kerrigan/swarm/internal/models"
	"github.com/kerrigan/swarm/internal/registry"
	"github.com/kerrigan/swarm/internal/roles"
)

// Logger is the subset of output.UI the pipeline logs through.
type Logger interface {
	Info(format string, a ...any)
	Success(format string, a ...any)
	Warning(format string, a ...any)
	Error(format string, a ...any)
}

// Config tunes the pipeline's side-effect behavior.
type Config struct {
	BranchPrefix  string
	RetryAttempts int
	RetryDelay    time.Duration
}

// Pipeline executes post-completion side effects. Success and failure are
// mutually exclusive per session: whichever path claims the session first
// wins, and later triggers (duplicate terminal events, watchdog firings)
// return immediately.
type Pipeline struct {
	reg      *registry.Registry
	mutator  githubapi.RepoMutator
	notifier githubapi.Notifier
	hist     history.Store
	log      Logger
	cfg      Config

	mu    sync.Mutex
	fired map[string]bool
}

// New creates a pipeline. hist may be nil to skip audit recording.
func New(reg *registry.Registry, mutator githubapi.RepoMutator, notifier githubapi.Notifier, hist history.Store, log Logger, cfg Config) *Pipeline {
	if cfg.BranchPrefix == "" {
		cfg.BranchPrefix = "sdk-agent"
	}
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	return &Pipeline{
		reg:      reg,
		mutator:  mutator,
		notifier: notifier,
		hist:     hist,
		log:      log,
		cfg:      cfg,
		fired:    make(map[string]bool),
	}
}

// claim marks a session's terminal outcome as taken. Returns false if some
// path already claimed it.
func (p *Pipeline) claim(sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fired[sessionID] {
		return false
	}
	p.fired[sessionID] = true
	return true
}

// Forget releases the claims of swept sessions so the map does not grow for
// the life of the process. Callers pass the IDs the registry just removed; a
// session no longer in the registry can have no further terminal triggers.
func (p *Pipeline) Forget(sessionIDs []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range sessionIDs {
		delete(p.fired, id)
	}
}

// HandleSuccess runs the success path for a session that reached IDLE:
// branch, commit of the agent output, pull request, and a success comment.
// Any error mid-pipeline diverts to the failure path.
func (p *Pipeline) HandleSuccess(ctx context.Context, sessionID, output string) {
	if !p.claim(sessionID) {
		return
	}

	sess, ok := p.reg.Get(sessionID)
	if !ok {
		p.log.Warning("session not found: %s", sessionID)
		return
	}

	pr, branch, err := p.publish(sess, output)
	if err != nil {
		p.failNow(ctx, sess, err.Error())
		return
	}

	p.reg.SetResult(sessionID, pr, branch)
	p.reg.UpdateState(sessionID, models.SessionStateCompleted, "")
	p.record(ctx, sessionID)

	repo := sess.Context.Repository
	if err := p.notifier.PostComment(repo.Owner, repo.Name, sess.IssueNumber, SuccessBody(pr, branch)); err != nil {
		p.log.Warning("post success comment on #%d: %v", sess.IssueNumber, err)
	}
	p.log.Success("PR #%d created for issue #%d", pr, sess.IssueNumber)
}

// HandleFailure runs the failure path for error events, handler panics, and
// watchdog timeouts.
func (p *Pipeline) HandleFailure(ctx context.Context, sessionID, errMsg string) {
	if !p.claim(sessionID) {
		return
	}

	sess, ok := p.reg.Get(sessionID)
	if !ok {
		p.log.Warning("session not found: %s", sessionID)
		return
	}
	p.failNow(ctx, sess, errMsg)
}

// failNow transitions to FAILED and posts the failure comment. Used both by
// HandleFailure and by success-path errors, after the claim is already held.
// Never returns an error: a failing notification is logged, not re-thrown.
func (p *Pipeline) failNow(ctx context.Context, sess *models.Session, errMsg string) {
	p.reg.UpdateState(sess.ID, models.SessionStateFailed, errMsg)
	p.record(ctx, sess.ID)

	repo := sess.Context.Repository
	logs := []string{
		fmt.Sprintf("Session: %s", sess.ID),
		fmt.Sprintf("Error: %s", errMsg),
	}
	if err := p.notifier.PostComment(repo.Owner, repo.Name, sess.IssueNumber, FailureBody(errMsg, logs)); err != nil {
		p.log.Warning("post failure comment on #%d: %v", sess.IssueNumber, err)
	}
	p.log.Error("session %s failed: %s", sess.ID, errMsg)
}

// publish materializes the agent output: branch from the default tip, a
// single file commit, and a pull request linked to the issue.
func (p *Pipeline) publish(sess *models.Session, output string) (prNumber int, branch string, err error) {
	c := sess.Context
	repo := c.Repository
	branch = BranchName(p.cfg.BranchPrefix, sess.IssueNumber, c.Role)

	base, err := p.mutator.DefaultBranch(repo.Owner, repo.Name)
	if err != nil {
		return 0, "", fmt.Errorf("resolve default branch: %w", err)
	}

	err = githubapi.WithRetry(p.cfg.RetryAttempts, p.cfg.RetryDelay, func() error {
		return p.mutator.CreateBranch(repo.Owner, repo.Name, branch, base)
	})
	if err != nil {
		return 0, "", fmt.Errorf("create branch: %w", err)
	}

	now := time.Now().UTC()
	stamp := strings.NewReplacer(":", "-", ".", "-").Replace(now.Format(time.RFC3339))
	path := fmt.Sprintf("docs/research/issue-%d-%s-%s.md", sess.IssueNumber, c.Role, stamp)
	content := fmt.Sprintf("# Agent Response: Issue #%d\n\n**Role**: %s\n**Generated**: %s\n**Session**: %s\n\n---\n\n%s",
		sess.IssueNumber, c.Role, now.Format(time.RFC3339), sess.ID, output)
	message := fmt.Sprintf("docs: add %s agent research for issue #%d", c.Role, sess.IssueNumber)

	err = githubapi.WithRetry(p.cfg.RetryAttempts, p.cfg.RetryDelay, func() error {
		return p.mutator.CommitFile(repo.Owner, repo.Name, branch, path, content, message)
	})
	if err != nil {
		return 0, "", fmt.Errorf("commit agent output: %w", err)
	}

	title := fmt.Sprintf("[%s] %s", c.Role, c.Issue.Title)
	body := PRBody(sess.IssueNumber, c.Role, []string{
		"Changes implemented",
		"Agent executed via async swarm dispatcher",
	})

	prNumber, err = p.mutator.CreatePullRequest(repo.Owner, repo.Name, branch, base, title, body, roles.RoleLabels(c.Issue.Labels))
	if err != nil {
		return 0, "", fmt.Errorf("create pull request: %w", err)
	}
	return prNumber, branch, nil
}

// record archives the session's terminal state. Best effort.
func (p *Pipeline) record(ctx context.Context, sessionID string) {
	if p.hist == nil {
		return
	}
	sess, ok := p.reg.Get(sessionID)
	if !ok {
		return
	}
	if err := p.hist.RecordSession(ctx, sess); err != nil {
		p.log.Warning("record session history: %v", err)
	}
}
