// Package dispatch admits work under the concurrency ceiling, creates
// sessions in the registry, and hands each session's event stream to the
// router. Dispatch is non-blocking: the call returns as soon as the remote
// send has been initiated.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kerrigan/swarm/internal/completion"
	"github.com/kerrigan/swarm/internal/models"
	"github.com/kerrigan/swarm/internal/prompts"
	"github.com/kerrigan/swarm/internal/provider"
	"github.com/kerrigan/swarm/internal/registry"
)

// Logger is the subset of output.UI the dispatcher logs through.
type Logger interface {
	Info(format string, a ...any)
	Warning(format string, a ...any)
	Error(format string, a ...any)
}

// Config tunes admission and session supervision.
type Config struct {
	MaxConcurrentSessions int
	SessionTimeout        time.Duration
	Model                 string
}

// Controller admits and dispatches work items. The remote client is a shared,
// lazily started resource; it is started on the first admitted dispatch and
// reused for the life of the process.
type Controller struct {
	cfg      Config
	reg      *registry.Registry
	client   provider.Client
	pipeline *completion.Pipeline
	router   *Router
	log      Logger

	// admitMu makes the capacity check and registry insert atomic with
	// respect to concurrent dispatches competing for the same slot.
	admitMu sync.Mutex

	startMu sync.Mutex
	started bool

	// cancels holds one cancel func per in-flight session. Cancelling ends
	// the provider stream so the consumer goroutine can drain and exit.
	cancelMu sync.Mutex
	cancels  map[string]context.CancelFunc

	wg sync.WaitGroup
}

// New creates a controller. The provider client is not started until the
// first admitted dispatch.
func New(cfg Config, reg *registry.Registry, client provider.Client, pipeline *completion.Pipeline, log Logger) *Controller {
	if cfg.MaxConcurrentSessions <= 0 {
		cfg.MaxConcurrentSessions = 10
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 5 * time.Minute
	}
	return &Controller{
		cfg:      cfg,
		reg:      reg,
		client:   client,
		pipeline: pipeline,
		router:   NewRouter(reg, pipeline, log),
		log:      log,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// newSessionID generates a unique session identifier for an issue. The ULID
// suffix keeps IDs unique even for rapid re-dispatch of the same issue.
func newSessionID(issueNumber int) string {
	return fmt.Sprintf("session-%d-%s", issueNumber, ulid.Make().String())
}

// Dispatch admits a single work item and initiates the remote send without
// waiting for the reply. Setup failures are returned as unadmitted results,
// never as errors.
func (c *Controller) Dispatch(ctx context.Context, ac models.AgentContext) models.DispatchResult {
	issue := ac.Issue.Number
	rejected := func(reason string) models.DispatchResult {
		return models.DispatchResult{IssueNumber: issue, Dispatched: false, Error: reason}
	}

	// Admission: capacity check and registry insert under one lock.
	c.admitMu.Lock()
	if c.reg.ActiveByIssue(issue) {
		c.admitMu.Unlock()
		return rejected(fmt.Sprintf("issue #%d already has an active session", issue))
	}
	if c.reg.ActiveCount() >= c.cfg.MaxConcurrentSessions {
		c.admitMu.Unlock()
		return rejected(fmt.Sprintf("Max concurrent sessions (%d) reached", c.cfg.MaxConcurrentSessions))
	}

	now := time.Now().UTC()
	sess := &models.Session{
		ID:          newSessionID(issue),
		IssueNumber: issue,
		Context:     ac,
		State:       models.SessionStateCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := c.reg.Register(sess); err != nil {
		c.admitMu.Unlock()
		return rejected(fmt.Sprintf("register session: %v", err))
	}
	c.admitMu.Unlock()

	if err := c.ensureStarted(ctx); err != nil {
		c.reg.UpdateState(sess.ID, models.SessionStateFailed, err.Error())
		return rejected(err.Error())
	}

	remote, err := c.client.CreateSession(ctx, provider.SessionOptions{
		Model:  c.cfg.Model,
		System: prompts.BuildSystemMessage(ac.Role, ac.Prompt, ac.Artifacts.Constitution),
	})
	if err != nil {
		c.reg.UpdateState(sess.ID, models.SessionStateFailed, err.Error())
		return rejected(fmt.Sprintf("create remote session: %v", err))
	}

	// The session context outlives the dispatch call. It is cancelled when
	// the session is abandoned (watchdog timeout, send failure) so the
	// provider stream ends and the event channel closes.
	sctx, cancel := context.WithCancel(context.Background())
	c.cancelMu.Lock()
	c.cancels[sess.ID] = cancel
	c.cancelMu.Unlock()

	// Listener first, then send: events may arrive immediately.
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.cancelSession(sess.ID)
		c.router.Consume(sess.ID, remote.Events())
	}()

	if err := remote.Send(sctx, prompts.Build(ac)); err != nil {
		c.reg.UpdateState(sess.ID, models.SessionStateFailed, err.Error())
		c.cancelSession(sess.ID)
		return rejected(fmt.Sprintf("send prompt: %v", err))
	}

	c.reg.UpdateState(sess.ID, models.SessionStateDispatched, "")
	c.watch(sess.ID)

	c.log.Info("dispatched issue #%d as %s", issue, sess.ID)
	return models.DispatchResult{SessionID: sess.ID, IssueNumber: issue, Dispatched: true}
}

// DispatchBatch dispatches all work items concurrently and partitions the
// results by the admitted flag.
func (c *Controller) DispatchBatch(ctx context.Context, contexts []models.AgentContext) models.BatchDispatchResult {
	result := models.BatchDispatchResult{
		Total:      len(contexts),
		Successful: []models.DispatchResult{},
		Failed:     []models.DispatchResult{},
	}
	if len(contexts) == 0 {
		return result
	}

	results := make([]models.DispatchResult, len(contexts))
	var wg sync.WaitGroup
	for i, ac := range contexts {
		wg.Add(1)
		go func(i int, ac models.AgentContext) {
			defer wg.Done()
			results[i] = c.Dispatch(ctx, ac)
		}(i, ac)
	}
	wg.Wait()

	for _, r := range results {
		if r.Dispatched {
			result.Successful = append(result.Successful, r)
		} else {
			result.Failed = append(result.Failed, r)
		}
	}
	return result
}

// ensureStarted lazily starts the shared provider client. Idempotent.
func (c *Controller) ensureStarted(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.started {
		return nil
	}
	if err := c.client.Start(ctx); err != nil {
		return fmt.Errorf("start agent client: %w", err)
	}
	c.started = true
	return nil
}

// watch arms the per-session deadline. If no terminal event has arrived by
// then, the session is forced into FAILED via the failure path. Firing after
// a terminal transition is absorbed by the pipeline's once-guard. The session
// context is cancelled either way so a hung stream cannot strand its
// consumer goroutine.
func (c *Controller) watch(sessionID string) {
	timeout := c.cfg.SessionTimeout
	time.AfterFunc(timeout, func() {
		defer c.cancelSession(sessionID)
		sess, ok := c.reg.Get(sessionID)
		if !ok || sess.State.IsTerminal() {
			return
		}
		c.log.Warning("session %s timed out", sessionID)
		c.pipeline.HandleFailure(context.Background(), sessionID, fmt.Sprintf("session timed out after %s", timeout))
	})
}

// cancelSession cancels the session's provider context, if still tracked.
// Idempotent; safe for sessions that already finished.
func (c *Controller) cancelSession(sessionID string) {
	c.cancelMu.Lock()
	cancel := c.cancels[sessionID]
	delete(c.cancels, sessionID)
	c.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the session reaches a terminal state or ctx is done, and
// returns the final session record.
func (c *Controller) Wait(ctx context.Context, sessionID string) (*models.Session, error) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		sess, ok := c.reg.Get(sessionID)
		if !ok {
			return nil, fmt.Errorf("session not found: %s", sessionID)
		}
		if sess.State.IsTerminal() {
			return sess, nil
		}
		select {
		case <-ctx.Done():
			return sess, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep removes terminal sessions from the registry and releases their
// completion claims. Returns how many sessions were removed.
func (c *Controller) Sweep() int {
	removed := c.reg.SweepTerminal()
	c.pipeline.Forget(removed)
	return len(removed)
}

// Stop shuts the controller down: refuses while sessions are active, then
// sweeps terminal sessions and stops the provider client. Tolerates a client
// that was never started.
func (c *Controller) Stop() error {
	if n := c.reg.ActiveCount(); n > 0 {
		return fmt.Errorf("cannot stop: %d sessions still active", n)
	}
	c.wg.Wait()

	if n := c.Sweep(); n > 0 {
		c.log.Info("cleaned up %d completed sessions", n)
	}

	c.startMu.Lock()
	defer c.startMu.Unlock()
	if err := c.client.Stop(); err != nil {
		return fmt.Errorf("stop agent client: %w", err)
	}
	c.started = false
	return nil
}
