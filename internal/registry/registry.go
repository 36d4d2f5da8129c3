// Package registry is the single source of truth for tracked agent sessions.
// It holds the canonical in-memory session map and optionally snapshots it to
// disk after every mutation so state survives process restarts.
package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/kerrigan/swarm/internal/models"
)

// ErrDuplicateSession is returned when registering an ID that already exists.
var ErrDuplicateSession = errors.New("session already registered")

// Logger is the subset of output.UI the registry logs through.
type Logger interface {
	Info(format string, a ...any)
	Warning(format string, a ...any)
}

// nopLogger discards all log output.
type nopLogger struct{}

func (nopLogger) Info(string, ...any)    {}
func (nopLogger) Warning(string, ...any) {}

// Registry tracks sessions keyed by ID. All methods are safe for concurrent
// use. Mutating methods persist a snapshot when a state path is configured.
type Registry struct {
	mu        sync.Mutex
	sessions  map[string]*models.Session
	statePath string
	log       Logger
}

// New creates a registry. If statePath is non-empty, a previous snapshot is
// replayed from it; a missing or corrupt snapshot is non-fatal and leaves the
// registry empty. A nil log discards output.
func New(statePath string, log Logger) *Registry {
	if log == nil {
		log = nopLogger{}
	}
	r := &Registry{
		sessions:  make(map[string]*models.Session),
		statePath: statePath,
		log:       log,
	}
	if statePath != "" {
		r.load()
	}
	return r
}

// Register inserts a new session. Fails with ErrDuplicateSession if the ID is
// already present.
func (r *Registry) Register(s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID]; ok {
		return ErrDuplicateSession
	}
	r.sessions[s.ID] = s.Clone()
	r.persistLocked()
	return nil
}

// UpdateState advances a session's state. An unknown ID is logged and ignored
// so late event delivery for swept sessions never crashes the router.
// Transitions into COMPLETED or FAILED are idempotent terminal stamps: once a
// session is terminal its state no longer changes.
func (r *Registry) UpdateState(id string, state models.SessionState, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		r.log.Warning("session not found: %s", id)
		return
	}
	if s.State.IsTerminal() {
		r.log.Info("session %s already %s, ignoring transition to %s", id, s.State, state)
		return
	}

	now := time.Now().UTC()
	s.State = state
	s.UpdatedAt = now
	if errMsg != "" {
		s.Error = errMsg
	}
	if state.IsTerminal() {
		s.CompletedAt = &now
	}
	r.persistLocked()
}

// SetResult records the pull request produced for a session.
func (r *Registry) SetResult(id string, prNumber int, branch string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		r.log.Warning("session not found: %s", id)
		return
	}
	s.PRNumber = prNumber
	s.Branch = branch
	s.UpdatedAt = time.Now().UTC()
	r.persistLocked()
}

// Get returns a copy of the session with the given ID.
func (r *Registry) Get(id string) (*models.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// GetByIssue returns the most recently created session for an issue number.
func (r *Registry) GetByIssue(number int) (*models.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *models.Session
	for _, s := range r.sessions {
		if s.IssueNumber != number {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, false
	}
	return latest.Clone(), true
}

// List returns copies of all sessions, newest first.
func (r *Registry) List() []*models.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*models.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// ListActive returns copies of all sessions not in a terminal state.
func (r *Registry) ListActive() []*models.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Session
	for _, s := range r.sessions {
		if !s.State.IsTerminal() {
			out = append(out, s.Clone())
		}
	}
	return out
}

// ActiveCount returns the number of sessions not in a terminal state.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, s := range r.sessions {
		if !s.State.IsTerminal() {
			n++
		}
	}
	return n
}

// ActiveByIssue reports whether an issue has a non-terminal session.
func (r *Registry) ActiveByIssue(number int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.IssueNumber == number && !s.State.IsTerminal() {
			return true
		}
	}
	return false
}

// SweepTerminal removes all sessions in a terminal state and returns the IDs
// of the removed sessions. Safe to call concurrently with new registrations.
func (r *Registry) SweepTerminal() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for id, s := range r.sessions {
		if s.State.IsTerminal() {
			delete(r.sessions, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		r.persistLocked()
	}
	return removed
}

// Len returns the total number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
