// Package history is the durable audit of terminal sessions. The registry
// sweeps terminal sessions away; history keeps their outcome queryable.
package history

import (
	"context"
	"time"

	"github.com/kerrigan/swarm/internal/models"
)

// Record is one archived terminal session.
type Record struct {
	ID          string
	SessionID   string
	IssueNumber int
	Role        string
	State       string
	Error       string
	PRNumber    int
	Branch      string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Store persists terminal session records.
type Store interface {
	RecordSession(ctx context.Context, s *models.Session) error
	ListSessions(ctx context.Context, limit int) ([]*Record, error)
	Migrate(ctx context.Context) error
	Close() error
}
