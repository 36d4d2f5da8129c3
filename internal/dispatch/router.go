package dispatch

import (
	"context"
	"fmt"

	"github.com/kerrigan/swarm/internal/completion"
	"github.com/kerrigan/swarm/internal/models"
	"github.com/kerrigan/swarm/internal/provider"
	"github.com/kerrigan/swarm/internal/registry"
)

// Router consumes one session's event stream and advances the session state
// machine. Each session has exactly one consumer goroutine, so events for a
// session are handled in arrival order.
type Router struct {
	reg      *registry.Registry
	pipeline *completion.Pipeline
	log      Logger
}

// NewRouter creates an event router over the given registry and pipeline.
func NewRouter(reg *registry.Registry, pipeline *completion.Pipeline, log Logger) *Router {
	return &Router{reg: reg, pipeline: pipeline, log: log}
}

// Consume drains the event channel until the provider closes it.
func (r *Router) Consume(sessionID string, events <-chan provider.Event) {
	for ev := range events {
		r.handle(sessionID, ev)
	}
}

func (r *Router) handle(sessionID string, ev provider.Event) {
	// A panic in a handler must not take down the consumer loop, and must
	// not re-enter the failure path it may have panicked inside of. Mark
	// the session failed directly and move on.
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("event handler error for %s: %v", sessionID, rec)
			r.reg.UpdateState(sessionID, models.SessionStateFailed, fmt.Sprintf("event handler error: %v", rec))
		}
	}()

	sess, ok := r.reg.Get(sessionID)
	if !ok {
		r.log.Warning("dropping %s event for unknown session %s", ev.Type, sessionID)
		return
	}
	if sess.State.IsTerminal() {
		// Late events after completion or failure carry no information.
		return
	}

	switch ev.Type {
	case provider.EventAssistantMessage:
		if sess.State == models.SessionStateDispatched {
			r.reg.UpdateState(sessionID, models.SessionStateRunning, "")
		}

	case provider.EventSessionIdle:
		r.reg.UpdateState(sessionID, models.SessionStateIdle, "")
		r.pipeline.HandleSuccess(context.Background(), sessionID, ev.Content)

	case provider.EventError:
		msg := ev.Err
		if msg == "" {
			msg = "unknown error"
		}
		r.pipeline.HandleFailure(context.Background(), sessionID, msg)

	default:
		r.log.Warning("ignoring %s event for session %s", ev.Type, sessionID)
	}
}
