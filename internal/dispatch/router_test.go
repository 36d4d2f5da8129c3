package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerrigan/swarm/internal/completion"
	"github.com/kerrigan/swarm/internal/models"
	"github.com/kerrigan/swarm/internal/provider"
	"github.com/kerrigan/swarm/internal/registry"
)

func newRouter(t *testing.T) (*Router, *registry.Registry) {
	t.Helper()
	reg := registry.New("", nil)
	pipeline := completion.New(reg, &publishSink{}, &publishSink{}, nil, nopLog{}, completion.Config{
		RetryAttempts: 1,
	})
	return NewRouter(reg, pipeline, nopLog{}), reg
}

func registerDispatched(t *testing.T, reg *registry.Registry, id string, issue int) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, reg.Register(&models.Session{
		ID:          id,
		IssueNumber: issue,
		Context:     agentContext(issue),
		State:       models.SessionStateDispatched,
		CreatedAt:   now,
		UpdatedAt:   now,
	}))
}

func TestRouterAssistantMessageMarksRunning(t *testing.T) {
	r, reg := newRouter(t)
	registerDispatched(t, reg, "s1", 42)

	r.handle("s1", provider.Event{Type: provider.EventAssistantMessage, Content: "thinking..."})

	sess, _ := reg.Get("s1")
	assert.Equal(t, models.SessionStateRunning, sess.State)

	// Further chunks leave the state alone.
	r.handle("s1", provider.Event{Type: provider.EventAssistantMessage, Content: "more"})
	sess, _ = reg.Get("s1")
	assert.Equal(t, models.SessionStateRunning, sess.State)
}

func TestRouterIdleCompletesSession(t *testing.T) {
	r, reg := newRouter(t)
	registerDispatched(t, reg, "s1", 42)

	r.handle("s1", provider.Event{Type: provider.EventAssistantMessage})
	r.handle("s1", provider.Event{Type: provider.EventSessionIdle, Content: "final output"})

	sess, _ := reg.Get("s1")
	assert.Equal(t, models.SessionStateCompleted, sess.State)
	assert.NotZero(t, sess.PRNumber)
	assert.Equal(t, "sdk-agent/swe/issue-42", sess.Branch)
}

func TestRouterErrorFailsSession(t *testing.T) {
	r, reg := newRouter(t)
	registerDispatched(t, reg, "s1", 42)

	r.handle("s1", provider.Event{Type: provider.EventError, Err: "overloaded_error"})

	sess, _ := reg.Get("s1")
	assert.Equal(t, models.SessionStateFailed, sess.State)
	assert.Equal(t, "overloaded_error", sess.Error)
}

func TestRouterErrorWithoutMessage(t *testing.T) {
	r, reg := newRouter(t)
	registerDispatched(t, reg, "s1", 42)

	r.handle("s1", provider.Event{Type: provider.EventError})

	sess, _ := reg.Get("s1")
	assert.Equal(t, "unknown error", sess.Error)
}

func TestRouterUnknownSessionDoesNotPanic(t *testing.T) {
	r, reg := newRouter(t)

	r.handle("ghost", provider.Event{Type: provider.EventSessionIdle, Content: "output"})
	r.handle("ghost", provider.Event{Type: provider.EventError, Err: "x"})
	assert.Equal(t, 0, reg.Len())
}

func TestRouterUnknownEventTypeIgnored(t *testing.T) {
	r, reg := newRouter(t)
	registerDispatched(t, reg, "s1", 42)

	r.handle("s1", provider.Event{Type: provider.EventUnknown})
	r.handle("s1", provider.Event{Type: "tool.use"})

	sess, _ := reg.Get("s1")
	assert.Equal(t, models.SessionStateDispatched, sess.State)
}

func TestRouterErrorThenIdleStaysFailed(t *testing.T) {
	r, reg := newRouter(t)
	registerDispatched(t, reg, "s1", 42)

	r.handle("s1", provider.Event{Type: provider.EventError, Err: "crashed"})
	r.handle("s1", provider.Event{Type: provider.EventSessionIdle, Content: "output"})

	sess, _ := reg.Get("s1")
	assert.Equal(t, models.SessionStateFailed, sess.State)
	assert.Equal(t, "crashed", sess.Error)
	assert.Zero(t, sess.PRNumber)
}

func TestRouterLateEventsAfterTerminalIgnored(t *testing.T) {
	r, reg := newRouter(t)
	registerDispatched(t, reg, "s1", 42)

	r.handle("s1", provider.Event{Type: provider.EventSessionIdle, Content: "output"})
	r.handle("s1", provider.Event{Type: provider.EventError, Err: "late error"})

	sess, _ := reg.Get("s1")
	assert.Equal(t, models.SessionStateCompleted, sess.State)
	assert.Empty(t, sess.Error)
}

func TestRouterConsumeDrainsChannel(t *testing.T) {
	r, reg := newRouter(t)
	registerDispatched(t, reg, "s1", 42)

	events := make(chan provider.Event, 4)
	events <- provider.Event{Type: provider.EventAssistantMessage, Content: "a"}
	events <- provider.Event{Type: provider.EventSessionIdle, Content: "ab"}
	close(events)

	r.Consume("s1", events)

	sess, _ := reg.Get("s1")
	assert.Equal(t, models.SessionStateCompleted, sess.State)
}
