// Package provider defines the contract for the remote agent service: a
// client that accepts a prompt and asynchronously emits a stream of tagged
// events culminating in completion or failure.
package provider

import "context"

// EventType tags an event emitted by a remote agent session.
type EventType string

const (
	// EventAssistantMessage carries a chunk of assistant output.
	EventAssistantMessage EventType = "assistant.message"
	// EventSessionIdle signals the agent has no more pending work.
	EventSessionIdle EventType = "session.idle"
	// EventError signals the session failed remotely.
	EventError EventType = "error"
	// EventUnknown covers event types this version does not understand.
	// Consumers log and drop these.
	EventUnknown EventType = "unknown"
)

// Event is one tagged event from a session's stream. Content holds assistant
// text (the full accumulated output on session.idle); Err holds the error
// message for error events.
type Event struct {
	Type    EventType
	Content string
	Err     string
}

// Session is a single remote agent conversation. Send initiates the prompt
// without waiting for the remote reply; subsequent progress arrives on
// Events. The events channel is closed after a terminal event
// (session.idle or error) is delivered. Cancelling the context passed to
// Send ends the stream early; the channel is closed in that case too, so
// consumers ranging over it always terminate.
type Session interface {
	Send(ctx context.Context, prompt string) error
	Events() <-chan Event
}

// SessionOptions configures a new remote session.
type SessionOptions struct {
	Model  string
	System string
}

// Client is the remote agent provider. Implementations must tolerate Stop
// being called before Start or more than once.
type Client interface {
	Start(ctx context.Context) error
	Stop() error
	CreateSession(ctx context.Context, opts SessionOptions) (Session, error)
}
