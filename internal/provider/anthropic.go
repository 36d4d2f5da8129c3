package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient implements Client against the Anthropic Messages API.
// One client is shared across all sessions in the process.
type AnthropicClient struct {
	api     *anthropic.Client
	model   anthropic.Model
	mu      sync.Mutex
	started bool
}

// NewAnthropicClient creates a provider client with the given API key and
// default model. An empty key falls back to the SDK's environment lookup.
func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicClient{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// Start marks the client ready. Idempotent.
func (c *AnthropicClient) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	return nil
}

// Stop shuts the client down. Tolerates being called when never started.
func (c *AnthropicClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
	return nil
}

// CreateSession opens a new conversation. The session's event channel is
// buffered so slow consumers do not stall the stream reader.
func (c *AnthropicClient) CreateSession(_ context.Context, opts SessionOptions) (Session, error) {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return nil, fmt.Errorf("anthropic client not started")
	}

	model := c.model
	if opts.Model != "" {
		model = anthropic.Model(opts.Model)
	}

	return &anthropicSession{
		api:    c.api,
		model:  model,
		system: opts.System,
		events: make(chan Event, 64),
	}, nil
}

// anthropicSession streams one Messages API request and translates streaming
// deltas into the tagged event union the router consumes.
type anthropicSession struct {
	api    *anthropic.Client
	model  anthropic.Model
	system string
	events chan Event

	sendOnce sync.Once
}

func (s *anthropicSession) Events() <-chan Event {
	return s.events
}

// Send issues the prompt and returns as soon as the streaming request has
// been initiated. Deltas, completion, and errors are delivered on Events;
// the channel is closed after the terminal event.
func (s *anthropicSession) Send(ctx context.Context, prompt string) error {
	var already bool
	s.sendOnce.Do(func() {
		go s.stream(ctx, prompt)
		already = true
	})
	if !already {
		return fmt.Errorf("session already sent")
	}
	return nil
}

func (s *anthropicSession) stream(ctx context.Context, prompt string) {
	defer close(s.events)

	params := anthropic.MessageNewParams{
		Model:     s.model,
		MaxTokens: 8192,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if s.system != "" {
		params.System = []anthropic.TextBlockParam{{Text: s.system}}
	}

	stream := s.api.Messages.NewStreaming(ctx, params)

	var output strings.Builder
	for stream.Next() {
		event := stream.Current()
		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := eventVariant.Delta.AsAny().(anthropic.TextDelta); ok {
				output.WriteString(delta.Text)
				s.events <- Event{Type: EventAssistantMessage, Content: delta.Text}
			}
		}
	}

	if err := stream.Err(); err != nil {
		s.events <- Event{Type: EventError, Err: err.Error()}
		return
	}

	s.events <- Event{Type: EventSessionIdle, Content: output.String()}
}
