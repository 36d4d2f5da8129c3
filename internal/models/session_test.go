package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsTerminal(t *testing.T) {
	assert.True(t, SessionStateCompleted.IsTerminal())
	assert.True(t, SessionStateFailed.IsTerminal())

	for _, s := range []SessionState{SessionStateCreated, SessionStateDispatched, SessionStateRunning, SessionStateIdle} {
		assert.False(t, s.IsTerminal(), string(s))
	}
}

func TestCloneIsIndependent(t *testing.T) {
	now := time.Now().UTC()
	orig := &Session{
		ID:          "s1",
		IssueNumber: 42,
		Context: AgentContext{
			Issue: Issue{Number: 42, Labels: []string{"agent:go"}},
		},
		State:       SessionStateCompleted,
		CompletedAt: &now,
	}

	c := orig.Clone()
	c.State = SessionStateFailed
	c.Context.Issue.Labels[0] = "mutated"
	*c.CompletedAt = now.Add(time.Hour)

	assert.Equal(t, SessionStateCompleted, orig.State)
	assert.Equal(t, "agent:go", orig.Context.Issue.Labels[0])
	assert.Equal(t, now, *orig.CompletedAt)
}
