package models

// Issue holds the fields of the originating work item that dispatch needs.
type Issue struct {
	Number int      `json:"number"`
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels"`
}

// Repository identifies the target GitHub repository.
type Repository struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	DefaultBranch string `json:"default_branch"`
}

// Artifacts are supplementary documents injected into the agent prompt.
// All fields are optional.
type Artifacts struct {
	Constitution string `json:"constitution,omitempty"`
	Spec         string `json:"spec,omitempty"`
	Architecture string `json:"architecture,omitempty"`
	Plan         string `json:"plan,omitempty"`
}

// AgentContext is the full request context for a single dispatch.
type AgentContext struct {
	Issue      Issue      `json:"issue"`
	Repository Repository `json:"repository"`
	Role       string     `json:"role"`
	Artifacts  Artifacts  `json:"artifacts"`
	Prompt     string     `json:"prompt"`
}

// DispatchResult is the synchronous outcome of one admission attempt.
// SessionID is empty when Dispatched is false.
type DispatchResult struct {
	SessionID   string `json:"session_id"`
	IssueNumber int    `json:"issue_number"`
	Dispatched  bool   `json:"dispatched"`
	Error       string `json:"error,omitempty"`
}

// BatchDispatchResult aggregates a concurrent batch of dispatch attempts.
// Successful and Failed are not ordered relative to the input.
type BatchDispatchResult struct {
	Total      int              `json:"total"`
	Successful []DispatchResult `json:"successful"`
	Failed     []DispatchResult `json:"failed"`
}
