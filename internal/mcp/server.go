// Package mcp exposes the swarm dispatcher as MCP tools over stdio, so an
// orchestrating agent can dispatch issues and inspect sessions.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kerrigan/swarm/internal/dispatch"
	"github.com/kerrigan/swarm/internal/history"
	"github.com/kerrigan/swarm/internal/models"
	"github.com/kerrigan/swarm/internal/registry"
)

// Server wraps the dispatcher and registry and exposes them as MCP tools.
type Server struct {
	ctrl   *dispatch.Controller
	intake *dispatch.Intake
	reg    *registry.Registry
	hist   history.Store
}

// NewServer creates the MCP server wrapper. hist may be nil when history is
// disabled.
func NewServer(ctrl *dispatch.Controller, intake *dispatch.Intake, reg *registry.Registry, hist history.Store) *Server {
	return &Server{ctrl: ctrl, intake: intake, reg: reg, hist: hist}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("swarm", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.dispatchIssueTool())
	srv.AddTool(s.listSessionsTool())
	srv.AddTool(s.sessionStatusTool())
	srv.AddTool(s.sweepSessionsTool())
	srv.AddTool(s.sessionHistoryTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

type sessionOut struct {
	SessionID   string `json:"session_id"`
	IssueNumber int    `json:"issue_number"`
	Role        string `json:"role"`
	State       string `json:"state"`
	Error       string `json:"error,omitempty"`
	PRNumber    int    `json:"pr_number,omitempty"`
	Branch      string `json:"branch,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

func toSessionOut(sess *models.Session) sessionOut {
	out := sessionOut{
		SessionID:   sess.ID,
		IssueNumber: sess.IssueNumber,
		Role:        sess.Context.Role,
		State:       string(sess.State),
		Error:       sess.Error,
		PRNumber:    sess.PRNumber,
		Branch:      sess.Branch,
		CreatedAt:   sess.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   sess.UpdatedAt.Format(time.RFC3339),
	}
	if sess.CompletedAt != nil {
		out.CompletedAt = sess.CompletedAt.Format(time.RFC3339)
	}
	return out
}

// swarm_dispatch_issue
func (s *Server) dispatchIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_dispatch_issue",
		mcp.WithDescription("Dispatch an agent session for a GitHub issue. The issue must carry an autonomy gate label (agent:go, agent:sprint, or autonomy:override). Returns the dispatch result as JSON."),
		mcp.WithNumber("issue_number", mcp.Required(), mcp.Description("GitHub issue number to dispatch")),
		mcp.WithString("role", mcp.Description("Override role name (spec, architect, swe, deploy, security, triage)")),
	)
	return tool, s.handleDispatchIssue
}

func (s *Server) handleDispatchIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueNumber, err := request.RequireInt("issue_number")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_number"), nil
	}
	role := request.GetString("role", "")

	ac, err := s.intake.Prepare(issueNumber, role)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := s.ctrl.Dispatch(ctx, ac)
	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// swarm_list_sessions
func (s *Server) listSessionsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_list_sessions",
		mcp.WithDescription("List sessions in the registry, newest first. Returns a JSON array with session_id, issue_number, role, state, and completion details."),
		mcp.WithBoolean("active", mcp.Description("Only return non-terminal sessions")),
	)
	return tool, s.handleListSessions
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var sessions []*models.Session
	if request.GetBool("active", false) {
		sessions = s.reg.ListActive()
	} else {
		sessions = s.reg.List()
	}

	out := make([]sessionOut, len(sessions))
	for i, sess := range sessions {
		out[i] = toSessionOut(sess)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal sessions: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// swarm_session_status
func (s *Server) sessionStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_session_status",
		mcp.WithDescription("Get the current state of one session by its session ID."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID, e.g. session-42-01J...")),
	)
	return tool, s.handleSessionStatus
}

func (s *Server) handleSessionStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	sess, ok := s.reg.Get(sessionID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("session not found: %s", sessionID)), nil
	}

	data, err := json.Marshal(toSessionOut(sess))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal session: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// swarm_sweep_sessions
func (s *Server) sweepSessionsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_sweep_sessions",
		mcp.WithDescription("Remove completed and failed sessions from the registry, freeing their capacity slots. Returns the number of sessions removed."),
	)
	return tool, s.handleSweepSessions
}

func (s *Server) handleSweepSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	removed := s.ctrl.Sweep()
	data, err := json.Marshal(map[string]int{"removed": removed})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// swarm_session_history
func (s *Server) sessionHistoryTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_session_history",
		mcp.WithDescription("List archived terminal sessions from the history store, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of records to return (default 20)")),
	)
	return tool, s.handleSessionHistory
}

func (s *Server) handleSessionHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.hist == nil {
		return mcp.NewToolResultError("session history is not enabled"), nil
	}

	limit := request.GetInt("limit", 20)
	records, err := s.hist.ListSessions(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list history: %v", err)), nil
	}

	type recordOut struct {
		SessionID   string `json:"session_id"`
		IssueNumber int    `json:"issue_number"`
		Role        string `json:"role"`
		State       string `json:"state"`
		Error       string `json:"error,omitempty"`
		PRNumber    int    `json:"pr_number,omitempty"`
		Branch      string `json:"branch,omitempty"`
		CreatedAt   string `json:"created_at"`
		CompletedAt string `json:"completed_at,omitempty"`
	}

	out := make([]recordOut, len(records))
	for i, r := range records {
		out[i] = recordOut{
			SessionID:   r.SessionID,
			IssueNumber: r.IssueNumber,
			Role:        r.Role,
			State:       r.State,
			Error:       r.Error,
			PRNumber:    r.PRNumber,
			Branch:      r.Branch,
			CreatedAt:   r.CreatedAt.Format(time.RFC3339),
		}
		if r.CompletedAt != nil {
			out[i].CompletedAt = r.CompletedAt.Format(time.RFC3339)
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal history: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
