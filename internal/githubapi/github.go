// Package githubapi wraps the gh CLI for the repository mutation and status
// reporting the completion pipeline depends on. gh also supplies
// authentication, so no token handling lives here.
package githubapi

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// IssueDetail is the subset of GitHub issue fields dispatch needs.
type IssueDetail struct {
	Number int
	Title  string
	Body   string
	Labels []string
}

// RepoMutator creates branches, commits files, and opens pull requests.
// Pure side-effect executor, no state of its own.
type RepoMutator interface {
	DefaultBranch(owner, repo string) (string, error)
	CreateBranch(owner, repo, name, fromBranch string) error
	CommitFile(owner, repo, branch, path, content, message string) error
	CreatePullRequest(owner, repo, branch, base, title, body string, labels []string) (int, error)
}

// Notifier posts human-readable status updates against the originating issue.
type Notifier interface {
	PostComment(owner, repo string, issueNumber int, body string) error
}

// IssueReader fetches issue details.
type IssueReader interface {
	GetIssue(owner, repo string, number int) (*IssueDetail, error)
}

// Client implements RepoMutator, Notifier, and IssueReader using the gh CLI.
type Client struct{}

// NewClient returns a gh-backed client.
func NewClient() *Client {
	return &Client{}
}

func ghCmd(args ...string) (string, error) {
	out, err := exec.Command("gh", args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("gh %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("gh %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *Client) DefaultBranch(owner, repo string) (string, error) {
	out, err := ghCmd("api",
		fmt.Sprintf("repos/%s/%s", owner, repo),
		"--jq", ".default_branch",
	)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", fmt.Errorf("repository %s/%s has no default branch", owner, repo)
	}
	return out, nil
}

// CreateBranch creates name from the current tip of fromBranch. A branch that
// already exists is reused, not an error.
func (c *Client) CreateBranch(owner, repo, name, fromBranch string) error {
	sha, err := ghCmd("api",
		fmt.Sprintf("repos/%s/%s/git/ref/heads/%s", owner, repo, fromBranch),
		"--jq", ".object.sha",
	)
	if err != nil {
		return fmt.Errorf("resolve %s tip: %w", fromBranch, err)
	}

	_, err = ghCmd("api", "-X", "POST",
		fmt.Sprintf("repos/%s/%s/git/refs", owner, repo),
		"-f", "ref=refs/heads/"+name,
		"-f", "sha="+sha,
	)
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return nil
		}
		return fmt.Errorf("create branch %s: %w", name, err)
	}
	return nil
}

func (c *Client) CommitFile(owner, repo, branch, path, content, message string) error {
	encoded := base64.StdEncoding.EncodeToString([]byte(content))
	_, err := ghCmd("api", "-X", "PUT",
		fmt.Sprintf("repos/%s/%s/contents/%s", owner, repo, path),
		"-f", "message="+message,
		"-f", "content="+encoded,
		"-f", "branch="+branch,
	)
	if err != nil {
		return fmt.Errorf("commit %s: %w", path, err)
	}
	return nil
}

func (c *Client) CreatePullRequest(owner, repo, branch, base, title, body string, labels []string) (int, error) {
	out, err := ghCmd("api", "-X", "POST",
		fmt.Sprintf("repos/%s/%s/pulls", owner, repo),
		"-f", "title="+title,
		"-f", "body="+body,
		"-f", "head="+branch,
		"-f", "base="+base,
		"--jq", ".number",
	)
	if err != nil {
		return 0, fmt.Errorf("create pull request: %w", err)
	}

	prNumber, err := strconv.Atoi(out)
	if err != nil {
		return 0, fmt.Errorf("parse pull request number %q: %w", out, err)
	}

	if len(labels) > 0 {
		args := []string{"api", "-X", "POST",
			fmt.Sprintf("repos/%s/%s/issues/%d/labels", owner, repo, prNumber)}
		for _, l := range labels {
			args = append(args, "-f", "labels[]="+l)
		}
		// Label failures do not undo the PR; surface them anyway.
		if _, err := ghCmd(args...); err != nil {
			return prNumber, fmt.Errorf("add labels to PR #%d: %w", prNumber, err)
		}
	}

	return prNumber, nil
}

func (c *Client) PostComment(owner, repo string, issueNumber int, body string) error {
	_, err := ghCmd("api", "-X", "POST",
		fmt.Sprintf("repos/%s/%s/issues/%d/comments", owner, repo, issueNumber),
		"-f", "body="+body,
	)
	if err != nil {
		return fmt.Errorf("post comment on #%d: %w", issueNumber, err)
	}
	return nil
}

type issueRaw struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

func (c *Client) GetIssue(owner, repo string, number int) (*IssueDetail, error) {
	out, err := ghCmd("api", fmt.Sprintf("repos/%s/%s/issues/%d", owner, repo, number))
	if err != nil {
		return nil, err
	}

	var raw issueRaw
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("parse issue #%d: %w", number, err)
	}

	detail := &IssueDetail{
		Number: raw.Number,
		Title:  raw.Title,
		Body:   raw.Body,
	}
	for _, l := range raw.Labels {
		detail.Labels = append(detail.Labels, l.Name)
	}
	return detail, nil
}
