package publish

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/relay-dev/relay/pkg/models"
)

// GitHubHost opens pull requests via the GitHub API.
type GitHubHost struct {
	client *github.Client
	owner  string
	repo   string
}

var _ Host = (*GitHubHost)(nil)

// NewGitHubHost creates a host for the given repository using a token.
func NewGitHubHost(ctx context.Context, token, owner, repo string) *GitHubHost {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))
	return &GitHubHost{client: client, owner: owner, repo: repo}
}

// FindChangeRequest returns the open pull request whose head is the
// given branch, or nil if none exists.
func (h *GitHubHost) FindChangeRequest(ctx context.Context, head string) (*models.PublicationRef, error) {
	prs, _, err := h.client.PullRequests.List(ctx, h.owner, h.repo, &github.PullRequestListOptions{
		State: "open",
		Head:  fmt.Sprintf("%s:%s", h.owner, head),
	})
	if err != nil {
		return nil, fmt.Errorf("list pull requests: %w", err)
	}
	if len(prs) == 0 {
		return nil, nil
	}
	pr := prs[0]
	return &models.PublicationRef{
		URL: pr.GetHTMLURL(),
		ID:  pr.GetNumber(),
	}, nil
}

// CreateChangeRequest opens a pull request for the change.
func (h *GitHubHost) CreateChangeRequest(ctx context.Context, cr ChangeRequest) (*models.PublicationRef, error) {
	pr, _, err := h.client.PullRequests.Create(ctx, h.owner, h.repo, &github.NewPullRequest{
		Title: github.String(cr.Title),
		Body:  github.String(cr.Body),
		Head:  github.String(cr.Head),
		Base:  github.String(cr.Base),
	})
	if err != nil {
		return nil, fmt.Errorf("create pull request: %w", err)
	}
	return &models.PublicationRef{
		URL: pr.GetHTMLURL(),
		ID:  pr.GetNumber(),
	}, nil
}

// ParseRemote extracts owner and repo from a git remote URL. Both SSH
// and HTTPS GitHub URLs are supported.
func ParseRemote(remote string) (owner, repo string, err error) {
	remote = strings.TrimSpace(remote)
	remote = strings.TrimSuffix(remote, ".git")

	var path string
	switch {
	case strings.HasPrefix(remote, "git@"):
		// git@github.com:owner/repo
		_, after, ok := strings.Cut(remote, ":")
		if !ok {
			return "", "", fmt.Errorf("unrecognized remote url: %s", remote)
		}
		path = after
	case strings.Contains(remote, "://"):
		// https://github.com/owner/repo
		_, after, _ := strings.Cut(remote, "://")
		parts := strings.SplitN(after, "/", 2)
		if len(parts) != 2 {
			return "", "", fmt.Errorf("unrecognized remote url: %s", remote)
		}
		path = parts[1]
	default:
		return "", "", fmt.Errorf("unrecognized remote url: %s", remote)
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("remote url has no owner/repo: %s", remote)
	}
	return parts[0], parts[1], nil
}
