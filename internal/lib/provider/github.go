package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/github"
	"golang.org/x/oauth2"

	"github.com/deppfellow/trackr/internal/model"
)

// githubRecentCommits is how many commits are fetched when there is no
// previous revision to compare against.
const githubRecentCommits = 20

type GitHubProvider struct {
	client *github.Client
}

// NewGitHubProvider builds a client authenticated with token when set.
// apiURL overrides the public API endpoint (GitHub Enterprise).
func NewGitHubProvider(token, apiURL string) (*GitHubProvider, error) {
	var httpClient *http.Client
	if token != "" {
		httpClient = oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}

	client := github.NewClient(httpClient)
	if apiURL != "" {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		base, err := url.Parse(apiURL)
		if err != nil {
			return nil, fmt.Errorf("parse github api url: %w", err)
		}
		client.BaseURL = base
	}
	return &GitHubProvider{client: client}, nil
}

func (p *GitHubProvider) ID() string   { return model.ProviderGitHub }
func (p *GitHubProvider) Name() string { return "GitHub" }

func (p *GitHubProvider) ValidateConfig(cfg RepositoryConfig) (RepositoryConfig, error) {
	if _, _, err := splitSlug(cfg.Name); err != nil {
		return cfg, err
	}
	if cfg.ExternalID == "" {
		return cfg, fmt.Errorf("%w: external_id is required", ErrInvalidConfig)
	}
	if cfg.URL == "" {
		cfg.URL = "https://github.com/" + cfg.Name
	}
	return cfg, nil
}

func (p *GitHubProvider) RepositoryExternalSlug(repo *model.Repository) string {
	return repo.Name
}

func (p *GitHubProvider) CompareCommits(ctx context.Context, repo *model.Repository, start, end string) ([]model.CommitData, error) {
	owner, name, err := splitSlug(repo.Name)
	if err != nil {
		return nil, err
	}

	if start == "" {
		commits, _, err := p.client.Repositories.ListCommits(ctx, owner, name, &github.CommitsListOptions{
			SHA:         end,
			ListOptions: github.ListOptions{PerPage: githubRecentCommits},
		})
		if err != nil {
			return nil, fmt.Errorf("github list commits %s: %w", repo.Name, err)
		}
		data := make([]model.CommitData, 0, len(commits))
		for _, c := range commits {
			data = append(data, githubCommitData(c))
		}
		return reverse(data), nil
	}

	comparison, _, err := p.client.Repositories.CompareCommits(ctx, owner, name, start, end)
	if err != nil {
		return nil, fmt.Errorf("github compare %s %s...%s: %w", repo.Name, start, end, err)
	}
	data := make([]model.CommitData, 0, len(comparison.Commits))
	for i := range comparison.Commits {
		data = append(data, githubCommitData(&comparison.Commits[i]))
	}
	return data, nil
}

func githubCommitData(c *github.RepositoryCommit) model.CommitData {
	data := model.CommitData{ID: c.GetSHA()}
	if commit := c.Commit; commit != nil {
		data.Message = commit.GetMessage()
		if author := commit.Author; author != nil {
			data.AuthorName = author.GetName()
			data.AuthorEmail = author.GetEmail()
			if author.Date != nil {
				ts := *author.Date
				data.Timestamp = &ts
			}
		}
	}
	for _, f := range c.Files {
		if t, ok := githubFileStatus(f.GetStatus()); ok {
			data.Patches = append(data.Patches, model.FilePatch{Path: f.GetFilename(), Type: t})
		}
	}
	return data
}

func githubFileStatus(status string) (model.FileChangeType, bool) {
	switch status {
	case "added":
		return model.FileAdded, true
	case "removed":
		return model.FileDeleted, true
	case "modified", "changed", "renamed":
		return model.FileModified, true
	}
	return "", false
}
