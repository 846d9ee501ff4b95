package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deppfellow/trackr/internal/model"
)

const (
	// bitbucketMaxCommits caps how far a comparison pages back.
	bitbucketMaxCommits = 100
	bitbucketRecent     = 20
)

type BitbucketProvider struct {
	client   *http.Client
	apiURL   string
	username string
	password string
}

func NewBitbucketProvider(client *http.Client, apiURL, username, password string) *BitbucketProvider {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &BitbucketProvider{
		client:   client,
		apiURL:   strings.TrimSuffix(apiURL, "/"),
		username: username,
		password: password,
	}
}

func (p *BitbucketProvider) ID() string   { return model.ProviderBitbucket }
func (p *BitbucketProvider) Name() string { return "Bitbucket" }

func (p *BitbucketProvider) ValidateConfig(cfg RepositoryConfig) (RepositoryConfig, error) {
	if _, _, err := splitSlug(cfg.Name); err != nil {
		return cfg, err
	}
	if cfg.ExternalID == "" {
		return cfg, fmt.Errorf("%w: external_id (the repository uuid) is required", ErrInvalidConfig)
	}
	if cfg.URL == "" {
		cfg.URL = "https://bitbucket.org/" + cfg.Name
	}
	return cfg, nil
}

func (p *BitbucketProvider) RepositoryExternalSlug(repo *model.Repository) string {
	return repo.Name
}

func (p *BitbucketProvider) auth(req *http.Request) {
	if p.username != "" {
		req.SetBasicAuth(p.username, p.password)
	}
}

type bitbucketCommit struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Date    time.Time `json:"date"`
	Author  struct {
		Raw string `json:"raw"`
	} `json:"author"`
}

type bitbucketCommitPage struct {
	Values []bitbucketCommit `json:"values"`
	Next   string            `json:"next"`
}

type bitbucketDiffstatPage struct {
	Values []struct {
		Status string `json:"status"`
		Old    *struct {
			Path string `json:"path"`
		} `json:"old"`
		New *struct {
			Path string `json:"path"`
		} `json:"new"`
	} `json:"values"`
	Next string `json:"next"`
}

// SearchCommits pages through the commits reachable from end and not from
// exclude, newest first, stopping after limit commits.
func (p *BitbucketProvider) SearchCommits(ctx context.Context, slug, end, exclude string, limit int) ([]bitbucketCommit, error) {
	q := url.Values{}
	if exclude != "" {
		q.Set("exclude", exclude)
	}
	q.Set("pagelen", fmt.Sprint(min(limit, 50)))
	next := fmt.Sprintf("%s/2.0/repositories/%s/commits/%s?%s", p.apiURL, slug, url.PathEscape(end), q.Encode())

	var commits []bitbucketCommit
	for next != "" && len(commits) < limit {
		var page bitbucketCommitPage
		if err := doJSON(ctx, p.client, http.MethodGet, next, nil, &page, p.auth); err != nil {
			return nil, fmt.Errorf("bitbucket commits %s: %w", slug, err)
		}
		commits = append(commits, page.Values...)
		next = page.Next
	}
	if len(commits) > limit {
		commits = commits[:limit]
	}
	return commits, nil
}

func (p *BitbucketProvider) CompareCommits(ctx context.Context, repo *model.Repository, start, end string) ([]model.CommitData, error) {
	slug := p.RepositoryExternalSlug(repo)
	limit := bitbucketMaxCommits
	if start == "" {
		limit = bitbucketRecent
	}

	commits, err := p.SearchCommits(ctx, slug, end, start, limit)
	if err != nil {
		return nil, err
	}

	data := make([]model.CommitData, 0, len(commits))
	for _, c := range commits {
		name, email := ParseAuthor(c.Author.Raw)
		ts := c.Date
		cd := model.CommitData{
			ID:          c.Hash,
			Message:     c.Message,
			AuthorName:  name,
			AuthorEmail: email,
			Timestamp:   &ts,
		}
		cd.Patches, err = p.diffstat(ctx, slug, c.Hash)
		if err != nil {
			return nil, err
		}
		data = append(data, cd)
	}
	return reverse(data), nil
}

func (p *BitbucketProvider) diffstat(ctx context.Context, slug, sha string) ([]model.FilePatch, error) {
	var patches []model.FilePatch
	next := fmt.Sprintf("%s/2.0/repositories/%s/diffstat/%s", p.apiURL, slug, url.PathEscape(sha))
	for next != "" {
		var page bitbucketDiffstatPage
		if err := doJSON(ctx, p.client, http.MethodGet, next, nil, &page, p.auth); err != nil {
			return nil, fmt.Errorf("bitbucket diffstat %s@%s: %w", slug, sha, err)
		}
		for _, v := range page.Values {
			switch v.Status {
			case "added":
				if v.New != nil {
					patches = append(patches, model.FilePatch{Path: v.New.Path, Type: model.FileAdded})
				}
			case "removed":
				if v.Old != nil {
					patches = append(patches, model.FilePatch{Path: v.Old.Path, Type: model.FileDeleted})
				}
			default:
				if v.New != nil {
					patches = append(patches, model.FilePatch{Path: v.New.Path, Type: model.FileModified})
				}
			}
		}
		next = page.Next
	}
	return patches, nil
}
