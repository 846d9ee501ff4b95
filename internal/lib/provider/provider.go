// Package provider talks to the source code hosts repositories are synced
// from: GitHub, Bitbucket Cloud and Azure DevOps (VSTS).
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"

	"github.com/deppfellow/trackr/internal/model"
)

var (
	ErrUnknownProvider = errors.New("unknown repository provider")
	ErrInvalidConfig   = errors.New("invalid repository config")
)

// RepositoryConfig is what a client submits when adding a repository.
type RepositoryConfig struct {
	Name       string
	URL        string
	ExternalID string
	Config     map[string]any
}

// RepositoryProvider is implemented by each source code host.
type RepositoryProvider interface {
	ID() string
	Name() string
	// ValidateConfig checks and normalizes a repository before it is saved.
	ValidateConfig(cfg RepositoryConfig) (RepositoryConfig, error)
	// RepositoryExternalSlug is how the host addresses the repository.
	RepositoryExternalSlug(repo *model.Repository) string
	// CompareCommits lists commits after start up to and including end,
	// oldest first. An empty start returns the most recent commits of end.
	CompareCommits(ctx context.Context, repo *model.Repository, start, end string) ([]model.CommitData, error)
}

// Registry looks providers up by id.
type Registry struct {
	providers map[string]RepositoryProvider
}

func NewRegistry(providers ...RepositoryProvider) *Registry {
	r := &Registry{providers: make(map[string]RepositoryProvider, len(providers))}
	for _, p := range providers {
		r.providers[p.ID()] = p
	}
	return r
}

func (r *Registry) Get(id string) (RepositoryProvider, error) {
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	return p, nil
}

// IDs lists the registered provider ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// splitSlug parses "owner/name".
func splitSlug(slug string) (string, string, error) {
	owner, name, ok := strings.Cut(slug, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("%w: repository name must look like owner/name", ErrInvalidConfig)
	}
	return owner, name, nil
}

// ParseAuthor splits a raw "Name <email>" author line. Lines without an
// address yield the whole line as the name.
func ParseAuthor(raw string) (name, email string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ""
	}
	if addr, err := mail.ParseAddress(raw); err == nil {
		return addr.Name, addr.Address
	}
	if i := strings.LastIndex(raw, "<"); i >= 0 && strings.HasSuffix(raw, ">") {
		return strings.TrimSpace(raw[:i]), strings.TrimSpace(raw[i+1 : len(raw)-1])
	}
	return raw, ""
}

// reverse puts newest-first host listings into oldest-first order.
func reverse(commits []model.CommitData) []model.CommitData {
	for i, j := 0, len(commits)-1; i < j; i, j = i+1, j-1 {
		commits[i], commits[j] = commits[j], commits[i]
	}
	return commits
}
