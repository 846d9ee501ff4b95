package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/microsoft/azure-devops-go-api/azuredevops/v7"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/git"

	"github.com/deppfellow/trackr/internal/model"
)

const vstsRecent = 10

type VSTSProvider struct {
	newGit func(ctx context.Context, instance string) (git.Client, error)

	mu      sync.Mutex
	clients map[string]git.Client
}

// NewVSTSProvider authenticates every call with a personal access token.
// One git client is kept per organization instance.
func NewVSTSProvider(accessToken string) *VSTSProvider {
	return &VSTSProvider{
		newGit: func(ctx context.Context, instance string) (git.Client, error) {
			return git.NewClient(ctx, azuredevops.NewPatConnection(instance, accessToken))
		},
		clients: make(map[string]git.Client),
	}
}

func (p *VSTSProvider) ID() string   { return model.ProviderVSTS }
func (p *VSTSProvider) Name() string { return "Azure DevOps" }

func (p *VSTSProvider) ValidateConfig(cfg RepositoryConfig) (RepositoryConfig, error) {
	if cfg.ExternalID == "" {
		return cfg, fmt.Errorf("%w: external_id (the repository id) is required", ErrInvalidConfig)
	}
	instance, _ := cfg.Config["instance"].(string)
	u, err := url.Parse(instance)
	if instance == "" || err != nil || u.Scheme != "https" || u.Host == "" {
		return cfg, fmt.Errorf("%w: config.instance must be an https url", ErrInvalidConfig)
	}
	if !strings.HasSuffix(instance, "/") {
		instance += "/"
	}

	out := make(map[string]any, len(cfg.Config))
	for k, v := range cfg.Config {
		out[k] = v
	}
	out["instance"] = instance
	cfg.Config = out
	if cfg.Name == "" {
		cfg.Name = cfg.ExternalID
	}
	return cfg, nil
}

func (p *VSTSProvider) RepositoryExternalSlug(repo *model.Repository) string {
	return repo.ExternalID
}

func (p *VSTSProvider) client(ctx context.Context, instance string) (git.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[instance]; ok {
		return c, nil
	}
	c, err := p.newGit(ctx, instance)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", instance, vstsError(err))
	}
	p.clients[instance] = c
	return c, nil
}

// vstsChange is one entry of a commit's change list. The SDK leaves the
// entries untyped.
type vstsChange struct {
	ChangeType string `json:"changeType"`
	Item       struct {
		Path     string `json:"path"`
		IsFolder bool   `json:"isFolder"`
	} `json:"item"`
}

func (p *VSTSProvider) CompareCommits(ctx context.Context, repo *model.Repository, start, end string) ([]model.CommitData, error) {
	gc, err := p.client(ctx, repo.ConfigString("instance"))
	if err != nil {
		return nil, err
	}
	repoID := repo.ExternalID

	criteria := &git.GitQueryCommitsCriteria{ItemVersion: commitVersion(end)}
	if start != "" {
		criteria.CompareVersion = commitVersion(start)
	} else {
		top := vstsRecent
		criteria.Top = &top
	}
	batch, err := gc.GetCommitsBatch(ctx, git.GetCommitsBatchArgs{SearchCriteria: criteria, RepositoryId: &repoID})
	if err != nil {
		return nil, fmt.Errorf("vsts commitsbatch %s: %w", repoID, vstsError(err))
	}
	if batch == nil {
		return nil, nil
	}

	data := make([]model.CommitData, 0, len(*batch))
	for _, c := range *batch {
		cd := model.CommitData{ID: deref(c.CommitId), Message: deref(c.Comment)}
		if c.Author != nil {
			cd.AuthorName = deref(c.Author.Name)
			cd.AuthorEmail = deref(c.Author.Email)
			if c.Author.Date != nil {
				ts := c.Author.Date.Time
				cd.Timestamp = &ts
			}
		}

		patches, err := vstsPatches(ctx, gc, repoID, cd.ID)
		if err != nil {
			return nil, err
		}
		cd.Patches = patches
		data = append(data, cd)
	}
	return reverse(data), nil
}

func vstsPatches(ctx context.Context, gc git.Client, repoID, commitID string) ([]model.FilePatch, error) {
	changes, err := gc.GetChanges(ctx, git.GetChangesArgs{CommitId: &commitID, RepositoryId: &repoID})
	if err != nil {
		return nil, fmt.Errorf("vsts changes %s: %w", commitID, vstsError(err))
	}
	if changes == nil || changes.Changes == nil {
		return nil, nil
	}

	var patches []model.FilePatch
	for _, raw := range *changes.Changes {
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("vsts changes %s: %w", commitID, err)
		}
		var ch vstsChange
		if err := json.Unmarshal(encoded, &ch); err != nil {
			return nil, fmt.Errorf("vsts changes %s: %w", commitID, err)
		}
		if ch.Item.IsFolder {
			continue
		}
		if t, ok := vstsChangeType(ch.ChangeType); ok {
			patches = append(patches, model.FilePatch{Path: ch.Item.Path, Type: t})
		}
	}
	return patches, nil
}

func commitVersion(sha string) *git.GitVersionDescriptor {
	return &git.GitVersionDescriptor{Version: &sha, VersionType: &git.GitVersionTypeValues.Commit}
}

// vstsError surfaces the HTTP status of an Azure DevOps error as an APIError.
func vstsError(err error) error {
	var wrapped azuredevops.WrappedError
	var wrappedPtr *azuredevops.WrappedError
	switch {
	case errors.As(err, &wrapped):
	case errors.As(err, &wrappedPtr) && wrappedPtr != nil:
		wrapped = *wrappedPtr
	default:
		return err
	}
	if wrapped.StatusCode == nil {
		return err
	}
	return &APIError{Status: *wrapped.StatusCode, Body: deref(wrapped.Message)}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// vstsChangeType maps Azure DevOps change types, which may be combined
// ("edit, rename"), onto file change types.
func vstsChangeType(changeType string) (model.FileChangeType, bool) {
	switch {
	case strings.Contains(changeType, "delete"):
		return model.FileDeleted, true
	case strings.Contains(changeType, "add"):
		return model.FileAdded, true
	case strings.Contains(changeType, "edit"), strings.Contains(changeType, "rename"):
		return model.FileModified, true
	}
	return "", false
}
