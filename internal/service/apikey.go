package service

import (
	"context"
	"crypto/rand"
	"strings"

	"github.com/deppfellow/trackr/internal/errs"
	"github.com/deppfellow/trackr/internal/model"
	"github.com/deppfellow/trackr/internal/sqlerr"
)

const maxAPIKeyLabel = 64

type apiKeyRepository interface {
	GetByHash(ctx context.Context, hash string) (*model.APIKey, error)
	List(ctx context.Context, orgID int64) ([]model.APIKey, error)
	Create(ctx context.Context, k *model.APIKey, hash string) error
	Get(ctx context.Context, orgID, id int64) (*model.APIKey, error)
	Delete(ctx context.Context, orgID, id int64) error
}

// APIKeyService manages organization API keys used for event ingestion.
type APIKeyService struct {
	repo  apiKeyRepository
	audit AuditRecorder
}

func NewAPIKeyService(repo apiKeyRepository, audit AuditRecorder) *APIKeyService {
	return &APIKeyService{repo: repo, audit: audit}
}

func invalidAPIKey() error {
	return errs.NewUnauthorizedError("Invalid API key", true)
}

// Authenticate resolves a raw key. Unknown keys are a 401.
func (s *APIKeyService) Authenticate(ctx context.Context, raw string) (*model.APIKey, error) {
	if !model.IsAPIKey(raw) {
		return nil, invalidAPIKey()
	}
	key, err := s.repo.GetByHash(ctx, model.HashAPIKey(raw))
	if err != nil {
		if sqlerr.IsNoRows(err) {
			return nil, invalidAPIKey()
		}
		return nil, err
	}
	return key, nil
}

func (s *APIKeyService) List(ctx context.Context, org *model.Organization, actor model.Actor) ([]model.APIKey, error) {
	if !actor.Role.IsWriter() {
		return nil, errs.NewForbiddenError("You do not have permission to view API keys", true)
	}
	keys, err := s.repo.List(ctx, org.ID)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		keys = []model.APIKey{}
	}
	return keys, nil
}

// Create issues a new key. The raw key is only part of this response.
func (s *APIKeyService) Create(ctx context.Context, org *model.Organization, actor model.Actor, label string) (*model.CreatedAPIKey, error) {
	if !actor.Role.IsWriter() {
		return nil, errs.NewForbiddenError("You do not have permission to create API keys", true)
	}
	label = strings.TrimSpace(label)
	if label == "" || len([]rune(label)) > maxAPIKeyLabel {
		return nil, errs.NewBadRequestError("Label must be 1 to 64 characters", true, nil,
			[]errs.FieldError{{Field: "label", Error: "must be 1 to 64 characters"}}, nil)
	}

	raw := model.APIKeyPrefix + strings.ToLower(rand.Text())
	key := model.APIKey{
		OrganizationID: org.ID,
		Label:          label,
		Hint:           model.APIKeyHint(raw),
	}
	if actor.UserID != "" {
		userID := actor.UserID
		key.CreatedBy = &userID
	}
	if err := s.repo.Create(ctx, &key, model.HashAPIKey(raw)); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, newAuditEntry(org.ID, actor, model.AuditAPIKeyAdd, &key.ID, map[string]any{
		"label": key.Label,
	}))
	return &model.CreatedAPIKey{APIKey: key, Key: raw}, nil
}

func (s *APIKeyService) Revoke(ctx context.Context, org *model.Organization, actor model.Actor, id int64) error {
	if !actor.Role.IsWriter() {
		return errs.NewForbiddenError("You do not have permission to revoke API keys", true)
	}
	key, err := s.repo.Get(ctx, org.ID, id)
	if err != nil {
		if sqlerr.IsNoRows(err) {
			return errs.NewNotFoundError("API key not found", true, nil)
		}
		return err
	}
	if err := s.repo.Delete(ctx, org.ID, id); err != nil {
		return err
	}
	s.audit.Record(ctx, newAuditEntry(org.ID, actor, model.AuditAPIKeyRemove, &key.ID, map[string]any{
		"label": key.Label,
	}))
	return nil
}
