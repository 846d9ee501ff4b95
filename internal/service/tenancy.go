package service

import (
	"context"

	"github.com/deppfellow/trackr/internal/errs"
	"github.com/deppfellow/trackr/internal/model"
	"github.com/deppfellow/trackr/internal/sqlerr"
)

type tenancyRepository interface {
	GetOrganizationBySlug(ctx context.Context, slug string) (*model.Organization, error)
	GetMember(ctx context.Context, orgID int64, userID string) (*model.Member, error)
	GetProject(ctx context.Context, orgID int64, slug string) (*model.Project, error)
}

type TenancyService struct {
	repo tenancyRepository
}

func NewTenancyService(repo tenancyRepository) *TenancyService {
	return &TenancyService{repo: repo}
}

func organizationNotFound() error {
	return errs.NewNotFoundError("Organization not found", true, nil)
}

// ResolveOrganization loads the organization for slug as seen by userID.
// Callers outside the organization get the same 404 as for an unknown slug.
func (s *TenancyService) ResolveOrganization(ctx context.Context, slug, userID string) (*model.Organization, *model.Member, error) {
	org, err := s.GetOrganization(ctx, slug)
	if err != nil {
		return nil, nil, err
	}

	member, err := s.repo.GetMember(ctx, org.ID, userID)
	if err != nil {
		if sqlerr.IsNoRows(err) {
			return nil, nil, organizationNotFound()
		}
		return nil, nil, err
	}
	return org, member, nil
}

func (s *TenancyService) GetProject(ctx context.Context, orgID int64, slug string) (*model.Project, error) {
	project, err := s.repo.GetProject(ctx, orgID, slug)
	if err != nil {
		if sqlerr.IsNoRows(err) {
			return nil, errs.NewNotFoundError("Project not found", true, nil)
		}
		return nil, err
	}
	return project, nil
}

// GetOrganization loads an active organization without a membership check.
// Webhook receivers use it to scope deliveries.
func (s *TenancyService) GetOrganization(ctx context.Context, slug string) (*model.Organization, error) {
	org, err := s.repo.GetOrganizationBySlug(ctx, slug)
	if err != nil {
		if sqlerr.IsNoRows(err) {
			return nil, organizationNotFound()
		}
		return nil, err
	}
	if org.Status != "" && org.Status != "active" {
		return nil, organizationNotFound()
	}
	return org, nil
}
