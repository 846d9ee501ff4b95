package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/deppfellow/trackr/internal/errs"
	"github.com/deppfellow/trackr/internal/model"
)

type savedSearchRepository interface {
	List(ctx context.Context, orgID int64, userID string, searchType model.SearchType) ([]model.SavedSearch, error)
	Get(ctx context.Context, orgID, id int64) (*model.SavedSearch, error)
	QueryExists(ctx context.Context, orgID int64, userID string, s *model.SavedSearch) (bool, error)
	Create(ctx context.Context, s *model.SavedSearch) error
	Delete(ctx context.Context, id int64) error
	UpsertPinned(ctx context.Context, s *model.SavedSearch) error
	DeletePinned(ctx context.Context, orgID int64, userID string, searchType model.SearchType) error
}

type SavedSearchService struct {
	repo  savedSearchRepository
	audit AuditRecorder
}

func NewSavedSearchService(repo savedSearchRepository, audit AuditRecorder) *SavedSearchService {
	return &SavedSearchService{repo: repo, audit: audit}
}

func (s *SavedSearchService) List(ctx context.Context, orgID int64, userID string, searchType model.SearchType) ([]model.SavedSearch, error) {
	searches, err := s.repo.List(ctx, orgID, userID, searchType)
	if err != nil {
		return nil, err
	}
	if searches == nil {
		searches = []model.SavedSearch{}
	}
	return searches, nil
}

type CreateSavedSearch struct {
	Name       string
	Query      string
	Sort       model.SortOption
	Type       model.SearchType
	Visibility model.Visibility
}

func invalidSearch(field, msg string) error {
	return errs.NewBadRequestError(msg, true, nil, []errs.FieldError{{Field: field, Error: msg}}, nil)
}

func (s *SavedSearchService) Create(ctx context.Context, org *model.Organization, actor model.Actor, req CreateSavedSearch) (*model.SavedSearch, error) {
	req.Name = strings.TrimSpace(req.Name)
	switch {
	case req.Name == "":
		return nil, invalidSearch("name", "Name is required")
	case req.Query == "":
		return nil, invalidSearch("query", "Query is required")
	case utf8.RuneCountInString(req.Query) > model.MaxSavedSearchQueryLength:
		return nil, invalidSearch("query", "Query is too long")
	case !req.Type.IsValid():
		return nil, invalidSearch("type", "Invalid search type")
	}
	if req.Sort == "" {
		req.Sort = model.SortDate
	}
	if !req.Sort.IsValid() {
		return nil, invalidSearch("sort", "Invalid sort")
	}
	if req.Visibility == "" {
		req.Visibility = model.VisibilityOwner
	}

	switch req.Visibility {
	case model.VisibilityOrganization:
		if !actor.Role.IsWriter() {
			return nil, errs.NewForbiddenError("You do not have permission to create organization searches", true)
		}
	case model.VisibilityOwner:
	default:
		return nil, invalidSearch("visibility", "Invalid visibility")
	}

	search := &model.SavedSearch{
		OrganizationID: &org.ID,
		OwnerID:        &actor.UserID,
		Name:           req.Name,
		Query:          req.Query,
		Sort:           req.Sort,
		Type:           req.Type,
		Visibility:     req.Visibility,
	}

	exists, err := s.repo.QueryExists(ctx, org.ID, actor.UserID, search)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, invalidSearch("query", "Query already exists")
	}

	if err := s.repo.Create(ctx, search); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, newAuditEntry(org.ID, actor, model.AuditSavedSearchCreate, &search.ID, map[string]any{
		"name":       search.Name,
		"query":      search.Query,
		"visibility": string(search.Visibility),
	}))
	return search, nil
}

func (s *SavedSearchService) Delete(ctx context.Context, org *model.Organization, actor model.Actor, id int64) error {
	search, err := s.repo.Get(ctx, org.ID, id)
	if err != nil {
		return err
	}

	switch {
	case search.IsGlobal:
		return errs.NewForbiddenError("Global searches cannot be deleted", true)
	case search.OwnerID != nil && *search.OwnerID == actor.UserID && search.Visibility != model.VisibilityOrganization:
	case search.Visibility == model.VisibilityOrganization && actor.Role.IsWriter():
	default:
		return errs.NewForbiddenError("You do not have permission to delete this search", true)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.audit.Record(ctx, newAuditEntry(org.ID, actor, model.AuditSavedSearchRemove, &id, map[string]any{
		"name":  search.Name,
		"query": search.Query,
	}))
	return nil
}

type PinSearch struct {
	Type  model.SearchType
	Query string
	Sort  model.SortOption
}

// Pin replaces the user's pinned search for the type.
func (s *SavedSearchService) Pin(ctx context.Context, orgID int64, userID string, req PinSearch) (*model.SavedSearch, error) {
	if !req.Type.IsValid() {
		return nil, invalidSearch("type", "Invalid search type")
	}
	if req.Query == "" || utf8.RuneCountInString(req.Query) > model.MaxSavedSearchQueryLength {
		return nil, invalidSearch("query", "Query must be between 1 and 8000 characters")
	}
	if req.Sort == "" {
		req.Sort = model.SortDate
	}
	if !req.Sort.IsValid() {
		return nil, invalidSearch("sort", "Invalid sort")
	}

	search := &model.SavedSearch{
		OrganizationID: &orgID,
		OwnerID:        &userID,
		Name:           "My Pinned Search",
		Query:          req.Query,
		Sort:           req.Sort,
		Type:           req.Type,
	}
	if err := s.repo.UpsertPinned(ctx, search); err != nil {
		return nil, err
	}
	return search, nil
}

func (s *SavedSearchService) Unpin(ctx context.Context, orgID int64, userID string, searchType model.SearchType) error {
	if !searchType.IsValid() {
		return invalidSearch("type", "Invalid search type")
	}
	return s.repo.DeletePinned(ctx, orgID, userID, searchType)
}
