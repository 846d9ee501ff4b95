package handler

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/deppfellow/trackr/internal/middleware"
	"github.com/deppfellow/trackr/internal/model"
	"github.com/deppfellow/trackr/internal/server"
	"github.com/deppfellow/trackr/internal/service"
	"github.com/deppfellow/trackr/internal/validation"
)

type savedSearchService interface {
	List(ctx context.Context, orgID int64, userID string, searchType model.SearchType) ([]model.SavedSearch, error)
	Create(ctx context.Context, org *model.Organization, actor model.Actor, req service.CreateSavedSearch) (*model.SavedSearch, error)
	Delete(ctx context.Context, org *model.Organization, actor model.Actor, id int64) error
	Pin(ctx context.Context, orgID int64, userID string, req service.PinSearch) (*model.SavedSearch, error)
	Unpin(ctx context.Context, orgID int64, userID string, searchType model.SearchType) error
}

type SavedSearchHandler struct {
	Handler
	searches savedSearchService
}

func NewSavedSearchHandler(s *server.Server, searches savedSearchService) *SavedSearchHandler {
	return &SavedSearchHandler{Handler: NewHandler(s), searches: searches}
}

type SearchTypeRequest struct {
	Type model.SearchType `query:"type"`
}

func (r *SearchTypeRequest) Validate() error {
	return nil
}

func (h *SavedSearchHandler) List(c echo.Context, req *SearchTypeRequest) ([]model.SavedSearch, error) {
	return h.searches.List(c.Request().Context(), middleware.GetOrganization(c).ID, middleware.GetUserID(c), req.Type)
}

type CreateSearchRequest struct {
	Name       string           `json:"name" validate:"required,max=128"`
	Query      string           `json:"query" validate:"required"`
	Sort       model.SortOption `json:"sort"`
	Type       model.SearchType `json:"type"`
	Visibility model.Visibility `json:"visibility"`
}

func (r *CreateSearchRequest) Validate() error {
	return validation.Struct(r)
}

func (h *SavedSearchHandler) Create(c echo.Context, req *CreateSearchRequest) (*model.SavedSearch, error) {
	return h.searches.Create(c.Request().Context(), middleware.GetOrganization(c), middleware.GetActor(c),
		service.CreateSavedSearch{
			Name:       req.Name,
			Query:      req.Query,
			Sort:       req.Sort,
			Type:       req.Type,
			Visibility: req.Visibility,
		})
}

func (h *SavedSearchHandler) Delete(c echo.Context, req *IDRequest) error {
	return h.searches.Delete(c.Request().Context(), middleware.GetOrganization(c), middleware.GetActor(c), req.ID)
}

type PinSearchRequest struct {
	Type  model.SearchType `json:"type"`
	Query string           `json:"query" validate:"required"`
	Sort  model.SortOption `json:"sort"`
}

func (r *PinSearchRequest) Validate() error {
	return validation.Struct(r)
}

func (h *SavedSearchHandler) Pin(c echo.Context, req *PinSearchRequest) (*model.SavedSearch, error) {
	return h.searches.Pin(c.Request().Context(), middleware.GetOrganization(c).ID, middleware.GetUserID(c),
		service.PinSearch{Type: req.Type, Query: req.Query, Sort: req.Sort})
}

func (h *SavedSearchHandler) Unpin(c echo.Context, req *SearchTypeRequest) error {
	return h.searches.Unpin(c.Request().Context(), middleware.GetOrganization(c).ID, middleware.GetUserID(c), req.Type)
}
