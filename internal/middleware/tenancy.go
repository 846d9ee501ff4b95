package middleware

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/deppfellow/trackr/internal/errs"
	"github.com/deppfellow/trackr/internal/model"
)

type tenantResolver interface {
	GetOrganization(ctx context.Context, slug string) (*model.Organization, error)
	ResolveOrganization(ctx context.Context, slug, userID string) (*model.Organization, *model.Member, error)
	GetProject(ctx context.Context, orgID int64, slug string) (*model.Project, error)
}

// TenancyMiddleware loads the organization and project named in the path.
type TenancyMiddleware struct {
	tenants tenantResolver
}

func NewTenancyMiddleware(tenants tenantResolver) *TenancyMiddleware {
	return &TenancyMiddleware{tenants: tenants}
}

// Organization resolves the :org path parameter for the authenticated
// user. Non-members get the same 404 as an unknown slug. An API key only
// opens its own organization and carries no member role.
func (t *TenancyMiddleware) Organization(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		org, err := t.resolve(c)
		if err != nil {
			return err
		}
		c.Set(OrganizationKey, org)

		if txn := newrelic.FromContext(c.Request().Context()); txn != nil {
			txn.AddAttribute("organization.slug", org.Slug)
		}
		return next(c)
	}
}

func (t *TenancyMiddleware) resolve(c echo.Context) (*model.Organization, error) {
	ctx := c.Request().Context()
	if key := GetAPIKey(c); key != nil {
		org, err := t.tenants.GetOrganization(ctx, c.Param("org"))
		if err != nil {
			return nil, err
		}
		if org.ID != key.OrganizationID {
			return nil, errs.NewNotFoundError("Organization not found", true, nil)
		}
		return org, nil
	}

	org, member, err := t.tenants.ResolveOrganization(ctx, c.Param("org"), GetUserID(c))
	if err != nil {
		return nil, err
	}
	c.Set(MemberKey, member)
	return org, nil
}

// Project resolves :project inside the organization. It must run after
// Organization.
func (t *TenancyMiddleware) Project(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		org := GetOrganization(c)
		project, err := t.tenants.GetProject(c.Request().Context(), org.ID, c.Param("project"))
		if err != nil {
			return err
		}
		c.Set(ProjectKey, project)
		return next(c)
	}
}
