package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deppfellow/trackr/internal/errs"
	"github.com/deppfellow/trackr/internal/model"
)

func TestResolveOrganization(t *testing.T) {
	ctx := context.Background()

	t.Run("member", func(t *testing.T) {
		repo := &mockTenancyRepo{}
		repo.On("GetOrganizationBySlug", ctx, "acme").Return(testOrg, nil)
		repo.On("GetMember", ctx, testOrg.ID, "u1").Return(&model.Member{UserID: "u1", Role: model.RoleMember}, nil)

		org, member, err := NewTenancyService(repo).ResolveOrganization(ctx, "acme", "u1")
		require.NoError(t, err)
		assert.Equal(t, testOrg.ID, org.ID)
		assert.Equal(t, model.RoleMember, member.Role)
	})

	t.Run("outsider sees not found", func(t *testing.T) {
		repo := &mockTenancyRepo{}
		repo.On("GetOrganizationBySlug", ctx, "acme").Return(testOrg, nil)
		repo.On("GetMember", ctx, testOrg.ID, "stranger").Return(nil, noRows("members"))

		_, _, err := NewTenancyService(repo).ResolveOrganization(ctx, "acme", "stranger")
		assert.True(t, errs.HasStatus(err, http.StatusNotFound))
	})

	t.Run("unknown slug", func(t *testing.T) {
		repo := &mockTenancyRepo{}
		repo.On("GetOrganizationBySlug", ctx, "nope").Return(nil, noRows("organizations"))

		_, _, err := NewTenancyService(repo).ResolveOrganization(ctx, "nope", "u1")
		assert.True(t, errs.HasStatus(err, http.StatusNotFound))
	})

	t.Run("pending deletion", func(t *testing.T) {
		repo := &mockTenancyRepo{}
		repo.On("GetOrganizationBySlug", ctx, "gone").Return(&model.Organization{ID: 2, Slug: "gone", Status: "pending_deletion"}, nil)

		_, _, err := NewTenancyService(repo).ResolveOrganization(ctx, "gone", "u1")
		assert.True(t, errs.HasStatus(err, http.StatusNotFound))
	})
}

func TestGetProject_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := &mockTenancyRepo{}
	repo.On("GetProject", ctx, testOrg.ID, "web").Return(nil, noRows("projects"))

	_, err := NewTenancyService(repo).GetProject(ctx, testOrg.ID, "web")
	assert.True(t, errs.HasStatus(err, http.StatusNotFound))
}
