package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/deppfellow/trackr/internal/errs"
	"github.com/deppfellow/trackr/internal/model"
)

type mockOnboardingRepo struct {
	mock.Mock
}

func (m *mockOnboardingRepo) List(ctx context.Context, orgID int64) ([]model.OnboardingTask, error) {
	args := m.Called(ctx, orgID)
	t, _ := args.Get(0).([]model.OnboardingTask)
	return t, args.Error(1)
}

func (m *mockOnboardingRepo) Upsert(ctx context.Context, task *model.OnboardingTask) (bool, error) {
	args := m.Called(ctx, task)
	return args.Bool(0), args.Error(1)
}

func (m *mockOnboardingRepo) Complete(ctx context.Context, task *model.OnboardingTask) (bool, error) {
	args := m.Called(ctx, task)
	return args.Bool(0), args.Error(1)
}

func (m *mockOnboardingRepo) MarkCompletionSeen(ctx context.Context, orgID int64, task model.OnboardingTaskName, at time.Time) error {
	return m.Called(ctx, orgID, task, at).Error(0)
}

func (m *mockOnboardingRepo) CountDone(ctx context.Context, orgID int64, tasks []model.OnboardingTaskName) (int, error) {
	args := m.Called(ctx, orgID, tasks)
	return args.Int(0), args.Error(1)
}

type optionRecorder struct {
	values map[string]any
}

func (o *optionRecorder) SetOrganizationOption(_ context.Context, _ int64, key string, value any) (bool, error) {
	if _, ok := o.values[key]; ok {
		return false, nil
	}
	o.values[key] = value
	return true, nil
}

func newOnboardingFixture() (*OnboardingService, *mockOnboardingRepo, *optionRecorder) {
	repo := &mockOnboardingRepo{}
	options := &optionRecorder{values: map[string]any{}}
	svc := NewOnboardingService(repo, options, testLogger())
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc, repo, options
}

func TestOnboardingComplete_FinishesOrganization(t *testing.T) {
	ctx := context.Background()
	svc, repo, options := newOnboardingFixture()
	required := len(model.RequiredOnboardingTasks())

	repo.On("Complete", ctx, mock.MatchedBy(func(task *model.OnboardingTask) bool {
		return task.Task == model.TaskFirstEvent && *task.UserID == "u1"
	})).Return(true, nil)
	repo.On("CountDone", ctx, testOrg.ID, mock.Anything).Return(required, nil)

	require.NoError(t, svc.Complete(ctx, testOrg.ID, model.TaskFirstEvent, "u1"))
	assert.Equal(t, "2026-03-01T12:00:00Z", options.values[model.OrgOptionOnboardingComplete])
}

func TestOnboardingComplete_AlreadyDone(t *testing.T) {
	ctx := context.Background()
	svc, repo, options := newOnboardingFixture()
	repo.On("Complete", ctx, mock.Anything).Return(false, nil)

	require.NoError(t, svc.Complete(ctx, testOrg.ID, model.TaskFirstEvent, ""))
	repo.AssertNotCalled(t, "CountDone", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, options.values)
}

func TestOnboardingUpdate(t *testing.T) {
	ctx := context.Background()
	skipped := model.OnboardingSkipped
	complete := model.OnboardingComplete
	bogus := model.OnboardingStatus("finished")

	t.Run("rejects unknown task", func(t *testing.T) {
		svc, _, _ := newOnboardingFixture()
		err := svc.Update(ctx, testOrg.ID, "u1", UpdateOnboardingTask{Task: "learn_go", Status: &skipped})
		assert.True(t, errs.HasStatus(err, http.StatusUnprocessableEntity))
	})

	t.Run("rejects empty update", func(t *testing.T) {
		svc, _, _ := newOnboardingFixture()
		err := svc.Update(ctx, testOrg.ID, "u1", UpdateOnboardingTask{Task: model.TaskSourceMaps})
		assert.True(t, errs.HasStatus(err, http.StatusUnprocessableEntity))
	})

	t.Run("rejects manual completion of observed task", func(t *testing.T) {
		svc, _, _ := newOnboardingFixture()
		err := svc.Update(ctx, testOrg.ID, "u1", UpdateOnboardingTask{Task: model.TaskFirstEvent, Status: &complete})
		assert.True(t, errs.HasStatus(err, http.StatusUnprocessableEntity))
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		svc, _, _ := newOnboardingFixture()
		err := svc.Update(ctx, testOrg.ID, "u1", UpdateOnboardingTask{Task: model.TaskSourceMaps, Status: &bogus})
		assert.True(t, errs.HasStatus(err, http.StatusUnprocessableEntity))
	})

	t.Run("skips and marks seen", func(t *testing.T) {
		svc, repo, options := newOnboardingFixture()
		seen := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
		repo.On("Upsert", ctx, mock.MatchedBy(func(task *model.OnboardingTask) bool {
			return task.Task == model.TaskFirstEvent && task.Status == model.OnboardingSkipped
		})).Return(true, nil)
		repo.On("CountDone", ctx, testOrg.ID, mock.Anything).Return(1, nil)
		repo.On("MarkCompletionSeen", ctx, testOrg.ID, model.TaskFirstEvent, seen).Return(nil)

		err := svc.Update(ctx, testOrg.ID, "u1", UpdateOnboardingTask{
			Task: model.TaskFirstEvent, Status: &skipped, CompletionSeen: &seen,
		})
		require.NoError(t, err)
		repo.AssertExpectations(t)
		assert.Empty(t, options.values)
	})

	t.Run("skipping a completed task changes nothing", func(t *testing.T) {
		svc, repo, options := newOnboardingFixture()
		repo.On("Upsert", ctx, mock.Anything).Return(false, nil)

		err := svc.Update(ctx, testOrg.ID, "u1", UpdateOnboardingTask{Task: model.TaskSourceMaps, Status: &skipped})
		require.NoError(t, err)
		repo.AssertNotCalled(t, "CountDone", mock.Anything, mock.Anything, mock.Anything)
		assert.Empty(t, options.values)
	})
}

func TestRequiredOnboardingTasks_AreReachable(t *testing.T) {
	// Tasks completed by the system when it observes the action.
	observed := map[model.OnboardingTaskName]bool{
		model.TaskFirstEvent:   true,
		model.TaskIntegrations: true,
	}
	for _, task := range model.RequiredOnboardingTasks() {
		assert.True(t, task.IsUserCompletable() || observed[task], "%s can never be completed", task)
	}
}
