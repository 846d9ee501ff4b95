package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/deppfellow/trackr/internal/errs"
	"github.com/deppfellow/trackr/internal/model"
)

type onboardingRepository interface {
	List(ctx context.Context, orgID int64) ([]model.OnboardingTask, error)
	Upsert(ctx context.Context, task *model.OnboardingTask) (bool, error)
	Complete(ctx context.Context, task *model.OnboardingTask) (bool, error)
	MarkCompletionSeen(ctx context.Context, orgID int64, task model.OnboardingTaskName, at time.Time) error
	CountDone(ctx context.Context, orgID int64, tasks []model.OnboardingTaskName) (int, error)
}

type organizationOptionSetter interface {
	SetOrganizationOption(ctx context.Context, orgID int64, key string, value any) (bool, error)
}

type OnboardingService struct {
	repo    onboardingRepository
	options organizationOptionSetter
	logger  *zerolog.Logger
	now     func() time.Time
}

func NewOnboardingService(repo onboardingRepository, options organizationOptionSetter, logger *zerolog.Logger) *OnboardingService {
	return &OnboardingService{repo: repo, options: options, logger: logger, now: time.Now}
}

func (s *OnboardingService) List(ctx context.Context, orgID int64) ([]model.OnboardingTask, error) {
	tasks, err := s.repo.List(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []model.OnboardingTask{}
	}
	return tasks, nil
}

// UpdateOnboardingTask is a client update. Status and CompletionSeen are
// both optional, but one must be set.
type UpdateOnboardingTask struct {
	Task           model.OnboardingTaskName
	Status         *model.OnboardingStatus
	CompletionSeen *time.Time
}

func (s *OnboardingService) Update(ctx context.Context, orgID int64, userID string, req UpdateOnboardingTask) error {
	if !req.Task.IsKnown() {
		return errs.NewUnprocessableEntityError("Invalid onboarding task", []errs.FieldError{{Field: "task", Error: "is not a known task"}})
	}
	if req.Status == nil && req.CompletionSeen == nil {
		return errs.NewUnprocessableEntityError("Nothing to update", []errs.FieldError{{Field: "status", Error: "is required"}})
	}

	if req.Status != nil {
		switch *req.Status {
		case model.OnboardingSkipped:
		case model.OnboardingComplete:
			if !req.Task.IsUserCompletable() {
				return errs.NewUnprocessableEntityError("This task cannot be completed manually",
					[]errs.FieldError{{Field: "status", Error: "complete is not allowed for " + string(req.Task)}})
			}
		default:
			return errs.NewUnprocessableEntityError("Invalid onboarding status",
				[]errs.FieldError{{Field: "status", Error: "must be skipped or complete"}})
		}

		changed, err := s.repo.Upsert(ctx, &model.OnboardingTask{
			OrganizationID: orgID,
			Task:           req.Task,
			Status:         *req.Status,
			UserID:         &userID,
		})
		if err != nil {
			return err
		}
		if changed {
			if err := s.checkFinished(ctx, orgID); err != nil {
				return err
			}
		}
	}

	if req.CompletionSeen != nil {
		if err := s.repo.MarkCompletionSeen(ctx, orgID, req.Task, *req.CompletionSeen); err != nil {
			return err
		}
	}
	return nil
}

// Complete records a task the system saw happen.
func (s *OnboardingService) Complete(ctx context.Context, orgID int64, task model.OnboardingTaskName, userID string) error {
	t := &model.OnboardingTask{OrganizationID: orgID, Task: task}
	if userID != "" {
		t.UserID = &userID
	}
	changed, err := s.repo.Complete(ctx, t)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	s.logger.Debug().Int64("organization_id", orgID).Str("task", string(task)).Msg("onboarding task completed")
	return s.checkFinished(ctx, orgID)
}

// checkFinished sets the onboarding:complete option once every required
// task is done.
func (s *OnboardingService) checkFinished(ctx context.Context, orgID int64) error {
	required := model.RequiredOnboardingTasks()
	done, err := s.repo.CountDone(ctx, orgID, required)
	if err != nil {
		return err
	}
	if done < len(required) {
		return nil
	}
	set, err := s.options.SetOrganizationOption(ctx, orgID, model.OrgOptionOnboardingComplete, s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return err
	}
	if set {
		s.logger.Info().Int64("organization_id", orgID).Msg("organization finished onboarding")
	}
	return nil
}
