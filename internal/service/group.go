package service

import (
	"context"
	"errors"
	"sort"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/deppfellow/trackr/internal/errs"
	"github.com/deppfellow/trackr/internal/lib/job"
	"github.com/deppfellow/trackr/internal/lib/metrics"
	"github.com/deppfellow/trackr/internal/model"
	"github.com/deppfellow/trackr/internal/repository"
	"github.com/deppfellow/trackr/internal/sqlerr"
)

const (
	// DefaultMergedGroupLimit bounds GetAllMergedGroupIDs.
	DefaultMergedGroupLimit = 1000

	defaultGroupEventLimit = 100
	maxGroupEventLimit     = 1000
)

type groupRepository interface {
	GetGroup(ctx context.Context, orgID, id int64) (*model.Group, error)
	GetGroups(ctx context.Context, orgID int64, ids []int64) ([]model.Group, error)
	GetRedirect(ctx context.Context, orgID, previousGroupID int64) (*model.GroupRedirect, error)
	ListRedirectsTouching(ctx context.Context, ids []int64) ([]model.GroupRedirect, error)
	MarkMerging(ctx context.Context, orgID int64, parent *model.Group, children []model.Group) error
	CompleteMerge(ctx context.Context, parentID, childID int64) error
	UpdateStatus(ctx context.Context, orgID int64, ids []int64, status model.GroupStatus) ([]model.Group, error)
}

type groupEventLister interface {
	ListForGroups(ctx context.Context, groupIDs []int64, limit int) ([]model.Event, error)
}

// GroupNotifier fans group changes out to members and alerting
// integrations.
type GroupNotifier interface {
	Notify(ctx context.Context, n *model.Notification) error
	CloseAlerts(ctx context.Context, org *model.Organization, group *model.Group) error
}

type GroupService struct {
	repo     groupRepository
	events   groupEventLister
	queue    job.Enqueuer
	audit    AuditRecorder
	notifier GroupNotifier
	metrics  *metrics.Metrics
	logger   *zerolog.Logger
}

func NewGroupService(
	repo groupRepository,
	events groupEventLister,
	queue job.Enqueuer,
	audit AuditRecorder,
	notifier GroupNotifier,
	m *metrics.Metrics,
	logger *zerolog.Logger,
) *GroupService {
	return &GroupService{
		repo:     repo,
		events:   events,
		queue:    queue,
		audit:    audit,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
	}
}

// ResolveGroup loads a group of the organization. When id was merged away
// the surviving group is returned with redirected set.
func (s *GroupService) ResolveGroup(ctx context.Context, orgID, id int64) (group *model.Group, redirected bool, err error) {
	group, err = s.repo.GetGroup(ctx, orgID, id)
	if err == nil {
		return group, false, nil
	}
	if !sqlerr.IsNoRows(err) {
		return nil, false, err
	}

	redirect, err := s.repo.GetRedirect(ctx, orgID, id)
	if err != nil {
		return nil, false, err
	}
	group, err = s.repo.GetGroup(ctx, orgID, redirect.GroupID)
	if err != nil {
		return nil, false, err
	}
	return group, true, nil
}

// GetAllMergedGroupIDs expands ids with every group id linked to them
// through redirects, transitively, up to maxSize ids.
func (s *GroupService) GetAllMergedGroupIDs(ctx context.Context, ids []int64, maxSize int) ([]int64, error) {
	if maxSize <= 0 {
		maxSize = DefaultMergedGroupLimit
	}

	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	frontier := out
	for len(frontier) > 0 && len(out) < maxSize {
		redirects, err := s.repo.ListRedirectsTouching(ctx, frontier)
		if err != nil {
			return nil, err
		}

		var next []int64
	rows:
		for _, r := range redirects {
			for _, id := range [2]int64{r.GroupID, r.PreviousGroupID} {
				if seen[id] {
					continue
				}
				if len(out) >= maxSize {
					break rows
				}
				seen[id] = true
				out = append(out, id)
				next = append(next, id)
			}
		}
		frontier = next
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func badMerge(msg string) error {
	code := "INVALID_MERGE"
	return errs.NewBadRequestError(msg, true, &code, nil, nil)
}

// MergeGroups folds every listed group into the most seen one. The move of
// events and hashes happens in background tasks.
func (s *GroupService) MergeGroups(ctx context.Context, org *model.Organization, actor model.Actor, ids []int64) (*model.MergeResult, error) {
	unique := make(map[int64]bool, len(ids))
	for _, id := range ids {
		unique[id] = true
	}
	if len(unique) < 2 {
		return nil, badMerge("At least two distinct groups are required to merge")
	}

	distinct := make([]int64, 0, len(unique))
	for id := range unique {
		distinct = append(distinct, id)
	}
	groups, err := s.repo.GetGroups(ctx, org.ID, distinct)
	if err != nil {
		return nil, err
	}
	if len(groups) != len(distinct) {
		return nil, badMerge("One or more groups do not exist")
	}

	for _, g := range groups {
		if g.ProjectID != groups[0].ProjectID {
			return nil, badMerge("Only groups from the same project can be merged")
		}
		if g.Status == model.GroupStatusPendingMerge {
			return nil, badMerge("A group is already being merged")
		}
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].TimesSeen != groups[j].TimesSeen {
			return groups[i].TimesSeen > groups[j].TimesSeen
		}
		return groups[i].ID < groups[j].ID
	})
	parent := groups[0]
	children := groups[1:]

	if err := s.repo.MarkMerging(ctx, org.ID, &parent, children); err != nil {
		if errors.Is(err, repository.ErrMergeConflict) {
			return nil, badMerge("A group is already being merged")
		}
		return nil, err
	}

	result := &model.MergeResult{Parent: parent.ID, Children: make([]int64, 0, len(children))}
	for _, child := range children {
		task, buildErr := job.NewGroupMergeTask(job.GroupMergePayload{
			OrganizationID: org.ID,
			ParentID:       parent.ID,
			ChildID:        child.ID,
		})
		if err := enqueue(ctx, s.queue, task, buildErr); err != nil {
			return nil, err
		}
		result.Children = append(result.Children, child.ID)
	}
	sort.Slice(result.Children, func(i, j int) bool { return result.Children[i] < result.Children[j] })

	s.audit.Record(ctx, newAuditEntry(org.ID, actor, model.AuditIssueMerge, &parent.ID, map[string]any{
		"parent":   parent.ID,
		"children": result.Children,
	}))
	return result, nil
}

// HandleMergeTask completes one child's merge.
func (s *GroupService) HandleMergeTask(ctx context.Context, t *asynq.Task) error {
	p, err := job.Decode[job.GroupMergePayload](t)
	if err != nil {
		return err
	}
	if err := s.repo.CompleteMerge(ctx, p.ParentID, p.ChildID); err != nil {
		return err
	}
	s.metrics.GroupsMerged.Inc()
	s.logger.Info().
		Int64("organization_id", p.OrganizationID).
		Int64("parent_id", p.ParentID).
		Int64("child_id", p.ChildID).
		Msg("group merge completed")
	return nil
}

// UpdateStatus bulk-sets a client-settable status. Resolving closes open
// alerts and notifies participants.
func (s *GroupService) UpdateStatus(ctx context.Context, org *model.Organization, actor model.Actor, ids []int64, status model.GroupStatus) ([]model.Group, error) {
	if !status.IsSettable() {
		code := "INVALID_STATUS"
		return nil, errs.NewBadRequestError("Invalid status: "+string(status), true, &code, nil, nil)
	}
	if len(ids) == 0 {
		return nil, errs.NewBadRequestError("No groups given", true, nil, nil, nil)
	}

	groups, err := s.repo.UpdateStatus(ctx, org.ID, ids, status)
	if err != nil {
		return nil, err
	}

	if status == model.GroupStatusResolved {
		for i := range groups {
			g := &groups[i]
			s.audit.Record(ctx, newAuditEntry(org.ID, actor, model.AuditIssueResolve, &g.ID, map[string]any{"title": g.Title}))

			if err := s.notifier.CloseAlerts(ctx, org, g); err != nil {
				s.logger.Error().Err(err).Int64("group_id", g.ID).Msg("failed to queue alert close")
			}
			if err := s.notifier.Notify(ctx, &model.Notification{
				Type:         model.NotifyWorkflow,
				Organization: org,
				Group:        g,
			}); err != nil {
				s.logger.Error().Err(err).Int64("group_id", g.ID).Msg("failed to queue workflow notification")
			}
		}
	}

	if groups == nil {
		groups = []model.Group{}
	}
	return groups, nil
}

// ListGroupEvents lists the events of a group and of every group merged
// into it. A merged-away id lists the events of the group it now points to.
func (s *GroupService) ListGroupEvents(ctx context.Context, orgID, id int64, limit int) ([]model.Event, error) {
	group, _, err := s.ResolveGroup(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	id = group.ID
	if limit <= 0 {
		limit = defaultGroupEventLimit
	}
	if limit > maxGroupEventLimit {
		limit = maxGroupEventLimit
	}

	ids, err := s.GetAllMergedGroupIDs(ctx, []int64{id}, DefaultMergedGroupLimit)
	if err != nil {
		return nil, err
	}
	events, err := s.events.ListForGroups(ctx, ids, limit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []model.Event{}
	}
	return events, nil
}
