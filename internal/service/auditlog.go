package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/deppfellow/trackr/internal/errs"
	"github.com/deppfellow/trackr/internal/model"
)

const (
	defaultAuditPageSize = 25
	maxAuditPageSize     = 100
)

type auditLogRepository interface {
	Create(ctx context.Context, entry *model.AuditLogEntry) error
	List(ctx context.Context, orgID int64, filter model.AuditLogFilter) ([]model.AuditLogEntry, error)
}

type AuditLogService struct {
	repo   auditLogRepository
	logger *zerolog.Logger
}

func NewAuditLogService(repo auditLogRepository, logger *zerolog.Logger) *AuditLogService {
	return &AuditLogService{repo: repo, logger: logger}
}

// Record stores entry. Failures are logged and swallowed.
func (s *AuditLogService) Record(ctx context.Context, entry *model.AuditLogEntry) {
	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Error().
			Err(err).
			Int64("organization_id", entry.OrganizationID).
			Str("event", entry.Event.Name()).
			Msg("failed to record audit log entry")
	}
}

// AuditLogQuery filters a listing. Event is an event name.
type AuditLogQuery struct {
	Event   string
	ActorID string
	Cursor  int64
	PerPage int
}

// List returns a page of entries, newest first. Only organization writers
// may read the log.
func (s *AuditLogService) List(ctx context.Context, orgID int64, role model.Role, q AuditLogQuery) (*model.AuditLogPage, error) {
	if !role.IsWriter() {
		return nil, errs.NewForbiddenError("You do not have permission to view the audit log", true)
	}

	filter := model.AuditLogFilter{ActorID: q.ActorID, Cursor: q.Cursor, Limit: q.PerPage}
	if filter.Limit <= 0 {
		filter.Limit = defaultAuditPageSize
	}
	if filter.Limit > maxAuditPageSize {
		filter.Limit = maxAuditPageSize
	}
	if q.Event != "" {
		event, ok := model.AuditLogEventFromName(q.Event)
		if !ok {
			code := "INVALID_EVENT"
			return nil, errs.NewBadRequestError("Invalid audit log event: "+q.Event, true, &code, nil, nil)
		}
		filter.Event = &event
	}

	rows, err := s.repo.List(ctx, orgID, filter)
	if err != nil {
		return nil, err
	}

	page := &model.AuditLogPage{Options: model.AuditLogEventNames()}
	if len(rows) > filter.Limit {
		rows = rows[:filter.Limit]
		page.NextCursor = ptr(rows[len(rows)-1].ID)
	}
	for i := range rows {
		rows[i].EventName = rows[i].Event.Name()
	}
	page.Rows = rows
	if page.Rows == nil {
		page.Rows = []model.AuditLogEntry{}
	}
	return page, nil
}
