package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/deppfellow/trackr/internal/errs"
	"github.com/deppfellow/trackr/internal/lib/metrics"
	"github.com/deppfellow/trackr/internal/model"
	"github.com/deppfellow/trackr/internal/repository"
)

type eventRepository interface {
	SaveEvent(ctx context.Context, ev *model.Event, hash string) (*repository.SavedEvent, error)
}

// EventForwarder hands stored events to data forwarding plugins.
type EventForwarder interface {
	ForwardEvent(ctx context.Context, ev *model.Event) error
}

type EventService struct {
	repo       eventRepository
	onboarding OnboardingCompleter
	notifier   GroupNotifier
	forwarder  EventForwarder
	metrics    *metrics.Metrics
	logger     *zerolog.Logger
	now        func() time.Time
}

func NewEventService(
	repo eventRepository,
	onboarding OnboardingCompleter,
	notifier GroupNotifier,
	forwarder EventForwarder,
	m *metrics.Metrics,
	logger *zerolog.Logger,
) *EventService {
	return &EventService{
		repo:       repo,
		onboarding: onboarding,
		notifier:   notifier,
		forwarder:  forwarder,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// IngestEvent is the accepted event payload.
type IngestEvent struct {
	Message        string
	Level          string
	Platform       string
	Culprit        string
	ExceptionType  string
	ExceptionValue string
	Fingerprint    []string
	Tags           map[string]string
	Release        string
	Environment    string
}

// EventHash computes the grouping hash: the fingerprint when given, else
// the exception, else the message. Parts are joined with NUL so adjacent
// values cannot run together.
func EventHash(ev *model.Event) string {
	var basis string
	switch {
	case len(ev.Fingerprint) > 0:
		basis = strings.Join(ev.Fingerprint, "\x00")
	case ev.ExceptionType != "" || ev.ExceptionValue != "":
		basis = ev.ExceptionType + "\x00" + ev.ExceptionValue
	default:
		basis = ev.Message
	}
	sum := md5.Sum([]byte(basis))
	return hex.EncodeToString(sum[:])
}

func (s *EventService) Ingest(ctx context.Context, org *model.Organization, project *model.Project, req IngestEvent) (*model.IngestResult, error) {
	if req.Message == "" && req.ExceptionType == "" && req.ExceptionValue == "" {
		return nil, errs.NewBadRequestError("An event needs a message or an exception", true, nil,
			[]errs.FieldError{{Field: "message", Error: "message or exception is required"}}, nil)
	}
	if req.Level == "" {
		req.Level = "error"
	}
	if !model.IsValidLevel(req.Level) {
		return nil, errs.NewBadRequestError("Invalid level", true, nil,
			[]errs.FieldError{{Field: "level", Error: "must be one of fatal, error, warning, info, debug"}}, nil)
	}

	ev := &model.Event{
		ID:             uuid.New(),
		ProjectID:      project.ID,
		Message:        req.Message,
		Level:          req.Level,
		Platform:       req.Platform,
		Culprit:        req.Culprit,
		ExceptionType:  req.ExceptionType,
		ExceptionValue: req.ExceptionValue,
		Fingerprint:    req.Fingerprint,
		Tags:           req.Tags,
		Release:        req.Release,
		Environment:    req.Environment,
		Received:       s.now().UTC(),
	}
	if ev.Fingerprint == nil {
		ev.Fingerprint = []string{}
	}
	if ev.Tags == nil {
		ev.Tags = map[string]string{}
	}

	saved, err := s.repo.SaveEvent(ctx, ev, EventHash(ev))
	if err != nil {
		return nil, err
	}
	s.metrics.EventsIngested.WithLabelValues(strconv.FormatBool(saved.IsNew)).Inc()

	log := s.logger.With().
		Str("event_id", ev.ID.String()).
		Int64("project_id", project.ID).
		Int64("group_id", ev.GroupID).
		Logger()

	if saved.FirstEvent {
		if err := s.onboarding.Complete(ctx, org.ID, model.TaskFirstEvent, ""); err != nil {
			log.Error().Err(err).Msg("failed to complete first_event onboarding task")
		}
	}

	if saved.IsNew {
		if err := s.notifier.Notify(ctx, &model.Notification{
			Type:         model.NotifyAlerts,
			Organization: org,
			Project:      project,
			Group:        saved.Group,
		}); err != nil {
			log.Error().Err(err).Msg("failed to queue new issue notifications")
		}
	}

	if err := s.forwarder.ForwardEvent(ctx, ev); err != nil {
		log.Error().Err(err).Msg("failed to queue event forwarding")
	}

	return &model.IngestResult{ID: ev.ID, GroupID: ev.GroupID, IsNew: saved.IsNew}, nil
}
