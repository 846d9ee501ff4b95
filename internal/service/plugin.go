package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/deppfellow/trackr/internal/errs"
	"github.com/deppfellow/trackr/internal/lib/job"
	"github.com/deppfellow/trackr/internal/lib/metrics"
	"github.com/deppfellow/trackr/internal/lib/sqs"
	"github.com/deppfellow/trackr/internal/model"
)

type pluginRepository interface {
	GetPlugin(ctx context.Context, projectID int64, plugin string) (*model.ProjectPlugin, error)
	UpsertPlugin(ctx context.Context, p *model.ProjectPlugin) error
	DisablePlugin(ctx context.Context, projectID int64, plugin string) error
}

// PluginService manages the Amazon SQS data forwarding plugin.
type PluginService struct {
	repo      pluginRepository
	queue     job.Enqueuer
	audit     AuditRecorder
	newSender sqs.SenderFactory
	metrics   *metrics.Metrics
	logger    *zerolog.Logger
}

func NewPluginService(repo pluginRepository, queue job.Enqueuer, audit AuditRecorder, newSender sqs.SenderFactory, m *metrics.Metrics, logger *zerolog.Logger) *PluginService {
	return &PluginService{repo: repo, queue: queue, audit: audit, newSender: newSender, metrics: m, logger: logger}
}

// SQSPlugin is the plugin state returned to clients. The secret key is
// never echoed back.
type SQSPlugin struct {
	Enabled bool            `json:"enabled"`
	Config  model.SQSConfig `json:"config"`
}

func decodeSQSConfig(raw map[string]any) (model.SQSConfig, error) {
	var cfg model.SQSConfig
	data, err := json.Marshal(raw)
	if err != nil {
		return cfg, err
	}
	err = json.Unmarshal(data, &cfg)
	return cfg, err
}

func encodeSQSConfig(cfg model.SQSConfig) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	err = json.Unmarshal(data, &out)
	return out, err
}

func maskSQS(p *model.ProjectPlugin) (*SQSPlugin, error) {
	if p == nil {
		return &SQSPlugin{}, nil
	}
	cfg, err := decodeSQSConfig(p.Config)
	if err != nil {
		return nil, fmt.Errorf("decode sqs config: %w", err)
	}
	if cfg.SecretKey != "" {
		cfg.SecretKey = "********"
	}
	return &SQSPlugin{Enabled: p.Enabled, Config: cfg}, nil
}

func (s *PluginService) GetSQS(ctx context.Context, projectID int64) (*SQSPlugin, error) {
	p, err := s.repo.GetPlugin(ctx, projectID, model.PluginAmazonSQS)
	if err != nil {
		return nil, err
	}
	return maskSQS(p)
}

// ConfigureSQS validates and stores the plugin configuration and enables
// it. Omitting the secret key keeps the stored one.
func (s *PluginService) ConfigureSQS(ctx context.Context, org *model.Organization, actor model.Actor, project *model.Project, cfg model.SQSConfig) (*SQSPlugin, error) {
	if !actor.Role.IsWriter() {
		return nil, errs.NewForbiddenError("You do not have permission to configure plugins", true)
	}

	existing, err := s.repo.GetPlugin(ctx, project.ID, model.PluginAmazonSQS)
	if err != nil {
		return nil, err
	}
	if cfg.SecretKey == "" && existing != nil {
		if prev, err := decodeSQSConfig(existing.Config); err == nil {
			cfg.SecretKey = prev.SecretKey
		}
	}

	if err := sqs.Validate(cfg); err != nil {
		code := "INVALID_PLUGIN_CONFIG"
		return nil, errs.NewBadRequestError(err.Error(), true, &code, nil, nil)
	}

	config, err := encodeSQSConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode sqs config: %w", err)
	}
	plugin := &model.ProjectPlugin{ProjectID: project.ID, Plugin: model.PluginAmazonSQS, Enabled: true, Config: config}
	if err := s.repo.UpsertPlugin(ctx, plugin); err != nil {
		return nil, err
	}

	data := map[string]any{"plugin": model.PluginAmazonSQS, "project": project.Slug}
	s.audit.Record(ctx, newAuditEntry(org.ID, actor, model.AuditPluginEdit, &project.ID, data))
	if existing == nil || !existing.Enabled {
		s.audit.Record(ctx, newAuditEntry(org.ID, actor, model.AuditPluginEnable, &project.ID, data))
	}
	return maskSQS(plugin)
}

func (s *PluginService) DisableSQS(ctx context.Context, org *model.Organization, actor model.Actor, project *model.Project) error {
	if !actor.Role.IsWriter() {
		return errs.NewForbiddenError("You do not have permission to configure plugins", true)
	}
	if err := s.repo.DisablePlugin(ctx, project.ID, model.PluginAmazonSQS); err != nil {
		return err
	}
	s.audit.Record(ctx, newAuditEntry(org.ID, actor, model.AuditPluginDisable, &project.ID,
		map[string]any{"plugin": model.PluginAmazonSQS, "project": project.Slug}))
	return nil
}

// ForwardEvent queues ev for the project's queue when forwarding is on.
func (s *PluginService) ForwardEvent(ctx context.Context, ev *model.Event) error {
	p, err := s.repo.GetPlugin(ctx, ev.ProjectID, model.PluginAmazonSQS)
	if err != nil {
		return err
	}
	if p == nil || !p.Enabled {
		return nil
	}
	task, buildErr := job.NewSQSForwardTask(job.SQSForwardPayload{ProjectID: ev.ProjectID, Event: *ev})
	return enqueue(ctx, s.queue, task, buildErr)
}

func (s *PluginService) HandleForwardTask(ctx context.Context, t *asynq.Task) error {
	p, err := job.Decode[job.SQSForwardPayload](t)
	if err != nil {
		return err
	}

	plugin, err := s.repo.GetPlugin(ctx, p.ProjectID, model.PluginAmazonSQS)
	if err != nil {
		return err
	}
	if plugin == nil || !plugin.Enabled {
		s.metrics.SQSForwards.WithLabelValues(metrics.OutcomeDropped).Inc()
		return nil
	}
	cfg, err := decodeSQSConfig(plugin.Config)
	if err != nil {
		return job.Permanent(err)
	}

	sender, err := s.newSender(ctx, cfg)
	if err != nil {
		return err
	}
	body, err := json.Marshal(p.Event)
	if err != nil {
		return job.Permanent(err)
	}

	if err := sqs.Send(ctx, sender, cfg, p.Event.ID.String(), body); err != nil {
		s.metrics.SQSForwards.WithLabelValues(metrics.OutcomeFailure).Inc()
		if errors.Is(err, sqs.ErrPermanent) {
			s.logger.Warn().
				Err(err).
				Int64("project_id", p.ProjectID).
				Str("event_id", p.Event.ID.String()).
				Msg("sqs forwarding rejected, not retrying")
			return job.Permanent(err)
		}
		return err
	}
	s.metrics.SQSForwards.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return nil
}
