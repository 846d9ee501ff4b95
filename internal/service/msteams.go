package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/deppfellow/trackr/internal/errs"
	"github.com/deppfellow/trackr/internal/lib/job"
	"github.com/deppfellow/trackr/internal/lib/msteams"
	"github.com/deppfellow/trackr/internal/model"
	"github.com/deppfellow/trackr/internal/sqlerr"
)

type msteamsRepository interface {
	GetIntegration(ctx context.Context, id int64) (*model.Integration, error)
	GetIntegrationByExternalID(ctx context.Context, provider, externalID string) (*model.Integration, error)
	ListInstallations(ctx context.Context, integrationID int64) ([]model.OrganizationIntegration, error)
	GetIdentity(ctx context.Context, provider, idpExternalID, externalID string) (*model.Identity, error)
	CreateIdentity(ctx context.Context, identity *model.Identity) error
	DeleteIdentity(ctx context.Context, id int64) error
}

type memberLookup interface {
	GetMember(ctx context.Context, orgID int64, userID string) (*model.Member, error)
}

type linkSigner interface {
	Sign(params msteams.LinkParams) (string, error)
	Verify(token string) (*msteams.LinkParams, error)
}

type activitySender interface {
	Send(ctx context.Context, serviceURL, conversationID string, activity json.RawMessage) error
}

// MSTeamsService runs the Teams bot and links Teams users to trackr users.
type MSTeamsService struct {
	repo      msteamsRepository
	members   memberLookup
	signer    linkSigner
	sender    activitySender
	queue     job.Enqueuer
	audit     AuditRecorder
	publicURL string
	logger    *zerolog.Logger
}

func NewMSTeamsService(
	repo msteamsRepository,
	members memberLookup,
	signer linkSigner,
	sender activitySender,
	queue job.Enqueuer,
	audit AuditRecorder,
	publicURL string,
	logger *zerolog.Logger,
) *MSTeamsService {
	return &MSTeamsService{
		repo:      repo,
		members:   members,
		signer:    signer,
		sender:    sender,
		queue:     queue,
		audit:     audit,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		logger:    logger,
	}
}

// HandleActivity answers one inbound Bot Framework activity. Replies are
// queued, never posted inline.
func (s *MSTeamsService) HandleActivity(ctx context.Context, a *msteams.Activity) error {
	switch a.Type {
	case msteams.ActivityConversationUpdate:
		if !a.BotAdded() {
			return nil
		}
		if !a.IsTeamInstall() {
			return s.reply(ctx, a.ServiceURL, a.Conversation.ID, msteams.PersonalWelcomeCard())
		}
		token, err := s.signer.Sign(msteams.LinkParams{
			TeamsUserID:    a.From.ID,
			TeamID:         a.TeamID(),
			TenantID:       a.TenantID(),
			ServiceURL:     a.ServiceURL,
			ConversationID: a.Conversation.ID,
		})
		if err != nil {
			return err
		}
		installURL := s.publicURL + "/extensions/msteams/configure/?signed_params=" + token
		return s.reply(ctx, a.ServiceURL, a.Conversation.ID, msteams.TeamWelcomeCard(installURL))

	case msteams.ActivityMessage:
		card, err := s.commandCard(ctx, a)
		if err != nil {
			return err
		}
		return s.reply(ctx, a.ServiceURL, a.Conversation.ID, card)
	}

	s.logger.Debug().Str("activity_type", a.Type).Msg("ignoring msteams activity")
	return nil
}

func (s *MSTeamsService) commandCard(ctx context.Context, a *msteams.Activity) (msteams.Card, error) {
	command := a.Command()
	switch command {
	case "help":
		return msteams.HelpCard(), nil
	case "link", "unlink":
	default:
		return msteams.UnrecognizedCommandCard(command), nil
	}

	integration, err := s.repo.GetIntegrationByExternalID(ctx, model.IntegrationMSTeams, a.TenantID())
	if err != nil {
		if sqlerr.IsNoRows(err) {
			return msteams.NotInstalledCard(), nil
		}
		return nil, err
	}
	installs, err := s.repo.ListInstallations(ctx, integration.ID)
	if err != nil {
		return nil, err
	}
	if len(installs) == 0 {
		return msteams.NotInstalledCard(), nil
	}

	identity, err := s.repo.GetIdentity(ctx, model.IntegrationMSTeams, integration.ExternalID, a.From.ID)
	if err != nil && !sqlerr.IsNoRows(err) {
		return nil, err
	}
	linked := identity != nil

	if command == "link" && linked {
		return msteams.AlreadyLinkedCard(), nil
	}
	if command == "unlink" && !linked {
		return msteams.NotLinkedCard(), nil
	}

	token, err := s.signer.Sign(msteams.LinkParams{
		IntegrationID:  integration.ID,
		OrganizationID: installs[0].OrganizationID,
		TeamsUserID:    a.From.ID,
		TeamID:         a.TeamID(),
		TenantID:       a.TenantID(),
		ServiceURL:     a.ServiceURL,
		ConversationID: a.Conversation.ID,
	})
	if err != nil {
		return nil, err
	}
	if command == "link" {
		return msteams.LinkIdentityCard(s.publicURL + "/extensions/msteams/link-identity/" + token + "/"), nil
	}
	return msteams.UnlinkIdentityCard(s.publicURL + "/extensions/msteams/unlink-identity/" + token + "/"), nil
}

// LinkConfirmation is what the link and unlink pages show before the user
// confirms.
type LinkConfirmation struct {
	Integration    string `json:"integration"`
	OrganizationID int64  `json:"organization_id"`
	TeamsUserID    string `json:"teams_user_id"`
	TenantID       string `json:"tenant_id,omitempty"`
}

func (s *MSTeamsService) verify(ctx context.Context, token string) (*msteams.LinkParams, *model.Integration, error) {
	params, err := s.signer.Verify(token)
	if err != nil {
		code := "INVALID_LINK"
		msg := "This link is invalid"
		if errors.Is(err, msteams.ErrExpiredLink) {
			code = "EXPIRED_LINK"
			msg = "This link has expired, request a new one from the bot"
		}
		return nil, nil, errs.NewBadRequestError(msg, true, &code, nil, nil)
	}
	integration, err := s.repo.GetIntegration(ctx, params.IntegrationID)
	if err != nil {
		if sqlerr.IsNoRows(err) {
			code := "INVALID_LINK"
			return nil, nil, errs.NewBadRequestError("This link is invalid", true, &code, nil, nil)
		}
		return nil, nil, err
	}
	return params, integration, nil
}

func (s *MSTeamsService) GetLinkIdentity(ctx context.Context, token string) (*LinkConfirmation, error) {
	params, integration, err := s.verify(ctx, token)
	if err != nil {
		return nil, err
	}
	return &LinkConfirmation{
		Integration:    integration.Name,
		OrganizationID: params.OrganizationID,
		TeamsUserID:    params.TeamsUserID,
		TenantID:       params.TenantID,
	}, nil
}

// LinkIdentity binds the Teams user in token to actor. Linking the same
// pair again is a no-op.
func (s *MSTeamsService) LinkIdentity(ctx context.Context, token string, actor model.Actor) (*model.Identity, error) {
	params, integration, err := s.verify(ctx, token)
	if err != nil {
		return nil, err
	}
	if _, err := s.members.GetMember(ctx, params.OrganizationID, actor.UserID); err != nil {
		if sqlerr.IsNoRows(err) {
			return nil, errs.NewForbiddenError("You are not a member of the organization this Teams app is installed in", true)
		}
		return nil, err
	}

	existing, err := s.repo.GetIdentity(ctx, model.IntegrationMSTeams, integration.ExternalID, params.TeamsUserID)
	switch {
	case err == nil && existing.UserID == actor.UserID:
		return existing, nil
	case err == nil:
		return nil, errs.NewForbiddenError("This Teams account is already linked to another user", true)
	case !sqlerr.IsNoRows(err):
		return nil, err
	}

	identity := &model.Identity{
		Provider:      model.IntegrationMSTeams,
		IdpExternalID: integration.ExternalID,
		ExternalID:    params.TeamsUserID,
		UserID:        actor.UserID,
		Data: map[string]any{
			model.IdentityServiceURL:     params.ServiceURL,
			model.IdentityConversationID: params.ConversationID,
		},
	}
	if err := s.repo.CreateIdentity(ctx, identity); err != nil {
		if sqlerr.IsUniqueViolation(err) {
			return nil, errs.NewForbiddenError("This Teams account is already linked to another user", true)
		}
		return nil, err
	}

	s.audit.Record(ctx, newAuditEntry(params.OrganizationID, actor, model.AuditIdentityLink, &identity.ID, map[string]any{
		"provider":    model.IntegrationMSTeams,
		"external_id": params.TeamsUserID,
	}))
	s.confirm(ctx, params, msteams.IdentityLinkedCard())
	return identity, nil
}

func (s *MSTeamsService) UnlinkIdentity(ctx context.Context, token string, actor model.Actor) error {
	params, integration, err := s.verify(ctx, token)
	if err != nil {
		return err
	}

	identity, err := s.repo.GetIdentity(ctx, model.IntegrationMSTeams, integration.ExternalID, params.TeamsUserID)
	if err != nil {
		if sqlerr.IsNoRows(err) {
			return nil
		}
		return err
	}
	if identity.UserID != actor.UserID {
		return errs.NewForbiddenError("This Teams account is linked to another user", true)
	}
	if err := s.repo.DeleteIdentity(ctx, identity.ID); err != nil {
		return err
	}

	s.audit.Record(ctx, newAuditEntry(params.OrganizationID, actor, model.AuditIdentityUnlink, &identity.ID, map[string]any{
		"provider":    model.IntegrationMSTeams,
		"external_id": params.TeamsUserID,
	}))
	s.confirm(ctx, params, msteams.IdentityUnlinkedCard())
	return nil
}

func (s *MSTeamsService) confirm(ctx context.Context, params *msteams.LinkParams, card msteams.Card) {
	if params.ServiceURL == "" || params.ConversationID == "" {
		return
	}
	if err := s.reply(ctx, params.ServiceURL, params.ConversationID, card); err != nil {
		s.logger.Error().Err(err).Str("teams_user_id", params.TeamsUserID).Msg("failed to queue msteams confirmation")
	}
}

func (s *MSTeamsService) reply(ctx context.Context, serviceURL, conversationID string, card msteams.Card) error {
	activity, err := json.Marshal(msteams.NewReply(card))
	if err != nil {
		return fmt.Errorf("marshal msteams reply: %w", err)
	}
	task, buildErr := job.NewMSTeamsReplyTask(job.MSTeamsReplyPayload{
		ServiceURL:     serviceURL,
		ConversationID: conversationID,
		Activity:       activity,
	})
	return enqueue(ctx, s.queue, task, buildErr)
}

func (s *MSTeamsService) HandleReplyTask(ctx context.Context, t *asynq.Task) error {
	p, err := job.Decode[job.MSTeamsReplyPayload](t)
	if err != nil {
		return err
	}
	if err := s.sender.Send(ctx, p.ServiceURL, p.ConversationID, p.Activity); err != nil {
		if errors.Is(err, msteams.ErrPermanent) {
			return job.Permanent(err)
		}
		return err
	}
	return nil
}
