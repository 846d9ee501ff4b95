package repository

import (
	"github.com/deppfellow/trackr/internal/server"
)

// Repositories is a container for all repository instances.
type Repositories struct {
	Tenancy      *TenancyRepository
	APIKey       *APIKeyRepository
	Group        *GroupRepository
	Event        *EventRepository
	AuditLog     *AuditLogRepository
	Onboarding   *OnboardingRepository
	SavedSearch  *SavedSearchRepository
	SourceCode   *SourceCodeRepository
	Integration  *IntegrationRepository
	Notification *NotificationRepository
	Plugin       *PluginRepository
}

// NewRepositories constructs the repository container on the server's
// connection pool.
func NewRepositories(s *server.Server) *Repositories {
	pool := s.DB.Pool
	return &Repositories{
		Tenancy:      NewTenancyRepository(pool),
		APIKey:       NewAPIKeyRepository(pool),
		Group:        NewGroupRepository(pool),
		Event:        NewEventRepository(pool),
		AuditLog:     NewAuditLogRepository(pool),
		Onboarding:   NewOnboardingRepository(pool),
		SavedSearch:  NewSavedSearchRepository(pool),
		SourceCode:   NewSourceCodeRepository(pool),
		Integration:  NewIntegrationRepository(pool),
		Notification: NewNotificationRepository(pool),
		Plugin:       NewPluginRepository(pool),
	}
}
