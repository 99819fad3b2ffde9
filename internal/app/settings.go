package app

import (
	"context"
	"strings"

	"github.com/Guilhem-Bonnet/subseek/internal/domain"
	"github.com/Guilhem-Bonnet/subseek/internal/ports"
)

const redactedPassword = "********"

type SettingsService struct {
	repo ports.SettingsRepository
	bus  ports.EventBus
}

func NewSettingsService(repo ports.SettingsRepository, bus ports.EventBus) *SettingsService {
	return &SettingsService{repo: repo, bus: bus}
}

func (s *SettingsService) Get(ctx context.Context) (domain.Settings, error) {
	return s.repo.Get(ctx)
}

// Put valide puis persiste, et publie settings.updated (mot de passe masqué).
// Un mot de passe vide ou masqué conserve le mot de passe stocké.
func (s *SettingsService) Put(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	settings.CatalogUsername = strings.TrimSpace(settings.CatalogUsername)
	if settings.CatalogPassword == "" || settings.CatalogPassword == redactedPassword {
		current, err := s.repo.Get(ctx)
		if err != nil {
			return domain.Settings{}, err
		}
		settings.CatalogPassword = current.CatalogPassword
	}
	if settings.MaxConcurrentRequests <= 0 {
		settings.MaxConcurrentRequests = domain.DefaultSettings().MaxConcurrentRequests
	}
	if settings.MaxBatchWorkers <= 0 {
		settings.MaxBatchWorkers = domain.DefaultSettings().MaxBatchWorkers
	}

	updated, err := s.repo.Put(ctx, settings)
	if err != nil {
		return domain.Settings{}, err
	}
	publishJSON(s.bus, ports.TopicSettingsUpdated, updated.Redacted())
	return updated, nil
}

// Credentials implémente ports.CredentialSource.
func (s *SettingsService) Credentials(ctx context.Context) (domain.Credentials, error) {
	st, err := s.repo.Get(ctx)
	if err != nil {
		return domain.Credentials{}, err
	}
	return st.Credentials(), nil
}
