package service

import (
	"fmt"

	"github.com/liliang-cn/roundtable/internal/config"
	"github.com/liliang-cn/roundtable/internal/domain"
	"github.com/liliang-cn/roundtable/internal/registry"
	"github.com/liliang-cn/roundtable/internal/repository"
	"go.uber.org/zap"
)

// Repositories groups the stores used by the services
type Repositories struct {
	Sites    *repository.SiteRepository
	Health   *repository.HealthRepository
	Settings *repository.SettingsRepository
	Presets  *repository.PresetRepository
	Chats    *repository.ChatRepository
}

// NewRepositories creates every repository on db
func NewRepositories(db *repository.DB) *Repositories {
	return &Repositories{
		Sites:    repository.NewSiteRepository(db),
		Health:   repository.NewHealthRepository(db),
		Settings: repository.NewSettingsRepository(db),
		Presets:  repository.NewPresetRepository(db),
		Chats:    repository.NewChatRepository(db),
	}
}

// HealthWriter returns a registry health observer that persists every change
func (r *Repositories) HealthWriter(logger *zap.Logger) registry.HealthObserver {
	return func(h domain.SiteHealth) {
		if err := r.Health.Save(h); err != nil {
			logger.Warn("failed to persist site health",
				zap.String("site_id", h.SiteID),
				zap.Error(err),
			)
		}
	}
}

// State is the persisted configuration loaded at startup
type State struct {
	Experts      []domain.Expert
	LoadBalancer domain.LoadBalancerConfig
}

// LoadState migrates the store, seeds it from cfg when it holds no sites,
// and installs sites, health and the load balancer config into reg
func LoadState(cfg *config.Config, repos *Repositories, reg *registry.Registry, logger *zap.Logger) (*State, error) {
	migrated, err := repos.Settings.MigrateLegacy(cfg.Legacy())
	if err != nil {
		return nil, fmt.Errorf("failed to migrate legacy config: %w", err)
	}
	if migrated != nil {
		logger.Info("migrated legacy single-site config",
			zap.String("site_id", migrated.ID),
			zap.String("base_url", migrated.BaseURL),
		)
	}

	sites, err := repos.Sites.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	if len(sites) == 0 {
		for _, site := range cfg.SeedSites() {
			site := site
			if err := site.Validate(); err != nil {
				return nil, fmt.Errorf("invalid configured site %q: %w", site.Name, err)
			}
			if err := repos.Sites.Create(&site); err != nil {
				return nil, fmt.Errorf("failed to seed site %q: %w", site.Name, err)
			}
			logger.Info("seeded site from config", zap.String("site_id", site.ID), zap.String("site", site.Name))
		}
		if sites, err = repos.Sites.List(); err != nil {
			return nil, fmt.Errorf("failed to list sites: %w", err)
		}
	}

	health, err := repos.Health.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list site health: %w", err)
	}

	lb := cfg.LoadBalancer
	var stored domain.LoadBalancerConfig
	ok, err := repos.Settings.Get(repository.SettingLoadBalancer, &stored)
	if err != nil {
		return nil, fmt.Errorf("failed to load balancer config: %w", err)
	}
	if ok && stored.Validate() == nil {
		lb = stored
	}

	experts, ok, err := repos.Settings.Experts()
	if err != nil {
		return nil, fmt.Errorf("failed to load experts: %w", err)
	}
	if !ok || domain.ValidateExperts(experts) != nil {
		experts = domain.DefaultExperts()
	}

	reg.SetConfig(lb)
	reg.ReplaceSites(sites)
	reg.RestoreHealth(health)

	logger.Info("state loaded",
		zap.Int("sites", len(sites)),
		zap.Int("experts", len(experts)),
		zap.String("strategy", string(lb.Strategy)),
	)
	return &State{Experts: experts, LoadBalancer: lb}, nil
}
