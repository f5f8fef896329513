package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/liliang-cn/roundtable/internal/domain"
	"github.com/liliang-cn/roundtable/internal/registry"
	"go.uber.org/zap"
)

// SiteTester probes upstream sites
type SiteTester interface {
	TestConnection(ctx context.Context, site domain.Site) bool
	TestAll(ctx context.Context, sites []domain.Site) map[string]bool
}

// PanelConfigurer receives the expert panel and load balancer config
// whenever either changes
type PanelConfigurer interface {
	Reconfigure(experts []domain.Expert, lb domain.LoadBalancerConfig)
}

// AdminService handles admin operations
type AdminService struct {
	repos    *Repositories
	registry *registry.Registry
	tester   SiteTester
	panel    PanelConfigurer
	logger   *zap.Logger
}

// NewAdminService creates a new admin service
func NewAdminService(
	repos *Repositories,
	reg *registry.Registry,
	tester SiteTester,
	panel PanelConfigurer,
	logger *zap.Logger,
) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminService{
		repos:    repos,
		registry: reg,
		tester:   tester,
		panel:    panel,
		logger:   logger,
	}
}

// Site operations

func (s *AdminService) CreateSite(ctx context.Context, req *domain.CreateSiteRequest) (*domain.Site, error) {
	site := domain.Site{
		Name:        req.Name,
		BaseURL:     req.BaseURL,
		APIKey:      req.APIKey,
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Enabled:     req.Enabled == nil || *req.Enabled,
	}

	added, err := s.registry.AddSite(site)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Sites.Create(&added); err != nil {
		s.registry.RemoveSite(added.ID)
		return nil, fmt.Errorf("failed to save site: %w", err)
	}

	s.logger.Info("site created", zap.String("site_id", added.ID), zap.String("site", added.Name))
	return &added, nil
}

func (s *AdminService) GetSite(ctx context.Context, id string) (*domain.Site, error) {
	site, ok := s.registry.Site(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &site, nil
}

func (s *AdminService) ListSites(ctx context.Context) []domain.Site {
	return s.registry.Sites()
}

func (s *AdminService) UpdateSite(ctx context.Context, id string, req *domain.UpdateSiteRequest) (*domain.Site, error) {
	updated, err := s.registry.UpdateSite(id, req)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Sites.Update(&updated); err != nil {
		return nil, fmt.Errorf("failed to save site: %w", err)
	}
	return &updated, nil
}

func (s *AdminService) ToggleSite(ctx context.Context, id string) (*domain.Site, error) {
	toggled, err := s.registry.ToggleSite(id)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Sites.Update(&toggled); err != nil {
		return nil, fmt.Errorf("failed to save site: %w", err)
	}
	return &toggled, nil
}

func (s *AdminService) DeleteSite(ctx context.Context, id string) error {
	if _, ok := s.registry.Site(id); !ok {
		return domain.ErrNotFound
	}
	if err := s.repos.Sites.Delete(id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("failed to delete site: %w", err)
	}
	if err := s.registry.RemoveSite(id); err != nil {
		return err
	}
	if err := s.repos.Sites.UpdatePriorities(s.registry.Sites()); err != nil {
		return fmt.Errorf("failed to save site order: %w", err)
	}
	s.logger.Info("site deleted", zap.String("site_id", id))
	return nil
}

func (s *AdminService) ReorderSites(ctx context.Context, req *domain.ReorderSitesRequest) ([]domain.Site, error) {
	sites := s.registry.Reorder(req.SiteIDs)
	if err := s.repos.Sites.UpdatePriorities(sites); err != nil {
		return nil, fmt.Errorf("failed to save site order: %w", err)
	}
	return sites, nil
}

func (s *AdminService) TestSite(ctx context.Context, id string) (bool, error) {
	site, ok := s.registry.Site(id)
	if !ok {
		return false, domain.ErrNotFound
	}
	return s.tester.TestConnection(ctx, site), nil
}

func (s *AdminService) TestAllSites(ctx context.Context) map[string]bool {
	return s.tester.TestAll(ctx, s.registry.Sites())
}

// Health operations

func (s *AdminService) ListHealth(ctx context.Context) map[string]domain.SiteHealth {
	return s.registry.AllHealth()
}

func (s *AdminService) ResetHealth(ctx context.Context, id string) error {
	if _, ok := s.registry.Site(id); !ok {
		return domain.ErrNotFound
	}
	s.registry.ResetHealth(id)
	return nil
}

func (s *AdminService) ResetAllHealth(ctx context.Context) {
	s.registry.ResetAllHealth()
}

// Load balancer operations

func (s *AdminService) GetLoadBalancerConfig(ctx context.Context) domain.LoadBalancerConfig {
	return s.registry.Config()
}

func (s *AdminService) UpdateLoadBalancerConfig(ctx context.Context, cfg domain.LoadBalancerConfig) (domain.LoadBalancerConfig, error) {
	if err := cfg.Validate(); err != nil {
		return domain.LoadBalancerConfig{}, err
	}
	if err := s.repos.Settings.SaveLoadBalancerConfig(cfg); err != nil {
		return domain.LoadBalancerConfig{}, fmt.Errorf("failed to save load balancer config: %w", err)
	}
	s.registry.SetConfig(cfg)

	experts, err := s.GetExperts(ctx)
	if err != nil {
		return domain.LoadBalancerConfig{}, err
	}
	s.reconfigure(experts, cfg)

	s.logger.Info("load balancer config updated",
		zap.String("strategy", string(cfg.Strategy)),
		zap.Int("max_failures", cfg.MaxFailures),
		zap.Int("retry_count", cfg.RetryCount),
	)
	return cfg, nil
}

// Expert operations

func (s *AdminService) GetExperts(ctx context.Context) ([]domain.Expert, error) {
	experts, ok, err := s.repos.Settings.Experts()
	if err != nil {
		return nil, err
	}
	if !ok {
		return domain.DefaultExperts(), nil
	}
	return experts, nil
}

func (s *AdminService) UpdateExperts(ctx context.Context, experts []domain.Expert) ([]domain.Expert, error) {
	experts = domain.CloneExperts(experts)
	for i := range experts {
		if experts[i].Color == "" {
			experts[i].Color = domain.ExpertColors[i%len(domain.ExpertColors)]
		}
	}
	if err := domain.ValidateExperts(experts); err != nil {
		return nil, err
	}
	if err := s.repos.Settings.SaveExperts(experts); err != nil {
		return nil, fmt.Errorf("failed to save experts: %w", err)
	}
	s.reconfigure(experts, s.registry.Config())
	return experts, nil
}

func (s *AdminService) ResetExperts(ctx context.Context) ([]domain.Expert, error) {
	return s.UpdateExperts(ctx, domain.DefaultExperts())
}

func (s *AdminService) reconfigure(experts []domain.Expert, lb domain.LoadBalancerConfig) {
	if s.panel != nil {
		s.panel.Reconfigure(experts, lb)
	}
}

// Preset operations

func (s *AdminService) CreatePreset(ctx context.Context, req *domain.CreatePresetRequest) (*domain.ExpertPreset, error) {
	experts, err := s.GetExperts(ctx)
	if err != nil {
		return nil, err
	}
	preset := &domain.ExpertPreset{
		Name:        req.Name,
		Description: req.Description,
		Experts:     domain.CloneExperts(experts),
	}
	if err := s.repos.Presets.Create(preset); err != nil {
		return nil, fmt.Errorf("failed to save preset: %w", err)
	}
	return preset, nil
}

func (s *AdminService) GetPreset(ctx context.Context, id string) (*domain.ExpertPreset, error) {
	preset, err := s.repos.Presets.Get(id)
	if err != nil {
		return nil, err
	}
	if preset == nil {
		return nil, domain.ErrNotFound
	}
	return preset, nil
}

func (s *AdminService) ListPresets(ctx context.Context) ([]domain.ExpertPreset, error) {
	return s.repos.Presets.List()
}

func (s *AdminService) UpdatePreset(ctx context.Context, id string, req *domain.UpdatePresetRequest) (*domain.ExpertPreset, error) {
	preset, err := s.GetPreset(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != "" {
		preset.Name = req.Name
	}
	if req.Description != "" {
		preset.Description = req.Description
	}

	if err := s.repos.Presets.Update(preset); err != nil {
		return nil, err
	}
	return preset, nil
}

func (s *AdminService) DeletePreset(ctx context.Context, id string) error {
	return s.repos.Presets.Delete(id)
}

// LoadPreset makes a copy of the preset's experts the current panel
func (s *AdminService) LoadPreset(ctx context.Context, id string) ([]domain.Expert, error) {
	preset, err := s.GetPreset(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.UpdateExperts(ctx, preset.Experts)
}

// Chat operations

func (s *AdminService) ListChats(ctx context.Context) ([]domain.ChatSummary, error) {
	return s.repos.Chats.List()
}

func (s *AdminService) GetChat(ctx context.Context, id string) (*domain.ChatHistory, error) {
	chat, err := s.repos.Chats.Get(id)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, domain.ErrNotFound
	}
	return chat, nil
}

func (s *AdminService) RenameChat(ctx context.Context, id string, req *domain.RenameChatRequest) (*domain.ChatHistory, error) {
	if err := s.repos.Chats.Rename(id, req.Title); err != nil {
		return nil, err
	}
	return s.GetChat(ctx, id)
}

func (s *AdminService) DeleteChat(ctx context.Context, id string) error {
	return s.repos.Chats.Delete(id)
}

// Stats

func (s *AdminService) GetStats(ctx context.Context) (*domain.Stats, error) {
	sites := s.registry.Sites()
	enabled := 0
	for _, site := range sites {
		if site.Enabled {
			enabled++
		}
	}
	experts, err := s.GetExperts(ctx)
	if err != nil {
		return nil, err
	}
	presets, _ := s.repos.Presets.Count()
	chats, _ := s.repos.Chats.Count()

	return &domain.Stats{
		TotalSites:   len(sites),
		EnabledSites: enabled,
		HealthySites: len(s.registry.HealthySites()),
		TotalExperts: len(experts),
		TotalPresets: presets,
		TotalChats:   chats,
	}, nil
}
