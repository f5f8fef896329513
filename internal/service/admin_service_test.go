package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/liliang-cn/roundtable/internal/domain"
	"github.com/liliang-cn/roundtable/internal/registry"
	"github.com/liliang-cn/roundtable/internal/repository"
	"go.uber.org/zap"
)

func newTestDB(t *testing.T) *repository.DB {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "roundtable.db"))
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestRepos(t *testing.T) *Repositories {
	t.Helper()
	return NewRepositories(newTestDB(t))
}

type fakeTester struct {
	up map[string]bool
}

func (f *fakeTester) TestConnection(ctx context.Context, site domain.Site) bool {
	return f.up[site.ID]
}

func (f *fakeTester) TestAll(ctx context.Context, sites []domain.Site) map[string]bool {
	results := make(map[string]bool, len(sites))
	for _, s := range sites {
		results[s.ID] = f.up[s.ID]
	}
	return results
}

type recordingPanel struct {
	experts []domain.Expert
	lb      domain.LoadBalancerConfig
	calls   int
}

func (p *recordingPanel) Reconfigure(experts []domain.Expert, lb domain.LoadBalancerConfig) {
	p.experts = experts
	p.lb = lb
	p.calls++
}

type adminFixture struct {
	db     *repository.DB
	svc    *AdminService
	repos  *Repositories
	reg    *registry.Registry
	tester *fakeTester
	panel  *recordingPanel
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	db := newTestDB(t)
	repos := NewRepositories(db)
	reg := registry.New(domain.DefaultLoadBalancerConfig(),
		registry.WithHealthObserver(repos.HealthWriter(zap.NewNop())))
	f := &adminFixture{
		db:     db,
		repos:  repos,
		reg:    reg,
		tester: &fakeTester{up: map[string]bool{}},
		panel:  &recordingPanel{},
	}
	f.svc = NewAdminService(repos, reg, f.tester, f.panel, zap.NewNop())
	return f
}

func (f *adminFixture) createSite(t *testing.T, name string) *domain.Site {
	t.Helper()
	site, err := f.svc.CreateSite(context.Background(), &domain.CreateSiteRequest{
		Name:    name,
		BaseURL: "https://" + name + ".example.com/v1",
		APIKey:  "sk-" + name,
		Model:   "gpt-4o-mini",
	})
	if err != nil {
		t.Fatalf("CreateSite(%s) error = %v", name, err)
	}
	return site
}

func TestAdminService_CreateSite(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	a := f.createSite(t, "alpha")
	b := f.createSite(t, "beta")

	if a.ID == "" || !a.Enabled || a.Priority != 1 || b.Priority != 2 {
		t.Errorf("created = %+v, %+v", a, b)
	}
	stored, err := f.repos.Sites.Get(b.ID)
	if err != nil || stored == nil || stored.Name != "beta" || stored.Priority != 2 {
		t.Errorf("stored = %+v, %v", stored, err)
	}

	disabled := false
	c, err := f.svc.CreateSite(ctx, &domain.CreateSiteRequest{
		Name: "gamma", BaseURL: "https://gamma", Model: "m", Enabled: &disabled,
	})
	if err != nil || c.Enabled {
		t.Errorf("CreateSite(disabled) = %+v, %v", c, err)
	}

	_, err = f.svc.CreateSite(ctx, &domain.CreateSiteRequest{Name: "bad", BaseURL: "https://bad", Model: "m", Temperature: 3})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("CreateSite(temperature 3) error = %v", err)
	}
	if n, _ := f.repos.Sites.Count(); n != 3 {
		t.Errorf("stored sites = %d, want 3", n)
	}
	if got := len(f.svc.ListSites(ctx)); got != 3 {
		t.Errorf("ListSites() = %d sites", got)
	}
}

func TestAdminService_UpdateToggleDelete(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	a := f.createSite(t, "alpha")
	b := f.createSite(t, "beta")
	c := f.createSite(t, "gamma")

	updated, err := f.svc.UpdateSite(ctx, a.ID, &domain.UpdateSiteRequest{Model: "gpt-4o"})
	if err != nil || updated.Model != "gpt-4o" {
		t.Fatalf("UpdateSite() = %+v, %v", updated, err)
	}
	if stored, _ := f.repos.Sites.Get(a.ID); stored.Model != "gpt-4o" {
		t.Errorf("stored model = %q", stored.Model)
	}

	toggled, err := f.svc.ToggleSite(ctx, b.ID)
	if err != nil || toggled.Enabled {
		t.Fatalf("ToggleSite() = %+v, %v", toggled, err)
	}
	if stored, _ := f.repos.Sites.Get(b.ID); stored.Enabled {
		t.Error("toggle not persisted")
	}

	if err := f.svc.DeleteSite(ctx, a.ID); err != nil {
		t.Fatalf("DeleteSite() error = %v", err)
	}
	stored, _ := f.repos.Sites.List()
	if len(stored) != 2 || stored[0].ID != b.ID || stored[0].Priority != 1 || stored[1].ID != c.ID || stored[1].Priority != 2 {
		t.Errorf("stored after delete = %+v", stored)
	}

	if _, err := f.svc.GetSite(ctx, a.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetSite(deleted) error = %v", err)
	}
	if err := f.svc.DeleteSite(ctx, a.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("DeleteSite(deleted) error = %v", err)
	}
	if _, err := f.svc.ToggleSite(ctx, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("ToggleSite(missing) error = %v", err)
	}
}

func TestAdminService_DeleteSiteStoreFailure(t *testing.T) {
	f := newAdminFixture(t)
	a := f.createSite(t, "alpha")
	f.createSite(t, "beta")

	if err := f.db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := f.svc.DeleteSite(context.Background(), a.ID); err == nil {
		t.Fatal("DeleteSite() error = nil with a closed store")
	}

	if _, ok := f.reg.Site(a.ID); !ok {
		t.Error("site removed from the registry although the store delete failed")
	}
	if got := len(f.reg.Sites()); got != 2 {
		t.Errorf("registry sites = %d, want 2", got)
	}
}

func TestAdminService_ReorderSites(t *testing.T) {
	f := newAdminFixture(t)
	a := f.createSite(t, "alpha")
	b := f.createSite(t, "beta")
	c := f.createSite(t, "gamma")

	sites, err := f.svc.ReorderSites(context.Background(), &domain.ReorderSitesRequest{SiteIDs: []string{c.ID, a.ID}})
	if err != nil {
		t.Fatalf("ReorderSites() error = %v", err)
	}
	want := []string{c.ID, a.ID, b.ID}
	stored, _ := f.repos.Sites.List()
	for i, id := range want {
		if sites[i].ID != id || sites[i].Priority != i+1 {
			t.Errorf("sites[%d] = %s/%d, want %s/%d", i, sites[i].ID, sites[i].Priority, id, i+1)
		}
		if stored[i].ID != id || stored[i].Priority != i+1 {
			t.Errorf("stored[%d] = %s/%d, want %s/%d", i, stored[i].ID, stored[i].Priority, id, i+1)
		}
	}
}

func TestAdminService_TestSites(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	a := f.createSite(t, "alpha")
	b := f.createSite(t, "beta")
	f.tester.up[a.ID] = true

	ok, err := f.svc.TestSite(ctx, a.ID)
	if err != nil || !ok {
		t.Errorf("TestSite(up) = %v, %v", ok, err)
	}
	if _, err := f.svc.TestSite(ctx, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("TestSite(missing) error = %v", err)
	}

	results := f.svc.TestAllSites(ctx)
	if len(results) != 2 || !results[a.ID] || results[b.ID] {
		t.Errorf("TestAllSites() = %v", results)
	}
}

func TestAdminService_Health(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	a := f.createSite(t, "alpha")
	b := f.createSite(t, "beta")

	f.reg.ReportFailure(a.ID)
	f.reg.ReportFailure(b.ID)

	stored, err := f.repos.Health.List()
	if err != nil || len(stored) != 2 {
		t.Fatalf("stored health = %+v, %v", stored, err)
	}
	if got := f.svc.ListHealth(ctx)[a.ID]; got.FailureCount != 1 {
		t.Errorf("ListHealth()[a] = %+v", got)
	}

	if err := f.svc.ResetHealth(ctx, a.ID); err != nil {
		t.Fatalf("ResetHealth() error = %v", err)
	}
	if err := f.svc.ResetHealth(ctx, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("ResetHealth(missing) error = %v", err)
	}
	if got := f.svc.ListHealth(ctx)[a.ID]; got.FailureCount != 0 || got.Status != domain.HealthHealthy {
		t.Errorf("after reset = %+v", got)
	}

	f.svc.ResetAllHealth(ctx)
	stored, _ = f.repos.Health.List()
	for _, h := range stored {
		if h.FailureCount != 0 {
			t.Errorf("stored %s failure count = %d after reset all", h.SiteID, h.FailureCount)
		}
	}
}

func TestAdminService_LoadBalancerConfig(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	cfg := domain.LoadBalancerConfig{Strategy: domain.StrategyPriority, MaxFailures: 2, RecoveryTime: 1000, RetryCount: 5}
	if _, err := f.svc.UpdateLoadBalancerConfig(ctx, cfg); err != nil {
		t.Fatalf("UpdateLoadBalancerConfig() error = %v", err)
	}
	if got := f.svc.GetLoadBalancerConfig(ctx); got != cfg {
		t.Errorf("GetLoadBalancerConfig() = %+v", got)
	}
	if stored, _ := f.repos.Settings.LoadBalancerConfig(); stored != cfg {
		t.Errorf("stored = %+v", stored)
	}
	if f.panel.lb != cfg || len(f.panel.experts) != len(domain.DefaultExperts()) {
		t.Errorf("panel = %+v", f.panel)
	}

	bad := cfg
	bad.Strategy = "fastest"
	if _, err := f.svc.UpdateLoadBalancerConfig(ctx, bad); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("UpdateLoadBalancerConfig(bad) error = %v", err)
	}
	if got := f.svc.GetLoadBalancerConfig(ctx); got != cfg {
		t.Errorf("config changed by rejected update: %+v", got)
	}
}

func TestAdminService_Experts(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	experts, err := f.svc.GetExperts(ctx)
	if err != nil || len(experts) != len(domain.DefaultExperts()) {
		t.Fatalf("GetExperts() = %d, %v", len(experts), err)
	}

	updated, err := f.svc.UpdateExperts(ctx, []domain.Expert{
		{ID: "a", Name: "A", Role: "first"},
		{ID: "b", Name: "B", Role: "second", Color: "teal"},
	})
	if err != nil {
		t.Fatalf("UpdateExperts() error = %v", err)
	}
	if updated[0].Color != domain.ExpertColors[0] || updated[1].Color != "teal" {
		t.Errorf("colors = %q, %q", updated[0].Color, updated[1].Color)
	}
	if got, _ := f.svc.GetExperts(ctx); len(got) != 2 || got[0].ID != "a" {
		t.Errorf("GetExperts() after update = %+v", got)
	}
	if len(f.panel.experts) != 2 {
		t.Errorf("panel experts = %+v", f.panel.experts)
	}

	tests := []struct {
		name    string
		experts []domain.Expert
	}{
		{"empty", nil},
		{"missing id", []domain.Expert{{Name: "x"}}},
		{"duplicate id", []domain.Expert{{ID: "x"}, {ID: "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.UpdateExperts(ctx, tt.experts); !errors.Is(err, domain.ErrInvalidRequest) {
				t.Errorf("UpdateExperts() error = %v", err)
			}
		})
	}

	reset, err := f.svc.ResetExperts(ctx)
	if err != nil || len(reset) != len(domain.DefaultExperts()) {
		t.Errorf("ResetExperts() = %d, %v", len(reset), err)
	}
}

func TestAdminService_Presets(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	if _, err := f.svc.UpdateExperts(ctx, []domain.Expert{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}}); err != nil {
		t.Fatalf("UpdateExperts() error = %v", err)
	}
	preset, err := f.svc.CreatePreset(ctx, &domain.CreatePresetRequest{Name: "pair", Description: "two voices"})
	if err != nil || len(preset.Experts) != 2 {
		t.Fatalf("CreatePreset() = %+v, %v", preset, err)
	}

	if _, err := f.svc.ResetExperts(ctx); err != nil {
		t.Fatalf("ResetExperts() error = %v", err)
	}
	loaded, err := f.svc.LoadPreset(ctx, preset.ID)
	if err != nil || len(loaded) != 2 || loaded[1].ID != "b" {
		t.Fatalf("LoadPreset() = %+v, %v", loaded, err)
	}
	if got, _ := f.svc.GetExperts(ctx); len(got) != 2 {
		t.Errorf("current experts after load = %d", len(got))
	}

	renamed, err := f.svc.UpdatePreset(ctx, preset.ID, &domain.UpdatePresetRequest{Name: "duo"})
	if err != nil || renamed.Name != "duo" || renamed.Description != "two voices" {
		t.Errorf("UpdatePreset() = %+v, %v", renamed, err)
	}
	if list, _ := f.svc.ListPresets(ctx); len(list) != 1 {
		t.Errorf("ListPresets() = %d", len(list))
	}

	if err := f.svc.DeletePreset(ctx, preset.ID); err != nil {
		t.Fatalf("DeletePreset() error = %v", err)
	}
	if _, err := f.svc.GetPreset(ctx, preset.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetPreset(deleted) error = %v", err)
	}
	if _, err := f.svc.LoadPreset(ctx, preset.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("LoadPreset(deleted) error = %v", err)
	}
}

func TestAdminService_ChatsAndStats(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	a := f.createSite(t, "alpha")
	f.createSite(t, "beta")
	f.reg.ReportFailure(a.ID)
	f.reg.ReportFailure(a.ID)
	f.reg.ReportFailure(a.ID)

	chat := &domain.ChatHistory{Title: "first", Messages: []domain.Message{{Content: "q"}, {ExpertID: "a", Content: "x", Round: 1}}}
	if err := f.repos.Chats.Create(chat); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	renamed, err := f.svc.RenameChat(ctx, chat.ID, &domain.RenameChatRequest{Title: "renamed"})
	if err != nil || renamed.Title != "renamed" || len(renamed.Messages) != 2 {
		t.Errorf("RenameChat() = %+v, %v", renamed, err)
	}
	if list, _ := f.svc.ListChats(ctx); len(list) != 1 || list[0].MessageCount != 2 {
		t.Errorf("ListChats() = %+v", list)
	}

	stats, err := f.svc.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	want := domain.Stats{TotalSites: 2, EnabledSites: 2, HealthySites: 1, TotalExperts: 5, TotalPresets: 0, TotalChats: 1}
	if *stats != want {
		t.Errorf("GetStats() = %+v, want %+v", *stats, want)
	}

	if err := f.svc.DeleteChat(ctx, chat.ID); err != nil {
		t.Fatalf("DeleteChat() error = %v", err)
	}
	if _, err := f.svc.GetChat(ctx, chat.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetChat(deleted) error = %v", err)
	}
}
