// Package registry owns the configured upstream sites, their rolling health
// records and the strategy used to pick the next site for a request.
//
// A single Registry is constructed per process and shared by handle between
// the failover controller and the admin surface. All methods are safe for
// concurrent use.
package registry

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/roundtable/internal/domain"
)

// HealthObserver is notified after a site's health record changes.
// It is called without the registry lock held.
type HealthObserver func(health domain.SiteHealth)

// Option configures a Registry
type Option func(*Registry)

// WithClock overrides the time source used for health timestamps
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithRandom overrides the source used by the random strategy.
// intn must return a value in [0, n).
func WithRandom(intn func(n int) int) Option {
	return func(r *Registry) { r.intn = intn }
}

// WithHealthObserver registers fn to receive health changes
func WithHealthObserver(fn HealthObserver) Option {
	return func(r *Registry) { r.observer = fn }
}

// Registry holds sites, health records and the round-robin cursor
type Registry struct {
	mu     sync.Mutex
	sites  []domain.Site
	health map[string]*domain.SiteHealth
	cfg    domain.LoadBalancerConfig
	cursor int

	now      func() time.Time
	intn     func(n int) int
	observer HealthObserver
}

// New creates a registry with the given load balancer configuration
func New(cfg domain.LoadBalancerConfig, opts ...Option) *Registry {
	r := &Registry{
		health: make(map[string]*domain.SiteHealth),
		cfg:    cfg,
		now:    time.Now,
		intn:   rand.IntN,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the current load balancer configuration
func (r *Registry) Config() domain.LoadBalancerConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// SetConfig replaces the load balancer configuration. Switching strategy
// resets the round-robin cursor.
func (r *Registry) SetConfig(cfg domain.LoadBalancerConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cfg.Strategy != r.cfg.Strategy {
		r.cursor = 0
	}
	r.cfg = cfg
}

// Sites returns a copy of the sites in display order
func (r *Registry) Sites() []domain.Site {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Site, len(r.sites))
	copy(out, r.sites)
	return out
}

// Site returns the site with the given id
func (r *Registry) Site(id string) (domain.Site, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexOf(id); i >= 0 {
		return r.sites[i], true
	}
	return domain.Site{}, false
}

// ReplaceSites installs a full site list, e.g. after loading from storage.
// Health records of sites that no longer exist are dropped.
func (r *Registry) ReplaceSites(sites []domain.Site) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sites = make([]domain.Site, len(sites))
	copy(r.sites, sites)
	for id := range r.health {
		if r.indexOf(id) < 0 {
			delete(r.health, id)
		}
	}
	r.cursor = 0
}

// AddSite appends a site. An empty id is replaced with a fresh uuid and a
// zero priority places the site last.
func (r *Registry) AddSite(site domain.Site) (domain.Site, error) {
	if err := site.Validate(); err != nil {
		return domain.Site{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if site.ID == "" {
		site.ID = uuid.New().String()
	}
	if r.indexOf(site.ID) >= 0 {
		return domain.Site{}, fmt.Errorf("%w: site %s already exists", domain.ErrInvalidRequest, site.ID)
	}
	if site.Priority <= 0 {
		site.Priority = len(r.sites) + 1
	}
	r.sites = append(r.sites, site)
	r.health[site.ID] = newHealth(site.ID)
	return site, nil
}

// UpdateSite applies req to the site with the given id
func (r *Registry) UpdateSite(id string, req *domain.UpdateSiteRequest) (domain.Site, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return domain.Site{}, domain.ErrNotFound
	}
	updated := r.sites[i]
	req.Apply(&updated)
	if err := updated.Validate(); err != nil {
		return domain.Site{}, err
	}
	r.sites[i] = updated
	return updated, nil
}

// ToggleSite flips the enabled flag of a site
func (r *Registry) ToggleSite(id string) (domain.Site, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return domain.Site{}, domain.ErrNotFound
	}
	r.sites[i].Enabled = !r.sites[i].Enabled
	return r.sites[i], nil
}

// RemoveSite deletes a site and its health record, renumbers the remaining
// priorities and resets the round-robin cursor.
func (r *Registry) RemoveSite(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return domain.ErrNotFound
	}
	r.sites = append(r.sites[:i], r.sites[i+1:]...)
	delete(r.health, id)
	r.renumber()
	r.cursor = 0
	return nil
}

// Reorder arranges sites in the order of ids and assigns dense priorities
// 1..N. Unknown ids are ignored; sites missing from ids keep their relative
// order after the listed ones.
func (r *Registry) Reorder(ids []string) []domain.Site {
	r.mu.Lock()
	defer r.mu.Unlock()

	placed := make(map[string]bool, len(ids))
	ordered := make([]domain.Site, 0, len(r.sites))
	for _, id := range ids {
		if placed[id] {
			continue
		}
		if i := r.indexOf(id); i >= 0 {
			ordered = append(ordered, r.sites[i])
			placed[id] = true
		}
	}
	for _, s := range r.sites {
		if !placed[s.ID] {
			ordered = append(ordered, s)
		}
	}
	r.sites = ordered
	r.renumber()

	out := make([]domain.Site, len(r.sites))
	copy(out, r.sites)
	return out
}

func (r *Registry) indexOf(id string) int {
	for i := range r.sites {
		if r.sites[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) renumber() {
	for i := range r.sites {
		r.sites[i].Priority = i + 1
	}
}
