package registry

import (
	"github.com/liliang-cn/roundtable/internal/domain"
)

// HealthySites returns enabled sites whose status is not unhealthy, in
// display order
func (r *Registry) HealthySites() []domain.Site {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eligibleLocked()
}

func (r *Registry) eligibleLocked() []domain.Site {
	now := r.now()
	pool := make([]domain.Site, 0, len(r.sites))
	for _, s := range r.sites {
		if !s.Enabled {
			continue
		}
		if h, ok := r.health[s.ID]; ok && Status(*h, r.cfg, now) == domain.HealthUnhealthy {
			continue
		}
		pool = append(pool, s)
	}
	return pool
}

// SelectSite returns the next site under the configured strategy. It
// returns false when no enabled, non-unhealthy site exists.
func (r *Registry) SelectSite() (domain.Site, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pool := r.eligibleLocked()
	if len(pool) == 0 {
		return domain.Site{}, false
	}

	switch r.cfg.Strategy {
	case domain.StrategyPriority:
		best := pool[0]
		for _, s := range pool[1:] {
			if s.Priority < best.Priority {
				best = s
			}
		}
		return best, true

	case domain.StrategyRandom:
		return pool[r.intn(len(pool))], true

	default:
		site := pool[r.cursor%len(pool)]
		r.cursor++
		return site, true
	}
}
