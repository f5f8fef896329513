package registry

import (
	"time"

	"github.com/liliang-cn/roundtable/internal/domain"
)

// Status derives the health status of a record. A site at or above
// MaxFailures is unhealthy until RecoveryTime has passed since its last
// failure, after which it is degraded and eligible again.
func Status(h domain.SiteHealth, cfg domain.LoadBalancerConfig, now time.Time) domain.HealthStatus {
	if h.FailureCount >= cfg.MaxFailures {
		if h.LastFailure != nil && now.Sub(*h.LastFailure) >= cfg.RecoveryDuration() {
			return domain.HealthDegraded
		}
		return domain.HealthUnhealthy
	}
	if h.FailureCount > 0 {
		return domain.HealthDegraded
	}
	return domain.HealthHealthy
}

func newHealth(siteID string) *domain.SiteHealth {
	return &domain.SiteHealth{SiteID: siteID, Status: domain.HealthHealthy}
}

// healthLocked returns the record for siteID, creating it on demand.
func (r *Registry) healthLocked(siteID string) *domain.SiteHealth {
	h, ok := r.health[siteID]
	if !ok {
		h = newHealth(siteID)
		r.health[siteID] = h
	}
	return h
}

// snapshotLocked returns a copy of h with a freshly derived status.
func (r *Registry) snapshotLocked(h *domain.SiteHealth) domain.SiteHealth {
	h.Status = Status(*h, r.cfg, r.now())
	return *h
}

// Health returns the health record of a site
func (r *Registry) Health(siteID string) domain.SiteHealth {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(r.healthLocked(siteID))
}

// AllHealth returns the health record of every configured site
func (r *Registry) AllHealth() map[string]domain.SiteHealth {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]domain.SiteHealth, len(r.sites))
	for _, s := range r.sites {
		out[s.ID] = r.snapshotLocked(r.healthLocked(s.ID))
	}
	return out
}

// RestoreHealth installs previously persisted health records
func (r *Registry) RestoreHealth(records []domain.SiteHealth) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		rec := rec
		r.health[rec.SiteID] = &rec
	}
}

// ReportFailure records a failed request against a site
func (r *Registry) ReportFailure(siteID string) {
	r.mu.Lock()
	h := r.healthLocked(siteID)
	now := r.now()
	h.FailureCount++
	h.LastFailure = &now
	snap := r.snapshotLocked(h)
	r.mu.Unlock()

	r.notify(snap)
}

// ReportSuccess records a successful request and clears the failure count
func (r *Registry) ReportSuccess(siteID string) {
	r.mu.Lock()
	h := r.healthLocked(siteID)
	now := r.now()
	h.FailureCount = 0
	h.LastSuccess = &now
	snap := r.snapshotLocked(h)
	r.mu.Unlock()

	r.notify(snap)
}

// ResetHealth restores a site's health record to its initial state
func (r *Registry) ResetHealth(siteID string) {
	r.mu.Lock()
	h := newHealth(siteID)
	r.health[siteID] = h
	snap := *h
	r.mu.Unlock()

	r.notify(snap)
}

// ResetAllHealth restores every site's health record and the cursor
func (r *Registry) ResetAllHealth() {
	r.mu.Lock()
	r.health = make(map[string]*domain.SiteHealth, len(r.sites))
	snaps := make([]domain.SiteHealth, 0, len(r.sites))
	for _, s := range r.sites {
		h := newHealth(s.ID)
		r.health[s.ID] = h
		snaps = append(snaps, *h)
	}
	r.cursor = 0
	r.mu.Unlock()

	for _, snap := range snaps {
		r.notify(snap)
	}
}

func (r *Registry) notify(h domain.SiteHealth) {
	if r.observer != nil {
		r.observer(h)
	}
}
