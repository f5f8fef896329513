package repository

import (
	"database/sql"
	"time"

	"github.com/liliang-cn/roundtable/internal/domain"
)

// HealthRepository persists site health records. The derived status is
// not stored; it is recomputed on every read by the registry.
type HealthRepository struct {
	db *DB
}

// NewHealthRepository creates a new health repository
func NewHealthRepository(db *DB) *HealthRepository {
	return &HealthRepository{db: db}
}

// Save upserts a health record. Records of sites that no longer exist are
// ignored.
func (r *HealthRepository) Save(h domain.SiteHealth) error {
	_, err := r.db.Exec(`
		INSERT INTO site_health (site_id, failure_count, last_failure, last_success)
		SELECT ?, ?, ?, ? WHERE EXISTS (SELECT 1 FROM sites WHERE id = ?)
		ON CONFLICT(site_id) DO UPDATE SET
			failure_count = excluded.failure_count,
			last_failure = excluded.last_failure,
			last_success = excluded.last_success
	`, h.SiteID, h.FailureCount, nullTime(h.LastFailure), nullTime(h.LastSuccess), h.SiteID)
	return err
}

// List returns every stored health record
func (r *HealthRepository) List() ([]domain.SiteHealth, error) {
	rows, err := r.db.Query(`SELECT site_id, failure_count, last_failure, last_success FROM site_health`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.SiteHealth
	for rows.Next() {
		var (
			h                        domain.SiteHealth
			lastFailure, lastSuccess sql.NullTime
		)
		if err := rows.Scan(&h.SiteID, &h.FailureCount, &lastFailure, &lastSuccess); err != nil {
			return nil, err
		}
		h.LastFailure = timePtr(lastFailure)
		h.LastSuccess = timePtr(lastSuccess)
		records = append(records, h)
	}

	return records, rows.Err()
}

// Delete removes the health record of a site
func (r *HealthRepository) Delete(siteID string) error {
	_, err := r.db.Exec(`DELETE FROM site_health WHERE site_id = ?`, siteID)
	return err
}

// DeleteAll removes every health record
func (r *HealthRepository) DeleteAll() error {
	_, err := r.db.Exec(`DELETE FROM site_health`)
	return err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
