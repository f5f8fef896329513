package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/roundtable/internal/domain"
)

// execer is satisfied by both *sql.DB and *sql.Tx
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// scanner is satisfied by both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

// SiteRepository handles site persistence
type SiteRepository struct {
	db *DB
}

// NewSiteRepository creates a new site repository
func NewSiteRepository(db *DB) *SiteRepository {
	return &SiteRepository{db: db}
}

const siteColumns = `id, name, base_url, api_key, model, temperature, max_tokens, enabled, priority`

// Create creates a new site
func (r *SiteRepository) Create(site *domain.Site) error {
	if site.ID == "" {
		site.ID = uuid.New().String()
	}
	return insertSite(r.db, site)
}

func insertSite(ex execer, site *domain.Site) error {
	now := time.Now()
	_, err := ex.Exec(`
		INSERT INTO sites (`+siteColumns+`, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, site.ID, site.Name, site.BaseURL, site.APIKey, site.Model, site.Temperature,
		nullInt(site.MaxTokens), site.Enabled, site.Priority, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert site: %w", err)
	}
	return nil
}

// Get retrieves a site by ID
func (r *SiteRepository) Get(id string) (*domain.Site, error) {
	site, err := scanSite(r.db.QueryRow(`SELECT `+siteColumns+` FROM sites WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return site, nil
}

// List retrieves all sites in priority order
func (r *SiteRepository) List() ([]domain.Site, error) {
	rows, err := r.db.Query(`SELECT ` + siteColumns + ` FROM sites ORDER BY priority ASC, created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sites []domain.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, *site)
	}

	return sites, rows.Err()
}

// Update updates a site
func (r *SiteRepository) Update(site *domain.Site) error {
	result, err := r.db.Exec(`
		UPDATE sites SET name = ?, base_url = ?, api_key = ?, model = ?, temperature = ?,
			max_tokens = ?, enabled = ?, priority = ?, updated_at = ?
		WHERE id = ?
	`, site.Name, site.BaseURL, site.APIKey, site.Model, site.Temperature,
		nullInt(site.MaxTokens), site.Enabled, site.Priority, time.Now(), site.ID)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("%w: site %s", domain.ErrNotFound, site.ID)
	}

	return nil
}

// Delete deletes a site and, through the foreign key, its health record
func (r *SiteRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM sites WHERE id = ?`, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("%w: site %s", domain.ErrNotFound, id)
	}

	return nil
}

// UpdatePriorities stores the priority of every given site in one transaction
func (r *SiteRepository) UpdatePriorities(sites []domain.Site) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for _, s := range sites {
		if _, err := tx.Exec(`UPDATE sites SET priority = ?, updated_at = ? WHERE id = ?`, s.Priority, now, s.ID); err != nil {
			return fmt.Errorf("failed to update priority of %s: %w", s.ID, err)
		}
	}
	return tx.Commit()
}

// Count returns the number of sites
func (r *SiteRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM sites`).Scan(&count)
	return count, err
}

func scanSite(row scanner) (*domain.Site, error) {
	site := &domain.Site{}
	var maxTokens sql.NullInt64
	if err := row.Scan(&site.ID, &site.Name, &site.BaseURL, &site.APIKey, &site.Model,
		&site.Temperature, &maxTokens, &site.Enabled, &site.Priority); err != nil {
		return nil, err
	}
	if maxTokens.Valid {
		v := int(maxTokens.Int64)
		site.MaxTokens = &v
	}
	return site, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
