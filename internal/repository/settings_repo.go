package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/roundtable/internal/domain"
)

// Setting keys
const (
	SettingSchemaVersion = "schema_version"
	SettingLoadBalancer  = "load_balancer"
	SettingExperts       = "experts"
	SettingLegacyLLM     = "llm"
)

// SettingsRepository stores JSON-encoded values by key
type SettingsRepository struct {
	db *DB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get decodes the value stored under key into out. It reports false when
// the key is absent.
func (r *SettingsRepository) Get(key string, out any) (bool, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(value), out); err != nil {
		return false, fmt.Errorf("failed to decode setting %s: %w", key, err)
	}
	return true, nil
}

// Set stores value under key
func (r *SettingsRepository) Set(key string, value any) error {
	return setSetting(r.db, key, value)
}

func setSetting(ex execer, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode setting %s: %w", key, err)
	}
	_, err = ex.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(data), time.Now())
	return err
}

// LoadBalancerConfig returns the stored config, or the defaults when none is stored
func (r *SettingsRepository) LoadBalancerConfig() (domain.LoadBalancerConfig, error) {
	cfg := domain.DefaultLoadBalancerConfig()
	if _, err := r.Get(SettingLoadBalancer, &cfg); err != nil {
		return domain.LoadBalancerConfig{}, err
	}
	return cfg, nil
}

// SaveLoadBalancerConfig stores the load balancer config
func (r *SettingsRepository) SaveLoadBalancerConfig(cfg domain.LoadBalancerConfig) error {
	return r.Set(SettingLoadBalancer, cfg)
}

// Experts returns the stored expert panel and whether one was stored
func (r *SettingsRepository) Experts() ([]domain.Expert, bool, error) {
	var experts []domain.Expert
	ok, err := r.Get(SettingExperts, &experts)
	return experts, ok, err
}

// SaveExperts stores the expert panel
func (r *SettingsRepository) SaveExperts(experts []domain.Expert) error {
	return r.Set(SettingExperts, experts)
}

// SchemaVersion returns the stamped schema version, 0 for an unstamped store
func (r *SettingsRepository) SchemaVersion() (int, error) {
	var version int
	if _, err := r.Get(SettingSchemaVersion, &version); err != nil {
		return 0, err
	}
	return version, nil
}

// MigrateLegacy upgrades a store older than SchemaVersion. When the store
// has no sites, a single default site is created from the legacy llm
// setting, or from fallback when no usable setting is stored. The store is
// stamped with SchemaVersion either way. It returns the created site, if any.
func (r *SettingsRepository) MigrateLegacy(fallback domain.LegacyLLMConfig) (*domain.Site, error) {
	version, err := r.SchemaVersion()
	if err != nil {
		return nil, err
	}
	if version >= SchemaVersion {
		return nil, nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM sites`).Scan(&count); err != nil {
		return nil, err
	}

	var created *domain.Site
	if count == 0 {
		legacy, err := storedLegacy(tx)
		if err != nil {
			return nil, err
		}
		if !legacy.Usable() {
			legacy = fallback
		}
		if legacy.Usable() {
			site := legacy.ToSite(uuid.New().String())
			if err := insertSite(tx, &site); err != nil {
				return nil, err
			}
			if _, err := tx.Exec(`INSERT INTO site_health (site_id, failure_count) VALUES (?, 0)`, site.ID); err != nil {
				return nil, fmt.Errorf("failed to insert site health: %w", err)
			}
			created = &site
		}
	}

	if err := setSetting(tx, SettingSchemaVersion, SchemaVersion); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit migration: %w", err)
	}
	return created, nil
}

func storedLegacy(tx *sql.Tx) (domain.LegacyLLMConfig, error) {
	var legacy domain.LegacyLLMConfig
	var value string
	err := tx.QueryRow(`SELECT value FROM settings WHERE key = ?`, SettingLegacyLLM).Scan(&value)
	if err == sql.ErrNoRows {
		return legacy, nil
	}
	if err != nil {
		return legacy, err
	}
	if err := json.Unmarshal([]byte(value), &legacy); err != nil {
		return legacy, fmt.Errorf("failed to decode legacy llm setting: %w", err)
	}
	return legacy, nil
}

