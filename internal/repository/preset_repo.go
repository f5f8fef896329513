package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/roundtable/internal/domain"
)

// PresetRepository handles expert preset persistence
type PresetRepository struct {
	db *DB
}

// NewPresetRepository creates a new preset repository
func NewPresetRepository(db *DB) *PresetRepository {
	return &PresetRepository{db: db}
}

// Create creates a new preset
func (r *PresetRepository) Create(preset *domain.ExpertPreset) error {
	if preset.ID == "" {
		preset.ID = uuid.New().String()
	}
	now := time.Now()
	preset.CreatedAt = now
	preset.UpdatedAt = now

	expertsJSON, err := json.Marshal(preset.Experts)
	if err != nil {
		return fmt.Errorf("failed to encode experts: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO expert_presets (id, name, description, experts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, preset.ID, preset.Name, preset.Description, string(expertsJSON), preset.CreatedAt, preset.UpdatedAt)

	return err
}

// Get retrieves a preset by ID
func (r *PresetRepository) Get(id string) (*domain.ExpertPreset, error) {
	preset, err := scanPreset(r.db.QueryRow(`
		SELECT id, name, description, experts, created_at, updated_at
		FROM expert_presets WHERE id = ?
	`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return preset, nil
}

// List retrieves all presets, most recently updated first
func (r *PresetRepository) List() ([]domain.ExpertPreset, error) {
	rows, err := r.db.Query(`
		SELECT id, name, description, experts, created_at, updated_at
		FROM expert_presets ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	presets := []domain.ExpertPreset{}
	for rows.Next() {
		preset, err := scanPreset(rows)
		if err != nil {
			return nil, err
		}
		presets = append(presets, *preset)
	}

	return presets, rows.Err()
}

// Update updates a preset's name, description and experts
func (r *PresetRepository) Update(preset *domain.ExpertPreset) error {
	preset.UpdatedAt = time.Now()
	expertsJSON, err := json.Marshal(preset.Experts)
	if err != nil {
		return fmt.Errorf("failed to encode experts: %w", err)
	}

	result, err := r.db.Exec(`
		UPDATE expert_presets SET name = ?, description = ?, experts = ?, updated_at = ?
		WHERE id = ?
	`, preset.Name, preset.Description, string(expertsJSON), preset.UpdatedAt, preset.ID)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("%w: preset %s", domain.ErrNotFound, preset.ID)
	}
	return nil
}

// Delete deletes a preset
func (r *PresetRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM expert_presets WHERE id = ?`, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("%w: preset %s", domain.ErrNotFound, id)
	}
	return nil
}

// Count returns the number of presets
func (r *PresetRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM expert_presets`).Scan(&count)
	return count, err
}

func scanPreset(row scanner) (*domain.ExpertPreset, error) {
	preset := &domain.ExpertPreset{}
	var description sql.NullString
	var expertsJSON string

	if err := row.Scan(&preset.ID, &preset.Name, &description, &expertsJSON,
		&preset.CreatedAt, &preset.UpdatedAt); err != nil {
		return nil, err
	}
	preset.Description = description.String
	if err := json.Unmarshal([]byte(expertsJSON), &preset.Experts); err != nil {
		return nil, fmt.Errorf("failed to decode experts of preset %s: %w", preset.ID, err)
	}
	return preset, nil
}
