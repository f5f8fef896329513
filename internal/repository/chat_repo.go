package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/roundtable/internal/domain"
)

// ChatRepository handles saved chat persistence
type ChatRepository struct {
	db *DB
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// Create saves a chat and its messages in one transaction
func (r *ChatRepository) Create(chat *domain.ChatHistory) error {
	if chat.ID == "" {
		chat.ID = uuid.New().String()
	}
	now := time.Now()
	chat.CreatedAt = now
	chat.UpdatedAt = now

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO chat_histories (id, title, expert_preset_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, chat.ID, chat.Title, nullString(chat.ExpertPresetID), chat.CreatedAt, chat.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert chat: %w", err)
	}

	for i, m := range chat.Messages {
		if m.ID == "" {
			m.ID = uuid.New().String()
			chat.Messages[i].ID = m.ID
		}
		_, err := tx.Exec(`
			INSERT INTO chat_messages (chat_id, seq, id, expert_id, content, round, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, chat.ID, i, m.ID, nullString(m.ExpertID), m.Content, m.Round, m.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to insert chat message: %w", err)
		}
	}

	return tx.Commit()
}

// Get retrieves a chat with its messages by ID
func (r *ChatRepository) Get(id string) (*domain.ChatHistory, error) {
	chat := &domain.ChatHistory{}
	var presetID sql.NullString

	err := r.db.QueryRow(`
		SELECT id, title, expert_preset_id, created_at, updated_at
		FROM chat_histories WHERE id = ?
	`, id).Scan(&chat.ID, &chat.Title, &presetID, &chat.CreatedAt, &chat.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	chat.ExpertPresetID = presetID.String

	messages, err := r.messages(id)
	if err != nil {
		return nil, err
	}
	chat.Messages = messages

	return chat, nil
}

func (r *ChatRepository) messages(chatID string) ([]domain.Message, error) {
	rows, err := r.db.Query(`
		SELECT id, expert_id, content, round, timestamp
		FROM chat_messages WHERE chat_id = ?
		ORDER BY seq ASC
	`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var (
			m        domain.Message
			expertID sql.NullString
		)
		if err := rows.Scan(&m.ID, &expertID, &m.Content, &m.Round, &m.Timestamp); err != nil {
			return nil, err
		}
		m.ExpertID = expertID.String
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// List retrieves all chats, most recently updated first
func (r *ChatRepository) List() ([]domain.ChatSummary, error) {
	rows, err := r.db.Query(`
		SELECT h.id, h.title, h.expert_preset_id, h.created_at, h.updated_at,
			(SELECT COUNT(*) FROM chat_messages m WHERE m.chat_id = h.id)
		FROM chat_histories h
		ORDER BY h.updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chats := []domain.ChatSummary{}
	for rows.Next() {
		var (
			c        domain.ChatSummary
			presetID sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Title, &presetID, &c.CreatedAt, &c.UpdatedAt, &c.MessageCount); err != nil {
			return nil, err
		}
		c.ExpertPresetID = presetID.String
		chats = append(chats, c)
	}

	return chats, rows.Err()
}

// Rename changes a chat's title
func (r *ChatRepository) Rename(id, title string) error {
	result, err := r.db.Exec(`UPDATE chat_histories SET title = ?, updated_at = ? WHERE id = ?`, title, time.Now(), id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("%w: chat %s", domain.ErrNotFound, id)
	}
	return nil
}

// Delete deletes a chat and its messages
func (r *ChatRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM chat_histories WHERE id = ?`, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("%w: chat %s", domain.ErrNotFound, id)
	}
	return nil
}

// Count returns the number of saved chats
func (r *ChatRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM chat_histories`).Scan(&count)
	return count, err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
