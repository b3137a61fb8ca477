package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Conversation groups an ordered message history for one learner.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	LearnerID int64     `json:"learner_id"`
	Title     string    `json:"title"`
	Guest     bool      `json:"guest"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one persisted turn half: a user, assistant, or system
// record in a conversation.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateConversation starts a new conversation for the learner.
func (s *Store) CreateConversation(ctx context.Context, learnerID int64, title string, guest bool) (*Conversation, error) {
	id, _ := uuid.NewV7()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, learner_id, title, guest, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id.String(), learnerID, title, boolInt(guest), now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	return &Conversation{
		ID:        id,
		LearnerID: learnerID,
		Title:     title,
		Guest:     guest,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetConversation fetches one conversation. Returns sql.ErrNoRows if
// absent.
func (s *Store) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	return scanConversation(s.db.QueryRowContext(ctx, `
		SELECT id, learner_id, title, guest, created_at, updated_at
		FROM conversations WHERE id = ?
	`, id.String()))
}

// ListConversations returns the learner's conversations, most recently
// updated first.
func (s *Store) ListConversations(ctx context.Context, learnerID int64) ([]*Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, learner_id, title, guest, created_at, updated_at
		FROM conversations WHERE learner_id = ?
		ORDER BY updated_at DESC
	`, learnerID)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		c, err := scanConversationRow(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// SetTitle updates a conversation's title.
func (s *Store) SetTitle(ctx context.Context, id uuid.UUID, title string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?
	`, title, time.Now().UTC().Format(time.RFC3339), id.String())
	if err != nil {
		return fmt.Errorf("update title: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("conversation not found: %s", id)
	}
	return nil
}

// DeleteConversation removes a conversation and its messages.
func (s *Store) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id.String()); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("conversation not found: %s", id)
	}

	return tx.Commit()
}

// DeleteAllConversations removes every conversation a learner owns,
// messages included, and returns how many conversations were deleted.
func (s *Store) DeleteAllConversations(ctx context.Context, learnerID int64) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM messages WHERE conversation_id IN
			(SELECT id FROM conversations WHERE learner_id = ?)
	`, learnerID); err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE learner_id = ?`, learnerID)
	if err != nil {
		return 0, fmt.Errorf("delete conversations: %w", err)
	}
	affected, _ := result.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(affected), nil
}

// AddMessage appends a message to a conversation and bumps its
// updated_at timestamp.
func (s *Store) AddMessage(ctx context.Context, conversationID uuid.UUID, role, content string) (*Message, error) {
	now := time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, role, content, created_at)
		VALUES (?, ?, ?, ?)
	`, conversationID.String(), role, content, now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, _ := result.LastInsertId()

	_, _ = s.db.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`,
		now.Format(time.RFC3339), conversationID.String())

	return &Message{
		ID:             id,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      now,
	}, nil
}

// Messages returns a conversation's messages in insertion order.
func (s *Store) Messages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY id ASC
	`, conversationID.String())
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var (
			m         Message
			idStr     string
			createdAt string
		)
		if err := rows.Scan(&m.ID, &idStr, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		m.ConversationID, _ = uuid.Parse(idStr)
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// MessageCount returns the number of persisted messages in a
// conversation.
func (s *Store) MessageCount(ctx context.Context, conversationID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE conversation_id = ?
	`, conversationID.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func scanConversation(row *sql.Row) (*Conversation, error) {
	var (
		c         Conversation
		idStr     string
		guest     int
		createdAt string
		updatedAt string
	)
	err := row.Scan(&idStr, &c.LearnerID, &c.Title, &guest, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	c.ID, _ = uuid.Parse(idStr)
	c.Guest = guest != 0
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &c, nil
}

func scanConversationRow(rows *sql.Rows) (*Conversation, error) {
	var (
		c         Conversation
		idStr     string
		guest     int
		createdAt string
		updatedAt string
	)
	err := rows.Scan(&idStr, &c.LearnerID, &c.Title, &guest, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	c.ID, _ = uuid.Parse(idStr)
	c.Guest = guest != 0
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &c, nil
}
