package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ModelSettings returns the learner's persisted backend override.
// Implements the provider resolver's settings source. An absent row
// means no override.
func (s *Store) ModelSettings(ctx context.Context, learnerID int64) (provider, apiKey string, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT provider, api_key FROM model_settings WHERE learner_id = ?
	`, learnerID).Scan(&provider, &apiKey)
	if err == sql.ErrNoRows {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("query model settings: %w", err)
	}
	return provider, apiKey, nil
}

// SetModelSettings stores or replaces the learner's backend override.
func (s *Store) SetModelSettings(ctx context.Context, learnerID int64, provider, apiKey string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO model_settings (learner_id, provider, api_key, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(learner_id) DO UPDATE SET provider = excluded.provider,
			api_key = excluded.api_key, updated_at = excluded.updated_at
	`, learnerID, provider, apiKey, now)
	if err != nil {
		return fmt.Errorf("set model settings: %w", err)
	}
	return nil
}
