package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Learner is a tutoring user's progression record.
type Learner struct {
	ID         int64     `json:"id"`
	XP         int       `json:"xp"`
	StreakDays int       `json:"streak_days"`
	LastActive time.Time `json:"last_active_date,omitzero"`
	CreatedAt  time.Time `json:"created_at"`
}

// EnsureLearner fetches the learner, creating the row if it does not
// exist yet.
func (s *Store) EnsureLearner(ctx context.Context, learnerID int64) (*Learner, error) {
	l, err := s.GetLearner(ctx, learnerID)
	if err == nil {
		return l, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO learners (id, xp, streak_days, created_at) VALUES (?, 0, 0, ?)
	`, learnerID, now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("insert learner: %w", err)
	}

	return &Learner{ID: learnerID, CreatedAt: now}, nil
}

// GetLearner fetches a learner row. Returns sql.ErrNoRows if absent.
func (s *Store) GetLearner(ctx context.Context, learnerID int64) (*Learner, error) {
	var (
		l          Learner
		lastActive sql.NullString
		createdAt  string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, xp, streak_days, last_active_date, created_at
		FROM learners WHERE id = ?
	`, learnerID).Scan(&l.ID, &l.XP, &l.StreakDays, &lastActive, &createdAt)
	if err != nil {
		return nil, err
	}

	if lastActive.Valid {
		l.LastActive, _ = time.Parse(time.RFC3339, lastActive.String)
	}
	l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &l, nil
}

// AddXP increments the learner's XP counter in place. The increment is
// a single UPDATE so concurrent awards never clobber each other.
func (s *Store) AddXP(ctx context.Context, learnerID int64, amount int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE learners SET xp = xp + ? WHERE id = ?
	`, amount, learnerID)
	if err != nil {
		return fmt.Errorf("add xp: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("learner %d not found", learnerID)
	}
	return nil
}

// SetStreak records the learner's streak and last-active timestamp.
// Streak arithmetic lives in the gamify package; the store just writes
// the computed values.
func (s *Store) SetStreak(ctx context.Context, learnerID int64, streak int, lastActive time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE learners SET streak_days = ?, last_active_date = ? WHERE id = ?
	`, streak, lastActive.UTC().Format(time.RFC3339), learnerID)
	if err != nil {
		return fmt.Errorf("set streak: %w", err)
	}
	return nil
}
