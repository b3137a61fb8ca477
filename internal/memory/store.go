// Package memory provides long-term memory storage for facts about
// learners. Each record carries an embedding vector so retrieval can
// rank by semantic similarity, plus a free-form metadata map that holds
// the category and, for learning-progress records, the review schedule.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/sahayak/tutor-agent/internal/embeddings"
)

// Memory categories. Category lives in the metadata map rather than a
// dedicated column, so queries filter on metadata contents.
const (
	CategoryUserProfile        = "user_profile"
	CategoryLearningPreference = "learning_preference"
	CategoryGeneral            = "general"
	CategoryLearningProgress   = "learning_progress"
)

// Record is one persisted fact about a learner. Records are never
// mutated in place; a concept update is a new row, so current state is
// derived from the most recent matching record.
type Record struct {
	ID        uuid.UUID      `json:"id"`
	LearnerID int64          `json:"learner_id"`
	Content   string         `json:"content"`
	Embedding []float32      `json:"-"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// Category returns the record's category from metadata.
func (r *Record) Category() string {
	if c, ok := r.Metadata["category"].(string); ok {
		return c
	}
	return ""
}

// Embedder generates a vector for a text. The embeddings client
// implements this; tests substitute a deterministic fake.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store manages memory persistence.
type Store struct {
	db       *sql.DB
	embedder Embedder
}

// NewStore creates a memory store using an existing database connection.
func NewStore(db *sql.DB, embedder Embedder) (*Store, error) {
	s := &Store{db: db, embedder: embedder}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			learner_id INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding BLOB,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_memories_learner ON memories(learner_id);
		CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at DESC);
	`)
	return err
}

// Add embeds content and persists it as a new memory for the learner.
func (s *Store) Add(ctx context.Context, learnerID int64, content string, metadata map[string]any) (*Record, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}

	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	id, _ := uuid.NewV7()
	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, learner_id, content, embedding, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id.String(), learnerID, content, embeddings.Encode(vec), string(metaJSON), now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}

	return &Record{
		ID:        id,
		LearnerID: learnerID,
		Content:   content,
		Embedding: vec,
		Metadata:  metadata,
		CreatedAt: now,
	}, nil
}

// SearchSemantic returns the learner's memories nearest to query,
// most similar first. Ranking is by ascending cosine distance; ties
// keep scan order.
func (s *Store) SearchSemantic(ctx context.Context, query string, learnerID int64, limit int) ([]*Record, error) {
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	records, err := s.All(ctx, learnerID)
	if err != nil {
		return nil, err
	}

	type scored struct {
		rec      *Record
		distance float32
	}
	candidates := make([]scored, 0, len(records))
	for _, rec := range records {
		if len(rec.Embedding) == 0 {
			continue
		}
		candidates = append(candidates, scored{
			rec:      rec,
			distance: embeddings.CosineDistance(queryVec, rec.Embedding),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})

	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}
	result := make([]*Record, len(candidates))
	for i, c := range candidates {
		result[i] = c.rec
	}
	return result, nil
}

// ByCategory returns the learner's memories in a category, newest first.
func (s *Store) ByCategory(ctx context.Context, category string, learnerID int64, limit int) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, learner_id, content, embedding, metadata, created_at
		FROM memories
		WHERE learner_id = ? AND json_extract(metadata, '$.category') = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, learnerID, category, queryLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// DueForReview returns learning-progress memories whose next review
// date has passed, most overdue first.
func (s *Store) DueForReview(ctx context.Context, learnerID int64) ([]*Record, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, learner_id, content, embedding, metadata, created_at
		FROM memories
		WHERE learner_id = ?
		  AND json_extract(metadata, '$.category') = ?
		  AND json_extract(metadata, '$.next_review_date') <= ?
		ORDER BY json_extract(metadata, '$.next_review_date') ASC
	`, learnerID, CategoryLearningProgress, now)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// All returns every memory for the learner, newest first.
func (s *Store) All(ctx context.Context, learnerID int64) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, learner_id, content, embedding, metadata, created_at
		FROM memories
		WHERE learner_id = ?
		ORDER BY created_at DESC
	`, learnerID)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// DeleteAll removes every memory for the learner and returns the count.
func (s *Store) DeleteAll(ctx context.Context, learnerID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE learner_id = ?`, learnerID)
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

// MergeUnique combines retrieval result sets in priority order,
// dropping records already seen. First-seen position wins, so a record
// returned by both semantic search and a category pull appears once, at
// its semantic-search position.
func MergeUnique(groups ...[]*Record) []*Record {
	seen := make(map[uuid.UUID]bool)
	var merged []*Record
	for _, group := range groups {
		for _, rec := range group {
			if seen[rec.ID] {
				continue
			}
			seen[rec.ID] = true
			merged = append(merged, rec)
		}
	}
	return merged
}

func queryLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	var records []*Record
	for rows.Next() {
		var (
			r         Record
			idStr     string
			embedding []byte
			metaJSON  string
			createdAt string
		)
		if err := rows.Scan(&idStr, &r.LearnerID, &r.Content, &embedding, &metaJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		r.ID, _ = uuid.Parse(idStr)
		r.Embedding = embeddings.Decode(embedding)
		if err := json.Unmarshal([]byte(metaJSON), &r.Metadata); err != nil {
			r.Metadata = map[string]any{}
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		records = append(records, &r)
	}
	return records, rows.Err()
}
