package memory

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// fakeEmbedder maps known texts to fixed vectors so similarity ordering
// is deterministic in tests.
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := NewStore(db, &fakeEmbedder{vectors: map[string][]float32{
		"prefers visual explanations": {1, 0, 0},
		"studying for biology exam":   {0.9, 0.1, 0},
		"likes short quizzes":         {0, 1, 0},
		"visual learning":             {1, 0, 0},
	}})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestAddAndAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Add(ctx, 1, "prefers visual explanations", map[string]any{"category": CategoryLearningPreference})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if rec.ID.String() == "" || rec.LearnerID != 1 {
		t.Errorf("record = %+v", rec)
	}

	all, err := s.All(ctx, 1)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("All = %d records, want 1", len(all))
	}
	if all[0].Content != "prefers visual explanations" {
		t.Errorf("content = %q", all[0].Content)
	}
	if all[0].Category() != CategoryLearningPreference {
		t.Errorf("category = %q", all[0].Category())
	}
	if len(all[0].Embedding) != 3 {
		t.Errorf("embedding = %v", all[0].Embedding)
	}
}

func TestSearchSemanticOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, content := range []string{"likes short quizzes", "studying for biology exam", "prefers visual explanations"} {
		if _, err := s.Add(ctx, 1, content, map[string]any{"category": CategoryGeneral}); err != nil {
			t.Fatalf("Add(%q): %v", content, err)
		}
	}

	got, err := s.SearchSemantic(ctx, "visual learning", 1, 2)
	if err != nil {
		t.Fatalf("SearchSemantic: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("results = %d, want 2", len(got))
	}
	// Closest to the query vector first.
	if got[0].Content != "prefers visual explanations" {
		t.Errorf("first = %q", got[0].Content)
	}
	if got[1].Content != "studying for biology exam" {
		t.Errorf("second = %q", got[1].Content)
	}
}

func TestSearchSemanticLearnerScoped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Add(ctx, 1, "prefers visual explanations", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add(ctx, 2, "studying for biology exam", nil); err != nil {
		t.Fatal(err)
	}

	got, err := s.SearchSemantic(ctx, "visual learning", 2, 10)
	if err != nil {
		t.Fatalf("SearchSemantic: %v", err)
	}
	if len(got) != 1 || got[0].LearnerID != 2 {
		t.Errorf("results = %+v, want only learner 2's record", got)
	}
}

func TestByCategoryNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older, err := s.Add(ctx, 1, "likes short quizzes", map[string]any{"category": CategoryLearningPreference})
	if err != nil {
		t.Fatal(err)
	}
	// Force distinct created_at values (RFC3339 has second resolution).
	_, err = s.db.Exec(`UPDATE memories SET created_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-time.Hour).Format(time.RFC3339), older.ID.String())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Add(ctx, 1, "prefers visual explanations", map[string]any{"category": CategoryLearningPreference}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add(ctx, 1, "studying for biology exam", map[string]any{"category": CategoryGeneral}); err != nil {
		t.Fatal(err)
	}

	got, err := s.ByCategory(ctx, CategoryLearningPreference, 1, 10)
	if err != nil {
		t.Fatalf("ByCategory: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("results = %d, want 2", len(got))
	}
	if got[0].Content != "prefers visual explanations" {
		t.Errorf("first = %q, want newest", got[0].Content)
	}
}

func TestDueForReview(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	add := func(concept string, nextReview time.Time) {
		t.Helper()
		_, err := s.Add(ctx, 1, "Concept: "+concept, map[string]any{
			"category":         CategoryLearningProgress,
			"concept":          concept,
			"state":            "practicing",
			"next_review_date": nextReview.Format(time.RFC3339),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	add("recursion", now.Add(-48*time.Hour))
	add("pointers", now.Add(-1*time.Hour))
	add("closures", now.Add(72*time.Hour))

	got, err := s.DueForReview(ctx, 1)
	if err != nil {
		t.Fatalf("DueForReview: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("results = %d, want 2 (future item excluded)", len(got))
	}
	// Most overdue first.
	if got[0].Metadata["concept"] != "recursion" || got[1].Metadata["concept"] != "pointers" {
		t.Errorf("order = %v, %v", got[0].Metadata["concept"], got[1].Metadata["concept"])
	}
}

func TestDeleteAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.Add(ctx, 1, "likes short quizzes", nil); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Add(ctx, 2, "studying for biology exam", nil); err != nil {
		t.Fatal(err)
	}

	n, err := s.DeleteAll(ctx, 1)
	if err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if n != 3 {
		t.Errorf("deleted = %d, want 3", n)
	}

	remaining, err := s.All(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 {
		t.Errorf("learner 2 records = %d, want 1 (untouched)", len(remaining))
	}
}

func TestMergeUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := s.Add(ctx, 1, "prefers visual explanations", nil)
	b, _ := s.Add(ctx, 1, "likes short quizzes", nil)
	c, _ := s.Add(ctx, 1, "studying for biology exam", nil)

	semantic := []*Record{a, b}
	category := []*Record{b, c}
	due := []*Record{a}

	merged := MergeUnique(semantic, category, due)
	if len(merged) != 3 {
		t.Fatalf("merged = %d, want 3", len(merged))
	}
	// First-seen order: semantic results lead, duplicates dropped.
	if merged[0].ID != a.ID || merged[1].ID != b.ID || merged[2].ID != c.ID {
		t.Errorf("order = %v, %v, %v", merged[0].Content, merged[1].Content, merged[2].Content)
	}
}
