package databases

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"caloriebot/internal/inline"
)

// MealRecord is the row persisted for a completed estimation job.
type MealRecord struct {
	JobID        string
	ChatIDHash   string
	Source       string
	RawEstimate  inline.EstimateResult
	CreatedAt    time.Time
}

// MealStore persists estimate results into Postgres, keyed uniquely on
// job_id so a retried delivery can never double-write a meal.
type MealStore struct {
	pool *pgxpool.Pool
}

// NewMealStore creates the store and ensures schema exists.
func NewMealStore(ctx context.Context, pool *pgxpool.Pool) (*MealStore, error) {
	store := &MealStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *MealStore) initSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS meals (
		job_id TEXT PRIMARY KEY,
		chat_id_hash TEXT NOT NULL,
		source TEXT NOT NULL,
		calories_mean DOUBLE PRECISION NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		raw_estimate JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);`
	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("init meals schema: %w", err)
	}
	return nil
}

// Save persists result under job_id, idempotently: a second call for the
// same job_id is a no-op rather than an error, since C8 has no visibility
// timeout and may retry the observable side effect.
func (s *MealStore) Save(ctx context.Context, jobID, chatIDHash string, result inline.EstimateResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("meal store: marshal estimate: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO meals (job_id, chat_id_hash, source, calories_mean, confidence, raw_estimate, created_at)
		VALUES ($1, $2, 'inline', $3, $4, $5, $6)
		ON CONFLICT (job_id) DO NOTHING`,
		jobID, chatIDHash, result.CaloriesMean, result.Confidence, payload, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("meal store: insert: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *MealStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}
