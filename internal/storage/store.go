package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/probelab/groundcheck/internal/types"
)

// ResultStore persists grounding results for audit. Persistence is a
// collaborator, not part of the engine: a failed save is logged by the
// caller and never fails the request.
type ResultStore interface {
	Save(ctx context.Context, mode types.GroundingMode, res *types.GroundingResult) error
}

// PGResultStore implements ResultStore on PostgreSQL.
type PGResultStore struct {
	db *pgxpool.Pool
}

func NewPGResultStore(db *pgxpool.Pool) *PGResultStore {
	return &PGResultStore{db: db}
}

func (s *PGResultStore) Save(ctx context.Context, mode types.GroundingMode, res *types.GroundingResult) error {
	citations, err := json.Marshal(res.Citations)
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO grounding_results
			(request_id, provider, model_id, grounding_mode, answer_text,
			 tool_call_count, citations, grounded_effective, raw_payload, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
	`,
		res.RequestID,
		res.Provider,
		res.ModelID,
		string(mode),
		res.Text,
		res.ToolCallCount,
		citations,
		res.GroundedEffective,
		[]byte(res.RawProviderPayload),
		res.Latency.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert grounding result: %w", err)
	}
	return nil
}

// NoopStore discards results; used when no database is configured.
type NoopStore struct{}

func (NoopStore) Save(context.Context, types.GroundingMode, *types.GroundingResult) error {
	return nil
}

// saveTimeout bounds the fire-and-forget persistence write.
const saveTimeout = 5 * time.Second

// SaveAsync persists res without blocking the request path.
func SaveAsync(store ResultStore, mode types.GroundingMode, res *types.GroundingResult, onErr func(error)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := store.Save(ctx, mode, res); err != nil && onErr != nil {
			onErr(err)
		}
	}()
}
