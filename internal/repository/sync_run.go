package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"esports-aggregator/internal/domain"

	"github.com/rs/zerolog"
)

type SyncRunRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewSyncRunRepository(sqlDB *sql.DB, logger zerolog.Logger) *SyncRunRepository {
	return &SyncRunRepository{
		db:     sqlDB,
		logger: logger,
	}
}

func (r *SyncRunRepository) Insert(ctx context.Context, run domain.SyncRun) error {
	outcomes, err := json.Marshal(run.Outcomes)
	if err != nil {
		return fmt.Errorf("failed to encode outcomes: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO sync_runs (id, started_at, finished_at, forced, refreshed, deferred, failed, outcomes)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Forced,
		run.Count(domain.PairRefreshed), run.Count(domain.PairDeferred), run.Count(domain.PairFailed),
		string(outcomes),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync run %s: %w", run.ID, err)
	}
	return nil
}

// Recent returns the newest runs first.
func (r *SyncRunRepository) Recent(ctx context.Context, limit int) ([]domain.SyncRun, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, started_at, finished_at, forced, outcomes
FROM sync_runs
ORDER BY started_at DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SyncRun
	for rows.Next() {
		var run domain.SyncRun
		var outcomes string
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.Forced, &outcomes); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(outcomes), &run.Outcomes); err != nil {
			return nil, fmt.Errorf("failed to decode outcomes for run %s: %w", run.ID, err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
