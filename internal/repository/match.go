package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"esports-aggregator/internal/constants"
	"esports-aggregator/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const upsertMatchSQL = `
INSERT INTO matches (
    id, source, game, external_id, team_a, team_b, score_a, score_b,
    outcome, status, event, started_at, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (source, game, external_id) DO UPDATE SET
    team_a     = excluded.team_a,
    team_b     = excluded.team_b,
    score_a    = excluded.score_a,
    score_b    = excluded.score_b,
    outcome    = excluded.outcome,
    status     = excluded.status,
    event      = excluded.event,
    started_at = excluded.started_at,
    updated_at = excluded.updated_at`

type MatchRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewMatchRepository(sqlDB *sql.DB, logger zerolog.Logger) *MatchRepository {
	return &MatchRepository{
		db:     sqlDB,
		logger: logger,
	}
}

func (r *MatchRepository) UpsertBatch(ctx context.Context, matches []domain.NormalizedMatch) error {
	if len(matches) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertMatchSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare match upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := 0; i < len(matches); i += constants.DBBatchSize {
		end := min(i+constants.DBBatchSize, len(matches))

		for _, m := range matches[i:end] {
			id, err := gonanoid.New()
			if err != nil {
				return fmt.Errorf("failed to generate nanoid: %w", err)
			}
			_, err = stmt.ExecContext(ctx,
				id, m.Source, string(m.Game), m.ID, m.TeamA, m.TeamB, m.ScoreA, m.ScoreB,
				string(m.Outcome), string(m.Status), m.Event, nullTime(m.StartedAt), now, now,
			)
			if err != nil {
				return fmt.Errorf("failed to upsert match %s/%s: %w", m.Source, m.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit matches: %w", err)
	}
	r.logger.Debug().Int("count", len(matches)).Msg("matches persisted")
	return nil
}

// CountByGame is used by tests and diagnostics.
func (r *MatchRepository) CountByGame(ctx context.Context, game domain.GameKind) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM matches WHERE game = ?`, string(game)).Scan(&n)
	return n, err
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
