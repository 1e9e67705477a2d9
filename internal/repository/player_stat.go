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

const upsertPlayerStatSQL = `
INSERT INTO player_stats (
    id, source, game, external_id, player, team, kills, deaths, assists,
    rating, efficiency, as_of, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (source, game, external_id) DO UPDATE SET
    player     = excluded.player,
    team       = excluded.team,
    kills      = excluded.kills,
    deaths     = excluded.deaths,
    assists    = excluded.assists,
    rating     = excluded.rating,
    efficiency = excluded.efficiency,
    as_of      = excluded.as_of,
    updated_at = excluded.updated_at`

type PlayerStatRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewPlayerStatRepository(sqlDB *sql.DB, logger zerolog.Logger) *PlayerStatRepository {
	return &PlayerStatRepository{
		db:     sqlDB,
		logger: logger,
	}
}

func (r *PlayerStatRepository) UpsertBatch(ctx context.Context, stats []domain.NormalizedPlayerStat) error {
	if len(stats) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertPlayerStatSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare player stat upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := 0; i < len(stats); i += constants.DBBatchSize {
		end := min(i+constants.DBBatchSize, len(stats))

		for _, s := range stats[i:end] {
			id, err := gonanoid.New()
			if err != nil {
				return fmt.Errorf("failed to generate nanoid: %w", err)
			}
			_, err = stmt.ExecContext(ctx,
				id, s.Source, string(s.Game), s.ID, s.Player, s.Team, s.Kills, s.Deaths, s.Assists,
				s.Rating, s.Efficiency, nullTime(s.AsOf), now, now,
			)
			if err != nil {
				return fmt.Errorf("failed to upsert player stat %s/%s: %w", s.Source, s.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit player stats: %w", err)
	}
	r.logger.Debug().Int("count", len(stats)).Msg("player stats persisted")
	return nil
}

func (r *PlayerStatRepository) GetByPlayer(ctx context.Context, game domain.GameKind, player string) ([]domain.NormalizedPlayerStat, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT external_id, source, player, team, kills, deaths, assists, rating, efficiency, as_of
FROM player_stats
WHERE game = ? AND player = ? COLLATE NOCASE
ORDER BY as_of DESC`, string(game), player)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.NormalizedPlayerStat
	for rows.Next() {
		s := domain.NormalizedPlayerStat{Game: game}
		var asOf sql.NullTime
		if err := rows.Scan(&s.ID, &s.Source, &s.Player, &s.Team, &s.Kills, &s.Deaths, &s.Assists, &s.Rating, &s.Efficiency, &asOf); err != nil {
			return nil, err
		}
		if asOf.Valid {
			s.AsOf = asOf.Time
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
