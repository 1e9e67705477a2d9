package repository

import (
	"context"
	"database/sql"

	"esports-aggregator/internal/domain"

	"github.com/rs/zerolog"
)

// Store groups the repositories behind the aggregator's record sink and the
// scheduler's run recorder.
type Store struct {
	Matches     *MatchRepository
	PlayerStats *PlayerStatRepository
	SyncRuns    *SyncRunRepository
}

// NewStore returns nil when the database sink is disabled.
func NewStore(sqlDB *sql.DB, logger zerolog.Logger) *Store {
	if sqlDB == nil {
		return nil
	}
	logger = logger.With().Str("component", "repository").Logger()
	return &Store{
		Matches:     NewMatchRepository(sqlDB, logger),
		PlayerStats: NewPlayerStatRepository(sqlDB, logger),
		SyncRuns:    NewSyncRunRepository(sqlDB, logger),
	}
}

func (s *Store) SaveMatches(ctx context.Context, records []domain.NormalizedMatch) error {
	return s.Matches.UpsertBatch(ctx, records)
}

func (s *Store) SavePlayerStats(ctx context.Context, records []domain.NormalizedPlayerStat) error {
	return s.PlayerStats.UpsertBatch(ctx, records)
}

func (s *Store) SaveSyncRun(ctx context.Context, run domain.SyncRun) error {
	return s.SyncRuns.Insert(ctx, run)
}
