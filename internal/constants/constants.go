package constants

import "time"

const (
	MatchesCacheTTL     = 5 * time.Minute
	PlayerStatsCacheTTL = 10 * time.Minute
	CacheMaxKeys        = 512
)

const (
	ProviderTimeout = 10 * time.Second
	RequestTimeout  = 30 * time.Second
	DatabaseTimeout = 5 * time.Second
	MirrorTimeout   = 2 * time.Second
)

const (
	SyncInterval    = 5 * time.Minute
	SyncHistorySize = 20
	SyncConcurrency = 4
)

const (
	DefaultLimit      = 50
	MaxLimit          = 200
	FallbackBaseCount = 10
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	DBBatchSize       = 100
	MigrationTimeout  = 30 * time.Second
)

const (
	ShutdownTimeout = 5 * time.Second
)
