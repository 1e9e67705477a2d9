package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"esports-aggregator/internal/constants"
	"esports-aggregator/internal/domain"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type Config struct {
	ServerPort      string
	LogLevel        string
	DBPath          string
	RedisURL        string
	SyncInterval    time.Duration
	SyncOnStart     bool
	MatchesTTL      time.Duration
	PlayerStatsTTL  time.Duration
	CacheMaxKeys    int
	ProviderTimeout time.Duration
	Providers       []domain.ProviderDescriptor

	dotenv bool
}

// TTL returns the cache ttl configured for a record kind.
func (c *Config) TTL(kind domain.RecordKind) time.Duration {
	if kind == domain.KindPlayerStats {
		return c.PlayerStatsTTL
	}
	return c.MatchesTTL
}

// defaults mirror the public endpoints and published rate limits of each provider.
var defaultProviders = []domain.ProviderDescriptor{
	{
		ID:                "hltv",
		Games:             []domain.GameKind{domain.GameCSGO},
		BaseURL:           "https://hltv-api.vercel.app/api",
		Enabled:           true,
		RequestsPerMinute: 100,
		Priority:          10,
	},
	{
		ID:                "opendota",
		Games:             []domain.GameKind{domain.GameDota2},
		BaseURL:           "https://api.opendota.com/api",
		Enabled:           true,
		RequestsPerMinute: 60,
		Priority:          10,
	},
	{
		ID:                "riot",
		Games:             []domain.GameKind{domain.GameValorant},
		BaseURL:           "https://americas.api.riotgames.com",
		RequiresKey:       true,
		Enabled:           true,
		RequestsPerMinute: 50,
		Priority:          10,
	},
	{
		ID:                "faceit",
		Games:             []domain.GameKind{domain.GameCSGO, domain.GameValorant},
		BaseURL:           "https://open-api.faceit.com/data/v4",
		RequiresKey:       true,
		Enabled:           true,
		RequestsPerMinute: 1000,
		Priority:          20,
	},
}

// Load reads .env (when present) and then the process environment. It runs
// before the logger exists; LogSummary reports the result once it does.
func Load() (*Config, error) {
	dotenvErr := godotenv.Load()
	cfg, err := FromEnv(os.LookupEnv)
	if err != nil {
		return nil, err
	}
	cfg.dotenv = dotenvErr == nil
	return cfg, nil
}

// FromEnv builds a Config from a lookup function so tests can avoid the process environment.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	env := envReader{lookup: lookup}

	cfg := &Config{
		ServerPort:      env.str("SERVER_PORT", "8080"),
		LogLevel:        strings.ToLower(env.str("LOG_LEVEL", "info")),
		DBPath:          env.optional("DB_PATH", "esports.db"),
		RedisURL:        env.str("REDIS_URL", ""),
		SyncInterval:    env.duration("SYNC_INTERVAL", constants.SyncInterval),
		SyncOnStart:     env.boolean("SYNC_ON_START", true),
		MatchesTTL:      env.duration("MATCHES_CACHE_TTL", constants.MatchesCacheTTL),
		PlayerStatsTTL:  env.duration("PLAYER_STATS_CACHE_TTL", constants.PlayerStatsCacheTTL),
		CacheMaxKeys:    env.integer("CACHE_MAX_KEYS", constants.CacheMaxKeys),
		ProviderTimeout: env.duration("PROVIDER_TIMEOUT", constants.ProviderTimeout),
	}

	for _, def := range defaultProviders {
		p := def
		prefix := strings.ToUpper(p.ID) + "_"
		p.BaseURL = strings.TrimRight(env.str(prefix+"BASE_URL", p.BaseURL), "/")
		p.APIKey = env.str(prefix+"API_KEY", "")
		p.Enabled = env.boolean(prefix+"ENABLED", p.Enabled)
		p.RequestsPerMinute = env.integer(prefix+"RPM", p.RequestsPerMinute)
		p.Priority = env.integer(prefix+"PRIORITY", p.Priority)
		p.Timeout = cfg.ProviderTimeout
		cfg.Providers = append(cfg.Providers, p)
	}

	if err := env.err(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Level is the parsed LOG_LEVEL. Validation guarantees it parses.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// LogSummary logs the loaded configuration without credentials.
func (c *Config) LogSummary(logger zerolog.Logger) {
	if !c.dotenv {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}
	ev := logger.Info().
		Str("db_path", c.DBPath).
		Str("server_port", c.ServerPort).
		Str("log_level", c.LogLevel).
		Bool("redis_mirror", c.RedisURL != "").
		Dur("sync_interval", c.SyncInterval).
		Dur("matches_ttl", c.MatchesTTL).
		Dur("player_stats_ttl", c.PlayerStatsTTL)
	for _, p := range c.Providers {
		ev = ev.Bool(p.ID+"_configured", p.Enabled && p.Configured())
	}
	ev.Msg("configuration loaded")
}

func (c *Config) validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL %q is not a log level", c.LogLevel)
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("SYNC_INTERVAL must be positive, got %s", c.SyncInterval)
	}
	if c.MatchesTTL <= 0 || c.PlayerStatsTTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	if c.CacheMaxKeys <= 0 {
		return fmt.Errorf("CACHE_MAX_KEYS must be positive, got %d", c.CacheMaxKeys)
	}
	for _, p := range c.Providers {
		if p.Enabled && p.RequestsPerMinute <= 0 {
			return fmt.Errorf("%s_RPM must be positive, got %d", strings.ToUpper(p.ID), p.RequestsPerMinute)
		}
	}
	return nil
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []string
}

func (e *envReader) get(key string) string {
	v, _ := e.lookup(key)
	return strings.TrimSpace(v)
}

func (e *envReader) str(key, fallback string) string {
	if v := e.get(key); v != "" {
		return v
	}
	return fallback
}

// optional is like str, but a variable set to the empty string stays empty.
func (e *envReader) optional(key, fallback string) string {
	v, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	return strings.TrimSpace(v)
}

func (e *envReader) duration(key string, fallback time.Duration) time.Duration {
	v := e.get(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
		return fallback
	}
	return d
}

func (e *envReader) integer(key string, fallback int) int {
	v := e.get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
		return fallback
	}
	return n
}

func (e *envReader) boolean(key string, fallback bool) bool {
	v := e.get(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
		return fallback
	}
	return b
}

func (e *envReader) err() error {
	if len(e.errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(e.errs, "; "))
}
