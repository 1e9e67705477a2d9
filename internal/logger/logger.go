package logger

import (
	"io"
	"os"

	"esports-aggregator/internal/config"

	"github.com/rs/zerolog"
)

// New builds the process logger at the configured level.
func New(cfg *config.Config) zerolog.Logger {
	return newLogger(os.Stdout, cfg.Level())
}

func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(w).
		With().
		Timestamp().
		Caller().
		Logger()

	return logger.Level(level)
}
