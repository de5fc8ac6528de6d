package logger

import (
	"os"
	"wc3-bridge/internal/config"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func New() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Caller().
		Str("service", "wc3-bridge").
		Logger()

	logger = logger.Level(zerolog.DebugLevel)

	return logger
}

// SetLevel caps every logger in the process at level.
func SetLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// ApplyConfig runs once config is loaded; config loading itself logs at debug.
func ApplyConfig(cfg *config.Config, logger zerolog.Logger) {
	SetLevel(cfg.Level())
	logger.Info().Str("level", cfg.Level().String()).Msg("log level set")
}

var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(ApplyConfig),
)
