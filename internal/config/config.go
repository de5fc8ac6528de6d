package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	WebSocketURL   string
	ReconnectDelay time.Duration

	ProfileTimeout       time.Duration
	ProfileGraceWindow   time.Duration
	MatchHistoryEnabled  bool
	MatchHistoryInterval time.Duration
	RankedSeason         int

	LadderSnapshotPath string
	DBPath             string

	AdminBattleTags []string
	DiscordInvite   string
	DefaultGameName string
	WC3StatsURL     string

	ServerPort string
	LogLevel   string
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	var p parser
	cfg := &Config{
		WebSocketURL:   getEnv("WC3_WS_URL", "ws://127.0.0.1:38123/"),
		ReconnectDelay: p.duration("WC3_RECONNECT_DELAY", 5*time.Second),

		ProfileTimeout:       p.duration("PROFILE_TIMEOUT", 5*time.Second),
		ProfileGraceWindow:   p.duration("PROFILE_GRACE_WINDOW", 2*time.Second),
		MatchHistoryEnabled:  p.boolean("ENABLE_MATCH_HISTORY_ENRICHMENT", false),
		MatchHistoryInterval: p.duration("MATCH_HISTORY_INTERVAL", 100*time.Millisecond),
		RankedSeason:         p.integer("RANKED_SEASON", 7),

		LadderSnapshotPath: getEnv("LADDER_SNAPSHOT_PATH", "ladder-data.json"),
		DBPath:             getEnv("DB_PATH", "wc3bridge.db"),

		AdminBattleTags: splitList(getEnv("ADMIN_BATTLETAGS", "Wizkid#11720,chimchim#1324")),
		DiscordInvite:   getEnv("DISCORD_INVITE", "https://discord.gg/SxYfB8pB2g"),
		DefaultGameName: getEnv("DEFAULT_GAME_NAME", "1v1 WC3 Obs Crew"),
		WC3StatsURL:     getEnv("WC3STATS_URL", "https://api.wc3stats.com/gamelist"),

		ServerPort: getEnv("SERVER_PORT", "8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
	}

	if strings.TrimSpace(cfg.WebSocketURL) == "" {
		p.fail(errors.New("WC3_WS_URL is required"))
	}
	if len(cfg.AdminBattleTags) == 0 {
		p.fail(errors.New("ADMIN_BATTLETAGS must name at least one BattleTag"))
	}
	if cfg.ProfileTimeout <= 0 {
		p.fail(errors.New("PROFILE_TIMEOUT must be positive"))
	}
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		p.fail(fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if err := errors.Join(p.errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Info().
		Str("ws_url", cfg.WebSocketURL).
		Dur("reconnect_delay", cfg.ReconnectDelay).
		Dur("profile_timeout", cfg.ProfileTimeout).
		Dur("profile_grace_window", cfg.ProfileGraceWindow).
		Bool("match_history", cfg.MatchHistoryEnabled).
		Int("ranked_season", cfg.RankedSeason).
		Str("snapshot_path", cfg.LadderSnapshotPath).
		Str("db_path", cfg.DBPath).
		Int("admins", len(cfg.AdminBattleTags)).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Msg("configuration loaded")

	return cfg, nil
}

// Level is the parsed LOG_LEVEL. Load has already validated it.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parser collects every bad value so one run reports all of them.
type parser struct {
	errs []error
}

func (p *parser) fail(err error) {
	p.errs = append(p.errs, err)
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func (p *parser) boolean(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

func (p *parser) integer(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

var Module = fx.Provide(Load)
