package config

import (
	"os"
	"strconv"
	"time"

	"ctf-tracker/internal/constants"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type Config struct {
	DBPath     string
	ServerPort string
	LogLevel   string

	// WebhookURL receives capture and match-end notifications. Empty
	// disables the notifier.
	WebhookURL string

	MinPlayersPerTeam int
	WinThreshold      int
	Countdown         time.Duration
	MatchDuration     time.Duration
	EndingDisplay     time.Duration
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		DBPath:            getEnv("DB_PATH", "ctf.db"),
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		WebhookURL:        getEnv("WEBHOOK_URL", ""),
		MinPlayersPerTeam: getEnvInt("MIN_PLAYERS_PER_TEAM", constants.DefaultMinPlayersPerTeam),
		WinThreshold:      getEnvInt("WIN_THRESHOLD", constants.DefaultWinThreshold),
		Countdown:         getEnvDuration("COUNTDOWN", constants.DefaultCountdown),
		MatchDuration:     getEnvDuration("MATCH_DURATION", constants.DefaultMatchDuration),
		EndingDisplay:     getEnvDuration("ENDING_DISPLAY", constants.DefaultEndingDisplay),
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Int("win_threshold", cfg.WinThreshold).
		Dur("countdown", cfg.Countdown).
		Dur("match_duration", cfg.MatchDuration).
		Bool("webhook_enabled", cfg.WebhookURL != "").
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
