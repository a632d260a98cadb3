package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	HTTPAddr string

	RedisURL    string
	DatabaseURL string

	DefaultTimeControl  time.Duration
	AllowedTimeControls []time.Duration
	DefaultRating       int

	SnapshotTTLSec      int
	FinalizeRetries     int
	FinalizeBackoff     time.Duration
	ChallengeTTL        time.Duration
	MessageOverrideDir  string
	WSSendBuffer        int
	WSOriginPatterns    []string
	HistoryLimit        int
	ShutdownGracePeriod time.Duration
}

// SnapshotTTL is the Redis expiry for mirrored matches.
func (c *AppConfig) SnapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLSec) * time.Second
}

// Load reads the environment, after merging an optional .env file (ENV_FILE, default ".env").
// Variables already set in the process win over the file.
func Load() (*AppConfig, error) {
	envFile := strings.TrimSpace(os.Getenv("ENV_FILE"))
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &AppConfig{
		HTTPAddr:            ":8080",
		DefaultTimeControl:  10 * time.Minute,
		DefaultRating:       800,
		SnapshotTTLSec:      86400,
		FinalizeRetries:     5,
		FinalizeBackoff:     500 * time.Millisecond,
		ChallengeTTL:        2 * time.Minute,
		WSSendBuffer:        32,
		HistoryLimit:        10,
		ShutdownGracePeriod: 10 * time.Second,
	}

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MessageOverrideDir = strings.TrimSpace(os.Getenv("MESSAGE_OVERRIDE_DIR"))
	cfg.WSOriginPatterns = splitList(os.Getenv("WS_ORIGIN_PATTERNS"))

	if v := strings.TrimSpace(os.Getenv("DEFAULT_TIME_CONTROL")); v != "" {
		d, err := parseMinutes(v)
		if err != nil {
			return nil, fmt.Errorf("DEFAULT_TIME_CONTROL: %w", err)
		}
		cfg.DefaultTimeControl = d
	}
	for _, item := range splitList(os.Getenv("ALLOWED_TIME_CONTROLS")) {
		d, err := parseMinutes(item)
		if err != nil {
			return nil, fmt.Errorf("ALLOWED_TIME_CONTROLS: %w", err)
		}
		cfg.AllowedTimeControls = append(cfg.AllowedTimeControls, d)
	}

	positive := []struct {
		key string
		dst *int
	}{
		{"DEFAULT_RATING", &cfg.DefaultRating},
		{"SNAPSHOT_TTL_SEC", &cfg.SnapshotTTLSec},
		{"FINALIZE_RETRY_ATTEMPTS", &cfg.FinalizeRetries},
		{"WS_SEND_BUFFER", &cfg.WSSendBuffer},
		{"HISTORY_LIMIT", &cfg.HistoryLimit},
	}
	for _, p := range positive {
		if v := strings.TrimSpace(os.Getenv(p.key)); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*p.dst = n
			}
		}
	}
	if v := strings.TrimSpace(os.Getenv("FINALIZE_RETRY_BACKOFF_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.FinalizeBackoff = time.Duration(n) * time.Millisecond
		}
	}
	if v := strings.TrimSpace(os.Getenv("CHALLENGE_TTL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ChallengeTTL = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("SHUTDOWN_GRACE_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ShutdownGracePeriod = time.Duration(n) * time.Second
		}
	}

	if len(cfg.AllowedTimeControls) > 0 && !contains(cfg.AllowedTimeControls, cfg.DefaultTimeControl) {
		return nil, fmt.Errorf("DEFAULT_TIME_CONTROL %s is not in ALLOWED_TIME_CONTROLS", cfg.DefaultTimeControl)
	}
	return cfg, nil
}

// parseMinutes accepts a bare number of minutes ("5", "0.5") or a Go duration ("90s").
func parseMinutes(v string) (time.Duration, error) {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		if f <= 0 {
			return 0, fmt.Errorf("%q must be positive", v)
		}
		return time.Duration(f * float64(time.Minute)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%q is neither minutes nor a duration", v)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%q must be positive", v)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func contains(list []time.Duration, d time.Duration) bool {
	for _, x := range list {
		if x == d {
			return true
		}
	}
	return false
}
