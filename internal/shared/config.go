package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv     string
	OutputDir  string
	LogFile    string
	StatusAddr string // status server off when empty

	MySQLDSN  string // MySQL sink off when empty
	RedisAddr string // checkpointing off when empty
	RedisPass string
	RedisDB   int

	GPlayBase    string // "" = production endpoint
	AppStoreBase string

	SourceRPS      int
	Workers        int
	MaxAttempts    int
	AttemptTimeout time.Duration
	CheckpointTTL  time.Duration
}

func Load() Config {
	// best-effort .env for local runs
	_ = godotenv.Load()

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	return Config{
		AppEnv:         env("APP_ENV", "prod"),
		OutputDir:      env("OUTPUT_DIR", "data/raw"),
		LogFile:        env("LOG_FILE", ""),
		StatusAddr:     env("STATUS_ADDR", ""),
		MySQLDSN:       env("MYSQL_DSN", ""),
		RedisAddr:      env("REDIS_ADDR", ""),
		RedisPass:      env("REDIS_PASSWORD", ""),
		RedisDB:        atoi("REDIS_DB", 0),
		GPlayBase:      env("GPLAY_BASE_URL", ""),
		AppStoreBase:   env("APPSTORE_BASE_URL", ""),
		SourceRPS:      atoi("SOURCE_RPS", 5),
		Workers:        atoi("COLLECT_WORKERS", 4),
		MaxAttempts:    atoi("FETCH_MAX_ATTEMPTS", 3),
		AttemptTimeout: time.Duration(atoi("FETCH_TIMEOUT_SECONDS", 30)) * time.Second,
		CheckpointTTL:  time.Duration(atoi("CHECKPOINT_TTL_SECONDS", 86400)) * time.Second,
	}
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
