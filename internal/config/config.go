package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"reward_engine/internal/domain"
	"reward_engine/internal/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort        string
	DatabaseURL    string
	DBMaxConns     int32
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	LogLevel       string
	LogJSON        bool
	RequestTimeout time.Duration

	// Quota and rewards
	Quota         domain.QuotaPolicy
	Reward        domain.RewardPolicy
	BoxRetention  domain.BoxRetention
	TxMaxAttempts int

	// Daily reset
	ResetCron          string
	ResetWindow        time.Duration
	ResetBatchSize     int
	ResetWorkers       int
	ResetTaskTimeout   time.Duration
	ResetSkipIfRunning bool
	ResetZones         []string

	// Rate limits
	ViewRateLimit  int
	ViewRateWindow time.Duration
	APIRateLimit   int
	APIRateWindow  time.Duration
}

// Load reads .env and the environment; exits on invalid configuration.
func Load() *Config {
	_ = godotenv.Load()

	cfg, err := Parse()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}
	return cfg
}

// Parse builds a Config from the current environment without touching .env.
func Parse() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	resetCron := os.Getenv("RESET_CRON")
	if resetCron == "" {
		resetCron = "*/30 * * * *" // every 30 minutes, on :00 and :30
	}

	retention := domain.BoxRetention(strings.TrimSpace(os.Getenv("RESET_BOX_POLICY")))
	if retention == "" {
		retention = domain.BoxRetentionDeleteAll
	}

	// comma separated zone list, overrides the system zone database
	var zones []string
	if v := os.Getenv("RESET_ZONES"); v != "" {
		for _, z := range strings.Split(v, ",") {
			z = strings.TrimSpace(z)
			if z != "" {
				zones = append(zones, z)
			}
		}
	}

	cfg := &Config{
		AppPort:        port,
		DatabaseURL:    dbURL,
		DBMaxConns:     int32(envInt("DB_MAX_CONNS", 20)),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        envInt("REDIS_DB", 0),
		LogLevel:       envString("LOG_LEVEL", "info"),
		LogJSON:        os.Getenv("LOG_JSON") == "true",
		RequestTimeout: envSeconds("REQUEST_TIMEOUT_SECONDS", 5),

		Quota: domain.QuotaPolicy{
			DailyViews:       envInt("DAILY_VIEW_LIMIT", 20),
			ViewsPerReward:   envInt("VIEWS_PER_REWARD", 2),
			MaxRewardsPerDay: envInt("MAX_REWARDS_PER_DAY", 10),
		},
		Reward: domain.RewardPolicy{
			MinCoins: int64(envInt("REWARD_COINS_MIN", 10)),
			MaxCoins: int64(envInt("REWARD_COINS_MAX", 50)),
		},
		BoxRetention:  retention,
		TxMaxAttempts: envInt("TX_MAX_ATTEMPTS", 3),

		ResetCron:          resetCron,
		ResetWindow:        time.Duration(envInt("RESET_WINDOW_MINUTES", 30)) * time.Minute,
		ResetBatchSize:     envInt("RESET_BATCH_SIZE", 100),
		ResetWorkers:       envInt("RESET_WORKERS", 10),
		ResetTaskTimeout:   envSeconds("RESET_TASK_TIMEOUT_SECONDS", 10),
		ResetSkipIfRunning: os.Getenv("RESET_SKIP_IF_RUNNING") == "true",
		ResetZones:         zones,

		ViewRateLimit:  envInt("VIEW_RATE_LIMIT", 30),
		ViewRateWindow: envSeconds("VIEW_RATE_WINDOW_SECONDS", 60),
		APIRateLimit:   envInt("API_RATE_LIMIT", 120),
		APIRateWindow:  envSeconds("API_RATE_WINDOW_SECONDS", 60),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Quota.DailyViews <= 0 || c.Quota.ViewsPerReward <= 0 || c.Quota.MaxRewardsPerDay < 0 {
		return fmt.Errorf("quota limits must be positive: %+v", c.Quota)
	}
	if c.Reward.MinCoins <= 0 || c.Reward.MaxCoins < c.Reward.MinCoins {
		return fmt.Errorf("invalid reward coin range [%d, %d]", c.Reward.MinCoins, c.Reward.MaxCoins)
	}
	switch c.BoxRetention {
	case domain.BoxRetentionDeleteAll, domain.BoxRetentionKeepUnopened:
	default:
		return fmt.Errorf("unknown RESET_BOX_POLICY %q", c.BoxRetention)
	}
	if c.TxMaxAttempts <= 0 {
		return errors.New("TX_MAX_ATTEMPTS must be positive")
	}
	if c.ResetWindow <= 0 || c.ResetWindow > time.Hour {
		return fmt.Errorf("RESET_WINDOW_MINUTES must be in (0, 60], got %s", c.ResetWindow)
	}
	if c.ResetBatchSize <= 0 || c.ResetWorkers <= 0 {
		return errors.New("RESET_BATCH_SIZE and RESET_WORKERS must be positive")
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envInt falls back to def when the variable is unset or not a number.
func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envSeconds(key string, def int) time.Duration {
	n := envInt(key, def)
	if n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Second
}
