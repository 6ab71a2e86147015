package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration derived from environment variables.
type Config struct {
	HTTPPort      string
	SwitchURL     string
	AccountsURL   string
	BankCode      string
	DBPath        string
	SwitchTimeout time.Duration
	PollDelay     time.Duration
	PollBudget    int
	SweepInterval time.Duration
	RateLimitRPS  int
	LogLevel      string
}

// Load reads environment variables using viper and returns a typed config.
// An empty SwitchURL selects the in-process switch simulator, which is only
// acceptable outside production.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	bindEnv(v, "port", "PORT", "ORCH_PORT")
	bindEnv(v, "switch_url", "SWITCH_URL", "ORCH_SWITCH_URL")
	bindEnv(v, "accounts_url", "ACCOUNTS_URL", "ORCH_ACCOUNTS_URL")
	bindEnv(v, "bank_code", "BANK_CODE", "ORCH_BANK_CODE")
	bindEnv(v, "db_path", "DB_PATH", "ORCH_DB_PATH")
	bindEnv(v, "switch_timeout", "SWITCH_TIMEOUT", "ORCH_SWITCH_TIMEOUT")
	bindEnv(v, "poll_delay", "POLL_DELAY", "ORCH_POLL_DELAY")
	bindEnv(v, "poll_budget", "POLL_BUDGET", "ORCH_POLL_BUDGET")
	bindEnv(v, "sweep_interval", "SWEEP_INTERVAL", "ORCH_SWEEP_INTERVAL")
	bindEnv(v, "rate_limit_rps", "RATE_LIMIT_RPS", "ORCH_RATE_LIMIT_RPS")
	bindEnv(v, "log_level", "LOG_LEVEL", "ORCH_LOG_LEVEL")

	v.SetDefault("port", "8080")
	v.SetDefault("switch_url", "")
	v.SetDefault("accounts_url", "")
	v.SetDefault("bank_code", "BANTEC")
	v.SetDefault("db_path", "orchestrator.db")
	v.SetDefault("switch_timeout", "10s")
	v.SetDefault("poll_delay", "1500ms")
	v.SetDefault("poll_budget", 10)
	v.SetDefault("sweep_interval", "5m")
	v.SetDefault("rate_limit_rps", 20)
	v.SetDefault("log_level", "info")

	switchTimeout, err := time.ParseDuration(v.GetString("switch_timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWITCH_TIMEOUT: %w", err)
	}
	pollDelay, err := time.ParseDuration(v.GetString("poll_delay"))
	if err != nil {
		return nil, fmt.Errorf("invalid POLL_DELAY: %w", err)
	}
	sweepInterval, err := time.ParseDuration(v.GetString("sweep_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL: %w", err)
	}

	pollBudget := v.GetInt("poll_budget")
	if pollBudget <= 0 {
		pollBudget = 10
	}

	cfg := &Config{
		HTTPPort:      v.GetString("port"),
		SwitchURL:     strings.TrimSpace(v.GetString("switch_url")),
		AccountsURL:   strings.TrimSpace(v.GetString("accounts_url")),
		BankCode:      strings.TrimSpace(v.GetString("bank_code")),
		DBPath:        v.GetString("db_path"),
		SwitchTimeout: switchTimeout,
		PollDelay:     pollDelay,
		PollBudget:    pollBudget,
		SweepInterval: sweepInterval,
		RateLimitRPS:  max(v.GetInt("rate_limit_rps"), 1),
		LogLevel:      v.GetString("log_level"),
	}

	if cfg.BankCode == "" {
		return nil, fmt.Errorf("BANK_CODE is required")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return nil, fmt.Errorf("DB_PATH is required")
	}

	return cfg, nil
}

func bindEnv(v *viper.Viper, key string, names ...string) {
	args := append([]string{key}, names...)
	_ = v.BindEnv(args...)
}
