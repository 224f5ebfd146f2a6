package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix         = "KEIBA_BOT"
	defaultConfigPath = "config/config.yaml"

	// DefaultTimezone is the JRA race-day time zone.
	DefaultTimezone = "Asia/Tokyo"
	// DefaultBroadcastCron sends the daily prediction at 10:00.
	DefaultBroadcastCron = "0 10 * * *"
	// DefaultResetCron clears the prediction cache at midnight.
	DefaultResetCron = "0 0 * * *"
)

// Load reads and parses the configuration from file and environment variables
// It expands environment variable placeholders in the YAML file (${VAR_NAME})
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = defaultConfigPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v := newViper()
	setDefaults(v)
	if err := v.ReadConfig(bytes.NewBufferString(os.ExpandEnv(string(data)))); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return unmarshal(v)
}

// LoadWithDefaults loads configuration with default values for optional fields.
// A missing file is not an error; defaults and environment variables are used.
func LoadWithDefaults(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = defaultConfigPath
	}

	v := newViper()
	setDefaults(v)

	if data, err := os.ReadFile(configPath); err == nil {
		if err := v.ReadConfig(bytes.NewBufferString(os.ExpandEnv(string(data)))); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

// setDefaults registers every key so AutomaticEnv can override values absent from the file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "keiba-line-bot")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.version", "3.1.0")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "keiba")
	v.SetDefault("database.user", "keiba")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_connections", 1)

	v.SetDefault("line.channel_secret", "")
	v.SetDefault("line.channel_access_token", "")
	v.SetDefault("line.api_base_url", "https://api.line.me")
	v.SetDefault("line.timeout_seconds", 10)
	v.SetDefault("line.rate_limit_per_second", 10)
	v.SetDefault("line.retry_attempts", 3)
	v.SetDefault("line.broadcast_max_races", 5)

	v.SetDefault("data_source.name", "jra")
	v.SetDefault("data_source.base_url", "https://www.jra.go.jp")
	v.SetDefault("data_source.fixture_path", "")
	v.SetDefault("data_source.user_agent", "keiba-line-bot/3.1")
	v.SetDefault("data_source.rate_limit_per_second", 1)
	v.SetDefault("data_source.burst", 2)
	v.SetDefault("data_source.timeout_seconds", 30)
	v.SetDefault("data_source.retry_attempts", 3)
	v.SetDefault("data_source.max_concurrent_fetches", 5)
	v.SetDefault("data_source.breaker_failures", 5)
	v.SetDefault("data_source.breaker_timeout_seconds", 60)

	v.SetDefault("prediction.module_timeout_seconds", 30)
	v.SetDefault("prediction.run_timeout_seconds", 300)
	v.SetDefault("prediction.min_quality_score", 0.94)

	v.SetDefault("staking.daily_budget", 20000)
	v.SetDefault("staking.max_single_bet", 5000)
	v.SetDefault("staking.min_bet", 100)
	v.SetDefault("staking.bet_unit", 100)
	v.SetDefault("staking.kelly_modifier", 0.25)
	v.SetDefault("staking.max_kelly_fraction", 0.1)
	v.SetDefault("staking.max_high_risk_bets", 2)
	v.SetDefault("staking.basic_min_score", 70)
	v.SetDefault("staking.dark_horse_min_score", 75)
	v.SetDefault("staking.exotic_min_confidence", 0.8)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.broadcast_cron", DefaultBroadcastCron)
	v.SetDefault("scheduler.reset_cron", DefaultResetCron)
	v.SetDefault("scheduler.ingest_cron", "")
	v.SetDefault("scheduler.timezone", DefaultTimezone)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 60)
	v.SetDefault("server.event_timeout_seconds", 120)
	v.SetDefault("server.admin_token", "")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("cache.prediction_ttl_minutes", 360)
	v.SetDefault("cache.cleanup_interval_minutes", 30)

	v.SetDefault("review.lookback_days", 30)
	v.SetDefault("review.monte_carlo_iterations", 1000)
	v.SetDefault("review.calibration_buckets", 5)
	v.SetDefault("review.output_path", "")

	v.SetDefault("aws.region", "ap-northeast-1")
	v.SetDefault("aws.secret_name", "")
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return cfg, nil
}
