// Package config provides configuration management for the keiba LINE bot.
package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database"`
	LINE       LINEConfig       `mapstructure:"line" validate:"required"`
	DataSource DataSourceConfig `mapstructure:"data_source" validate:"required"`
	Prediction PredictionConfig `mapstructure:"prediction" validate:"required"`
	Staking    StakingConfig    `mapstructure:"staking" validate:"required"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Review     ReviewConfig     `mapstructure:"review"`
	AWS        AWSConfig        `mapstructure:"aws"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
	Version     string `mapstructure:"version"`
}

// DatabaseConfig represents the optional Postgres store for past performances and prediction history
type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode" validate:"omitempty,oneof=disable require verify-full"`
	MaxConnections int    `mapstructure:"max_connections" validate:"omitempty,gt=0"`
	MinConnections int    `mapstructure:"min_connections" validate:"omitempty,gte=0"`
}

// LINEConfig represents LINE Messaging API configuration
type LINEConfig struct {
	ChannelSecret      string  `mapstructure:"channel_secret" validate:"required"`
	ChannelAccessToken string  `mapstructure:"channel_access_token" validate:"required"`
	APIBaseURL         string  `mapstructure:"api_base_url" validate:"required,url"`
	TimeoutSeconds     int     `mapstructure:"timeout_seconds" validate:"required,gt=0"`
	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second" validate:"required,gt=0"`
	RetryAttempts      int     `mapstructure:"retry_attempts" validate:"gte=0"`
	BroadcastMaxRaces  int     `mapstructure:"broadcast_max_races" validate:"required,gt=0,lte=20"`
}

// DataSourceConfig represents the race card collector configuration
type DataSourceConfig struct {
	Name                 string  `mapstructure:"name" validate:"required,oneof=jra fixture"`
	BaseURL              string  `mapstructure:"base_url" validate:"required_if=Name jra,omitempty,url"`
	FixturePath          string  `mapstructure:"fixture_path" validate:"required_if=Name fixture"`
	UserAgent            string  `mapstructure:"user_agent"`
	RateLimitPerSecond   float64 `mapstructure:"rate_limit_per_second" validate:"gt=0"`
	Burst                int     `mapstructure:"burst" validate:"gt=0"`
	TimeoutSeconds       int     `mapstructure:"timeout_seconds" validate:"gt=0"`
	RetryAttempts        int     `mapstructure:"retry_attempts" validate:"gte=0"`
	MaxConcurrentFetches int     `mapstructure:"max_concurrent_fetches" validate:"gt=0,lte=20"`
	BreakerFailures      uint32  `mapstructure:"breaker_failures" validate:"gt=0"`
	BreakerTimeoutSecs   int     `mapstructure:"breaker_timeout_seconds" validate:"gt=0"`
}

// PredictionConfig represents pipeline configuration
type PredictionConfig struct {
	ModuleTimeoutSeconds int                `mapstructure:"module_timeout_seconds" validate:"required,gt=0"`
	RunTimeoutSeconds    int                `mapstructure:"run_timeout_seconds" validate:"required,gt=0"`
	MinQualityScore      float64            `mapstructure:"min_quality_score" validate:"gte=0,lte=1"`
	Weights              map[string]float64 `mapstructure:"weights" validate:"omitempty,weights_sum"`
}

// StakingConfig represents stake sizing limits in yen
type StakingConfig struct {
	DailyBudget         float64 `mapstructure:"daily_budget" validate:"required,gt=0"`
	MaxSingleBet        float64 `mapstructure:"max_single_bet" validate:"required,gt=0"`
	MinBet              float64 `mapstructure:"min_bet" validate:"required,gt=0"`
	BetUnit             float64 `mapstructure:"bet_unit" validate:"required,gt=0"`
	KellyModifier       float64 `mapstructure:"kelly_modifier" validate:"required,gt=0,lte=1"`
	MaxKellyFraction    float64 `mapstructure:"max_kelly_fraction" validate:"required,gt=0,lte=1"`
	MaxHighRiskBets     int     `mapstructure:"max_high_risk_bets" validate:"gte=0"`
	BasicMinScore       float64 `mapstructure:"basic_min_score" validate:"gte=0,lte=100"`
	DarkHorseMinScore   float64 `mapstructure:"dark_horse_min_score" validate:"gte=0,lte=100"`
	ExoticMinConfidence float64 `mapstructure:"exotic_min_confidence" validate:"gte=0,lte=1"`
}

// SchedulerConfig represents the daily broadcast schedule
type SchedulerConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	BroadcastCron string `mapstructure:"broadcast_cron" validate:"required_if=Enabled true,omitempty,cron_spec"`
	ResetCron     string `mapstructure:"reset_cron" validate:"omitempty,cron_spec"`
	IngestCron    string `mapstructure:"ingest_cron" validate:"omitempty,cron_spec"`
	Timezone      string `mapstructure:"timezone" validate:"omitempty,timezone"`
}

// ServerConfig represents the webhook and health HTTP server
type ServerConfig struct {
	Port                int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds" validate:"gt=0"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds" validate:"gt=0"`
	EventTimeoutSeconds int    `mapstructure:"event_timeout_seconds" validate:"gte=0"`
	AdminToken          string `mapstructure:"admin_token"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

// CacheConfig represents the prediction cache
type CacheConfig struct {
	PredictionTTLMinutes   int `mapstructure:"prediction_ttl_minutes" validate:"gte=0"`
	CleanupIntervalMinutes int `mapstructure:"cleanup_interval_minutes" validate:"gte=0"`
}

// ReviewConfig represents the settled-recommendation review
type ReviewConfig struct {
	LookbackDays         int    `mapstructure:"lookback_days" validate:"gte=0"`
	MonteCarloIterations int    `mapstructure:"monte_carlo_iterations" validate:"gte=0"`
	CalibrationBuckets   int    `mapstructure:"calibration_buckets" validate:"gte=0,lte=20"`
	OutputPath           string `mapstructure:"output_path"`
}

// AWSConfig represents the Secrets Manager overlay location
type AWSConfig struct {
	Region     string `mapstructure:"region"`
	SecretName string `mapstructure:"secret_name"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsStaging checks if the application is running in staging mode
func (c *Config) IsStaging() bool {
	return c.App.Environment == "staging"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// ModuleTimeout returns the per-module deadline
func (p PredictionConfig) ModuleTimeout() time.Duration {
	return time.Duration(p.ModuleTimeoutSeconds) * time.Second
}

// RunTimeout returns the whole-run deadline
func (p PredictionConfig) RunTimeout() time.Duration {
	return time.Duration(p.RunTimeoutSeconds) * time.Second
}

// PredictionTTL returns how long a day's prediction is cached
func (c CacheConfig) PredictionTTL() time.Duration {
	return time.Duration(c.PredictionTTLMinutes) * time.Minute
}

// Location resolves the scheduler time zone, defaulting to Asia/Tokyo.
func (s SchedulerConfig) Location() (*time.Location, error) {
	tz := s.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %s: %w", tz, err)
	}
	return loc, nil
}
