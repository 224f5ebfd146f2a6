package datasource

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/keiba-line-bot/internal/config"
)

// SourceType represents the type of data source
type SourceType string

const (
	// JRASourceType scrapes the JRA race card pages
	JRASourceType SourceType = jraSourceName
	// FixtureSourceType serves recorded JSON race days
	FixtureSourceType SourceType = fixtureSourceName
)

// Factory creates RaceCollector implementations based on configuration
type Factory struct {
	logger *logrus.Logger
}

// NewFactory creates a new data source factory
func NewFactory(logger *logrus.Logger) *Factory {
	return &Factory{logger: logger}
}

// HTTPConfig maps data source configuration onto the HTTP client settings.
func HTTPConfig(cfg config.DataSourceConfig) HTTPClientConfig {
	httpCfg := DefaultHTTPClientConfig()
	httpCfg.Name = cfg.Name
	if cfg.TimeoutSeconds > 0 {
		httpCfg.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	httpCfg.MaxRetries = cfg.RetryAttempts
	if cfg.RateLimitPerSecond > 0 {
		httpCfg.RateLimit = cfg.RateLimitPerSecond
	}
	if cfg.Burst > 0 {
		httpCfg.Burst = cfg.Burst
	}
	if cfg.BreakerFailures > 0 {
		httpCfg.BreakerFailures = cfg.BreakerFailures
	}
	if cfg.BreakerTimeoutSecs > 0 {
		httpCfg.BreakerTimeout = time.Duration(cfg.BreakerTimeoutSecs) * time.Second
	}
	if cfg.UserAgent != "" {
		httpCfg.UserAgent = cfg.UserAgent
	}
	return httpCfg
}

// NewCollector creates the configured RaceCollector
func (f *Factory) NewCollector(cfg config.DataSourceConfig) (RaceCollector, error) {
	switch SourceType(cfg.Name) {
	case JRASourceType:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("base_url is required for the %s data source", cfg.Name)
		}
		client := NewRateLimitedHTTPClient(HTTPConfig(cfg), f.logger)
		return NewJRACollector(client, cfg.BaseURL, cfg.MaxConcurrentFetches, f.logger), nil

	case FixtureSourceType:
		if cfg.FixturePath == "" {
			return nil, fmt.Errorf("fixture_path is required for the %s data source", cfg.Name)
		}
		return NewFixtureCollector(cfg.FixturePath, f.logger), nil

	default:
		return nil, fmt.Errorf("unknown data source: %s", cfg.Name)
	}
}

// ListAvailableSources returns a list of available source types
func (f *Factory) ListAvailableSources() []SourceType {
	return []SourceType{JRASourceType, FixtureSourceType}
}
