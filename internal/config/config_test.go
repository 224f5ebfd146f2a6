package config

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	validConfigPath            = "testdata/valid_config.yaml"
	expansionConfigPath        = "testdata/expansion_config.yaml"
	expansionConfigMissingPath = "testdata/expansion_config_missing.yaml"
	weightsConfigPath          = "testdata/weights_config.yaml"
	nonexistentConfigPath      = "testdata/nonexistent_config.yaml"
	expectedNoErrorMsg         = "expected no error, got %v"
	keibaBotName               = "keiba-line-bot"
	developmentEnv             = "development"
	invalidEnv                 = "invalid"
	localhostHost              = "localhost"
	postgresPort               = 5432
	postgresPrefix             = "postgres://"
	testAppName                = "test-app"
	expandedSecretValue        = "expanded_secret_value"
)

func loadValid(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	return cfg
}

// TestLoadConfigSuccess tests loading a valid configuration file
func TestLoadConfigSuccess(t *testing.T) {
	cfg := loadValid(t)

	assert.Equal(t, keibaBotName, cfg.App.Name)
	assert.Equal(t, developmentEnv, cfg.App.Environment)
	assert.Equal(t, localhostHost, cfg.Database.Host)
	assert.Equal(t, postgresPort, cfg.Database.Port)
	assert.Equal(t, 20000.0, cfg.Staking.DailyBudget)
	assert.Equal(t, "0 10 * * *", cfg.Scheduler.BroadcastCron)
	assert.Equal(t, 30*time.Second, cfg.Prediction.ModuleTimeout())
	assert.Equal(t, 5*time.Minute, cfg.Prediction.RunTimeout())
	require.NoError(t, Validate(cfg))
}

// TestLoadConfigFileNotFound tests handling of missing configuration file
func TestLoadConfigFileNotFound(t *testing.T) {
	_, err := Load(nonexistentConfigPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoadWithDefaultsMissingFile(t *testing.T) {
	cfg, err := LoadWithDefaults(nonexistentConfigPath)
	require.NoError(t, err)

	assert.Equal(t, keibaBotName, cfg.App.Name)
	assert.Equal(t, "jra", cfg.DataSource.Name)
	assert.Equal(t, DefaultTimezone, cfg.Scheduler.Timezone)
	assert.Equal(t, 0.25, cfg.Staking.KellyModifier)
	assert.Equal(t, 6*time.Hour, cfg.Cache.PredictionTTL())
	assert.Equal(t, DefaultResetCron, cfg.Scheduler.ResetCron)
}

// TestLoadConfigEnvironmentVariables tests environment variable override
func TestLoadConfigEnvironmentVariables(t *testing.T) {
	t.Setenv("KEIBA_BOT_APP_NAME", testAppName)
	t.Setenv("KEIBA_BOT_STAKING_DAILY_BUDGET", "30000")

	cfg := loadValid(t)
	assert.Equal(t, testAppName, cfg.App.Name)
	assert.Equal(t, 30000.0, cfg.Staking.DailyBudget)
}

func TestLoadConfigPlaceholderExpansion(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", expandedSecretValue)
	t.Setenv("TEST_LINE_SECRET", "line-secret")

	cfg, err := Load(expansionConfigPath)
	require.NoError(t, err)
	assert.Equal(t, expandedSecretValue, cfg.Database.Password)
	assert.Equal(t, "line-secret", cfg.LINE.ChannelSecret)
	assert.Equal(t, "staging", cfg.App.Environment)
}

func TestLoadConfigMissingPlaceholderFailsValidation(t *testing.T) {
	cfg, err := Load(expansionConfigMissingPath)
	require.NoError(t, err)
	assert.Empty(t, cfg.LINE.ChannelSecret)

	err = Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ChannelSecret")
}

func TestLoadConfigWeightsOverride(t *testing.T) {
	cfg, err := LoadWithDefaults(weightsConfigPath)
	require.NoError(t, err)
	require.Len(t, cfg.Prediction.Weights, 8)
	assert.Equal(t, 0.25, cfg.Prediction.Weights["basic_analysis"])
	require.NoError(t, Validate(cfg))

	cfg.Prediction.Weights["basic_analysis"] = 0.5
	err = Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "summing to 1")
}

func TestValidateFieldRules(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"invalid environment", func(c *Config) { c.App.Environment = invalidEnv }, "development, staging, production"},
		{"invalid log level", func(c *Config) { c.App.LogLevel = "trace" }, "debug, info, warn, error"},
		{"invalid cron", func(c *Config) { c.Scheduler.BroadcastCron = "every morning" }, "valid cron expression"},
		{"invalid timezone", func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, "Timezone"},
		{"unknown data source", func(c *Config) { c.DataSource.Name = "netkeiba" }, "invalid value"},
		{"fixture without path", func(c *Config) { c.DataSource.Name = "fixture" }, "FixturePath"},
		{"bad api url", func(c *Config) { c.LINE.APIBaseURL = "not a url" }, "valid URL"},
		{"kelly modifier above one", func(c *Config) { c.Staking.KellyModifier = 1.5 }, "KellyModifier"},
		{"bet over budget", func(c *Config) { c.Staking.MaxSingleBet = 50000 }, "max_single_bet cannot exceed daily_budget"},
		{"min over max", func(c *Config) { c.Staking.MinBet = 6000 }, "min_bet cannot exceed max_single_bet"},
		{"module timeout over run", func(c *Config) { c.Prediction.ModuleTimeoutSeconds = 600 }, "module_timeout_seconds"},
		{"database without host", func(c *Config) { c.Database.Host = "" }, "database host"},
		{"production without ssl", func(c *Config) { c.App.Environment = "production" }, "SSL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadValid(t)
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewValidatorRegistersCustomTags(t *testing.T) {
	cv, err := NewValidator()
	require.NoError(t, err)

	tests := []struct {
		tag   string
		value interface{}
		valid bool
	}{
		{"environment", "production", true},
		{"environment", "prod", false},
		{"loglevel", "warn", true},
		{"loglevel", "verbose", false},
		{"cron_spec", "0 10 * * *", true},
		{"cron_spec", "every morning", false},
		{"weights_sum", map[string]float64{"basic_analysis": 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			err := cv.validator.Var(tt.value, tt.tag)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestRegisterValidationsReportsFailure(t *testing.T) {
	err := registerValidations(validator.New(), map[string]validator.Func{"": validateLogLevel})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to register")

	err = registerValidations(validator.New(), map[string]validator.Func{"loglevel": nil})
	assert.Error(t, err)
}

func TestValidateDisabledDatabaseSkipsChecks(t *testing.T) {
	cfg := loadValid(t)
	cfg.Database.Enabled = false
	cfg.Database.Host = ""
	assert.NoError(t, Validate(cfg))
}

func TestValidateEnvironmentCredentials(t *testing.T) {
	cfg := loadValid(t)
	assert.NoError(t, ValidateEnvironment(cfg))

	cfg.App.Environment = "production"
	cfg.LINE.ChannelAccessToken = "YOUR_CHANNEL_ACCESS_TOKEN"
	assert.Error(t, ValidateEnvironment(cfg))

	cfg.LINE.ChannelAccessToken = "q8Zr1bM2"
	cfg.LINE.ChannelSecret = "f00dcafe"
	assert.NoError(t, ValidateEnvironment(cfg))
}

func TestEnvironmentHelpers(t *testing.T) {
	cfg := loadValid(t)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsStaging())
	assert.False(t, cfg.IsProduction())

	dsn := cfg.GetDatabaseDSN()
	assert.True(t, strings.HasPrefix(dsn, postgresPrefix))
	assert.Contains(t, dsn, "sslmode=disable")

	loc, err := cfg.Scheduler.Location()
	require.NoError(t, err)
	assert.Equal(t, DefaultTimezone, loc.String())

	_, err = SchedulerConfig{Timezone: "Nowhere/Land"}.Location()
	assert.Error(t, err)
}

type fakeSecretsClient struct {
	out *secretsmanager.GetSecretValueOutput
	err error
}

func (f *fakeSecretsClient) GetSecretValue(_ context.Context, _ *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	return f.out, f.err
}

func TestFetchSecretsOverlay(t *testing.T) {
	payload := `{"database_password":"db-pass","line_channel_secret":"s3cret"}`
	client := &fakeSecretsClient{out: &secretsmanager.GetSecretValueOutput{SecretString: &payload}}

	secrets, err := FetchSecrets(context.Background(), client, "keiba/prod")
	require.NoError(t, err)

	cfg := loadValid(t)
	token := cfg.LINE.ChannelAccessToken
	OverlaySecrets(cfg, secrets)
	assert.Equal(t, "db-pass", cfg.Database.Password)
	assert.Equal(t, "s3cret", cfg.LINE.ChannelSecret)
	assert.Equal(t, token, cfg.LINE.ChannelAccessToken)
}

func TestFetchSecretsErrors(t *testing.T) {
	_, err := FetchSecrets(context.Background(), &fakeSecretsClient{err: errors.New("denied")}, "x")
	assert.ErrorContains(t, err, "denied")

	_, err = FetchSecrets(context.Background(), &fakeSecretsClient{out: &secretsmanager.GetSecretValueOutput{}}, "x")
	assert.ErrorIs(t, err, errNoSecretDataFound)

	bad := "{"
	_, err = FetchSecrets(context.Background(), &fakeSecretsClient{out: &secretsmanager.GetSecretValueOutput{SecretString: &bad}}, "x")
	assert.ErrorContains(t, err, "failed to parse secret JSON")
}

func TestLoadSecretsFromAWSNoSecretName(t *testing.T) {
	cfg := loadValid(t)
	assert.NoError(t, LoadSecretsFromAWS(context.Background(), cfg))
}
