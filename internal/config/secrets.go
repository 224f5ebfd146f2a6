package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

const (
	errLoadAWSConfig           = "failed to load AWS config: %w"
	errGetSecretFromAWSSecrets = "failed to get secret from AWS Secrets Manager: %w"
	errParseSecretJSON         = "failed to parse secret JSON: %w"
	errParseSecretBinary       = "failed to parse secret binary: %w"
)

var errNoSecretDataFound = errors.New("no secret data found in AWS Secrets Manager")

// SecretsOverlay represents the structure of secrets stored in AWS Secrets Manager
type SecretsOverlay struct {
	DatabasePassword       string `json:"database_password"`
	LINEChannelSecret      string `json:"line_channel_secret"`
	LINEChannelAccessToken string `json:"line_channel_access_token"`
	AdminToken             string `json:"admin_token"`
}

// SecretsClient is the subset of the Secrets Manager API used here
type SecretsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// NewSecretsClient builds a Secrets Manager client for a region
func NewSecretsClient(ctx context.Context, region string) (SecretsClient, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf(errLoadAWSConfig, err)
	}
	return secretsmanager.NewFromConfig(awsCfg), nil
}

// FetchSecrets retrieves the overlay from Secrets Manager
func FetchSecrets(ctx context.Context, client SecretsClient, secretName string) (*SecretsOverlay, error) {
	result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	})
	if err != nil {
		return nil, fmt.Errorf(errGetSecretFromAWSSecrets, err)
	}
	return parseSecretData(result)
}

// parseSecretData parses secret data from AWS response
func parseSecretData(result *secretsmanager.GetSecretValueOutput) (*SecretsOverlay, error) {
	var secrets SecretsOverlay
	switch {
	case result.SecretString != nil:
		if err := json.Unmarshal([]byte(*result.SecretString), &secrets); err != nil {
			return nil, fmt.Errorf(errParseSecretJSON, err)
		}
	case result.SecretBinary != nil:
		if err := json.Unmarshal(result.SecretBinary, &secrets); err != nil {
			return nil, fmt.Errorf(errParseSecretBinary, err)
		}
	default:
		return nil, errNoSecretDataFound
	}
	return &secrets, nil
}

// OverlaySecrets applies non-empty secrets to the configuration
func OverlaySecrets(cfg *Config, secrets *SecretsOverlay) {
	if secrets.DatabasePassword != "" {
		cfg.Database.Password = secrets.DatabasePassword
	}
	if secrets.LINEChannelSecret != "" {
		cfg.LINE.ChannelSecret = secrets.LINEChannelSecret
	}
	if secrets.LINEChannelAccessToken != "" {
		cfg.LINE.ChannelAccessToken = secrets.LINEChannelAccessToken
	}
	if secrets.AdminToken != "" {
		cfg.Server.AdminToken = secrets.AdminToken
	}
}

// LoadSecretsFromAWS overlays secrets when aws.secret_name is configured; otherwise it is a no-op.
func LoadSecretsFromAWS(ctx context.Context, cfg *Config) error {
	if cfg.AWS.SecretName == "" {
		return nil
	}
	client, err := NewSecretsClient(ctx, cfg.AWS.Region)
	if err != nil {
		return err
	}
	secrets, err := FetchSecrets(ctx, client, cfg.AWS.SecretName)
	if err != nil {
		return err
	}
	OverlaySecrets(cfg, secrets)
	return nil
}
