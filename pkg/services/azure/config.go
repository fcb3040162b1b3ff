package azure

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/rs/zerolog"
	"gopkg.in/ini.v1"
)

const DefaultProfile = "default"

// Settings are the explicitly configured values; blanks are filled from the
// Azure CLI profile file.
type Settings struct {
	Profile        string
	ConfigPath     string
	SubscriptionID string
	TenantID       string
	ClientID       string
	ClientSecret   string
}

type Config struct {
	SubscriptionID string
	TenantID       string
	ClientID       string
	Credential     azcore.TokenCredential
}

func LoadConfig(ctx context.Context, settings Settings) (*Config, error) {
	logger := zerolog.Ctx(ctx)

	config := &Config{
		SubscriptionID: settings.SubscriptionID,
		TenantID:       settings.TenantID,
		ClientID:       settings.ClientID,
	}

	if config.SubscriptionID == "" || config.TenantID == "" {
		section, err := loadProfile(settings)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			logger.Debug().Msg("azure profile file not found, using explicit settings only")
		case err != nil:
			return nil, err
		default:
			if config.SubscriptionID == "" {
				config.SubscriptionID = section.Key("subscription").String()
			}
			if config.TenantID == "" {
				config.TenantID = section.Key("tenant").String()
			}
			if config.ClientID == "" {
				config.ClientID = section.Key("client_id").String()
			}
		}
	}

	credential, err := newCredential(config, settings.ClientSecret)
	if err != nil {
		return nil, domain.NewError(domain.ErrorKindAuthenticationFailed, "failed to get Azure credentials", err)
	}
	config.Credential = tokenCredential{inner: credential}
	return config, nil
}

func loadProfile(settings Settings) (*ini.Section, error) {
	profile := settings.Profile
	if profile == "" {
		profile = DefaultProfile
	}

	configPath := settings.ConfigPath
	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("unable to get home directory: %w", err)
		}
		configPath = filepath.Join(homeDir, ".azure", "config")
	}

	if _, err := os.Stat(configPath); err != nil {
		return nil, err
	}

	cfg, err := ini.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("unable to load Azure config file: %w", err)
	}

	section, err := cfg.GetSection(profile)
	if err != nil {
		return nil, fmt.Errorf("profile %s not found in Azure config: %w", profile, err)
	}
	return section, nil
}

func newCredential(config *Config, clientSecret string) (azcore.TokenCredential, error) {
	if clientSecret != "" {
		if config.TenantID == "" || config.ClientID == "" {
			return nil, fmt.Errorf("tenant and client id are required with a client secret")
		}
		return azidentity.NewClientSecretCredential(config.TenantID, config.ClientID, clientSecret, nil)
	}

	return azidentity.NewAzureCLICredential(&azidentity.AzureCLICredentialOptions{
		TenantID: config.TenantID,
	})
}

// tokenCredential marks token acquisition failures as authentication
// failures, so an Azure CLI that is not logged in is not retried.
type tokenCredential struct {
	inner azcore.TokenCredential
}

func (c tokenCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	token, err := c.inner.GetToken(ctx, opts)
	if err != nil && ctx.Err() == nil {
		return token, domain.NewError(domain.ErrorKindAuthenticationFailed, "could not obtain an Azure access token", err)
	}
	return token, err
}
