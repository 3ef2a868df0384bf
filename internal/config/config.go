package config

import (
	"encoding/json"
	"fmt"
	"os"

	"whatsingest/internal/models"
)

var (
	ErrMissingMediaDir = models.ConfigError{Message: "missing media output directory"}
	ErrMissingDBPath   = models.ConfigError{Message: "missing database path"}
)

// LoadConfig reads and validates the JSON configuration file, then
// applies environment overrides for credential fields.
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.ReadFile(path) // #nosec G304 - operator-supplied config path
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Media.OutputDir == "" {
		return ErrMissingMediaDir
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}

	switch c.Client.Provider {
	case "", string(models.ProviderBusiness), string(models.ProviderTwilio):
	default:
		return models.ConfigError{Message: fmt.Sprintf("unknown provider %q", c.Client.Provider)}
	}

	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8082"
	}

	c.Client.ApplyDefaults()

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "whatsingest"
	}
	if c.Tracing.SampleRate <= 0 {
		c.Tracing.SampleRate = 0.1
	}

	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	overrides := map[string]*string{
		"WHATSINGEST_API_TOKEN":           &c.Client.APIToken,
		"WHATSINGEST_PHONE_NUMBER_ID":     &c.Client.PhoneNumberID,
		"WHATSINGEST_TWILIO_ACCOUNT_SID":  &c.Client.TwilioAccountSID,
		"WHATSINGEST_TWILIO_AUTH_TOKEN":   &c.Client.TwilioAuthToken,
		"WHATSINGEST_TWILIO_PHONE_NUMBER": &c.Client.TwilioPhoneNumber,
		"WHATSINGEST_WEBHOOK_SECRET":      &c.Server.WebhookSecret,
		"WHATSINGEST_VERIFY_TOKEN":        &c.Server.VerifyToken,
	}

	for env, target := range overrides {
		if value := os.Getenv(env); value != "" {
			*target = value
		}
	}
}
