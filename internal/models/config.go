package models

import "whatsingest/internal/constants"

// ProviderKind identifies which WhatsApp API flavor a client talks to.
type ProviderKind string

const (
	// ProviderBusiness is the push-style Meta Business (Graph) API:
	// messages arrive via webhooks, media ids need a resolution call.
	ProviderBusiness ProviderKind = "business"
	// ProviderTwilio is the pull-style Twilio API: the client polls and
	// paginates Messages.json for history.
	ProviderTwilio ProviderKind = "twilio"
)

// ClientConfig holds the per-client construction parameters. All fields
// are immutable after the client is built.
type ClientConfig struct {
	// Provider forces a provider kind, bypassing credential inference.
	Provider string `json:"provider,omitempty"`

	APIToken      string `json:"api_token,omitempty"`
	PhoneNumberID string `json:"phone_number_id,omitempty"`
	BaseURL       string `json:"base_url,omitempty"`

	TwilioAccountSID  string `json:"twilio_account_sid,omitempty"`
	TwilioAuthToken   string `json:"twilio_auth_token,omitempty"`
	TwilioPhoneNumber string `json:"twilio_phone_number,omitempty"`

	RateLimitPerMinute int `json:"rate_limit_per_minute,omitempty"`
	TimeoutSeconds     int `json:"timeout_seconds,omitempty"`
	MaxRetries         int `json:"max_retries,omitempty"`
}

// Kind selects the provider: an explicit Provider value wins, otherwise
// a full Business credential pair selects business, a full Twilio pair
// selects twilio, and business is the default.
func (c *ClientConfig) Kind() ProviderKind {
	switch c.Provider {
	case string(ProviderBusiness):
		return ProviderBusiness
	case string(ProviderTwilio):
		return ProviderTwilio
	}

	if c.APIToken != "" && c.PhoneNumberID != "" {
		return ProviderBusiness
	}
	if c.TwilioAccountSID != "" && c.TwilioAuthToken != "" {
		return ProviderTwilio
	}
	return ProviderBusiness
}

// ApplyDefaults fills unset limits with the package defaults.
func (c *ClientConfig) ApplyDefaults() {
	if c.RateLimitPerMinute <= 0 {
		c.RateLimitPerMinute = constants.DefaultRateLimitPerMinute
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = constants.DefaultTimeoutSec
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = constants.DefaultMaxRetries
	}
	if c.BaseURL == "" {
		c.BaseURL = constants.DefaultBusinessBaseURL
	}
}

// MediaConfig configures where the pipeline writes downloaded media.
type MediaConfig struct {
	OutputDir string `json:"output_dir"`
}

// DatabaseConfig configures the caller-side extracted-message store.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// ServerConfig configures the webhook receiver command.
type ServerConfig struct {
	ListenAddr string `json:"listen_addr,omitempty"`
	// WebhookSecret signs inbound payloads (X-Hub-Signature-256).
	WebhookSecret string `json:"webhook_secret,omitempty"`
	// VerifyToken answers the hub.challenge subscription handshake.
	VerifyToken string `json:"verify_token,omitempty"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"service_name,omitempty"`
	ServiceVersion string  `json:"service_version,omitempty"`
	Environment    string  `json:"environment,omitempty"`
	OTLPEndpoint   string  `json:"otlp_endpoint,omitempty"`
	SampleRate     float64 `json:"sample_rate,omitempty"`
	UseStdout      bool    `json:"use_stdout,omitempty"`
}

// Config is the full application configuration.
type Config struct {
	Client   ClientConfig   `json:"client"`
	Media    MediaConfig    `json:"media"`
	Database DatabaseConfig `json:"database"`
	Server   ServerConfig   `json:"server"`
	Tracing  TracingConfig  `json:"tracing"`
	LogLevel string         `json:"log_level,omitempty"`
}

// ConfigError reports an invalid or incomplete configuration.
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
