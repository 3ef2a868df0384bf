package constants

// Client defaults applied when the configuration leaves them unset
const (
	DefaultRateLimitPerMinute = 60
	DefaultTimeoutSec         = 30
	DefaultMaxRetries         = 3
)

// Rate limiter behavior
const (
	RateLimitWindowSec = 60
	InitialBackoffSec  = 1
	MaxBackoffSec      = 300
)

// Extraction bounds
const (
	// MaxExtractionPages bounds worst-case run time against a provider
	// that keeps returning next-page cursors.
	MaxExtractionPages = 100
	TwilioPageSize     = 1000
)

// Provider endpoints
const (
	DefaultBusinessBaseURL = "https://graph.facebook.com/v18.0"
	TwilioAPIHost          = "https://api.twilio.com"
	TwilioAPIVersion       = "2010-04-01"
	// WhatsAppAddressPrefix is stripped from Twilio sender addresses.
	WhatsAppAddressPrefix = "whatsapp:"
)

// Media pipeline
const (
	// MinValidMediaFileSize is the size below which a downloaded file is
	// treated as an incomplete download and removed by cleanup.
	MinValidMediaFileSize = 100
	BatchDownloadDelayMs  = 100
	DownloadChunkSize     = 8192
)

// File permission constants
const (
	DefaultFilePermissions      = 0600
	DefaultDirectoryPermissions = 0750
)

// Encryption salts for the extracted-message store
const (
	EncryptionSalt       = "whatsingest-store-salt-v1"
	EncryptionLookupSalt = "whatsingest-lookup-salt-v1"
)
