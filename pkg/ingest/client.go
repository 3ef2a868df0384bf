package ingest

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	apperrors "whatsingest/internal/errors"
	"whatsingest/internal/models"
	"whatsingest/internal/ratelimit"
	"whatsingest/internal/retry"
	"whatsingest/internal/tracing"
	"whatsingest/pkg/business"
	"whatsingest/pkg/ingest/types"
	"whatsingest/pkg/media"
	"whatsingest/pkg/twilio"
)

// Options carries the injectable collaborators for client construction.
// Zero values get working defaults.
type Options struct {
	Logger  *logrus.Logger
	Retryer types.Retryer
}

// Client is the resilient ingestion client. It owns one provider
// variant, a rate limiter, a retry handler, and the media pipeline, and
// exposes the provider-agnostic operation surface.
//
// A client is stateful (authentication flag, rate limiter window) and
// not safe for concurrent use; create one per goroutine.
type Client struct {
	cfg      models.ClientConfig
	provider types.Provider
	limiter  *ratelimit.Limiter
	retryer  types.Retryer
	logger   *logrus.Logger
	pipeline *media.Pipeline

	httpClient *http.Client
	// streamClient serves Stream requests. It has no total timeout: a
	// healthy media transfer may legitimately outlast TimeoutSeconds, so
	// only the dial and header wait are bounded.
	streamClient  *http.Client
	authenticated bool
	maxRetries    int
	sleep         func(time.Duration)
}

// ClientInfo is the introspection snapshot Info returns.
type ClientInfo struct {
	Provider           models.ProviderKind `json:"provider"`
	Authenticated      bool                `json:"authenticated"`
	RateLimitPerMinute int                 `json:"rate_limit_per_minute"`
	TimeoutSeconds     int                 `json:"timeout_seconds"`
	MaxRetries         int                 `json:"max_retries"`
}

// New builds a client for the provider cfg selects. Construction fails
// only when the selected provider has none of its credentials; partial
// credentials build a client whose Authenticate short-circuits to
// false without network activity.
func New(cfg models.ClientConfig, opts Options) (*Client, error) {
	cfg.ApplyDefaults()

	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	var provider types.Provider
	switch cfg.Kind() {
	case models.ProviderTwilio:
		if cfg.TwilioAccountSID == "" && cfg.TwilioAuthToken == "" {
			return nil, apperrors.NewMissingConfigError("twilio_account_sid, twilio_auth_token")
		}
		provider = twilio.New(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber, logger)
	default:
		if cfg.APIToken == "" && cfg.PhoneNumberID == "" {
			return nil, apperrors.NewMissingConfigError("api_token, phone_number_id")
		}
		provider = business.New(cfg.APIToken, cfg.PhoneNumberID, cfg.BaseURL, logger)
	}

	retryer := opts.Retryer
	if retryer == nil {
		retryer = retry.NewHandler(retry.DefaultBackoffConfig(), logger)
	}

	c := &Client{
		cfg:      cfg,
		provider: provider,
		limiter:  ratelimit.New(cfg.RateLimitPerMinute, logger),
		retryer:  retryer,
		logger:   logger,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		streamClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
			},
		},
		maxRetries: cfg.MaxRetries,
		sleep:      time.Sleep,
	}
	c.pipeline = media.NewPipeline(c, retryer, logger)

	logger.WithFields(logrus.Fields{
		"provider":   provider.Kind(),
		"rate_limit": cfg.RateLimitPerMinute,
	}).Info("Ingestion client created")

	return c, nil
}

// Authenticate verifies the provider credentials with one identity
// check. It returns a boolean rather than an error so callers can
// branch without unwrapping; detail lands in the logs. Incomplete
// credentials return false with zero network calls.
func (c *Client) Authenticate(ctx context.Context) bool {
	ctx, span := tracing.StartSpan(ctx, "client.authenticate",
		attribute.String("provider", string(c.provider.Kind())))
	defer span.End()

	if !c.provider.HasCredentials() {
		c.logger.WithField("provider", c.provider.Kind()).Warn("Credentials incomplete, skipping authentication")
		c.authenticated = false
		return false
	}

	err := c.retryer.WithRetry(ctx, retry.CategoryAuthentication, func() error {
		return c.authenticateOnce(ctx)
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		c.retryer.HandleError(err, map[string]interface{}{
			"provider": c.provider.Kind(),
		}, false)
		c.authenticated = false
		return false
	}

	c.logger.WithField("provider", c.provider.Kind()).Info("Authentication succeeded")
	return true
}

func (c *Client) authenticateOnce(ctx context.Context) error {
	req, err := c.provider.AuthRequest(ctx)
	if err != nil {
		return apperrors.NewNetworkError("build auth request", err)
	}
	c.provider.Sign(req)

	c.limiter.WaitIfNeeded()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewNetworkError("authentication", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		c.authenticated = true
		c.limiter.ResetBackoff()
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		c.limiter.HandleRateLimitError()
		return apperrors.NewRateLimitError(req.URL.String())
	default:
		return apperrors.NewAuthError(resp.Status)
	}
}

// Authenticated reports the current authentication state.
func (c *Client) Authenticated() bool {
	return c.authenticated
}

// ExtractMessages pulls message history for the date range. Fail-closed
// on an unauthenticated client: an empty slice, never a partial pull
// with dead credentials. On the push provider this degrades to empty
// with a warning.
func (c *Client) ExtractMessages(ctx context.Context, dateRange *models.DateRange) []models.Message {
	ctx, span := tracing.StartSpan(ctx, "client.extract_messages",
		attribute.String("provider", string(c.provider.Kind())))
	defer span.End()

	if !c.authenticated {
		c.logger.Warn("Not authenticated, skipping extraction")
		return nil
	}

	messages := c.provider.ExtractMessages(ctx, c, dateRange)

	tracing.AddSpanAttributes(ctx, attribute.Int("messages", len(messages)))
	c.logger.WithField("count", len(messages)).Info("Extraction finished")
	return messages
}

// ProcessWebhookMessage parses one inbound webhook payload into at most
// one normalized message. No authentication guard: payload parsing is
// local, and media resolution inside it degrades on its own when the
// client cannot make authenticated calls.
func (c *Client) ProcessWebhookMessage(ctx context.Context, payload []byte) *models.Message {
	ctx, span := tracing.StartSpan(ctx, "client.process_webhook",
		attribute.String("provider", string(c.provider.Kind())))
	defer span.End()

	return c.provider.ProcessWebhook(ctx, c, payload)
}

// DownloadMedia fetches one media URL into outputDir under filename and
// returns the written path.
func (c *Client) DownloadMedia(ctx context.Context, mediaURL, filename, outputDir string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "client.download_media")
	defer span.End()

	path, err := c.pipeline.Download(ctx, mediaURL, filename, outputDir)
	if err != nil {
		tracing.RecordError(ctx, err)
	}
	return path, err
}

// DownloadMediaBatch downloads the media of the given messages into
// outputDir and maps filename to written path (empty on failure).
func (c *Client) DownloadMediaBatch(ctx context.Context, messages []models.Message, outputDir string) map[string]string {
	ctx, span := tracing.StartSpan(ctx, "client.download_media_batch",
		attribute.Int("messages", len(messages)))
	defer span.End()

	var items []models.MediaRef
	for _, msg := range messages {
		if msg.Media == nil {
			continue
		}
		items = append(items, *msg.Media)
	}

	return c.pipeline.DownloadBatch(ctx, items, outputDir)
}

// ValidateMediaFile reports whether a downloaded file is present,
// non-empty, and matches the expected size when one is known.
func (c *Client) ValidateMediaFile(path string, expectedSize int64) bool {
	return c.pipeline.Validate(path, expectedSize)
}

// CleanupFailedDownloads removes incomplete downloads from dir and
// returns how many files were removed.
func (c *Client) CleanupFailedDownloads(dir string) int {
	return c.pipeline.CleanupFailed(dir)
}

// MediaInfo probes a media URL without downloading it. Nil on failure.
func (c *Client) MediaInfo(ctx context.Context, mediaURL string) *models.MediaInfo {
	return c.pipeline.Info(ctx, mediaURL)
}

// Info returns a snapshot of the client's configuration and state.
func (c *Client) Info() ClientInfo {
	return ClientInfo{
		Provider:           c.provider.Kind(),
		Authenticated:      c.authenticated,
		RateLimitPerMinute: c.cfg.RateLimitPerMinute,
		TimeoutSeconds:     c.cfg.TimeoutSeconds,
		MaxRetries:         c.maxRetries,
	}
}
