package types

import (
	"context"
	"net/http"
	"net/url"

	"whatsingest/internal/models"
	"whatsingest/internal/retry"
)

// RequestOptions carries the per-request knobs the executor honors.
// Body is a byte slice rather than a reader so the executor can replay
// it across retry attempts.
type RequestOptions struct {
	Headers map[string]string
	Query   url.Values
	Body    []byte
	// Stream marks a download request whose body the caller consumes
	// incrementally instead of buffering.
	Stream bool
}

// Executor issues authenticated, rate-limited outbound requests. A nil
// response means the call failed in a way no caller should retry at
// this layer: missing authentication, revoked credentials, or an
// exhausted transport-retry budget.
type Executor interface {
	Execute(ctx context.Context, method, requestURL string, opts *RequestOptions) *http.Response
}

// Provider is the capability contract behind the two incompatible API
// shapes. One concrete variant is selected at construction; operations
// a variant cannot serve degrade to empty results rather than erroring.
type Provider interface {
	Kind() models.ProviderKind

	// HasCredentials reports whether the full credential set for this
	// provider is present. Authentication short-circuits to false
	// without network activity when it is not.
	HasCredentials() bool

	// AuthRequest builds the unsigned identity-check request. It runs
	// before authenticated state exists, so it bypasses the executor's
	// must-be-authenticated guard.
	AuthRequest(ctx context.Context) (*http.Request, error)

	// Sign injects the provider's credentials into an outbound request.
	Sign(req *http.Request)

	// ExtractMessages pulls historical messages, paginating internally.
	// Best-effort: a failed page stops the loop and returns what was
	// accumulated.
	ExtractMessages(ctx context.Context, exec Executor, dateRange *models.DateRange) []models.Message

	// ProcessWebhook parses one inbound webhook payload into at most
	// one normalized message.
	ProcessWebhook(ctx context.Context, exec Executor, payload []byte) *models.Message

	// ResolveMediaURL turns a media locator into a fetchable URL. Pull
	// providers already hold URLs and return the locator unchanged;
	// push providers issue a follow-up authenticated call. Empty on
	// failure.
	ResolveMediaURL(ctx context.Context, exec Executor, locator string) string
}

// Retryer is the injected retry/error-classification collaborator. Its
// policy is layered on top of, and independent from, the executor's own
// retry loop.
type Retryer interface {
	WithRetry(ctx context.Context, category retry.Category, operation func() error) error
	HandleError(err error, fields map[string]interface{}, raiseOnCritical bool) error
}
