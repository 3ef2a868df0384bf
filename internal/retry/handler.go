package retry

import (
	"context"

	"github.com/sirupsen/logrus"

	apperrors "whatsingest/internal/errors"
)

// Handler pairs the backoff policy with structured error reporting. The
// ingestion client consumes it as an injected collaborator.
type Handler struct {
	backoff *Backoff
	logger  *logrus.Logger
}

// NewHandler creates a handler with the given policy and log sink.
func NewHandler(config BackoffConfig, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &Handler{
		backoff: NewBackoff(config),
		logger:  logger,
	}
}

// WithRetry runs the operation under the category's retry policy.
func (h *Handler) WithRetry(ctx context.Context, category Category, operation func() error) error {
	return h.backoff.WithRetry(ctx, category, operation)
}

// HandleError logs a failure with its context. When raiseOnCritical is
// set and the error is a construction-time configuration problem, the
// error is returned for the caller to propagate; otherwise nil comes
// back and the caller degrades to an empty result.
func (h *Handler) HandleError(err error, fields map[string]interface{}, raiseOnCritical bool) error {
	if err == nil {
		return nil
	}

	entry := h.logger.WithFields(logrus.Fields(fields)).WithError(err)
	entry = entry.WithField("error_code", apperrors.GetCode(err))

	if apperrors.IsCritical(err) {
		entry.Error("Critical error")
		if raiseOnCritical {
			return err
		}
		return nil
	}

	entry.Warn("Recoverable error")
	return nil
}
