package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	dbRetryAttempts = 3
	dbRetryBackoff  = 50 * time.Millisecond
)

// execWithRetry runs a write statement, retrying transient sqlite
// failures such as a locked database file.
func execWithRetry(ctx context.Context, db *sql.DB, query string, args ...interface{}) (sql.Result, error) {
	var lastErr error

	for attempt := 1; attempt <= dbRetryAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		result, err := db.ExecContext(ctx, query, args...)
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !isRetryableDBError(err) {
			return nil, err
		}

		if attempt == dbRetryAttempts {
			break
		}

		backoff := time.Duration(attempt) * dbRetryBackoff
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("statement failed after %d attempts: %w", dbRetryAttempts, lastErr)
}

// isRetryableDBError determines if a database error is worth retrying
func isRetryableDBError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errStr := err.Error()

	// Lock contention and transient I/O are retryable
	if strings.Contains(errStr, "database is locked") {
		return true
	}
	if strings.Contains(errStr, "disk I/O error") {
		return true
	}

	// Constraint and schema errors never resolve on their own
	return false
}
