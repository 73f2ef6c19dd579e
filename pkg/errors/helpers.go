package errors

import (
	"context"
	"errors"
)

// CheckContext returns an error if the context is canceled or timed out.
// This provides a standardized way to check and wrap context errors.
func CheckContext(ctx context.Context, operation string) error {
	if err := ctx.Err(); err != nil {
		return Wrap(err, Canceled, operation+" canceled")
	}
	return nil
}

// CodeOf extracts the error code from an error, or Unknown for foreign errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code()
	}
	return Unknown
}

// IsRetryable reports whether an operation that failed with err may be
// retried with the same idempotency key.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case StorageUnavailable, Timeout:
		return true
	default:
		return false
	}
}
