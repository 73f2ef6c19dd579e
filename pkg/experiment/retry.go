package experiment

import (
	"context"
	"time"

	"github.com/XiaoConstantine/abtest-go/pkg/errors"
)

// callRepo runs one idempotent repository operation under a bounded timeout,
// retrying transient failures with exponential backoff. Validation, state
// and not-found errors are never retried.
func (s *Service) callRepo(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	retry := s.cfg.Storage.Retry
	backoff := retry.InitialBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = s.callRepoOnce(ctx, op, fn)
		if err == nil {
			return nil
		}
		if attempt >= retry.MaxRetries || !retryable(err) {
			return err
		}

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), errors.Canceled, op+" canceled")
		case <-time.After(backoff):
		}

		if retry.BackoffMultiplier > 1 {
			backoff = time.Duration(float64(backoff) * retry.BackoffMultiplier)
		}
		if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
			backoff = retry.MaxBackoff
		}
	}
}

// callRepoOnce runs a single repository attempt under the configured timeout.
// Used directly for non-idempotent operations (state transitions), which are
// never silently retried.
func (s *Service) callRepoOnce(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	opCtx := ctx
	if timeout := s.cfg.Storage.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := fn(opCtx)
	if err == nil {
		return nil
	}
	if opCtx.Err() == context.DeadlineExceeded {
		return errors.Wrap(err, errors.Timeout, op+" timed out")
	}
	// Repository failures without a known code are treated as transient.
	if errors.CodeOf(err) == errors.Unknown {
		return errors.Wrap(err, errors.StorageUnavailable, op+" failed")
	}
	return err
}

func retryable(err error) bool {
	return errors.IsRetryable(err)
}
