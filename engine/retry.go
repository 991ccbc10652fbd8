package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/VanDung-dev/corky-relay/logging"
)

var (
	// ErrAttemptsExhausted is returned when MaxAttempts consecutive attempts failed.
	ErrAttemptsExhausted = errors.New("retry attempts exhausted")
	// ErrPanic wraps a panic recovered from an attempt.
	ErrPanic = errors.New("panic in attempt")
)

// Operation is one attempt of a long-running task.
type Operation func(ctx context.Context) error

// RetryOptions configure Retry.
type RetryOptions struct {
	// Name identifies the task in logs.
	Name string

	// MaxAttempts bounds consecutive failed attempts; 0 retries forever.
	MaxAttempts int

	// Backoff is the fixed pause after a failed attempt.
	Backoff time.Duration

	Logger *slog.Logger

	// OnFailure, if set, is called after each failed attempt that will be
	// followed by a backoff or by giving up.
	OnFailure func(attempt int, err error)
}

// Retry runs op until it succeeds or ctx is cancelled. A failed attempt is
// logged and followed by the backoff; the backoff is cut short by
// cancellation. An attempt that fails after ctx is done counts as shutdown,
// not failure, and Retry returns nil. Panics inside op are recovered and
// treated as attempt errors.
func Retry(ctx context.Context, op Operation, opts RetryOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Name != "" {
		logger = logger.With(logging.Plane(opts.Name))
	}

	for attempt := 1; ; attempt++ {
		log := logger.With(slog.String("run_id", uuid.NewString()), slog.Int("attempt", attempt))
		log.Debug("attempt starting")

		err := runAttempt(ctx, op)
		if err == nil {
			log.Info("finished")
			return nil
		}
		if ctx.Err() != nil {
			log.Info("stopped for shutdown", logging.Err(err))
			return nil
		}

		if opts.OnFailure != nil {
			opts.OnFailure(attempt, err)
		}
		if opts.MaxAttempts > 0 && attempt >= opts.MaxAttempts {
			log.Error("giving up", logging.Err(err))
			return fmt.Errorf("%s: %w after %d: %w", opts.Name, ErrAttemptsExhausted, attempt, err)
		}

		log.Error("attempt failed, restarting", logging.Err(err), slog.Duration("backoff", opts.Backoff))
		if !sleep(ctx, opts.Backoff) {
			log.Info("stopped for shutdown")
			return nil
		}
	}
}

func runAttempt(ctx context.Context, op Operation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s", ErrPanic, panicToString(r))
		}
	}()
	return op(ctx)
}

// panicToString converts a recovered panic value to a string.
func panicToString(r any) string {
	switch v := r.(type) {
	case string:
		return v
	case error:
		return v.Error()
	default:
		return fmt.Sprint(v)
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
