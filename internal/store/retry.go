package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// RetryPolicy bounds and retries a store operation.
type RetryPolicy struct {
	Attempts int           // total tries, at least 1
	Backoff  time.Duration // delay before the second try, doubled after each
	Timeout  time.Duration // per-attempt limit, 0 for none
}

// Do runs fn until it succeeds, returns a permanent error, or the attempts
// run out. Each call gets its own deadline; a timed-out attempt is retried.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := max(p.Attempts, 1)
	delay := p.Backoff

	var err error
	for i := 1; i <= attempts; i++ {
		err = p.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("attempt %d: %w", i, err)
		}
		if !retryable(err) {
			return err
		}
		if i == attempts {
			break
		}
		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return fmt.Errorf("attempt %d: %w", i, err)
			case <-t.C:
			}
			delay *= 2
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
}

func (p RetryPolicy) attempt(ctx context.Context, fn func(context.Context) error) error {
	if p.Timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return fn(ctx)
}

// retryable reports whether err may go away on its own. Server errors are
// retried only for connection, transaction-rollback, resource and operator
// classes; anything else from the server (bad data, missing table) is
// permanent. Errors that never reached the server are retried.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if len(pgErr.Code) < 2 {
			return true
		}
		switch pgErr.Code[:2] {
		case "08", "40", "53", "57", "58":
			return true
		default:
			return false
		}
	}
	return true
}
