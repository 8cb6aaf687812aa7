// Package retry runs short database transactions again when they lose a lock race.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/rafflehq/ticket-engine/internal/apperrors"
	log "github.com/sirupsen/logrus"
)

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = 20 * time.Millisecond
	defaultMaxDelay    = 500 * time.Millisecond
)

// Policy bounds how often and how patiently an operation is retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy returns the policy used when no configuration is supplied.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Delay returns the jittered backoff before the given retry (attempt >= 1).
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay << (attempt - 1)
	if d <= 0 || d > p.MaxDelay {
		d = p.MaxDelay
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

// Do runs fn until it succeeds, returns an error that retryable rejects, or the
// attempts run out. Exhaustion is reported as a contention_retry error wrapping
// the last failure.
func Do(ctx context.Context, p Policy, op string, retryable func(error) bool, fn func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p = p.normalized()

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(p.Delay(attempt))
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					<-timer.C
				}
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if retryable == nil || !retryable(err) {
			return err
		}
		lastErr = err
		log.WithFields(log.Fields{
			"op":          op,
			"attempt":     attempt + 1,
			"error_class": apperrors.KindContentionRetry,
		}).WithError(err).Debug("contention, retrying")
	}
	return apperrors.Wrap(apperrors.KindContentionRetry, lastErr, "%s: too much contention, try again", op)
}
