package watcher

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/pders01/searchable-files/internal/models"
)

// Poll policies
const (
	PolicyFixed       = "fixed"
	PolicyExponential = "exponential"
)

const (
	DefaultInterval    = time.Second
	DefaultMaxInterval = 30 * time.Second
)

// NewBackOff returns a constructor for the named poll policy. Each task
// gets a fresh BackOff from it.
func NewBackOff(policy string, interval, maxInterval time.Duration) (func() backoff.BackOff, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxInterval < interval {
		maxInterval = max(interval, DefaultMaxInterval)
	}

	switch policy {
	case "", PolicyFixed:
		return func() backoff.BackOff {
			return backoff.NewConstantBackOff(interval)
		}, nil
	case PolicyExponential:
		return func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = interval
			b.MaxInterval = maxInterval
			b.RandomizationFactor = 0
			b.Reset()
			return b
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown watch backoff %q (want %q or %q)", models.ErrConfig, policy, PolicyFixed, PolicyExponential)
	}
}
