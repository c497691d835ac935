package report

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

type ResilienceConfig struct {
	BackoffSettings        *backoff.ExponentialBackOff
	CircuitBreakerSettings gobreaker.Settings
	CircuitBreaker         *gobreaker.CircuitBreaker
}

func NewResilienceConfig(defaultBackOff *backoff.ExponentialBackOff, cbs gobreaker.Settings) *ResilienceConfig {
	return &ResilienceConfig{
		BackoffSettings:        defaultBackOff,
		CircuitBreakerSettings: cbs,
		CircuitBreaker:         gobreaker.NewCircuitBreaker(cbs),
	}
}

// DefaultResilience retries a broker write for up to maxElapsed and stops
// talking to the broker after five consecutive failed writes.
func DefaultResilience(maxElapsed time.Duration) *ResilienceConfig {
	cbs := gobreaker.Settings{
		Name:        "report-broker",
		MaxRequests: 1,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return NewResilienceConfig(
		&backoff.ExponentialBackOff{
			InitialInterval:     200 * time.Millisecond,
			MaxInterval:         2 * time.Second,
			MaxElapsedTime:      maxElapsed,
			Multiplier:          1.5,
			RandomizationFactor: 0.5,
			Stop:                backoff.Stop,
			Clock:               backoff.SystemClock,
		},
		cbs,
	)
}

// newBackOff returns a fresh copy so concurrent publishes do not share
// retry state.
func (r *ResilienceConfig) newBackOff() *backoff.ExponentialBackOff {
	b := *r.BackoffSettings
	b.Reset()
	return &b
}
