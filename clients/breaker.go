package clients

import (
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"hyodream/api/logging"
	"hyodream/api/metrics"
)

// Opens after >= 60% failures over at least 10 requests,
// probes again after breakerTimeout.
const (
	breakerMinRequests  = 10
	breakerFailureRatio = 0.6
	breakerInterval     = time.Minute
	breakerTimeout      = 30 * time.Second
)

func newBreaker[T any](name string) *gobreaker.CircuitBreaker[T] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    breakerInterval,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < breakerMinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= breakerFailureRatio {
				logging.Warn().Str("service", name).Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", ratio*100).Msg("opening circuit")
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("service", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})
}

// execute runs fn through cb and records the outcome.
func execute[T any](cb *gobreaker.CircuitBreaker[T], fn func() (T, error)) (T, error) {
	res, err := cb.Execute(fn)
	name := cb.Name()
	switch {
	case err == nil:
		metrics.ExternalRequests.WithLabelValues(name, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.ExternalRequests.WithLabelValues(name, "rejected").Inc()
	default:
		metrics.ExternalRequests.WithLabelValues(name, "failure").Inc()
	}
	return res, err
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
