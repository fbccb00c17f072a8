package shared

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerThreshold is the number of consecutive failures that opens a circuit.
const BreakerThreshold = 5

// NewCircuitBreaker creates a [gobreaker.CircuitBreaker] that opens after [BreakerThreshold] consecutive
// failures and lets a trial request through after 30 seconds. Errors matching any of ignore do not count as failures.
func NewCircuitBreaker[T any](name string, logger *log.Logger, ignore ...error) *gobreaker.CircuitBreaker[T] {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			}
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			for _, target := range ignore {
				if errors.Is(err, target) {
					return true
				}
			}
			return false
		},
	}
	return gobreaker.NewCircuitBreaker[T](settings)
}

// BreakerError maps an open or saturated circuit to [ErrServiceUnavailable] and passes other errors through.
func BreakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	return err
}
