package loader

import (
	"errors"
	"strings"
)

// strategyFailedError wraps the cause of a single failed strategy. The chain
// recovers from it by moving to the next strategy.
type strategyFailedError struct {
	strategy string
	err      error
}

func (e strategyFailedError) Error() string { return e.strategy + ": " + e.err.Error() }
func (e strategyFailedError) Unwrap() error { return e.err }

// LoadStrategyFailed constructs the error recorded for a failed strategy.
func LoadStrategyFailed(strategy string, err error) error {
	return strategyFailedError{strategy: strategy, err: err}
}

// IsLoadStrategyFailed reports whether err is a single strategy failure.
func IsLoadStrategyFailed(err error) bool {
	var e strategyFailedError
	return errors.As(err, &e)
}

// exhaustedError is returned when no strategy produced a model. It is fatal
// at startup.
type exhaustedError struct{ attempts []Attempt }

func (e exhaustedError) Error() string {
	parts := make([]string, 0, len(e.attempts))
	for _, a := range e.attempts {
		parts = append(parts, a.Strategy+": "+a.Reason)
	}
	return "all load strategies exhausted [" + strings.Join(parts, "; ") + "]"
}

// Attempts returns the failed attempts in order.
func (e exhaustedError) Attempts() []Attempt { return e.attempts }

// IsAllStrategiesExhausted reports whether err means no strategy succeeded.
func IsAllStrategiesExhausted(err error) bool {
	var e exhaustedError
	return errors.As(err, &e)
}
