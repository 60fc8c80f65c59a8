package manager

import (
	"errors"
	"net/http"
)

// modelUnavailableError is returned for requests that arrive before the model
// is ready (or after loading failed). The HTTP layer maps it to 503.
type modelUnavailableError struct{ msg string }

func (e modelUnavailableError) Error() string   { return e.msg }
func (e modelUnavailableError) StatusCode() int { return http.StatusServiceUnavailable }

// ErrModelUnavailable constructs a modelUnavailableError.
func ErrModelUnavailable(msg string) error {
	if msg == "" {
		msg = "Model not loaded"
	}
	return modelUnavailableError{msg: msg}
}

// IsModelUnavailable reports whether err means no model is ready.
func IsModelUnavailable(err error) bool {
	var e modelUnavailableError
	return errors.As(err, &e)
}

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct{ reason string }

func (e tooBusyError) Error() string { return "too busy: " + e.reason }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var e tooBusyError
	return errors.As(err, &e)
}

// labelMismatchError reports a label set that does not fit the loaded model.
type labelMismatchError struct{ msg string }

func (e labelMismatchError) Error() string { return e.msg }

// IsLabelMismatch reports whether loading failed because the configured labels
// do not match the model output size.
func IsLabelMismatch(err error) bool {
	var e labelMismatchError
	return errors.As(err, &e)
}
