package inference

import (
	"errors"
	"net/http"
)

// inputInvalidError marks a request whose image cannot be used for inference.
type inputInvalidError struct {
	msg string
	err error
}

func (e inputInvalidError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e inputInvalidError) Unwrap() error { return e.err }

// StatusCode maps the error to 400 Bad Request.
func (e inputInvalidError) StatusCode() int { return http.StatusBadRequest }

// ErrInferenceInputInvalid constructs an input error with an optional cause.
func ErrInferenceInputInvalid(msg string, cause error) error {
	return inputInvalidError{msg: msg, err: cause}
}

// IsInferenceInputInvalid reports whether err means the caller sent a bad image.
func IsInferenceInputInvalid(err error) bool {
	var e inputInvalidError
	return errors.As(err, &e)
}
