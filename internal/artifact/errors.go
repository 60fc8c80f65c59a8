package artifact

import (
	"errors"
	"fmt"
)

// ContentKind classifies a fetched payload.
type ContentKind string

const (
	Binary          ContentKind = "binary"
	HtmlWarningPage ContentKind = "html_warning_page"
)

// FetchError reports a failed download. It is fatal at startup.
type FetchError struct {
	Source string
	Status int
	Kind   ContentKind
	Reason string
	Err    error
}

func (e *FetchError) Error() string {
	msg := "fetch " + e.Source + ": " + e.Reason
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsFetchFailed reports whether err is (or wraps) a FetchError.
func IsFetchFailed(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
