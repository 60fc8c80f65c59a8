//go:build !tflite

package model

import "errors"

// This file is compiled when the 'tflite' build tag is NOT set, keeping
// default builds CGO-free. The real runtime lives in tflite.go.

// TFLiteAvailable reports whether this build links the TFLite runtime.
const TFLiteAvailable = false

// ErrTFLiteUnavailable is returned for .tflite artifacts in builds without the runtime.
var ErrTFLiteUnavailable = errors.New("tflite support not built (missing 'tflite' build tag)")

// OpenTFLite always fails without the 'tflite' build tag.
func OpenTFLite(path string, threads int) (Handle, error) {
	return nil, ErrTFLiteUnavailable
}
