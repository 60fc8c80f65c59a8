package manager

import (
	"dermd/internal/inference"
	"dermd/internal/loader"
	"dermd/pkg/types"
)

// effectiveLabels picks configured labels, then labels stored in the
// artifact, then the built-in set.
func effectiveLabels(configured, stored []string) []string {
	switch {
	case len(configured) > 0:
		return append([]string(nil), configured...)
	case len(stored) > 0:
		return append([]string(nil), stored...)
	default:
		return append([]string(nil), inference.DefaultLabels...)
	}
}

func attemptStatus(a loader.Attempt) types.AttemptStatus {
	return types.AttemptStatus{
		Strategy:   a.Strategy,
		Outcome:    string(a.Outcome),
		Reason:     a.Reason,
		Notes:      a.Notes,
		DurationMS: a.Duration.Milliseconds(),
	}
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
