package prelr

import (
	"errors"
	"strings"
)

// ErrValidation is the sentinel behind every ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError lists request fields that are missing or malformed.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "missing required fields"
	}
	if len(e.Fields) == 0 {
		return reason
	}
	return reason + ": " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// HarvestError marks a failed id harvest. The queue keeps whatever the bulk
// write already applied; rerunning restarts from offset 0.
type HarvestError struct {
	Offset int
	Err    error
}

func (e *HarvestError) Error() string {
	return "id harvest failed: " + e.Err.Error()
}

func (e *HarvestError) Unwrap() error { return e.Err }
