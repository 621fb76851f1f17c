package appointment

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("appointment not found")
	ErrScheduledTimeMiss = errors.New("scheduled_time is required to schedule an appointment")
	ErrUnknownStatus     = errors.New("unknown appointment status")
)

// InvalidTransitionError reports a lifecycle change not present in the
// transition table, carrying both states for diagnosability.
type InvalidTransitionError struct {
	Current   Status
	Requested Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.Current, e.Requested)
}
