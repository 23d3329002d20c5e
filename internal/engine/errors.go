package engine

import (
	"errors"
	"fmt"
)

// ErrConfig marks malformed sweep configuration. Configuration errors are
// fatal at startup and surface before any trial runs.
var ErrConfig = errors.New("invalid sweep configuration")

// ErrSectionFailed marks a section that exceeded the consecutive trial
// failure threshold. The failure is recorded in the section's result; the
// rest of the grid proceeds.
var ErrSectionFailed = errors.New("section exceeded consecutive failure threshold")

// TrialError reports one failed drop. Trial failures are absorbed and
// counted by the section runner; they never propagate out of a section.
type TrialError struct {
	Section int
	Drop    int
	Err     error
}

func (e *TrialError) Error() string {
	return fmt.Sprintf("section %d drop %d: %v", e.Section, e.Drop, e.Err)
}

func (e *TrialError) Unwrap() error { return e.Err }
