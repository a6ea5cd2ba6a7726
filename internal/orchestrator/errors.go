package orchestrator

import "fmt"

// FatalAuthError means the base identity itself could not authenticate.
// Nothing downstream can succeed, so the run aborts before any unit starts.
type FatalAuthError struct {
	Err error
}

func (e *FatalAuthError) Error() string {
	return fmt.Sprintf("base identity verification failed: %v", e.Err)
}

func (e *FatalAuthError) Unwrap() error { return e.Err }

// UnitFailure records one account/region unit (or one cluster within it)
// that could not be fully processed. Failures never abort the run; they are
// reported in the summary.
type UnitFailure struct {
	AccountID string
	Region    string
	Err       error
}

func (f UnitFailure) Error() string {
	if f.AccountID == "" {
		return f.Err.Error()
	}
	return fmt.Sprintf("account %s region %s: %v", f.AccountID, f.Region, f.Err)
}

func (f UnitFailure) Unwrap() error { return f.Err }
