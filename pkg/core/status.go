package core

// StepStatus represents the execution status of a step or scenario
type StepStatus int

const (
	StatusPending   StepStatus = iota // Not yet started
	StatusRunning                     // Currently executing
	StatusPassed                      // Completed successfully
	StatusFailed                      // Assertion failed (expected behavior didn't occur)
	StatusErrored                     // Unexpected error (connection, timeout, config)
	StatusSkipped                     // Previous step failed or scenario was filtered
	StatusUndefined                   // No step definition matches the Gherkin text
	StatusAmbiguous                   // More than one step definition matches
)

// String returns the string representation of StepStatus
func (s StepStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusErrored:
		return "errored"
	case StatusSkipped:
		return "skipped"
	case StatusUndefined:
		return "undefined"
	case StatusAmbiguous:
		return "ambiguous"
	default:
		return "unknown"
	}
}

// ParseStepStatus is the inverse of String. Unknown names map to StatusPending.
func ParseStepStatus(s string) StepStatus {
	for st := StatusPending; st <= StatusAmbiguous; st++ {
		if st.String() == s {
			return st
		}
	}
	return StatusPending
}

// IsTerminal returns true if the status is a final state
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusErrored, StatusSkipped, StatusUndefined, StatusAmbiguous:
		return true
	default:
		return false
	}
}

// IsSuccess returns true if the status indicates success
func (s StepStatus) IsSuccess() bool {
	return s == StatusPassed
}

// IsFailure returns true for statuses that fail a scenario.
func (s StepStatus) IsFailure() bool {
	switch s {
	case StatusFailed, StatusErrored, StatusUndefined, StatusAmbiguous:
		return true
	}
	return false
}

// ErrorCategory classifies the type of error for better debugging and reporting
type ErrorCategory int

const (
	ErrCategoryNone       ErrorCategory = iota // No error
	ErrCategoryAssertion                       // Element not found, text mismatch, unexpected API status, missing DB row
	ErrCategoryTimeout                         // Operation timed out
	ErrCategoryConnection                      // WebDriver/Appium, API or database unreachable
	ErrCategoryApp                             // Product misbehaved: 5xx, unresponsive app
	ErrCategoryConfig                          // Invalid configuration, missing required field
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryAssertion:
		return "assertion"
	case ErrCategoryTimeout:
		return "timeout"
	case ErrCategoryConnection:
		return "connection"
	case ErrCategoryApp:
		return "app"
	case ErrCategoryConfig:
		return "config"
	default:
		return "unknown"
	}
}
