package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestExecutionError_Error(t *testing.T) {
	err := &ExecutionError{Category: ErrCategoryAssertion, Code: "x", Message: "login button missing"}
	if got := err.Error(); got != "login button missing" {
		t.Errorf("Error() = %q", got)
	}

	wrapped := err.WithCause(errors.New("no such element"))
	got := wrapped.Error()
	if !strings.Contains(got, "login button missing") || !strings.Contains(got, "no such element") {
		t.Errorf("Error() = %q, want message and cause", got)
	}
}

func TestExecutionError_CopiesDoNotMutate(t *testing.T) {
	custom := ErrTimeout.WithMessage("OTP did not arrive")
	if ErrTimeout.Message == "OTP did not arrive" {
		t.Error("WithMessage() modified the predefined error")
	}
	if custom.Code != ErrTimeout.Code {
		t.Errorf("Code = %q, want %q", custom.Code, ErrTimeout.Code)
	}

	withCause := ErrElementNotFound.WithCause(errors.New("boom"))
	if ErrElementNotFound.Cause != nil {
		t.Error("WithCause() modified the predefined error")
	}
	if withCause.Unwrap() == nil {
		t.Error("Unwrap() should return the cause")
	}
}

func TestExecutionError_WithDetails(t *testing.T) {
	base := ErrTextMismatch.WithDetails(map[string]interface{}{"expected": "Saved"})
	merged := base.WithDetails(map[string]interface{}{"actual": "Error"})

	if len(base.Details) != 1 {
		t.Errorf("base details mutated: %v", base.Details)
	}
	if merged.Details["expected"] != "Saved" || merged.Details["actual"] != "Error" {
		t.Errorf("merged details = %v", merged.Details)
	}
}

func TestExecutionError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("step failed: %w", ErrWaitTimeout.WithMessage("bulk upload still running"))

	if !errors.Is(err, ErrWaitTimeout) {
		t.Error("errors.Is should match a copy with the same code")
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("errors.Is should not match a different code")
	}
}

func TestExecutionError_IsFindsCause(t *testing.T) {
	cause := errors.New("root cause")
	if !errors.Is(ErrDatabaseUnavailable.WithCause(cause), cause) {
		t.Error("errors.Is() should find the cause")
	}
}

func TestCategoryOfAndCodeOf(t *testing.T) {
	tests := []struct {
		err      error
		category ErrorCategory
		code     string
	}{
		{ErrElementNotFound, ErrCategoryAssertion, "element_not_found"},
		{fmt.Errorf("wrap: %w", ErrAPIUnreachable), ErrCategoryConnection, "api_unreachable"},
		{ErrWriteForbidden, ErrCategoryConfig, "write_forbidden"},
		{errors.New("plain"), ErrCategoryNone, ""},
		{nil, ErrCategoryNone, ""},
	}
	for _, tt := range tests {
		if got := CategoryOf(tt.err); got != tt.category {
			t.Errorf("CategoryOf(%v) = %s, want %s", tt.err, got, tt.category)
		}
		if got := CodeOf(tt.err); got != tt.code {
			t.Errorf("CodeOf(%v) = %q, want %q", tt.err, got, tt.code)
		}
	}
}

func TestPredefinedErrorsHaveCodes(t *testing.T) {
	all := []*ExecutionError{
		ErrElementNotFound, ErrElementNotVisible, ErrTextMismatch, ErrConditionNotMet,
		ErrUnexpectedStatus, ErrRecordNotFound, ErrSoftAssertions, ErrTimeout,
		ErrWaitTimeout, ErrServerUnreachable, ErrSessionLost, ErrDatabaseUnavailable,
		ErrAPIUnreachable, ErrAppNotResponding, ErrServerError, ErrInvalidConfig,
		ErrMissingRequired, ErrWriteForbidden,
	}
	seen := map[string]bool{}
	for _, e := range all {
		if e.Code == "" || e.Message == "" {
			t.Errorf("error %+v missing code or message", e)
		}
		if seen[e.Code] {
			t.Errorf("duplicate code %q", e.Code)
		}
		seen[e.Code] = true
	}
}

func TestNewExecutionError(t *testing.T) {
	err := NewExecutionError(ErrCategoryApp, "custom_error", "custom message")
	if err.Category != ErrCategoryApp || err.Code != "custom_error" || err.Message != "custom message" {
		t.Errorf("NewExecutionError() = %+v", err)
	}
}

func TestParsePlatform(t *testing.T) {
	tests := map[string]Platform{"": PlatformWeb, "Web": PlatformWeb, "ANDROID": PlatformAndroid, " ios ": PlatformIOS}
	for in, want := range tests {
		got, err := ParsePlatform(in)
		if err != nil || got != want {
			t.Errorf("ParsePlatform(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParsePlatform("windows"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("ParsePlatform(windows) err = %v, want ErrInvalidConfig", err)
	}
}
