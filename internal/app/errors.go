package app

import (
	"errors"
	"fmt"
	"net/http"
)

type DomainError struct {
	Status    int
	Code      string
	Message   string
	Details   any
	Transient bool
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// storeUnavailable wraps a backing-store failure as a retriable error. The
// caller may replay the whole operation; every sub-write is idempotent, so a
// retry converges rather than double-applying.
func storeUnavailable(err error) *DomainError {
	return &DomainError{
		Status:    http.StatusServiceUnavailable,
		Code:      "STORE_UNAVAILABLE",
		Message:   "a backing store did not respond; retry the operation",
		Details:   err.Error(),
		Transient: true,
	}
}

func errNotFound(what string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", what+" not found", nil)
}

func errValidation(message string) *DomainError {
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", message, nil)
}

func errAlreadyAuthorized() *DomainError {
	return domainError(http.StatusConflict, "ALREADY_AUTHORIZED", "operator is already authorized for this test", nil)
}

func errAlreadyMarked(rollNumber string) *DomainError {
	return domainError(http.StatusConflict, "ALREADY_MARKED", "attendance already recorded for "+rollNumber, nil)
}

func errNotRegistered(rollNumber string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_REGISTERED", rollNumber+" is not registered for this test", nil)
}

func errForbidden(message string) *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", message, nil)
}

func errTestCompleted() *DomainError {
	return domainError(http.StatusConflict, "TEST_COMPLETED", "test has been completed and no longer accepts changes", nil)
}

// IsTransient reports whether err is worth retrying verbatim.
func IsTransient(err error) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Transient
	}
	return false
}
