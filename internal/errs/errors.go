// Package errs classifies the error taxonomy described in spec.md §7:
// transient I/O, validation, capture-unavailable, quota, archive
// integrity, profile conflict, and consistency drift.
package errs

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Category names one of the taxonomy's kinds. These are categories,
// not sentinel types — callers classify with Classify, not type switches.
type Category string

const (
	CategoryTransientIO        Category = "transient_io"
	CategoryValidation         Category = "validation"
	CategoryCaptureUnavailable Category = "capture_unavailable"
	CategoryQuota              Category = "quota"
	CategoryArchiveIntegrity   Category = "archive_integrity"
	CategoryProfileConflict    Category = "profile_conflict"
	CategoryConsistencyDrift   Category = "consistency_drift"
	CategoryUnknown            Category = "unknown"
)

// Sentinel errors referenced by components across the module.
var (
	ErrQuotaReached       = errors.New("capacity cap reached for this session")
	ErrCaptureUnavailable = errors.New("tracing subsystem unavailable")
	ErrArchiveMalformed   = errors.New("archive header malformed")
	ErrValidationFailed   = errors.New("transfer agent validation failed")
	ErrGameRunning        = errors.New("game process is running")
)

// Classify reports the category of err and whether retrying the
// operation that produced it is likely to succeed.
func Classify(err error) (Category, bool) {
	if err == nil {
		return CategoryUnknown, false
	}

	switch {
	case errors.Is(err, ErrQuotaReached):
		return CategoryQuota, false
	case errors.Is(err, ErrCaptureUnavailable):
		return CategoryCaptureUnavailable, false
	case errors.Is(err, ErrArchiveMalformed):
		return CategoryArchiveIntegrity, false
	case errors.Is(err, ErrValidationFailed):
		return CategoryValidation, false
	}

	if isPermissionError(err) {
		return CategoryValidation, false
	}
	if isNetworkError(err) {
		return CategoryTransientIO, true
	}
	if isTransientFileError(err) {
		return CategoryTransientIO, true
	}

	return CategoryUnknown, false
}

// IsRetryable is a convenience wrapper around Classify.
func IsRetryable(err error) bool {
	_, retryable := Classify(err)
	return retryable
}

func isPermissionError(err error) bool {
	if errors.Is(err, os.ErrPermission) {
		return true
	}
	return containsAny(err.Error(), "permission denied", "access denied", "access is denied")
}

func isNetworkError(err error) bool {
	return containsAny(err.Error(),
		"connection refused", "connection reset", "timeout",
		"no route to host", "dial tcp", "temporarily unavailable")
}

func isTransientFileError(err error) bool {
	if errors.Is(err, os.ErrNotExist) {
		return false
	}
	return containsAny(err.Error(), "file is locked", "used by another process", "resource busy")
}

func containsAny(msg string, patterns ...string) bool {
	lower := strings.ToLower(msg)
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Wrap adds operation/path context while preserving error identity
// for errors.Is/errors.As.
func Wrap(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
