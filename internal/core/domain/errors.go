package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates malformed or invalid input. Never retried.
	ErrValidation = errors.New("validation error")

	// ErrAlreadyProcessed indicates the ledger already holds a successful
	// record for the fingerprint.
	ErrAlreadyProcessed = errors.New("already processed")

	// ErrSyncInProgress indicates a poll for the account is already running.
	ErrSyncInProgress = errors.New("sync in progress")

	// ErrStorageUnavailable indicates the ledger, cursor or credential
	// storage failed. It is fatal to the daemon.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Provider Errors.

	// ErrTransient indicates a network, rate-limit or 5xx-class failure
	// that may succeed when retried.
	ErrTransient = errors.New("transient provider error")

	// ErrAuthExpired indicates the provider rejected the access token.
	ErrAuthExpired = errors.New("authentication expired")

	// ErrTokenRefreshFailed indicates the refresh-token exchange failed.
	ErrTokenRefreshFailed = errors.New("token refresh failed")

	// ErrCursorExpired indicates the provider no longer accepts the stored cursor.
	ErrCursorExpired = errors.New("cursor expired")

	// Authorization Errors.

	// ErrNotAllowed indicates the account is not on the allowlist.
	ErrNotAllowed = errors.New("account not allowed")

	// ErrStateMismatch indicates the anti-forgery token did not match the attempt.
	ErrStateMismatch = errors.New("authorization state mismatch")

	// ErrAttemptNotFound indicates no live authorization attempt matches.
	ErrAttemptNotFound = errors.New("authorization attempt not found")

	// ErrAttemptExpired indicates the authorization attempt timed out.
	ErrAttemptExpired = errors.New("authorization attempt expired")

	// Pipeline Errors.

	// ErrExtractionFailed indicates OCR failed permanently or after retries.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrOutputWriteFailed indicates the output file could not be written.
	ErrOutputWriteFailed = errors.New("output write failed")

	// ErrArchivalFailed indicates the original could not be archived.
	ErrArchivalFailed = errors.New("archival failed")
)

// Stage names a pipeline step that can fail.
type Stage string

// Pipeline stages that surface typed failures.
const (
	StageExtraction Stage = "extraction"
	StageOutput     Stage = "output"
	StageArchival   Stage = "archival"
)

// ProcessingError is returned by the pipeline when an item fails.
// The ledger record for the item carries Reason.
type ProcessingError struct {
	Stage  Stage
	Reason string
	Err    error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Reason)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the failed stage.
func (e *ProcessingError) Is(target error) bool {
	switch e.Stage {
	case StageExtraction:
		return target == ErrExtractionFailed
	case StageOutput:
		return target == ErrOutputWriteFailed
	case StageArchival:
		return target == ErrArchivalFailed
	}
	return false
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
