package dropbox

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/auth"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

// IsAuthError returns true if the error indicates an invalid or expired token.
func IsAuthError(err error) bool {
	var v auth.AuthAPIError
	if errors.As(err, &v) {
		return true
	}
	var p *auth.AuthAPIError
	if errors.As(err, &p) {
		return true
	}
	return summaryHas(err, "expired_access_token", "invalid_access_token")
}

// IsRateLimited returns true if Dropbox asked the client to back off.
func IsRateLimited(err error) bool {
	var v auth.RateLimitAPIError
	if errors.As(err, &v) {
		return true
	}
	var p *auth.RateLimitAPIError
	if errors.As(err, &p) {
		return true
	}
	return summaryHas(err, "too_many_requests", "too_many_write_operations")
}

// retryAfter extracts the server's requested backoff in seconds, or 0.
func retryAfter(err error) int {
	var v auth.RateLimitAPIError
	if errors.As(err, &v) && v.RateLimitError != nil {
		return int(v.RateLimitError.RetryAfter)
	}
	var p *auth.RateLimitAPIError
	if errors.As(err, &p) && p.RateLimitError != nil {
		return int(p.RateLimitError.RetryAfter)
	}
	return 0
}

// IsCursorReset returns true if a list_folder/continue cursor is no longer
// valid and the folder must be listed from scratch.
func IsCursorReset(err error) bool {
	var v files.ListFolderContinueAPIError
	if errors.As(err, &v) && v.EndpointError != nil {
		return v.EndpointError.Tag == files.ListFolderContinueErrorReset
	}
	var p *files.ListFolderContinueAPIError
	if errors.As(err, &p) && p.EndpointError != nil {
		return p.EndpointError.Tag == files.ListFolderContinueErrorReset
	}
	return summaryHas(err, "reset/")
}

// IsNotFound returns true if the path does not exist.
func IsNotFound(err error) bool {
	return summaryHas(err, "not_found")
}

// isConflict returns true if a write hit an existing file or folder.
func isConflict(err error) bool {
	return summaryHas(err, "conflict")
}

// isServerError returns true for 5xx responses.
func isServerError(err error) bool {
	var sdkErr dropbox.SDKInternalError
	if errors.As(err, &sdkErr) {
		return sdkErr.StatusCode >= http.StatusInternalServerError
	}
	return summaryHas(err, "internal_error", "service_unavailable")
}

func summaryHas(err error, fragments ...string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, f := range fragments {
		if strings.Contains(msg, f) {
			return true
		}
	}
	return false
}

// WrapError maps a Dropbox SDK error onto the domain error taxonomy,
// keeping the original error in the chain.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case IsAuthError(err):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrAuthExpired, err)
	case IsCursorReset(err):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrCursorExpired, err)
	case IsRateLimited(err), isServerError(err):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrTransient, err)
	case IsNotFound(err):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrNotFound, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
