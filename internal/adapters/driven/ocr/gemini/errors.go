package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

// classify wraps err with domain.ErrTransient when a retry may succeed,
// and with domain.ErrValidation otherwise.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("gemini: %w", err)
	}
	if isTransient(err) {
		return fmt.Errorf("%w: gemini: %w", domain.ErrTransient, err)
	}
	return fmt.Errorf("%w: gemini: %w", domain.ErrValidation, err)
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return false
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		if code := apiErr.HTTPCode(); code > 0 {
			return transientHTTP(code)
		}
		if s := apiErr.GRPCStatus(); s != nil {
			return transientCode(s.Code())
		}
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return transientHTTP(gErr.Code)
	}

	if s, ok := status.FromError(err); ok && s.Code() != codes.Unknown {
		return transientCode(s.Code())
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func transientHTTP(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusRequestTimeout ||
		code >= http.StatusInternalServerError
}

func transientCode(c codes.Code) bool {
	switch c {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded,
		codes.Aborted, codes.Internal:
		return true
	default:
		return false
	}
}
