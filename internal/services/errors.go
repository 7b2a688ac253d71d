package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/ajramos/unibox/internal/api"
)

// Standard service errors
var (
	// Network and connectivity errors
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrTimeout            = errors.New("operation timed out")
	ErrUnauthorized       = errors.New("unauthorized access")

	// Data errors
	ErrNotFound      = errors.New("resource not found")
	ErrInvalidInput  = errors.New("invalid input provided")
	ErrInvalidFormat = errors.New("invalid format")

	// Session errors
	ErrSessionClosed    = errors.New("compose session closed")
	ErrSessionNotFound  = errors.New("compose session not found")
	ErrSendInFlight     = errors.New("a deferred send is already in flight")
	ErrCountdownExpired = errors.New("could not cancel, the message may have already been sent")

	// Rule errors
	ErrRuleNotFound = errors.New("rule not found")
	ErrInvalidRule  = errors.New("invalid rule definition")
)

// classifyBackendError maps a backend failure onto the service error
// taxonomy so callers can consult IsRetryableError / IsPermanentError.
// Unrecognized errors pass through unchanged.
func classifyBackendError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}

	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == 401 || statusErr.StatusCode == 403:
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		case statusErr.StatusCode == 404:
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case statusErr.StatusCode == 400 || statusErr.StatusCode == 422:
			return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
		case statusErr.StatusCode == 408 || statusErr.StatusCode == 429 || statusErr.StatusCode >= 500:
			return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
		}
	}
	return err
}

// IsRetryableError determines if an error may succeed on the next trigger.
// Reads are never retried within the same call; the next poll or manual
// refresh carries the retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// IsPermanentError determines if an error is permanent and should not be retried
func IsPermanentError(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidFormat) ||
		errors.Is(err, ErrInvalidRule)
}
