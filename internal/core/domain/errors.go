package domain

import (
	"errors"
	"fmt"
)

// Kind is the externally visible error category.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindUnauthorized
	KindValidation
	KindConflict
)

// Category roots. Every sentinel below wraps exactly one of these, so
// callers can branch on the kind with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("access forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
)

var (
	ErrUserNotFound     = fmt.Errorf("user %w", ErrNotFound)
	ErrDonationNotFound = fmt.Errorf("donation %w", ErrNotFound)
	ErrRequestNotFound  = fmt.Errorf("request %w", ErrNotFound)

	ErrAccountSuspended = fmt.Errorf("%w: account suspended", ErrForbidden)

	ErrMissingAuthHeader   = fmt.Errorf("%w: authorization header missing", ErrUnauthorized)
	ErrMalformedAuthScheme = fmt.Errorf("%w: invalid authorization format", ErrUnauthorized)
	ErrInvalidToken        = fmt.Errorf("%w: invalid or expired token", ErrUnauthorized)
	ErrInvalidCredentials  = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)

	ErrNoProfileImage = fmt.Errorf("%w: no profile image to delete", ErrValidation)

	ErrUserExists               = fmt.Errorf("%w: user already exists", ErrConflict)
	ErrDonationAlreadyCompleted = fmt.Errorf("%w: donation already completed", ErrConflict)
	ErrRequestNotPending        = fmt.Errorf("%w: request is not pending", ErrConflict)
	ErrRequestNotAccepted       = fmt.Errorf("%w: request is not accepted", ErrConflict)
	ErrConcurrentUpdate         = fmt.Errorf("%w: concurrent update, retry", ErrConflict)
	ErrSubmissionInFlight       = fmt.Errorf("%w: a submission with this idempotency key is in progress", ErrConflict)

	// ErrVersionMismatch is returned by repositories when a guarded write
	// finds the document at a different revision. Services retry on it.
	ErrVersionMismatch = errors.New("document version mismatch")
)

// Validationf builds a ValidationError with a caller-facing message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// KindOf classifies err into the error taxonomy.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}
