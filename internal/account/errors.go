package account

import (
	"errors"
	"fmt"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
)

var (
	ErrInvalidAccountType = errors.New("invalid account type")
	ErrProfileNotFound    = errors.New("profile not found")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountInactive    = errors.New("account inactive")
	ErrNoActiveAccount    = errors.New("no active account")
	ErrOwnershipViolation = errors.New("account not owned by user")
	ErrTransientStore     = errors.New("store unavailable")
	// errAccountConflict is a lost find-or-create race; it is retried
	// internally and never returned.
	errAccountConflict = errors.New("account conflict")
)

// ProfileNotFoundError carries the user-facing reason; it matches
// ErrProfileNotFound with errors.Is.
type ProfileNotFoundError struct {
	Type entity.AccountType
}

func (e *ProfileNotFoundError) Error() string {
	return fmt.Sprintf("Unable to verify %s account for posting", e.Type)
}

func (e *ProfileNotFoundError) Is(target error) bool { return target == ErrProfileNotFound }

// transient wraps a store failure so callers can tell "try again" apart
// from everything else while keeping the cause.
func transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransientStore, err)
}

// Class groups errors by what the user can do about them.
type Class int

const (
	ClassInternal Class = iota
	// ClassCorrectable: the user can fix it (create a profile, pick a valid type).
	ClassCorrectable
	// ClassRetryable: retry the whole operation.
	ClassRetryable
	// ClassForbidden: no detail is shown.
	ClassForbidden
	ClassNotFound
)

func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassInternal
	case errors.Is(err, ErrOwnershipViolation):
		return ClassForbidden
	case errors.Is(err, ErrInvalidAccountType), errors.Is(err, ErrProfileNotFound):
		return ClassCorrectable
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrNoActiveAccount), errors.Is(err, ErrAccountInactive):
		return ClassNotFound
	case errors.Is(err, ErrTransientStore):
		return ClassRetryable
	}
	return ClassInternal
}
