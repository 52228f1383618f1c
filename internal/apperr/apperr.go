package apperr

import (
	"errors"
	"fmt"
)

// Common error types for the cloud app
var (
	// Signature errors
	ErrSignatureRejected = errors.New("signature rejected")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")

	// Installation errors
	ErrInstallationNotFound = errors.New("installation not found")

	// Store errors
	ErrNotFound = errors.New("not found")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
