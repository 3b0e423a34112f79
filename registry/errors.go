package registry

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrAlreadyRegistered = errors.New("registry: digest already registered")
	ErrUnavailable       = errors.New("registry: backend unavailable")
	ErrTimeout           = errors.New("registry: operation timed out")
	ErrInvalid           = errors.New("registry: invalid registration")
	ErrTampered          = errors.New("registry: stored record failed integrity check")
)

func IsAlreadyRegistered(err error) bool { return errors.Is(err, ErrAlreadyRegistered) }

// IsRetryable reports whether retrying the same call could succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout)
}

// CheckContext maps a done context to ErrTimeout. Backends call it
// immediately before committing so an expired caller never gets a write.
func CheckContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return nil
}

// Unavailable wraps a backend failure.
func Unavailable(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
