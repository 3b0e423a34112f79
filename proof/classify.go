package proof

import (
	"context"
	"errors"

	"xdao.co/origin/model"
	"xdao.co/origin/registry"
)

// Classify maps any error from the registration path to a structured error.
// Structured errors pass through unchanged.
func Classify(err error) *model.Error {
	if err == nil {
		return nil
	}
	var me *model.Error
	if errors.As(err, &me) {
		return me
	}
	switch {
	case errors.Is(err, registry.ErrAlreadyRegistered):
		return model.WrapError(model.KindAlreadyRegistered, "file already registered", err)
	case errors.Is(err, registry.ErrInvalid):
		return model.NewError(model.KindValidation, trimSentinel(err, registry.ErrInvalid))
	case errors.Is(err, registry.ErrTimeout), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return model.WrapError(model.KindTimeout, "registry operation timed out", err)
	case errors.Is(err, registry.ErrUnavailable):
		return model.WrapError(model.KindNotConfigured, "registry unavailable", err)
	case errors.Is(err, registry.ErrTampered):
		return model.WrapError(model.KindInternal, "stored record failed integrity check", err)
	default:
		return model.WrapError(model.KindInternal, "internal error", err)
	}
}

// trimSentinel drops the sentinel prefix so validation messages read cleanly.
func trimSentinel(err, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}
