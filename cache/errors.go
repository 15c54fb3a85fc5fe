package cache

import (
	goerrors "github.com/goliatone/go-errors"
)

// TextCodeCacheUnavailable marks errors raised by a failing cache backend.
const TextCodeCacheUnavailable = "CACHE_UNAVAILABLE"

// Unavailable wraps a backend failure for operation op.
func Unavailable(err error, op string) *goerrors.Error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, goerrors.CategoryExternal, "cache unavailable during "+op).
		WithTextCode(TextCodeCacheUnavailable).
		WithMetadata(map[string]any{"operation": op})
}

// IsUnavailable reports whether err was produced by Unavailable.
func IsUnavailable(err error) bool {
	var e *goerrors.Error
	if goerrors.As(err, &e) {
		return e.TextCode == TextCodeCacheUnavailable
	}
	return false
}
