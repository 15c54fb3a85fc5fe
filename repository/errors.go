package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"net"

	goerrors "github.com/goliatone/go-errors"
	"github.com/lib/pq"
)

// Text codes attached to store errors.
const (
	TextCodeNotFound          = "NOT_FOUND"
	TextCodeCreateFailed      = "CREATE_FAILED"
	TextCodePersistenceFailed = "PERSISTENCE_FAILED"
	TextCodeConnectionError   = "CONNECTION_ERROR"
	TextCodeValidationFailed  = "VALIDATION_FAILED"
)

// NotFound builds the error returned when entity id has no record.
func NotFound(entity string, id int64) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("No %s entry with id=%d was found", entity, id), goerrors.CategoryNotFound).
		WithCode(goerrors.CodeNotFound).
		WithTextCode(TextCodeNotFound).
		WithMetadata(map[string]any{"entity": entity, "id": id})
}

// IsNotFound reports whether err signals a missing record.
func IsNotFound(err error) bool {
	return goerrors.IsNotFound(err)
}

// IsConnectionError reports whether err was classified as a store connection failure.
func IsConnectionError(err error) bool {
	return hasTextCode(err, TextCodeConnectionError)
}

// IsCreateFailed reports whether err is a rejected create.
func IsCreateFailed(err error) bool {
	return hasTextCode(err, TextCodeCreateFailed)
}

func hasTextCode(err error, code string) bool {
	var e *goerrors.Error
	if goerrors.As(err, &e) {
		return e.TextCode == code
	}
	return false
}

// storeError classifies a driver error raised during op. Errors that are
// already categorized pass through untouched.
func storeError(err error, textCode, op string) error {
	if err == nil {
		return nil
	}

	var categorized *goerrors.Error
	if goerrors.As(err, &categorized) {
		return err
	}

	if isConnectionFailure(err) {
		return goerrors.Wrap(err, goerrors.CategoryExternal, op+": store unreachable").
			WithCode(503).
			WithTextCode(TextCodeConnectionError)
	}

	return goerrors.Wrap(err, goerrors.CategoryOperation, op+" failed").
		WithCode(goerrors.CodeInternal).
		WithTextCode(textCode)
}

func isConnectionFailure(err error) bool {
	if goerrors.Is(err, driver.ErrBadConn) ||
		goerrors.Is(err, sql.ErrConnDone) ||
		goerrors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if goerrors.As(err, &netErr) {
		return true
	}

	// go-repository-bun reports refused and closed connections as external failures
	var retryable *goerrors.RetryableError
	if goerrors.As(err, &retryable) && retryable.BaseError != nil &&
		retryable.BaseError.Category == goerrors.CategoryExternal {
		return true
	}

	// SQLSTATE class 08: connection exception
	var pqErr *pq.Error
	if goerrors.As(err, &pqErr) && pqErr.Code.Class() == "08" {
		return true
	}

	return false
}
