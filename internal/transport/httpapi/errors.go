package httpapi

import (
	"context"
	"net/http"

	"github.com/bytedance/sonic"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-user-cache/cache"
	"github.com/goliatone/go-user-cache/repository"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// TextCodeRouteNotFound and TextCodeMethodNotAllowed are raised by the router.
const (
	TextCodeRouteNotFound    = "ROUTE_NOT_FOUND"
	TextCodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	TextCodeRequestTimeout   = "REQUEST_TIMEOUT"
)

var errorMappers = []goerrors.ErrorMapper{
	mapContextErrors,
	goerrors.MapHTTPErrors,
}

func mapContextErrors(err error) *goerrors.Error {
	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return goerrors.Wrap(err, goerrors.CategoryExternal, "request timed out").
			WithCode(http.StatusServiceUnavailable).
			WithTextCode(TextCodeRequestTimeout)
	case goerrors.Is(err, context.Canceled):
		return goerrors.Wrap(err, goerrors.CategoryInternal, "request cancelled").
			WithCode(http.StatusServiceUnavailable).
			WithTextCode(TextCodeRequestTimeout)
	}
	return nil
}

// StatusCode returns the HTTP status for err. An explicit code on a
// categorized error wins, otherwise the category decides.
func StatusCode(err error) int {
	e := goerrors.MapToError(err, errorMappers)

	switch {
	case e.TextCode == cache.TextCodeCacheUnavailable:
		return http.StatusServiceUnavailable
	case e.TextCode == repository.TextCodeConnectionError:
		return http.StatusServiceUnavailable
	case e.Code != 0:
		return e.Code
	}

	switch e.Category {
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryValidation:
		return http.StatusUnprocessableEntity
	case goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case goerrors.CategoryExternal:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as a goerrors.ErrorResponse. Driver messages and
// source locations are only exposed in debug mode.
func writeError(rctx *fasthttp.RequestCtx, err error, debug bool, logger *zap.Logger) {
	status := StatusCode(err)

	e := goerrors.MapToError(err, errorMappers).Clone()
	if e.Code == 0 {
		e.Code = status
	}
	if id := RequestID(rctx); id != "" {
		e.RequestID = id
	}
	if !debug {
		e.Source = nil
		e.Location = nil
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("request_id", e.RequestID),
			zap.String("text_code", e.TextCode),
			zap.Error(err),
		)
	}

	writeJSON(rctx, status, e.ToErrorResponse(false, nil))
}

func writeJSON(rctx *fasthttp.RequestCtx, status int, body any) {
	data, err := sonic.Marshal(body)
	if err != nil {
		rctx.Error(`{"error":{"category":"internal","message":"failed to encode response"}}`, http.StatusInternalServerError)
		rctx.SetContentType("application/json")
		return
	}

	rctx.SetStatusCode(status)
	rctx.SetContentType("application/json")
	rctx.SetBody(data)
}

func validationError(message, field, reason string) *goerrors.Error {
	return goerrors.NewValidation(message, goerrors.FieldError{Field: field, Message: reason}).
		WithCode(http.StatusUnprocessableEntity).
		WithTextCode(repository.TextCodeValidationFailed)
}
