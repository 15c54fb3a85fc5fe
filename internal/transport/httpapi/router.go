package httpapi

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/valyala/fasthttp"
)

type route struct {
	method   string
	segments []string
	handler  fasthttp.RequestHandler
}

// Router matches method and path segments. A segment written as {name}
// captures the path value into the request user values under name.
// Trailing slashes are ignored, so "/user" and "/user/" match the same route.
type Router struct {
	routes  []route
	onError func(*fasthttp.RequestCtx, error)
}

// NewRouter creates a Router that renders routing failures with onError.
func NewRouter(onError func(*fasthttp.RequestCtx, error)) *Router {
	return &Router{onError: onError}
}

// Handle registers handler for method and pattern.
func (r *Router) Handle(method, pattern string, handler fasthttp.RequestHandler) {
	r.routes = append(r.routes, route{
		method:   method,
		segments: splitPath(pattern),
		handler:  handler,
	})
}

// Handler dispatches rctx to the first matching route.
func (r *Router) Handler(rctx *fasthttp.RequestCtx) {
	method := string(rctx.Method())
	path := splitPath(string(rctx.Path()))

	pathMatched := false
	for _, rt := range r.routes {
		params, ok := match(rt.segments, path)
		if !ok {
			continue
		}
		pathMatched = true
		if rt.method != method {
			continue
		}

		for name, value := range params {
			rctx.SetUserValue(name, value)
		}
		rt.handler(rctx)
		return
	}

	if pathMatched {
		r.onError(rctx, goerrors.New("method not allowed", goerrors.CategoryMethodNotAllowed).
			WithCode(http.StatusMethodNotAllowed).
			WithTextCode(TextCodeMethodNotAllowed))
		return
	}

	r.onError(rctx, goerrors.New("route not found", goerrors.CategoryRouting).
		WithCode(http.StatusNotFound).
		WithTextCode(TextCodeRouteNotFound))
}

func match(pattern, path []string) (map[string]string, bool) {
	if len(pattern) != len(path) {
		return nil, false
	}

	var params map[string]string
	for i, seg := range pattern {
		if name, ok := paramName(seg); ok {
			if path[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string, 1)
			}
			params[name] = path[i]
			continue
		}
		if seg != path[i] {
			return nil, false
		}
	}

	return params, true
}

func paramName(segment string) (string, bool) {
	if len(segment) > 2 && segment[0] == '{' && segment[len(segment)-1] == '}' {
		return segment[1 : len(segment)-1], true
	}
	return "", false
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
