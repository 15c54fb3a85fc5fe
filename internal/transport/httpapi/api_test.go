package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/goliatone/go-user-cache/cache"
	"github.com/goliatone/go-user-cache/internal/health"
	"github.com/goliatone/go-user-cache/internal/users"
	"github.com/goliatone/go-user-cache/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
)

// fakeUsers is a users.Service backed by a map that records calls.
type fakeUsers struct {
	mu      sync.Mutex
	calls   []string
	records map[int64]users.User
	nextID  int64
	err     error

	lastSkip  int
	lastLimit int
}

func newFakeUsers(records ...users.User) *fakeUsers {
	f := &fakeUsers{records: map[int64]users.User{}, nextID: 1}
	for _, r := range records {
		f.records[r.ID] = r
		if r.ID >= f.nextID {
			f.nextID = r.ID + 1
		}
	}
	return f
}

func (f *fakeUsers) recordCall(method string) {
	f.calls = append(f.calls, method)
}

func (f *fakeUsers) getCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeUsers) List(_ context.Context, skip, limit int) ([]users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordCall("List")
	f.lastSkip, f.lastLimit = skip, limit
	if f.err != nil {
		return nil, f.err
	}
	out := []users.User{}
	for id := int64(1); id < f.nextID && len(out) < limit; id++ {
		if r, ok := f.records[id]; ok {
			if skip > 0 {
				skip--
				continue
			}
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeUsers) Get(_ context.Context, id int64) (users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordCall("Get")
	if f.err != nil {
		return users.User{}, f.err
	}
	r, ok := f.records[id]
	if !ok {
		return users.User{}, repository.NotFound("User", id)
	}
	return r, nil
}

func (f *fakeUsers) Create(_ context.Context, record users.User) (users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordCall("Create")
	if f.err != nil {
		return users.User{}, f.err
	}
	record.ID = f.nextID
	f.nextID++
	f.records[record.ID] = record
	return record, nil
}

func (f *fakeUsers) Update(_ context.Context, id int64, patch repository.Patch[users.User]) (users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordCall("Update")
	if f.err != nil {
		return users.User{}, f.err
	}
	if v, ok := patch.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return users.User{}, err
		}
	}
	r, ok := f.records[id]
	if !ok {
		return users.User{}, repository.NotFound("User", id)
	}
	patch.Apply(&r)
	f.records[id] = r
	return r, nil
}

func (f *fakeUsers) Delete(_ context.Context, id int64) (users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordCall("Delete")
	if f.err != nil {
		return users.User{}, f.err
	}
	r, ok := f.records[id]
	if !ok {
		return users.User{}, repository.NotFound("User", id)
	}
	delete(f.records, id)
	return r, nil
}

var _ users.Service = (*fakeUsers)(nil)

type errorBody struct {
	Error struct {
		Category         string `json:"category"`
		Code             int    `json:"code"`
		TextCode         string `json:"text_code"`
		Message          string `json:"message"`
		Source           string `json:"source"`
		RequestID        string `json:"request_id"`
		ValidationErrors []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"validation_errors"`
	} `json:"error"`
}

type request struct {
	method  string
	uri     string
	body    string
	headers map[string]string
}

// do runs req through h without a network round trip.
func do(h fasthttp.RequestHandler, req request) *fasthttp.RequestCtx {
	var r fasthttp.Request
	r.Header.SetMethod(req.method)
	r.SetRequestURI(req.uri)
	for k, v := range req.headers {
		r.Header.Set(k, v)
	}
	if req.body != "" {
		r.Header.SetContentType("application/json")
		r.SetBodyString(req.body)
	}

	rctx := &fasthttp.RequestCtx{}
	rctx.Init(&r, nil, nil)
	h(rctx)
	return rctx
}

func decode[T any](t *testing.T, rctx *fasthttp.RequestCtx) T {
	t.Helper()
	var out T
	if err := sonic.Unmarshal(rctx.Response.Body(), &out); err != nil {
		t.Fatalf("failed to decode %q: %v", rctx.Response.Body(), err)
	}
	return out
}

func newTestAPI(svc users.Service, opts ...Option) *API {
	api := NewAPI(opts...)
	NewUserHandlers(svc).Register(api, "/api/v1")
	return api
}

func TestUserRoutes(t *testing.T) {
	seed := []users.User{
		{ID: 1, Email: "a@example.com"},
		{ID: 2, Email: "b@example.com"},
	}

	tests := []struct {
		name       string
		req        request
		wantStatus int
		wantText   string
		check      func(t *testing.T, rctx *fasthttp.RequestCtx)
	}{
		{
			name:       "list",
			req:        request{method: "GET", uri: "/api/v1/user/"},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, rctx *fasthttp.RequestCtx) {
				got := decode[[]users.User](t, rctx)
				if len(got) != 2 {
					t.Errorf("expected 2 users, got %d", len(got))
				}
			},
		},
		{
			name:       "list without trailing slash",
			req:        request{method: "GET", uri: "/api/v1/user?skip=1&limit=1"},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, rctx *fasthttp.RequestCtx) {
				got := decode[[]users.User](t, rctx)
				if len(got) != 1 || got[0].ID != 2 {
					t.Errorf("expected the second user, got %+v", got)
				}
			},
		},
		{
			name:       "list negative skip",
			req:        request{method: "GET", uri: "/api/v1/user/?skip=-1"},
			wantStatus: http.StatusUnprocessableEntity,
			wantText:   repository.TextCodeValidationFailed,
		},
		{
			name:       "list non integer limit",
			req:        request{method: "GET", uri: "/api/v1/user/?limit=ten"},
			wantStatus: http.StatusUnprocessableEntity,
			wantText:   repository.TextCodeValidationFailed,
		},
		{
			name:       "get",
			req:        request{method: "GET", uri: "/api/v1/user/1"},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, rctx *fasthttp.RequestCtx) {
				if got := decode[users.User](t, rctx); got.Email != "a@example.com" {
					t.Errorf("expected a@example.com, got %+v", got)
				}
			},
		},
		{
			name:       "get missing",
			req:        request{method: "GET", uri: "/api/v1/user/99"},
			wantStatus: http.StatusNotFound,
			wantText:   repository.TextCodeNotFound,
			check: func(t *testing.T, rctx *fasthttp.RequestCtx) {
				body := decode[errorBody](t, rctx)
				if body.Error.Message != "No User entry with id=99 was found" {
					t.Errorf("unexpected message %q", body.Error.Message)
				}
			},
		},
		{
			name:       "get non integer id",
			req:        request{method: "GET", uri: "/api/v1/user/abc"},
			wantStatus: http.StatusUnprocessableEntity,
			wantText:   repository.TextCodeValidationFailed,
			check: func(t *testing.T, rctx *fasthttp.RequestCtx) {
				body := decode[errorBody](t, rctx)
				if len(body.Error.ValidationErrors) != 1 || body.Error.ValidationErrors[0].Field != "id" {
					t.Errorf("expected a field error on id, got %+v", body.Error.ValidationErrors)
				}
			},
		},
		{
			name:       "create",
			req:        request{method: "POST", uri: "/api/v1/user/", body: `{"email":"c@example.com"}`},
			wantStatus: http.StatusCreated,
			check: func(t *testing.T, rctx *fasthttp.RequestCtx) {
				got := decode[users.User](t, rctx)
				if got.ID != 3 || got.Email != "c@example.com" {
					t.Errorf("expected created user 3, got %+v", got)
				}
			},
		},
		{
			name:       "create invalid email",
			req:        request{method: "POST", uri: "/api/v1/user/", body: `{"email":"nope"}`},
			wantStatus: http.StatusUnprocessableEntity,
			wantText:   repository.TextCodeValidationFailed,
		},
		{
			name:       "create empty body",
			req:        request{method: "POST", uri: "/api/v1/user/"},
			wantStatus: http.StatusUnprocessableEntity,
			wantText:   repository.TextCodeValidationFailed,
		},
		{
			name:       "create malformed body",
			req:        request{method: "POST", uri: "/api/v1/user/", body: `{"email":`},
			wantStatus: http.StatusUnprocessableEntity,
			wantText:   repository.TextCodeValidationFailed,
		},
		{
			name:       "update",
			req:        request{method: "PUT", uri: "/api/v1/user/2", body: `{"email":"z@example.com"}`},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, rctx *fasthttp.RequestCtx) {
				if got := decode[users.User](t, rctx); got.Email != "z@example.com" {
					t.Errorf("expected updated email, got %+v", got)
				}
			},
		},
		{
			name:       "update empty object",
			req:        request{method: "PUT", uri: "/api/v1/user/2", body: `{}`},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, rctx *fasthttp.RequestCtx) {
				if got := decode[users.User](t, rctx); got.Email != "b@example.com" {
					t.Errorf("expected unchanged email, got %+v", got)
				}
			},
		},
		{
			name:       "update missing",
			req:        request{method: "PUT", uri: "/api/v1/user/99", body: `{"email":"z@example.com"}`},
			wantStatus: http.StatusNotFound,
			wantText:   repository.TextCodeNotFound,
		},
		{
			name:       "delete",
			req:        request{method: "DELETE", uri: "/api/v1/user/1"},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, rctx *fasthttp.RequestCtx) {
				if got := decode[users.User](t, rctx); got.ID != 1 {
					t.Errorf("expected the deleted user, got %+v", got)
				}
			},
		},
		{
			name:       "delete missing",
			req:        request{method: "DELETE", uri: "/api/v1/user/99"},
			wantStatus: http.StatusNotFound,
			wantText:   repository.TextCodeNotFound,
		},
		{
			name:       "unknown route",
			req:        request{method: "GET", uri: "/api/v1/nope"},
			wantStatus: http.StatusNotFound,
			wantText:   TextCodeRouteNotFound,
		},
		{
			name:       "method not allowed",
			req:        request{method: "PATCH", uri: "/api/v1/user/1"},
			wantStatus: http.StatusMethodNotAllowed,
			wantText:   TextCodeMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(newFakeUsers(seed...))
			rctx := do(api.Handler(), tt.req)

			if got := rctx.Response.StatusCode(); got != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, got, rctx.Response.Body())
			}
			if ct := string(rctx.Response.Header.ContentType()); ct != "application/json" {
				t.Errorf("expected JSON content type, got %s", ct)
			}
			if tt.wantText != "" {
				body := decode[errorBody](t, rctx)
				if body.Error.TextCode != tt.wantText {
					t.Errorf("expected text code %s, got %s", tt.wantText, body.Error.TextCode)
				}
				if body.Error.Code != tt.wantStatus {
					t.Errorf("expected body code %d, got %d", tt.wantStatus, body.Error.Code)
				}
			}
			if tt.check != nil {
				tt.check(t, rctx)
			}
		})
	}
}

func TestListDefaults(t *testing.T) {
	svc := newFakeUsers()
	api := newTestAPI(svc)

	rctx := do(api.Handler(), request{method: "GET", uri: "/api/v1/user/"})
	if rctx.Response.StatusCode() != http.StatusOK {
		t.Fatalf("expected 200, got %d", rctx.Response.StatusCode())
	}
	if string(rctx.Response.Body()) != "[]" {
		t.Errorf("expected empty JSON array, got %s", rctx.Response.Body())
	}
	if svc.lastSkip != DefaultSkip || svc.lastLimit != DefaultLimit {
		t.Errorf("expected defaults %d/%d, got %d/%d", DefaultSkip, DefaultLimit, svc.lastSkip, svc.lastLimit)
	}
}

func TestInvalidInputNeverReachesService(t *testing.T) {
	svc := newFakeUsers()
	api := newTestAPI(svc)

	do(api.Handler(), request{method: "POST", uri: "/api/v1/user/", body: `{"email":"nope"}`})
	do(api.Handler(), request{method: "GET", uri: "/api/v1/user/x"})

	if calls := svc.getCalls(); len(calls) != 0 {
		t.Errorf("expected no service calls, got %v", calls)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantText   string
	}{
		{name: "cache unavailable", err: cache.Unavailable(errors.New("refused"), "invalidate"), wantStatus: http.StatusServiceUnavailable, wantText: cache.TextCodeCacheUnavailable},
		{name: "plain error", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantText: "INTERNAL_ERROR"},
		{name: "deadline", err: context.DeadlineExceeded, wantStatus: http.StatusServiceUnavailable, wantText: TextCodeRequestTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeUsers()
			svc.err = tt.err
			api := newTestAPI(svc)

			rctx := do(api.Handler(), request{method: "GET", uri: "/api/v1/user/"})
			if got := rctx.Response.StatusCode(); got != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, got)
			}

			body := decode[errorBody](t, rctx)
			if body.Error.TextCode != tt.wantText {
				t.Errorf("expected %s, got %s", tt.wantText, body.Error.TextCode)
			}
			if body.Error.Source != "" {
				t.Errorf("expected source hidden outside debug, got %q", body.Error.Source)
			}
		})
	}
}

func TestDebugExposesSource(t *testing.T) {
	svc := newFakeUsers()
	svc.err = errors.New("pq: relation users does not exist")
	api := newTestAPI(svc, WithDebug(true))

	rctx := do(api.Handler(), request{method: "GET", uri: "/api/v1/user/"})
	body := decode[errorBody](t, rctx)
	if !strings.Contains(body.Error.Source, "relation users") {
		t.Errorf("expected source in debug mode, got %q", body.Error.Source)
	}
}

func TestRequestIDs(t *testing.T) {
	api := newTestAPI(newFakeUsers())

	rctx := do(api.Handler(), request{method: "GET", uri: "/api/v1/user/9"})
	generated := string(rctx.Response.Header.Peek(HeaderRequestID))
	if generated == "" {
		t.Fatal("expected a generated request id")
	}
	if body := decode[errorBody](t, rctx); body.Error.RequestID != generated {
		t.Errorf("expected error body to carry %s, got %s", generated, body.Error.RequestID)
	}

	rctx = do(api.Handler(), request{
		method:  "GET",
		uri:     "/api/v1/user/",
		headers: map[string]string{HeaderRequestID: "req-123"},
	})
	if got := string(rctx.Response.Header.Peek(HeaderRequestID)); got != "req-123" {
		t.Errorf("expected incoming id to be echoed, got %s", got)
	}
}

func TestRecover(t *testing.T) {
	api := NewAPI()
	api.Route(http.MethodGet, "/panic", "panic", func(context.Context, *fasthttp.RequestCtx) error {
		panic("kaboom")
	})

	rctx := do(api.Handler(), request{method: "GET", uri: "/panic"})
	if rctx.Response.StatusCode() != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rctx.Response.StatusCode())
	}
	if body := decode[errorBody](t, rctx); body.Error.TextCode != "INTERNAL_ERROR" {
		t.Errorf("expected INTERNAL_ERROR, got %s", body.Error.TextCode)
	}
}

func TestRequestTimeout(t *testing.T) {
	api := NewAPI(WithRequestTimeout(10 * time.Millisecond))
	api.Route(http.MethodGet, "/slow", "slow", func(ctx context.Context, _ *fasthttp.RequestCtx) error {
		<-ctx.Done()
		return ctx.Err()
	})

	rctx := do(api.Handler(), request{method: "GET", uri: "/slow"})
	if rctx.Response.StatusCode() != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rctx.Response.StatusCode())
	}
}

func TestHealthRoutes(t *testing.T) {
	tests := []struct {
		name       string
		cacheErr   error
		uri        string
		wantStatus int
		wantBody   string
	}{
		{name: "alive", uri: "/api/v1/health/_alive", wantStatus: http.StatusOK, wantBody: `"Service is alive."`},
		{name: "alive with cache down", cacheErr: errors.New("down"), uri: "/api/v1/health/_alive", wantStatus: http.StatusOK, wantBody: `"Service is alive."`},
		{name: "ready", uri: "/api/v1/health/_health", wantStatus: http.StatusOK, wantBody: `"Service is ready."`},
		{name: "not ready", cacheErr: errors.New("down"), uri: "/api/v1/health/_health", wantStatus: http.StatusInternalServerError, wantBody: `"Service is not ready."`},
		{name: "details", uri: "/api/v1/health/health-details", wantStatus: http.StatusOK, wantBody: `Redis connection OK.`},
		{name: "details failing", cacheErr: errors.New("down"), uri: "/api/v1/health/health-details", wantStatus: http.StatusInternalServerError, wantBody: `Redis connection failed.`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pinger := health.PingerFunc(func(context.Context) error { return tt.cacheErr })
			api := NewAPI()
			api.RegisterHealth("/api/v1", health.NewChecker(time.Second, nil, health.CacheCheck(pinger)))

			rctx := do(api.Handler(), request{method: "GET", uri: tt.uri})
			if got := rctx.Response.StatusCode(); got != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, got)
			}
			if !strings.Contains(string(rctx.Response.Body()), tt.wantBody) {
				t.Errorf("expected body to contain %s, got %s", tt.wantBody, rctx.Response.Body())
			}
		})
	}
}

func TestMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	api := NewAPI(WithMetrics(NewHTTPMetrics(reg)))
	NewUserHandlers(newFakeUsers()).Register(api, "/api/v1")
	api.RegisterMetrics("/metrics", reg)

	h := api.Handler()
	do(h, request{method: "GET", uri: "/api/v1/user/"})

	rctx := do(h, request{method: "GET", uri: "/metrics"})
	if rctx.Response.StatusCode() != http.StatusOK {
		t.Fatalf("expected 200, got %d", rctx.Response.StatusCode())
	}
	body := string(rctx.Response.Body())
	if !strings.Contains(body, `http_requests_total{method="GET",route="user_list",status="200"} 1`) {
		t.Errorf("expected request counter in exposition, got:\n%s", body)
	}
}
