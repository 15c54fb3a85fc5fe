package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/goliatone/go-user-cache/internal/users"
	"github.com/valyala/fasthttp"
)

// Pagination defaults for the list endpoint.
const (
	DefaultSkip  = 0
	DefaultLimit = 100
)

// UserHandlers serves the user resource.
type UserHandlers struct {
	users users.Service
}

// NewUserHandlers creates the user handlers over svc.
func NewUserHandlers(svc users.Service) *UserHandlers {
	return &UserHandlers{users: svc}
}

// Register mounts the user routes under prefix.
func (h *UserHandlers) Register(api *API, prefix string) {
	base := prefix + "/user"
	item := base + "/{id}"

	api.Route(http.MethodGet, base, "user_list", h.List)
	api.Route(http.MethodPost, base, "user_create", h.Create)
	api.Route(http.MethodGet, item, "user_get", h.Get)
	api.Route(http.MethodPut, item, "user_update", h.Update)
	api.Route(http.MethodDelete, item, "user_delete", h.Delete)
}

// List handles GET /user/?skip=&limit=.
func (h *UserHandlers) List(ctx context.Context, rctx *fasthttp.RequestCtx) error {
	skip, err := queryInt(rctx, "skip", DefaultSkip)
	if err != nil {
		return err
	}
	limit, err := queryInt(rctx, "limit", DefaultLimit)
	if err != nil {
		return err
	}

	records, err := h.users.List(ctx, skip, limit)
	if err != nil {
		return err
	}

	writeJSON(rctx, http.StatusOK, records)
	return nil
}

// Create handles POST /user/.
func (h *UserHandlers) Create(ctx context.Context, rctx *fasthttp.RequestCtx) error {
	var in users.CreateUser
	if err := decodeBody(rctx, &in); err != nil {
		return err
	}
	if err := in.Validate(); err != nil {
		return err
	}

	created, err := h.users.Create(ctx, in.Record())
	if err != nil {
		return err
	}

	writeJSON(rctx, http.StatusCreated, created)
	return nil
}

// Get handles GET /user/{id}.
func (h *UserHandlers) Get(ctx context.Context, rctx *fasthttp.RequestCtx) error {
	id, err := pathID(rctx)
	if err != nil {
		return err
	}

	record, err := h.users.Get(ctx, id)
	if err != nil {
		return err
	}

	writeJSON(rctx, http.StatusOK, record)
	return nil
}

// Update handles PUT /user/{id}. Fields missing from the body are left unchanged.
func (h *UserHandlers) Update(ctx context.Context, rctx *fasthttp.RequestCtx) error {
	id, err := pathID(rctx)
	if err != nil {
		return err
	}

	var in users.UpdateUser
	if err := decodeBody(rctx, &in); err != nil {
		return err
	}

	updated, err := h.users.Update(ctx, id, in)
	if err != nil {
		return err
	}

	writeJSON(rctx, http.StatusOK, updated)
	return nil
}

// Delete handles DELETE /user/{id} and returns the removed record.
func (h *UserHandlers) Delete(ctx context.Context, rctx *fasthttp.RequestCtx) error {
	id, err := pathID(rctx)
	if err != nil {
		return err
	}

	deleted, err := h.users.Delete(ctx, id)
	if err != nil {
		return err
	}

	writeJSON(rctx, http.StatusOK, deleted)
	return nil
}

func pathID(rctx *fasthttp.RequestCtx) (int64, error) {
	raw, _ := rctx.UserValue("id").(string)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, validationError("invalid path parameter", "id", "must be an integer")
	}
	return id, nil
}

func queryInt(rctx *fasthttp.RequestCtx, name string, def int) (int, error) {
	raw := rctx.QueryArgs().Peek(name)
	if len(raw) == 0 {
		return def, nil
	}

	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, validationError("invalid query parameter", name, "must be an integer")
	}
	if n < 0 {
		return 0, validationError("invalid query parameter", name, "must be greater than or equal to 0")
	}
	return n, nil
}

func decodeBody(rctx *fasthttp.RequestCtx, v any) error {
	body := rctx.PostBody()
	if len(body) == 0 {
		return validationError("invalid request body", "body", "field required")
	}
	if err := sonic.Unmarshal(body, v); err != nil {
		return validationError("invalid request body", "body", "malformed JSON")
	}
	return nil
}
