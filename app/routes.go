package app

import (
	"context"
	"errors"

	"github.com/freekieb7/jet/http"
	"github.com/freekieb7/jet/validation"
)

const (
	defaultListLimit = 20
	itemPattern      = `^/items/([0-9]+)$`
)

type versionResponse struct {
	Version string `json:"version"`
}

// Routes returns the deployment's router. Item routes are only registered
// when a store is given.
func Routes(items *ItemStore, debug bool) *http.Router {
	router := http.NewRouter()

	version := versionResponse{Version: VersionString(debug)}
	router.GET("/version", http.NoBody(func(ctx context.Context, req *http.Request) (http.Response, error) {
		return http.JSON(version), nil
	}))

	if items == nil {
		return router
	}

	h := itemHandlers{items: items}
	router.GET("/items", http.NoBody(h.list))
	router.POST("/items", http.JSONBody(h.create))
	router.GET(itemPattern, http.NoBody(h.get))
	router.DELETE(itemPattern, http.NoBody(h.delete))

	return router
}

type itemHandlers struct {
	items *ItemStore
}

var listRules = map[string][]string{
	"limit": {"integer", "min:1", "max:100"},
}

func (h itemHandlers) list(ctx context.Context, req *http.Request) (http.Response, error) {
	query := map[string]any{}
	if limit := req.Query("limit"); limit != "" {
		query["limit"] = limit
	}
	if violations := validation.ValidateMap(query, listRules); !violations.IsEmpty() {
		return http.Response{}, http.BadRequest(violations.Error())
	}

	items, err := h.items.List(ctx, req.QueryInt("limit", defaultListLimit))
	if err != nil {
		return http.Response{}, err
	}
	return http.JSON(items), nil
}

func (h itemHandlers) create(ctx context.Context, req *http.Request, body NewItem) (http.Response, error) {
	item, err := h.items.Create(ctx, body)
	if err != nil {
		return http.Response{}, err
	}
	return http.JSON(item).WithStatus(http.StatusCreated), nil
}

func (h itemHandlers) get(ctx context.Context, req *http.Request) (http.Response, error) {
	item, err := h.items.Get(ctx, req.MatchInt64(1))
	if errors.Is(err, ErrItemNotFound) {
		return http.Response{}, http.NotFound("item not found")
	}
	if err != nil {
		return http.Response{}, err
	}
	return http.JSON(item), nil
}

func (h itemHandlers) delete(ctx context.Context, req *http.Request) (http.Response, error) {
	err := h.items.Delete(ctx, req.MatchInt64(1))
	if errors.Is(err, ErrItemNotFound) {
		return http.Response{}, http.NotFound("item not found")
	}
	if err != nil {
		return http.Response{}, err
	}
	return http.Empty(http.StatusNoContent), nil
}
