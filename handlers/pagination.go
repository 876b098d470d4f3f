package handlers

import (
	"net/http"
	"strconv"
)

const (
	DefaultLeadLimit = 50
	MaxLimit         = 200
)

type PaginationParams struct {
	Limit  int
	Offset int
}

// ParsePagination reads limit/offset query params, clamping limit to
// MaxLimit.
func ParsePagination(r *http.Request, defaultLimit int) PaginationParams {
	limit := defaultLimit
	offset := 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > MaxLimit {
				limit = MaxLimit
			}
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return PaginationParams{Limit: limit, Offset: offset}
}
