// Package common contains request and response tooling shared by API handlers.
package common

import (
	"fmt"
	"net/http"
	"strconv"
)

const (
	LimitKey  = "limit"
	OffsetKey = "offset"

	DefaultLimit  = uint64(100)
	DefaultOffset = uint64(0)

	MaximumLimit = uint64(1000)
)

// Pagination is used to define parameters for pagination.
type Pagination struct {
	Limit  uint64
	Offset uint64
}

// NewPagination extracts pagination parameters from an http request.
func NewPagination(r *http.Request) (Pagination, error) {
	values := r.URL.Query()

	limit := DefaultLimit
	if v := values.Get(LimitKey); v != "" {
		var err error
		if limit, err = strconv.ParseUint(v, 10, 64); err != nil {
			return Pagination{}, fmt.Errorf("%w: limit: %s", ErrBadRequest, err)
		}
	}
	if limit > MaximumLimit {
		limit = MaximumLimit
	}

	offset := DefaultOffset
	if v := values.Get(OffsetKey); v != "" {
		var err error
		if offset, err = strconv.ParseUint(v, 10, 64); err != nil {
			return Pagination{}, fmt.Errorf("%w: offset: %s", ErrBadRequest, err)
		}
	}

	return Pagination{
		Limit:  limit,
		Offset: offset,
	}, nil
}
