package common

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/verilayer/verilayer/incentive"
)

// TestPaginationWithNoParams tests if the default pagination
// values are set correctly in the default case.
func TestPaginationWithNoParams(t *testing.T) {
	r, err := http.NewRequestWithContext(context.Background(), "GET", "https://fake-api.com/v1/tasks", nil)
	require.Nil(t, err)

	p, err := NewPagination(r)
	require.Nil(t, err)

	require.Equal(t, DefaultLimit, p.Limit)
	require.Equal(t, DefaultOffset, p.Offset)
}

// TestPaginationWithValidParams tests if the pagination values
// are set correctly when providing query params.
func TestPaginationWithValidParams(t *testing.T) {
	limit := uint64(10)
	offset := uint64(20)

	r, err := http.NewRequestWithContext(context.Background(), "GET", fmt.Sprintf("https://fake-api.com/v1/tasks?limit=%d&offset=%d", limit, offset), nil)
	require.Nil(t, err)

	p, err := NewPagination(r)
	require.Nil(t, err)

	require.Equal(t, limit, p.Limit)
	require.Equal(t, offset, p.Offset)
}

// TestPaginationWithInvalidParams tests that malformed query params
// are rejected as bad requests.
func TestPaginationWithInvalidParams(t *testing.T) {
	for _, query := range []string{"limit=nonsense", "offset=-1"} {
		r, err := http.NewRequestWithContext(context.Background(), "GET", "https://fake-api.com/v1/tasks?"+query, nil)
		require.Nil(t, err)

		_, err = NewPagination(r)
		require.ErrorIs(t, err, ErrBadRequest, query)
	}
}

// TestPaginationWithTooHighLimit tests that the limit is clamped.
func TestPaginationWithTooHighLimit(t *testing.T) {
	limit := uint64(100000000000)
	offset := uint64(20)

	r, err := http.NewRequestWithContext(context.Background(), "GET", fmt.Sprintf("https://fake-api.com/v1/tasks?limit=%d&offset=%d", limit, offset), nil)
	require.Nil(t, err)

	p, err := NewPagination(r)
	require.Nil(t, err)

	require.Equal(t, MaximumLimit, p.Limit)
	require.Equal(t, offset, p.Offset)
}

func TestHttpCodeForError(t *testing.T) {
	for err, code := range map[error]int{
		ErrBadRequest:                         http.StatusBadRequest,
		ErrMissingCaller:                      http.StatusUnauthorized,
		incentive.ErrNotAuthorized:            http.StatusForbidden,
		incentive.ErrTaskNotFound:             http.StatusNotFound,
		incentive.ErrInvalidStateTransition:   http.StatusConflict,
		incentive.ErrAlreadyFinalized:         http.StatusConflict,
		incentive.ErrDeadlineNotReached:       http.StatusTooEarly,
		incentive.ErrCommitmentMismatch:       http.StatusUnprocessableEntity,
		incentive.ErrInsufficientBalance:      http.StatusUnprocessableEntity,
		ErrStorageError{Err: fmt.Errorf("io")}: http.StatusInternalServerError,
	} {
		require.Equal(t, code, HttpCodeForError(fmt.Errorf("wrapped: %w", err)), err.Error())
	}
}

func TestReplyWithError(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, ReplyWithError(w, incentive.ErrTaskNotFound))
	require.Equal(t, http.StatusNotFound, w.Code)
	require.JSONEq(t, `{"msg":"task not found"}`, w.Body.String())
}
