package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/verilayer/verilayer/incentive"
	"github.com/verilayer/verilayer/substrate"
)

var (
	// ErrBadRequest is returned when the provided HTTP request
	// is malformed.
	ErrBadRequest = errors.New("invalid request parameters")
	// ErrMissingCaller is returned when a state-changing request does not
	// name the account it acts for.
	ErrMissingCaller = errors.New("missing or malformed caller")
	// ErrNotFound is returned when handling a request for an item that
	// does not exist.
	ErrNotFound = errors.New("item not found")
)

// ErrStorageError wraps failures of the durable store.
type ErrStorageError struct{ Err error }

func (e ErrStorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage error: %s", e.Err.Error())
	}
	// ErrStorageError shouldn't be constructed with a nil Err, but format it just in case.
	return "storage error: internal bug, incorrectly instantiated error object with nil"
}

func (e ErrStorageError) Unwrap() error {
	return e.Err
}

// HumanReadableError is the JSON body of every error response.
type HumanReadableError struct {
	Msg string `json:"msg"`
}

// HttpCodeForError maps protocol errors onto HTTP status codes.
func HttpCodeForError(err error) int {
	var storageErr ErrStorageError
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, incentive.ErrInvalidIntent),
		errors.Is(err, incentive.ErrInvalidTimeout),
		errors.Is(err, incentive.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, ErrMissingCaller):
		return http.StatusUnauthorized
	case errors.Is(err, incentive.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound),
		errors.Is(err, incentive.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, incentive.ErrInvalidStateTransition),
		errors.Is(err, incentive.ErrAlreadyFinalized),
		errors.Is(err, incentive.ErrAlreadyRevealed),
		errors.Is(err, incentive.ErrAlreadyCommitted),
		errors.Is(err, incentive.ErrNoSuchCommitment),
		errors.Is(err, incentive.ErrTaskNotTerminal),
		errors.Is(err, incentive.ErrNoBondToRelease):
		return http.StatusConflict
	case errors.Is(err, incentive.ErrDeadlineNotReached):
		return http.StatusTooEarly
	case errors.Is(err, incentive.ErrCommitmentMismatch),
		errors.Is(err, incentive.ErrInsufficientBalance),
		errors.Is(err, substrate.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.As(err, &storageErr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ReplyWithError renders err as human-readable JSON to the HTTP response stream w.
func ReplyWithError(w http.ResponseWriter, err error) error {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("x-content-type-options", "nosniff")
	w.WriteHeader(HttpCodeForError(err))

	return json.NewEncoder(w).Encode(HumanReadableError{Msg: err.Error()})
}

// ReplyWithJSON writes v as a JSON response with the given status code.
func ReplyWithJSON(w http.ResponseWriter, code int, v interface{}) error {
	resp, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_, err = w.Write(resp)
	return err
}
