// Package common contains small types and helpers shared across packages.
package common

import (
	"context"

	ethCommon "github.com/ethereum/go-ethereum/common"
)

// Key used to set values in a web request context. API uses this to set
// values, handlers use this to retrieve values.
type ContextKey string

const (
	// RequestIDContextKey is used to set a request id for tracing
	// in a request context.
	RequestIDContextKey ContextKey = "request_id"
	// CallerContextKey is used to set the identity on whose behalf
	// a request acts.
	CallerContextKey ContextKey = "caller"
)

// CallerFromContext returns the caller identity stored in ctx, if any.
func CallerFromContext(ctx context.Context) (ethCommon.Address, bool) {
	caller, ok := ctx.Value(CallerContextKey).(ethCommon.Address)
	return caller, ok
}

// WithCaller returns a copy of ctx carrying the caller identity.
func WithCaller(ctx context.Context, caller ethCommon.Address) context.Context {
	return context.WithValue(ctx, CallerContextKey, caller)
}

// Height is a block height of the ledger substrate.
type Height = uint64
