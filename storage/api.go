// Package storage defines the interfaces shared by the SQL storage backends.
package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Query is a single SQL command with its arguments.
type Query struct {
	Cmd  string
	Args []interface{}
}

// QueryBatch represents a batch of queries to be executed atomically.
type QueryBatch struct {
	items []*Query
}

// Queue adds a query to the batch.
func (b *QueryBatch) Queue(cmd string, args ...interface{}) {
	b.items = append(b.items, &Query{Cmd: cmd, Args: args})
}

// Extend appends all queries of qb to the batch.
func (b *QueryBatch) Extend(qb *QueryBatch) {
	b.items = append(b.items, qb.items...)
}

// Len returns the number of queued queries.
func (b *QueryBatch) Len() int {
	return len(b.items)
}

// Queries returns the queued queries.
func (b *QueryBatch) Queries() []*Query {
	return b.items
}

// AsPgxBatch converts the batch for submission in a single roundtrip.
func (b *QueryBatch) AsPgxBatch() pgx.Batch {
	var batch pgx.Batch
	for _, q := range b.items {
		batch.Queue(q.Cmd, q.Args...)
	}
	return batch
}

// QueryResults represents the results from a read query.
type QueryResults = pgx.Rows

// QueryResult represents the result from a read query.
type QueryResult = pgx.Row

// TargetStorage defines an interface for reading and writing event data.
type TargetStorage interface {
	// SendBatch sends a batch of queries to be applied to target storage.
	SendBatch(ctx context.Context, batch *QueryBatch) error

	// Query submits a query to fetch data from target storage.
	Query(ctx context.Context, sql string, args ...interface{}) (QueryResults, error)

	// QueryRow submits a query to fetch a single row of data from target storage.
	QueryRow(ctx context.Context, sql string, args ...interface{}) QueryResult

	// Close shuts down the target storage.
	Close()

	// Name returns the name of the target storage.
	Name() string
}
