// Package postgres implements the event sink backed by PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"

	"github.com/verilayer/verilayer/common"
	"github.com/verilayer/verilayer/log"
	"github.com/verilayer/verilayer/storage"
)

const moduleName = "postgres"

// wipeStatements drop every object the migrations create, plus the
// golang_migrate version table so the next Migrate starts from scratch.
var wipeStatements = []string{
	`DROP TABLE IF EXISTS events CASCADE`,
	`DROP DOMAIN IF EXISTS UINT63 CASCADE`,
	`DROP TABLE IF EXISTS schema_migrations`,
}

// Client is a pooled connection to the event database.
type Client struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

var _ storage.TargetStorage = (*Client)(nil)

// pgxLogger routes pgx trace output into the module logger.
type pgxLogger struct {
	logger *log.Logger
}

// Log implements tracelog.Logger.
func (l *pgxLogger) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]interface{}) {
	args := make([]interface{}, 0, 2*len(data))
	for k, v := range data {
		args = append(args, k, v)
	}
	switch level {
	case tracelog.LogLevelTrace, tracelog.LogLevelDebug:
		l.logger.Debug(msg, args...)
	case tracelog.LogLevelInfo:
		l.logger.Info(msg, args...)
	case tracelog.LogLevelWarn:
		l.logger.Warn(msg, args...)
	default:
		l.logger.Error(msg, append(args, "pgx_level", level.String())...)
	}
}

// NewClient connects to the database at connString.
func NewClient(connString string, l *log.Logger) (*Client, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	logger := l.WithModule(moduleName)

	// Statements are only traced at warn and above; "info" would log each one.
	cfg.ConnConfig.Tracer = &tracelog.TraceLog{
		LogLevel: tracelog.LogLevelWarn,
		Logger:   &pgxLogger{logger: logger.With("db", cfg.ConnConfig.Database)},
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	return &Client{pool: pool, logger: logger}, nil
}

// SendBatch runs every query of batch in one transaction and a single
// roundtrip. Either all of them take effect or none does.
func (c *Client) SendBatch(ctx context.Context, batch *storage.QueryBatch) error {
	pgxBatch := batch.AsPgxBatch()
	return pgx.BeginFunc(ctx, c.pool, func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, &pgxBatch)
		defer common.CloseOrLog(results, c.logger)
		for i, q := range batch.Queries() {
			if _, err := results.Exec(); err != nil {
				return fmt.Errorf("query %d %v: %w", i, q, err)
			}
		}
		return nil
	})
}

// Query submits a read query.
func (c *Client) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		c.logger.Error("failed to query db",
			"error", err,
			"query_cmd", sql,
			"query_args", args,
		)
		return nil, err
	}
	return rows, nil
}

// QueryRow submits a read query for a single row.
func (c *Client) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return c.pool.QueryRow(ctx, sql, args...)
}

// Close implements storage.TargetStorage.
func (c *Client) Close() {
	c.pool.Close()
}

// Name implements storage.TargetStorage.
func (c *Client) Name() string {
	return moduleName
}

// Wipe drops the event schema. Run Migrate afterwards to recreate it.
func (c *Client) Wipe(ctx context.Context) error {
	for _, stmt := range wipeStatements {
		c.logger.Info("wiping event database", "statement", stmt)
		if _, err := c.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("wipe: %w", err)
		}
	}
	return nil
}
