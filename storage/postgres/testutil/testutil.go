package testutil

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/verilayer/verilayer/log"
	"github.com/verilayer/verilayer/storage/postgres"
	"github.com/verilayer/verilayer/tests"
)

// NewTestClient returns a postgres client used in CI tests. The test is
// skipped when no database is configured.
func NewTestClient(t *testing.T) *postgres.Client {
	connString := tests.SkipUnlessPostgres(t)
	logger, err := log.NewLogger("postgres-test", os.Stdout, log.FmtJSON, log.LevelError)
	require.Nil(t, err, "log.NewLogger")

	client, err := postgres.NewClient(connString, logger)
	require.Nil(t, err, "postgres.NewClient")
	return client
}
