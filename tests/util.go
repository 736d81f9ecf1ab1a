// Package tests holds helpers shared by tests that need external services.
package tests

import (
	"os"
	"testing"
)

// ConnStringEnv names the environment variable with the PostgreSQL
// connection string used by database tests.
const ConnStringEnv = "CI_TEST_CONN_STRING"

// SkipIfShort skips tests that need external services in -short mode.
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping test in short mode")
	}
}

// SkipUnlessPostgres skips the test when no database is configured.
func SkipUnlessPostgres(t *testing.T) string {
	t.Helper()
	SkipIfShort(t)
	connString := os.Getenv(ConnStringEnv)
	if connString == "" {
		t.Skipf("skipping test: %s is not set", ConnStringEnv)
	}
	return connString
}
