package storage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/verilayer/verilayer/storage"
)

func TestQueryBatch(t *testing.T) {
	var batch storage.QueryBatch
	batch.Queue("INSERT INTO events (seq) VALUES ($1)", uint64(1))
	batch.Queue("INSERT INTO events (seq) VALUES ($1)", uint64(2))

	var more storage.QueryBatch
	more.Queue("DELETE FROM events WHERE seq < $1", uint64(2))
	batch.Extend(&more)

	require.Equal(t, 3, batch.Len())
	require.Equal(t, "DELETE FROM events WHERE seq < $1", batch.Queries()[2].Cmd)
	require.Equal(t, []interface{}{uint64(2)}, batch.Queries()[1].Args)

	pgxBatch := batch.AsPgxBatch()
	require.Equal(t, 3, pgxBatch.Len())
	require.Equal(t, batch.Queries()[0].Cmd, pgxBatch.QueuedQueries[0].SQL)
}
