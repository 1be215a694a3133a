package metalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	dir := t.TempDir()
	l, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestPutRouteAndLookup(t *testing.T) {
	l := openTestLog(t)
	require.NoError(t, l.PutRoute([]byte("edge-1"), "node-a"))

	got, err := l.LookupRoute([]byte("edge-1"))
	require.NoError(t, err)
	assert.Equal(t, "node-a", got)
}

func TestDeleteRoute(t *testing.T) {
	l := openTestLog(t)
	require.NoError(t, l.PutRoute([]byte("edge-1"), "node-a"))
	require.NoError(t, l.DeleteRoute([]byte("edge-1")))

	got, err := l.LookupRoute([]byte("edge-1"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRecordCompletionOrdersNewestFirst(t *testing.T) {
	l := openTestLog(t)
	require.NoError(t, l.RecordCompletion(Completion{JobID: 1, NodeID: "a", Success: true}))
	require.NoError(t, l.RecordCompletion(Completion{JobID: 2, NodeID: "b", Success: true}))
	require.NoError(t, l.RecordCompletion(Completion{JobID: 3, NodeID: "c", Success: false}))

	recent, err := l.RecentCompletions(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, uint64(3), recent[0].JobID)
	assert.Equal(t, uint64(2), recent[1].JobID)

	count, err := l.CompletionCount()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
