package engine_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evtnetwork/tokendb/engine"
	"github.com/evtnetwork/tokendb/kv"
)

func TestMemoryProfileOpensWithoutPath(t *testing.T) {
	eng, err := engine.Open("", 8, engine.ProfileMemory)
	require.NoError(t, err)
	defer eng.Close()

	require.NoError(t, eng.Put([]byte("k"), []byte("v")))
	val, err := eng.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), val)
}

func TestGetMissingKeyIsNotFound(t *testing.T) {
	eng, err := engine.Open("", 8, engine.ProfileMemory)
	require.NoError(t, err)
	defer eng.Close()

	_, err = eng.Get([]byte("missing"))
	require.Error(t, err)
	require.True(t, eng.IsNotFound(err))
}

func TestSnapshotIsolatesFromLaterWrites(t *testing.T) {
	eng, err := engine.Open("", 8, engine.ProfileMemory)
	require.NoError(t, err)
	defer eng.Close()

	require.NoError(t, eng.Put([]byte("k"), []byte("v1")))
	snap := eng.Snapshot()
	defer snap.Release()

	require.NoError(t, eng.Put([]byte("k"), []byte("v2")))

	val, err := snap.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), val)

	live, err := eng.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), live)
}

func TestSyncBulkWritesAtomically(t *testing.T) {
	eng, err := engine.Open("", 8, engine.ProfileMemory)
	require.NoError(t, err)
	defer eng.Close()

	b := eng.SyncBulk()
	require.NoError(t, b.Put([]byte("a"), []byte("1")))
	require.NoError(t, b.Put([]byte("b"), []byte("2")))
	require.NoError(t, b.Write())

	for _, kv := range []struct{ k, v string }{{"a", "1"}, {"b", "2"}} {
		val, err := eng.Get([]byte(kv.k))
		require.NoError(t, err)
		require.Equal(t, kv.v, string(val))
	}
}

func TestIteratePrefixRange(t *testing.T) {
	eng, err := engine.Open("", 8, engine.ProfileMemory)
	require.NoError(t, err)
	defer eng.Close()

	require.NoError(t, eng.Put([]byte("a1"), []byte("1")))
	require.NoError(t, eng.Put([]byte("a2"), []byte("2")))
	require.NoError(t, eng.Put([]byte("b1"), []byte("3")))

	it := eng.Iterate(kv.Range{Start: []byte("a"), Limit: []byte("b")})
	defer it.Release()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.NoError(t, it.Error())
	require.Equal(t, []string{"a1", "a2"}, keys)
}
