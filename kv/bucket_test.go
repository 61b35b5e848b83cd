package kv_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evtnetwork/tokendb/engine"
	"github.com/evtnetwork/tokendb/kv"
)

func newStore(t *testing.T) kv.Store {
	t.Helper()
	eng, err := engine.Open("", 8, engine.ProfileMemory)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng
}

func TestBucketIsolatesKeyspaces(t *testing.T) {
	src := newStore(t)
	a := kv.Bucket("a").NewStore(src)
	b := kv.Bucket("b").NewStore(src)

	require.NoError(t, a.Put([]byte("k"), []byte("a-value")))
	require.NoError(t, b.Put([]byte("k"), []byte("b-value")))

	av, err := a.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "a-value", string(av))

	bv, err := b.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "b-value", string(bv))
}

func TestBucketIterateStripsPrefix(t *testing.T) {
	src := newStore(t)
	b := kv.Bucket("t").NewStore(src)

	require.NoError(t, b.Put([]byte("k1"), []byte("v1")))
	require.NoError(t, b.Put([]byte("k2"), []byte("v2")))

	it := b.Iterate(kv.Range{})
	defer it.Release()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.NoError(t, it.Error())
	require.Equal(t, []string{"k1", "k2"}, keys)
}

func TestBucketIterateDoesNotLeakIntoOtherBucket(t *testing.T) {
	src := newStore(t)
	a := kv.Bucket("a").NewStore(src)
	b := kv.Bucket("b").NewStore(src)

	require.NoError(t, a.Put([]byte("1"), []byte("a1")))
	require.NoError(t, b.Put([]byte("1"), []byte("b1")))

	it := a.Iterate(kv.Range{})
	defer it.Release()

	count := 0
	for it.Next() {
		count++
	}
	require.NoError(t, it.Error())
	require.Equal(t, 1, count)
}

func TestBucketSnapshotScopedToBucket(t *testing.T) {
	src := newStore(t)
	b := kv.Bucket("t").NewStore(src)

	require.NoError(t, b.Put([]byte("k"), []byte("v1")))
	snap := b.Snapshot()
	defer snap.Release()

	require.NoError(t, b.Put([]byte("k"), []byte("v2")))

	val, err := snap.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(val))
}

func TestBucketBulkWritesThroughPrefix(t *testing.T) {
	src := newStore(t)
	b := kv.Bucket("t").NewStore(src)

	bulk := b.Bulk()
	require.NoError(t, bulk.Put([]byte("k"), []byte("v")))
	require.NoError(t, bulk.Write())

	val, err := b.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "v", string(val))
}
