package tokendb_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evtnetwork/tokendb"
	"github.com/evtnetwork/tokendb/engine"
)

func newMemDB(t *testing.T) *tokendb.DB {
	t.Helper()
	db, err := tokendb.Open(tokendb.Config{Profile: engine.ProfileMemory, CacheSizeMiB: 8})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	return db
}

// A key added inside a savepoint vanishes when that savepoint rolls back.
func TestRollbackRemovesAddedKey(t *testing.T) {
	db := newMemDB(t)
	domain := tokendb.NewName128("d1")

	require.NoError(t, db.PushSavepoint(1))
	require.NoError(t, db.PutToken(tokendb.TypeDomain, nil, domain, false, []byte("v1")))
	require.NoError(t, db.RollbackToLatestSavepoint())

	ok, err := db.ExistsToken(tokendb.TypeDomain, nil, domain)
	require.NoError(t, err)
	require.False(t, ok)
}

// Updating an existing key inside a savepoint and rolling back restores
// the pre-savepoint value.
func TestUpdateRollbackRestoresPriorValue(t *testing.T) {
	db := newMemDB(t)
	domain := tokendb.NewName128("d1")

	require.NoError(t, db.PutToken(tokendb.TypeDomain, nil, domain, false, []byte("v1")))
	require.NoError(t, db.PushSavepoint(1))
	require.NoError(t, db.PutToken(tokendb.TypeDomain, nil, domain, true, []byte("v2")))
	require.NoError(t, db.RollbackToLatestSavepoint())

	val, found, err := db.ReadToken(tokendb.TypeDomain, nil, domain, false)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v1"), val)
}

// A single bulk PutTokens records one multi-key action; rollback removes
// every key it wrote.
func TestMultiPutRollback(t *testing.T) {
	db := newMemDB(t)
	domain := tokendb.NewName128("mydomain")
	keys := []tokendb.Name128{
		tokendb.NewName128("t1"),
		tokendb.NewName128("t2"),
		tokendb.NewName128("t3"),
	}
	values := [][]byte{[]byte("a"), []byte("b"), []byte("c")}

	require.NoError(t, db.PushSavepoint(1))
	require.NoError(t, db.PutTokens(tokendb.TypeToken, &domain, keys, false, values))
	require.NoError(t, db.RollbackToLatestSavepoint())

	for _, k := range keys {
		ok, err := db.ExistsToken(tokendb.TypeToken, &domain, k)
		require.NoError(t, err)
		require.False(t, ok)
	}
}

// Squashing the top two savepoints then rolling back undoes both of their
// write sets, and the merged savepoint keeps the lower seq.
func TestSquashThenRollback(t *testing.T) {
	db := newMemDB(t)
	keyA := tokendb.NewName128("a")
	keyB := tokendb.NewName128("b")

	require.NoError(t, db.PushSavepoint(1))
	require.NoError(t, db.PushSavepoint(2))
	require.NoError(t, db.PutToken(tokendb.TypeDomain, nil, keyA, false, []byte("A")))
	require.NoError(t, db.PushSavepoint(3))
	require.NoError(t, db.PutToken(tokendb.TypeDomain, nil, keyB, false, []byte("B")))

	require.NoError(t, db.SquashSavepoints())
	require.Equal(t, 2, db.Depth())

	seq, ok := db.LatestSavepointSeq()
	require.True(t, ok)
	require.Equal(t, int64(2), seq, "squash must keep the lower seq; seq 3 is gone")

	require.NoError(t, db.RollbackToLatestSavepoint())
	require.Equal(t, 1, db.Depth())

	okA, err := db.ExistsToken(tokendb.TypeDomain, nil, keyA)
	require.NoError(t, err)
	require.False(t, okA)

	okB, err := db.ExistsToken(tokendb.TypeDomain, nil, keyB)
	require.NoError(t, err)
	require.False(t, okB)
}

func TestNonMonotonicSeqRejected(t *testing.T) {
	db := newMemDB(t)
	require.NoError(t, db.PushSavepoint(5))
	err := db.PushSavepoint(5)
	require.ErrorIs(t, err, tokendb.ErrSeqNotValid)

	var seqErr *tokendb.SeqNotValidError
	require.ErrorAs(t, err, &seqErr)
	require.Equal(t, int64(5), seqErr.Prev)
	require.Equal(t, int64(5), seqErr.Curr)
}

// A symbol range scan with skip=k returns entries in key order starting at
// the (k+1)-th; a visitor returning false stops the scan immediately.
func TestAssetRangeScanSkipAndEarlyStop(t *testing.T) {
	db := newMemDB(t)
	sym := tokendb.NewSymbol(4, 42)

	var addrs []tokendb.Address
	for i := 0; i < 10; i++ {
		raw := make([]byte, 33)
		raw[32] = byte(i)
		addr, ok := tokendb.NewAddress(raw)
		require.True(t, ok)
		addrs = append(addrs, addr)
		require.NoError(t, db.PutAsset(sym, addr, []byte{byte(i)}))
	}

	var seen []tokendb.Address
	n, err := db.ReadAssetsRange(sym, 3, func(addr tokendb.Address, value []byte) bool {
		seen = append(seen, addr)
		return true
	})
	require.NoError(t, err)
	require.Equal(t, 7, n)
	require.Len(t, seen, 7)
	require.Equal(t, addrs[3], seen[0])

	calls := 0
	n, err = db.ReadAssetsRange(sym, 0, func(addr tokendb.Address, value []byte) bool {
		calls++
		return calls < 2
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, 2, calls)
}

func TestPopBackCommitsWithoutRollback(t *testing.T) {
	db := newMemDB(t)
	domain := tokendb.NewName128("d1")

	require.NoError(t, db.PushSavepoint(1))
	require.NoError(t, db.PutToken(tokendb.TypeDomain, nil, domain, false, []byte("v1")))
	require.NoError(t, db.PopSavepoint())
	require.Equal(t, 0, db.Depth())

	val, found, err := db.ReadToken(tokendb.TypeDomain, nil, domain, false)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v1"), val)
}

func TestPopUntilDropsOlderSavepoints(t *testing.T) {
	db := newMemDB(t)
	require.NoError(t, db.PushSavepoint(1))
	require.NoError(t, db.PushSavepoint(2))
	require.NoError(t, db.PushSavepoint(3))

	db.PopSavepointsUntil(3)
	require.Equal(t, 1, db.Depth())

	seq, ok := db.LatestSavepointSeq()
	require.True(t, ok)
	require.Equal(t, int64(3), seq)
}

func TestRollbackOnEmptyStackFails(t *testing.T) {
	db := newMemDB(t)
	err := db.RollbackToLatestSavepoint()
	require.ErrorIs(t, err, tokendb.ErrNoSavepoint)
}

func TestSquashRequiresTwoSavepoints(t *testing.T) {
	db := newMemDB(t)
	require.ErrorIs(t, db.SquashSavepoints(), tokendb.ErrSquash)

	require.NoError(t, db.PushSavepoint(1))
	require.ErrorIs(t, db.SquashSavepoints(), tokendb.ErrSquash)
}

func TestReadTokenNoThrowVsError(t *testing.T) {
	db := newMemDB(t)
	domain := tokendb.NewName128("missing")

	_, found, err := db.ReadToken(tokendb.TypeDomain, nil, domain, true)
	require.NoError(t, err)
	require.False(t, found)

	_, _, err = db.ReadToken(tokendb.TypeDomain, nil, domain, false)
	require.ErrorIs(t, err, tokendb.ErrKeyNotFound)
}

func TestPutTokenRejectsAssetType(t *testing.T) {
	db := newMemDB(t)
	err := db.PutToken(tokendb.TypeAsset, nil, tokendb.NewName128("x"), false, []byte("v"))
	require.ErrorIs(t, err, tokendb.ErrPrecondition)
}

func TestPutTokenRequiresDomainForTokenType(t *testing.T) {
	db := newMemDB(t)
	err := db.PutToken(tokendb.TypeToken, nil, tokendb.NewName128("x"), false, []byte("v"))
	require.ErrorIs(t, err, tokendb.ErrPrecondition)
}

func TestExistsAnyAsset(t *testing.T) {
	db := newMemDB(t)
	sym := tokendb.NewSymbol(0, 1)
	raw := make([]byte, 33)
	raw[0] = 7
	addr, ok := tokendb.NewAddress(raw)
	require.True(t, ok)

	found, err := db.ExistsAnyAsset(addr)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, db.PutAsset(sym, addr, []byte("bal")))
	found, err = db.ExistsAnyAsset(addr)
	require.NoError(t, err)
	require.True(t, found)
}

// Nested rollback: push(s1); push(s2); rollback at s2 leaves s1 unaffected.
func TestNestedSavepointRollbackIsolation(t *testing.T) {
	db := newMemDB(t)
	keyOuter := tokendb.NewName128("outer")
	keyInner := tokendb.NewName128("inner")

	require.NoError(t, db.PushSavepoint(1))
	require.NoError(t, db.PutToken(tokendb.TypeDomain, nil, keyOuter, false, []byte("outer-v")))

	require.NoError(t, db.PushSavepoint(2))
	require.NoError(t, db.PutToken(tokendb.TypeDomain, nil, keyInner, false, []byte("inner-v")))
	require.NoError(t, db.RollbackToLatestSavepoint())

	ok, err := db.ExistsToken(tokendb.TypeDomain, nil, keyInner)
	require.NoError(t, err)
	require.False(t, ok)

	val, found, err := db.ReadToken(tokendb.TypeDomain, nil, keyOuter, false)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("outer-v"), val)
}

func TestTokensRangeSkip(t *testing.T) {
	db := newMemDB(t)
	domain := tokendb.NewName128("d1")
	for i := 0; i < 5; i++ {
		key := tokendb.NewName128(string(rune('a' + i)))
		require.NoError(t, db.PutToken(tokendb.TypeToken, &domain, key, false, []byte{byte(i)}))
	}

	var visited int
	n, err := db.ReadTokensRange(tokendb.TypeToken, &domain, 2, func(key tokendb.Name128, value []byte) bool {
		visited++
		return true
	})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, 3, visited)
}
