package tokendb_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evtnetwork/tokendb"
)

func TestName128RoundTrip(t *testing.T) {
	n := tokendb.NewName128("hello")
	require.Equal(t, "hello", n.String())

	// Longer than 16 bytes truncates.
	long := tokendb.NewName128("this-name-is-way-too-long-for-name128")
	require.Len(t, long.String(), 16)
}

func TestTokenKeyEncodeDecodeRoundTrip(t *testing.T) {
	prefix := tokendb.NewName128("domain1")
	key := tokendb.NewName128("token1")

	tk := tokendb.EncodeTokenKey(prefix, key)
	require.Equal(t, prefix, tk.Prefix())
	require.Equal(t, key, tk.Key())

	decoded, ok := tokendb.DecodeTokenKey(tk.Bytes())
	require.True(t, ok)
	require.Equal(t, tk, decoded)

	_, ok = tokendb.DecodeTokenKey([]byte("too-short"))
	require.False(t, ok)
}

func TestSymbolPrecisionAndID(t *testing.T) {
	sym := tokendb.NewSymbol(4, 12345)
	require.Equal(t, uint8(4), sym.Precision())
	require.Equal(t, uint64(12345), sym.ID())
}

func TestAssetKeyEncodeDecodeRoundTrip(t *testing.T) {
	sym := tokendb.NewSymbol(2, 99)
	raw := make([]byte, 33)
	raw[0] = 0xAB
	addr, ok := tokendb.NewAddress(raw)
	require.True(t, ok)

	ak := tokendb.EncodeAssetKey(sym, addr)
	require.Equal(t, sym, ak.Symbol())
	require.Equal(t, addr, ak.Address())

	decoded, ok := tokendb.DecodeAssetKey(ak.Bytes())
	require.True(t, ok)
	require.Equal(t, ak, decoded)

	_, ok = tokendb.NewAddress([]byte{1, 2, 3})
	require.False(t, ok)
}

func TestCanonicalPrefixTable(t *testing.T) {
	p, ok := tokendb.CanonicalPrefix(tokendb.TypeDomain)
	require.True(t, ok)
	require.Equal(t, ".domain", p.String())

	_, ok = tokendb.CanonicalPrefix(tokendb.TypeToken)
	require.False(t, ok, "token type has a caller-supplied domain, not a canonical prefix")

	_, ok = tokendb.CanonicalPrefix(tokendb.TypeAsset)
	require.False(t, ok, "asset type does not use the name128 prefix scheme")
}
