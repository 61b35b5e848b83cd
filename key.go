package tokendb

import (
	"bytes"
	"encoding/binary"
)

// Name128 is a fixed 16-byte name, the unit both the token key's prefix and
// its key component are built from (domain names, token names, group names,
// proposal names, ...). It is deliberately a plain fixed-size array so that
// TokenKey encodes as a flat, comparator-friendly 32-byte string.
type Name128 [16]byte

// NewName128 packs s into a Name128, left-aligned and zero-padded. Names
// longer than 16 bytes are truncated; callers are expected to have already
// validated name length before reaching this layer.
func NewName128(s string) Name128 {
	var n Name128
	copy(n[:], s)
	return n
}

// String returns the name with trailing zero bytes trimmed.
func (n Name128) String() string {
	return string(bytes.TrimRight(n[:], "\x00"))
}

const tokenKeyLen = 32

// TokenKey is the 32-byte on-disk key for the Tokens column family:
// prefix(16) ‖ key(16). For TypeToken, prefix is the caller-supplied domain;
// for every other type it is the type's canonical prefix (types.go).
type TokenKey [tokenKeyLen]byte

// EncodeTokenKey builds the flat on-disk key from a prefix/key pair.
func EncodeTokenKey(prefix, key Name128) TokenKey {
	var k TokenKey
	copy(k[:16], prefix[:])
	copy(k[16:], key[:])
	return k
}

// Prefix returns the prefix half of the key (the domain, for token-type
// keys).
func (k TokenKey) Prefix() Name128 {
	var p Name128
	copy(p[:], k[:16])
	return p
}

// Key returns the key half (the token/group/proposal/... name).
func (k TokenKey) Key() Name128 {
	var n Name128
	copy(n[:], k[16:])
	return n
}

func (k TokenKey) Bytes() []byte { return k[:] }

// DecodeTokenKey reconstructs a TokenKey from its on-disk byte form. It
// returns false if b is not exactly 32 bytes.
func DecodeTokenKey(b []byte) (TokenKey, bool) {
	var k TokenKey
	if len(b) != tokenKeyLen {
		return k, false
	}
	copy(k[:], b)
	return k, true
}

// Symbol packs a fungible asset's precision and identifier into 8 bytes:
// the low byte is the precision, the remaining 7 bytes are the symbol id.
// It is opaque to this package beyond its fixed width and ordering needs.
type Symbol uint64

// NewSymbol builds a Symbol from a precision and a numeric id.
func NewSymbol(precision uint8, id uint64) Symbol {
	return Symbol(id<<8 | uint64(precision))
}

func (s Symbol) Precision() uint8 { return uint8(s) }
func (s Symbol) ID() uint64 { return uint64(s) >> 8 }

const symbolLen = 8

func (s Symbol) encode() [symbolLen]byte {
	var b [symbolLen]byte
	binary.BigEndian.PutUint64(b[:], uint64(s))
	return b
}

func decodeSymbol(b []byte) Symbol {
	return Symbol(binary.BigEndian.Uint64(b))
}

// addressLen is the width of a host-chain address as carried opaquely by
// this package: a compressed secp256k1 public key, the host chain's address
// primitive.
const addressLen = 33

// Address is an opaque, fixed-width host-chain address. This package never
// interprets its bytes beyond using them as a key component.
type Address [addressLen]byte

// NewAddress copies b (which must be addressLen bytes) into an Address.
func NewAddress(b []byte) (Address, bool) {
	var a Address
	if len(b) != addressLen {
		return a, false
	}
	copy(a[:], b)
	return a, true
}

func (a Address) Bytes() []byte { return a[:] }

const assetKeyLen = symbolLen + addressLen

// AssetKey is the on-disk key for the Assets column family: symbol(8)
// followed by address(33). Symbol-first ordering is what makes a scan over
// one symbol's balances a contiguous range instead of a full-table filter.
type AssetKey [assetKeyLen]byte

// EncodeAssetKey builds the flat on-disk key for one (symbol, address)
// balance.
func EncodeAssetKey(sym Symbol, addr Address) AssetKey {
	var k AssetKey
	s := sym.encode()
	copy(k[:symbolLen], s[:])
	copy(k[symbolLen:], addr[:])
	return k
}

func (k AssetKey) Symbol() Symbol { return decodeSymbol(k[:symbolLen]) }

func (k AssetKey) Address() Address {
	var a Address
	copy(a[:], k[symbolLen:])
	return a
}

func (k AssetKey) Bytes() []byte { return k[:] }

// DecodeAssetKey reconstructs an AssetKey from its on-disk byte form.
func DecodeAssetKey(b []byte) (AssetKey, bool) {
	var k AssetKey
	if len(b) != assetKeyLen {
		return k, false
	}
	copy(k[:], b)
	return k, true
}

// SymbolPrefix returns the Range covering every AssetKey sharing sym, for
// range-scanning one symbol's balances in address order.
func SymbolPrefix(sym Symbol) (start, limit [symbolLen]byte) {
	start = sym.encode()
	limit = start
	for i := len(limit) - 1; i >= 0; i-- {
		limit[i]++
		if limit[i] != 0 {
			break
		}
	}
	return start, limit
}
