package tokendb

import (
	"github.com/ethereum/go-ethereum/rlp"
)

// EncodeValue RLP-encodes an arbitrary payload for storage. The facade
// itself is payload-agnostic; this helper exists so callers building on top
// of it (and the checkpoint log, which stores the same payload bytes
// verbatim) share one canonical encoding.
func EncodeValue(v interface{}) ([]byte, error) {
	return rlp.EncodeToBytes(v)
}

// DecodeValue decodes bytes previously produced by EncodeValue into v.
func DecodeValue(b []byte, v interface{}) error {
	return rlp.DecodeBytes(b, v)
}
