package tokendb

import "fmt"

// TokenType identifies the logical entity kind a key belongs to. It doubles
// as the discriminant recorded in savepoint actions, which is why TypeAsset
// is a member even though assets are never reached through
// PutToken/ReadToken.
type TokenType uint8

const (
	TypeDomain TokenType = iota
	TypeToken
	TypeGroup
	TypeFungible
	TypeSuspend
	TypeLock
	TypeEvtLink
	TypeProdVote
	TypeAsset
)

func (t TokenType) String() string {
	switch t {
	case TypeDomain:
		return "domain"
	case TypeToken:
		return "token"
	case TypeGroup:
		return "group"
	case TypeFungible:
		return "fungible"
	case TypeSuspend:
		return "suspend"
	case TypeLock:
		return "lock"
	case TypeEvtLink:
		return "evtlink"
	case TypeProdVote:
		return "prodvote"
	case TypeAsset:
		return "asset"
	default:
		return fmt.Sprintf("TokenType(%d)", uint8(t))
	}
}

// Op is the mutating action applied to a key. It is the discriminant a
// savepoint uses to decide how to restore the key's prior state on
// rollback.
type Op uint8

const (
	// OpAdd creates a key that did not exist before; rollback deletes it.
	OpAdd Op = iota
	// OpUpdate overwrites a key known to exist already; rollback restores
	// the snapshot value, which MUST be present.
	OpUpdate
	// OpPut is the asset column family's only op: idempotent overwrite.
	// Rollback restores the snapshot value if present, else deletes.
	OpPut
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpUpdate:
		return "update"
	case OpPut:
		return "put"
	default:
		return fmt.Sprintf("Op(%d)", uint8(o))
	}
}

// canonicalPrefixes holds the process-wide constant prefix for every
// non-token, non-asset type. Token keys use the caller-supplied domain as
// their prefix instead; assets don't use the name128 prefix scheme at all.
var canonicalPrefixes = map[TokenType]Name128{
	TypeDomain:   NewName128(".domain"),
	TypeGroup:    NewName128(".group"),
	TypeFungible: NewName128(".fungible"),
	TypeSuspend:  NewName128(".suspend"),
	TypeLock:     NewName128(".lock"),
	TypeEvtLink:  NewName128(".evtlink"),
	TypeProdVote: NewName128(".prodvote"),
}

// CanonicalPrefix returns the compiled-in prefix constant for non-token
// types. ok is false for TypeToken (whose prefix is caller-supplied) and
// TypeAsset (which does not use this key scheme).
func CanonicalPrefix(t TokenType) (prefix Name128, ok bool) {
	p, ok := canonicalPrefixes[t]
	return p, ok
}
