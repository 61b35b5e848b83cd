package tokendb

import (
	"fmt"
	"sync"

	"github.com/evtnetwork/tokendb/engine"
	"github.com/evtnetwork/tokendb/kv"
)

// action records one mutation so a later rollback can undo it: a type/op
// pair plus a slice of name128 keys sharing that type/op, or (for
// TypeAsset) a single AssetKey. The slice field serves both the single-key
// and the bulk-issue case.
type action struct {
	typ    TokenType
	op     Op
	prefix Name128  // domain (TypeToken) or canonical prefix (others); unused for TypeAsset
	domain *Name128 // set only for TypeToken, for signal/cache-key purposes
	keys   []Name128

	isAsset  bool
	assetKey AssetKey
}

// valueSource answers "what was this key's value before this savepoint was
// opened?". A live savepoint is backed by an engine snapshot; a savepoint
// reloaded from the checkpoint log after a restart is backed by the prior
// values materialized into the log at the time it was written, since a
// goleveldb snapshot handle cannot survive a process restart.
type valueSource interface {
	get(fullKey []byte) (val []byte, found bool, err error)
	release()
}

type liveSnapshotSource struct {
	snap kv.Snapshot
}

func (s *liveSnapshotSource) get(fullKey []byte) ([]byte, bool, error) {
	val, err := s.snap.Get(fullKey)
	if err != nil {
		if s.snap.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, wrapAdapterFault("rollback snapshot read", err)
	}
	return val, true, nil
}

func (s *liveSnapshotSource) release() { s.snap.Release() }

// materializedSource serves prior values read back from the checkpoint log.
// It never errors: every value it can answer for was already resolved (and
// validated against the log's own entries) when the log was written.
type materializedSource struct {
	values map[string][]byte // fullKey -> prior value; absent key means "not found"
}

func (s *materializedSource) get(fullKey []byte) ([]byte, bool, error) {
	val, ok := s.values[string(fullKey)]
	return val, ok, nil
}

func (s *materializedSource) release() {}

// savepoint is one level of the stack: the sequence number it was opened at,
// the actions recorded against it since, and the source rollback reads
// prior values from.
type savepoint struct {
	seq     int64
	actions []action
	src     valueSource
}

// savepointStack is the nested rollback stack. It holds one engine-level
// snapshot per open savepoint and a log of the mutations made since that
// savepoint was pushed, in recording order.
type savepointStack struct {
	mu  sync.Mutex
	sps []*savepoint
}

func (st *savepointStack) depth() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sps)
}

func (st *savepointStack) topSeq() (int64, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.sps) == 0 {
		return 0, false
	}
	return st.sps[len(st.sps)-1].seq, true
}

// push opens a new savepoint at seq, which must strictly exceed the current
// top.
func (st *savepointStack) push(seq int64, eng engine.Engine) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if n := len(st.sps); n > 0 {
		if top := st.sps[n-1].seq; seq <= top {
			return &SeqNotValidError{Prev: top, Curr: seq}
		}
	}

	st.sps = append(st.sps, &savepoint{seq: seq, src: &liveSnapshotSource{eng.Snapshot()}})
	return nil
}

// record appends an action to the top savepoint. It is a no-op when the
// stack is empty: writes made outside any savepoint are not undoable and
// need no bookkeeping.
func (st *savepointStack) record(act action) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.sps) == 0 {
		return
	}
	top := st.sps[len(st.sps)-1]
	top.actions = append(top.actions, act)
}

// popSavepoint discards the top savepoint without rolling anything back:
// its recorded mutations are already reflected in the engine (writes are
// applied eagerly; the action log exists only to support rollback), so
// committing it is just releasing its snapshot and forgetting the log.
func (st *savepointStack) popSavepoint() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.sps) == 0 {
		return ErrNoSavepoint
	}
	n := len(st.sps) - 1
	st.sps[n].src.release()
	st.sps = st.sps[:n]
	return nil
}

// popUntil commits (releases, without rollback) every savepoint at the
// front of the stack whose seq is less than until, discarding history older
// than the last irreversible checkpoint.
func (st *savepointStack) popUntil(until int64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	i := 0
	for i < len(st.sps) && st.sps[i].seq < until {
		st.sps[i].src.release()
		i++
	}
	st.sps = st.sps[i:]
}

// squashTop merges the top savepoint into the one beneath it: the merged
// group keeps the lower (predecessor) seq and its snapshot, appends the
// top's actions after the predecessor's (preserving oldest-first order for a
// later rollback), and releases the top's now-redundant snapshot.
//
// This resolves the open question of which of the two snapshots a squash
// should retain: the predecessor's, not the intermediate one, since a
// rollback of the squashed group must see state as of the older savepoint.
func (st *savepointStack) squashTop() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.sps) < 2 {
		return ErrSquash
	}
	n := len(st.sps) - 1
	top := st.sps[n]
	under := st.sps[n-1]

	under.actions = append(under.actions, top.actions...)
	top.src.release()
	st.sps = st.sps[:n]
	return nil
}

// rollbackTop undoes every action recorded against the top savepoint and
// pops it, writing the undo as a single synchronously-flushed batch so a
// crash mid-rollback cannot leave the store in a state between the pre- and
// post-rollback snapshots.
//
// Actions are replayed oldest-first (the order they were recorded in), and a
// per-key set deduplicates effects: every prior value comes from the
// snapshot captured at push time, so the first action to touch a key
// restores it fully and later actions on the same key are skipped.
func (st *savepointStack) rollbackTop(eng engine.Engine, tokens, assets kv.Bucket, sig *signals) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if len(st.sps) == 0 {
		return ErrNoSavepoint
	}
	top := st.sps[len(st.sps)-1]
	defer top.src.release()

	batch := eng.SyncBulk()
	seen := make(map[string]struct{}, len(top.actions))

	for _, act := range top.actions {
		if act.isAsset {
			raw := act.assetKey.Bytes()
			dedupe := "A" + string(raw)
			if _, ok := seen[dedupe]; ok {
				continue
			}
			seen[dedupe] = struct{}{}

			full := prefixedKey(assets, raw)
			if err := restoreOrDelete(batch, top.src, full, false); err != nil {
				return err
			}
			continue
		}

		for _, k := range act.keys {
			tk := EncodeTokenKey(act.prefix, k)
			dedupe := "T" + string(tk[:])
			if _, ok := seen[dedupe]; ok {
				// An add must be the first action to touch its key within a
				// savepoint (the key did not exist before it). Finding it
				// already restored means the action log is corrupt.
				if act.op == OpAdd {
					return fmt.Errorf("%w: add action for already-restored key %s during rollback", ErrAdapterFault, k)
				}
				continue
			}
			seen[dedupe] = struct{}{}

			full := prefixedKey(tokens, tk[:])

			switch act.op {
			case OpAdd:
				batch.Delete(full)
				sig.fireRemove(act.typ, act.domain, k)
			case OpUpdate:
				if err := restoreOrDelete(batch, top.src, full, true); err != nil {
					return err
				}
				sig.fireRollback(act.typ, act.domain, k)
			case OpPut:
				if err := restoreOrDelete(batch, top.src, full, false); err != nil {
					return err
				}
				sig.fireRollback(act.typ, act.domain, k)
			default:
				return fmt.Errorf("tokendb: unknown action op %v during rollback", act.op)
			}
		}
	}

	if err := batch.Write(); err != nil {
		return wrapAdapterFault("rollback write", err)
	}

	st.sps = st.sps[:len(st.sps)-1]
	return nil
}

// restoreOrDelete writes src's prior value for full back into batch, or
// deletes full if src has no prior value. When mustExist is true
// (OpUpdate), a missing prior value indicates a corrupt savepoint rather
// than a legitimate absence, and is reported as such instead of silently
// deleting.
func restoreOrDelete(batch kv.Bulk, src valueSource, full []byte, mustExist bool) error {
	val, found, err := src.get(full)
	if err != nil {
		return err
	}
	if !found {
		if mustExist {
			return fmt.Errorf("%w: update rollback found no prior value for key", ErrAdapterFault)
		}
		batch.Delete(full)
		return nil
	}
	batch.Put(full, val)
	return nil
}

func prefixedKey(b kv.Bucket, key []byte) []byte {
	out := make([]byte, 0, len(b)+len(key))
	out = append(out, b...)
	out = append(out, key...)
	return out
}
