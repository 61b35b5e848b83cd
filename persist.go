package tokendb

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// checkpointLogName is the on-disk file name for the savepoint checkpoint
// log, sitting alongside the engine's own data files under the configured
// data directory.
const checkpointLogName = "token_database_savepoints.log"

func (db *DB) checkpointLogPath() string {
	return filepath.Join(db.path, checkpointLogName)
}

// writeCheckpointLog materializes every open runtime savepoint (still
// backed by a live engine snapshot) into the on-disk checkpoint log, so the
// stack can be reconstructed after a restart without needing a snapshot
// handle that cannot survive one.
//
// The dirty flag is written as 1 before any group is written and rewritten
// to 0 only once the whole log, including every prior value, has reached
// stable storage: a process that dies mid-write leaves the flag at 1, and a
// later Open refuses to trust the log rather than replay a truncated one.
func (db *DB) writeCheckpointLog() error {
	db.sp.mu.Lock()
	groups := make([]*savepoint, len(db.sp.sps))
	copy(groups, db.sp.sps)
	db.sp.mu.Unlock()

	if len(groups) == 0 {
		_ = os.Remove(db.checkpointLogPath())
		return nil
	}

	f, err := os.Create(db.checkpointLogPath())
	if err != nil {
		return wrapPersist("create log", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.BigEndian, uint32(1)); err != nil {
		return wrapPersist("write dirty flag", err)
	}

	for _, sp := range groups {
		if err := writeGroup(w, sp); err != nil {
			return wrapPersist("write group", err)
		}
	}

	if err := w.Flush(); err != nil {
		return wrapPersist("flush log", err)
	}
	if err := f.Sync(); err != nil {
		return wrapPersist("sync log", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return wrapPersist("seek log", err)
	}
	if err := binary.Write(f, binary.BigEndian, uint32(0)); err != nil {
		return wrapPersist("clear dirty flag", err)
	}
	if err := f.Sync(); err != nil {
		return wrapPersist("sync log", err)
	}
	return nil
}

func writeGroup(w io.Writer, sp *savepoint) error {
	if err := binary.Write(w, binary.BigEndian, sp.seq); err != nil {
		return err
	}

	entries := flattenEntries(sp)
	if err := writeUvarint(w, uint64(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		val, found, err := sp.src.get(e.fullKey)
		if err != nil {
			return err
		}
		if err := writeRecordedEntry(w, e, found, val); err != nil {
			return err
		}
	}
	return nil
}

// persistEntry is one flattened (single-key) recorded_entry: the op/type
// pair plus the raw (unbucketed) key bytes, carrying enough to both look up
// its prior value at write time and reconstruct an action at load time. The
// key's interpretation follows from typ: an asset key for TypeAsset, a
// prefix+name token key for everything else (with the prefix doubling as
// the domain for TypeToken).
type persistEntry struct {
	typ     TokenType
	op      Op
	key     []byte
	fullKey []byte
}

func flattenEntries(sp *savepoint) []persistEntry {
	var out []persistEntry
	for _, act := range sp.actions {
		if act.isAsset {
			raw := act.assetKey.Bytes()
			out = append(out, persistEntry{
				typ: act.typ, op: act.op, key: raw,
				fullKey: prefixedKey(assetsBucket, raw),
			})
			continue
		}
		for _, k := range act.keys {
			tk := EncodeTokenKey(act.prefix, k)
			out = append(out, persistEntry{
				typ: act.typ, op: act.op, key: append([]byte(nil), tk[:]...),
				fullKey: prefixedKey(tokensBucket, tk[:]),
			})
		}
	}
	return out
}

// writeRecordedEntry emits one entry: op and type as fixed u16s, the key as
// a length-prefixed byte string, then a presence byte and (if the prior
// value existed) the length-prefixed value. Presence is explicit so an
// empty prior value stays distinguishable from an absent one.
func writeRecordedEntry(w io.Writer, e persistEntry, found bool, val []byte) error {
	var head [4]byte
	binary.BigEndian.PutUint16(head[:2], uint16(e.op))
	binary.BigEndian.PutUint16(head[2:], uint16(e.typ))
	if _, err := w.Write(head[:]); err != nil {
		return err
	}
	if err := writeUvarint(w, uint64(len(e.key))); err != nil {
		return err
	}
	if _, err := w.Write(e.key); err != nil {
		return err
	}

	if _, err := w.Write([]byte{boolByte(found)}); err != nil {
		return err
	}
	if found {
		if err := writeUvarint(w, uint64(len(val))); err != nil {
			return err
		}
		if _, err := w.Write(val); err != nil {
			return err
		}
	}
	return nil
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func writeUvarint(w io.Writer, v uint64) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	_, err := w.Write(buf[:n])
	return err
}

// loadCheckpointLog reconstructs the savepoint stack from the on-disk
// checkpoint log, if one exists. A missing log means a fresh or
// cleanly-emptied database and is not an error.
func (db *DB) loadCheckpointLog() error {
	f, err := os.Open(db.checkpointLogPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return wrapPersist("open log", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	var dirty uint32
	if err := binary.Read(r, binary.BigEndian, &dirty); err != nil {
		if err == io.EOF {
			return nil
		}
		return wrapPersist("read dirty flag", err)
	}
	if dirty != 0 {
		return ErrDirtyFlag
	}

	var loaded []*savepoint
	for {
		sp, err := readGroup(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return wrapPersist("read group", err)
		}
		loaded = append(loaded, sp)
	}

	db.sp.mu.Lock()
	db.sp.sps = loaded
	db.sp.mu.Unlock()
	return nil
}

func readGroup(r *bufio.Reader) (*savepoint, error) {
	var seq int64
	if err := binary.Read(r, binary.BigEndian, &seq); err != nil {
		return nil, err
	}

	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}

	values := make(map[string][]byte, count)
	actions := make([]action, 0, count)

	for i := uint64(0); i < count; i++ {
		e, found, val, err := readRecordedEntry(r)
		if err != nil {
			return nil, err
		}
		if found {
			values[string(e.fullKey)] = val
		}
		act, err := entryToAction(e)
		if err != nil {
			return nil, err
		}
		actions = append(actions, act)
	}

	return &savepoint{
		seq:     seq,
		actions: actions,
		src:     &materializedSource{values: values},
	}, nil
}

func readRecordedEntry(r *bufio.Reader) (persistEntry, bool, []byte, error) {
	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return persistEntry{}, false, nil, err
	}
	e := persistEntry{
		op:  Op(binary.BigEndian.Uint16(head[:2])),
		typ: TokenType(binary.BigEndian.Uint16(head[2:])),
	}

	keyLen, err := binary.ReadUvarint(r)
	if err != nil {
		return persistEntry{}, false, nil, err
	}
	e.key = make([]byte, keyLen)
	if _, err := io.ReadFull(r, e.key); err != nil {
		return persistEntry{}, false, nil, err
	}
	if e.typ == TypeAsset {
		e.fullKey = prefixedKey(assetsBucket, e.key)
	} else {
		e.fullKey = prefixedKey(tokensBucket, e.key)
	}

	var presence [1]byte
	if _, err := io.ReadFull(r, presence[:]); err != nil {
		return persistEntry{}, false, nil, err
	}
	if presence[0] == 0 {
		return e, false, nil, nil
	}

	n, err := binary.ReadUvarint(r)
	if err != nil {
		return persistEntry{}, false, nil, err
	}
	val := make([]byte, n)
	if _, err := io.ReadFull(r, val); err != nil {
		return persistEntry{}, false, nil, err
	}
	return e, true, val, nil
}

// entryToAction reconstructs the savepoint action a persisted entry stands
// for. The key's shape is implied by the entry's type; a key of the wrong
// width means the log is corrupt.
func entryToAction(e persistEntry) (action, error) {
	if e.typ == TypeAsset {
		ak, ok := DecodeAssetKey(e.key)
		if !ok {
			return action{}, fmt.Errorf("malformed asset key (%d bytes)", len(e.key))
		}
		return action{typ: e.typ, op: e.op, isAsset: true, assetKey: ak}, nil
	}

	tk, ok := DecodeTokenKey(e.key)
	if !ok {
		return action{}, fmt.Errorf("malformed token key (%d bytes)", len(e.key))
	}
	prefix := tk.Prefix()
	act := action{typ: e.typ, op: e.op, prefix: prefix, keys: []Name128{tk.Key()}}
	if e.typ == TypeToken {
		act.domain = &prefix
	}
	return act, nil
}
