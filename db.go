// Package tokendb implements a persistent, ordered key-value store for the
// chain object types a host blockchain runtime needs durable storage for
// (domains, tokens, groups, fungible specs, suspended proposals, locks,
// links, producer votes) plus a per-address fungible asset balance table,
// fronted by a nested savepoint stack for exactly-once deterministic
// rollback and a crash-recovery checkpoint log.
package tokendb

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/evtnetwork/tokendb/engine"
	"github.com/evtnetwork/tokendb/kv"
	"github.com/evtnetwork/tokendb/metrics"
)

// The Tokens and Assets column families are emulated as fixed key prefixes
// over one goleveldb instance.
var (
	tokensBucket = kv.Bucket("t")
	assetsBucket = kv.Bucket("a")
)

var (
	metricPutTotal        = metrics.LazyLoadCounterVec("put_total", "type")
	metricRollbackTotal   = metrics.LazyLoadCounter("rollback_total")
	metricRollbackLatency = metrics.LazyLoadHistogram("rollback_duration_ms")
	metricSavepointDepth  = metrics.LazyLoadGauge("savepoint_depth")
)

// DB is the token database facade: the public entry point combining the
// backing store adapter, the key codec, and the savepoint stack into the
// operations a host runtime calls directly.
type DB struct {
	eng engine.Engine

	tokens kv.Store
	assets kv.Store

	sp  savepointStack
	sig signals

	path string

	logger  log.Logger
	metrics metrics.Metrics
}

// Open opens (creating if necessary) a token database at the location and
// profile described by cfg, replaying its checkpoint log if one exists.
func Open(cfg Config) (*DB, error) {
	eng, err := engine.Open(cfg.DataDir, cfg.CacheSizeMiB, cfg.Profile)
	if err != nil {
		return nil, wrapAdapterFault("open", err)
	}

	m := cfg.Metrics
	if m == nil {
		m = metrics.NoOp
	}

	path := cfg.DataDir
	if cfg.Profile == engine.ProfileMemory {
		path = ""
	}

	db := &DB{
		eng:     eng,
		tokens:  tokensBucket.NewStore(eng),
		assets:  assetsBucket.NewStore(eng),
		path:    path,
		logger:  log.New("pkg", "tokendb"),
		metrics: m,
	}

	if db.path != "" {
		if err := db.loadCheckpointLog(); err != nil {
			_ = eng.Close()
			return nil, err
		}
	}

	db.logger.Info("token database opened", "savepoints", db.sp.depth())
	metricSavepointDepth.Get(db.metrics).Gauge(int64(db.sp.depth()))
	return db, nil
}

// Close materializes any open savepoints to the checkpoint log and closes
// the backing store. It is not safe to call Close concurrently with any
// other DB method.
func (db *DB) Close() error {
	if db.path != "" {
		if err := db.writeCheckpointLog(); err != nil {
			return err
		}
	}
	if err := db.eng.Close(); err != nil {
		return wrapAdapterFault("close", err)
	}
	return nil
}

// Depth reports the number of open savepoints.
func (db *DB) Depth() int { return db.sp.depth() }

// LatestSavepointSeq returns the seq of the top savepoint, or ok=false if
// the stack is empty.
func (db *DB) LatestSavepointSeq() (seq int64, ok bool) { return db.sp.topSeq() }

// OnRollbackTokenValue and OnRemoveTokenValue let a cache subscribe to
// invalidation events without DB importing the cache package.
func (db *DB) OnRollbackTokenValue(fn InvalidationFunc) (unsubscribe func()) {
	return db.sig.OnRollbackTokenValue(fn)
}

func (db *DB) OnRemoveTokenValue(fn InvalidationFunc) (unsubscribe func()) {
	return db.sig.OnRemoveTokenValue(fn)
}

// PushSavepoint opens a new savepoint at seq, which must strictly exceed
// the seq of the current top savepoint, if there is one.
func (db *DB) PushSavepoint(seq int64) error {
	if err := db.sp.push(seq, db.eng); err != nil {
		return err
	}
	metricSavepointDepth.Get(db.metrics).Gauge(int64(db.sp.depth()))
	return nil
}

// PopSavepoint commits (without rollback) the top savepoint.
func (db *DB) PopSavepoint() error {
	if err := db.sp.popSavepoint(); err != nil {
		return err
	}
	metricSavepointDepth.Get(db.metrics).Gauge(int64(db.sp.depth()))
	return nil
}

// PopSavepointsUntil commits every savepoint older than seq.
func (db *DB) PopSavepointsUntil(seq int64) {
	db.sp.popUntil(seq)
	metricSavepointDepth.Get(db.metrics).Gauge(int64(db.sp.depth()))
}

// SquashSavepoints merges the top two savepoints into one, retaining the
// older one's snapshot (see savepoint.go's squashTop for why).
func (db *DB) SquashSavepoints() error {
	if err := db.sp.squashTop(); err != nil {
		return err
	}
	metricSavepointDepth.Get(db.metrics).Gauge(int64(db.sp.depth()))
	return nil
}

// RollbackToLatestSavepoint undoes every mutation recorded against the top
// savepoint and pops it.
func (db *DB) RollbackToLatestSavepoint() error {
	start := time.Now()
	if err := db.sp.rollbackTop(db.eng, tokensBucket, assetsBucket, &db.sig); err != nil {
		return err
	}
	metricRollbackTotal.Get(db.metrics).Add(1)
	metricRollbackLatency.Get(db.metrics).Observe(metrics.Since(start))
	metricSavepointDepth.Get(db.metrics).Gauge(int64(db.sp.depth()))
	db.logger.Debug("savepoint rolled back", "depth", db.sp.depth())
	return nil
}

// resolvePrefix returns the on-disk prefix half of a token key for t, given
// an optional caller-supplied domain. Only TypeToken accepts (and requires)
// a domain; every other non-asset type uses its canonical prefix.
func resolvePrefix(t TokenType, domain *Name128) (Name128, error) {
	if t == TypeToken {
		if domain == nil {
			return Name128{}, fmt.Errorf("%w: token type requires a domain", ErrPrecondition)
		}
		return *domain, nil
	}
	if domain != nil {
		return Name128{}, fmt.Errorf("%w: type %s does not take a domain", ErrPrecondition, t)
	}
	prefix, ok := CanonicalPrefix(t)
	if !ok {
		return Name128{}, fmt.Errorf("%w: type %s has no canonical prefix", ErrPrecondition, t)
	}
	return prefix, nil
}

// PutToken writes one token-family entry (domain, token, group, fungible
// spec, suspended proposal, lock, link or producer vote). shouldExist
// selects OpUpdate (key must already exist) vs OpAdd (key must not).
func (db *DB) PutToken(t TokenType, domain *Name128, key Name128, shouldExist bool, value []byte) error {
	if t == TypeAsset {
		return fmt.Errorf("%w: use PutAsset for asset balances", ErrPrecondition)
	}
	prefix, err := resolvePrefix(t, domain)
	if err != nil {
		return err
	}

	tk := EncodeTokenKey(prefix, key)
	op := OpAdd
	if shouldExist {
		op = OpUpdate
	}

	if err := db.tokens.Put(tk.Bytes(), value); err != nil {
		return wrapAdapterFault("put token", err)
	}

	db.sp.record(action{typ: t, op: op, prefix: prefix, domain: domain, keys: []Name128{key}})
	metricPutTotal.Get(db.metrics).AddWithLabel(1, t.String())
	return nil
}

// PutTokens writes several token-family entries under the same domain/type
// with the same op, recorded as one multi-key savepoint action. This is the
// bulk path token issuance uses.
func (db *DB) PutTokens(t TokenType, domain *Name128, keys []Name128, shouldExist bool, values [][]byte) error {
	if len(keys) != len(values) {
		return fmt.Errorf("%w: keys/values length mismatch", ErrPrecondition)
	}
	prefix, err := resolvePrefix(t, domain)
	if err != nil {
		return err
	}

	op := OpAdd
	if shouldExist {
		op = OpUpdate
	}

	for i, key := range keys {
		tk := EncodeTokenKey(prefix, key)
		if err := db.tokens.Put(tk.Bytes(), values[i]); err != nil {
			return wrapAdapterFault("put token", err)
		}
	}

	db.sp.record(action{typ: t, op: op, prefix: prefix, domain: domain, keys: append([]Name128(nil), keys...)})
	metricPutTotal.Get(db.metrics).AddWithLabel(int64(len(keys)), t.String())
	return nil
}

// ExistsToken reports whether a token-family key exists.
func (db *DB) ExistsToken(t TokenType, domain *Name128, key Name128) (bool, error) {
	prefix, err := resolvePrefix(t, domain)
	if err != nil {
		return false, err
	}
	tk := EncodeTokenKey(prefix, key)
	ok, err := db.tokens.Has(tk.Bytes())
	if err != nil {
		return false, wrapAdapterFault("exists token", err)
	}
	return ok, nil
}

// ReadToken reads a token-family value. If noThrow is true, a missing key
// yields (nil, false, nil) instead of ErrKeyNotFound.
func (db *DB) ReadToken(t TokenType, domain *Name128, key Name128, noThrow bool) ([]byte, bool, error) {
	prefix, err := resolvePrefix(t, domain)
	if err != nil {
		return nil, false, err
	}
	tk := EncodeTokenKey(prefix, key)
	val, err := db.tokens.Get(tk.Bytes())
	if err != nil {
		if db.tokens.IsNotFound(err) {
			if noThrow {
				return nil, false, nil
			}
			return nil, false, ErrKeyNotFound
		}
		return nil, false, wrapAdapterFault("read token", err)
	}
	return val, true, nil
}

// TokenVisitor is called once per matching entry during a range read. It
// returns false to stop iteration early.
type TokenVisitor func(key Name128, value []byte) bool

// ReadTokensRange iterates every key under prefix/type in key order,
// skipping the first skip matches before invoking visit. It returns the
// number of entries visit was called for.
func (db *DB) ReadTokensRange(t TokenType, domain *Name128, skip int, visit TokenVisitor) (int, error) {
	prefix, err := resolvePrefix(t, domain)
	if err != nil {
		return 0, err
	}

	r := kv.Range{Start: prefix[:]}
	it := db.tokens.Iterate(r)
	defer it.Release()

	skipped, visited := 0, 0
	for it.Next() {
		tk, ok := DecodeTokenKey(it.Key())
		if !ok || tk.Prefix() != prefix {
			break
		}
		if skipped < skip {
			skipped++
			continue
		}
		visited++
		if !visit(tk.Key(), it.Value()) {
			break
		}
	}
	if err := it.Error(); err != nil {
		return visited, wrapAdapterFault("range tokens", err)
	}
	return visited, nil
}

// PutAsset writes one (symbol, address) balance. Asset writes are always
// OpPut: the Assets column family has no add/update distinction, since a
// balance naturally starts at zero rather than needing explicit creation.
func (db *DB) PutAsset(sym Symbol, addr Address, value []byte) error {
	ak := EncodeAssetKey(sym, addr)
	if err := db.assets.Put(ak.Bytes(), value); err != nil {
		return wrapAdapterFault("put asset", err)
	}
	db.sp.record(action{typ: TypeAsset, op: OpPut, isAsset: true, assetKey: ak})
	metricPutTotal.Get(db.metrics).AddWithLabel(1, TypeAsset.String())
	return nil
}

// ExistsAsset reports whether a balance row exists for (sym, addr).
func (db *DB) ExistsAsset(sym Symbol, addr Address) (bool, error) {
	ak := EncodeAssetKey(sym, addr)
	ok, err := db.assets.Has(ak.Bytes())
	if err != nil {
		return false, wrapAdapterFault("exists asset", err)
	}
	return ok, nil
}

// ExistsAnyAsset reports whether addr holds a balance row for any symbol.
// It is the check a runtime needs to decide whether an address can be
// pruned.
func (db *DB) ExistsAnyAsset(addr Address) (bool, error) {
	found := false
	it := db.assets.Iterate(kv.Range{})
	defer it.Release()
	for it.Next() {
		ak, ok := DecodeAssetKey(it.Key())
		if ok && ak.Address() == addr {
			found = true
			break
		}
	}
	if err := it.Error(); err != nil {
		return false, wrapAdapterFault("exists any asset", err)
	}
	return found, nil
}

// ReadAsset reads one balance row. If noThrow is true, a missing row
// yields (nil, false, nil) instead of ErrBalanceNotFound.
func (db *DB) ReadAsset(sym Symbol, addr Address, noThrow bool) ([]byte, bool, error) {
	ak := EncodeAssetKey(sym, addr)
	val, err := db.assets.Get(ak.Bytes())
	if err != nil {
		if db.assets.IsNotFound(err) {
			if noThrow {
				return nil, false, nil
			}
			return nil, false, ErrBalanceNotFound
		}
		return nil, false, wrapAdapterFault("read asset", err)
	}
	return val, true, nil
}

// AssetVisitor is called once per matching balance row during a range read.
type AssetVisitor func(addr Address, value []byte) bool

// ReadAssetsRange iterates every balance under sym in address order,
// skipping the first skip matches before invoking visit. It returns the
// number of entries visit was called for.
func (db *DB) ReadAssetsRange(sym Symbol, skip int, visit AssetVisitor) (int, error) {
	start, limit := SymbolPrefix(sym)
	it := db.assets.Iterate(kv.Range{Start: start[:], Limit: limit[:]})
	defer it.Release()

	skipped, visited := 0, 0
	for it.Next() {
		ak, ok := DecodeAssetKey(it.Key())
		if !ok {
			break
		}
		if skipped < skip {
			skipped++
			continue
		}
		visited++
		if !visit(ak.Address(), it.Value()) {
			break
		}
	}
	if err := it.Error(); err != nil {
		return visited, wrapAdapterFault("range assets", err)
	}
	return visited, nil
}
