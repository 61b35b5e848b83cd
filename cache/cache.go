// Package cache implements the typed read-through LRU cache that fronts
// token-family reads: a bounded in-memory layer keyed by (type, domain, key)
// that decodes and remembers values read through DB.ReadToken, and
// invalidates itself synchronously whenever the underlying savepoint stack
// rolls back or discards the entry it is caching.
//
// A runtime type tag is recorded alongside each cached value, so a caller
// who asks for the wrong T gets a clear error instead of a silent bad cast.
package cache

import (
	"errors"
	"fmt"
	"reflect"

	lru "github.com/hashicorp/golang-lru"

	"github.com/evtnetwork/tokendb"
	"github.com/evtnetwork/tokendb/metrics"
)

// metricCacheHitMiss counts lookups, partitioned by hit/miss.
var metricCacheHitMiss = metrics.LazyLoadCounterVec("cache_hit_miss_count", "event")

// ErrTypeMismatch is returned when a cached entry exists for a key but was
// stored as a different Go type than the one now being requested.
var ErrTypeMismatch = errors.New("tokendb/cache: cached entry has a different type")

type cacheKey struct {
	typ       tokendb.TokenType
	hasDomain bool
	domain    tokendb.Name128
	key       tokendb.Name128
}

func newCacheKey(t tokendb.TokenType, domain *tokendb.Name128, key tokendb.Name128) cacheKey {
	ck := cacheKey{typ: t, key: key}
	if domain != nil {
		ck.hasDomain = true
		ck.domain = *domain
	}
	return ck
}

type entry struct {
	ty  reflect.Type
	val any
}

// Cache is a bounded, type-safe read-through cache over a *tokendb.DB.
type Cache struct {
	db      *tokendb.DB
	lru     *lru.Cache
	metrics metrics.Metrics
}

// SetMetrics wires m as the registry cache hit/miss counts are recorded
// against. Left unset, they are discarded (metrics.NoOp).
func (c *Cache) SetMetrics(m metrics.Metrics) { c.metrics = m }

// New builds a Cache of the given capacity (entry count) over db, and
// subscribes it to db's rollback/remove signals so stale entries are
// evicted the moment the data they reflect stops being current.
func New(db *tokendb.DB, size int) (*Cache, error) {
	if size <= 0 {
		size = 1024
	}
	l, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("tokendb/cache: %w", err)
	}

	c := &Cache{db: db, lru: l, metrics: metrics.NoOp}
	db.OnRollbackTokenValue(c.invalidate)
	db.OnRemoveTokenValue(c.invalidate)
	return c, nil
}

func (c *Cache) invalidate(t tokendb.TokenType, domain *tokendb.Name128, key tokendb.Name128) {
	c.lru.Remove(newCacheKey(t, domain, key))
}

// ReadToken reads a token-family value of type T, decoding and caching it on
// a miss. On a hit for a key previously cached as a different Go type, it
// returns ErrTypeMismatch rather than risk an unsound cast.
func ReadToken[T any](c *Cache, t tokendb.TokenType, domain *tokendb.Name128, key tokendb.Name128, noThrow bool) (T, bool, error) {
	var zero T
	wantType := reflect.TypeOf(zero)

	ck := newCacheKey(t, domain, key)
	if raw, ok := c.lru.Get(ck); ok {
		metricCacheHitMiss.Get(c.metrics).AddWithLabel(1, "hit")
		e := raw.(entry)
		if e.ty != wantType {
			return zero, false, fmt.Errorf("%w: cached as %s, requested as %s", ErrTypeMismatch, e.ty, wantType)
		}
		return e.val.(T), true, nil
	}
	metricCacheHitMiss.Get(c.metrics).AddWithLabel(1, "miss")

	data, found, err := c.db.ReadToken(t, domain, key, noThrow)
	if err != nil || !found {
		return zero, found, err
	}

	var v T
	if err := tokendb.DecodeValue(data, &v); err != nil {
		return zero, false, fmt.Errorf("tokendb/cache: decode %s: %w", t, err)
	}
	c.lru.Add(ck, entry{ty: wantType, val: v})
	return v, true, nil
}

// PutToken writes value through to db (RLP-encoding it) and stores it in the
// cache under its Go type, replacing whatever was cached for this key.
func PutToken[T any](c *Cache, t tokendb.TokenType, domain *tokendb.Name128, key tokendb.Name128, shouldExist bool, value T) error {
	data, err := tokendb.EncodeValue(value)
	if err != nil {
		return fmt.Errorf("tokendb/cache: encode %s: %w", t, err)
	}
	if err := c.db.PutToken(t, domain, key, shouldExist, data); err != nil {
		return err
	}
	c.lru.Add(newCacheKey(t, domain, key), entry{ty: reflect.TypeOf(value), val: value})
	return nil
}

// Len reports the number of entries currently cached.
func (c *Cache) Len() int { return c.lru.Len() }

// Purge drops every cached entry without touching the backing store.
func (c *Cache) Purge() { c.lru.Purge() }
