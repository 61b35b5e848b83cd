package kv

import (
	"github.com/syndtr/goleveldb/leveldb/util"
)

// function-type adapters, so small ad-hoc Store/Snapshot/Bulk/Iterator
// implementations can be assembled from closures without named types.
type (
	getFunc        func(key []byte) ([]byte, error)
	hasFunc        func(key []byte) (bool, error)
	putFunc        func(key, val []byte) error
	deleteFunc     func(key []byte) error
	writeFunc      func() error
	isNotFoundFunc func(err error) bool
	nextFunc       func() bool
	keyFunc        func() []byte
	valueFunc      func() []byte
	releaseFunc    func()
	errorFunc      func() error
)

func (f getFunc) Get(key []byte) ([]byte, error) { return f(key) }
func (f hasFunc) Has(key []byte) (bool, error) { return f(key) }
func (f putFunc) Put(key, val []byte) error { return f(key, val) }
func (f deleteFunc) Delete(key []byte) error { return f(key) }
func (f writeFunc) Write() error { return f() }
func (f isNotFoundFunc) IsNotFound(err error) bool { return f(err) }
func (f nextFunc) Next() bool { return f() }
func (f keyFunc) Key() []byte { return f() }
func (f valueFunc) Value() []byte { return f() }
func (f releaseFunc) Release() { f() }
func (f errorFunc) Error() error { return f() }

// Bucket emulates a column family as a fixed key prefix over a single
// underlying engine. It is the adapter's only means of partitioning the
// keyspace: the Tokens and Assets column families are each one Bucket over
// the same goleveldb instance.
type Bucket []byte

func (b Bucket) prefixed(key []byte) []byte {
	out := make([]byte, 0, len(b)+len(key))
	out = append(out, b...)
	out = append(out, key...)
	return out
}

// NewGetter returns a Getter scoped to this bucket.
func (b Bucket) NewGetter(src Getter) Getter {
	return &struct {
		getFunc
		hasFunc
		isNotFoundFunc
	}{
		func(key []byte) ([]byte, error) { return src.Get(b.prefixed(key)) },
		func(key []byte) (bool, error) { return src.Has(b.prefixed(key)) },
		src.IsNotFound,
	}
}

// NewPutter returns a Putter scoped to this bucket.
func (b Bucket) NewPutter(src Putter) Putter {
	return &struct {
		putFunc
		deleteFunc
	}{
		func(key, val []byte) error { return src.Put(b.prefixed(key), val) },
		func(key []byte) error { return src.Delete(b.prefixed(key)) },
	}
}

// NewStore returns a Store scoped to this bucket: every key read, written,
// iterated, snapshotted or batched through it is transparently prefixed.
func (b Bucket) NewStore(src Store) Store {
	return &bucketStore{b, src}
}

type bucketStore struct {
	b   Bucket
	src Store
}

func (s *bucketStore) Get(key []byte) ([]byte, error) { return s.b.NewGetter(s.src).Get(key) }
func (s *bucketStore) Has(key []byte) (bool, error) { return s.b.NewGetter(s.src).Has(key) }
func (s *bucketStore) IsNotFound(err error) bool { return s.src.IsNotFound(err) }
func (s *bucketStore) Put(key, val []byte) error { return s.b.NewPutter(s.src).Put(key, val) }
func (s *bucketStore) Delete(key []byte) error { return s.b.NewPutter(s.src).Delete(key) }

func (s *bucketStore) Snapshot() Snapshot {
	snap := s.src.Snapshot()
	return &struct {
		Getter
		releaseFunc
	}{
		s.b.NewGetter(snap),
		snap.Release,
	}
}

func (s *bucketStore) Bulk() Bulk {
	bulk := s.src.Bulk()
	return &struct {
		Putter
		writeFunc
	}{
		s.b.NewPutter(bulk),
		bulk.Write,
	}
}

func (s *bucketStore) Iterate(r Range) Iterator {
	start := s.b.prefixed(r.Start)

	var limit []byte
	if len(r.Limit) == 0 {
		limit = util.BytesPrefix(s.b).Limit
	} else {
		limit = s.b.prefixed(r.Limit)
	}

	iter := s.src.Iterate(Range{Start: start, Limit: limit})
	return &struct {
		nextFunc
		keyFunc
		valueFunc
		releaseFunc
		errorFunc
	}{
		iter.Next,
		func() []byte { return iter.Key()[len(s.b):] },
		iter.Value,
		iter.Release,
		iter.Error,
	}
}
