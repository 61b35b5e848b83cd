package engine

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	dberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/evtnetwork/tokendb/kv"
)

var (
	writeOpt = &opt.WriteOptions{}
	readOpt  = &opt.ReadOptions{}
	scanOpt  = &opt.ReadOptions{DontFillCache: true}
)

// Profile selects the storage profile used by Open.
type Profile string

const (
	// ProfileDisk opens a durable, file-backed engine tuned for block
	// production: a sized block cache, a bloom filter per table, and a
	// write buffer proportional to the configured cache size.
	ProfileDisk Profile = "disk"
	// ProfileMemory opens a purely in-memory engine, used for hermetic
	// tests; nothing written to it survives Close.
	ProfileMemory Profile = "memory"
)

type levelEngine struct {
	db        *leveldb.DB
	batchPool sync.Pool
}

// Open opens (creating if necessary) a goleveldb-backed Engine at path,
// using the given cache size (MiB) to size the block cache and write
// buffer. Only ProfileDisk honors path; ProfileMemory always opens a fresh
// in-memory store regardless of path.
func Open(path string, cacheSizeMiB int, profile Profile) (Engine, error) {
	if cacheSizeMiB < 8 {
		cacheSizeMiB = 8
	}

	opts := &opt.Options{
		BlockCacheCapacity: cacheSizeMiB / 2 * opt.MiB,
		WriteBuffer:        cacheSizeMiB / 4 * opt.MiB,
		Filter:             filter.NewBloomFilter(10),
	}

	var (
		stg storage.Storage
		err error
	)
	switch profile {
	case ProfileMemory:
		stg = storage.NewMemStorage()
	case ProfileDisk, "":
		opts.OpenFilesCacheCapacity = 256
		stg, err = storage.OpenFile(path, false)
		if err != nil {
			return nil, errors.Wrap(err, "open token database storage")
		}
	default:
		return nil, errors.Errorf("unknown storage profile: %q", profile)
	}

	db, err := leveldb.Open(stg, opts)
	if _, corrupted := err.(*dberrors.ErrCorrupted); corrupted {
		db, err = leveldb.Recover(stg, opts)
	}
	if err != nil {
		return nil, errors.Wrap(err, "open token database")
	}

	return &levelEngine{db: db, batchPool: sync.Pool{New: func() any { return new(leveldb.Batch) }}}, nil
}

func (e *levelEngine) Close() error { return e.db.Close() }

func (e *levelEngine) Flush() error {
	var r util.Range
	return e.db.CompactRange(r)
}

func (e *levelEngine) IsNotFound(err error) bool { return errors.Is(err, leveldb.ErrNotFound) }

func (e *levelEngine) Get(key []byte) ([]byte, error) { return e.db.Get(key, readOpt) }

func (e *levelEngine) Has(key []byte) (bool, error) { return e.db.Has(key, readOpt) }

func (e *levelEngine) Put(key, val []byte) error { return e.db.Put(key, val, writeOpt) }

func (e *levelEngine) Delete(key []byte) error { return e.db.Delete(key, writeOpt) }

func (e *levelEngine) Snapshot() kv.Snapshot {
	snap, err := e.db.GetSnapshot()
	if err != nil {
		return &errSnapshot{err}
	}
	return &levelSnapshot{snap}
}

type errSnapshot struct{ err error }

func (s *errSnapshot) Get(key []byte) ([]byte, error) { return nil, s.err }
func (s *errSnapshot) Has(key []byte) (bool, error) { return false, s.err }
func (s *errSnapshot) IsNotFound(err error) bool { return errors.Is(err, leveldb.ErrNotFound) }
func (s *errSnapshot) Release() {}

type levelSnapshot struct {
	snap *leveldb.Snapshot
}

func (s *levelSnapshot) Get(key []byte) ([]byte, error) { return s.snap.Get(key, readOpt) }
func (s *levelSnapshot) Has(key []byte) (bool, error) { return s.snap.Has(key, readOpt) }
func (s *levelSnapshot) IsNotFound(err error) bool { return errors.Is(err, leveldb.ErrNotFound) }
func (s *levelSnapshot) Release() { s.snap.Release() }

func (e *levelEngine) Bulk() kv.Bulk {
	batch := e.batchPool.Get().(*leveldb.Batch)
	batch.Reset()
	return &levelBulk{e: e, batch: batch}
}

// SyncBulk returns a batch that fsyncs on Write, so a crash mid-rollback
// leaves the store in either the pre- or post-rollback state, never an
// intermediate one.
func (e *levelEngine) SyncBulk() kv.Bulk {
	batch := e.batchPool.Get().(*leveldb.Batch)
	batch.Reset()
	return &levelBulk{e: e, batch: batch, sync: true}
}

type levelBulk struct {
	e     *levelEngine
	batch *leveldb.Batch
	sync  bool
}

func (b *levelBulk) Put(key, val []byte) error { b.batch.Put(key, val); return nil }
func (b *levelBulk) Delete(key []byte) error { b.batch.Delete(key); return nil }

func (b *levelBulk) Write() error {
	defer b.e.batchPool.Put(b.batch)
	if b.sync {
		return b.e.db.Write(b.batch, &opt.WriteOptions{Sync: true})
	}
	return b.e.db.Write(b.batch, writeOpt)
}

func (e *levelEngine) Iterate(r kv.Range) kv.Iterator {
	return &levelIterator{e.db.NewIterator(&util.Range{Start: r.Start, Limit: r.Limit}, scanOpt)}
}

type levelIterator struct {
	it iterator
}

type iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

func (i *levelIterator) Next() bool { return i.it.Next() }
func (i *levelIterator) Key() []byte { return i.it.Key() }
func (i *levelIterator) Value() []byte { return i.it.Value() }
func (i *levelIterator) Release() { i.it.Release() }
func (i *levelIterator) Error() error { return i.it.Error() }
