// Package engine implements the Backing Store Adapter: a thin typed façade
// over an embedded ordered KV library (goleveldb), configured with the
// disk/memory profiles the storage engine needs.
package engine

import (
	"io"

	"github.com/evtnetwork/tokendb/kv"
)

// Engine is the adapter's top-level handle. It satisfies kv.Store directly;
// column families are obtained by wrapping it in a kv.Bucket.
type Engine interface {
	kv.Store
	io.Closer

	// Flush forces any buffered writes to stable storage.
	Flush() error

	// SyncBulk returns a batch whose Write fsyncs before returning. Used
	// exclusively for savepoint rollback batches.
	SyncBulk() kv.Bulk
}
