package swap

import "github.com/rimedb/rime/pkg/rio"

// Data is the per-object working state the swap executor drives through
// the store. One implementation exists per object encoding; each must
// be a pure function of its inputs plus the stored object it inspects,
// and must not issue store operations of its own.
//
// EncodeKeys, EncodeData, DecodeData, CreateOrMergeObject and
// CleanObject run on the worker thread. SwapIn, SwapOut and SwapDel are
// the pipeline-thread finalizers and are the only places the hot
// keyspace may be touched.
type Data interface {
	// EncodeKeys translates the request into raw read or delete keys.
	// Legal actions for IN: multiget, get, scan (the single returned
	// key is the scan prefix). Legal actions for DEL: write (batched
	// deletes), del, deleterange (rawkeys holds the [start, end) pair).
	EncodeKeys(intention Intention, ctx interface{}) (rio.Action, [][]byte, error)

	// EncodeData produces the raw rows to persist for OUT. Legal
	// actions: put (one row), write (many rows).
	EncodeData(intention Intention, ctx interface{}) (rio.Action, [][]byte, [][]byte, error)

	// DecodeData turns fetched raw rows into one decoded object
	DecodeData(rawkeys, rawvals [][]byte) (*Object, error)

	// CreateOrMergeObject merges the decoded object into the stored
	// object. delFlag reports what happened to the on-disk rows.
	CreateOrMergeObject(decoded *Object, ctx interface{}, delFlag DelFlag) (*Object, error)

	// CleanObject marks the working state clean after a successful OUT
	CleanObject(ctx interface{}) error

	// SwapIn commits a loaded object into the hot keyspace
	SwapIn(result *Object, ctx interface{}) error

	// SwapOut evicts the hot object and installs the placeholder
	SwapOut(ctx interface{}) error

	// SwapDel removes the in-memory side; with async set the
	// placeholder stays for later cleanup
	SwapDel(ctx interface{}, async bool) error
}
