package rio

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/rimedb/rime/pkg/metrics"
	"github.com/rimedb/rime/pkg/rocks"
)

// Action identifies one atomic store operation
type Action int

const (
	ActionGet Action = iota + 1
	ActionPut
	ActionDel
	ActionWrite
	ActionMultiGet
	ActionScan
	ActionDeleteRange
)

// ActionName returns the printable name of an action
func ActionName(a Action) string {
	switch a {
	case ActionGet:
		return "get"
	case ActionPut:
		return "put"
	case ActionDel:
		return "del"
	case ActionWrite:
		return "write"
	case ActionMultiGet:
		return "multiget"
	case ActionScan:
		return "scan"
	case ActionDeleteRange:
		return "deleterange"
	default:
		return "unknown"
	}
}

// ErrInjectedFault is returned when the fault injector fires instead of
// issuing the operation. Indistinguishable from a real store error for
// the caller.
var ErrInjectedFault = errors.New("rio: injected fault")

// BatchOp is one entry of an atomic write batch
type BatchOp struct {
	Del bool
	Key []byte
	Val []byte
}

// RIO is one atomic unit of store access. A RIO owns every byte slice
// it holds after construction; read results are populated by Do.
type RIO struct {
	Action Action

	// get / put: Key and, for put, Val. After a get, Val holds the
	// result or nil for a miss.
	Key []byte
	Val []byte

	// write
	Batch []BatchOp

	// multiget inputs and scan results. After a multiget, Vals is
	// slot-aligned with Keys; a nil slot is a miss.
	Keys [][]byte
	Vals [][]byte

	// scan
	Prefix []byte

	// delete range, half-open [Start, End)
	Start []byte
	End   []byte

	// Err records the store-side failure, if any
	Err error
}

// NewGet builds a point-get RIO
func NewGet(rawkey []byte) *RIO {
	return &RIO{Action: ActionGet, Key: rawkey}
}

// NewPut builds a point-put RIO
func NewPut(rawkey, rawval []byte) *RIO {
	return &RIO{Action: ActionPut, Key: rawkey, Val: rawval}
}

// NewDel builds a point-delete RIO
func NewDel(rawkey []byte) *RIO {
	return &RIO{Action: ActionDel, Key: rawkey}
}

// NewWrite builds an atomic write-batch RIO
func NewWrite(batch []BatchOp) *RIO {
	return &RIO{Action: ActionWrite, Batch: batch}
}

// NewMultiGet builds a multi-get RIO
func NewMultiGet(rawkeys [][]byte) *RIO {
	return &RIO{Action: ActionMultiGet, Keys: rawkeys}
}

// NewScan builds a prefix-scan RIO
func NewScan(prefix []byte) *RIO {
	return &RIO{Action: ActionScan, Prefix: prefix}
}

// NewDeleteRange builds a range-delete RIO over [start, end)
func NewDeleteRange(start, end []byte) *RIO {
	return &RIO{Action: ActionDeleteRange, Start: start, End: end}
}

func (r *RIO) doGet(s *rocks.Rocks) error {
	val, closer, err := s.Reader().Get(r.Key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			r.Val = nil
			return nil
		}
		return fmt.Errorf("store get failed: %w", err)
	}
	r.Val = append([]byte(nil), val...)
	return closer.Close()
}

func (r *RIO) doPut(s *rocks.Rocks) error {
	if err := s.DB().Set(r.Key, r.Val, s.WriteOpts()); err != nil {
		return fmt.Errorf("store put failed: %w", err)
	}
	s.BumpWriteSeq()
	return nil
}

func (r *RIO) doDel(s *rocks.Rocks) error {
	if err := s.DB().Delete(r.Key, s.WriteOpts()); err != nil {
		return fmt.Errorf("store del failed: %w", err)
	}
	s.BumpWriteSeq()
	return nil
}

func (r *RIO) doWrite(s *rocks.Rocks) error {
	db := s.DB()
	b := db.NewBatch()
	defer b.Close()
	for _, op := range r.Batch {
		if op.Del {
			if err := b.Delete(op.Key, nil); err != nil {
				return fmt.Errorf("store batch delete failed: %w", err)
			}
		} else {
			if err := b.Set(op.Key, op.Val, nil); err != nil {
				return fmt.Errorf("store batch set failed: %w", err)
			}
		}
	}
	metrics.RIOBatchSize.Observe(float64(len(r.Batch)))
	if err := db.Apply(b, s.WriteOpts()); err != nil {
		return fmt.Errorf("store batch write failed: %w", err)
	}
	s.BumpWriteSeq()
	return nil
}

// doMultiGet materializes every slot before returning: misses stay nil,
// the first per-slot error is promoted to the request level.
func (r *RIO) doMultiGet(s *rocks.Rocks) error {
	reader := s.Reader()
	r.Vals = make([][]byte, len(r.Keys))
	var firstErr error
	for i, key := range r.Keys {
		val, closer, err := reader.Get(key)
		if err != nil {
			if errors.Is(err, pebble.ErrNotFound) {
				continue
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("store multiget failed: %w", err)
			}
			continue
		}
		r.Vals[i] = append([]byte(nil), val...)
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *RIO) doScan(s *rocks.Rocks) error {
	opts := &pebble.IterOptions{LowerBound: r.Prefix}
	if upper := rocks.NextKey(r.Prefix); upper != nil {
		opts.UpperBound = upper
	}
	iter, err := s.Reader().NewIter(opts)
	if err != nil {
		return fmt.Errorf("store scan failed: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if !bytes.HasPrefix(key, r.Prefix) {
			break
		}
		r.Keys = append(r.Keys, append([]byte(nil), key...))
		r.Vals = append(r.Vals, append([]byte(nil), iter.Value()...))
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("store scan failed: %w", err)
	}
	return nil
}

func (r *RIO) doDeleteRange(s *rocks.Rocks) error {
	if err := s.DB().DeleteRange(r.Start, r.End, s.WriteOpts()); err != nil {
		return fmt.Errorf("store delete range failed: %w", err)
	}
	s.BumpWriteSeq()
	return nil
}

// Do issues the operation against the store. The fault injector, when
// armed, fires before the operation is issued. The store-side error, if
// any, is recorded on the RIO and returned.
func (r *RIO) Do(s *rocks.Rocks) error {
	action := ActionName(r.Action)
	metrics.RIOTotal.WithLabelValues(action).Inc()

	if s.TakeInjectedFault() {
		r.Err = ErrInjectedFault
		metrics.RIOErrors.WithLabelValues(action).Inc()
		return r.Err
	}

	timer := metrics.NewTimer()
	var err error
	switch r.Action {
	case ActionGet:
		err = r.doGet(s)
	case ActionPut:
		err = r.doPut(s)
	case ActionDel:
		err = r.doDel(s)
	case ActionWrite:
		err = r.doWrite(s)
	case ActionMultiGet:
		err = r.doMultiGet(s)
	case ActionScan:
		err = r.doScan(s)
	case ActionDeleteRange:
		err = r.doDeleteRange(s)
	default:
		err = fmt.Errorf("unknown rio action: %d", r.Action)
	}
	timer.ObserveDurationVec(metrics.RIODuration, action)

	if err != nil {
		r.Err = err
		metrics.RIOErrors.WithLabelValues(action).Inc()
	}
	return err
}

// String renders the RIO for debug tracing
func (r *RIO) String() string {
	var b bytes.Buffer
	b.WriteString("[rio] ")
	b.WriteString(ActionName(r.Action))
	switch r.Action {
	case ActionGet, ActionPut:
		fmt.Fprintf(&b, " rawkey=%q, rawval=%q", r.Key, r.Val)
	case ActionDel:
		fmt.Fprintf(&b, " rawkey=%q", r.Key)
	case ActionWrite:
		fmt.Fprintf(&b, " numops=%d", len(r.Batch))
	case ActionMultiGet, ActionScan:
		if r.Action == ActionScan {
			fmt.Fprintf(&b, " prefix=%q", r.Prefix)
		}
		for i := range r.Keys {
			fmt.Fprintf(&b, " (%q)=>(%q)", r.Keys[i], valRepr(r.Vals, i))
		}
	case ActionDeleteRange:
		fmt.Fprintf(&b, " start=%q, end=%q", r.Start, r.End)
	}
	return b.String()
}

func valRepr(vals [][]byte, i int) []byte {
	if i >= len(vals) || vals[i] == nil {
		return []byte("<nil>")
	}
	return vals[i]
}
