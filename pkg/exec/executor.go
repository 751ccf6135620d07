package exec

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rimedb/rime/pkg/events"
	"github.com/rimedb/rime/pkg/log"
	"github.com/rimedb/rime/pkg/metrics"
	"github.com/rimedb/rime/pkg/rio"
	"github.com/rimedb/rime/pkg/rocks"
	"github.com/rimedb/rime/pkg/swap"
)

// Executor runs swap requests against the cold store. Execute is the
// worker-thread entry; Finish is its pipeline-thread companion.
type Executor struct {
	rocks  *rocks.Rocks
	events *events.Broker
	logger zerolog.Logger
}

// NewExecutor creates an executor over the store. broker may be nil
// when no event fan-out is wanted.
func NewExecutor(r *rocks.Rocks, broker *events.Broker) *Executor {
	return &Executor{
		rocks:  r,
		events: broker,
		logger: log.WithComponent("executor"),
	}
}

// Rocks returns the store handle
func (e *Executor) Rocks() *rocks.Rocks {
	return e.rocks
}

func (e *Executor) notify(req *Request, err error) {
	req.Err = err
	req.State = StateNotified
	if err != nil {
		e.rocks.AddSwapError()
		metrics.SwapsFailed.WithLabelValues(
			swap.IntentionName(req.Intention), swap.ErrorKind(err)).Inc()
		reqLogger := log.WithRequestID(req.ID)
		reqLogger.Error().Err(err).
			Str("intention", swap.IntentionName(req.Intention)).
			Msg("Swap request failed")
		e.publishFailed(req, err)
	}
	if req.notifyFn != nil {
		req.notifyFn(req)
	}
}

func (e *Executor) publishFailed(req *Request, err error) {
	if e.events == nil {
		return
	}
	e.events.Publish(&events.Event{
		ID:      req.ID,
		Type:    events.EventSwapFailed,
		Message: err.Error(),
		Metadata: map[string]string{
			"intention": swap.IntentionName(req.Intention),
			"kind":      swap.ErrorKind(err),
		},
	})
}

func rioFail(err error) error {
	return fmt.Errorf("%w: %v", swap.ErrExecRIOFail, err)
}

// Execute runs one swap request to completion or terminal error and
// notifies exactly once. Worker-thread entry point.
func (e *Executor) Execute(req *Request) {
	timer := metrics.NewTimer()
	switch req.Intention {
	case swap.IntentionIn:
		e.executeIn(req)
	case swap.IntentionOut:
		e.executeOut(req)
	case swap.IntentionDel:
		e.executeDel(req)
	case swap.IntentionUtil:
		e.executeUtil(req)
	default:
		e.notify(req, swap.ErrExecFail)
	}
	timer.ObserveDurationVec(metrics.SwapExecDuration, swap.IntentionName(req.Intention))
}

// batchDelete removes the given raw keys in one atomic write
func (e *Executor) batchDelete(rawkeys [][]byte) error {
	batch := make([]rio.BatchOp, len(rawkeys))
	for i, rawkey := range rawkeys {
		batch[i] = rio.BatchOp{Del: true, Key: rawkey}
	}
	r := rio.NewWrite(batch)
	if err := r.Do(e.rocks); err != nil {
		return rioFail(err)
	}
	return nil
}

// deleteRange removes [start, end) from the store
func (e *Executor) deleteRange(start, end []byte) error {
	r := rio.NewDeleteRange(start, end)
	if err := r.Do(e.rocks); err != nil {
		return rioFail(err)
	}
	return nil
}

func (e *Executor) executeIn(req *Request) {
	action, rawkeys, err := req.Data.EncodeKeys(swap.IntentionIn, req.Ctx)
	if err != nil {
		e.notify(req, err)
		return
	}
	req.State = StateEncoded
	e.logger.Debug().Str("request_id", req.ID).Str("action", rio.ActionName(action)).
		Int("numkeys", len(rawkeys)).Msg("Swap-in keys encoded")

	if len(rawkeys) == 0 {
		e.notify(req, nil)
		return
	}

	var (
		decoded *swap.Object
		delFlag = swap.NoDel
	)

	switch action {
	case rio.ActionMultiGet:
		r := rio.NewMultiGet(rawkeys)
		req.State = StateIOIssued
		if err := r.Do(e.rocks); err != nil {
			e.notify(req, rioFail(err))
			return
		}
		decoded, err = req.Data.DecodeData(r.Keys, r.Vals)
		if err != nil {
			e.notify(req, err)
			return
		}
		req.State = StateDecoded
		req.SwapMemory += valsSize(r.Vals)

		if req.IntentionFlags&swap.FlagInDel != 0 {
			if err := e.batchDelete(rawkeys); err != nil {
				e.notify(req, err)
				return
			}
			delFlag = swap.DelFlagDel
		}

	case rio.ActionGet:
		r := rio.NewGet(rawkeys[0])
		req.State = StateIOIssued
		if err := r.Do(e.rocks); err != nil {
			e.notify(req, rioFail(err))
			return
		}
		decoded, err = req.Data.DecodeData([][]byte{r.Key}, [][]byte{r.Val})
		if err != nil {
			e.notify(req, err)
			return
		}
		req.State = StateDecoded
		req.SwapMemory += int64(len(r.Val))

		if req.IntentionFlags&swap.FlagInDel != 0 {
			if err := e.batchDelete(rawkeys); err != nil {
				e.notify(req, err)
				return
			}
			// Whole-object row: the entire footprint was consumed.
			delFlag = swap.DelFlagDel | swap.DelFlagFull
		}

	case rio.ActionScan:
		prefix := rawkeys[0]
		r := rio.NewScan(prefix)
		req.State = StateIOIssued
		if err := r.Do(e.rocks); err != nil {
			e.notify(req, rioFail(err))
			return
		}
		decoded, err = req.Data.DecodeData(r.Keys, r.Vals)
		if err != nil {
			e.notify(req, err)
			return
		}
		req.State = StateDecoded
		req.SwapMemory += valsSize(r.Vals)

		if req.IntentionFlags&swap.FlagInDel != 0 {
			// An all-0xff prefix has no upper bound and cannot be
			// range-deleted; the delete degenerates to a no-op.
			if next := rocks.NextKey(prefix); next != nil {
				if err := e.deleteRange(prefix, next); err != nil {
					e.notify(req, err)
					return
				}
				delFlag = swap.DelFlagDel | swap.DelFlagFull
			}
		}

	default:
		e.notify(req, swap.ErrExecUnexpectedAction)
		return
	}

	result, err := req.Data.CreateOrMergeObject(decoded, req.Ctx, delFlag)
	if err != nil {
		e.notify(req, err)
		return
	}
	req.Result = result
	req.State = StateMerged
	metrics.SwapInBytes.Add(float64(req.SwapMemory))

	e.notify(req, nil)
}

func (e *Executor) executeOut(req *Request) {
	action, rawkeys, rawvals, err := req.Data.EncodeData(swap.IntentionOut, req.Ctx)
	if err != nil {
		e.notify(req, err)
		return
	}
	req.State = StateEncoded
	e.logger.Debug().Str("request_id", req.ID).Str("action", rio.ActionName(action)).
		Int("numkeys", len(rawkeys)).Msg("Swap-out data encoded")

	if len(rawkeys) == 0 {
		e.notify(req, nil)
		return
	}

	var r *rio.RIO
	switch action {
	case rio.ActionPut:
		if len(rawkeys) != 1 || len(rawvals) != 1 {
			e.notify(req, swap.ErrExecUnexpectedAction)
			return
		}
		r = rio.NewPut(rawkeys[0], rawvals[0])
	case rio.ActionWrite:
		batch := make([]rio.BatchOp, len(rawkeys))
		for i := range rawkeys {
			batch[i] = rio.BatchOp{Key: rawkeys[i], Val: rawvals[i]}
		}
		r = rio.NewWrite(batch)
	default:
		e.notify(req, swap.ErrExecUnexpectedAction)
		return
	}

	req.State = StateIOIssued
	if err := r.Do(e.rocks); err != nil {
		e.notify(req, rioFail(err))
		return
	}
	metrics.SwapOutBytes.Add(float64(valsSize(rawvals)))

	if err := req.Data.CleanObject(req.Ctx); err != nil {
		e.notify(req, err)
		return
	}

	e.notify(req, nil)
}

func (e *Executor) executeDel(req *Request) {
	action, rawkeys, err := req.Data.EncodeKeys(swap.IntentionDel, req.Ctx)
	if err != nil {
		e.notify(req, err)
		return
	}
	req.State = StateEncoded
	e.logger.Debug().Str("request_id", req.ID).Str("action", rio.ActionName(action)).
		Int("numkeys", len(rawkeys)).Msg("Swap-del keys encoded")

	if len(rawkeys) == 0 {
		e.notify(req, nil)
		return
	}

	var r *rio.RIO
	switch action {
	case rio.ActionWrite:
		batch := make([]rio.BatchOp, len(rawkeys))
		for i, rawkey := range rawkeys {
			batch[i] = rio.BatchOp{Del: true, Key: rawkey}
		}
		r = rio.NewWrite(batch)
	case rio.ActionDel:
		if len(rawkeys) != 1 {
			e.notify(req, swap.ErrExecUnexpectedAction)
			return
		}
		r = rio.NewDel(rawkeys[0])
	case rio.ActionDeleteRange:
		if len(rawkeys) != 2 {
			e.notify(req, swap.ErrExecUnexpectedAction)
			return
		}
		r = rio.NewDeleteRange(rawkeys[0], rawkeys[1])
	default:
		e.notify(req, swap.ErrExecUnexpectedAction)
		return
	}

	req.State = StateIOIssued
	if err := r.Do(e.rocks); err != nil {
		e.notify(req, rioFail(err))
		return
	}

	e.notify(req, nil)
}

func (e *Executor) executeUtil(req *Request) {
	switch req.IntentionFlags {
	case swap.CompactRangeTask:
		if err := e.rocks.CompactRange(); err != nil {
			e.notify(req, fmt.Errorf("%w: %v", swap.ErrExecFail, err))
			return
		}
		e.notify(req, nil)
	case swap.GetStatsTask:
		dump := e.rocks.StatsDump()
		req.StatsDump = dump
		req.FinishPd = dump
		e.notify(req, nil)
	default:
		e.notify(req, swap.ErrExecUnexpectedUtil)
	}
}

// Finish commits the in-memory side of a notified request. Pipeline
// thread only; a no-op for requests that terminated with an error.
func (e *Executor) Finish(req *Request) {
	defer func() { req.State = StateFinished }()

	if req.Err != nil {
		return
	}

	var err error
	switch req.Intention {
	case swap.IntentionIn:
		err = req.Data.SwapIn(req.Result, req.Ctx)
	case swap.IntentionOut:
		err = req.Data.SwapOut(req.Ctx)
	case swap.IntentionDel:
		err = req.Data.SwapDel(req.Ctx, req.IntentionFlags&swap.FlagDelAsync != 0)
	case swap.IntentionUtil:
		// Util tasks have no in-memory side
	default:
		err = swap.ErrDataFinFail
	}
	if err != nil {
		req.Err = fmt.Errorf("%w: %v", swap.ErrDataFinFail, err)
		e.rocks.AddSwapError()
		metrics.SwapsFailed.WithLabelValues(
			swap.IntentionName(req.Intention), swap.ErrorKind(req.Err)).Inc()
		e.publishFailed(req, req.Err)
		return
	}
	metrics.SwapsFinished.WithLabelValues(swap.IntentionName(req.Intention)).Inc()
	intentionLogger := log.WithIntention(swap.IntentionName(req.Intention))
	intentionLogger.Debug().
		Str("request_id", req.ID).Msg("Swap finished")
	if e.events != nil {
		e.events.Publish(&events.Event{
			ID:   req.ID,
			Type: events.EventSwapFinished,
			Metadata: map[string]string{
				"intention": swap.IntentionName(req.Intention),
			},
		})
	}
}

func valsSize(vals [][]byte) int64 {
	var n int64
	for _, v := range vals {
		n += int64(len(v))
	}
	return n
}
