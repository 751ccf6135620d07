package exec

import (
	"github.com/google/uuid"

	"github.com/rimedb/rime/pkg/swap"
)

// Mode selects how a submitted request reaches its worker
type Mode int

const (
	// ModeAsync enqueues the request and returns immediately
	ModeAsync Mode = iota
	// ModeParallelSync enqueues the request and waits for its
	// completion to be notified
	ModeParallelSync
)

// State tracks a request through the executor
type State int

const (
	StateNew State = iota
	StateEncoded
	StateIOIssued
	StateDecoded
	StateMerged
	StateNotified
	StateFinished
)

// NotifyFunc rejoins a completed request with the pipeline. Called
// exactly once per accepted request, on the worker that executed it.
type NotifyFunc func(req *Request)

// FinishFunc is the originator's completion hook, run on the pipeline
// thread after Finish.
type FinishFunc func(req *Request)

// Request is one swap bound to its per-object working state. It crosses
// from the pipeline to a worker by move; only that worker touches it
// until the notify callback hands it back.
type Request struct {
	ID             string
	Intention      swap.Intention
	IntentionFlags uint32

	Data swap.Data
	Ctx  interface{}

	// Result is the decoded object produced by a successful IN
	Result *swap.Object

	// Err is the terminal error; nil while the request is live
	Err error

	// State is the request's position in the execution state machine
	State State

	// SwapMemory accounts the bytes brought into memory
	SwapMemory int64

	// StatsDump receives the store's textual stats for a GET_STATS
	// util task
	StatsDump string

	FinishFn FinishFunc
	FinishPd interface{}

	notifyFn NotifyFunc
}

// NewRequest builds a request in state NEW
func NewRequest(intention swap.Intention, flags uint32, data swap.Data, ctx interface{}, finishFn FinishFunc, finishPd interface{}) *Request {
	return &Request{
		ID:             uuid.New().String(),
		Intention:      intention,
		IntentionFlags: flags,
		Data:           data,
		Ctx:            ctx,
		FinishFn:       finishFn,
		FinishPd:       finishPd,
	}
}

// SetNotify installs the worker-to-pipeline notification hook
func (req *Request) SetNotify(fn NotifyFunc) {
	req.notifyFn = fn
}
