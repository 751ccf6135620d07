package worker

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/rimedb/rime/pkg/exec"
	"github.com/rimedb/rime/pkg/log"
	"github.com/rimedb/rime/pkg/metrics"
	"github.com/rimedb/rime/pkg/swap"
)

// Pool runs swap requests on a fixed set of worker goroutines. Each
// worker owns one FIFO queue, so requests routed to the same worker
// complete in submission order. Completed requests surface on the
// completion queue for the pipeline thread to finish.
type Pool struct {
	executor *exec.Executor
	queues   []chan *exec.Request

	completions chan *exec.Request
	inflight    sync.WaitGroup

	wg     sync.WaitGroup
	stopCh chan struct{}
	logger zerolog.Logger
}

// NewPool creates a pool of n workers over the executor
func NewPool(n int, executor *exec.Executor) *Pool {
	p := &Pool{
		executor:    executor,
		queues:      make([]chan *exec.Request, n),
		completions: make(chan *exec.Request, 1024),
		stopCh:      make(chan struct{}),
		logger:      log.WithComponent("worker"),
	}
	for i := range p.queues {
		p.queues[i] = make(chan *exec.Request, 128)
	}
	return p
}

// Start launches the workers
func (p *Pool) Start() {
	for i := range p.queues {
		p.wg.Add(1)
		go p.run(i)
	}
	p.logger.Info().Int("workers", len(p.queues)).Msg("Workers started")
}

// Stop stops the workers after their queues drain
func (p *Pool) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Pool) run(idx int) {
	defer p.wg.Done()
	logger := log.WithWorker(idx)
	logger.Debug().Msg("Worker running")
	queue := p.queues[idx]
	for {
		select {
		case req := <-queue:
			p.executor.Execute(req)
		case <-p.stopCh:
			// Drain what was already queued before exiting
			for {
				select {
				case req := <-queue:
					p.executor.Execute(req)
				default:
					logger.Debug().Msg("Worker stopped")
					return
				}
			}
		}
	}
}

// Submit routes a request to the worker selected by idx. Async mode
// enqueues and returns; parallel-sync mode blocks until the worker has
// notified completion, leaving Finish for the caller.
func (p *Pool) Submit(mode exec.Mode, req *exec.Request, idx int) {
	metrics.SwapsStarted.WithLabelValues(swap.IntentionName(req.Intention)).Inc()
	p.inflight.Add(1)

	if mode == exec.ModeParallelSync {
		done := make(chan struct{})
		req.SetNotify(func(r *exec.Request) {
			close(done)
		})
		p.queues[p.route(idx)] <- req
		<-done
		return
	}

	req.SetNotify(func(r *exec.Request) {
		p.completions <- r
	})
	p.queues[p.route(idx)] <- req
}

func (p *Pool) route(idx int) int {
	if idx < 0 {
		idx = -idx
	}
	return idx % len(p.queues)
}

// Completions returns the queue of notified requests awaiting Finish
func (p *Pool) Completions() <-chan *exec.Request {
	return p.completions
}

// TaskDone marks one submitted request fully processed
func (p *Pool) TaskDone(req *exec.Request) {
	p.inflight.Done()
}

// Drain blocks until every submitted request has been fully processed
func (p *Pool) Drain() {
	p.inflight.Wait()
}
