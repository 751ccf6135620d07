package engine

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rimedb/rime/pkg/config"
	"github.com/rimedb/rime/pkg/events"
	"github.com/rimedb/rime/pkg/exec"
	"github.com/rimedb/rime/pkg/log"
	"github.com/rimedb/rime/pkg/manifest"
	"github.com/rimedb/rime/pkg/rocks"
	"github.com/rimedb/rime/pkg/swap"
	"github.com/rimedb/rime/pkg/worker"
)

// Engine wires the swap core together: the cold store, the worker
// pool, the executor, the hot keyspaces and the cron. It replaces
// process-global state with one injectable context.
type Engine struct {
	cfg *config.Config

	Rocks    *rocks.Rocks
	Executor *exec.Executor
	Pool     *worker.Pool
	Events   *events.Broker
	Manifest *manifest.Manifest

	cron *rocks.Cron

	mu  sync.RWMutex
	dbs map[int]*swap.DB

	logger zerolog.Logger
	stopCh chan struct{}
	doneWg sync.WaitGroup
}

// New builds an engine from the configuration
func New(cfg *config.Config) (*Engine, error) {
	mf, err := manifest.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	broker := events.NewBroker()

	r, err := rocks.Open(rocks.Config{
		DataDir:     cfg.DataDir,
		MaxDBSize:   cfg.MaxDBSize,
		Compression: cfg.Compression,
		Manifest:    mf,
		Events:      broker,
	})
	if err != nil {
		mf.Close()
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		Rocks:    r,
		Events:   broker,
		Manifest: mf,
		dbs:      make(map[int]*swap.DB),
		logger:   log.WithComponent("engine"),
		stopCh:   make(chan struct{}),
	}
	e.Executor = exec.NewExecutor(r, broker)
	e.Pool = worker.NewPool(cfg.Workers, e.Executor)
	e.cron = rocks.NewCron(r, cfg.StatsIntervalTicks, func() {
		e.SubmitUtilTask(swap.GetStatsTask, nil, nil)
	})
	return e, nil
}

// Start launches the workers, the pipeline loop and the cron
func (e *Engine) Start() {
	e.Events.Start()
	e.Pool.Start()

	e.doneWg.Add(1)
	go func() {
		defer e.doneWg.Done()
		e.pipelineLoop()
	}()

	e.doneWg.Add(1)
	go func() {
		defer e.doneWg.Done()
		e.cron.Run(e.cfg.CronTick.Std(), e.stopCh)
	}()

	e.logger.Info().Int("workers", e.cfg.Workers).Msg("Engine started")
}

// Stop shuts the engine down in dependency order
func (e *Engine) Stop() error {
	e.Pool.Drain()
	close(e.stopCh)
	e.Pool.Stop()
	e.doneWg.Wait()
	e.Events.Stop()
	if err := e.Rocks.Close(); err != nil {
		return err
	}
	if err := e.Manifest.Close(); err != nil {
		return fmt.Errorf("failed to close manifest: %w", err)
	}
	e.logger.Info().Msg("Engine stopped")
	return nil
}

// pipelineLoop is the pipeline-thread side of the worker split: it
// finishes notified async requests and runs their completion hooks.
// Parallel-sync requests do not pass through it; Submit finishes them
// on the submitting goroutine.
func (e *Engine) pipelineLoop() {
	for {
		select {
		case req := <-e.Pool.Completions():
			e.finish(req)
		case <-e.stopCh:
			// Drain remaining completions before exiting
			for {
				select {
				case req := <-e.Pool.Completions():
					e.finish(req)
				default:
					return
				}
			}
		}
	}
}

func (e *Engine) finish(req *exec.Request) {
	e.Executor.Finish(req)
	if req.FinishFn != nil {
		req.FinishFn(req)
	}
	e.Pool.TaskDone(req)
}

// DB returns the hot keyspace for a database index, creating it on
// first use.
func (e *Engine) DB(dbid int) *swap.DB {
	e.mu.RLock()
	db := e.dbs[dbid]
	e.mu.RUnlock()
	if db != nil {
		return db
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if db = e.dbs[dbid]; db == nil {
		db = swap.NewDB(dbid)
		e.dbs[dbid] = db
	}
	return db
}

// Analyze produces the key requests for a client's current command
func (e *Engine) Analyze(c *swap.Client, result *swap.KeyRequests) error {
	return swap.Analyze(c, result)
}

// Submit hands one swap request to the worker pool. In parallel-sync
// mode the request is finished inline before returning.
func (e *Engine) Submit(mode exec.Mode, intention swap.Intention, flags uint32,
	data swap.Data, ctx interface{}, finishFn exec.FinishFunc, finishPd interface{}, idx int) *exec.Request {

	req := exec.NewRequest(intention, flags, data, ctx, finishFn, finishPd)
	e.Pool.Submit(mode, req, idx)
	if mode == exec.ModeParallelSync {
		e.finish(req)
	}
	return req
}

// SubmitUtilTask schedules an administrative store task on worker 0.
// Util tasks carry no object state and never touch the hot keyspace.
func (e *Engine) SubmitUtilTask(code uint32, finishFn exec.FinishFunc, finishPd interface{}) *exec.Request {
	return e.Submit(exec.ModeAsync, swap.IntentionUtil, code, nil, nil, finishFn, finishPd, 0)
}

// FlushAll quiesces the workers, reinits the store at a fresh epoch and
// removes the previous epoch's directory.
func (e *Engine) FlushAll() error {
	return e.Rocks.FlushAll(e.Pool.Drain)
}

// InfoString renders the store info block
func (e *Engine) InfoString() string {
	return e.Rocks.InfoString()
}
