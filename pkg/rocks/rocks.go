package rocks

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
	"github.com/rs/zerolog"

	"github.com/rimedb/rime/pkg/events"
	"github.com/rimedb/rime/pkg/log"
	"github.com/rimedb/rime/pkg/manifest"
	"github.com/rimedb/rime/pkg/metrics"
)

const (
	kb = 1024
	mb = 1024 * 1024

	// healthProbeFile is written on every health-probe tick under the
	// data root.
	healthProbeFile = "health_detect"
)

// Config holds the store configuration
type Config struct {
	// DataDir is the root directory; each epoch opens {DataDir}/{epoch}
	DataDir string
	// MaxDBSize caps the store size in bytes; 0 means unlimited
	MaxDBSize uint64
	// Compression selects the SST codec: snappy, zstd or none
	Compression string
	// Manifest, when set, persists the epoch counter across restarts
	Manifest *manifest.Manifest
	// Events, when set, receives store lifecycle events
	Events *events.Broker
}

// Reader is the read surface shared by the live store and a pinned
// snapshot.
type Reader interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

// Rocks is the handle to the embedded cold store. Lifecycle is
// init -> [reinit]* -> release; a reinit bumps the epoch and reopens at
// a fresh directory. Lifecycle mutations require the worker pool to be
// quiesced; everything else is safe for concurrent workers.
type Rocks struct {
	cfg    Config
	logger zerolog.Logger

	mu    sync.RWMutex
	db    *pebble.DB
	cache *pebble.Cache
	epoch uint64

	snapshot *pebble.Snapshot
	useSnap  bool

	checkpointDir string

	statsMu    sync.Mutex
	statsCache string
	prevStats  cumulativeStats
	statsSince time.Time

	writeSeq     atomic.Uint64
	diskUsed     atomic.Uint64
	diskErr      atomic.Bool
	diskErrSince atomic.Int64
	swapErrors   atomic.Uint64

	// Fault injection knobs, observable only in tests.
	DebugRIOLatency time.Duration
	debugRIOErrors  atomic.Int32
}

// Open clears the data root, creates it fresh and opens the store at the
// current epoch directory.
func Open(cfg Config) (*Rocks, error) {
	r := &Rocks{
		cfg:        cfg,
		logger:     log.WithComponent("rocks"),
		statsSince: time.Now(),
	}

	if st, err := os.Stat(cfg.DataDir); err == nil && st.IsDir() {
		// Stale data root from a previous run, remove it on start.
		if err := os.RemoveAll(cfg.DataDir); err != nil {
			return nil, fmt.Errorf("failed to remove stale data root: %w", err)
		}
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data root: %w", err)
	}

	if err := r.bumpEpoch(); err != nil {
		return nil, err
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Rocks) bumpEpoch() error {
	if r.cfg.Manifest != nil {
		epoch, err := r.cfg.Manifest.NextEpoch()
		if err != nil {
			return fmt.Errorf("failed to bump epoch: %w", err)
		}
		r.epoch = epoch
	} else {
		r.epoch++
	}
	metrics.StoreEpoch.Set(float64(r.epoch))
	return nil
}

func (r *Rocks) compression() pebble.Compression {
	switch r.cfg.Compression {
	case "none":
		return pebble.NoCompression
	case "zstd":
		return pebble.ZstdCompression
	default:
		return pebble.SnappyCompression
	}
}

func (r *Rocks) open() error {
	dir := r.Dir()

	cache := pebble.NewCache(1 * mb)
	opts := &pebble.Options{
		Cache:                       cache,
		DisableWAL:                  true,
		L0CompactionThreshold:       2,
		LBaseMaxBytes:               256 * mb,
		MemTableStopWritesThreshold: 6,
		MaxConcurrentCompactions:    func() int { return 4 },
	}
	opts.Levels = make([]pebble.LevelOptions, 7)
	for i := range opts.Levels {
		l := &opts.Levels[i]
		l.BlockSize = 8 * kb
		l.Compression = r.compression()
		l.FilterPolicy = bloom.FilterPolicy(10)
		if i == 0 {
			l.TargetFileSize = 32 * mb
		} else {
			l.TargetFileSize = opts.Levels[i-1].TargetFileSize * 2
		}
		l.EnsureDefaults()
	}

	db, err := pebble.Open(dir, opts)
	if err != nil {
		cache.Unref()
		return fmt.Errorf("failed to open store at %s: %w", dir, err)
	}

	r.db = db
	r.cache = cache
	r.logger.Info().Str("dir", dir).Uint64("epoch", r.epoch).Msg("Opened store")
	return nil
}

func (r *Rocks) closeDB() {
	r.releaseSnapshotLocked()
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to close store")
		}
		r.db = nil
	}
	if r.cache != nil {
		r.cache.Unref()
		r.cache = nil
	}
}

// Reinit closes the store and reopens it at the next epoch directory.
// An outstanding checkpoint survives the reinit.
func (r *Rocks) Reinit() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	checkpointDir := r.checkpointDir

	r.logger.Info().Str("dir", r.Dir()).Msg("Releasing store for reinit")
	r.closeDB()
	if err := r.bumpEpoch(); err != nil {
		return err
	}
	if err := r.open(); err != nil {
		return err
	}
	r.checkpointDir = checkpointDir

	if r.cfg.Events != nil {
		r.cfg.Events.Publish(&events.Event{
			Type:    events.EventEpochBumped,
			Message: r.Dir(),
		})
	}
	return nil
}

// FlushAll drains outstanding work, reinits the store at a fresh epoch
// and removes the previous epoch's directory.
func (r *Rocks) FlushAll(drain func()) error {
	odir := r.Dir()
	if drain != nil {
		drain()
	}
	if err := r.Reinit(); err != nil {
		return err
	}
	if err := os.RemoveAll(odir); err != nil {
		return fmt.Errorf("failed to remove old epoch dir: %w", err)
	}
	r.logger.Info().Str("dir", odir).Msg("Removed store data")
	return nil
}

// Close releases the store. The manifest, if any, stays open for the
// caller to close.
func (r *Rocks) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger.Info().Str("dir", r.Dir()).Msg("Releasing store")
	r.closeDB()
	return nil
}

// Dir returns the current epoch directory
func (r *Rocks) Dir() string {
	return filepath.Join(r.cfg.DataDir, strconv.FormatUint(r.epoch, 10))
}

// Root returns the data root directory
func (r *Rocks) Root() string {
	return r.cfg.DataDir
}

// Epoch returns the current epoch
func (r *Rocks) Epoch() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.epoch
}

// DB returns the underlying pebble handle
func (r *Rocks) DB() *pebble.DB {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.db
}

// Reader returns the read surface for the next read: the pinned
// snapshot when snapshot reads are enabled, the live store otherwise.
func (r *Rocks) Reader() Reader {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.useSnap && r.snapshot != nil {
		return r.snapshot
	}
	return r.db
}

// WriteOpts returns the write options for store writes. WAL is disabled:
// the store is a cache of the primary data and reconstructable.
func (r *Rocks) WriteOpts() *pebble.WriteOptions {
	return pebble.NoSync
}

// --- Snapshot ---

// CreateSnapshot pins a read snapshot, releasing any previous one
func (r *Rocks) CreateSnapshot() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snapshot != nil {
		r.logger.Warn().Msg("Releasing snapshot before create")
		r.snapshot.Close()
		r.snapshot = nil
	}
	r.snapshot = r.db.NewSnapshot()
	r.logger.Info().Msg("Created store snapshot")
	if r.cfg.Events != nil {
		r.cfg.Events.Publish(&events.Event{Type: events.EventSnapshotCreated})
	}
}

// UseSnapshot directs subsequent reads at the pinned snapshot
func (r *Rocks) UseSnapshot() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snapshot == nil {
		r.logger.Warn().Msg("Cannot use snapshot reads: snapshot not created")
		return
	}
	r.useSnap = true
	r.logger.Info().Msg("Snapshot reads enabled")
}

// ReleaseSnapshot releases the pinned snapshot, if any
func (r *Rocks) ReleaseSnapshot() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseSnapshotLocked()
}

func (r *Rocks) releaseSnapshotLocked() {
	if r.snapshot == nil {
		return
	}
	if err := r.snapshot.Close(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to release snapshot")
	}
	r.snapshot = nil
	r.useSnap = false
	r.logger.Info().Msg("Released snapshot")
	if r.cfg.Events != nil {
		r.cfg.Events.Publish(&events.Event{Type: events.EventSnapshotReleased})
	}
}

// --- Checkpoint ---

// CreateCheckpoint writes a physical copy of the store into dir. Only
// one checkpoint is live at a time; creating a second releases the
// first.
func (r *Rocks) CreateCheckpoint(dir string) error {
	r.mu.Lock()
	if r.checkpointDir != "" {
		r.logger.Warn().Str("dir", r.checkpointDir).Msg("Releasing checkpoint before create")
		r.mu.Unlock()
		r.ReleaseCheckpoint()
		r.mu.Lock()
	}
	defer r.mu.Unlock()

	if err := r.db.Checkpoint(dir); err != nil {
		return fmt.Errorf("failed to create checkpoint at %s: %w", dir, err)
	}
	r.checkpointDir = dir
	r.logger.Info().Str("dir", dir).Msg("Created checkpoint")

	if r.cfg.Manifest != nil {
		cp := &manifest.Checkpoint{Dir: dir, Epoch: r.epoch, CreatedAt: time.Now()}
		if err := r.cfg.Manifest.RecordCheckpoint(cp); err != nil {
			r.logger.Error().Err(err).Msg("Failed to record checkpoint")
		}
	}
	if r.cfg.Events != nil {
		r.cfg.Events.Publish(&events.Event{Type: events.EventCheckpointCreated, Message: dir})
	}
	return nil
}

// ReleaseCheckpoint removes the live checkpoint and its directory
func (r *Rocks) ReleaseCheckpoint() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.checkpointDir == "" {
		return
	}
	dir := r.checkpointDir
	r.logger.Info().Str("dir", dir).Msg("Releasing checkpoint")
	if err := os.RemoveAll(dir); err != nil {
		r.logger.Error().Err(err).Str("dir", dir).Msg("Failed to remove checkpoint dir")
	}
	r.checkpointDir = ""
	if r.cfg.Manifest != nil {
		if err := r.cfg.Manifest.ReleaseCheckpoint(dir); err != nil {
			r.logger.Error().Err(err).Msg("Failed to mark checkpoint released")
		}
	}
	if r.cfg.Events != nil {
		r.cfg.Events.Publish(&events.Event{Type: events.EventCheckpointReleased, Message: dir})
	}
}

// CheckpointDir returns the live checkpoint directory, or empty
func (r *Rocks) CheckpointDir() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.checkpointDir
}

// --- Compaction ---

var (
	compactStart = []byte{0x00}
	compactEnd   = []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
)

// CompactRange triggers a full-keyspace compaction, logging the epoch
// directory footprint before and after.
func (r *Rocks) CompactRange() error {
	dir := r.Dir()
	r.logger.Warn().Str("dir", dir).Int64("size", DirSize(dir)).Msg("Compact range starting")
	if err := r.db.Compact(compactStart, compactEnd, true); err != nil {
		return fmt.Errorf("failed to compact store: %w", err)
	}
	r.logger.Warn().Str("dir", dir).Int64("size", DirSize(dir)).Msg("Compact range done")
	metrics.CompactionsTotal.Inc()
	if r.cfg.Events != nil {
		r.cfg.Events.Publish(&events.Event{Type: events.EventCompactionDone})
	}
	return nil
}

// DirSize returns the byte size of all files under dir, recursively.
// Returns -1 when the directory cannot be read.
func DirSize(dir string) int64 {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return -1
	}
	var total int64
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if sub := DirSize(path); sub > 0 {
				total += sub
			}
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total
}

// --- Properties ---

// TotalSSTSize returns the summed size of SST files across all levels
func (r *Rocks) TotalSSTSize() uint64 {
	m := r.DB().Metrics()
	var total uint64
	for i := range m.Levels {
		total += uint64(m.Levels[i].Size)
	}
	return total
}

// EstimateDBSize approximates the on-disk size of the full keyspace
func (r *Rocks) EstimateDBSize() uint64 {
	size, err := r.DB().EstimateDiskUsage(compactStart, compactEnd)
	if err != nil {
		return 0
	}
	return size
}

// MemoryOverhead reports the store's memory footprint by component
type MemoryOverhead struct {
	Memtable   uint64
	BlockCache uint64
	Pinned     uint64
	Total      uint64
}

// GetMemoryOverhead samples the store's current memory overhead
func (r *Rocks) GetMemoryOverhead() *MemoryOverhead {
	db := r.DB()
	if db == nil {
		return nil
	}
	m := db.Metrics()
	mh := &MemoryOverhead{
		Memtable:   uint64(m.MemTable.Size),
		BlockCache: uint64(m.BlockCache.Size),
		Pinned:     uint64(m.Snapshots.PinnedSize),
	}
	mh.Total = mh.Memtable + mh.BlockCache
	return mh
}

// BumpWriteSeq advances the store write sequence counter
func (r *Rocks) BumpWriteSeq() {
	r.writeSeq.Add(1)
}

// WriteSeq returns the store write sequence counter
func (r *Rocks) WriteSeq() uint64 {
	return r.writeSeq.Load()
}

// DiskUsed returns the last sampled SST footprint
func (r *Rocks) DiskUsed() uint64 {
	return r.diskUsed.Load()
}

// DiskError reports whether the last health probe failed
func (r *Rocks) DiskError() bool {
	return r.diskErr.Load()
}

// DiskErrorSince returns the unix-milli timestamp of the first failed
// probe, or 0
func (r *Rocks) DiskErrorSince() int64 {
	return r.diskErrSince.Load()
}

// AddSwapError bumps the store-side swap error counter
func (r *Rocks) AddSwapError() {
	r.swapErrors.Add(1)
}

// SwapErrors returns the store-side swap error counter
func (r *Rocks) SwapErrors() uint64 {
	return r.swapErrors.Load()
}

// --- Fault injection (tests only) ---

// SetDebugRIOErrors arms the fault injector to fail the next n store
// operations.
func (r *Rocks) SetDebugRIOErrors(n int32) {
	r.debugRIOErrors.Store(n)
}

// TakeInjectedFault consumes one armed fault, applying the configured
// latency first. Returns true when the next operation must fail without
// being issued.
func (r *Rocks) TakeInjectedFault() bool {
	if r.DebugRIOLatency > 0 {
		time.Sleep(r.DebugRIOLatency)
	}
	for {
		n := r.debugRIOErrors.Load()
		if n <= 0 {
			return false
		}
		if r.debugRIOErrors.CompareAndSwap(n, n-1) {
			return true
		}
	}
}
