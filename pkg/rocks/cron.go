package rocks

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rimedb/rime/pkg/events"
	"github.com/rimedb/rime/pkg/metrics"
)

const (
	diskUsedUpdatePeriod   = 60
	diskHealthDetectPeriod = 1
)

// Cron drives the store's periodic maintenance: disk usage sampling,
// data-directory health probing and stats-task submission. One Tick is
// one unit of the server tick rate.
type Cron struct {
	rocks       *Rocks
	statsEvery  int
	submitStats func()
	loops       int64
}

// NewCron creates the store cron. submitStats is invoked every
// statsEvery ticks to schedule a stats probe on the worker pool.
func NewCron(r *Rocks, statsEvery int, submitStats func()) *Cron {
	return &Cron{
		rocks:       r,
		statsEvery:  statsEvery,
		submitStats: submitStats,
	}
}

// Tick runs one cron iteration
func (c *Cron) Tick() {
	r := c.rocks

	if c.loops%diskUsedUpdatePeriod == 0 {
		used := r.TotalSSTSize()
		r.diskUsed.Store(used)
		metrics.StoreDiskUsed.Set(float64(used))
		if r.cfg.MaxDBSize > 0 && used > r.cfg.MaxDBSize {
			r.logger.Warn().
				Uint64("disk_used", used).
				Uint64("max_db_size", r.cfg.MaxDBSize).
				Msg("Store disk usage exceeds max_db_size")
		}
	}

	if c.loops%diskHealthDetectPeriod == 0 {
		c.probeDisk()
	}

	if c.submitStats != nil && c.loops%int64(c.statsEvery) == 0 {
		c.submitStats()
	}

	c.loops++
}

// probeDisk writes a monotonically increasing timestamp to the health
// file under the data root. A write or flush failure flips the sticky
// disk_error flag; the first successful probe clears it. Both edges are
// logged.
func (c *Cron) probeDisk() {
	r := c.rocks
	path := filepath.Join(r.cfg.DataDir, healthProbeFile)

	failed := false
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		failed = true
	} else {
		if _, werr := fmt.Fprintf(f, "%d", time.Now().UnixMilli()); werr != nil {
			failed = true
		}
		if serr := f.Sync(); serr != nil && !failed {
			failed = true
		}
		f.Close()
	}

	if failed {
		if !r.diskErr.Load() {
			r.diskErr.Store(true)
			r.diskErrSince.Store(time.Now().UnixMilli())
			metrics.StoreDiskError.Set(1)
			r.logger.Warn().Err(err).Str("path", path).Msg("Detected store disk failure")
			if r.cfg.Events != nil {
				r.cfg.Events.Publish(&events.Event{Type: events.EventDiskError, Message: path})
			}
		}
		return
	}

	if r.diskErr.Load() {
		r.diskErr.Store(false)
		r.diskErrSince.Store(0)
		metrics.StoreDiskError.Set(0)
		r.logger.Warn().Msg("Detected store disk recovered")
		if r.cfg.Events != nil {
			r.cfg.Events.Publish(&events.Event{Type: events.EventDiskRecovered})
		}
	}
}

// Run ticks the cron at the given rate until stopCh closes
func (c *Cron) Run(tick time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Tick()
		case <-stopCh:
			return
		}
	}
}
