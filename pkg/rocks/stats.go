package rocks

import (
	"fmt"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// cumulativeStats is the baseline used to derive the Interval section of
// the stats dump.
type cumulativeStats struct {
	writes      uint64
	ingestBytes uint64
	at          time.Time
}

func humanCount(n float64) string {
	switch {
	case n >= 1e9:
		return fmt.Sprintf("%.0fG", n/1e9)
	case n >= 1e6:
		return fmt.Sprintf("%.0fM", n/1e6)
	case n >= 1e3:
		return fmt.Sprintf("%.0fK", n/1e3)
	default:
		return fmt.Sprintf("%.0f", n)
	}
}

func humanSize(n float64) (string, string) {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.2f", n/(1<<30)), "GB"
	case n >= 1<<20:
		return fmt.Sprintf("%.2f", n/(1<<20)), "MB"
	case n >= 1<<10:
		return fmt.Sprintf("%.2f", n/(1<<10)), "KB"
	default:
		return fmt.Sprintf("%.2f", n), "B"
	}
}

// StatsDump renders the store's textual stats property: per-level
// compaction counters plus cumulative and interval write summaries. The
// result is cached for the info renderer and the interval baseline is
// advanced.
func (r *Rocks) StatsDump() string {
	m := r.DB().Metrics()

	var ingest uint64
	for i := range m.Levels {
		ingest += uint64(m.Levels[i].BytesFlushed)
	}
	writes := r.writeSeq.Load()

	var b strings.Builder
	b.WriteString("** Compaction Stats [default] **\n")
	b.WriteString("Level    Files   Size     Score Read(GB)  Rn(GB) Rnp1(GB) Write(GB) Wnew(GB) Moved(GB) W-Amp Rd(MB/s) Wr(MB/s) Comp(sec) CompMergeCPU(sec) Comp(cnt) Avg(sec) KeyIn KeyDrop\n")
	b.WriteString(strings.Repeat("-", 170) + "\n")
	for i := range m.Levels {
		l := &m.Levels[i]
		sizeNum, sizeUnit := humanSize(float64(l.Size))
		gb := float64(1 << 30)
		fmt.Fprintf(&b, "  L%d      %d/0    %s %s   %.1f     %.1f     %.1f      %.1f      %.1f      %.1f       %.1f   %.1f      0.0      0.0      0.00              0.00      %d    0.000     0      0\n",
			i,
			l.NumFiles,
			sizeNum, sizeUnit,
			l.Score,
			float64(l.BytesRead)/gb,
			float64(l.BytesIn)/gb,
			0.0,
			float64(l.BytesCompacted+l.BytesFlushed)/gb,
			float64(l.BytesFlushed)/gb,
			float64(l.BytesMoved)/gb,
			l.WriteAmp(),
			l.TablesCompacted,
		)
	}

	now := time.Now()
	writeSummary := func(label string, writes, ingest uint64, dur time.Duration) {
		speed := 0.0
		if dur > 0 {
			speed = float64(ingest) / (1 << 20) / dur.Seconds()
		}
		ingestNum, ingestUnit := humanSize(float64(ingest))
		fmt.Fprintf(&b, "%s writes: %s writes, %s keys, %s commit groups, 1.0 writes per commit group, ingest: %s %s, %.2f MB/s\n",
			label, humanCount(float64(writes)), humanCount(float64(writes)),
			humanCount(float64(writes)), ingestNum, ingestUnit, speed)
		fmt.Fprintf(&b, "%s WAL: 0 writes, 0 syncs, 0.00 writes per sync, written: 0.00 GB, 0.00 MB/s\n", label)
		fmt.Fprintf(&b, "%s stall: 00:00:0.000 H:M:S, 0.0 percent\n", label)
	}

	r.statsMu.Lock()
	prev := r.prevStats
	if prev.at.IsZero() {
		prev.at = r.statsSince
	}
	writeSummary("Cumulative", writes, ingest, now.Sub(r.statsSince))
	writeSummary("Interval", writes-prev.writes, ingest-prev.ingestBytes, now.Sub(prev.at))
	dump := b.String()
	r.prevStats = cumulativeStats{writes: writes, ingestBytes: ingest, at: now}
	r.statsCache = dump
	r.statsMu.Unlock()

	return dump
}

// CachedStats returns the last stats dump captured by a stats probe
func (r *Rocks) CachedStats() string {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.statsCache
}

// SetCachedStats stores a stats dump for the info renderer
func (r *Rocks) SetCachedStats(dump string) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	r.statsCache = dump
}

// str2K normalizes a count token to thousands: 1G -> 1e6, 1M -> 1e3,
// 1K -> 1, plain numbers are divided by 1000. Returns -1 on garbage.
func str2K(tok string) float64 {
	for suffix, factor := range map[string]float64{"G": 1e6, "M": 1e3, "K": 1} {
		if i := strings.Index(tok, suffix); i >= 0 {
			v, err := strconv.ParseFloat(tok[:i], 64)
			if err != nil {
				return -1
			}
			return v * factor
		}
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return -1
	}
	return v / 1000
}

// sizeGB converts a size token with its unit token to gigabytes
func sizeGB(val float64, unit string) float64 {
	switch {
	case strings.HasPrefix(unit, "KB"):
		return val / (1 << 20)
	case strings.HasPrefix(unit, "MB"):
		return val / (1 << 10)
	case strings.HasPrefix(unit, "GB"):
		return val
	case strings.HasPrefix(unit, "B"):
		return val / (1 << 30)
	default:
		return val
	}
}

// statsLine locates the remainder of the line following marker
func statsLine(stats, marker string) (string, bool) {
	i := strings.Index(stats, marker)
	if i < 0 {
		return "", false
	}
	rest := stats[i+len(marker):]
	if j := strings.IndexByte(rest, '\n'); j >= 0 {
		rest = rest[:j]
	}
	return rest, true
}

func defaultStr(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// levelInfo projects one per-level compaction line of the stats dump
// into labeled info lines.
func levelInfo(b *strings.Builder, level int, stats string) {
	var fields []string
	var size float64
	var totalFiles, compactingFiles string
	var score, read, rn, rnp1, write, wnew string
	var moved, wAmp, rd, wr, compSec, compCPU string
	var compCnt, avgSec, keyIn, keyDrop string

	line, ok := statsLine(stats, fmt.Sprintf("  L%d", level))
	if ok {
		fields = strings.Fields(line)
	}
	if len(fields) >= 19 {
		if slash := strings.Index(fields[0], "/"); slash >= 0 {
			totalFiles = fields[0][:slash]
			compactingFiles = fields[0][slash+1:]
		}
		if v, err := strconv.ParseFloat(fields[1], 64); err == nil {
			size = sizeGB(v, fields[2])
		}
		score, read, rn, rnp1 = fields[3], fields[4], fields[5], fields[6]
		write, wnew, moved, wAmp = fields[7], fields[8], fields[9], fields[10]
		rd, wr, compSec, compCPU = fields[11], fields[12], fields[13], fields[14]
		compCnt, avgSec, keyIn, keyDrop = fields[15], fields[16], fields[17], fields[18]
	}

	fmt.Fprintf(b, "# L%d\r\n", level)
	fmt.Fprintf(b, "TotalFiles:%s\r\n", defaultStr(totalFiles))
	fmt.Fprintf(b, "CompactingFiles:%s\r\n", defaultStr(compactingFiles))
	fmt.Fprintf(b, "Size(GB):%.2f\r\n", size)
	fmt.Fprintf(b, "Score:%s\r\n", defaultStr(score))
	fmt.Fprintf(b, "Read(GB):%s\r\n", defaultStr(read))
	fmt.Fprintf(b, "Rn(GB):%s\r\n", defaultStr(rn))
	fmt.Fprintf(b, "Rnp1(GB):%s\r\n", defaultStr(rnp1))
	fmt.Fprintf(b, "Write(GB):%s\r\n", defaultStr(write))
	fmt.Fprintf(b, "Wnew(GB):%s\r\n", defaultStr(wnew))
	fmt.Fprintf(b, "Moved(GB):%s\r\n", defaultStr(moved))
	fmt.Fprintf(b, "W-Amp:%s\r\n", defaultStr(wAmp))
	fmt.Fprintf(b, "Rd(MB/s):%s\r\n", defaultStr(rd))
	fmt.Fprintf(b, "Wr(MB/s):%s\r\n", defaultStr(wr))
	fmt.Fprintf(b, "Comp(sec):%s\r\n", defaultStr(compSec))
	fmt.Fprintf(b, "CompMergeCPU(sec):%s\r\n", defaultStr(compCPU))
	fmt.Fprintf(b, "Comp(cnt):%s\r\n", defaultStr(compCnt))
	fmt.Fprintf(b, "Avg(sec):%s\r\n", defaultStr(avgSec))
	fmt.Fprintf(b, "KeyIn(K):%s\r\n", defaultStr(keyIn))
	fmt.Fprintf(b, "KeyDrop(K):%s\r\n", defaultStr(keyDrop))
}

// levelsInfo renders the per-level sections for levels 0 and 1
func levelsInfo(b *strings.Builder, stats string) {
	for i := 0; i < 2; i++ {
		levelInfo(b, i, stats)
	}
}

func trimComma(s string) string {
	return strings.TrimSuffix(s, ",")
}

// writesInfo projects one Cumulative or Interval summary block of the
// stats dump into labeled info lines. typ is "cumulative" or
// "interval".
func writesInfo(b *strings.Builder, typ, stats string) {
	title := strings.ToUpper(typ[:1]) + typ[1:]

	var writesNum, writesKeys, writesCommitGroup, walWrites float64
	var writesPerCommitGroup, ingestSize, ingestUnit, ingestSpeed string
	var walSyncs, walWritesPerSync, walSize, walUnit, walSpeed string
	var stallTime, stallPercent string

	if line, ok := statsLine(stats, title+" writes: "); ok {
		f := strings.Fields(line)
		if len(f) >= 16 {
			writesNum = str2K(f[0])
			writesKeys = str2K(f[2])
			writesCommitGroup = str2K(f[4])
			writesPerCommitGroup = f[7]
			ingestSize = f[13]
			ingestUnit = trimComma(f[14])
			ingestSpeed = f[15]
		}
	}
	if line, ok := statsLine(stats, title+" WAL: "); ok {
		f := strings.Fields(line)
		if len(f) >= 12 {
			walWrites = str2K(f[0])
			walSyncs = trimComma(f[2])
			walWritesPerSync = f[4]
			walSize = f[9]
			walUnit = trimComma(f[10])
			walSpeed = f[11]
		}
	}
	if line, ok := statsLine(stats, title+" stall: "); ok {
		f := strings.Fields(line)
		if len(f) >= 3 {
			stallTime = f[0]
			stallPercent = f[2]
		}
	}

	fmt.Fprintf(b, "# %s\r\n", title)
	fmt.Fprintf(b, "%s_writes_num(K):%.3f\r\n", typ, writesNum)
	fmt.Fprintf(b, "%s_writes_keys(K):%.3f\r\n", typ, writesKeys)
	fmt.Fprintf(b, "%s_writes_commit_group(K):%.3f\r\n", typ, writesCommitGroup)
	fmt.Fprintf(b, "%s_writes_per_commit_group:%s\r\n", typ, defaultStr(writesPerCommitGroup))
	fmt.Fprintf(b, "%s_writes_ingest_size(%s):%s\r\n", typ, defaultStr(ingestUnit), defaultStr(ingestSize))
	fmt.Fprintf(b, "%s_writes_ingest_speed(MB/s):%s\r\n", typ, defaultStr(ingestSpeed))
	fmt.Fprintf(b, "%s_wal_writes(K):%.3f\r\n", typ, walWrites)
	fmt.Fprintf(b, "%s_wal_syncs:%s\r\n", typ, defaultStr(walSyncs))
	fmt.Fprintf(b, "%s_wal_writes_per_sync:%s\r\n", typ, defaultStr(walWritesPerSync))
	fmt.Fprintf(b, "%s_wal_writen_size(%s):%s\r\n", typ, defaultStr(walUnit), defaultStr(walSize))
	fmt.Fprintf(b, "%s_wal_writen_speed(MB/s):%s\r\n", typ, defaultStr(walSpeed))
	fmt.Fprintf(b, "%s_stall_time:%s\r\n", typ, defaultStr(stallTime))
	fmt.Fprintf(b, "%s_stall_percent:%s\r\n", typ, defaultStr(stallPercent))
}

// InfoString renders the store info block: header counters followed by
// the per-level, cumulative and interval sections projected from the
// last captured stats dump.
func (r *Rocks) InfoString() string {
	var (
		usedDBSize      uint64
		usedDBPercent   float64
		diskCapacity    uint64
		usedDiskSize    uint64
		usedDiskPercent float64
	)

	if r.DB() != nil {
		usedDBSize = r.EstimateDBSize()
		if r.cfg.MaxDBSize > 0 {
			usedDBPercent = float64(usedDBSize) * 100 / float64(r.cfg.MaxDBSize)
		}
	}

	var fsStat syscall.Statfs_t
	if err := syscall.Statfs(r.cfg.DataDir, &fsStat); err == nil {
		diskCapacity = fsStat.Blocks * uint64(fsStat.Frsize)
		usedDiskSize = (fsStat.Blocks - fsStat.Bavail) * uint64(fsStat.Frsize)
		if diskCapacity > 0 {
			usedDiskPercent = float64(usedDiskSize) * 100 / float64(diskCapacity)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "sequence:%d\r\n", r.WriteSeq())
	fmt.Fprintf(&b, "used_db_size:%d\r\n", usedDBSize)
	fmt.Fprintf(&b, "max_db_size:%d\r\n", r.cfg.MaxDBSize)
	fmt.Fprintf(&b, "used_percent:%0.2f%%\r\n", usedDBPercent)
	fmt.Fprintf(&b, "used_disk_size:%d\r\n", usedDiskSize)
	fmt.Fprintf(&b, "disk_capacity:%d\r\n", diskCapacity)
	fmt.Fprintf(&b, "used_disk_percent:%0.2f%%\r\n", usedDiskPercent)
	fmt.Fprintf(&b, "swap_error:%d\r\n", r.SwapErrors())

	stats := r.CachedStats()
	levelsInfo(&b, stats)
	writesInfo(&b, "cumulative", stats)
	writesInfo(&b, "interval", stats)
	return b.String()
}
