package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rimedb/rime/pkg/config"
	"github.com/rimedb/rime/pkg/exec"
	"github.com/rimedb/rime/pkg/rocks"
	"github.com/rimedb/rime/pkg/swap"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "data.rocks")
	cfg.Workers = 2
	cfg.CronTick = config.Duration(time.Hour) // keep the cron quiet

	e, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	e.Start()
	t.Cleanup(func() { e.Stop() })
	return e
}

func TestEngine_SwapOutInCycle(t *testing.T) {
	e := newTestEngine(t)
	db := e.DB(0)
	key := []byte("key1")
	val := &swap.Object{Type: rocks.ObjString, Value: []byte("val1")}
	db.Add(key, val)

	// OUT, waiting on the finish hook
	outDone := make(chan *exec.Request, 1)
	e.Submit(exec.ModeAsync, swap.IntentionOut, 0,
		swap.NewWholeKeyData(db, key, val, nil), nil,
		func(req *exec.Request) { outDone <- req }, nil, 0)

	req := waitReq(t, outDone)
	if req.Err != nil {
		t.Fatalf("swap-out failed: %v", req.Err)
	}
	if db.Lookup(key) != nil || db.LookupEvict(key) == nil {
		t.Fatal("expected evicted state after swap-out")
	}

	// IN via parallel-sync, finished inline by Submit
	req = e.Submit(exec.ModeParallelSync, swap.IntentionIn, 0,
		swap.NewWholeKeyData(db, key, nil, db.LookupEvict(key)), nil, nil, nil, 0)
	if req.Err != nil {
		t.Fatalf("swap-in failed: %v", req.Err)
	}
	hot := db.Lookup(key)
	if hot == nil || string(hot.Value) != "val1" {
		t.Fatalf("expected hot val1 after swap-in, got %v", hot)
	}
	if db.LookupEvict(key) != nil {
		t.Error("evict placeholder survived swap-in")
	}
}

func TestEngine_UtilTask(t *testing.T) {
	e := newTestEngine(t)

	done := make(chan *exec.Request, 1)
	e.SubmitUtilTask(swap.GetStatsTask, func(req *exec.Request) { done <- req }, nil)

	req := waitReq(t, done)
	if req.Err != nil {
		t.Fatalf("stats task failed: %v", req.Err)
	}
	if req.StatsDump == "" {
		t.Error("expected stats dump")
	}
	if e.InfoString() == "" {
		t.Error("expected info string")
	}
}

func TestEngine_FlushAll(t *testing.T) {
	e := newTestEngine(t)
	oldDir := e.Rocks.Dir()
	oldEpoch := e.Rocks.Epoch()

	if err := e.FlushAll(); err != nil {
		t.Fatalf("flush all failed: %v", err)
	}
	if e.Rocks.Epoch() != oldEpoch+1 {
		t.Errorf("expected epoch bump, got %d -> %d", oldEpoch, e.Rocks.Epoch())
	}
	if _, err := os.Stat(oldDir); !os.IsNotExist(err) {
		t.Error("old epoch dir survived flush all")
	}
}

func TestEngine_Analyze(t *testing.T) {
	e := newTestEngine(t)

	var result swap.KeyRequests
	c := &swap.Client{Argv: [][]byte{[]byte("GET"), []byte("KEY")}}
	if err := e.Analyze(c, &result); err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if result.Len() != 1 {
		t.Fatalf("expected 1 request, got %d", result.Len())
	}
}

func waitReq(t *testing.T, ch <-chan *exec.Request) *exec.Request {
	t.Helper()
	select {
	case req := <-ch:
		return req
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for request")
		return nil
	}
}
