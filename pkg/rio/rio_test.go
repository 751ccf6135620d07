package rio

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rimedb/rime/pkg/rocks"
)

func openTestRocks(t *testing.T) *rocks.Rocks {
	t.Helper()
	r, err := rocks.Open(rocks.Config{
		DataDir:     filepath.Join(t.TempDir(), "data.rocks"),
		Compression: "snappy",
	})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRIO_PutGetDel(t *testing.T) {
	store := openTestRocks(t)

	if err := NewPut([]byte("rawkey1"), []byte("rawval1")).Do(store); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	get := NewGet([]byte("rawkey1"))
	if err := get.Do(store); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !bytes.Equal(get.Val, []byte("rawval1")) {
		t.Errorf("expected rawval1, got %q", get.Val)
	}

	if err := NewDel([]byte("rawkey1")).Do(store); err != nil {
		t.Fatalf("del failed: %v", err)
	}

	get = NewGet([]byte("rawkey1"))
	if err := get.Do(store); err != nil {
		t.Fatalf("get after del failed: %v", err)
	}
	if get.Val != nil {
		t.Errorf("expected miss after del, got %q", get.Val)
	}
}

func TestRIO_WriteBatchAndMultiGet(t *testing.T) {
	store := openTestRocks(t)

	write := NewWrite([]BatchOp{
		{Key: []byte("rawkey1"), Val: []byte("rawval1")},
		{Key: []byte("rawkey2"), Val: []byte("rawval2")},
	})
	if err := write.Do(store); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	mget := NewMultiGet([][]byte{[]byte("rawkey1"), []byte("rawkey2"), []byte("missing")})
	if err := mget.Do(store); err != nil {
		t.Fatalf("multiget failed: %v", err)
	}
	if len(mget.Vals) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(mget.Vals))
	}
	if !bytes.Equal(mget.Vals[0], []byte("rawval1")) {
		t.Errorf("slot 0: expected rawval1, got %q", mget.Vals[0])
	}
	if !bytes.Equal(mget.Vals[1], []byte("rawval2")) {
		t.Errorf("slot 1: expected rawval2, got %q", mget.Vals[1])
	}
	if mget.Vals[2] != nil {
		t.Errorf("slot 2: expected miss, got %q", mget.Vals[2])
	}
}

func TestRIO_WriteBatchMixed(t *testing.T) {
	store := openTestRocks(t)

	if err := NewPut([]byte("old"), []byte("v")).Do(store); err != nil {
		t.Fatal(err)
	}

	// One atomic batch: delete old, insert new
	write := NewWrite([]BatchOp{
		{Del: true, Key: []byte("old")},
		{Key: []byte("new"), Val: []byte("v2")},
	})
	if err := write.Do(store); err != nil {
		t.Fatalf("mixed write failed: %v", err)
	}

	get := NewGet([]byte("old"))
	get.Do(store)
	if get.Val != nil {
		t.Error("expected old key deleted by batch")
	}
	get = NewGet([]byte("new"))
	get.Do(store)
	if !bytes.Equal(get.Val, []byte("v2")) {
		t.Errorf("expected v2, got %q", get.Val)
	}
}

func TestRIO_Scan(t *testing.T) {
	store := openTestRocks(t)

	for _, kv := range [][2]string{
		{"rawkey1", "rawval1"},
		{"rawkey2", "rawval2"},
		{"other", "x"},
	} {
		if err := NewPut([]byte(kv[0]), []byte(kv[1])).Do(store); err != nil {
			t.Fatal(err)
		}
	}

	scan := NewScan([]byte("rawkey"))
	if err := scan.Do(store); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(scan.Keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(scan.Keys))
	}
	// Ascending key order
	if !bytes.Equal(scan.Keys[0], []byte("rawkey1")) || !bytes.Equal(scan.Keys[1], []byte("rawkey2")) {
		t.Errorf("unexpected scan keys: %q, %q", scan.Keys[0], scan.Keys[1])
	}
	if !bytes.Equal(scan.Vals[0], []byte("rawval1")) || !bytes.Equal(scan.Vals[1], []byte("rawval2")) {
		t.Errorf("unexpected scan vals: %q, %q", scan.Vals[0], scan.Vals[1])
	}
}

func TestRIO_ScanEmpty(t *testing.T) {
	store := openTestRocks(t)

	scan := NewScan([]byte("nothing"))
	if err := scan.Do(store); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(scan.Keys) != 0 {
		t.Errorf("expected empty scan, got %d keys", len(scan.Keys))
	}
}

func TestRIO_DeleteRange(t *testing.T) {
	store := openTestRocks(t)

	for _, key := range []string{"a1", "a2", "a3", "b1"} {
		if err := NewPut([]byte(key), []byte("v")).Do(store); err != nil {
			t.Fatal(err)
		}
	}

	if err := NewDeleteRange([]byte("a"), []byte("b")).Do(store); err != nil {
		t.Fatalf("delete range failed: %v", err)
	}

	scan := NewScan([]byte("a"))
	if err := scan.Do(store); err != nil {
		t.Fatal(err)
	}
	if len(scan.Keys) != 0 {
		t.Errorf("expected a* keys gone, got %d", len(scan.Keys))
	}

	get := NewGet([]byte("b1"))
	get.Do(store)
	if get.Val == nil {
		t.Error("expected b1 to survive the half-open range")
	}
}

func TestRIO_FaultInjection(t *testing.T) {
	store := openTestRocks(t)
	store.SetDebugRIOErrors(2)

	for i := 0; i < 2; i++ {
		r := NewGet([]byte("k"))
		err := r.Do(store)
		if !errors.Is(err, ErrInjectedFault) {
			t.Fatalf("expected injected fault, got %v", err)
		}
		if r.Err == nil {
			t.Error("expected fault recorded on rio")
		}
	}

	// Budget exhausted, operations issue normally again
	if err := NewGet([]byte("k")).Do(store); err != nil {
		t.Fatalf("expected normal operation after budget, got %v", err)
	}
}

func TestRIO_String(t *testing.T) {
	r := NewPut([]byte("k"), []byte("v"))
	if got := r.String(); got == "" {
		t.Error("expected non-empty repr")
	}
	dr := NewDeleteRange([]byte("a"), []byte("b"))
	if got := dr.String(); got == "" {
		t.Error("expected non-empty repr")
	}
}
