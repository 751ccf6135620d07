package swap

import (
	"fmt"
	"testing"
)

func TestKeyRequests_InlineBuffer(t *testing.T) {
	var result KeyRequests
	for i := 0; i < MaxKeyRequestsBuffer; i++ {
		result.Append(KeyRequest{Level: LevelKey, Key: []byte{byte(i)}})
	}
	if result.Len() != MaxKeyRequestsBuffer {
		t.Fatalf("expected %d requests, got %d", MaxKeyRequestsBuffer, result.Len())
	}
	// Still backed by the inline buffer
	if &result.requests[0] != &result.buffer[0] {
		t.Error("expected inline buffer backing before spill")
	}
}

func TestKeyRequests_SpillsToHeap(t *testing.T) {
	var result KeyRequests
	total := MaxKeyRequestsBuffer*4 + 3
	for i := 0; i < total; i++ {
		result.Append(KeyRequest{Level: LevelKey, Key: []byte(fmt.Sprintf("key%d", i))})
	}
	if result.Len() != total {
		t.Fatalf("expected %d requests, got %d", total, result.Len())
	}
	// Inline content survived the spill
	for i := 0; i < total; i++ {
		want := fmt.Sprintf("key%d", i)
		if string(result.At(i).Key) != want {
			t.Fatalf("request %d: expected %q, got %q", i, want, result.At(i).Key)
		}
	}
	if &result.requests[0] == &result.buffer[0] {
		t.Error("expected heap backing after spill")
	}
}

func TestKeyRequests_GrowthPolicy(t *testing.T) {
	var result KeyRequests
	result.Prepare(MaxKeyRequestsBuffer)

	// Doubling below the linear threshold
	result.Append(KeyRequest{})
	for result.size <= resultGrowLinear {
		prev := result.size
		for result.num < result.size {
			result.Append(KeyRequest{})
		}
		result.Append(KeyRequest{})
		if result.size != prev*2 && result.size != prev+resultGrowLinear {
			t.Fatalf("unexpected growth %d -> %d", prev, result.size)
		}
		if result.size > 4*resultGrowLinear {
			break
		}
	}
}

func TestKeyRequest_CopyAndMove(t *testing.T) {
	src := KeyRequest{
		Level:          LevelKey,
		Key:            []byte("k"),
		Subkeys:        [][]byte{[]byte("s1"), []byte("s2")},
		NumSubkeys:     2,
		Intention:      IntentionIn,
		IntentionFlags: FlagInDel,
		Dbid:           3,
	}

	var copied KeyRequest
	copied.Copy(&src)
	if string(copied.Key) != "k" || copied.NumSubkeys != 2 || copied.Dbid != 3 {
		t.Error("copy lost fields")
	}
	// The subkey array is duplicated, the tokens stay shared
	copied.Subkeys[0] = []byte("other")
	if string(src.Subkeys[0]) != "s1" {
		t.Error("copy shares the subkey array with the source")
	}

	var moved KeyRequest
	moved.Move(&src)
	if string(moved.Key) != "k" || moved.NumSubkeys != 2 {
		t.Error("move lost fields")
	}
	if src.Key != nil || src.Subkeys != nil || src.NumSubkeys != 0 {
		t.Error("move left the source populated")
	}
}

func TestKeyRequests_Release(t *testing.T) {
	var result KeyRequests
	result.Append(KeyRequest{
		Level:   LevelKey,
		Key:     []byte("k"),
		Subkeys: [][]byte{[]byte("s")},
	})
	result.Release()
	if result.Len() != 0 {
		t.Errorf("expected empty result after release, got %d", result.Len())
	}
}
