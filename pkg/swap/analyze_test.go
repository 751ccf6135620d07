package swap

import (
	"testing"
)

func argv(tokens ...string) [][]byte {
	out := make([][]byte, len(tokens))
	for i, tok := range tokens {
		out[i] = []byte(tok)
	}
	return out
}

func analyzeArgv(t *testing.T, tokens ...string) *KeyRequests {
	t.Helper()
	var result KeyRequests
	if err := Analyze(&Client{Argv: argv(tokens...)}, &result); err != nil {
		t.Fatalf("analyze %v failed: %v", tokens, err)
	}
	return &result
}

func assertKey(t *testing.T, kr *KeyRequest, key string, subkeys ...string) {
	t.Helper()
	if kr.Level != LevelKey {
		t.Errorf("expected KEY level, got %s", LevelName(kr.Level))
	}
	if string(kr.Key) != key {
		t.Errorf("expected key %q, got %q", key, kr.Key)
	}
	if kr.NumSubkeys != len(subkeys) || len(kr.Subkeys) != len(subkeys) {
		t.Fatalf("expected %d subkeys, got %d", len(subkeys), kr.NumSubkeys)
	}
	for i, sub := range subkeys {
		if string(kr.Subkeys[i]) != sub {
			t.Errorf("subkey %d: expected %q, got %q", i, sub, kr.Subkeys[i])
		}
	}
}

func TestAnalyze_NoKey(t *testing.T) {
	result := analyzeArgv(t, "PING")
	if result.Len() != 0 {
		t.Errorf("expected no requests, got %d", result.Len())
	}
}

func TestAnalyze_SingleKey(t *testing.T) {
	result := analyzeArgv(t, "GET", "KEY")
	if result.Len() != 1 {
		t.Fatalf("expected 1 request, got %d", result.Len())
	}
	assertKey(t, result.At(0), "KEY")
	if result.At(0).Intention != IntentionIn {
		t.Error("expected IN intention")
	}
}

func TestAnalyze_MultipleKeys(t *testing.T) {
	result := analyzeArgv(t, "MGET", "KEY1", "KEY2")
	if result.Len() != 2 {
		t.Fatalf("expected 2 requests, got %d", result.Len())
	}
	assertKey(t, result.At(0), "KEY1")
	assertKey(t, result.At(1), "KEY2")
}

func TestAnalyze_HashSubkeys(t *testing.T) {
	result := analyzeArgv(t, "HMGET", "KEY", "F1", "F2", "F3")
	if result.Len() != 1 {
		t.Fatalf("expected 1 request, got %d", result.Len())
	}
	assertKey(t, result.At(0), "KEY", "F1", "F2", "F3")
}

func TestAnalyze_HsetStride(t *testing.T) {
	result := analyzeArgv(t, "HSET", "KEY", "F1", "V1", "F2", "V2")
	if result.Len() != 1 {
		t.Fatalf("expected 1 request, got %d", result.Len())
	}
	assertKey(t, result.At(0), "KEY", "F1", "F2")
}

func TestAnalyze_MultiExec(t *testing.T) {
	c := &Client{
		Argv: argv("EXEC"),
		Queued: [][][]byte{
			argv("PING"),
			argv("MGET", "KEY1", "KEY2"),
			argv("SET", "KEY3", "VAL3"),
		},
	}
	var result KeyRequests
	if err := Analyze(c, &result); err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if result.Len() != 3 {
		t.Fatalf("expected 3 requests, got %d", result.Len())
	}
	assertKey(t, result.At(0), "KEY1")
	assertKey(t, result.At(1), "KEY2")
	assertKey(t, result.At(2), "KEY3")
}

func TestAnalyze_MultiExecHashSubkeys(t *testing.T) {
	c := &Client{
		Argv: argv("EXEC"),
		Queued: [][][]byte{
			argv("PING"),
			argv("MGET", "KEY1", "KEY2"),
			argv("HMGET", "HASH", "F1", "F2", "F3"),
		},
	}
	var result KeyRequests
	if err := Analyze(c, &result); err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if result.Len() != 3 {
		t.Fatalf("expected 3 requests, got %d", result.Len())
	}
	assertKey(t, result.At(0), "KEY1")
	assertKey(t, result.At(1), "KEY2")
	assertKey(t, result.At(2), "HASH", "F1", "F2", "F3")
}

func TestAnalyze_MultiExecGlobal(t *testing.T) {
	c := &Client{
		Argv: argv("EXEC"),
		Queued: [][][]byte{
			argv("PING"),
			argv("FLUSHDB"),
		},
	}
	var result KeyRequests
	if err := Analyze(c, &result); err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if result.Len() != 1 {
		t.Fatalf("expected 1 request, got %d", result.Len())
	}
	kr := result.At(0)
	if kr.Level != LevelServer {
		t.Errorf("expected SERVER level, got %s", LevelName(kr.Level))
	}
	if kr.Key != nil {
		t.Errorf("expected no key on server-level request, got %q", kr.Key)
	}
}

func TestAnalyze_Smove(t *testing.T) {
	result := analyzeArgv(t, "SMOVE", "SRC", "DST", "MEMBER")
	if result.Len() != 2 {
		t.Fatalf("expected 2 requests, got %d", result.Len())
	}
	assertKey(t, result.At(0), "SRC", "MEMBER")
	if result.At(0).IntentionFlags&FlagInDel == 0 {
		t.Error("expected IN_DEL on source")
	}
	assertKey(t, result.At(1), "DST", "MEMBER")
	if result.At(1).IntentionFlags != 0 {
		t.Error("expected no flags on destination")
	}
}

func TestAnalyze_ZaddOptionPreamble(t *testing.T) {
	result := analyzeArgv(t, "ZADD", "K", "NX", "CH", "1", "a", "2", "b")
	if result.Len() != 1 {
		t.Fatalf("expected 1 request, got %d", result.Len())
	}
	assertKey(t, result.At(0), "K", "a", "b")
}

func TestAnalyze_ZaddNoOptions(t *testing.T) {
	result := analyzeArgv(t, "ZADD", "K", "1", "a", "2", "b")
	if result.Len() != 1 {
		t.Fatalf("expected 1 request, got %d", result.Len())
	}
	assertKey(t, result.At(0), "K", "a", "b")
}

func TestAnalyze_GeoaddOptionPreamble(t *testing.T) {
	result := analyzeArgv(t, "GEOADD", "K", "XX", "13.361389", "38.115556", "palermo")
	if result.Len() != 1 {
		t.Fatalf("expected 1 request, got %d", result.Len())
	}
	assertKey(t, result.At(0), "K", "palermo")
}

func TestAnalyze_Sinterstore(t *testing.T) {
	result := analyzeArgv(t, "SINTERSTORE", "DST", "S1", "S2")
	if result.Len() != 3 {
		t.Fatalf("expected 3 requests, got %d", result.Len())
	}
	assertKey(t, result.At(0), "DST")
	if result.At(0).IntentionFlags&FlagInDel == 0 {
		t.Error("expected IN_DEL on destination")
	}
	assertKey(t, result.At(1), "S1")
	assertKey(t, result.At(2), "S2")
}

func TestAnalyze_Zunionstore(t *testing.T) {
	result := analyzeArgv(t, "ZUNIONSTORE", "DST", "2", "Z1", "Z2")
	if result.Len() != 3 {
		t.Fatalf("expected 3 requests, got %d", result.Len())
	}
	assertKey(t, result.At(0), "DST")
	assertKey(t, result.At(1), "Z1")
	assertKey(t, result.At(2), "Z2")
}

func TestAnalyze_ZunionstoreBadSetnum(t *testing.T) {
	var result KeyRequests
	if err := Analyze(&Client{Argv: argv("ZUNIONSTORE", "DST", "0", "Z1")}, &result); err == nil {
		t.Error("expected error for setnum < 1")
	}
	result = KeyRequests{}
	if err := Analyze(&Client{Argv: argv("ZUNIONSTORE", "DST", "3", "Z1")}, &result); err == nil {
		t.Error("expected error for setnum exceeding argc")
	}
}

func TestAnalyze_Zpop(t *testing.T) {
	result := analyzeArgv(t, "ZPOPMIN", "Z1", "Z2", "3")
	if result.Len() != 2 {
		t.Fatalf("expected 2 requests, got %d", result.Len())
	}
	assertKey(t, result.At(0), "Z1")
	assertKey(t, result.At(1), "Z2")
	for i := 0; i < result.Len(); i++ {
		if result.At(i).IntentionFlags&FlagInDel == 0 {
			t.Errorf("request %d: expected IN_DEL", i)
		}
	}
}

func TestAnalyze_GeoradiusStore(t *testing.T) {
	result := analyzeArgv(t, "GEORADIUS", "SRC", "15", "37", "200", "km", "STORE", "DST")
	if result.Len() != 2 {
		t.Fatalf("expected 2 requests, got %d", result.Len())
	}
	// Destination first, loaded for overwrite
	assertKey(t, result.At(0), "DST")
	if result.At(0).IntentionFlags&FlagInDel == 0 {
		t.Error("expected IN_DEL on store target")
	}
	assertKey(t, result.At(1), "SRC")
}

func TestAnalyze_GeoradiusNoStore(t *testing.T) {
	result := analyzeArgv(t, "GEORADIUS", "SRC", "15", "37", "200", "km")
	if result.Len() != 1 {
		t.Fatalf("expected 1 request, got %d", result.Len())
	}
	assertKey(t, result.At(0), "SRC")
}

func TestAnalyze_Geosearchstore(t *testing.T) {
	result := analyzeArgv(t, "GEOSEARCHSTORE", "DST", "SRC", "FROMMEMBER", "m", "BYRADIUS", "10", "km")
	if result.Len() != 2 {
		t.Fatalf("expected 2 requests, got %d", result.Len())
	}
	assertKey(t, result.At(0), "DST")
	assertKey(t, result.At(1), "SRC")
}

func TestAnalyze_GeodistWindow(t *testing.T) {
	// Trailing unit argument is excluded by the negative end index
	result := analyzeArgv(t, "GEODIST", "K", "m1", "m2", "km")
	if result.Len() != 1 {
		t.Fatalf("expected 1 request, got %d", result.Len())
	}
	assertKey(t, result.At(0), "K", "m1", "m2")
}

func TestAnalyze_Del(t *testing.T) {
	result := analyzeArgv(t, "DEL", "K1", "K2")
	if result.Len() != 2 {
		t.Fatalf("expected 2 requests, got %d", result.Len())
	}
	for i := 0; i < result.Len(); i++ {
		kr := result.At(i)
		if kr.Intention != IntentionDel {
			t.Errorf("request %d: expected DEL intention", i)
		}
		if kr.IntentionFlags&FlagDelAsync == 0 {
			t.Errorf("request %d: expected DEL_ASYNC", i)
		}
	}
}

func TestAnalyze_SubkeyInvariant(t *testing.T) {
	// Every produced request keeps NumSubkeys consistent and non-nil
	// subkey entries
	cases := [][]string{
		{"HMGET", "K", "F1", "F2"},
		{"ZADD", "K", "GT", "1", "a"},
		{"SMOVE", "S", "D", "m"},
		{"SMEMBERS", "K"},
		{"MGET", "K1", "K2", "K3"},
	}
	for _, c := range cases {
		result := analyzeArgv(t, c...)
		for i := 0; i < result.Len(); i++ {
			kr := result.At(i)
			if len(kr.Subkeys) != kr.NumSubkeys {
				t.Errorf("%v: request %d: len(subkeys)=%d != num=%d",
					c, i, len(kr.Subkeys), kr.NumSubkeys)
			}
			for j, sub := range kr.Subkeys {
				if sub == nil {
					t.Errorf("%v: request %d: nil subkey %d", c, i, j)
				}
			}
		}
	}
}

func TestExtractArgs(t *testing.T) {
	args := argv("CMD", "a", "b", "c", "d")

	got := extractArgs(args, 1, -1, 1)
	if len(got) != 4 {
		t.Errorf("expected 4 args, got %d", len(got))
	}

	got = extractArgs(args, 1, -1, 2)
	if len(got) != 2 || string(got[0]) != "a" || string(got[1]) != "c" {
		t.Errorf("unexpected stride extraction: %q", got)
	}

	// Inverted window yields nothing
	got = extractArgs(args, 3, 1, 1)
	if got != nil {
		t.Errorf("expected nil for inverted window, got %q", got)
	}
}
