package swap

import "strings"

// analyzeFunc is a per-command analyzer
type analyzeFunc func(spec *commandSpec, argv [][]byte, dbid int, result *KeyRequests) error

// commandSpec declares how one command is analyzed. Commands without a
// per-type analyzer use the generic key-position path: one whole-key
// request per declared position, inheriting the command's intention and
// flags.
type commandSpec struct {
	name           string
	intention      Intention
	intentionFlags uint32

	// Generic path: argv key positions. firstKey 0 means no keys.
	firstKey int
	lastKey  int
	keyStep  int

	// Per-type path, takes precedence when set
	analyze analyzeFunc
}

var commandTable = map[string]*commandSpec{}

func register(spec *commandSpec) {
	commandTable[spec.name] = spec
}

func lookupCommand(name string) *commandSpec {
	return commandTable[strings.ToLower(name)]
}

func init() {
	// No key access
	register(&commandSpec{name: "ping"})
	register(&commandSpec{name: "echo"})
	register(&commandSpec{name: "select"})
	register(&commandSpec{name: "multi"})
	register(&commandSpec{name: "discard"})
	register(&commandSpec{name: "expired"})

	// Server-wide fences
	register(&commandSpec{name: "flushdb", intention: IntentionIn, analyze: analyzeGlobal})
	register(&commandSpec{name: "flushall", intention: IntentionIn, analyze: analyzeGlobal})

	// Generic whole-key commands
	register(&commandSpec{name: "get", intention: IntentionIn, firstKey: 1, lastKey: 1, keyStep: 1})
	register(&commandSpec{name: "getset", intention: IntentionIn, intentionFlags: FlagInDel, firstKey: 1, lastKey: 1, keyStep: 1})
	register(&commandSpec{name: "set", intention: IntentionIn, intentionFlags: FlagInDel, firstKey: 1, lastKey: 1, keyStep: 1})
	register(&commandSpec{name: "setex", intention: IntentionIn, intentionFlags: FlagInDel, firstKey: 1, lastKey: 1, keyStep: 1})
	register(&commandSpec{name: "append", intention: IntentionIn, firstKey: 1, lastKey: 1, keyStep: 1})
	register(&commandSpec{name: "strlen", intention: IntentionIn, firstKey: 1, lastKey: 1, keyStep: 1})
	register(&commandSpec{name: "exists", intention: IntentionIn, firstKey: 1, lastKey: -1, keyStep: 1})
	register(&commandSpec{name: "mget", intention: IntentionIn, firstKey: 1, lastKey: -1, keyStep: 1})
	register(&commandSpec{name: "mset", intention: IntentionIn, intentionFlags: FlagInDel, firstKey: 1, lastKey: -1, keyStep: 2})
	register(&commandSpec{name: "incr", intention: IntentionIn, firstKey: 1, lastKey: 1, keyStep: 1})
	register(&commandSpec{name: "incrby", intention: IntentionIn, firstKey: 1, lastKey: 1, keyStep: 1})
	register(&commandSpec{name: "decr", intention: IntentionIn, firstKey: 1, lastKey: 1, keyStep: 1})
	register(&commandSpec{name: "del", intention: IntentionDel, intentionFlags: FlagDelAsync, firstKey: 1, lastKey: -1, keyStep: 1})
	register(&commandSpec{name: "unlink", intention: IntentionDel, intentionFlags: FlagDelAsync, firstKey: 1, lastKey: -1, keyStep: 1})
	register(&commandSpec{name: "type", intention: IntentionNop, firstKey: 1, lastKey: 1, keyStep: 1})
	register(&commandSpec{name: "lpush", intention: IntentionIn, firstKey: 1, lastKey: 1, keyStep: 1})
	register(&commandSpec{name: "rpush", intention: IntentionIn, firstKey: 1, lastKey: 1, keyStep: 1})
	register(&commandSpec{name: "lrange", intention: IntentionIn, firstKey: 1, lastKey: 1, keyStep: 1})

	// Hash
	register(&commandSpec{name: "hset", intention: IntentionIn, analyze: subkeyAnalyzer(1, 2, -1, 2)})
	register(&commandSpec{name: "hmset", intention: IntentionIn, analyze: subkeyAnalyzer(1, 2, -1, 2)})
	register(&commandSpec{name: "hget", intention: IntentionIn, analyze: subkeyAnalyzer(1, 2, -1, 1)})
	register(&commandSpec{name: "hmget", intention: IntentionIn, analyze: subkeyAnalyzer(1, 2, -1, 1)})
	register(&commandSpec{name: "hdel", intention: IntentionIn, analyze: subkeyAnalyzer(1, 2, -1, 1)})
	register(&commandSpec{name: "hgetall", intention: IntentionIn, firstKey: 1, lastKey: 1, keyStep: 1})

	// Set
	register(&commandSpec{name: "smembers", intention: IntentionIn, analyze: subkeyAnalyzer(1, 2, -1, 1)})
	register(&commandSpec{name: "sismember", intention: IntentionIn, analyze: subkeyAnalyzer(1, 2, -1, 1)})
	register(&commandSpec{name: "sadd", intention: IntentionIn, analyze: subkeyAnalyzer(1, 2, -1, 1)})
	register(&commandSpec{name: "srem", intention: IntentionIn, analyze: subkeyAnalyzer(1, 2, -1, 1)})
	register(&commandSpec{name: "smove", intention: IntentionIn, analyze: analyzeSmove})
	register(&commandSpec{name: "sinterstore", intention: IntentionIn, analyze: analyzeStore})

	// Sorted set
	register(&commandSpec{name: "zscore", intention: IntentionIn, analyze: subkeyAnalyzer(1, 2, -1, 1)})
	register(&commandSpec{name: "zincrby", intention: IntentionIn, analyze: subkeyAnalyzer(1, 3, -1, 2)})
	register(&commandSpec{name: "zadd", intention: IntentionIn, analyze: analyzeZadd})
	register(&commandSpec{name: "zrem", intention: IntentionIn, analyze: subkeyAnalyzer(1, 2, -1, 1)})
	register(&commandSpec{name: "zunionstore", intention: IntentionIn, analyze: analyzeSetopStore})
	register(&commandSpec{name: "zinterstore", intention: IntentionIn, analyze: analyzeSetopStore})
	register(&commandSpec{name: "zdiffstore", intention: IntentionIn, analyze: analyzeSetopStore})
	register(&commandSpec{name: "zpopmin", intention: IntentionIn, analyze: analyzeZpop})
	register(&commandSpec{name: "zpopmax", intention: IntentionIn, analyze: analyzeZpop})
	register(&commandSpec{name: "zrangestore", intention: IntentionIn, analyze: analyzeZrangestore})

	// Geo
	register(&commandSpec{name: "geoadd", intention: IntentionIn, analyze: analyzeGeoadd})
	register(&commandSpec{name: "geodist", intention: IntentionIn, analyze: subkeyAnalyzer(1, 2, -2, 1)})
	register(&commandSpec{name: "geohash", intention: IntentionIn, analyze: subkeyAnalyzer(1, 2, -1, 1)})
	register(&commandSpec{name: "geopos", intention: IntentionIn, analyze: subkeyAnalyzer(1, 2, -1, 1)})
	register(&commandSpec{name: "georadius", intention: IntentionIn, analyze: analyzeGeoradius})
	register(&commandSpec{name: "georadiusbymember", intention: IntentionIn, analyze: analyzeGeoradius})
	register(&commandSpec{name: "geosearchstore", intention: IntentionIn, analyze: analyzeGeosearchstore})
}
