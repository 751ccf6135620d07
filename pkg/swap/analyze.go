package swap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rimedb/rime/pkg/metrics"
)

// Client is the slice of client state the analyzer consumes: the
// current command argv, the queued transaction commands when the
// current command is EXEC, and the selected database.
type Client struct {
	Dbid   int
	Argv   [][]byte
	Queued [][][]byte
}

// Analyze produces the ordered key requests for the client's current
// command. For an EXEC wrapper the queued sub-commands are analyzed in
// queue order; the wrapper itself contributes nothing. The result
// references the client's own argument tokens.
func Analyze(c *Client, result *KeyRequests) error {
	result.Prepare(MaxKeyRequestsBuffer)

	if len(c.Argv) > 0 && strings.EqualFold(string(c.Argv[0]), "exec") {
		for _, argv := range c.Queued {
			if err := analyzeSingle(argv, c.Dbid, result); err != nil {
				return err
			}
		}
		return nil
	}
	return analyzeSingle(c.Argv, c.Dbid, result)
}

func analyzeSingle(argv [][]byte, dbid int, result *KeyRequests) error {
	if len(argv) == 0 {
		return nil
	}
	spec := lookupCommand(string(argv[0]))
	if spec == nil {
		return fmt.Errorf("unknown command: %s", argv[0])
	}
	start := result.Len()

	if spec.analyze != nil {
		if err := spec.analyze(spec, argv, dbid, result); err != nil {
			return err
		}
	} else if spec.firstKey > 0 {
		keys := extractArgs(argv, spec.firstKey, spec.lastKey, spec.keyStep)
		result.Prepare(result.Len() + len(keys))
		for _, key := range keys {
			result.Append(KeyRequest{
				Level:          LevelKey,
				Key:            key,
				Intention:      spec.intention,
				IntentionFlags: spec.intentionFlags,
				Dbid:           dbid,
			})
		}
	}

	for i := start; i < result.Len(); i++ {
		metrics.KeyRequestsAnalyzed.WithLabelValues(LevelName(result.At(i).Level)).Inc()
	}
	return nil
}

// extractArgs collects argv tokens in the window (start, end, step).
// Negative start or end indexes are resolved modulo argc; an inverted
// window yields nothing.
func extractArgs(argv [][]byte, start, end, step int) [][]byte {
	argc := len(argv)
	if start < 0 {
		start += argc
	}
	if end < 0 {
		end += argc
	}
	if start > end {
		return nil
	}
	args := make([][]byte, 0, (end-start)/step+1)
	for i := start; i <= end && i < argc; i += step {
		args = append(args, argv[i])
	}
	return args
}

const (
	subkeysInitLen   = 8
	subkeysLinearLen = 1024
)

// growSubkeys doubles the capacity below the linear threshold and grows
// linearly beyond it.
func growSubkeys(subkeys [][]byte) [][]byte {
	capacity := cap(subkeys)
	if capacity < subkeysLinearLen {
		capacity *= 2
	} else {
		capacity += subkeysLinearLen
	}
	grown := make([][]byte, len(subkeys), capacity)
	copy(grown, subkeys)
	return grown
}

// subkeyAnalyzer builds an analyzer that emits one KEY-level request for
// argv[keyIndex] carrying the subkeys found in the configured stride
// window.
func subkeyAnalyzer(keyIndex, firstSubkey, lastSubkey, subkeyStep int) analyzeFunc {
	return func(spec *commandSpec, argv [][]byte, dbid int, result *KeyRequests) error {
		result.Prepare(result.Len() + 1)

		subkeys := make([][]byte, 0, subkeysInitLen)
		last := lastSubkey
		if last < 0 {
			last += len(argv)
		}
		for i := firstSubkey; i <= last && i < len(argv); i += subkeyStep {
			if len(subkeys) == cap(subkeys) {
				subkeys = growSubkeys(subkeys)
			}
			subkeys = append(subkeys, argv[i])
		}

		result.Append(KeyRequest{
			Level:          LevelKey,
			Key:            argv[keyIndex],
			Subkeys:        subkeys,
			Intention:      spec.intention,
			IntentionFlags: spec.intentionFlags,
			Dbid:           dbid,
		})
		return nil
	}
}

// analyzeGlobal emits one SERVER-level request with no key, used by
// flushdb and flushall as a fleet-wide fence.
func analyzeGlobal(spec *commandSpec, argv [][]byte, dbid int, result *KeyRequests) error {
	result.Append(KeyRequest{
		Level:          LevelServer,
		Intention:      spec.intention,
		IntentionFlags: spec.intentionFlags,
		Dbid:           dbid,
	})
	return nil
}

// analyzeSmove emits the source with the moved member marked for
// deletion after load, then the destination with the same member.
func analyzeSmove(spec *commandSpec, argv [][]byte, dbid int, result *KeyRequests) error {
	if len(argv) < 4 {
		return fmt.Errorf("smove: wrong number of arguments")
	}
	result.Prepare(result.Len() + 2)
	result.Append(KeyRequest{
		Level:          LevelKey,
		Key:            argv[1],
		Subkeys:        [][]byte{argv[3]},
		Intention:      IntentionIn,
		IntentionFlags: FlagInDel,
		Dbid:           dbid,
	})
	result.Append(KeyRequest{
		Level:     LevelKey,
		Key:       argv[2],
		Subkeys:   [][]byte{argv[3]},
		Intention: IntentionIn,
		Dbid:      dbid,
	})
	return nil
}

// analyzeStore handles destination-first store commands: the
// destination is loaded for overwrite, every source is loaded plain.
func analyzeStore(spec *commandSpec, argv [][]byte, dbid int, result *KeyRequests) error {
	if len(argv) < 3 {
		return fmt.Errorf("%s: wrong number of arguments", spec.name)
	}
	result.Prepare(result.Len() + len(argv) - 1)
	result.Append(KeyRequest{
		Level:          LevelKey,
		Key:            argv[1],
		Intention:      IntentionIn,
		IntentionFlags: FlagInDel,
		Dbid:           dbid,
	})
	for i := 2; i < len(argv); i++ {
		result.Append(KeyRequest{
			Level:     LevelKey,
			Key:       argv[i],
			Intention: IntentionIn,
			Dbid:      dbid,
		})
	}
	return nil
}

// analyzeSetopStore handles Z{UNION,INTER,DIFF}STORE: the integer after
// the destination declares how many source keys follow.
func analyzeSetopStore(spec *commandSpec, argv [][]byte, dbid int, result *KeyRequests) error {
	if len(argv) < 4 {
		return fmt.Errorf("%s: wrong number of arguments", spec.name)
	}
	setnum, err := strconv.ParseInt(string(argv[2]), 10, 64)
	if err != nil {
		return fmt.Errorf("%s: invalid setnum: %w", spec.name, err)
	}
	if setnum < 1 || int(setnum)+3 > len(argv) {
		return fmt.Errorf("%s: setnum out of range: %d", spec.name, setnum)
	}
	result.Prepare(result.Len() + int(setnum) + 1)
	result.Append(KeyRequest{
		Level:          LevelKey,
		Key:            argv[1],
		Intention:      IntentionIn,
		IntentionFlags: FlagInDel,
		Dbid:           dbid,
	})
	for i := int64(0); i < setnum; i++ {
		result.Append(KeyRequest{
			Level:     LevelKey,
			Key:       argv[i+3],
			Intention: IntentionIn,
			Dbid:      dbid,
		})
	}
	return nil
}

// zaddOptions is the closed set of option tokens that may precede the
// first score of a ZADD.
var zaddOptions = map[string]bool{
	"nx": true, "xx": true, "ch": true, "incr": true, "gt": true, "lt": true,
}

// geoaddOptions is the closed set of option tokens that may precede the
// first coordinate of a GEOADD.
var geoaddOptions = map[string]bool{
	"nx": true, "xx": true, "ch": true,
}

// skipOptions returns the index of the first token at or after start
// that is not in the recognized set. An unrecognized token ends the
// preamble: it is a score or coordinate, not an option.
func skipOptions(argv [][]byte, start int, recognized map[string]bool) int {
	for start < len(argv) && recognized[strings.ToLower(string(argv[start]))] {
		start++
	}
	return start
}

func analyzeZadd(spec *commandSpec, argv [][]byte, dbid int, result *KeyRequests) error {
	firstScore := skipOptions(argv, 2, zaddOptions)
	return subkeyAnalyzer(1, firstScore+1, -1, 2)(spec, argv, dbid, result)
}

func analyzeGeoadd(spec *commandSpec, argv [][]byte, dbid int, result *KeyRequests) error {
	firstScore := skipOptions(argv, 2, geoaddOptions)
	return subkeyAnalyzer(1, firstScore+2, -1, 3)(spec, argv, dbid, result)
}

// analyzeZpop treats the trailing positional argument as the count and
// emits every preceding key marked for deletion after load.
func analyzeZpop(spec *commandSpec, argv [][]byte, dbid int, result *KeyRequests) error {
	result.Prepare(result.Len() + len(argv) - 2)
	for i := 1; i < len(argv)-1; i++ {
		result.Append(KeyRequest{
			Level:          LevelKey,
			Key:            argv[i],
			Intention:      IntentionIn,
			IntentionFlags: FlagInDel,
			Dbid:           dbid,
		})
	}
	return nil
}

func analyzeZrangestore(spec *commandSpec, argv [][]byte, dbid int, result *KeyRequests) error {
	if len(argv) < 3 {
		return fmt.Errorf("zrangestore: wrong number of arguments")
	}
	result.Prepare(result.Len() + 2)
	result.Append(KeyRequest{
		Level:          LevelKey,
		Key:            argv[1],
		Intention:      IntentionIn,
		IntentionFlags: FlagInDel,
		Dbid:           dbid,
	})
	result.Append(KeyRequest{
		Level:     LevelKey,
		Key:       argv[2],
		Intention: IntentionIn,
		Dbid:      dbid,
	})
	return nil
}

// analyzeGeoradius scans for a STORE or STOREDIST target. When present
// the destination is emitted first for overwrite, then the source.
func analyzeGeoradius(spec *commandSpec, argv [][]byte, dbid int, result *KeyRequests) error {
	var storeKey []byte
	for i := 0; i < len(argv); i++ {
		opt := strings.ToLower(string(argv[i]))
		if (opt == "store" || opt == "storedist") && i+1 < len(argv) {
			storeKey = argv[i+1]
			i++
		}
	}
	result.Prepare(result.Len() + 2)
	if storeKey != nil {
		result.Append(KeyRequest{
			Level:          LevelKey,
			Key:            storeKey,
			Intention:      IntentionIn,
			IntentionFlags: FlagInDel,
			Dbid:           dbid,
		})
	}
	result.Append(KeyRequest{
		Level:     LevelKey,
		Key:       argv[1],
		Intention: IntentionIn,
		Dbid:      dbid,
	})
	return nil
}

func analyzeGeosearchstore(spec *commandSpec, argv [][]byte, dbid int, result *KeyRequests) error {
	if len(argv) < 3 {
		return fmt.Errorf("geosearchstore: wrong number of arguments")
	}
	result.Prepare(result.Len() + 2)
	result.Append(KeyRequest{
		Level:          LevelKey,
		Key:            argv[1],
		Intention:      IntentionIn,
		IntentionFlags: FlagInDel,
		Dbid:           dbid,
	})
	result.Append(KeyRequest{
		Level:     LevelKey,
		Key:       argv[2],
		Intention: IntentionIn,
		Dbid:      dbid,
	})
	return nil
}
