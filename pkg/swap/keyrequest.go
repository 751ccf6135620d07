package swap

// Level is the fencing scope of a key request
type Level int

const (
	// LevelServer fences the whole server (e.g. flush-all)
	LevelServer Level = iota
	// LevelDB fences one logical database
	LevelDB
	// LevelKey fences one key
	LevelKey
)

// LevelName returns the printable name of a request level
func LevelName(l Level) string {
	switch l {
	case LevelServer:
		return "server"
	case LevelDB:
		return "db"
	case LevelKey:
		return "key"
	default:
		return "unknown"
	}
}

// KeyRequest describes one logical key access produced by command
// analysis. Key and Subkeys reference the client's own argument tokens;
// a scheduler that outlives the client must Copy the request first.
// An empty Subkeys on a KEY-level request means whole-key intent.
type KeyRequest struct {
	Level          Level
	Key            []byte
	Subkeys        [][]byte
	NumSubkeys     int
	Intention      Intention
	IntentionFlags uint32
	Dbid           int
}

// Copy deep-copies src into dst: the subkey array is duplicated while
// the referenced tokens stay shared.
func (dst *KeyRequest) Copy(src *KeyRequest) {
	dst.Key = src.Key
	if src.NumSubkeys > 0 {
		dst.Subkeys = make([][]byte, src.NumSubkeys)
		copy(dst.Subkeys, src.Subkeys)
	} else {
		dst.Subkeys = nil
	}
	dst.NumSubkeys = src.NumSubkeys
	dst.Level = src.Level
	dst.Intention = src.Intention
	dst.IntentionFlags = src.IntentionFlags
	dst.Dbid = src.Dbid
}

// Move transfers ownership of src into dst and nulls the source
func (dst *KeyRequest) Move(src *KeyRequest) {
	dst.Key = src.Key
	src.Key = nil
	dst.Subkeys = src.Subkeys
	src.Subkeys = nil
	dst.NumSubkeys = src.NumSubkeys
	src.NumSubkeys = 0
	dst.Level = src.Level
	dst.Intention = src.Intention
	dst.IntentionFlags = src.IntentionFlags
	dst.Dbid = src.Dbid
}

// Deinit releases the request's references
func (kr *KeyRequest) Deinit() {
	kr.Key = nil
	for i := range kr.Subkeys {
		kr.Subkeys[i] = nil
	}
	kr.Subkeys = nil
	kr.NumSubkeys = 0
}

// MaxKeyRequestsBuffer is the inline capacity of a KeyRequests result
const MaxKeyRequestsBuffer = 8

// resultGrowLinear caps the geometric growth of the result array
const resultGrowLinear = 8192

// KeyRequests is the append-only result container of one analysis pass.
// It starts on an inline buffer and spills to the heap on growth.
type KeyRequests struct {
	buffer   [MaxKeyRequestsBuffer]KeyRequest
	requests []KeyRequest
	size     int
	num      int
}

// Prepare ensures capacity for at least num requests
func (r *KeyRequests) Prepare(num int) {
	if r.requests == nil {
		r.requests = r.buffer[:]
		r.size = MaxKeyRequestsBuffer
	}
	if num <= r.size {
		return
	}
	grown := make([]KeyRequest, num)
	copy(grown, r.requests[:r.num])
	r.requests = grown
	r.size = num
}

// Append adds one request, growing geometrically up to the linear
// threshold and linearly beyond it. Key and subkey ownership moves into
// the container.
func (r *KeyRequests) Append(kr KeyRequest) {
	if r.requests == nil || r.num == r.size {
		grow := r.size
		if grow > resultGrowLinear {
			grow = resultGrowLinear
		}
		if grow == 0 {
			grow = MaxKeyRequestsBuffer
		}
		r.Prepare(r.size + grow)
	}
	kr.NumSubkeys = len(kr.Subkeys)
	r.requests[r.num] = kr
	r.num++
}

// Len returns the number of requests
func (r *KeyRequests) Len() int {
	return r.num
}

// At returns the i-th request
func (r *KeyRequests) At(i int) *KeyRequest {
	return &r.requests[i]
}

// Release deinits every held request
func (r *KeyRequests) Release() {
	for i := 0; i < r.num; i++ {
		r.requests[i].Deinit()
	}
	r.num = 0
}
