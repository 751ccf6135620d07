package swap

import (
	"fmt"
	"sync"
	"time"

	"github.com/rimedb/rime/pkg/rocks"
)

// Object is a hot in-memory value
type Object struct {
	Type  rocks.ObjectType
	Value []byte
}

// EstimateSize approximates the memory held by the object
func (o *Object) EstimateSize() int64 {
	if o == nil {
		return 0
	}
	return int64(len(o.Value)) + 16
}

// Evict is the in-memory marker for a key whose value lives on disk
type Evict struct {
	Type      rocks.ObjectType
	EvictedAt time.Time
}

// DB is one logical database's hot keyspace. For any key, the hot
// object and the evict placeholder are mutually exclusive at any
// instant visible to the command pipeline; only the pipeline thread
// mutates either map.
type DB struct {
	ID int

	mu      sync.RWMutex
	hot     map[string]*Object
	evicted map[string]*Evict
}

// NewDB creates an empty hot keyspace
func NewDB(id int) *DB {
	return &DB{
		ID:      id,
		hot:     make(map[string]*Object),
		evicted: make(map[string]*Evict),
	}
}

// Lookup returns the hot object for key, or nil
func (db *DB) Lookup(key []byte) *Object {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.hot[string(key)]
}

// LookupEvict returns the evict placeholder for key, or nil
func (db *DB) LookupEvict(key []byte) *Evict {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.evicted[string(key)]
}

// Add installs a hot object, displacing any evict placeholder
func (db *DB) Add(key []byte, o *Object) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.hot[string(key)] = o
	delete(db.evicted, string(key))
}

// AddEvict installs an evict placeholder, displacing the hot object
func (db *DB) AddEvict(key []byte, e *Evict) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.evicted[string(key)] = e
	delete(db.hot, string(key))
}

// Delete removes the hot object; reports whether it was present
func (db *DB) Delete(key []byte) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, ok := db.hot[string(key)]
	delete(db.hot, string(key))
	return ok
}

// DeleteEvict removes the evict placeholder; reports whether it was
// present
func (db *DB) DeleteEvict(key []byte) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, ok := db.evicted[string(key)]
	delete(db.evicted, string(key))
	return ok
}

// Len returns the number of hot objects
func (db *DB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.hot)
}

// EvictedLen returns the number of evict placeholders
func (db *DB) EvictedLen() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.evicted)
}

// EncodeValue serializes an object as [type byte][payload]
func EncodeValue(o *Object) []byte {
	raw := make([]byte, 1+len(o.Value))
	raw[0] = byte(rocks.EncTypeOf(o.Type, false))
	copy(raw[1:], o.Value)
	return raw
}

// DecodeValue deserializes an object encoded by EncodeValue
func DecodeValue(raw []byte) (*Object, error) {
	if len(raw) < 1 {
		return nil, fmt.Errorf("raw value too short: %d", len(raw))
	}
	t := rocks.ObjectTypeOf(rocks.EncType(raw[0]))
	if t == rocks.ObjUnknown {
		return nil, fmt.Errorf("unknown raw value tag: %#x", raw[0])
	}
	return &Object{Type: t, Value: append([]byte(nil), raw[1:]...)}, nil
}
