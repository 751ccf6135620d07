package swap

import (
	"fmt"

	"github.com/rimedb/rime/pkg/rio"
	"github.com/rimedb/rime/pkg/rocks"
)

// WholeKeyData swaps an object that lives in a single whole-object row:
// raw key [tag][key], raw value [tag][payload]. Strings always use it;
// small collections may as well.
type WholeKeyData struct {
	db    *DB
	key   []byte
	value *Object
	evict *Evict

	cleaned bool
}

// NewWholeKeyData binds a whole-key swap to the hot object (for OUT and
// DEL of a resident key) or the evict placeholder (for IN and DEL of a
// cold key). Exactly one of value and evict is expected.
func NewWholeKeyData(db *DB, key []byte, value *Object, evict *Evict) *WholeKeyData {
	return &WholeKeyData{db: db, key: key, value: value, evict: evict}
}

func (d *WholeKeyData) objectType() rocks.ObjectType {
	if d.value != nil {
		return d.value.Type
	}
	if d.evict != nil {
		return d.evict.Type
	}
	return rocks.ObjString
}

func (d *WholeKeyData) rawKey() []byte {
	return rocks.EncodeKey(rocks.EncTypeOf(d.objectType(), false), d.key)
}

// EncodeKeys yields the single whole-object row: a point get for IN, a
// point delete for DEL.
func (d *WholeKeyData) EncodeKeys(intention Intention, ctx interface{}) (rio.Action, [][]byte, error) {
	switch intention {
	case IntentionIn:
		return rio.ActionGet, [][]byte{d.rawKey()}, nil
	case IntentionDel:
		return rio.ActionDel, [][]byte{d.rawKey()}, nil
	default:
		return 0, nil, fmt.Errorf("wholekey: cannot encode keys for %s", IntentionName(intention))
	}
}

// EncodeData yields the single row to persist for OUT
func (d *WholeKeyData) EncodeData(intention Intention, ctx interface{}) (rio.Action, [][]byte, [][]byte, error) {
	if intention != IntentionOut {
		return 0, nil, nil, fmt.Errorf("wholekey: cannot encode data for %s", IntentionName(intention))
	}
	if d.value == nil {
		return 0, nil, nil, fmt.Errorf("wholekey: no hot object to encode")
	}
	return rio.ActionPut, [][]byte{d.rawKey()}, [][]byte{EncodeValue(d.value)}, nil
}

// DecodeData expects the single fetched row and decodes its value
func (d *WholeKeyData) DecodeData(rawkeys, rawvals [][]byte) (*Object, error) {
	if len(rawkeys) != 1 || len(rawvals) != 1 {
		return nil, fmt.Errorf("wholekey: expected 1 row, got %d", len(rawkeys))
	}
	if rawvals[0] == nil {
		return nil, nil
	}
	if _, _, err := rocks.DecodeKey(rawkeys[0]); err != nil {
		return nil, err
	}
	return DecodeValue(rawvals[0])
}

// CreateOrMergeObject has nothing to merge for a whole-key swap: the
// decoded object is the result.
func (d *WholeKeyData) CreateOrMergeObject(decoded *Object, ctx interface{}, delFlag DelFlag) (*Object, error) {
	return decoded, nil
}

// CleanObject records that the persisted rows made it to disk. The hot
// keyspace itself is only touched by the pipeline-side SwapOut.
func (d *WholeKeyData) CleanObject(ctx interface{}) error {
	d.cleaned = true
	return nil
}

// SwapIn installs the loaded object and drops the placeholder
func (d *WholeKeyData) SwapIn(result *Object, ctx interface{}) error {
	if result == nil {
		return fmt.Errorf("wholekey: swap-in without result")
	}
	d.db.Add(d.key, result)
	return nil
}

// SwapOut evicts the hot copy and installs the placeholder
func (d *WholeKeyData) SwapOut(ctx interface{}) error {
	if !d.cleaned {
		return fmt.Errorf("wholekey: swap-out before clean")
	}
	d.db.AddEvict(d.key, &Evict{Type: d.objectType()})
	return nil
}

// SwapDel drops the hot object. With async set an evict placeholder is
// left in place (installed if the key had none) so a later pass can
// observe the pending disk cleanup; otherwise both sides are gone.
func (d *WholeKeyData) SwapDel(ctx interface{}, async bool) error {
	d.db.Delete(d.key)
	if async {
		d.db.AddEvict(d.key, &Evict{Type: d.objectType()})
	} else {
		d.db.DeleteEvict(d.key)
	}
	return nil
}
