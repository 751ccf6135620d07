package manifest

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketMeta        = []byte("meta")
	bucketCheckpoints = []byte("checkpoints")

	keyEpoch = []byte("epoch")
)

// Checkpoint records one checkpoint created from the store
type Checkpoint struct {
	Dir       string    `json:"dir"`
	Epoch     uint64    `json:"epoch"`
	CreatedAt time.Time `json:"created_at"`
	Released  bool      `json:"released"`
}

// Manifest persists store bookkeeping that must survive epoch reinits:
// the epoch counter itself and the registry of created checkpoints.
// The store data directory is wiped on every start, so the manifest
// lives next to it rather than inside it.
type Manifest struct {
	db *bolt.DB
}

// Open opens (or creates) the manifest database next to dataDir
func Open(dataDir string) (*Manifest, error) {
	dbPath := filepath.Clean(dataDir) + ".manifest"

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketMeta, bucketCheckpoints} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &Manifest{db: db}, nil
}

// Close closes the manifest database
func (m *Manifest) Close() error {
	return m.db.Close()
}

// NextEpoch bumps the persisted epoch counter and returns the new value
func (m *Manifest) NextEpoch() (uint64, error) {
	var epoch uint64
	err := m.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if data := b.Get(keyEpoch); data != nil {
			epoch = binary.LittleEndian.Uint64(data)
		}
		epoch++
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], epoch)
		return b.Put(keyEpoch, buf[:])
	})
	return epoch, err
}

// Epoch returns the current persisted epoch counter
func (m *Manifest) Epoch() (uint64, error) {
	var epoch uint64
	err := m.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if data := b.Get(keyEpoch); data != nil {
			epoch = binary.LittleEndian.Uint64(data)
		}
		return nil
	})
	return epoch, err
}

// RecordCheckpoint registers a checkpoint directory
func (m *Manifest) RecordCheckpoint(cp *Checkpoint) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCheckpoints)
		data, err := json.Marshal(cp)
		if err != nil {
			return err
		}
		return b.Put([]byte(cp.Dir), data)
	})
}

// ReleaseCheckpoint marks a checkpoint directory as released
func (m *Manifest) ReleaseCheckpoint(dir string) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCheckpoints)
		data := b.Get([]byte(dir))
		if data == nil {
			return fmt.Errorf("checkpoint not found: %s", dir)
		}
		var cp Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			return err
		}
		cp.Released = true
		data, err := json.Marshal(&cp)
		if err != nil {
			return err
		}
		return b.Put([]byte(dir), data)
	})
}

// ListCheckpoints returns all recorded checkpoints
func (m *Manifest) ListCheckpoints() ([]*Checkpoint, error) {
	var cps []*Checkpoint
	err := m.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCheckpoints)
		return b.ForEach(func(k, v []byte) error {
			var cp Checkpoint
			if err := json.Unmarshal(v, &cp); err != nil {
				return err
			}
			cps = append(cps, &cp)
			return nil
		})
	})
	return cps, err
}
