package vectorstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const defaultBoltBucket = "vectors"

// BoltOptions configures a Bolt store.
type BoltOptions struct {
	// Bucket is the bucket holding the vectors.
	Bucket string
	// Timeout bounds how long Open waits for the file lock.
	Timeout time.Duration
	// ReadOnly opens the database without write access.
	ReadOnly bool
}

// Bolt is a disk-backed store on top of bbolt.
//
// Keys are big-endian document ids, values little-endian float32 arrays.
// GetVector runs a read transaction per call, so every lookup is a B+tree
// descent plus a copy; use it when vectors do not fit in memory.
type Bolt struct {
	db     *bbolt.DB
	dim    int
	bucket []byte
}

var _ MutableStore = (*Bolt)(nil)

// OpenBolt opens (or creates) a bbolt-backed store at path.
func OpenBolt(path string, dim int, optFns ...func(o *BoltOptions)) (*Bolt, error) {
	opts := BoltOptions{
		Bucket:  defaultBoltBucket,
		Timeout: time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if !opts.ReadOnly {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout:  opts.Timeout,
		ReadOnly: opts.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt store at %s: %w", path, err)
	}

	s := &Bolt{db: db, dim: max(dim, 0), bucket: []byte(opts.Bucket)}

	if !opts.ReadOnly {
		if err := db.Update(func(tx *bbolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(s.bucket)
			return err
		}); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize bucket %q: %w", opts.Bucket, err)
		}
	}

	return s, nil
}

func boltKey(id uint32) []byte {
	var k [4]byte
	binary.BigEndian.PutUint32(k[:], id)
	return k[:]
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v
}

// Dimension implements Store.
func (s *Bolt) Dimension() int { return s.dim }

// GetVector implements Store. Storage errors are reported as a miss.
func (s *Bolt) GetVector(id uint32) ([]float32, bool) {
	var out []float32
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		if data := b.Get(boltKey(id)); data != nil {
			// data is only valid inside the transaction.
			out = decodeVector(data)
		}
		return nil
	})
	if err != nil || out == nil {
		return nil, false
	}
	return out, true
}

// SetVector stores v under id in its own transaction.
func (s *Bolt) SetVector(id uint32, v []float32) error {
	return s.SetVectors(map[uint32][]float32{id: v})
}

// SetVectors stores many vectors in a single transaction.
func (s *Bolt) SetVectors(vectors map[uint32][]float32) error {
	for _, v := range vectors {
		if s.dim > 0 && len(v) != s.dim {
			return ErrWrongDimension
		}
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return errors.New("vectorstore: bucket missing")
		}
		for id, v := range vectors {
			if err := b.Put(boltKey(id), encodeVector(v)); err != nil {
				return fmt.Errorf("put vector %d: %w", id, err)
			}
		}
		return nil
	})
}

// DeleteVector removes the vector stored under id.
func (s *Bolt) DeleteVector(id uint32) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		return b.Delete(boltKey(id))
	})
}

// Len returns the number of stored vectors.
func (s *Bolt) Len() int {
	n := 0
	_ = s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(s.bucket); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n
}

// Close closes the underlying database.
func (s *Bolt) Close() error {
	return s.db.Close()
}
