package snapshot

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	bolt "go.etcd.io/bbolt"
)

var (
	statesBucket  = []byte("snapshot_states")
	recordsBucket = []byte("snapshot_records")
)

// BoltStore keeps snapshots in a single bbolt file, gzip-compressed and
// checksummed with xxhash.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates the snapshot database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(statesBucket); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(recordsBucket); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init snapshot buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Save(documentID string, state []byte) error {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(state); err != nil {
		return fmt.Errorf("compress snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress snapshot: %w", err)
	}

	rec := Record{
		DocumentID: documentID,
		SavedAt:    time.Now().UTC(),
		Checksum:   xxhash.Sum64(state),
		Size:       len(state),
	}
	meta, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal snapshot record: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(statesBucket).Put([]byte(documentID), buf.Bytes()); err != nil {
			return err
		}
		return tx.Bucket(recordsBucket).Put([]byte(documentID), meta)
	})
}

func (s *BoltStore) Load(documentID string) ([]byte, error) {
	var compressed, meta []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(statesBucket).Get([]byte(documentID))
		if data == nil {
			return ErrNotFound
		}
		compressed = make([]byte, len(data))
		copy(compressed, data)
		if m := tx.Bucket(recordsBucket).Get([]byte(documentID)); m != nil {
			meta = make([]byte, len(m))
			copy(meta, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w: %v", documentID, ErrCorrupt, err)
	}
	state, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w: %v", documentID, ErrCorrupt, err)
	}
	if err := zr.Close(); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w: %v", documentID, ErrCorrupt, err)
	}

	if len(meta) > 0 {
		var rec Record
		if err := json.Unmarshal(meta, &rec); err == nil && rec.Checksum != 0 {
			if xxhash.Sum64(state) != rec.Checksum {
				return nil, fmt.Errorf("snapshot %s: %w: checksum mismatch", documentID, ErrCorrupt)
			}
		}
	}
	return state, nil
}

func (s *BoltStore) Delete(documentID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(statesBucket).Delete([]byte(documentID)); err != nil {
			return err
		}
		return tx.Bucket(recordsBucket).Delete([]byte(documentID))
	})
}

func (s *BoltStore) List() ([]Record, error) {
	var records []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].DocumentID < records[j].DocumentID })
	return records, nil
}
