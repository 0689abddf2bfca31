package storage

import (
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"
)

const openTimeout = 5 * time.Second

var bucketPlayers = []byte("players")

// BoltStore keeps values as JSON assets in a single bbolt bucket.
type BoltStore[T ValidatingSpec] struct {
	db     *bbolt.DB
	bucket []byte
}

// OpenBoltStore opens or creates the database at path and ensures the
// bucket exists. An empty bucket name selects the players bucket.
func OpenBoltStore[T ValidatingSpec](path string, bucket string) (*BoltStore[T], error) {
	b := bucketPlayers
	if bucket != "" {
		b = []byte(bucket)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(b)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating bucket %s: %w", b, err)
	}

	return &BoltStore[T]{db: db, bucket: b}, nil
}

func (s *BoltStore[T]) Load(key string) (T, error) {
	var zero T
	if err := ValidateKey(key); err != nil {
		return zero, err
	}

	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(key))
		if v == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		// v is only valid for the life of the transaction.
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return zero, err
	}

	return decodeAsset[T](key, data)
}

func (s *BoltStore[T]) Save(key string, v T) error {
	data, err := encodeAsset(key, v)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), data)
	})
}

// Close closes the underlying database.
func (s *BoltStore[T]) Close() error {
	return s.db.Close()
}

func (s *BoltStore[T]) Path() string {
	return s.db.Path()
}
