package reservation

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

// reservationsBucket is the single bbolt bucket every reservation row
// lives in, keyed by globalid.
var reservationsBucket = []byte("reservations")

// FileStore persists reservations in a local embedded bbolt database,
// used when a deployment has no Redis instance to point db_dir's sibling
// redis_addr at (spec §6's db_dir config field).
type FileStore struct {
	db *bbolt.DB
}

// NewFileStore opens (creating if absent) a bbolt database under dir.
func NewFileStore(dir string) (*FileStore, error) {
	path := filepath.Join(dir, "reservations.db")
	db, err := bbolt.Open(path, 0o644, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("reservation: opening %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(reservationsBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("reservation: creating bucket in %s: %w", path, err)
	}
	return &FileStore{db: db}, nil
}

func (s *FileStore) Put(_ context.Context, globalid string, data []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(reservationsBucket).Put([]byte(globalid), data)
	})
}

func (s *FileStore) Get(_ context.Context, globalid string) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(reservationsBucket).Get([]byte(globalid))
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, out != nil, err
}

func (s *FileStore) Delete(_ context.Context, globalid string) (bool, error) {
	var existed bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(reservationsBucket)
		if b.Get([]byte(globalid)) != nil {
			existed = true
		}
		return b.Delete([]byte(globalid))
	})
	return existed, err
}

func (s *FileStore) Scan(_ context.Context) (map[string][]byte, error) {
	out := map[string][]byte{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(reservationsBucket).ForEach(func(k, v []byte) error {
			out[string(k)] = append([]byte(nil), v...)
			return nil
		})
	})
	return out, err
}

func (s *FileStore) DeleteAll(_ context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(reservationsBucket); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(reservationsBucket)
		return err
	})
}

// Close releases the underlying database file.
func (s *FileStore) Close() error {
	return s.db.Close()
}
