package storage

import (
	"errors"
	"fmt"
	"socketd/internal/models"
	"time"

	"go.etcd.io/bbolt"
)

var bucketLastSeen = []byte("last_seen")

// BboltStorage keeps the last-seen ledger, so that offline users keep a
// lastSeen across restarts.
type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketLastSeen)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// RecordLastSeen stores the time userID went offline and counts the visit.
func (s *BboltStorage) RecordLastSeen(userID string, at time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketLastSeen)

		entry := &DBLastSeen{UserID: userID}
		if data := b.Get(entry.Key()); data != nil {
			if err := entry.UnmarshalBinary(data); err != nil {
				return err
			}
		}
		entry.LastSeen = at.UnixMilli()
		entry.Visits++

		return put(b, entry)
	})
}

// LastSeen returns the recorded time in unix milliseconds.
func (s *BboltStorage) LastSeen(userID string) (int64, error) {
	var entry DBLastSeen
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketLastSeen).Get([]byte(userID))
		if data == nil {
			return models.ErrNotFound
		}
		return entry.UnmarshalBinary(data)
	})
	if err != nil {
		return 0, err
	}
	return entry.LastSeen, nil
}

// ListLastSeen returns every entry of the ledger.
func (s *BboltStorage) ListLastSeen() ([]DBLastSeen, error) {
	var entries []DBLastSeen
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketLastSeen).ForEach(func(k, v []byte) error {
			var entry DBLastSeen
			if err := entry.UnmarshalBinary(v); err != nil {
				return fmt.Errorf("entry %q: %w", k, err)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	return entries, err
}

// Forget removes a user from the ledger.
func (s *BboltStorage) Forget(userID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketLastSeen)
		if b.Get([]byte(userID)) == nil {
			return models.ErrNotFound
		}
		return b.Delete([]byte(userID))
	})
}

func put(b *bbolt.Bucket, item Storeable) error {
	if b == nil {
		return errors.New("bucket not found")
	}
	data, err := item.MarshalBinary()
	if err != nil {
		return err
	}
	return b.Put(item.Key(), data)
}
