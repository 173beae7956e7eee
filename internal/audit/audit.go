// Package audit is a per-replica audit trail store, recording every
// dispatch attempt and state transition for a correlation id in a local
// bbolt file. The trail is best-effort observability, browsable via the
// /health/audit endpoints; it is never a consistency source of truth.
package audit

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

const bucketName = "audit_entries"

// Entry is one recorded step of a dispatch attempt.
type Entry struct {
	CorrelationID string
	Processor     string
	Stage         string // e.g. "breaker_open", "route_failed", "processor_call", "persisted"
	Outcome       string // "success" | "failure"
	Detail        string
	At            time.Time
}

// Store is a bbolt-backed, append-only audit log keyed by the correlation
// id followed by the entry's timestamp in Unix nanoseconds.
type Store struct {
	db *bolt.DB
}

// Open creates or opens the bbolt file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying file.
func (s *Store) Close() error { return s.db.Close() }

// Record appends one entry. Errors are logged by the caller, not fatal to
// the dispatch path.
func (s *Store) Record(e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	key := []byte(fmt.Sprintf("%s/%d", e.CorrelationID, e.At.UnixNano()))
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put(key, buf.Bytes())
	})
}

// ForCorrelationID returns every recorded entry for one correlation id,
// oldest first.
func (s *Store) ForCorrelationID(correlationID string) ([]Entry, error) {
	prefix := []byte(correlationID + "/")
	var entries []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketName)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var e Entry
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&e); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read audit entries: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].At.Before(entries[j].At) })
	return entries, nil
}

// All returns every recorded entry across every correlation id, newest
// first, for the general audit listing endpoint.
func (s *Store) All() ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(_, v []byte) error {
			var e Entry
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&e); err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("read audit entries: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].At.After(entries[j].At) })
	return entries, nil
}

// Clear removes every recorded entry, for the administrative
// clear-audit-logs endpoint.
func (s *Store) Clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket([]byte(bucketName))
		return err
	})
}
