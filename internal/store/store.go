// Package store persists conversation records and captured live
// envelopes in bbolt. Records are what the persisted-source side of a
// session is rebuilt from; captures let a live session be replayed or
// verified offline later.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"seam/internal/types"
)

var (
	bucketRecords  = []byte("conversation_records")
	bucketCaptures = []byte("envelope_captures")
)

var ErrSessionNotFound = errors.New("session not found")

type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRecords); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketCaptures); err != nil {
			return err
		}
		return nil
	})
}

// PutRecords replaces the stored conversation for a session. Records
// keep their given order; keys encode the session id and a zero-padded
// position so a prefix scan returns them in order.
func (s *Store) PutRecords(ctx context.Context, sessionID string, records []types.Record) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if b == nil {
			return errors.New("records bucket missing")
		}
		if err := deletePrefix(b, sessionPrefix(sessionID)); err != nil {
			return err
		}
		for i, rec := range records {
			raw, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal record %d: %w", i, err)
			}
			if err := b.Put(recordKey(sessionID, uint64(i)), raw); err != nil {
				return err
			}
		}
		return nil
	})
}

// AppendRecords adds records after any already stored for the session.
func (s *Store) AppendRecords(ctx context.Context, sessionID string, records []types.Record) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}
	if len(records) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if b == nil {
			return errors.New("records bucket missing")
		}
		next := countPrefix(b, sessionPrefix(sessionID))
		for i, rec := range records {
			raw, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal record %d: %w", i, err)
			}
			if err := b.Put(recordKey(sessionID, next+uint64(i)), raw); err != nil {
				return err
			}
		}
		return nil
	})
}

// Records loads the stored conversation for a session in stored order.
// A session with no records returns ErrSessionNotFound.
func (s *Store) Records(ctx context.Context, sessionID string) ([]types.Record, error) {
	out := make([]types.Record, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if b == nil {
			return nil
		}
		return forEachPrefix(b, sessionPrefix(sessionID), func(_, v []byte) error {
			var rec types.Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("records for %s: %w", sessionID, ErrSessionNotFound)
	}
	return out, nil
}

// Sessions lists every session id with stored records, sorted.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			if id, ok := sessionIDFromKey(k); ok {
				seen[id] = struct{}{}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// DeleteSession removes a session's records and captures.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		found := false
		for _, name := range [][]byte{bucketRecords, bucketCaptures} {
			b := tx.Bucket(name)
			if b == nil {
				continue
			}
			prefix := sessionPrefix(sessionID)
			c := b.Cursor()
			for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Next() {
				found = true
				if err := c.Delete(); err != nil {
					return err
				}
			}
		}
		if !found {
			return fmt.Errorf("delete %s: %w", sessionID, ErrSessionNotFound)
		}
		return nil
	})
}

// AppendEnvelope captures one raw live envelope for later offline
// replay. Arrival order is preserved by a per-bucket sequence.
func (s *Store) AppendEnvelope(ctx context.Context, env types.StreamEnvelope) error {
	if env.SessionID == "" {
		return errors.New("envelope missing session id")
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCaptures)
		if b == nil {
			return errors.New("captures bucket missing")
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(recordKey(env.SessionID, seq), raw)
	})
}

// Envelopes returns the captured envelopes for a session in capture
// order.
func (s *Store) Envelopes(ctx context.Context, sessionID string) ([]types.StreamEnvelope, error) {
	out := make([]types.StreamEnvelope, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCaptures)
		if b == nil {
			return nil
		}
		return forEachPrefix(b, sessionPrefix(sessionID), func(_, v []byte) error {
			var env types.StreamEnvelope
			if err := json.Unmarshal(v, &env); err != nil {
				return err
			}
			out = append(out, env)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func sessionPrefix(sessionID string) []byte {
	return []byte(sessionID + "\x00")
}

func recordKey(sessionID string, i uint64) []byte {
	return []byte(fmt.Sprintf("%s\x00%012d", sessionID, i))
}

func sessionIDFromKey(k []byte) (string, bool) {
	key := string(k)
	if i := strings.IndexByte(key, '\x00'); i >= 0 {
		return key[:i], true
	}
	return "", false
}

func forEachPrefix(b *bolt.Bucket, prefix []byte, fn func(k, v []byte) error) error {
	c := b.Cursor()
	for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

func deletePrefix(b *bolt.Bucket, prefix []byte) error {
	c := b.Cursor()
	for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Next() {
		if err := c.Delete(); err != nil {
			return err
		}
	}
	return nil
}

func countPrefix(b *bolt.Bucket, prefix []byte) uint64 {
	var n uint64
	c := b.Cursor()
	for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Next() {
		n++
	}
	return n
}
