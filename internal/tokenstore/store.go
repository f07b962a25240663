package tokenstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tidwall/buntdb"
)

// Record holds the refresh-capable credential state persisted for one device
type Record struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"` // unix seconds, always absolute
	TokenURL     string `json:"token_url"`
	ClientID     string `json:"client_id"`
}

// Valid reports whether the access token is still usable, keeping a buffer so
// a token never expires mid-request
func (r *Record) Valid(buffer time.Duration) bool {
	return r.AccessToken != "" && time.Unix(r.ExpiresAt, 0).After(time.Now().Add(buffer))
}

// Store is the process-wide token table, one Record per device name. All
// mutations go through a single mutex so concurrent device sessions cannot
// interleave their load-modify-persist cycles.
type Store struct {
	db   *buntdb.DB
	mu   sync.Mutex
	path string
}

// Open opens (or creates) the token store at the given path
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("token store path is required")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating token store directory: %w", err)
		}
	}

	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening token store: %w", err)
	}

	return &Store{
		db:   db,
		path: path,
	}, nil
}

// Get retrieves the record for a device. The second return value is false
// when no record exists.
func (s *Store) Get(name string) (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var record Record
	err := s.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(name)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(val), &record)
	})
	if err == buntdb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("getting token record: %w", err)
	}
	return &record, true, nil
}

// Put stores the record for a device, replacing any previous one
func (s *Store) Put(name string, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling token record: %w", err)
	}

	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(name, string(data), nil)
		if err != nil {
			return fmt.Errorf("saving token record: %w", err)
		}
		return nil
	})
}

// Delete removes the record for a device. Deleting a missing record is not
// an error.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(name)
		if err != nil && err != buntdb.ErrNotFound {
			return fmt.Errorf("deleting token record: %w", err)
		}
		return nil
	})
}

// Close closes the underlying database
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
