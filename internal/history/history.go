// Package history is the CLI's own download ledger: a small bbolt-backed
// record of past invocations (URL, destination, byte count, SHA-1,
// outcome) kept for the user's "what did I download and when" purposes.
// It is entirely separate from RangeFile's own .meta resume state — this
// package never reads or writes .temp/.meta, and deleting a ledger entry
// has no effect on an in-progress or resumable download.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/NamanBalaji/rangedl/internal/classify"
)

const (
	entriesBucket = "entries"
	metaBucket    = "metadata"
	schemaVersion = 1
)

// ErrNotFound is returned when an entry cannot be located by ID.
var ErrNotFound = errors.New("history: entry not found")

// Entry is one recorded download attempt. ETag and LastModified are
// surfaced from the response for the user's own judgment about whether a
// resumed download's remote resource has changed; neither is ever
// consulted by this package or by RangeFile's own resume logic.
type Entry struct {
	ID           uuid.UUID
	URL          string
	Destination  string
	BytesTotal   int64
	SHA1         string
	ETag         string
	LastModified time.Time
	Kind         classify.Kind
	Succeeded    bool
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Store is a bbolt-backed Entry ledger.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the ledger at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	s := &Store{db: db}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initialize() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(entriesBucket)); err != nil {
			return fmt.Errorf("history: create entries bucket: %w", err)
		}

		meta, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
		if err != nil {
			return fmt.Errorf("history: create metadata bucket: %w", err)
		}

		return meta.Put([]byte("schema_version"), []byte(fmt.Sprintf("%d", schemaVersion)))
	})
}

// Record appends entry, assigning it a fresh ID if it has none.
func (s *Store) Record(entry *Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(entriesBucket))

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("history: marshal entry: %w", err)
		}

		return bucket.Put([]byte(entry.ID.String()), data)
	})
}

// Find retrieves one entry by ID.
func (s *Store) Find(id uuid.UUID) (*Entry, error) {
	var entry Entry

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(entriesBucket))

		data := bucket.Get([]byte(id.String()))
		if data == nil {
			return ErrNotFound
		}

		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

// All returns every recorded entry, most recently started first.
func (s *Store) All() ([]*Entry, error) {
	var entries []*Entry

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(entriesBucket))

		return bucket.ForEach(func(_, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("history: unmarshal entry: %w", err)
			}

			entries = append(entries, &entry)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].StartedAt.After(entries[j].StartedAt) })

	return entries, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
