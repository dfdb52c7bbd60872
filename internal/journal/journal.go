// Package journal persists a record per transfer or extraction so past
// operations survive restarts. Journal writes are advisory: callers log
// and move on when one fails.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"
)

const transfersBucket = "transfers"

// ErrRecordNotFound is returned by Find for unknown IDs.
var ErrRecordNotFound = errors.New("record not found")

// Kind identifies the operation a Record describes.
type Kind string

const (
	KindDownload Kind = "download"
	KindExtract  Kind = "extract"
)

// Status is the terminal (or current) state of an operation.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Record is one journaled operation.
type Record struct {
	ID          uuid.UUID `json:"id"`
	Kind        Kind      `json:"kind"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	Bytes       int64     `json:"bytes,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
}

// Repository stores Records in a bolt database.
type Repository struct {
	db *bolt.DB
}

// NewRepository opens (creating if needed) the journal database at
// dbPath.
func NewRepository(dbPath string) (*Repository, error) {
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(transfersBucket))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create journal bucket: %w", err)
	}

	return &Repository{db: db}, nil
}

// Save persists a record, overwriting any previous version.
func (r *Repository) Save(record *Record) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(transfersBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", transfersBucket)
		}

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}

		return bucket.Put([]byte(record.ID.String()), data)
	})
}

// Find retrieves a record by ID.
func (r *Repository) Find(id uuid.UUID) (*Record, error) {
	var record *Record

	err := r.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(transfersBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", transfersBucket)
		}

		data := bucket.Get([]byte(id.String()))
		if data == nil {
			return ErrRecordNotFound
		}

		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// FindAll retrieves every journaled record.
func (r *Repository) FindAll() ([]*Record, error) {
	var records []*Record

	err := r.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(transfersBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", transfersBucket)
		}

		return bucket.ForEach(func(k, v []byte) error {
			var record Record
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("failed to unmarshal record: %w", err)
			}
			records = append(records, &record)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// Delete removes a record.
func (r *Repository) Delete(id uuid.UUID) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(transfersBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", transfersBucket)
		}

		return bucket.Delete([]byte(id.String()))
	})
}

// Prune deletes every record in a terminal state, keeping active ones.
// It returns how many records were removed.
func (r *Repository) Prune() (int, error) {
	records, err := r.FindAll()
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, record := range records {
		if record.Status == StatusActive {
			continue
		}
		if err := r.Delete(record.ID); err != nil {
			return pruned, err
		}
		pruned++
	}

	return pruned, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}
