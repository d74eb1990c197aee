package syncer

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kdbex/kdbexd/internal/models"
)

var (
	stateBucket = []byte("sync_state")
	keyLocal    = []byte("local_date")
	keyRemote   = []byte("remote_date")
)

// StateStore persists the reconciliation SyncState alongside the vault.
type StateStore struct {
	db *bolt.DB
}

// OpenState opens (or creates) the sync-metadata database at path.
func OpenState(path string) (*StateStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(stateBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init state bucket: %w", err)
	}
	return &StateStore{db: db}, nil
}

// Close closes the underlying database.
func (s *StateStore) Close() error {
	return s.db.Close()
}

// Load returns the stored SyncState. Missing keys read as zero times, which
// is the state before the first reconciliation.
func (s *StateStore) Load() (models.SyncState, error) {
	var state models.SyncState
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(stateBucket)
		if raw := b.Get(keyLocal); raw != nil {
			if err := state.LocalDate.UnmarshalText(raw); err != nil {
				return fmt.Errorf("parse local date: %w", err)
			}
		}
		if raw := b.Get(keyRemote); raw != nil {
			if err := state.RemoteDate.UnmarshalText(raw); err != nil {
				return fmt.Errorf("parse remote date: %w", err)
			}
		}
		return nil
	})
	return state, err
}

// Save writes the SyncState.
func (s *StateStore) Save(state models.SyncState) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(stateBucket)
		local, err := state.LocalDate.MarshalText()
		if err != nil {
			return err
		}
		remote, err := state.RemoteDate.MarshalText()
		if err != nil {
			return err
		}
		if err := b.Put(keyLocal, local); err != nil {
			return err
		}
		return b.Put(keyRemote, remote)
	})
}
