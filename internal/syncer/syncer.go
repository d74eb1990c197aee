// Package syncer persists the vault to disk and reconciles the local copy
// against an optional remote one using modification timestamps.
//
// Reconciliation is deliberately last-writer-wins at whole-file granularity:
// there is no content merge, and concurrent edits on two devices inside one
// reconciliation window silently lose one side. That matches what users of
// the sync protocol already depend on and must not be "fixed" into a merge.
package syncer

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kdbex/kdbexd/internal/models"
	"github.com/kdbex/kdbexd/internal/vault"
)

const remoteTimeout = 30 * time.Second

// Sessions provides the live vault handle. Satisfied by *session.Store.
type Sessions interface {
	Handle() (*vault.Handle, error)
}

// Syncer owns the vault file on disk. Save serializes the in-memory vault
// and writes it atomically; Reconcile moves whole files between the local
// path and the remote store by timestamp.
type Syncer struct {
	mu       sync.Mutex
	sessions Sessions
	path     string
	remote   RemoteStore // nil when remote sync is not configured
	state    *StateStore // nil when remote sync is not configured
	now      func() time.Time
	log      *zap.Logger
}

// New constructs a Syncer for the vault at path. remote and state may both
// be nil for local-only operation.
func New(sessions Sessions, path string, remote RemoteStore, state *StateStore, log *zap.Logger) *Syncer {
	return &Syncer{
		sessions: sessions,
		path:     path,
		remote:   remote,
		state:    state,
		now:      time.Now,
		log:      log,
	}
}

// Save serializes the current vault handle and writes it to the configured
// path through a temporary file plus rename, so a crash mid-write never
// leaves a torn vault. Local durability is the contract: on success, a
// configured remote receives a best-effort asynchronous upload whose
// failure does not fail Save.
func (s *Syncer) Save(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	h, err := s.sessions.Handle()
	if err != nil {
		return err
	}
	data, err := h.Serialize()
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	// Once the rename lands the save has succeeded; nothing below may turn
	// a durable write into a reported failure.
	if err := s.writeAtomic(data); err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	if s.remote != nil {
		go s.uploadAsync(data)
	}
	return nil
}

func (s *Syncer) writeAtomic(data []byte) error {
	tmp := fmt.Sprintf("%s.%s.tmp", s.path, uuid.NewString())
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// uploadAsync pushes the freshly saved content to the remote store and, on
// success, advances the sync state. Failures are logged and abandoned; the
// next reconciliation pass will retry by timestamp.
func (s *Syncer) uploadAsync(data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
	defer cancel()

	if err := s.remote.Upload(ctx, data); err != nil {
		s.log.Warn("remote upload failed", zap.Error(err))
		return
	}
	s.mu.Lock()
	s.advanceState(s.now())
	s.mu.Unlock()
	s.log.Info("vault uploaded to remote")
}

// advanceState merges new modification instants into the stored state.
// Both dates are monotonic non-decreasing: an upload that finishes after a
// reconciliation pass already recorded a later remote date must not drag it
// backwards, or the next pass would re-download stale remote content over a
// fresher local save. Callers hold s.mu.
func (s *Syncer) advanceState(remoteDate time.Time) {
	if s.state == nil {
		return
	}
	state, err := s.state.Load()
	if err != nil {
		s.log.Warn("sync state load failed", zap.Error(err))
		return
	}
	if fi, err := os.Stat(s.path); err == nil && fi.ModTime().After(state.LocalDate) {
		state.LocalDate = fi.ModTime()
	}
	if remoteDate.After(state.RemoteDate) {
		state.RemoteDate = remoteDate
	}
	if err := s.state.Save(state); err != nil {
		s.log.Warn("sync state save failed", zap.Error(err))
	}
}

// Reconcile runs one timestamp-driven pass against the remote store:
//
//   - a remote copy newer than the stored remote date is downloaded and
//     overwrites the local file, and both dates advance to the new ground
//     truth;
//   - independently, a local file newer than the stored local date is
//     uploaded, advancing the remote date.
//
// It is a no-op when remote sync is not configured.
func (s *Syncer) Reconcile(ctx context.Context) error {
	if s.remote == nil || s.state == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.state.Load()
	if err != nil {
		return fmt.Errorf("load sync state: %w", err)
	}

	remoteMod, remoteExists, err := s.remote.LastModified(ctx)
	if err != nil {
		return err
	}

	if remoteExists && remoteMod.After(state.RemoteDate) {
		data, err := s.remote.Download(ctx)
		if err != nil {
			return err
		}
		if err := s.writeAtomic(data); err != nil {
			return fmt.Errorf("%w: %v", models.ErrPersistence, err)
		}
		state.RemoteDate = remoteMod
		if fi, err := os.Stat(s.path); err == nil {
			state.LocalDate = fi.ModTime()
		}
		if err := s.state.Save(state); err != nil {
			return fmt.Errorf("save sync state: %w", err)
		}
		s.log.Info("remote vault newer, local file replaced",
			zap.Time("remoteDate", remoteMod))
	}

	fi, err := os.Stat(s.path)
	if err != nil {
		// No local file yet; nothing to push.
		return nil
	}
	if fi.ModTime().After(state.LocalDate) {
		data, err := os.ReadFile(s.path)
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrPersistence, err)
		}
		if err := s.remote.Upload(ctx, data); err != nil {
			return err
		}
		state.LocalDate = fi.ModTime()
		if now := s.now(); now.After(state.RemoteDate) {
			state.RemoteDate = now
		}
		if err := s.state.Save(state); err != nil {
			return fmt.Errorf("save sync state: %w", err)
		}
		s.log.Info("local vault newer, uploaded to remote",
			zap.Time("localDate", state.LocalDate))
	}
	return nil
}

// Start runs Reconcile once immediately and then on every interval tick
// until ctx is cancelled. Failed passes are logged and abandoned until the
// next tick; there are no retries in between.
func (s *Syncer) Start(ctx context.Context, interval time.Duration) {
	if s.remote == nil {
		return
	}
	go func() {
		s.runOnce(ctx)
		if interval <= 0 {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()
}

func (s *Syncer) runOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()
	if err := s.Reconcile(ctx); err != nil {
		s.log.Warn("reconciliation failed", zap.Error(err))
	}
}
