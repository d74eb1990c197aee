// Package session guards access to the decrypted vault. It authenticates
// against the container, mints the opaque session token, and holds the
// single live vault handle for the process.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kdbex/kdbexd/internal/models"
	"github.com/kdbex/kdbexd/internal/vault"
)

// tokenBytes is the amount of randomness behind a session token; the token
// itself is its hex encoding.
const tokenBytes = 200

// Session is the single authenticated session. It is replace-only: a new
// login swaps in a whole new value and the old one is simply discarded.
type Session struct {
	Token     string
	Handle    *vault.Handle
	CreatedAt time.Time
}

// OpenFunc opens a vault container from raw bytes with the given secret.
type OpenFunc func(data []byte, secret string) (*vault.Handle, error)

// Store owns the process-wide session. The clock and randomness source are
// injected so login behavior is testable without globals.
type Store struct {
	vaultPath string
	// override, when non-empty, takes precedence over any client-supplied
	// secret (operator-configured, local/dev use).
	override string
	open     OpenFunc
	now      func() time.Time
	random   io.Reader
	log      *zap.Logger

	cur atomic.Pointer[Session]
}

// NewStore builds a session store over the vault at vaultPath. override may
// be empty.
func NewStore(vaultPath, override string, log *zap.Logger) *Store {
	return &Store{
		vaultPath: vaultPath,
		override:  override,
		open:      vault.Open,
		now:       time.Now,
		random:    rand.Reader,
		log:       log,
	}
}

// Login derives the vault credentials from secret (or the configured
// override), opens the container, and on success atomically replaces the
// current session with a fresh one, returning its token.
//
// Wrong credentials yield models.ErrAuthentication; reading the container
// file yields models.ErrPersistence. The session swap is a single pointer
// store: a login racing an in-flight authorized request may observe either
// session, which is accepted relaxed consistency for a single-user tool.
func (s *Store) Login(ctx context.Context, secret string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.override != "" {
		secret = s.override
	}

	data, err := os.ReadFile(s.vaultPath)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", models.ErrPersistence, s.vaultPath, err)
	}
	handle, err := s.open(data, secret)
	if err != nil {
		return "", err
	}

	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", fmt.Errorf("%w: token generation: %v", models.ErrPersistence, err)
	}
	token := hex.EncodeToString(buf)

	s.cur.Store(&Session{
		Token:     token,
		Handle:    handle,
		CreatedAt: s.now(),
	})
	s.log.Info("vault opened, new session issued")
	return token, nil
}

// Authorize reports whether the presented token exactly matches the current
// session's token. It is false when no session exists and never mutates
// session state.
func (s *Store) Authorize(token string) bool {
	cur := s.cur.Load()
	return cur != nil && token != "" && token == cur.Token
}

// Handle returns the vault handle of the live session, or ErrNoSession
// before the first successful login.
func (s *Store) Handle() (*vault.Handle, error) {
	cur := s.cur.Load()
	if cur == nil {
		return nil, models.ErrNoSession
	}
	return cur.Handle, nil
}
