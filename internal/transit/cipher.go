// Package transit implements the symmetric cipher protecting password
// material in transit between client and server. It is keyed by an
// operator-configured shared secret and is independent of the vault's own
// master encryption.
package transit

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/kdbex/kdbexd/internal/models"
)

const (
	keySize    = 32
	iterations = 210000
)

// salt is fixed so that both ends derive the same key from the shared
// passphrase without a key-exchange step.
var salt = []byte("kdbex.transit.v1")

// Cipher is an AES-256-GCM cipher derived from a shared passphrase.
// The zero value is unusable; construct with New.
type Cipher struct {
	aead cipher.AEAD
}

// New derives the AES key from the passphrase with PBKDF2-SHA256 and
// returns a ready-to-use Cipher.
func New(passphrase string) (*Cipher, error) {
	key := pbkdf2.Key([]byte(passphrase), salt, iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create AEAD: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random nonce and returns
// base64(nonce || ciphertext).
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any malformed input, truncated nonce, or GCM
// authentication failure (wrong key) yields models.ErrTransitDecrypt; a
// wrong key can never silently produce a chance plaintext.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrTransitDecrypt, err)
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns {
		return "", fmt.Errorf("%w: ciphertext too short", models.ErrTransitDecrypt)
	}
	plaintext, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrTransitDecrypt, err)
	}
	return string(plaintext), nil
}

// Verify reports whether hash decrypts to message under this cipher's key.
// Used by the setup endpoint to confirm the client holds the same key.
func (c *Cipher) Verify(message, hash string) bool {
	plaintext, err := c.Decrypt(hash)
	if err != nil {
		return false
	}
	return plaintext == message
}
