// Package http provides HTTP handlers for session setup, login, and
// credential entry operations.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kdbex/kdbexd/internal/models"
)

// SessionService defines the login operation required by the HTTP handlers.
type SessionService interface {
	// Login opens the vault with the given master secret and returns a new
	// session token.
	Login(ctx context.Context, secret string) (string, error)
}

// TransitService is the transit-cipher surface the auth handlers need.
type TransitService interface {
	// Verify reports whether hash decrypts to message under the shared key.
	Verify(message, hash string) bool
	// Decrypt recovers a transit-encrypted value.
	Decrypt(ciphertext string) (string, error)
}

// AuthHandler handles HTTP requests for setup verification and login.
type AuthHandler struct {
	Sessions SessionService
	Transit  TransitService
}

// SetupRequest represents the JSON payload for setup verification.
type SetupRequest struct {
	// Message is the cleartext probe chosen by the client.
	Message string `json:"message"`
	// Hash is the probe encrypted with the client's copy of the transit key.
	Hash string `json:"hash"`
}

// Setup handles POST /setup. It answers true iff the client's transit key
// matches the server's: decrypting the hash must reproduce the message.
func (h *AuthHandler) Setup(w http.ResponseWriter, r *http.Request) {
	var req SetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.Transit.Verify(req.Message, req.Hash))
}

// LoginRequest represents the JSON payload for login.
type LoginRequest struct {
	// Key is the vault master secret, transit-encrypted.
	Key string `json:"key"`
}

// Login handles POST /login. The transit-encrypted master secret is
// decrypted, the vault is opened, and the fresh session token is returned.
// Wrong credentials (including an undecryptable key) are a 401; anything
// else is a 500.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	secret, err := h.Transit.Decrypt(req.Key)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	token, err := h.Sessions.Login(r.Context(), secret)
	if err != nil {
		if errors.Is(err, models.ErrAuthentication) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"token": token})
}

// Hello handles GET /hello, the liveness probe.
func (h *AuthHandler) Hello(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
