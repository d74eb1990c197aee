package models

import "errors"

// Sentinel errors for the failure taxonomy. Callers branch on these with
// errors.Is; handlers map them to HTTP status codes.
var (
	// ErrAuthentication means the vault rejected the supplied master secret.
	ErrAuthentication = errors.New("wrong vault credentials")
	// ErrAuthorization means the request carried a missing or stale session token.
	ErrAuthorization = errors.New("missing or invalid session token")
	// ErrNotFound means no entry matches the requested id.
	ErrNotFound = errors.New("entry not found")
	// ErrPersistence means serializing or writing the vault failed.
	ErrPersistence = errors.New("vault persistence failed")
	// ErrTransitDecrypt means transit-cipher decryption failed (bad ciphertext or wrong key).
	ErrTransitDecrypt = errors.New("transit decrypt failed")
	// ErrNetwork means a favicon fetch or remote sync request failed.
	ErrNetwork = errors.New("network operation failed")
	// ErrConfig means required configuration is missing at startup.
	ErrConfig = errors.New("invalid configuration")
	// ErrNoSession means an operation needing an open vault ran before login.
	ErrNoSession = errors.New("no active session")
)
