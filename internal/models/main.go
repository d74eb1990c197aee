// Package models defines the data structures exchanged between the vault
// repository, the synchronization layer, and the HTTP handlers.
package models

import "time"

// ListItem is the projection returned by search operations and by create:
// just enough to identify an entry in a picker UI.
type ListItem struct {
	// ID is the vault-assigned unique identifier of the entry, hex encoded.
	ID string `json:"id"`
	// Title is the display name of the entry.
	Title string `json:"title"`
}

// Details is the projection returned by a read of a single entry.
// Username and PasswordHash are present only when the corresponding
// disclosure flag was set on the request. PasswordHash is always the
// transit-cipher ciphertext of the stored password, never plaintext.
type Details struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Username     string `json:"username,omitempty"`
	PasswordHash string `json:"passwordHash,omitempty"`
}

// Disclosure selects which sensitive fields a read operation returns.
type Disclosure struct {
	IncludeUsername bool
	IncludePassword bool
}

// DisclosureFromCode translates the wire-level bitmask (bit 0 = username,
// bit 1 = password) into a Disclosure value.
func DisclosureFromCode(code int) Disclosure {
	return Disclosure{
		IncludeUsername: code&1 != 0,
		IncludePassword: code&2 != 0,
	}
}

// CreateSpec describes a new entry. PasswordHash carries the password
// encrypted with the transit cipher; it is decrypted server-side before
// being stored as the entry's protected password.
type CreateSpec struct {
	Title        string `json:"title"`
	URL          string `json:"url"`
	Username     string `json:"username"`
	PasswordHash string `json:"pwHash"`
	FaviconURL   string `json:"faviconUrl,omitempty"`
}

// UpdateSpec describes a partial patch of an existing entry. Nil fields are
// left untouched; non-nil fields replace the stored value. PasswordHash, if
// set, goes through the same transit-decrypt path as on create.
type UpdateSpec struct {
	ID           string  `json:"id"`
	Title        *string `json:"title,omitempty"`
	URL          *string `json:"url,omitempty"`
	Username     *string `json:"username,omitempty"`
	PasswordHash *string `json:"pwHash,omitempty"`
	FaviconURL   *string `json:"faviconUrl,omitempty"`
}

// SyncState holds the last-known modification instants used to decide
// reconciliation direction against the remote vault copy. Both dates are
// monotonic non-decreasing across successful reconciliations.
type SyncState struct {
	// LocalDate is the on-disk modification time of the vault file as of
	// the last successful sync action.
	LocalDate time.Time `json:"localDate"`
	// RemoteDate is the remote object's last-modified time as of the last
	// successful sync action.
	RemoteDate time.Time `json:"remoteDate"`
}
