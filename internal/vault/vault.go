// Package vault adapts the external kdbx container library to the rest of
// the server. The container format itself (parsing, master-key encryption)
// is entirely owned by gokeepasslib; this package only exposes open and
// serialize primitives plus typed access to groups, entries, and the
// custom-icon table of an opened database.
package vault

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/tobischo/gokeepasslib/v3"
	w "github.com/tobischo/gokeepasslib/v3/wrappers"

	"github.com/kdbex/kdbexd/internal/models"
)

// Handle is an opened, decrypted vault held in memory. It is not safe for
// concurrent mutation; callers serialize access (see repository.Repository).
type Handle struct {
	db *gokeepasslib.Database
}

// Open decodes and unlocks a kdbx container from raw bytes.
//
// Decode and unlock failures are reported as models.ErrAuthentication: a
// wrong master secret is by far the dominant cause of a kdbx decode failure,
// and the library does not distinguish it from corruption in a typed way.
// I/O-level failures are the caller's to classify (it owns the read).
func Open(data []byte, password string) (*Handle, error) {
	db := gokeepasslib.NewDatabase()
	db.Credentials = gokeepasslib.NewPasswordCredentials(password)
	if err := gokeepasslib.NewDecoder(bytes.NewReader(data)).Decode(db); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrAuthentication, err)
	}
	if err := db.UnlockProtectedEntries(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrAuthentication, err)
	}
	return &Handle{db: db}, nil
}

// NewEmpty builds a fresh vault with a root group and an enabled recycle
// bin. Used on first run when no container exists yet.
func NewEmpty(password string) *Handle {
	root := gokeepasslib.NewGroup()
	root.Name = "Root"
	bin := gokeepasslib.NewGroup()
	bin.Name = "Recycle Bin"
	root.Groups = append(root.Groups, bin)

	meta := gokeepasslib.NewMetaData()
	meta.RecycleBinEnabled = w.NewBoolWrapper(true)
	meta.RecycleBinUUID = bin.UUID

	db := &gokeepasslib.Database{
		Header:      gokeepasslib.NewHeader(),
		Credentials: gokeepasslib.NewPasswordCredentials(password),
		Content: &gokeepasslib.DBContent{
			Meta: meta,
			Root: &gokeepasslib.RootData{
				Groups: []gokeepasslib.Group{root},
			},
		},
	}
	return &Handle{db: db}
}

// Serialize locks protected values and encodes the container to bytes.
// The handle is unlocked again before returning so in-memory reads keep
// working after a save.
func (h *Handle) Serialize() ([]byte, error) {
	if err := h.db.LockProtectedEntries(); err != nil {
		return nil, fmt.Errorf("lock protected entries: %w", err)
	}
	var buf bytes.Buffer
	err := gokeepasslib.NewEncoder(&buf).Encode(h.db)
	if unlockErr := h.db.UnlockProtectedEntries(); unlockErr != nil && err == nil {
		err = unlockErr
	}
	if err != nil {
		return nil, fmt.Errorf("encode vault: %w", err)
	}
	return buf.Bytes(), nil
}

// DefaultGroup returns the group new entries are created under.
func (h *Handle) DefaultGroup() *gokeepasslib.Group {
	return &h.db.Content.Root.Groups[0]
}

// RecycleBinID returns the current recycle-bin group id, or the zero UUID
// when the bin is disabled. Resolved fresh on every call so a bin changed
// at runtime is honored.
func (h *Handle) RecycleBinID() gokeepasslib.UUID {
	meta := h.db.Content.Meta
	if meta == nil || !meta.RecycleBinEnabled.Bool {
		return gokeepasslib.UUID{}
	}
	return meta.RecycleBinUUID
}

// RecycleBin returns the recycle-bin group, or nil when the bin is
// disabled or missing.
func (h *Handle) RecycleBin() *gokeepasslib.Group {
	bin := h.RecycleBinID()
	if bin == (gokeepasslib.UUID{}) {
		return nil
	}
	var found *gokeepasslib.Group
	for i := range h.db.Content.Root.Groups {
		if g := findGroup(&h.db.Content.Root.Groups[i], bin); g != nil {
			found = g
			break
		}
	}
	return found
}

func findGroup(g *gokeepasslib.Group, id gokeepasslib.UUID) *gokeepasslib.Group {
	if g.UUID.Compare(id) {
		return g
	}
	for i := range g.Groups {
		if found := findGroup(&g.Groups[i], id); found != nil {
			return found
		}
	}
	return nil
}

// InTrash reports whether parent is the recycle-bin group.
func (h *Handle) InTrash(parent *gokeepasslib.Group) bool {
	bin := h.RecycleBinID()
	if bin == (gokeepasslib.UUID{}) {
		return false
	}
	return parent.UUID.Compare(bin)
}

// ForEachEntry walks every entry in the vault's natural iteration order,
// passing each entry together with its immediate parent group. Returning
// false from fn stops the walk.
func (h *Handle) ForEachEntry(fn func(parent *gokeepasslib.Group, e *gokeepasslib.Entry) bool) {
	for i := range h.db.Content.Root.Groups {
		if !walkGroup(&h.db.Content.Root.Groups[i], fn) {
			return
		}
	}
}

func walkGroup(g *gokeepasslib.Group, fn func(parent *gokeepasslib.Group, e *gokeepasslib.Entry) bool) bool {
	for i := range g.Entries {
		if !fn(g, &g.Entries[i]) {
			return false
		}
	}
	for i := range g.Groups {
		if !walkGroup(&g.Groups[i], fn) {
			return false
		}
	}
	return true
}

// FindEntry locates an entry by id and returns it with its parent group.
// Both are nil when the id matches nothing.
func (h *Handle) FindEntry(id gokeepasslib.UUID) (*gokeepasslib.Entry, *gokeepasslib.Group) {
	var entry *gokeepasslib.Entry
	var parent *gokeepasslib.Group
	h.ForEachEntry(func(g *gokeepasslib.Group, e *gokeepasslib.Entry) bool {
		if e.UUID.Compare(id) {
			entry, parent = e, g
			return false
		}
		return true
	})
	return entry, parent
}

// AddEntry appends e to the default group and returns a pointer to the
// stored copy.
func (h *Handle) AddEntry(e gokeepasslib.Entry) *gokeepasslib.Entry {
	g := h.DefaultGroup()
	g.Entries = append(g.Entries, e)
	return &g.Entries[len(g.Entries)-1]
}

// Icon returns the stored bytes for an icon id.
func (h *Handle) Icon(id gokeepasslib.UUID) ([]byte, bool) {
	for _, icon := range h.db.Content.Meta.CustomIcons {
		if icon.UUID.Compare(id) {
			data, err := base64.StdEncoding.DecodeString(icon.Data)
			if err != nil {
				return nil, false
			}
			return data, true
		}
	}
	return nil, false
}

// PutIcon stores data under id in the vault's custom-icon table, replacing
// any previous bytes for that id.
func (h *Handle) PutIcon(id gokeepasslib.UUID, data []byte) {
	encoded := base64.StdEncoding.EncodeToString(data)
	meta := h.db.Content.Meta
	for i := range meta.CustomIcons {
		if meta.CustomIcons[i].UUID.Compare(id) {
			meta.CustomIcons[i].Data = encoded
			return
		}
	}
	meta.CustomIcons = append(meta.CustomIcons, gokeepasslib.CustomIcon{
		UUID: id,
		Data: encoded,
	})
}

// SetValue upserts a key/value string on an entry, marking it protected
// when asked (protected values are encrypted inside the container).
func SetValue(e *gokeepasslib.Entry, key, value string, protected bool) {
	v := gokeepasslib.V{Content: value}
	if protected {
		v.Protected = w.NewBoolWrapper(true)
	}
	for i := range e.Values {
		if e.Values[i].Key == key {
			e.Values[i].Value = v
			return
		}
	}
	e.Values = append(e.Values, gokeepasslib.ValueData{Key: key, Value: v})
}

// Touch updates the entry's last-modification time.
func Touch(e *gokeepasslib.Entry) {
	now := w.Now()
	e.Times.LastModificationTime = &now
}

// IDString renders a vault UUID for the API surface.
func IDString(id gokeepasslib.UUID) string {
	return hex.EncodeToString(id[:])
}

// ParseID parses a hex id back into a vault UUID.
func ParseID(s string) (gokeepasslib.UUID, error) {
	var id gokeepasslib.UUID
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(id) {
		return id, fmt.Errorf("%w: bad entry id %q", models.ErrNotFound, s)
	}
	copy(id[:], raw)
	return id, nil
}
