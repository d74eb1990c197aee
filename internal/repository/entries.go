// Package repository implements search, read, create, and update of
// credential entries against the vault handle held by the current session.
package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tobischo/gokeepasslib/v3"
	"go.uber.org/zap"

	"github.com/kdbex/kdbexd/internal/models"
	"github.com/kdbex/kdbexd/internal/vault"
)

// Sessions provides the live vault handle. Satisfied by *session.Store.
type Sessions interface {
	Handle() (*vault.Handle, error)
}

// Transit is the transit cipher surface the repository needs: passwords
// arrive transit-encrypted and leave transit-encrypted.
type Transit interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// IconResolver resolves and deduplicates favicon assets.
type IconResolver interface {
	Resolve(ctx context.Context, h *vault.Handle, faviconURL string, existing gokeepasslib.UUID, entryURL string) gokeepasslib.UUID
}

// Saver persists the current vault state.
type Saver interface {
	Save(ctx context.Context) error
}

// Repository executes entry operations over the session's vault handle.
// A single mutex serializes read-modify-write operations and saves so
// concurrent requests cannot interleave into a corrupt serialized vault.
type Repository struct {
	mu       sync.Mutex
	sessions Sessions
	transit  Transit
	icons    IconResolver
	saver    Saver
	log      *zap.Logger
}

// New constructs a Repository.
func New(sessions Sessions, transit Transit, icons IconResolver, saver Saver, log *zap.Logger) *Repository {
	return &Repository{
		sessions: sessions,
		transit:  transit,
		icons:    icons,
		saver:    saver,
		log:      log,
	}
}

// SearchByTitle returns entries whose title contains fragment,
// case-insensitive, excluding the recycle bin.
func (r *Repository) SearchByTitle(fragment string) ([]models.ListItem, error) {
	return r.search(fragment, func(e *gokeepasslib.Entry) string { return e.GetTitle() })
}

// SearchByURL returns entries whose URL contains fragment,
// case-insensitive, excluding the recycle bin.
func (r *Repository) SearchByURL(fragment string) ([]models.ListItem, error) {
	return r.search(fragment, func(e *gokeepasslib.Entry) string { return e.GetContent("URL") })
}

func (r *Repository) search(fragment string, field func(*gokeepasslib.Entry) string) ([]models.ListItem, error) {
	h, err := r.sessions.Handle()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(fragment)

	items := []models.ListItem{}
	h.ForEachEntry(func(g *gokeepasslib.Group, e *gokeepasslib.Entry) bool {
		if h.InTrash(g) {
			return true
		}
		if strings.Contains(strings.ToLower(field(e)), needle) {
			items = append(items, models.ListItem{
				ID:    vault.IDString(e.UUID),
				Title: e.GetTitle(),
			})
		}
		return true
	})
	return items, nil
}

// GetByID returns the entry's details with sensitive fields gated by the
// disclosure flags. The password is never returned in plaintext; when
// disclosed it is the transit-cipher ciphertext of the stored secret.
// Entries in the recycle bin are reported as not found.
func (r *Repository) GetByID(id string, disclose models.Disclosure) (*models.Details, error) {
	h, err := r.sessions.Handle()
	if err != nil {
		return nil, err
	}
	uuid, err := vault.ParseID(id)
	if err != nil {
		return nil, err
	}

	entry, parent := h.FindEntry(uuid)
	if entry == nil || h.InTrash(parent) {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}

	details := &models.Details{
		ID:    vault.IDString(entry.UUID),
		Title: entry.GetTitle(),
	}
	if disclose.IncludeUsername {
		details.Username = entry.GetContent("UserName")
	}
	if disclose.IncludePassword {
		hash, err := r.transit.Encrypt(entry.GetPassword())
		if err != nil {
			return nil, err
		}
		details.PasswordHash = hash
	}
	return details, nil
}

// Create adds a new entry under the default group and persists the vault.
// The transit-encrypted password is decrypted and stored as the entry's
// protected password. A favicon URL, when given, is resolved and attached;
// resolution failure does not fail the create.
func (r *Repository) Create(ctx context.Context, spec models.CreateSpec) (*models.ListItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, err := r.sessions.Handle()
	if err != nil {
		return nil, err
	}
	password, err := r.transit.Decrypt(spec.PasswordHash)
	if err != nil {
		return nil, err
	}

	entry := gokeepasslib.NewEntry()
	vault.SetValue(&entry, "Title", spec.Title, false)
	vault.SetValue(&entry, "URL", spec.URL, false)
	vault.SetValue(&entry, "UserName", spec.Username, false)
	vault.SetValue(&entry, "Password", password, true)

	if spec.FaviconURL != "" {
		entry.CustomIconUUID = r.icons.Resolve(ctx, h, spec.FaviconURL, entry.CustomIconUUID, spec.URL)
	}

	stored := h.AddEntry(entry)
	if err := r.saver.Save(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	r.log.Info("entry created", zap.String("id", vault.IDString(stored.UUID)))
	return &models.ListItem{
		ID:    vault.IDString(stored.UUID),
		Title: stored.GetTitle(),
	}, nil
}

// Update patches an existing entry: each provided field replaces the stored
// one, omitted fields are untouched. It returns false, not an error, when
// the id matches no entry (entries in the recycle bin included) and when
// persistence fails.
func (r *Repository) Update(ctx context.Context, spec models.UpdateSpec) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, err := r.sessions.Handle()
	if err != nil {
		return false
	}
	uuid, err := vault.ParseID(spec.ID)
	if err != nil {
		return false
	}
	entry, parent := h.FindEntry(uuid)
	if entry == nil || h.InTrash(parent) {
		return false
	}

	if spec.Title != nil {
		vault.SetValue(entry, "Title", *spec.Title, false)
	}
	if spec.URL != nil {
		vault.SetValue(entry, "URL", *spec.URL, false)
	}
	if spec.Username != nil {
		vault.SetValue(entry, "UserName", *spec.Username, false)
	}
	if spec.PasswordHash != nil {
		password, err := r.transit.Decrypt(*spec.PasswordHash)
		if err != nil {
			return false
		}
		vault.SetValue(entry, "Password", password, true)
	}
	if spec.FaviconURL != nil && *spec.FaviconURL != "" {
		entry.CustomIconUUID = r.icons.Resolve(ctx, h, *spec.FaviconURL, entry.CustomIconUUID, entry.GetContent("URL"))
	}
	vault.Touch(entry)

	if err := r.saver.Save(ctx); err != nil {
		r.log.Error("update not persisted", zap.String("id", spec.ID), zap.Error(err))
		return false
	}
	return true
}
