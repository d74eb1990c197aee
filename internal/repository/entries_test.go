package repository_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tobischo/gokeepasslib/v3"
	"go.uber.org/zap"

	"github.com/kdbex/kdbexd/internal/models"
	"github.com/kdbex/kdbexd/internal/repository"
	"github.com/kdbex/kdbexd/internal/vault"
)

type fakeSessions struct {
	handle *vault.Handle
	err    error
}

func (f *fakeSessions) Handle() (*vault.Handle, error) {
	return f.handle, f.err
}

// fakeTransit prefixes instead of encrypting so tests can see through it.
type fakeTransit struct{}

func (fakeTransit) Encrypt(plaintext string) (string, error) {
	return "enc:" + plaintext, nil
}

func (fakeTransit) Decrypt(ciphertext string) (string, error) {
	plaintext, ok := strings.CutPrefix(ciphertext, "enc:")
	if !ok {
		return "", models.ErrTransitDecrypt
	}
	return plaintext, nil
}

type fakeIcons struct {
	calls  int
	result gokeepasslib.UUID
}

func (f *fakeIcons) Resolve(_ context.Context, _ *vault.Handle, _ string, existing gokeepasslib.UUID, _ string) gokeepasslib.UUID {
	f.calls++
	if f.result != (gokeepasslib.UUID{}) {
		return f.result
	}
	return existing
}

type fakeSaver struct {
	calls int
	err   error
}

func (f *fakeSaver) Save(context.Context) error {
	f.calls++
	return f.err
}

func newRepo(t *testing.T) (*repository.Repository, *vault.Handle, *fakeSaver, *fakeIcons) {
	t.Helper()
	h := vault.NewEmpty("pw")
	saver := &fakeSaver{}
	icons := &fakeIcons{}
	repo := repository.New(&fakeSessions{handle: h}, fakeTransit{}, icons, saver, zap.NewNop())
	return repo, h, saver, icons
}

func addEntry(h *vault.Handle, title, url, username string) *gokeepasslib.Entry {
	e := gokeepasslib.NewEntry()
	vault.SetValue(&e, "Title", title, false)
	vault.SetValue(&e, "URL", url, false)
	vault.SetValue(&e, "UserName", username, false)
	return h.AddEntry(e)
}

func addTrashedEntry(t *testing.T, h *vault.Handle, title, url string) *gokeepasslib.Entry {
	t.Helper()
	bin := h.RecycleBin()
	if bin == nil {
		t.Fatal("vault has no recycle bin")
	}
	e := gokeepasslib.NewEntry()
	vault.SetValue(&e, "Title", title, false)
	vault.SetValue(&e, "URL", url, false)
	bin.Entries = append(bin.Entries, e)
	return &bin.Entries[len(bin.Entries)-1]
}

func TestSearchByTitle(t *testing.T) {
	repo, h, _, _ := newRepo(t)
	addEntry(h, "Mail Account", "http://mail.com", "a@b.com")
	addEntry(h, "Bank", "http://bank.com", "me")
	addTrashedEntry(t, h, "Old Mail", "http://mail.com")

	items, err := repo.SearchByTitle("mail")
	if err != nil {
		t.Fatalf("SearchByTitle failed: %v", err)
	}
	if len(items) != 1 || items[0].Title != "Mail Account" {
		t.Errorf("items = %+v; want only the live mail entry", items)
	}
}

func TestSearchByURL(t *testing.T) {
	repo, h, _, _ := newRepo(t)
	addEntry(h, "Mail", "http://MAIL.example.com", "a")
	addEntry(h, "Bank", "http://bank.com", "b")
	addTrashedEntry(t, h, "Gone", "http://mail.example.com")

	items, err := repo.SearchByURL("mail.example")
	if err != nil {
		t.Fatalf("SearchByURL failed: %v", err)
	}
	if len(items) != 1 || items[0].Title != "Mail" {
		t.Errorf("items = %+v; want only the live entry", items)
	}
}

func TestSearch_NoSession(t *testing.T) {
	repo := repository.New(&fakeSessions{err: models.ErrNoSession}, fakeTransit{}, &fakeIcons{}, &fakeSaver{}, zap.NewNop())
	if _, err := repo.SearchByTitle("x"); !errors.Is(err, models.ErrNoSession) {
		t.Fatalf("error = %v; want ErrNoSession", err)
	}
}

func TestGetByID_Disclosure(t *testing.T) {
	repo, h, _, _ := newRepo(t)
	e := addEntry(h, "Mail", "http://mail.com", "a@b.com")
	vault.SetValue(e, "Password", "secret", true)
	id := vault.IDString(e.UUID)

	bare, err := repo.GetByID(id, models.Disclosure{})
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if bare.Username != "" || bare.PasswordHash != "" {
		t.Errorf("undisclosed fields leaked: %+v", bare)
	}

	full, err := repo.GetByID(id, models.Disclosure{IncludeUsername: true, IncludePassword: true})
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if full.Username != "a@b.com" {
		t.Errorf("Username = %q; want a@b.com", full.Username)
	}
	if full.PasswordHash != "enc:secret" {
		t.Errorf("PasswordHash = %q; want transit ciphertext, never plaintext", full.PasswordHash)
	}
}

func TestGetByID_NotFoundAndTrash(t *testing.T) {
	repo, h, _, _ := newRepo(t)
	trashed := addTrashedEntry(t, h, "Gone", "http://gone.com")

	if _, err := repo.GetByID(vault.IDString(trashed.UUID), models.Disclosure{}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("trashed entry error = %v; want ErrNotFound", err)
	}
	if _, err := repo.GetByID(vault.IDString(gokeepasslib.NewUUID()), models.Disclosure{}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown id error = %v; want ErrNotFound", err)
	}
	if _, err := repo.GetByID("not-hex", models.Disclosure{}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("malformed id error = %v; want ErrNotFound", err)
	}
}

func TestCreate_RoundTrip(t *testing.T) {
	repo, _, saver, _ := newRepo(t)

	item, err := repo.Create(context.Background(), models.CreateSpec{
		Title:        "Mail",
		URL:          "http://mail.com",
		Username:     "a@b.com",
		PasswordHash: "enc:secret",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if item.Title != "Mail" {
		t.Errorf("Title = %q; want Mail", item.Title)
	}
	if saver.calls != 1 {
		t.Errorf("Save calls = %d; want 1", saver.calls)
	}

	details, err := repo.GetByID(item.ID, models.Disclosure{IncludeUsername: true, IncludePassword: true})
	if err != nil {
		t.Fatalf("GetByID after create failed: %v", err)
	}
	if details.Username != "a@b.com" || details.PasswordHash != "enc:secret" {
		t.Errorf("details = %+v; want created values back", details)
	}
}

func TestCreate_BadTransitCiphertext(t *testing.T) {
	repo, _, saver, _ := newRepo(t)
	_, err := repo.Create(context.Background(), models.CreateSpec{
		Title:        "Mail",
		PasswordHash: "plaintext-not-encrypted",
	})
	if !errors.Is(err, models.ErrTransitDecrypt) {
		t.Fatalf("error = %v; want ErrTransitDecrypt", err)
	}
	if saver.calls != 0 {
		t.Error("nothing should be saved when decrypt fails")
	}
}

func TestCreate_PersistenceFailure(t *testing.T) {
	repo, _, saver, _ := newRepo(t)
	saver.err = errors.New("disk full")

	_, err := repo.Create(context.Background(), models.CreateSpec{
		Title:        "Mail",
		PasswordHash: "enc:secret",
	})
	if !errors.Is(err, models.ErrPersistence) {
		t.Fatalf("error = %v; want ErrPersistence", err)
	}
}

func TestCreate_WithFavicon(t *testing.T) {
	repo, h, _, icons := newRepo(t)
	icons.result = gokeepasslib.NewUUID()

	item, err := repo.Create(context.Background(), models.CreateSpec{
		Title:        "Mail",
		URL:          "http://mail.com",
		PasswordHash: "enc:secret",
		FaviconURL:   "http://mail.com/favicon.ico",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if icons.calls != 1 {
		t.Errorf("Resolve calls = %d; want 1", icons.calls)
	}
	uuid, err := vault.ParseID(item.ID)
	if err != nil {
		t.Fatal(err)
	}
	entry, _ := h.FindEntry(uuid)
	if !entry.CustomIconUUID.Compare(icons.result) {
		t.Error("resolved icon id not attached to the entry")
	}
}

func TestUpdate_PartialPatch(t *testing.T) {
	repo, h, saver, _ := newRepo(t)
	e := addEntry(h, "Mail", "http://old.com", "a@b.com")
	vault.SetValue(e, "Password", "secret", true)

	url := "http://new.com"
	ok := repo.Update(context.Background(), models.UpdateSpec{
		ID:  vault.IDString(e.UUID),
		URL: &url,
	})
	if !ok {
		t.Fatal("Update returned false")
	}
	if saver.calls != 1 {
		t.Errorf("Save calls = %d; want 1", saver.calls)
	}

	if got := e.GetContent("URL"); got != "http://new.com" {
		t.Errorf("URL = %q; want http://new.com", got)
	}
	if got := e.GetContent("UserName"); got != "a@b.com" {
		t.Errorf("UserName changed to %q; want untouched", got)
	}
	if got := e.GetPassword(); got != "secret" {
		t.Errorf("Password changed to %q; want untouched", got)
	}
}

func TestUpdate_Password(t *testing.T) {
	repo, h, _, _ := newRepo(t)
	e := addEntry(h, "Mail", "http://mail.com", "a@b.com")
	vault.SetValue(e, "Password", "old", true)

	hash := "enc:new"
	if !repo.Update(context.Background(), models.UpdateSpec{ID: vault.IDString(e.UUID), PasswordHash: &hash}) {
		t.Fatal("Update returned false")
	}
	if got := e.GetPassword(); got != "new" {
		t.Errorf("Password = %q; want new", got)
	}
}

func TestUpdate_UnknownOrTrashed(t *testing.T) {
	repo, h, saver, _ := newRepo(t)
	trashed := addTrashedEntry(t, h, "Gone", "http://gone.com")
	title := "x"

	if repo.Update(context.Background(), models.UpdateSpec{ID: vault.IDString(gokeepasslib.NewUUID()), Title: &title}) {
		t.Error("unknown id must return false")
	}
	if repo.Update(context.Background(), models.UpdateSpec{ID: vault.IDString(trashed.UUID), Title: &title}) {
		t.Error("trashed entry must return false")
	}
	if saver.calls != 0 {
		t.Error("failed updates must not save")
	}
}

func TestUpdate_PersistenceFailure(t *testing.T) {
	repo, h, saver, _ := newRepo(t)
	e := addEntry(h, "Mail", "http://mail.com", "a@b.com")
	saver.err = errors.New("disk full")
	title := "x"

	if repo.Update(context.Background(), models.UpdateSpec{ID: vault.IDString(e.UUID), Title: &title}) {
		t.Error("Update must return false when persistence fails")
	}
}
