package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tobischo/gokeepasslib/v3"
)

func newTestEntry(title, url, username string) gokeepasslib.Entry {
	e := gokeepasslib.NewEntry()
	SetValue(&e, "Title", title, false)
	SetValue(&e, "URL", url, false)
	SetValue(&e, "UserName", username, false)
	return e
}

func TestSerializeOpenRoundTrip(t *testing.T) {
	h := NewEmpty("master")
	stored := h.AddEntry(newTestEntry("Mail", "http://mail.com", "a@b.com"))
	SetValue(stored, "Password", "secret", true)

	data, err := h.Serialize()
	require.NoError(t, err)

	reopened, err := Open(data, "master")
	require.NoError(t, err)

	entry, parent := reopened.FindEntry(stored.UUID)
	require.NotNil(t, entry)
	require.NotNil(t, parent)
	assert.Equal(t, "Mail", entry.GetTitle())
	assert.Equal(t, "http://mail.com", entry.GetContent("URL"))
	assert.Equal(t, "a@b.com", entry.GetContent("UserName"))
	assert.Equal(t, "secret", entry.GetPassword())
}

func TestOpen_WrongPassword(t *testing.T) {
	data, err := NewEmpty("master").Serialize()
	require.NoError(t, err)

	_, err = Open(data, "not the master")
	require.Error(t, err)
}

func TestSerialize_HandleStillReadable(t *testing.T) {
	h := NewEmpty("master")
	stored := h.AddEntry(newTestEntry("Mail", "http://mail.com", "a@b.com"))
	SetValue(stored, "Password", "secret", true)

	_, err := h.Serialize()
	require.NoError(t, err)

	// Protected values must be unlocked again after a save.
	entry, _ := h.FindEntry(stored.UUID)
	assert.Equal(t, "secret", entry.GetPassword())
}

func TestSetValue_Upsert(t *testing.T) {
	e := gokeepasslib.NewEntry()
	SetValue(&e, "URL", "http://old.com", false)
	SetValue(&e, "URL", "http://new.com", false)

	assert.Equal(t, "http://new.com", e.GetContent("URL"))
	count := 0
	for _, v := range e.Values {
		if v.Key == "URL" {
			count++
		}
	}
	assert.Equal(t, 1, count, "upsert must not duplicate the key")
}

func TestRecycleBin(t *testing.T) {
	h := NewEmpty("master")

	bin := h.RecycleBin()
	require.NotNil(t, bin)
	assert.True(t, h.InTrash(bin))
	assert.False(t, h.InTrash(h.DefaultGroup()))

	bin.Entries = append(bin.Entries, newTestEntry("Deleted", "http://gone.com", "x"))
	entry, parent := h.FindEntry(bin.Entries[0].UUID)
	require.NotNil(t, entry)
	assert.True(t, h.InTrash(parent))
}

func TestIconTable(t *testing.T) {
	h := NewEmpty("master")
	id := gokeepasslib.NewUUID()

	_, ok := h.Icon(id)
	assert.False(t, ok)

	h.PutIcon(id, []byte{1, 2, 3})
	data, ok := h.Icon(id)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, data)

	// Replacing bytes under the same id must not grow the table.
	h.PutIcon(id, []byte{9})
	data, ok = h.Icon(id)
	require.True(t, ok)
	assert.Equal(t, []byte{9}, data)
}

func TestIDStringParseID(t *testing.T) {
	id := gokeepasslib.NewUUID()
	parsed, err := ParseID(IDString(id))
	require.NoError(t, err)
	assert.True(t, parsed.Compare(id))

	_, err = ParseID("zz")
	assert.Error(t, err)
	_, err = ParseID("abcd")
	assert.Error(t, err, "wrong length")
}

func TestForEachEntry_Order(t *testing.T) {
	h := NewEmpty("master")
	h.AddEntry(newTestEntry("first", "http://a.com", ""))
	h.AddEntry(newTestEntry("second", "http://b.com", ""))

	var titles []string
	h.ForEachEntry(func(_ *gokeepasslib.Group, e *gokeepasslib.Entry) bool {
		titles = append(titles, e.GetTitle())
		return true
	})
	assert.Equal(t, []string{"first", "second"}, titles)
}
