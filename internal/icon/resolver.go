// Package icon resolves favicon assets for vault entries and deduplicates
// them by shared URL, storing the fetched bytes in the vault's custom-icon
// table.
package icon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tobischo/gokeepasslib/v3"
	"go.uber.org/zap"

	"github.com/kdbex/kdbexd/internal/vault"
)

const (
	fetchTimeout = 10 * time.Second
	// maxIconSize bounds how much of a favicon response is read into the vault.
	maxIconSize = 1 << 20
)

// Resolver fetches favicons over HTTP. The client is injectable for tests;
// a nil client gets a default with a bounded timeout.
type Resolver struct {
	client *http.Client
	log    *zap.Logger
}

// New constructs a Resolver. client may be nil.
func New(client *http.Client, log *zap.Logger) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	return &Resolver{client: client, log: log}
}

// Resolve returns the icon id to attach to an entry with entryURL, given the
// entry's current icon id (zero UUID when it has none) and the favicon URL
// to fetch.
//
// An entry that already owns an icon keeps it, with no re-fetch. Otherwise
// the first entry in vault iteration order sharing entryURL donates its id,
// again with no fetch: two entries on the same site share one stored asset.
// Only a genuinely new icon triggers the single, non-retried network fetch;
// if that fails in any way the update is abandoned and the previous id is
// returned unchanged, so a failed fetch never clobbers a working icon.
func (r *Resolver) Resolve(ctx context.Context, h *vault.Handle, faviconURL string, existing gokeepasslib.UUID, entryURL string) gokeepasslib.UUID {
	var zero gokeepasslib.UUID
	if existing != zero {
		return existing
	}

	if entryURL != "" {
		var donated gokeepasslib.UUID
		h.ForEachEntry(func(_ *gokeepasslib.Group, e *gokeepasslib.Entry) bool {
			if e.GetContent("URL") == entryURL && e.CustomIconUUID != zero {
				donated = e.CustomIconUUID
				return false
			}
			return true
		})
		if donated != zero {
			return donated
		}
	}

	id := gokeepasslib.NewUUID()
	data, err := r.fetch(ctx, faviconURL)
	if err != nil {
		r.log.Warn("favicon fetch failed", zap.String("url", faviconURL), zap.Error(err))
		return existing
	}
	h.PutIcon(id, data)
	return id
}

func (r *Resolver) fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxIconSize))
}
