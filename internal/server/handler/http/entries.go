package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kdbex/kdbexd/internal/models"
)

// EntriesRepository defines the vault entry operations required by the
// HTTP handlers.
type EntriesRepository interface {
	SearchByTitle(fragment string) ([]models.ListItem, error)
	SearchByURL(fragment string) ([]models.ListItem, error)
	GetByID(id string, disclose models.Disclosure) (*models.Details, error)
	Create(ctx context.Context, spec models.CreateSpec) (*models.ListItem, error)
	Update(ctx context.Context, spec models.UpdateSpec) bool
}

// EntriesHandler handles HTTP requests for entry search, read, create, and
// update.
type EntriesHandler struct {
	Repo EntriesRepository
}

// ByName handles GET /entries/name/{name}: case-insensitive title search.
func (h *EntriesHandler) ByName(w http.ResponseWriter, r *http.Request) {
	items, err := h.Repo.SearchByTitle(chi.URLParam(r, "name"))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, items)
}

// ByURL handles GET /entries/url/{url}: case-insensitive URL search.
func (h *EntriesHandler) ByURL(w http.ResponseWriter, r *http.Request) {
	items, err := h.Repo.SearchByURL(chi.URLParam(r, "url"))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, items)
}

// ByID handles GET /entries/id/{id}?code=N. The code bitmask selects the
// disclosed fields: bit 0 includes the username, bit 1 includes the
// transit-encrypted password.
func (h *EntriesHandler) ByID(w http.ResponseWriter, r *http.Request) {
	code, _ := strconv.Atoi(r.URL.Query().Get("code"))
	details, err := h.Repo.GetByID(chi.URLParam(r, "id"), models.DisclosureFromCode(code))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "entry not found", http.StatusNotFound)
			return
		}
		writeRepoError(w, err)
		return
	}
	writeJSON(w, details)
}

// Create handles POST /entries/create.
func (h *EntriesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var spec models.CreateSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	item, err := h.Repo.Create(r.Context(), spec)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, item)
}

// Update handles POST /entries/update. Partial patch: a missing field in
// the body leaves the stored field untouched. An unknown id or a failed
// save is a 500, per the original API contract.
func (h *EntriesHandler) Update(w http.ResponseWriter, r *http.Request) {
	var spec models.UpdateSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil || spec.ID == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if !h.Repo.Update(r.Context(), spec) {
		http.Error(w, "update failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeRepoError(w http.ResponseWriter, err error) {
	if errors.Is(err, models.ErrNoSession) {
		http.Error(w, "no active session", http.StatusUnauthorized)
		return
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}
