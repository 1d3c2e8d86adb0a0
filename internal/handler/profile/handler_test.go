package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	profileModel "github.com/avdeenko/trailmate/internal/model/profile"
	"github.com/avdeenko/trailmate/internal/store"
)

func setupRouter(t *testing.T) (*chi.Mux, *store.SQLiteStore) {
	t.Helper()

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite err: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	handler := New(repo)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, repo
}

func TestCharacterCRUD(t *testing.T) {
	r, repo := setupRouter(t)

	if _, err := repo.EnsureUser(context.Background(), 1); err != nil {
		t.Fatalf("EnsureUser err: %v", err)
	}

	payload, _ := json.Marshal(map[string]string{"name": "Sunday", "prompt": "calm and wise"})
	req := httptest.NewRequest(http.MethodPost, "/users/1/characters/", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var created profileModel.Profile
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if created.ID == 0 || created.Name != "Sunday" {
		t.Fatalf("unexpected created profile: %+v", created)
	}

	req = httptest.NewRequest(http.MethodGet, "/users/1/characters/", nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", resp.Code)
	}
	var listed []profileModel.Profile
	if err := json.Unmarshal(resp.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(listed) != 1 || listed[0].Name != "Sunday" {
		t.Fatalf("unexpected list: %+v", listed)
	}

	req = httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/users/1/characters/%d", created.ID), nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp.Code)
	}

	// Second delete finds nothing.
	req = httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/users/1/characters/%d", created.ID), nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("delete again: expected 404, got %d", resp.Code)
	}
}

func TestCreatePersonaValidation(t *testing.T) {
	r, repo := setupRouter(t)

	if _, err := repo.EnsureUser(context.Background(), 1); err != nil {
		t.Fatalf("EnsureUser err: %v", err)
	}

	payload := []byte(`{"name": "Trailblazer"}`)
	req := httptest.NewRequest(http.MethodPost, "/users/1/personas/", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestListForUnknownUser(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/users/404/personas/", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestListEmptyReturnsArray(t *testing.T) {
	r, repo := setupRouter(t)

	if _, err := repo.EnsureUser(context.Background(), 1); err != nil {
		t.Fatalf("EnsureUser err: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/users/1/characters/", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := resp.Body.String(); got != "[]\n" {
		t.Fatalf("expected empty JSON array, got %q", got)
	}
}
