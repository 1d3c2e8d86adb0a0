package chat

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

	chatModel "github.com/avdeenko/trailmate/internal/model/chat"
	"github.com/avdeenko/trailmate/internal/service/conversation"
	"github.com/avdeenko/trailmate/internal/service/llm"
	"github.com/avdeenko/trailmate/internal/store"
)

type echoCompleter struct{}

func (echoCompleter) Complete(context.Context, []chatModel.Turn, string) (string, error) {
	return "Hi there", nil
}

func echoFactory(context.Context, string, string) (llm.Completer, error) {
	return echoCompleter{}, nil
}

func setupRouter(t *testing.T) (*chi.Mux, *store.SQLiteStore, *conversation.Manager) {
	t.Helper()

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite err: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	conversations := conversation.NewManager(repo, echoFactory)
	handler := New(conversations)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, repo, conversations
}

func postJSON(t *testing.T, r http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal err: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

// seedConversation stores a credential and both profiles, then selects
// them through the API.
func seedConversation(t *testing.T, r http.Handler, repo *store.SQLiteStore, platformID int64) {
	t.Helper()
	ctx := context.Background()

	if _, err := repo.EnsureUser(ctx, platformID); err != nil {
		t.Fatalf("EnsureUser err: %v", err)
	}
	if err := repo.SetCredential(ctx, platformID, "sk-test"); err != nil {
		t.Fatalf("SetCredential err: %v", err)
	}

	char, err := repo.CreateCharacter(ctx, platformID, "Sunday", "calm and wise")
	if err != nil {
		t.Fatalf("CreateCharacter err: %v", err)
	}
	pers, err := repo.CreatePersona(ctx, platformID, "Trailblazer", "curious explorer")
	if err != nil {
		t.Fatalf("CreatePersona err: %v", err)
	}

	base := fmt.Sprintf("/users/%d/chat", platformID)
	if resp := postJSON(t, r, base+"/character", map[string]int64{"characterId": char.ID}); resp.Code != http.StatusOK {
		t.Fatalf("select character: expected 200, got %d", resp.Code)
	}
	if resp := postJSON(t, r, base+"/persona", map[string]int64{"personaId": pers.ID}); resp.Code != http.StatusOK {
		t.Fatalf("select persona: expected 200, got %d", resp.Code)
	}
}

func TestSendMessageWithoutSelection(t *testing.T) {
	r, repo, _ := setupRouter(t)

	if _, err := repo.EnsureUser(context.Background(), 1); err != nil {
		t.Fatalf("EnsureUser err: %v", err)
	}

	resp := postJSON(t, r, "/users/1/chat/messages", map[string]string{"text": "Hello"})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if body["error"] != msgNoSelection {
		t.Fatalf("unexpected guard message: %q", body["error"])
	}
}

func TestSendMessageHappyPath(t *testing.T) {
	r, repo, _ := setupRouter(t)
	seedConversation(t, r, repo, 1)

	resp := postJSON(t, r, "/users/1/chat/messages", map[string]string{"text": "Hello"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if body["reply"] != "Hi there" {
		t.Fatalf("unexpected reply: %q", body["reply"])
	}
}

func TestSendMessageWithoutCredential(t *testing.T) {
	r, repo, _ := setupRouter(t)
	ctx := context.Background()

	if _, err := repo.EnsureUser(ctx, 1); err != nil {
		t.Fatalf("EnsureUser err: %v", err)
	}
	char, _ := repo.CreateCharacter(ctx, 1, "Sunday", "calm and wise")
	pers, _ := repo.CreatePersona(ctx, 1, "Trailblazer", "curious explorer")
	postJSON(t, r, "/users/1/chat/character", map[string]int64{"characterId": char.ID})
	postJSON(t, r, "/users/1/chat/persona", map[string]int64{"personaId": pers.ID})

	resp := postJSON(t, r, "/users/1/chat/messages", map[string]string{"text": "Hello"})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}

	var body map[string]string
	json.Unmarshal(resp.Body.Bytes(), &body)
	if body["error"] != msgNoCredential {
		t.Fatalf("unexpected guard message: %q", body["error"])
	}
}

func TestSelectCharacterNotFound(t *testing.T) {
	r, repo, _ := setupRouter(t)

	if _, err := repo.EnsureUser(context.Background(), 1); err != nil {
		t.Fatalf("EnsureUser err: %v", err)
	}

	resp := postJSON(t, r, "/users/1/chat/character", map[string]int64{"characterId": 42})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestStatusReflectsSelection(t *testing.T) {
	r, repo, _ := setupRouter(t)
	seedConversation(t, r, repo, 1)

	req := httptest.NewRequest(http.MethodGet, "/users/1/chat/status", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var status conversation.Status
	if err := json.Unmarshal(resp.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if status.Character != "Sunday" || status.Persona != "Trailblazer" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestResetWithoutSelection(t *testing.T) {
	r, _, _ := setupRouter(t)

	resp := postJSON(t, r, "/users/1/chat/reset", map[string]string{})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
}

func TestClearHistoryAlwaysSucceeds(t *testing.T) {
	r, _, _ := setupRouter(t)

	resp := postJSON(t, r, "/users/1/chat/history/clear", map[string]string{})
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
}

func TestStreamRequiresMessage(t *testing.T) {
	r, _, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/users/1/chat/stream", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestStreamDeliversReply(t *testing.T) {
	r, repo, _ := setupRouter(t)
	seedConversation(t, r, repo, 1)

	req := httptest.NewRequest(http.MethodGet, "/users/1/chat/stream?message=Hello", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	body := resp.Body.String()
	if !bytes.Contains([]byte(body), []byte(`"event":"message"`)) {
		t.Fatalf("stream missing message frame: %s", body)
	}
	if !bytes.Contains([]byte(body), []byte("Hi there")) {
		t.Fatalf("stream missing reply content: %s", body)
	}
}
