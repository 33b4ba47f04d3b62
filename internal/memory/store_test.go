package memory

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/clio-ai/clio/internal/session"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "memory.db"), nil)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAndGetBumpsAccess(t *testing.T) {
	store := newTestStore(t)

	id, err := store.Create(&Node{
		Name:            "schema notes",
		Content:         "sessions are stored as json documents",
		Tags:            []string{"storage"},
		ImportanceScore: 70,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	node, err := store.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if node.AccessCount != 1 {
		t.Errorf("first Get should record access 1, got %d", node.AccessCount)
	}

	node, _ = store.Get(id)
	if node.AccessCount != 2 {
		t.Errorf("second Get should record access 2, got %d", node.AccessCount)
	}
	if node.Tags[0] != "storage" {
		t.Errorf("tags not persisted: %v", node.Tags)
	}
}

func TestExistsAndDelete(t *testing.T) {
	store := newTestStore(t)
	id, _ := store.Create(&Node{Name: "n", Content: "c"})

	ok, err := store.Exists(id)
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}

	if err := store.Delete(id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	ok, _ = store.Exists(id)
	if ok {
		t.Error("deleted node still exists")
	}
}

func TestSearchByKeyword(t *testing.T) {
	store := newTestStore(t)
	dbNode, _ := store.Create(&Node{Name: "db layout", Content: "the checkpoint table lives in sqlite"})
	_, _ = store.Create(&Node{Name: "http notes", Content: "providers are called over plain http"})

	ids, err := store.Search("sqlite", nil, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != dbNode {
		t.Errorf("Search(sqlite) = %v, want [%s]", ids, dbNode)
	}

	ids, _ = store.Search("zeppelin", nil, 10)
	if len(ids) != 0 {
		t.Errorf("Search(zeppelin) = %v", ids)
	}
}

func TestCreateFromSession(t *testing.T) {
	store := newTestStore(t)
	entries := []session.HistoryEntry{
		{Role: session.RoleUser, Content: "how do I open a socket?", Timestamp: time.Now()},
		{Role: session.RoleAssistant, Content: "use net.Dial", Timestamp: time.Now()},
	}

	id, err := store.CreateFromSession("session_x", entries, "socket help", "")
	if err != nil {
		t.Fatalf("CreateFromSession failed: %v", err)
	}

	node, _ := store.Get(id)
	if !strings.Contains(node.Content, "[user] how do I open a socket?") {
		t.Errorf("distilled content missing user turn: %q", node.Content)
	}
	if node.ImportanceScore < 30 {
		t.Errorf("distilled node should clear the importance floor, got %d", node.ImportanceScore)
	}

	linked, _ := store.SessionNodes("session_x")
	if len(linked) != 1 || linked[0] != id {
		t.Errorf("SessionNodes = %v", linked)
	}

	if _, err := store.CreateFromSession("session_y", nil, "empty", ""); err == nil {
		t.Error("empty entries should be rejected")
	}
}

func TestAssociateSessionIdempotent(t *testing.T) {
	store := newTestStore(t)
	id, _ := store.Create(&Node{Name: "n", Content: "c"})

	ok, err := store.AssociateSession(id, "s1")
	if err != nil || !ok {
		t.Fatalf("AssociateSession = %v, %v", ok, err)
	}
	ok, err = store.AssociateSession(id, "s1")
	if err != nil || !ok {
		t.Fatalf("repeat AssociateSession = %v, %v", ok, err)
	}

	linked, _ := store.SessionNodes("s1")
	if len(linked) != 1 {
		t.Errorf("expected one link after repeat association, got %v", linked)
	}

	ok, err = store.AssociateSession("memory_missing", "s1")
	if err != nil {
		t.Fatalf("AssociateSession on missing node errored: %v", err)
	}
	if ok {
		t.Error("association with a missing node should report false")
	}
}

func TestRecentlyAccessedPrefersImportance(t *testing.T) {
	store := newTestStore(t)
	big, _ := store.Create(&Node{Name: "big", Content: "c", ImportanceScore: 100})
	small, _ := store.Create(&Node{Name: "small", Content: "c", ImportanceScore: 0})

	ids, err := store.RecentlyAccessed(2)
	if err != nil {
		t.Fatalf("RecentlyAccessed failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != big || ids[1] != small {
		t.Errorf("RecentlyAccessed = %v, want [%s %s]", ids, big, small)
	}
}

func TestGenerateContext(t *testing.T) {
	store := newTestStore(t)
	id, _ := store.Create(&Node{
		Name:        "api conventions",
		Description: "what the backend expects",
		Content:     "always send stream=false",
		Tags:        []string{"providers"},
	})

	out, err := store.GenerateContext([]string{id, "memory_missing"}, 1000)
	if err != nil {
		t.Fatalf("GenerateContext failed: %v", err)
	}
	if !strings.Contains(out, "## Memory Node: api conventions") {
		t.Errorf("missing node block: %q", out)
	}
	if !strings.Contains(out, "**Tags:** providers") {
		t.Errorf("missing tags line: %q", out)
	}

	out, _ = store.GenerateContext([]string{id}, 1)
	if out != "" {
		t.Errorf("tiny budget should yield empty context, got %q", out)
	}
}
