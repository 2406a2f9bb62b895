package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/jroca/siqscrape/internal/browser"
)

func TestRecordExpired(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name     string
		savedAt  time.Time
		maxAge   time.Duration
		expected bool
	}{
		{"fresh", now.Add(-time.Hour), 24 * time.Hour, false},
		{"just under", now.Add(-24*time.Hour + time.Minute), 24 * time.Hour, false},
		{"just over", now.Add(-24*time.Hour - time.Minute), 24 * time.Hour, true},
		{"ancient", now.Add(-14 * 24 * time.Hour), 24 * time.Hour, true},
	}

	for _, tt := range tests {
		r := &Record{SavedAt: tt.savedAt.UnixMilli()}
		if got := r.Expired(tt.maxAge, now); got != tt.expected {
			t.Errorf("%s: Expired = %v; want %v", tt.name, got, tt.expected)
		}
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(&StoreConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}

	rec, err := store.Load("rafa")
	if err != nil || rec != nil {
		t.Fatalf("Load on empty store = %v, %v; want nil, nil", rec, err)
	}

	saved := &Record{
		Cookies:        []*network.Cookie{{Name: "sid", Value: "abc", Domain: ".example.com"}},
		LocalStorage:   map[string]string{"token": "xyz"},
		SessionStorage: map[string]string{"state": "1"},
		Origin:         "https://example.com",
		SavedAt:        time.Now().UnixMilli(),
	}
	if err := store.Save("rafa", saved); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	loaded, err := store.Load("rafa")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded == nil {
		t.Fatal("Load returned nil record after Save")
	}
	if loaded.Origin != saved.Origin || loaded.SavedAt != saved.SavedAt {
		t.Errorf("loaded record = %+v; want %+v", loaded, saved)
	}
	if len(loaded.Cookies) != 1 || loaded.Cookies[0].Value != "abc" {
		t.Errorf("loaded cookies = %+v; want one cookie with value abc", loaded.Cookies)
	}
	if loaded.LocalStorage["token"] != "xyz" {
		t.Errorf("loaded local storage = %v; want token=xyz", loaded.LocalStorage)
	}

	if err := store.Clear("rafa"); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}
	if err := store.Clear("rafa"); err != nil {
		t.Fatalf("second Clear returned error: %v", err)
	}
	rec, err = store.Load("rafa")
	if err != nil || rec != nil {
		t.Errorf("Load after Clear = %v, %v; want nil, nil", rec, err)
	}
}

func TestFileStoreCorruptRecord(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(&StoreConfig{Dir: dir})
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	if err := os.MkdirAll(path.Join(dir, "sessions"), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path.Join(dir, "sessions", "rafa.json"), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Load("rafa"); err == nil {
		t.Errorf("Load of corrupt record returned nil error")
	}
}

func TestHTTPStore(t *testing.T) {
	records := map[string][]byte{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); !ok || user != "writer" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.Method {
		case http.MethodGet:
			data, ok := records[r.URL.Path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write(data)
		case http.MethodPut:
			var rec Record
			if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			data, _ := json.Marshal(rec)
			records[r.URL.Path] = data
			w.WriteHeader(http.StatusCreated)
		case http.MethodDelete:
			delete(records, r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer server.Close()

	store, err := NewHTTPStore(&StoreConfig{Uri: server.URL, User: "writer", Password: "secret"})
	if err != nil {
		t.Fatalf("NewHTTPStore returned error: %v", err)
	}

	rec, err := store.Load("miki")
	if err != nil || rec != nil {
		t.Fatalf("Load on empty store = %v, %v; want nil, nil", rec, err)
	}

	saved := &Record{Origin: "https://example.com", SavedAt: time.Now().UnixMilli()}
	if err := store.Save("miki", saved); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if _, ok := records["/sessions/miki"]; !ok {
		t.Fatalf("server did not receive record, got keys %v", records)
	}

	loaded, err := store.Load("miki")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded == nil || loaded.Origin != saved.Origin {
		t.Errorf("loaded record = %+v; want origin %s", loaded, saved.Origin)
	}

	if err := store.Clear("miki"); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}
	if err := store.Clear("miki"); err != nil {
		t.Fatalf("Clear of missing record returned error: %v", err)
	}
}

func newAuthenticatedMock(origin string) *browser.MockDriver {
	m := browser.NewMockDriver()
	m.AddPage(origin, &browser.MockPage{Text: "Good morning"})
	return m
}

func TestManagerRestoreReplaysState(t *testing.T) {
	origin := "https://example.com"
	store, _ := NewFileStore(&StoreConfig{Dir: t.TempDir()})
	rec := &Record{
		Cookies:      []*network.Cookie{{Name: "sid", Value: "abc"}},
		LocalStorage: map[string]string{"token": "xyz"},
		Origin:       origin,
		SavedAt:      time.Now().UnixMilli(),
	}
	if err := store.Save("rafa", rec); err != nil {
		t.Fatal(err)
	}

	m := newAuthenticatedMock(origin)
	mgr := NewManager(store, &StoreConfig{}, "rafa", origin)
	if !mgr.Restore(context.Background(), m) {
		t.Fatal("Restore = false; want true")
	}
	if len(m.CookieJar) != 1 || m.CookieJar[0].Value != "abc" {
		t.Errorf("cookies not replayed, jar = %+v", m.CookieJar)
	}
	if m.LocalItems["token"] != "xyz" {
		t.Errorf("local storage not replayed, items = %v", m.LocalItems)
	}
	if len(m.NavLog) < 2 {
		t.Errorf("expected navigation to origin and reload, got %v", m.NavLog)
	}
}

func TestManagerRestoreRejectsExpiredRecord(t *testing.T) {
	origin := "https://example.com"
	store, _ := NewFileStore(&StoreConfig{Dir: t.TempDir()})
	rec := &Record{
		Origin:  origin,
		SavedAt: time.Now().Add(-25 * time.Hour).UnixMilli(),
	}
	if err := store.Save("rafa", rec); err != nil {
		t.Fatal(err)
	}

	m := newAuthenticatedMock(origin)
	mgr := NewManager(store, &StoreConfig{}, "rafa", origin)
	if mgr.Restore(context.Background(), m) {
		t.Fatal("Restore = true for expired record; want false")
	}
	if len(m.NavLog) != 0 {
		t.Errorf("expired record still replayed, nav log = %v", m.NavLog)
	}
	// the expired record must be gone
	left, err := store.Load("rafa")
	if err != nil || left != nil {
		t.Errorf("expired record not cleared: %v, %v", left, err)
	}
}

func TestManagerRestoreMissesOnEmptyStore(t *testing.T) {
	origin := "https://example.com"
	store, _ := NewFileStore(&StoreConfig{Dir: t.TempDir()})
	m := newAuthenticatedMock(origin)
	mgr := NewManager(store, &StoreConfig{}, "rafa", origin)
	if mgr.Restore(context.Background(), m) {
		t.Fatal("Restore = true on empty store; want false")
	}
}

func TestManagerSaveCapturesState(t *testing.T) {
	origin := "https://example.com"
	store, _ := NewFileStore(&StoreConfig{Dir: t.TempDir()})
	m := newAuthenticatedMock(origin)
	if err := m.Navigate(context.Background(), origin); err != nil {
		t.Fatal(err)
	}
	m.CookieJar = []*network.Cookie{{Name: "sid", Value: "fresh"}}
	m.LocalItems["token"] = "tok"

	mgr := NewManager(store, &StoreConfig{}, "rafa", origin)
	mgr.Save(context.Background(), m)

	rec, err := store.Load("rafa")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if rec == nil {
		t.Fatal("no record persisted")
	}
	if len(rec.Cookies) != 1 || rec.Cookies[0].Value != "fresh" {
		t.Errorf("persisted cookies = %+v; want sid=fresh", rec.Cookies)
	}
	if rec.LocalStorage["token"] != "tok" {
		t.Errorf("persisted local storage = %v; want token=tok", rec.LocalStorage)
	}
	if rec.Origin != origin {
		t.Errorf("persisted origin = %q; want %q", rec.Origin, origin)
	}
	if rec.Expired(24*time.Hour, time.Now()) {
		t.Errorf("freshly saved record reports expired")
	}
}

func TestIsAuthenticated(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		present  []string
		expected bool
	}{
		{"dashboard", "https://example.com/dashboard", nil, true},
		{"login path", "https://example.com/login", nil, false},
		{"auth path", "https://example.com/auth/verify", nil, false},
		{"password field", "https://example.com/dashboard", []string{`input[type="password"]`}, false},
		{"login marker in query only", "https://example.com/dashboard?next=login", nil, true},
	}

	for _, tt := range tests {
		m := browser.NewMockDriver()
		m.AddPage(tt.url, &browser.MockPage{Present: tt.present})
		if err := m.Navigate(context.Background(), tt.url); err != nil {
			t.Fatal(err)
		}
		mgr := NewManager(nil, &StoreConfig{}, "rafa", "https://example.com")
		if got := mgr.IsAuthenticated(context.Background(), m); got != tt.expected {
			t.Errorf("%s: IsAuthenticated = %v; want %v", tt.name, got, tt.expected)
		}
	}
}

func TestPathHasLoginMarker(t *testing.T) {
	tests := []struct {
		url      string
		expected bool
	}{
		{"https://example.com/login", true},
		{"https://example.com/Auth/mfa", true},
		{"https://example.com/sign-in", true},
		{"https://example.com/#/login", true},
		{"https://example.com/dashboard", false},
		{"https://example.com/", false},
		{"/login", true},
	}

	for _, tt := range tests {
		if got := PathHasLoginMarker(tt.url); got != tt.expected {
			t.Errorf("PathHasLoginMarker(%q) = %v; want %v", tt.url, got, tt.expected)
		}
	}
}
