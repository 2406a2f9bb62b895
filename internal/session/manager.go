package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jroca/siqscrape/internal/browser"
	"github.com/jroca/siqscrape/internal/log"
)

// loginMarkers are URL path fragments that indicate an unauthenticated
// page.
var loginMarkers = []string{"login", "signin", "sign-in", "auth"}

// The Manager replays and captures session state through a browser
// driver. All of its operations are best-effort: a broken cache must
// never break a run, the worst case is a fresh login.
type Manager struct {
	store    Store
	username string
	origin   string
	maxAge   time.Duration
}

func NewManager(store Store, sc *StoreConfig, username, origin string) *Manager {
	maxAgeHours := sc.MaxAgeHours
	if maxAgeHours == 0 {
		maxAgeHours = 24 // default
	}
	return &Manager{
		store:    store,
		username: username,
		origin:   origin,
		maxAge:   time.Duration(maxAgeHours) * time.Hour,
	}
}

// Restore loads the cached record and replays it into the browser.
// It reports false whenever no record exists, the record is expired or
// replay does not end on an authenticated page; callers then proceed
// to a fresh login.
func (m *Manager) Restore(ctx context.Context, drv browser.Driver) bool {
	logger := log.LoggerFromContext(ctx).With(slog.String("component", "session"))
	rec, err := m.store.Load(m.username)
	if err != nil {
		logger.Debug(fmt.Sprintf("failed to load session record: %v", err))
		return false
	}
	if rec == nil {
		logger.Debug("no session record found")
		return false
	}
	if rec.Expired(m.maxAge, time.Now()) {
		logger.Debug("session record expired, clearing it")
		if err := m.store.Clear(m.username); err != nil {
			logger.Debug(fmt.Sprintf("failed to clear expired session record: %v", err))
		}
		return false
	}

	origin := rec.Origin
	if origin == "" {
		origin = m.origin
	}
	// cookies first, they apply before any page is open
	if err := drv.SetCookies(ctx, rec.Cookies); err != nil {
		logger.Debug(fmt.Sprintf("failed to replay cookies: %v", err))
		return false
	}
	// storage needs a page on the origin before it can be written
	if err := drv.Navigate(ctx, origin); err != nil {
		logger.Debug(fmt.Sprintf("failed to navigate to origin %s: %v", origin, err))
		return false
	}
	if err := drv.SetLocalStorage(ctx, rec.LocalStorage); err != nil {
		logger.Debug(fmt.Sprintf("failed to replay local storage: %v", err))
		return false
	}
	if err := drv.SetSessionStorage(ctx, rec.SessionStorage); err != nil {
		logger.Debug(fmt.Sprintf("failed to replay session storage: %v", err))
		return false
	}
	// reload so the app boots with the restored state
	if err := drv.Navigate(ctx, origin); err != nil {
		logger.Debug(fmt.Sprintf("failed to reload origin %s: %v", origin, err))
		return false
	}
	if !m.IsAuthenticated(ctx, drv) {
		logger.Debug("restored session is not authenticated")
		return false
	}
	logger.Debug("session restored")
	return true
}

// Save captures the current browser state into the store. Best-effort,
// a failure to persist only gets logged.
func (m *Manager) Save(ctx context.Context, drv browser.Driver) {
	logger := log.LoggerFromContext(ctx).With(slog.String("component", "session"))
	rec := &Record{
		Origin:  m.origin,
		SavedAt: time.Now().UnixMilli(),
	}
	var err error
	if rec.Cookies, err = drv.Cookies(ctx); err != nil {
		logger.Warn(fmt.Sprintf("failed to read cookies, not persisting session: %v", err))
		return
	}
	if rec.LocalStorage, err = drv.LocalStorage(ctx); err != nil {
		logger.Debug(fmt.Sprintf("failed to read local storage: %v", err))
	}
	if rec.SessionStorage, err = drv.SessionStorage(ctx); err != nil {
		logger.Debug(fmt.Sprintf("failed to read session storage: %v", err))
	}
	if cur, err := drv.CurrentURL(ctx); err == nil {
		if u, err := url.Parse(cur); err == nil && u.Host != "" {
			rec.Origin = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
		}
	}
	if err := m.store.Save(m.username, rec); err != nil {
		logger.Warn(fmt.Sprintf("failed to persist session record: %v", err))
		return
	}
	logger.Debug("session persisted")
}

// Clear drops the stored record. Idempotent.
func (m *Manager) Clear(ctx context.Context) {
	logger := log.LoggerFromContext(ctx).With(slog.String("component", "session"))
	if err := m.store.Clear(m.username); err != nil {
		logger.Warn(fmt.Sprintf("failed to clear session record: %v", err))
		return
	}
	logger.Info("session record cleared")
}

// IsAuthenticated reports whether the current page looks authenticated,
// ie neither the URL path carries a login marker nor a password field
// is present in the DOM. This is a heuristic: a login-form-free error
// page can be mistaken for an authenticated one, and no stronger signal
// is available. Downstream extraction tolerates that case by coming up
// empty instead of crashing.
func (m *Manager) IsAuthenticated(ctx context.Context, drv browser.Driver) bool {
	cur, err := drv.CurrentURL(ctx)
	if err != nil {
		return false
	}
	if PathHasLoginMarker(cur) {
		return false
	}
	present, err := drv.Exists(ctx, `input[type="password"]`)
	if err != nil {
		return false
	}
	return !present
}

// PathHasLoginMarker reports whether the URL's path looks like a
// login or auth route.
func PathHasLoginMarker(urlStr string) bool {
	path := urlStr
	if u, err := url.Parse(urlStr); err == nil && (u.Path != "" || u.Fragment != "") {
		// hash-routed SPAs keep the route in the fragment
		path = u.Path + u.Fragment
	}
	path = strings.ToLower(path)
	for _, marker := range loginMarkers {
		if strings.Contains(path, marker) {
			return true
		}
	}
	return false
}
