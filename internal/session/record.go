// Package session persists and restores browser authentication state
// across runs so that the login flow can be skipped while a cached
// session is still fresh.
package session

import (
	"time"

	"github.com/chromedp/cdproto/network"
)

// A Record captures everything needed to revive an authenticated
// browser context: cookies, both web storage areas and the origin they
// belong to.
type Record struct {
	Cookies        []*network.Cookie `json:"cookies"`
	LocalStorage   map[string]string `json:"localStorage"`
	SessionStorage map[string]string `json:"sessionStorage"`
	Origin         string            `json:"origin"`
	SavedAt        int64             `json:"savedAt"` // epoch ms
}

// Expired reports whether the record is older than maxAge at the given
// point in time.
func (r *Record) Expired(maxAge time.Duration, now time.Time) bool {
	return now.Sub(time.UnixMilli(r.SavedAt)) > maxAge
}
