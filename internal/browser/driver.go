// Package browser provides the capability driver that the extraction
// logic runs against, with a chromedp-backed implementation for real
// runs and a scripted mock for tests.
package browser

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/network"
)

// DriverConfig defines the necessary parameters to launch a driver.
type DriverConfig struct {
	// Headful launches a visible browser window. The default (false)
	// is a headless browser.
	Headful   bool   `yaml:"headful" env:"SIQ_HEADFUL"`
	UserAgent string `yaml:"user_agent" env:"SIQ_USER_AGENT"`
	DebugDir  string `yaml:"debug_dir"`
	TimeoutMs int    `yaml:"timeout_ms"`
	SettleMs  int    `yaml:"settle_ms"`
	PollMs    int    `yaml:"poll_ms"`
}

// A Driver allows to interact with one browser page. All operations
// are blocking and honor the passed context's deadline in addition to
// the driver's own per-operation timeout.
type Driver interface {
	// Navigate loads the given URL and waits the settle delay.
	Navigate(ctx context.Context, url string) error
	// NavigateNoCache disables the page cache before navigating.
	NavigateNoCache(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	// VisibleText returns the rendered text of the page body.
	VisibleText(ctx context.Context) (string, error)
	// HTML returns the full document markup.
	HTML(ctx context.Context) (string, error)
	// Exists reports whether at least one element matches the selector.
	Exists(ctx context.Context, selector string) (bool, error)
	// FieldsReady reports whether all given selectors resolve to
	// elements that are visible and not disabled.
	FieldsReady(ctx context.Context, selectors []string) (bool, error)
	// ClickText clicks the innermost visible element whose rendered
	// text equals the given string. Reports whether a click happened.
	ClickText(ctx context.Context, text string) (bool, error)
	// ClickSelector clicks the first element matching the selector.
	// Reports whether a click happened.
	ClickSelector(ctx context.Context, selector string) (bool, error)
	// CommitValue clears the field, types the value and dispatches the
	// events a reactive frontend needs to pick the value up.
	CommitValue(ctx context.Context, selector, value string) error
	PressEnter(ctx context.Context, selector string) error
	// SubmitForm submits the form containing the selector's element.
	SubmitForm(ctx context.Context, selector string) error
	// ErrorTexts collects short texts of error-styled elements.
	ErrorTexts(ctx context.Context) ([]string, error)
	Cookies(ctx context.Context) ([]*network.Cookie, error)
	SetCookies(ctx context.Context, cookies []*network.Cookie) error
	LocalStorage(ctx context.Context) (map[string]string, error)
	SetLocalStorage(ctx context.Context, entries map[string]string) error
	SessionStorage(ctx context.Context) (map[string]string, error)
	SetSessionStorage(ctx context.Context, entries map[string]string) error
	// Screenshot stores a capture of the page in the debug directory.
	Screenshot(ctx context.Context, label string) error
	Sleep(ctx context.Context, d time.Duration)
	Close()
}

// WaitFor polls cond every interval until it reports true or the
// timeout elapses. Errors returned by cond count as "not yet" so that
// transient page states do not abort the wait.
func WaitFor(ctx context.Context, timeout, interval time.Duration, cond func(context.Context) (bool, error)) bool {
	deadline := time.Now().Add(timeout)
	for {
		if ok, err := cond(ctx); err == nil && ok {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}
	}
}
