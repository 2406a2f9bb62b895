package browser

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
)

// A MockPage describes one scripted page served by the MockDriver.
type MockPage struct {
	Text       string
	HTML       string
	Present    []string // selectors that exist on this page
	Ready      []string // subset of Present that counts as enabled and visible
	ErrorTexts []string
}

// The MockDriver serves scripted pages and records interactions. Click
// hooks, keyed by visible text or selector, let tests simulate SPA
// behavior such as redirects and tab swaps by mutating the driver.
type MockDriver struct {
	Pages      map[string]*MockPage
	Current    string
	ClickHooks map[string]func(m *MockDriver) bool
	// ReadyPolls delays FieldsReady: the first n calls report false.
	ReadyPolls int
	// EnterHook and SubmitHook run on PressEnter/SubmitForm.
	EnterHook  func(m *MockDriver)
	SubmitHook func(m *MockDriver)
	// NavHook runs after every successful navigation, eg to reset a
	// page to its fresh-load markup.
	NavHook func(m *MockDriver, url string)

	CookieJar    []*network.Cookie
	LocalItems   map[string]string
	SessionItems map[string]string

	NavLog    []string
	Typed     map[string]string
	Entered   []string
	Submitted []string
	Clicked   []string
}

func NewMockDriver() *MockDriver {
	return &MockDriver{
		Pages:        map[string]*MockPage{},
		ClickHooks:   map[string]func(m *MockDriver) bool{},
		LocalItems:   map[string]string{},
		SessionItems: map[string]string{},
		Typed:        map[string]string{},
	}
}

// AddPage registers a page under the given URL.
func (m *MockDriver) AddPage(url string, p *MockPage) *MockDriver {
	m.Pages[url] = p
	return m
}

func (m *MockDriver) page() *MockPage {
	if p, ok := m.Pages[m.Current]; ok {
		return p
	}
	return &MockPage{}
}

func (m *MockDriver) Navigate(ctx context.Context, url string) error {
	m.NavLog = append(m.NavLog, url)
	if _, ok := m.Pages[url]; !ok {
		return errors.New("page not found")
	}
	m.Current = url
	if m.NavHook != nil {
		m.NavHook(m, url)
	}
	return nil
}

func (m *MockDriver) NavigateNoCache(ctx context.Context, url string) error {
	return m.Navigate(ctx, url)
}

func (m *MockDriver) CurrentURL(ctx context.Context) (string, error) {
	return m.Current, nil
}

func (m *MockDriver) VisibleText(ctx context.Context) (string, error) {
	return m.page().Text, nil
}

func (m *MockDriver) HTML(ctx context.Context) (string, error) {
	return m.page().HTML, nil
}

func (m *MockDriver) Exists(ctx context.Context, selector string) (bool, error) {
	return slices.Contains(m.page().Present, selector), nil
}

func (m *MockDriver) FieldsReady(ctx context.Context, selectors []string) (bool, error) {
	if m.ReadyPolls > 0 {
		m.ReadyPolls--
		return false, nil
	}
	p := m.page()
	for _, sel := range selectors {
		if !slices.Contains(p.Ready, sel) {
			return false, nil
		}
	}
	return true, nil
}

func (m *MockDriver) click(key string) (bool, error) {
	m.Clicked = append(m.Clicked, key)
	if hook, ok := m.ClickHooks[key]; ok {
		return hook(m), nil
	}
	return false, nil
}

func (m *MockDriver) ClickText(ctx context.Context, text string) (bool, error) {
	return m.click(text)
}

func (m *MockDriver) ClickSelector(ctx context.Context, selector string) (bool, error) {
	return m.click(selector)
}

func (m *MockDriver) CommitValue(ctx context.Context, selector, value string) error {
	if !slices.Contains(m.page().Present, selector) {
		return errors.New("element not found: " + selector)
	}
	m.Typed[selector] = value
	return nil
}

func (m *MockDriver) PressEnter(ctx context.Context, selector string) error {
	m.Entered = append(m.Entered, selector)
	if m.EnterHook != nil {
		m.EnterHook(m)
	}
	return nil
}

func (m *MockDriver) SubmitForm(ctx context.Context, selector string) error {
	m.Submitted = append(m.Submitted, selector)
	if m.SubmitHook != nil {
		m.SubmitHook(m)
	}
	return nil
}

func (m *MockDriver) ErrorTexts(ctx context.Context) ([]string, error) {
	return m.page().ErrorTexts, nil
}

func (m *MockDriver) Cookies(ctx context.Context) ([]*network.Cookie, error) {
	return m.CookieJar, nil
}

func (m *MockDriver) SetCookies(ctx context.Context, cookies []*network.Cookie) error {
	m.CookieJar = cookies
	return nil
}

func (m *MockDriver) LocalStorage(ctx context.Context) (map[string]string, error) {
	return m.LocalItems, nil
}

func (m *MockDriver) SetLocalStorage(ctx context.Context, entries map[string]string) error {
	for k, v := range entries {
		m.LocalItems[k] = v
	}
	return nil
}

func (m *MockDriver) SessionStorage(ctx context.Context) (map[string]string, error) {
	return m.SessionItems, nil
}

func (m *MockDriver) SetSessionStorage(ctx context.Context, entries map[string]string) error {
	for k, v := range entries {
		m.SessionItems[k] = v
	}
	return nil
}

func (m *MockDriver) Screenshot(ctx context.Context, label string) error {
	return nil
}

// Sleep returns immediately so that tests do not wait out settle
// delays.
func (m *MockDriver) Sleep(ctx context.Context, d time.Duration) {}

func (m *MockDriver) Close() {}

// SetText replaces the visible text of the current page, eg to mimic a
// client-side rerender.
func (m *MockDriver) SetText(text string) {
	m.page().Text = text
}

// HasNavigated reports whether the driver ever visited a URL containing
// the given fragment.
func (m *MockDriver) HasNavigated(fragment string) bool {
	for _, u := range m.NavLog {
		if strings.Contains(u, fragment) {
			return true
		}
	}
	return false
}
