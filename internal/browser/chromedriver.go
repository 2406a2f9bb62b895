package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/jroca/siqscrape/internal/log"
	"github.com/jroca/siqscrape/internal/utils"
)

// The ChromeDriver drives a real chrome instance. It keeps a single
// long-lived page; every operation runs in that page with its own
// timeout so that a hung wait does not kill the tab.
type ChromeDriver struct {
	*DriverConfig
	allocCtx      context.Context
	cancelAlloc   context.CancelFunc
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	versionOnce   sync.Once
}

func NewChromeDriver(dc *DriverConfig) *ChromeDriver {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(1920, 1080), // init with a desktop view (sometimes pages look different on mobile, eg buttons are missing)
	)
	if dc.Headful {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if dc.UserAgent != "" {
		opts = append(opts,
			chromedp.UserAgent(dc.UserAgent))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	d := &ChromeDriver{
		DriverConfig:  dc,
		allocCtx:      allocCtx,
		cancelAlloc:   cancelAlloc,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
	}
	if d.TimeoutMs == 0 {
		d.TimeoutMs = 15000 // default
	}
	if d.SettleMs == 0 {
		d.SettleMs = 1500 // default
	}
	return d
}

func (d *ChromeDriver) Close() {
	d.cancelBrowser()
	d.cancelAlloc()
}

// run executes the actions in the long-lived page, bounded by the
// driver timeout or the caller's deadline, whichever is closer.
func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := time.Duration(d.TimeoutMs) * time.Millisecond
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	opCtx, cancel := context.WithTimeout(d.browserCtx, timeout)
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}

func (d *ChromeDriver) settle() time.Duration {
	return time.Duration(d.SettleMs) * time.Millisecond
}

func (d *ChromeDriver) Navigate(ctx context.Context, urlStr string) error {
	logger := log.LoggerFromContext(ctx)
	logger.Debug("navigating", slog.String("url", urlStr), slog.String("user-agent", d.UserAgent))
	actions := []chromedp.Action{}
	// log chrome version once in debug mode
	if log.Debug {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			d.versionOnce.Do(func() {
				protocolVersion, product, revision, userAgent, jsVersion, err := cdpbrowser.GetVersion().Do(ctx)
				if err != nil {
					logger.Warn("failed to get chrome version", slog.String("err", err.Error()))
					return
				}
				logger.Debug(fmt.Sprintf("chrome version: protocolVersion=%s, product=%s, revision=%s, userAgent=%s, jsVersion=%s",
					protocolVersion, product, revision, userAgent, jsVersion))
			})
			return nil
		}))
	}
	actions = append(actions,
		chromedp.Navigate(urlStr),
		chromedp.Sleep(d.settle()),
	)
	return d.run(ctx, actions...)
}

func (d *ChromeDriver) NavigateNoCache(ctx context.Context, urlStr string) error {
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return err
		}
		return network.SetCacheDisabled(true).Do(ctx)
	}))
	if err != nil {
		return err
	}
	return d.Navigate(ctx, urlStr)
}

func (d *ChromeDriver) CurrentURL(ctx context.Context) (string, error) {
	var urlStr string
	err := d.run(ctx, chromedp.Location(&urlStr))
	return urlStr, err
}

func (d *ChromeDriver) VisibleText(ctx context.Context) (string, error) {
	var text string
	err := d.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text))
	return text, err
}

func (d *ChromeDriver) HTML(ctx context.Context) (string, error) {
	var body string
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		body, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
		return err
	}))
	if err != nil {
		return "", err
	}
	if log.Debug {
		if urlStr, uerr := d.CurrentURL(ctx); uerr == nil {
			writeHTMLToFile(ctx, urlStr, body, d.DebugDir)
		}
	}
	return body, nil
}

func (d *ChromeDriver) Exists(ctx context.Context, selector string) (bool, error) {
	var nodes []*cdp.Node
	err := d.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

func (d *ChromeDriver) FieldsReady(ctx context.Context, selectors []string) (bool, error) {
	sels, err := json.Marshal(selectors)
	if err != nil {
		return false, err
	}
	script := fmt.Sprintf(`(%s).every((s) => {
		const el = document.querySelector(s);
		return !!el && !el.disabled && el.offsetParent !== null;
	})`, sels)
	var ready bool
	if err := d.run(ctx, chromedp.Evaluate(script, &ready)); err != nil {
		return false, err
	}
	return ready, nil
}

func (d *ChromeDriver) ClickText(ctx context.Context, text string) (bool, error) {
	logger := log.LoggerFromContext(ctx)
	var clicked bool
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var nodes []*cdp.Node
		query := fmt.Sprintf(`//*[normalize-space()=%s]`, xpathLiteral(text))
		if err := chromedp.Nodes(query, &nodes, chromedp.BySearch, chromedp.AtLeast(0)).Do(ctx); err != nil {
			return err
		}
		if len(nodes) == 0 {
			return nil
		}
		logger.Debug(fmt.Sprintf("clicking on node with text: %s", text))
		if err := chromedp.MouseClickNode(nodes[0]).Do(ctx); err != nil {
			return err
		}
		clicked = true
		return nil
	}))
	if err != nil || clicked {
		return clicked, err
	}
	// a synthetic js click on the innermost matching element as
	// fallback, since the search above misses text assembled from
	// several inline nodes
	script := fmt.Sprintf(`((want) => {
		let best = null;
		for (const el of document.querySelectorAll('body *')) {
			if (!el.innerText || el.innerText.trim() !== want) continue;
			if (el.offsetParent === null) continue;
			if (!best || best.contains(el)) best = el;
		}
		if (!best) return false;
		best.scrollIntoView({block: 'center'});
		best.click();
		return true;
	})(%s)`, strconv.Quote(text))
	err = d.run(ctx, chromedp.Evaluate(script, &clicked))
	return clicked, err
}

func (d *ChromeDriver) ClickSelector(ctx context.Context, selector string) (bool, error) {
	logger := log.LoggerFromContext(ctx)
	var clicked bool
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var nodes []*cdp.Node
		if err := chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)).Do(ctx); err != nil {
			return err
		}
		if len(nodes) == 0 {
			return nil
		}
		logger.Debug(fmt.Sprintf("clicking on node with selector: %s", selector))
		if err := chromedp.MouseClickNode(nodes[0]).Do(ctx); err != nil {
			return err
		}
		clicked = true
		return nil
	}))
	return clicked, err
}

func (d *ChromeDriver) CommitValue(ctx context.Context, selector, value string) error {
	// clear defensively before typing to defeat autofill, then
	// dispatch the events a reactive form needs to notice the value
	commit := fmt.Sprintf(`((sel, val) => {
		const el = document.querySelector(sel);
		if (!el) return false;
		const proto = el instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
		const desc = Object.getOwnPropertyDescriptor(proto, 'value');
		if (desc && desc.set) desc.set.call(el, val);
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		el.blur();
		return true;
	})(%s, %s)`, strconv.Quote(selector), strconv.Quote(value))
	return d.run(ctx,
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf(`(() => { const el = document.querySelector(%s); if (el && el.select) el.select(); })()`, strconv.Quote(selector)), nil),
		chromedp.KeyEvent(kb.Delete),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
		chromedp.Evaluate(commit, nil),
	)
}

func (d *ChromeDriver) PressEnter(ctx context.Context, selector string) error {
	return d.run(ctx,
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.KeyEvent(kb.Enter),
	)
}

func (d *ChromeDriver) SubmitForm(ctx context.Context, selector string) error {
	err := d.run(ctx, chromedp.Submit(selector, chromedp.ByQuery))
	if err == nil {
		return nil
	}
	// some SPAs only react to requestSubmit
	script := fmt.Sprintf(`((sel) => {
		const el = document.querySelector(sel);
		const form = el ? el.form || el.closest('form') : document.querySelector('form');
		if (!form) return false;
		if (form.requestSubmit) form.requestSubmit(); else form.submit();
		return true;
	})(%s)`, strconv.Quote(selector))
	var submitted bool
	if err := d.run(ctx, chromedp.Evaluate(script, &submitted)); err != nil {
		return err
	}
	if !submitted {
		return fmt.Errorf("no form found for selector %s", selector)
	}
	return nil
}

func (d *ChromeDriver) ErrorTexts(ctx context.Context) ([]string, error) {
	script := `(() => {
		const out = [];
		const reddish = (c) => {
			const m = c.match(/rgba?\((\d+),\s*(\d+),\s*(\d+)/);
			if (!m) return false;
			const r = +m[1], g = +m[2], b = +m[3];
			return r > 120 && r > g + 60 && r > b + 60;
		};
		for (const el of document.querySelectorAll('body *')) {
			if (el.children.length > 0) continue;
			const txt = (el.innerText || '').trim();
			if (!txt || txt.length > 200) continue;
			const hint = ((el.className || '') + ' ' + (el.id || '')).toLowerCase();
			const styled = reddish(window.getComputedStyle(el).color);
			if (/error|alert|invalid|danger/.test(hint) || styled) out.push(txt);
		}
		return [...new Set(out)].slice(0, 10);
	})()`
	var texts []string
	err := d.run(ctx, chromedp.Evaluate(script, &texts))
	return texts, err
}

func (d *ChromeDriver) Cookies(ctx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	return cookies, err
}

func (d *ChromeDriver) SetCookies(ctx context.Context, cookies []*network.Cookie) error {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: c.SameSite,
		}
		if c.Expires > 0 {
			expires := cdp.TimeSinceEpoch(time.Unix(0, int64(c.Expires*float64(time.Second))))
			p.Expires = &expires
		}
		params = append(params, p)
	}
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return storage.SetCookies(params).Do(ctx)
	}))
}

const storageSnapshotJS = `((kind) => {
	const store = kind === 'local' ? localStorage : sessionStorage;
	const out = {};
	for (let i = 0; i < store.length; i++) {
		const k = store.key(i);
		out[k] = store.getItem(k);
	}
	return out;
})(%s)`

const storageRestoreJS = `((kind, entries) => {
	const store = kind === 'local' ? localStorage : sessionStorage;
	for (const [k, v] of Object.entries(entries)) {
		store.setItem(k, v);
	}
	return true;
})(%s, %s)`

func (d *ChromeDriver) webStorage(ctx context.Context, kind string) (map[string]string, error) {
	entries := map[string]string{}
	script := fmt.Sprintf(storageSnapshotJS, strconv.Quote(kind))
	err := d.run(ctx, chromedp.Evaluate(script, &entries))
	return entries, err
}

func (d *ChromeDriver) setWebStorage(ctx context.Context, kind string, entries map[string]string) error {
	if len(entries) == 0 {
		return nil
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	script := fmt.Sprintf(storageRestoreJS, strconv.Quote(kind), data)
	return d.run(ctx, chromedp.Evaluate(script, nil))
}

func (d *ChromeDriver) LocalStorage(ctx context.Context) (map[string]string, error) {
	return d.webStorage(ctx, "local")
}

func (d *ChromeDriver) SetLocalStorage(ctx context.Context, entries map[string]string) error {
	return d.setWebStorage(ctx, "local", entries)
}

func (d *ChromeDriver) SessionStorage(ctx context.Context) (map[string]string, error) {
	return d.webStorage(ctx, "session")
}

func (d *ChromeDriver) SetSessionStorage(ctx context.Context, entries map[string]string) error {
	return d.setWebStorage(ctx, "session", entries)
}

func (d *ChromeDriver) Screenshot(ctx context.Context, label string) error {
	logger := log.LoggerFromContext(ctx)
	if d.DebugDir != "" {
		if err := os.MkdirAll(d.DebugDir, os.ModePerm); err != nil {
			return fmt.Errorf("failed to create debug directory: %v", err)
		}
	}
	r, err := utils.RandomString(label)
	if err != nil {
		return err
	}
	filename := path.Join(d.DebugDir, fmt.Sprintf("%s.png", r))
	var buf []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return err
	}
	logger.Debug(fmt.Sprintf("writing screenshot to file %s", filename))
	return os.WriteFile(filename, buf, 0644)
}

func (d *ChromeDriver) Sleep(ctx context.Context, dur time.Duration) {
	select {
	case <-time.After(dur):
	case <-ctx.Done():
	}
}

// xpathLiteral quotes s for use inside an xpath expression. Strings
// containing single quotes need the concat() form.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	if len(quoted) == 1 {
		return quoted[0]
	}
	return fmt.Sprintf("concat(%s)", strings.Join(quoted, ", "))
}
