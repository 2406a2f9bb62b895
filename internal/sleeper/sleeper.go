// Package sleeper switches the dashboard between the household's
// sleeper profiles.
package sleeper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/agnivade/levenshtein"
	"github.com/antchfx/jsonquery"
	"github.com/jroca/siqscrape/internal/browser"
	"github.com/jroca/siqscrape/internal/extract"
	"github.com/jroca/siqscrape/internal/log"
)

// pickerControls open the profile chooser when the sleeper's name is
// not itself a clickable shortcut on the dashboard.
var pickerControls = []string{
	`[data-test="sleeper-switcher"]`,
	`[aria-label="Switch sleeper"]`,
	".sleeper-switcher",
	".profile-switcher",
	".avatar",
	"header .dropdown-toggle",
}

const optionSelectors = `[role="menuitem"], [role="option"], .dropdown-menu a, .dropdown-menu button, ul li, button`

// Selector switches the dashboard to a given sleeper profile.
type Selector struct {
	settle time.Duration
}

func NewSelector(dc *browser.DriverConfig) *Selector {
	settleMs := dc.SettleMs
	if settleMs == 0 {
		settleMs = 1500 // default
	}
	return &Selector{settle: time.Duration(settleMs) * time.Millisecond}
}

// Select switches the dashboard to the named sleeper. It returns false
// only when no switch control could be found at all, the caller then
// scrapes whatever profile the dashboard already shows.
func (s *Selector) Select(ctx context.Context, drv browser.Driver, name string) bool {
	logger := log.LoggerFromContext(ctx)

	clicked := s.clickName(ctx, drv, name)
	if !clicked {
		clicked = s.clickViaPicker(ctx, drv, name)
	}
	if !clicked {
		logger.Debug(fmt.Sprintf("found no control to select sleeper %s", name))
		return false
	}
	drv.Sleep(ctx, s.settle)
	if !s.confirm(ctx, drv, name) {
		logger.Debug(fmt.Sprintf("clicked a control for sleeper %s but could not confirm the switch", name))
	}
	return true
}

func (s *Selector) clickName(ctx context.Context, drv browser.Driver, name string) bool {
	for _, label := range nameVariants(name) {
		if ok, err := drv.ClickText(ctx, label); err == nil && ok {
			return true
		}
	}
	return false
}

func (s *Selector) clickViaPicker(ctx context.Context, drv browser.Driver, name string) bool {
	opened := false
	for _, sel := range pickerControls {
		if ok, err := drv.ClickSelector(ctx, sel); err == nil && ok {
			opened = true
			break
		}
	}
	if !opened {
		return false
	}
	drv.Sleep(ctx, s.settle)
	if s.clickName(ctx, drv, name) {
		return true
	}
	// tolerate a typo'd option label
	for _, option := range s.optionCandidates(ctx, drv) {
		if levenshtein.ComputeDistance(strings.ToLower(option), strings.ToLower(name)) <= 1 {
			if ok, err := drv.ClickText(ctx, option); err == nil && ok {
				return true
			}
		}
	}
	return false
}

func (s *Selector) optionCandidates(ctx context.Context, drv browser.Driver) []string {
	html, err := drv.HTML(ctx)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	candidates := []string{}
	seen := map[string]bool{}
	doc.Find(optionSelectors).Each(func(_ int, sel *goquery.Selection) {
		text := extract.Normalize(sel.Text())
		if text == "" || len(text) > 40 || seen[text] {
			return
		}
		seen[text] = true
		candidates = append(candidates, text)
	})
	return candidates
}

// confirm checks that the dashboard actually shows the requested
// profile, either by name in the visible text or in the app state the
// SPA keeps in localStorage.
func (s *Selector) confirm(ctx context.Context, drv browser.Driver, name string) bool {
	if text, err := drv.VisibleText(ctx); err == nil {
		if strings.Contains(strings.ToLower(extract.Normalize(text)), strings.ToLower(name)) {
			return true
		}
	}
	return s.storageMentions(ctx, drv, name)
}

// storageMentions probes every localStorage value that parses as JSON
// for a firstName/name/sleeperName field equal to the profile.
func (s *Selector) storageMentions(ctx context.Context, drv browser.Driver, name string) bool {
	items, err := drv.LocalStorage(ctx)
	if err != nil {
		return false
	}
	for _, raw := range items {
		doc, err := jsonquery.Parse(strings.NewReader(raw))
		if err != nil {
			continue
		}
		for _, node := range jsonquery.Find(doc, "//firstName|//name|//sleeperName") {
			if strings.EqualFold(strings.TrimSpace(node.InnerText()), name) {
				return true
			}
		}
	}
	return false
}

// nameVariants covers the casings a profile chip typically uses.
func nameVariants(name string) []string {
	lower := strings.ToLower(name)
	variants := []string{name, lower, strings.ToUpper(lower), capitalize(lower)}
	deduped := []string{}
	seen := map[string]bool{}
	for _, v := range variants {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		deduped = append(deduped, v)
	}
	return deduped
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
