package extract

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/agnivade/levenshtein"
	"github.com/jroca/siqscrape/internal/browser"
	"github.com/jroca/siqscrape/internal/log"
	"github.com/jroca/siqscrape/internal/types"
	"golang.org/x/net/html"
)

// biosignalTab describes one tab of the biosignals detail page. ownLabels
// are stripped from a candidate before the exclusion check so that a tab
// whose label is a substring of another (heart rate vs heart rate
// variability) does not reject its own message.
type biosignalTab struct {
	name      string
	labels    []string // visible tab labels, tried in order
	ownLabels []string // longest first
	exclude   []string // vocabulary of the other tabs
	templates []*regexp.Regexp
}

var unitWordRe = regexp.MustCompile(`(?i)\b(bpm|brpm|ms|trend|avg|average)\b`)

var (
	heartRateTab = biosignalTab{
		name:    "heart rate",
		labels:  []string{"Heart Rate", "Heart rate", "HEART RATE"},
		exclude: []string{"variability", "hrv", "breath"},
		templates: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(your (?:resting )?heart rate[^.!?]{5,200}[.!?])`),
		},
	}
	heartRateVariabilityTab = biosignalTab{
		name:      "heart rate variability",
		labels:    []string{"Heart Rate Variability", "HRV", "Heart rate variability"},
		ownLabels: []string{"heart rate variability", "hrv"},
		exclude:   []string{"heart rate", "breath"},
		templates: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(your (?:hrv|heart rate variability)[^.!?]{5,200}[.!?])`),
		},
	}
	breathRateTab = biosignalTab{
		name:    "breath rate",
		labels:  []string{"Breath Rate", "Breathing", "Breath rate", "Respiratory Rate"},
		exclude: []string{"heart", "hrv"},
		templates: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(your (?:breath|breathing|respiratory) rate[^.!?]{5,200}[.!?])`),
		},
	}
)

var generalTemplates = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(you (?:got|had|hit|reached|slept)[^.!?]{5,200}[.!?])`),
	regexp.MustCompile(`(?i)(your sleep[^.!?]{5,200}[.!?])`),
	regexp.MustCompile(`(?i)(great job[^.!?]{5,200}[.!?])`),
	regexp.MustCompile(`(?i)(keep (?:it up|up|your)[^.!?]{5,200}[.!?])`),
}

// GeneralMessage pulls the coaching message from the sleep-session
// detail page. Returns "" when any stage of the flow fails; the run
// continues without the message.
func (e *Extractor) GeneralMessage(ctx context.Context, drv browser.Driver) string {
	logger := log.LoggerFromContext(ctx)
	returnURL, _ := drv.CurrentURL(ctx)

	if !e.openDetail(ctx, drv, e.site.SleepDetailPath) {
		return ""
	}
	defer e.navigateBack(ctx, drv, returnURL)

	markup, err := drv.HTML(ctx)
	if err == nil {
		if msg := generalMessageFromHTML(markup, e.site.MessageSelectors); msg != "" {
			return msg
		}
	} else {
		logger.Debug(fmt.Sprintf("could not read detail page markup: %v", err))
	}

	text, err := drv.VisibleText(ctx)
	if err != nil {
		logger.Debug(fmt.Sprintf("could not read detail page text: %v", err))
		return ""
	}
	if msg := matchTemplates(Normalize(text), generalTemplates); msg != "" {
		return msg
	}
	logger.Debug("no general message found on the sleep detail page")
	return ""
}

// BiosignalMessages pulls the three tab messages from the biosignals
// detail page. The heart-rate tab is active by default; the other two
// need a tab click followed by a settle delay because the pane content
// swaps asynchronously after the click registers.
func (e *Extractor) BiosignalMessages(ctx context.Context, drv browser.Driver) types.BiosignalMessages {
	var out types.BiosignalMessages
	returnURL, _ := drv.CurrentURL(ctx)

	if !e.openDetail(ctx, drv, e.site.BiosignalsPath) {
		return out
	}
	defer e.navigateBack(ctx, drv, returnURL)

	out.HeartRate = e.tabMessage(ctx, drv, heartRateTab, false)
	out.HeartRateVariability = e.tabMessage(ctx, drv, heartRateVariabilityTab, true)
	out.BreathRate = e.tabMessage(ctx, drv, breathRateTab, true)
	return out
}

func (e *Extractor) tabMessage(ctx context.Context, drv browser.Driver, tab biosignalTab, click bool) string {
	logger := log.LoggerFromContext(ctx)

	if click {
		if !e.clickTab(ctx, drv, tab) {
			logger.Debug(fmt.Sprintf("%s tab not found, falling back to page-wide templates", tab.name))
			text, err := drv.VisibleText(ctx)
			if err != nil {
				return ""
			}
			return matchTemplates(Normalize(text), tab.templates)
		}
		// the pane swaps its content asynchronously after the click,
		// reading too early yields the previous tab's text
		drv.Sleep(ctx, e.settle)
	}

	markup, err := drv.HTML(ctx)
	if err != nil {
		logger.Debug(fmt.Sprintf("could not read biosignals markup: %v", err))
		return ""
	}
	if msg := messageFromPane(markup, e.site.PaneSelectors, tab); msg != "" {
		return msg
	}

	text, err := drv.VisibleText(ctx)
	if err != nil {
		return ""
	}
	return matchTemplates(Normalize(text), tab.templates)
}

// clickTab clicks the tab by exact visible label first and falls back
// to rendered tab candidates within levenshtein distance 1, which
// covers casing drift and trailing whitespace in the label.
func (e *Extractor) clickTab(ctx context.Context, drv browser.Driver, tab biosignalTab) bool {
	for _, label := range tab.labels {
		if ok, _ := drv.ClickText(ctx, label); ok {
			return true
		}
	}

	markup, err := drv.HTML(ctx)
	if err != nil {
		return false
	}
	for _, candidate := range tabLabelCandidates(markup) {
		for _, label := range tab.labels {
			if levenshtein.ComputeDistance(strings.ToLower(candidate), strings.ToLower(label)) <= 1 {
				if ok, _ := drv.ClickText(ctx, candidate); ok {
					return true
				}
			}
		}
	}
	return false
}

// openDetail derives the detail URL by substituting the dashboard path
// segment in the current URL, falling back to the page origin plus the
// canonical path. It verifies the browser actually landed on the detail
// route; a mismatch aborts the flow rather than scraping a wrong page.
func (e *Extractor) openDetail(ctx context.Context, drv browser.Driver, detailPath string) bool {
	logger := log.LoggerFromContext(ctx)

	current, err := drv.CurrentURL(ctx)
	if err != nil {
		current = ""
	}
	var target string
	switch {
	case current != "" && strings.Contains(current, e.site.DashboardPath):
		target = strings.Replace(current, e.site.DashboardPath, detailPath, 1)
	case originOf(current) != "":
		target = originOf(current) + detailPath
	default:
		target = e.site.BaseURL + detailPath
	}

	if err := drv.NavigateNoCache(ctx, target); err != nil {
		logger.Debug(fmt.Sprintf("navigation to %s failed: %v", target, err))
		return false
	}
	drv.Sleep(ctx, e.settle)

	landed, err := drv.CurrentURL(ctx)
	if err != nil || !strings.Contains(landed, detailPath) {
		logger.Debug(fmt.Sprintf("expected detail route %s, landed on %s", detailPath, landed))
		return false
	}
	return true
}

// navigateBack returns to the dashboard, preferring an in-page back
// control over a full navigation.
func (e *Extractor) navigateBack(ctx context.Context, drv browser.Driver, returnURL string) {
	for _, label := range []string{"Back", "back"} {
		if ok, _ := drv.ClickText(ctx, label); ok {
			drv.Sleep(ctx, e.settle)
			return
		}
	}
	for _, sel := range []string{`[aria-label="Back"]`, ".back-button", ".back"} {
		if ok, _ := drv.ClickSelector(ctx, sel); ok {
			drv.Sleep(ctx, e.settle)
			return
		}
	}
	if returnURL != "" {
		if err := drv.Navigate(ctx, returnURL); err != nil {
			log.LoggerFromContext(ctx).Debug(fmt.Sprintf("could not navigate back to %s: %v", returnURL, err))
		}
	}
}

func originOf(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// generalMessageFromHTML tries the narrow selectors first and then
// scans message-ish classed elements and paragraphs in document order.
// Document order matters: an oversized parent container fails the
// length check while its child holding just the message passes.
func generalMessageFromHTML(markup string, selectors []string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return ""
	}

	for _, sel := range selectors {
		if msg := Normalize(doc.Find(sel).First().Text()); msg != "" {
			return msg
		}
	}

	var found string
	doc.Find(`[class*="message"], [class*="msg"], [class*="insight"], p`).EachWithBreak(func(i int, sel *goquery.Selection) bool {
		candidate := Normalize(sel.Text())
		if looksLikeMessage(candidate) {
			found = candidate
			return false
		}
		return true
	})
	return found
}

// messageFromPane scans only the active tab pane. Candidates that carry
// another tab's vocabulary are rejected even when they otherwise look
// like a message; a too-broad selector used to concatenate the tab
// header with the real message.
func messageFromPane(markup string, paneSelectors []string, tab biosignalTab) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return ""
	}

	var pane *goquery.Selection
	for _, sel := range paneSelectors {
		if s := doc.Find(sel); s.Length() > 0 {
			pane = s.First()
			break
		}
	}
	if pane == nil {
		return ""
	}

	// leaf-ish elements first: a div wrapping the tab header together
	// with the message would otherwise win over the clean paragraph
	// inside it
	if msg := firstPaneCandidate(pane.Find("p, li, span"), tab); msg != "" {
		return msg
	}
	if msg := firstPaneCandidate(pane.Find("div"), tab); msg != "" {
		return msg
	}
	for _, candidate := range paneTextNodes(pane) {
		candidate = stripLeadingTabLabel(candidate, tab)
		if looksLikeMessage(candidate) && !mentionsOtherTab(candidate, tab) {
			return candidate
		}
	}
	// the pane itself may hold the message with no inner markup
	candidate := stripLeadingTabLabel(Normalize(pane.Text()), tab)
	if looksLikeMessage(candidate) && !mentionsOtherTab(candidate, tab) {
		return candidate
	}
	return ""
}

// paneTextNodes collects the pane's direct child text nodes, the markup
// shape where the message sits next to the header element instead of
// inside its own tag.
func paneTextNodes(pane *goquery.Selection) []string {
	var texts []string
	for _, node := range pane.Nodes {
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			if child.Type != html.TextNode {
				continue
			}
			if text := Normalize(child.Data); text != "" {
				texts = append(texts, text)
			}
		}
	}
	return texts
}

func firstPaneCandidate(sel *goquery.Selection, tab biosignalTab) string {
	var found string
	sel.EachWithBreak(func(i int, s *goquery.Selection) bool {
		candidate := stripLeadingTabLabel(Normalize(s.Text()), tab)
		if !looksLikeMessage(candidate) || mentionsOtherTab(candidate, tab) {
			return true
		}
		found = candidate
		return false
	})
	return found
}

// stripLeadingTabLabel removes the tab's own header when a candidate
// starts with it, the leftover of a container that concatenates header
// and message.
func stripLeadingTabLabel(candidate string, tab biosignalTab) string {
	low := strings.ToLower(candidate)
	for _, label := range tab.labels {
		l := strings.ToLower(label)
		if strings.HasPrefix(low, l) && len(candidate) > len(l) {
			return Normalize(candidate[len(l):])
		}
	}
	return candidate
}

func mentionsOtherTab(candidate string, tab biosignalTab) bool {
	low := strings.ToLower(candidate)
	for _, own := range tab.ownLabels {
		low = strings.ReplaceAll(low, own, " ")
	}
	for _, word := range tab.exclude {
		if strings.Contains(low, word) {
			return true
		}
	}
	return unitWordRe.MatchString(low)
}

// tabLabelCandidates collects short rendered texts of elements that
// plausibly are tab controls.
func tabLabelCandidates(markup string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil
	}
	seen := map[string]bool{}
	var candidates []string
	doc.Find(`[role="tab"], .tab, nav button, ul li, button`).Each(func(i int, sel *goquery.Selection) {
		text := Normalize(sel.Text())
		if text == "" || len(text) > 40 || seen[text] {
			return
		}
		seen[text] = true
		candidates = append(candidates, text)
	})
	return candidates
}

func matchTemplates(text string, templates []*regexp.Regexp) string {
	for _, re := range templates {
		if match := re.FindStringSubmatch(text); match != nil {
			return Normalize(match[1])
		}
	}
	return ""
}
