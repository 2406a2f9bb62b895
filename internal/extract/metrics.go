package extract

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jroca/siqscrape/internal/browser"
	"github.com/jroca/siqscrape/internal/log"
	"github.com/jroca/siqscrape/internal/types"
	"github.com/jroca/siqscrape/internal/utils"
)

// The label wording on the dashboard has changed between "avg",
// "average" and punctuation variants over time, hence the loose
// separators.
var (
	thirtyDayScoreRe = regexp.MustCompile(`(?i)30[-\s]?day\s+(?:avg\w*|average)\W{0,3}(\d{1,3})\b`)
	currentScoreRes  = []*regexp.Regexp{
		regexp.MustCompile(`(?i)sleepiq\W{0,3}score\W{0,3}(\d{1,3})\b`),
		regexp.MustCompile(`(?i)current\s+score\W{0,3}(\d{1,3})\b`),
	}
	allTimeBestRe = regexp.MustCompile(`(?i)all[-\s]?time\s+best\W{0,3}(\d{1,3})\b`)
)

// Metrics extracts the three dashboard scores. The label-anchored text
// pass is authoritative; the structural pass only fills in what the
// labels could not resolve. Missing scores come back as empty strings.
func (e *Extractor) Metrics(ctx context.Context, drv browser.Driver) types.Metrics {
	logger := log.LoggerFromContext(ctx)

	// wait until the dashboard rendered something score-like; on
	// timeout the passes below simply come back empty
	browser.WaitFor(ctx, e.timeout, e.poll, func(cctx context.Context) (bool, error) {
		text, err := drv.VisibleText(cctx)
		if err != nil {
			return false, nil
		}
		return hasScoreMarkers(text), nil
	})

	var m types.Metrics
	if markup, err := drv.HTML(ctx); err == nil {
		m = metricsFromDOM(markup)
	} else {
		logger.Debug(fmt.Sprintf("skipping structural score pass: %v", err))
	}

	text, err := drv.VisibleText(ctx)
	if err != nil {
		logger.Debug(fmt.Sprintf("skipping label-anchored score pass: %v", err))
		return m
	}
	labeled := metricsFromText(text)
	if labeled.ThirtyDayAverage != "" {
		m.ThirtyDayAverage = labeled.ThirtyDayAverage
	}
	if labeled.CurrentScore != "" {
		m.CurrentScore = labeled.CurrentScore
	}
	if labeled.AllTimeBest != "" {
		m.AllTimeBest = labeled.AllTimeBest
	}
	return m
}

func hasScoreMarkers(text string) bool {
	low := strings.ToLower(Normalize(text))
	if !strings.Contains(low, "score") {
		return false
	}
	return strings.Contains(low, "30-day") || strings.Contains(low, "30 day") ||
		strings.Contains(low, "all-time") || strings.Contains(low, "all time")
}

// metricsFromText runs the label-anchored regexes over the normalized
// visible text. Out-of-range matches are skipped, not returned.
func metricsFromText(text string) types.Metrics {
	normalized := Normalize(text)
	m := types.Metrics{
		ThirtyDayAverage: firstValidScore(thirtyDayScoreRe, normalized),
		AllTimeBest:      firstValidScore(allTimeBestRe, normalized),
	}
	for _, re := range currentScoreRes {
		if score := firstValidScore(re, normalized); score != "" {
			m.CurrentScore = score
			break
		}
	}
	return m
}

func firstValidScore(re *regexp.Regexp, text string) string {
	for _, match := range re.FindAllStringSubmatch(text, -1) {
		if validScore(match[1]) {
			return match[1]
		}
	}
	return ""
}

// validScore reports whether s is an integer in [0, 100].
func validScore(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n >= 0 && n <= 100
}

// metricsFromDOM scans for elements whose class hints at a score and,
// as a last resort, for isolated short digit nodes. Classification
// relies on the text around the node, which is why this pass never
// overrides the label-anchored one.
func metricsFromDOM(markup string) types.Metrics {
	var m types.Metrics
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return m
	}

	doc.Find(`[class*="score"], [class*="Score"]`).Each(func(i int, sel *goquery.Selection) {
		value := Normalize(sel.Text())
		if value == "" || !utils.OnlyContainsDigits(value) || !validScore(value) {
			return
		}
		assignScore(&m, strings.ToLower(Normalize(sel.Parent().Text())), value)
	})

	if m.ThirtyDayAverage != "" && m.CurrentScore != "" && m.AllTimeBest != "" {
		return m
	}

	doc.Find("span, div, p, h1, h2, h3").Each(func(i int, sel *goquery.Selection) {
		if sel.Children().Length() > 0 {
			return
		}
		value := Normalize(sel.Text())
		if len(value) < 2 || len(value) > 3 || !utils.OnlyContainsDigits(value) || !validScore(value) {
			return
		}
		assignScore(&m, strings.ToLower(Normalize(sel.Parent().Text())), value)
	})
	return m
}

func assignScore(m *types.Metrics, context, value string) {
	switch {
	case strings.Contains(context, "30-day") || strings.Contains(context, "30 day"):
		if m.ThirtyDayAverage == "" {
			m.ThirtyDayAverage = value
		}
	case strings.Contains(context, "all-time") || strings.Contains(context, "all time"):
		if m.AllTimeBest == "" {
			m.AllTimeBest = value
		}
	case strings.Contains(context, "score"):
		if m.CurrentScore == "" {
			m.CurrentScore = value
		}
	}
}
