// Package extract implements the heuristics that pull metrics and
// coaching messages out of the rendered sleep dashboard. The dashboard
// exposes no stable structural contract, so every extraction is
// pattern-based and every stage degrades to an empty string instead of
// failing the run.
package extract

import (
	"time"

	"github.com/jroca/siqscrape/internal/browser"
	"github.com/jroca/siqscrape/internal/config"
)

// Extractor holds the site description and the wait budgets shared by
// all extraction flows.
type Extractor struct {
	site    *config.Site
	timeout time.Duration
	settle  time.Duration
	poll    time.Duration
}

// NewExtractor returns a new Extractor for the given site. Wait budgets
// come from the browser configuration.
func NewExtractor(site *config.Site, dc *browser.DriverConfig) *Extractor {
	timeoutMs := dc.TimeoutMs
	if timeoutMs == 0 {
		timeoutMs = 15000 // default
	}
	settleMs := dc.SettleMs
	if settleMs == 0 {
		settleMs = 1500 // default
	}
	pollMs := dc.PollMs
	if pollMs == 0 {
		pollMs = 250 // default
	}
	return &Extractor{
		site:    site,
		timeout: time.Duration(timeoutMs) * time.Millisecond,
		settle:  time.Duration(settleMs) * time.Millisecond,
		poll:    time.Duration(pollMs) * time.Millisecond,
	}
}
