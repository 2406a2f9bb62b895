// Package scrape orchestrates a full run: authenticate, iterate the
// sleeper profiles and extract each one's record.
package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jroca/siqscrape/internal/browser"
	"github.com/jroca/siqscrape/internal/config"
	"github.com/jroca/siqscrape/internal/extract"
	"github.com/jroca/siqscrape/internal/log"
	"github.com/jroca/siqscrape/internal/login"
	"github.com/jroca/siqscrape/internal/session"
	"github.com/jroca/siqscrape/internal/sleeper"
	"github.com/jroca/siqscrape/internal/types"
	"github.com/jroca/siqscrape/internal/utils"
)

// interstitialControls click through the "choose default sleeper"
// screen the site sometimes shows between login and dashboard.
var interstitialControls = []string{
	`[data-test="continue"]`,
	"button.primary",
	"main button",
	"button",
	"a.button",
}

// Runner drives one complete scrape: one browser, both sleepers,
// strictly sequential.
type Runner struct {
	config    *config.Config
	manager   *session.Manager
	auth      *login.Authenticator
	selector  *sleeper.Selector
	extractor *extract.Extractor
	// driver is created per run unless a test injected one.
	driver browser.Driver
	settle time.Duration
	stats  types.RunStats
	now    func() time.Time
}

func NewRunner(cfg *config.Config) (*Runner, error) {
	store, err := session.NewStore(&cfg.Session)
	if err != nil {
		return nil, err
	}
	settleMs := cfg.Browser.SettleMs
	if settleMs == 0 {
		settleMs = 1500 // default
	}
	return &Runner{
		config:    cfg,
		manager:   session.NewManager(store, &cfg.Session, cfg.Credentials.Username, cfg.Site.BaseURL),
		auth:      login.NewAuthenticator(&cfg.Site, cfg.Credentials, &cfg.Browser),
		selector:  sleeper.NewSelector(&cfg.Browser),
		extractor: extract.NewExtractor(&cfg.Site, &cfg.Browser),
		settle:    time.Duration(settleMs) * time.Millisecond,
		now:       time.Now,
	}, nil
}

// Stats returns the outcome of the most recent Run.
func (r *Runner) Stats() types.RunStats {
	return r.stats
}

// Run scrapes both configured sleepers and returns the snapshot. The
// snapshot always carries both sleeper keys with all seven fields,
// empty strings stand in for whatever could not be extracted. Only
// authentication failures are returned as errors.
func (r *Runner) Run(ctx context.Context) (types.Snapshot, error) {
	logger := log.LoggerFromContext(ctx)
	runID := uuid.NewString()
	r.stats = types.RunStats{RunID: runID, RunStart: r.now()}
	defer func() {
		r.stats.RunEnd = r.now()
	}()

	drv := r.driver
	if drv == nil {
		drv = browser.NewChromeDriver(&r.config.Browser)
		defer drv.Close()
	}

	logger.Info(fmt.Sprintf("starting run %s", runID))
	if err := r.authenticate(ctx, drv); err != nil {
		r.stats.NrErrors++
		return nil, err
	}

	snapshot := types.Snapshot{}
	for _, name := range r.config.Sleepers {
		start := r.now()
		record := r.scrapeSleeper(ctx, drv, name, runID)
		snapshot[name] = record
		r.stats.Sleepers = append(r.stats.Sleepers, types.SleeperStats{
			Sleeper:        name,
			NrFieldsFilled: record.NrFilled(),
			DurationMS:     r.now().Sub(start).Milliseconds(),
		})
		logger.Info(fmt.Sprintf("scraped sleeper %s, %d of %d fields filled", name, record.NrFilled(), len(types.FieldNames())))
	}
	return snapshot, nil
}

// authenticate restores a saved session if possible and falls back to
// a fresh login. A fresh login persists the new session.
func (r *Runner) authenticate(ctx context.Context, drv browser.Driver) error {
	logger := log.LoggerFromContext(ctx)
	if r.manager.Restore(ctx, drv) {
		if r.ensureDashboard(ctx, drv) {
			logger.Debug("restored session is still authenticated, skipping login")
			return nil
		}
		logger.Debug("restored session is no longer authenticated")
		r.manager.Clear(ctx)
	}
	if err := r.auth.Run(ctx, drv); err != nil {
		return fmt.Errorf("login ended in state %s: %w", r.auth.State(), err)
	}
	r.ensureDashboard(ctx, drv)
	r.manager.Save(ctx, drv)
	return nil
}

// ensureDashboard navigates to the dashboard route and clicks through
// the optional interstitial. It reports whether the page ends up on an
// authenticated view.
func (r *Runner) ensureDashboard(ctx context.Context, drv browser.Driver) bool {
	if err := drv.Navigate(ctx, r.config.Site.DashboardURL()); err != nil {
		return false
	}
	drv.Sleep(ctx, r.settle)
	if r.manager.IsAuthenticated(ctx, drv) {
		return true
	}
	r.clickThroughInterstitial(ctx, drv)
	return r.manager.IsAuthenticated(ctx, drv)
}

func (r *Runner) clickThroughInterstitial(ctx context.Context, drv browser.Driver) {
	logger := log.LoggerFromContext(ctx)
	for _, sel := range interstitialControls {
		if ok, err := drv.ClickSelector(ctx, sel); err == nil && ok {
			logger.Debug(fmt.Sprintf("clicked interstitial control %s", sel))
			drv.Sleep(ctx, r.settle)
			return
		}
	}
}

// scrapeSleeper extracts one profile's record. A panic inside the
// extraction chain keeps the fields gathered so far and is converted
// into a diagnostic note, so the other profile still gets scraped.
func (r *Runner) scrapeSleeper(ctx context.Context, drv browser.Driver, name, runID string) (record *types.SleepRecord) {
	logger := log.LoggerFromContext(ctx)
	record = types.NewSleepRecord()
	diag := &types.Diagnostic{RunID: runID, Timestamp: r.now()}
	record.Diagnostic = diag
	defer func() {
		if rec := recover(); rec != nil {
			r.stats.NrErrors++
			note := fmt.Sprintf("recovered from panic while scraping %s: %v", name, rec)
			diag.AddNote(note)
			logger.Error(note)
		}
		if record.NrFilled() == 0 {
			r.collectEvidence(ctx, drv, name, diag)
		}
	}()

	if !r.selector.Select(ctx, drv, name) {
		diag.AddNote(fmt.Sprintf("no switch control found for %s, scraping the profile the dashboard already shows", name))
	}

	metrics := r.extractor.Metrics(ctx, drv)
	record.ThirtyDayAverage = metrics.ThirtyDayAverage
	record.CurrentScore = metrics.CurrentScore
	record.AllTimeBest = metrics.AllTimeBest

	record.GeneralMessage = r.extractor.GeneralMessage(ctx, drv)

	bio := r.extractor.BiosignalMessages(ctx, drv)
	record.HeartRateMessage = bio.HeartRate
	record.HeartRateVariabilityMessage = bio.HeartRateVariability
	record.BreathRateMessage = bio.BreathRate
	return record
}

// collectEvidence attaches the page text to the diagnostic of a record
// that ended up completely empty, plus a screenshot in debug mode.
func (r *Runner) collectEvidence(ctx context.Context, drv browser.Driver, name string, diag *types.Diagnostic) {
	if text, err := drv.VisibleText(ctx); err == nil {
		diag.PageText = utils.ShortenString(text, 2000)
	}
	if log.Debug {
		if err := drv.Screenshot(ctx, fmt.Sprintf("empty-record-%s", name)); err != nil {
			log.LoggerFromContext(ctx).Debug(fmt.Sprintf("could not capture screenshot: %v", err))
		}
	}
}
