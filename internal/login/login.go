// Package login drives the credential form of the sleep dashboard and
// classifies where the SPA ends up after submitting. The site's click
// handling is unreliable under automation, so submitting works through
// a fallback chain and the post-submit page is inspected rather than
// trusted.
package login

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jroca/siqscrape/internal/browser"
	"github.com/jroca/siqscrape/internal/config"
	"github.com/jroca/siqscrape/internal/log"
	"github.com/jroca/siqscrape/internal/session"
)

// State names one position in the login flow.
type State string

const (
	NotStarted         State = "not_started"
	FormLoaded         State = "form_loaded"
	CredentialsEntered State = "credentials_entered"
	Submitted          State = "submitted"
	Authenticated      State = "authenticated"
	StillOnLogin       State = "still_on_login"
	StuckIntermediate  State = "stuck_on_intermediate_auth_page"
	TwoFactorRequired  State = "two_factor_required"
)

// The three failure states map onto distinct errors so that callers can
// tell wrong credentials from unsupported flows.
var (
	ErrFormNotFound      = errors.New("the login form did not appear")
	ErrStillOnLogin      = errors.New("still on the login page after submitting, the credentials are probably wrong")
	ErrIntermediateAuth  = errors.New("stuck on an intermediate authentication page")
	ErrTwoFactorRequired = errors.New("the account requires two-factor authentication, which is not supported")
)

var (
	emailSelectors = []string{
		`input[type="email"]`,
		`input[name="email"]`,
		`input[name="username"]`,
		`input[autocomplete="username"]`,
		`input[type="text"]`,
	}
	passwordSelectors = []string{
		`input[type="password"]`,
		`input[name="password"]`,
	}
	submitSelectors = []string{
		`button[type="submit"]`,
		`input[type="submit"]`,
		`form button`,
	}
	loginLabels = []string{"Log in", "Log In", "LOG IN", "Login", "Sign in", "Sign In", "SIGN IN"}
)

// twoFactorVocabulary classifies an intermediate page that asks for a
// verification code.
var twoFactorVocabulary = []string{
	"verification code", "verify your identity", "one-time", "one time code",
	"security code", "two-step", "2-step", "two-factor", "2fa",
	"authentication code", "enter the code", "code sent", "code we sent",
}

// Authenticator runs the login state machine against a driver.
type Authenticator struct {
	site  *config.Site
	creds config.Credentials

	timeout time.Duration
	settle  time.Duration
	poll    time.Duration
	// the intermediate-auth page sometimes needs several seconds to
	// redirect on its own before we may call it stuck
	intermediateWait time.Duration
	intermediatePoll time.Duration

	state       State
	emailSel    string
	passwordSel string
}

// NewAuthenticator returns a new Authenticator for the given site and
// credentials. Wait budgets come from the browser configuration.
func NewAuthenticator(site *config.Site, creds config.Credentials, dc *browser.DriverConfig) *Authenticator {
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
	return &Authenticator{
		site:             site,
		creds:            creds,
		timeout:          time.Duration(timeoutMs) * time.Millisecond,
		settle:           time.Duration(settleMs) * time.Millisecond,
		poll:             time.Duration(pollMs) * time.Millisecond,
		intermediateWait: 15 * time.Second,
		intermediatePoll: time.Second,
		state:            NotStarted,
	}
}

// State returns the machine's current position. After Run it holds the
// terminal state.
func (a *Authenticator) State() State {
	return a.state
}

// Run executes the whole login flow: load the form, enter credentials,
// submit through the fallback chain and classify the landing page. A
// nil return means the browser is authenticated and on the dashboard.
func (a *Authenticator) Run(ctx context.Context, drv browser.Driver) error {
	if err := drv.Navigate(ctx, a.site.LoginURL()); err != nil {
		return fmt.Errorf("could not open login page: %w", err)
	}

	if !a.waitForForm(ctx, drv) {
		return a.failWithEvidence(ctx, drv, ErrFormNotFound)
	}
	a.transition(ctx, FormLoaded)

	if err := a.enterCredentials(ctx, drv); err != nil {
		return err
	}
	a.transition(ctx, CredentialsEntered)

	a.submit(ctx, drv)
	a.transition(ctx, Submitted)

	return a.classify(ctx, drv)
}

func (a *Authenticator) transition(ctx context.Context, s State) {
	a.state = s
	log.LoggerFromContext(ctx).Debug(fmt.Sprintf("login state is now %s", s))
}

// waitForForm polls until both credential fields exist and are enabled.
// The SPA renders the form a beat after the login route loads.
func (a *Authenticator) waitForForm(ctx context.Context, drv browser.Driver) bool {
	return browser.WaitFor(ctx, a.timeout, a.poll, func(cctx context.Context) (bool, error) {
		email, found := findField(cctx, drv, emailSelectors)
		if !found {
			return false, nil
		}
		password, found := findField(cctx, drv, passwordSelectors)
		if !found {
			return false, nil
		}
		ready, err := drv.FieldsReady(cctx, []string{email, password})
		if err != nil || !ready {
			return false, nil
		}
		a.emailSel = email
		a.passwordSel = password
		return true, nil
	})
}

// enterCredentials commits both values. CommitValue clears the field
// first to defeat autofill and dispatches the events the SPA's form
// state listens for; plain typing is not noticed reliably.
func (a *Authenticator) enterCredentials(ctx context.Context, drv browser.Driver) error {
	if err := drv.CommitValue(ctx, a.emailSel, a.creds.Username); err != nil {
		return fmt.Errorf("could not enter username: %w", err)
	}
	if err := drv.CommitValue(ctx, a.passwordSel, a.creds.Password); err != nil {
		return fmt.Errorf("could not enter password: %w", err)
	}
	return nil
}

// submit tries the strategies in order until one takes: a login-labeled
// control, generic submit selectors, Enter on the password field and
// finally direct form submission.
func (a *Authenticator) submit(ctx context.Context, drv browser.Driver) {
	logger := log.LoggerFromContext(ctx)

	for _, label := range loginLabels {
		if ok, _ := drv.ClickText(ctx, label); ok {
			logger.Debug(fmt.Sprintf("submitted by clicking %q", label))
			return
		}
	}
	for _, sel := range submitSelectors {
		if ok, _ := drv.ClickSelector(ctx, sel); ok {
			logger.Debug(fmt.Sprintf("submitted by clicking %q", sel))
			return
		}
	}
	if err := drv.PressEnter(ctx, a.passwordSel); err == nil {
		logger.Debug("submitted with the enter key")
		return
	}
	if err := drv.SubmitForm(ctx, a.passwordSel); err != nil {
		logger.Debug(fmt.Sprintf("all submit strategies failed: %v", err))
	}
}

// classify waits for the page to react to the submit and maps the
// result onto a terminal state.
func (a *Authenticator) classify(ctx context.Context, drv browser.Driver) error {
	logger := log.LoggerFromContext(ctx)

	// wait until we leave the login route or an error renders,
	// whichever happens first
	browser.WaitFor(ctx, a.timeout, a.poll, func(cctx context.Context) (bool, error) {
		current, err := drv.CurrentURL(cctx)
		if err != nil {
			return false, nil
		}
		if !strings.Contains(current, a.site.LoginPath) {
			return true, nil
		}
		if texts, err := drv.ErrorTexts(cctx); err == nil && len(texts) > 0 {
			return true, nil
		}
		return false, nil
	})
	drv.Sleep(ctx, a.settle)

	current, err := drv.CurrentURL(ctx)
	if err != nil {
		current = ""
	}
	formShown := a.formShown(ctx, drv)

	switch {
	case strings.Contains(current, a.site.LoginPath) && formShown:
		a.state = StillOnLogin
		return a.failWithEvidence(ctx, drv, ErrStillOnLogin)

	case session.PathHasLoginMarker(current) && formShown:
		// an intermediate auth route, give it time to clear on its own
		cleared := browser.WaitFor(ctx, a.intermediateWait, a.intermediatePoll, func(cctx context.Context) (bool, error) {
			c, err := drv.CurrentURL(cctx)
			if err != nil {
				return false, nil
			}
			if !session.PathHasLoginMarker(c) {
				return true, nil
			}
			return !a.formShown(cctx, drv), nil
		})
		if !cleared {
			if text, err := drv.VisibleText(ctx); err == nil && mentionsTwoFactor(text) {
				a.state = TwoFactorRequired
				return a.failWithEvidence(ctx, drv, ErrTwoFactorRequired)
			}
			a.state = StuckIntermediate
			return a.failWithEvidence(ctx, drv, ErrIntermediateAuth)
		}
	}

	a.state = Authenticated
	logger.Debug("login succeeded")
	return a.ensureDashboard(ctx, drv)
}

// ensureDashboard navigates to the dashboard route when the post-login
// redirect landed somewhere else.
func (a *Authenticator) ensureDashboard(ctx context.Context, drv browser.Driver) error {
	current, err := drv.CurrentURL(ctx)
	if err == nil && strings.Contains(current, a.site.DashboardPath) {
		return nil
	}
	if err := drv.Navigate(ctx, a.site.DashboardURL()); err != nil {
		// not fatal, extraction degrades on its own if the page is wrong
		log.LoggerFromContext(ctx).Debug(fmt.Sprintf("could not navigate to the dashboard: %v", err))
	}
	drv.Sleep(ctx, a.settle)
	return nil
}

func (a *Authenticator) formShown(ctx context.Context, drv browser.Driver) bool {
	sel := a.passwordSel
	if sel == "" {
		sel = passwordSelectors[0]
	}
	shown, err := drv.Exists(ctx, sel)
	return err == nil && shown
}

// failWithEvidence decorates the error with whatever the page says. The
// site's error presentation is inconsistent, so any red or error-styled
// text helps diagnosis.
func (a *Authenticator) failWithEvidence(ctx context.Context, drv browser.Driver, base error) error {
	if log.Debug {
		if err := drv.Screenshot(ctx, "login-failure"); err != nil {
			log.LoggerFromContext(ctx).Debug(fmt.Sprintf("could not capture login failure: %v", err))
		}
	}
	texts, err := drv.ErrorTexts(ctx)
	if err != nil || len(texts) == 0 {
		return base
	}
	return fmt.Errorf("%w; the page reports: %s", base, strings.Join(texts, "; "))
}

func findField(ctx context.Context, drv browser.Driver, candidates []string) (string, bool) {
	for _, sel := range candidates {
		if present, err := drv.Exists(ctx, sel); err == nil && present {
			return sel, true
		}
	}
	return "", false
}

func mentionsTwoFactor(text string) bool {
	low := strings.ToLower(text)
	for _, phrase := range twoFactorVocabulary {
		if strings.Contains(low, phrase) {
			return true
		}
	}
	return false
}
