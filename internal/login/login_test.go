package login

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jroca/siqscrape/internal/browser"
	"github.com/jroca/siqscrape/internal/config"
)

const (
	loginURL        = "https://sleep.example.com/login"
	dashboardURL    = "https://sleep.example.com/dashboard"
	intermediateURL = "https://sleep.example.com/auth/challenge"
)

func testSite() *config.Site {
	return &config.Site{
		BaseURL:       "https://sleep.example.com",
		LoginPath:     "/login",
		DashboardPath: "/dashboard",
	}
}

func testAuthenticator() *Authenticator {
	a := NewAuthenticator(
		testSite(),
		config.Credentials{Username: "someone@example.com", Password: "hunter2"},
		&browser.DriverConfig{TimeoutMs: 300, SettleMs: 1, PollMs: 20},
	)
	a.intermediateWait = 100 * time.Millisecond
	a.intermediatePoll = 20 * time.Millisecond
	return a
}

func loginPage() *browser.MockPage {
	return &browser.MockPage{
		Present: []string{`input[type="email"]`, `input[type="password"]`},
		Ready:   []string{`input[type="email"]`, `input[type="password"]`},
	}
}

func TestRunSucceedsViaLoginButton(t *testing.T) {
	m := browser.NewMockDriver()
	m.AddPage(loginURL, loginPage())
	m.AddPage(dashboardURL, &browser.MockPage{Text: "Good morning"})
	m.ClickHooks["Log in"] = func(d *browser.MockDriver) bool {
		d.Current = dashboardURL
		return true
	}

	a := testAuthenticator()
	if err := a.Run(context.Background(), m); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if a.State() != Authenticated {
		t.Errorf("state = %s; want %s", a.State(), Authenticated)
	}
	if m.Typed[`input[type="email"]`] != "someone@example.com" {
		t.Errorf("username not committed, typed = %v", m.Typed)
	}
	if m.Typed[`input[type="password"]`] != "hunter2" {
		t.Errorf("password not committed, typed = %v", m.Typed)
	}
	if len(m.Clicked) == 0 || m.Clicked[0] != "Log in" {
		t.Errorf("login-labeled control was not the first submit strategy, clicked = %v", m.Clicked)
	}
}

func TestRunSucceedsViaSubmitSelector(t *testing.T) {
	m := browser.NewMockDriver()
	m.AddPage(loginURL, loginPage())
	m.AddPage(dashboardURL, &browser.MockPage{})
	m.ClickHooks[`button[type="submit"]`] = func(d *browser.MockDriver) bool {
		d.Current = dashboardURL
		return true
	}

	a := testAuthenticator()
	if err := a.Run(context.Background(), m); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(m.Entered) != 0 {
		t.Errorf("enter key used although a submit selector worked")
	}
}

func TestRunSucceedsViaEnterKey(t *testing.T) {
	m := browser.NewMockDriver()
	m.AddPage(loginURL, loginPage())
	m.AddPage(dashboardURL, &browser.MockPage{})
	m.EnterHook = func(d *browser.MockDriver) {
		d.Current = dashboardURL
	}

	a := testAuthenticator()
	if err := a.Run(context.Background(), m); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(m.Entered) != 1 {
		t.Errorf("enter presses = %d; want 1", len(m.Entered))
	}
	// the click strategies must have been tried first
	clicked := strings.Join(m.Clicked, ",")
	if !strings.Contains(clicked, "Log in") || !strings.Contains(clicked, `button[type="submit"]`) {
		t.Errorf("click strategies skipped, clicked = %v", m.Clicked)
	}
}

func TestRunWaitsForSlowForm(t *testing.T) {
	m := browser.NewMockDriver()
	m.AddPage(loginURL, loginPage())
	m.AddPage(dashboardURL, &browser.MockPage{})
	m.ReadyPolls = 3
	m.EnterHook = func(d *browser.MockDriver) {
		d.Current = dashboardURL
	}

	a := testAuthenticator()
	if err := a.Run(context.Background(), m); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if a.State() != Authenticated {
		t.Errorf("state = %s; want %s", a.State(), Authenticated)
	}
}

func TestRunFailsWhenFormNeverAppears(t *testing.T) {
	m := browser.NewMockDriver()
	m.AddPage(loginURL, &browser.MockPage{Text: "Down for maintenance"})

	a := testAuthenticator()
	err := a.Run(context.Background(), m)
	if !errors.Is(err, ErrFormNotFound) {
		t.Fatalf("Run returned %v; want ErrFormNotFound", err)
	}
	if a.State() != NotStarted {
		t.Errorf("state = %s; want %s", a.State(), NotStarted)
	}
}

func TestRunStillOnLogin(t *testing.T) {
	page := loginPage()
	page.ErrorTexts = []string{"Invalid email or password"}
	m := browser.NewMockDriver()
	m.AddPage(loginURL, page)

	a := testAuthenticator()
	err := a.Run(context.Background(), m)
	if !errors.Is(err, ErrStillOnLogin) {
		t.Fatalf("Run returned %v; want ErrStillOnLogin", err)
	}
	if a.State() != StillOnLogin {
		t.Errorf("state = %s; want %s", a.State(), StillOnLogin)
	}
	if !strings.Contains(err.Error(), "Invalid email or password") {
		t.Errorf("error does not embed the on-page text: %v", err)
	}
}

func TestRunStuckOnIntermediatePage(t *testing.T) {
	m := browser.NewMockDriver()
	m.AddPage(loginURL, loginPage())
	m.AddPage(intermediateURL, &browser.MockPage{
		Present: []string{`input[type="password"]`},
		Text:    "We need more information before you can continue",
	})
	m.ClickHooks["Log in"] = func(d *browser.MockDriver) bool {
		d.Current = intermediateURL
		return true
	}

	a := testAuthenticator()
	err := a.Run(context.Background(), m)
	if !errors.Is(err, ErrIntermediateAuth) {
		t.Fatalf("Run returned %v; want ErrIntermediateAuth", err)
	}
	if a.State() != StuckIntermediate {
		t.Errorf("state = %s; want %s", a.State(), StuckIntermediate)
	}
}

func TestRunClassifiesTwoFactor(t *testing.T) {
	m := browser.NewMockDriver()
	m.AddPage(loginURL, loginPage())
	m.AddPage(intermediateURL, &browser.MockPage{
		Present: []string{`input[type="password"]`},
		Text:    "Enter the verification code we sent to your phone",
	})
	m.ClickHooks["Log in"] = func(d *browser.MockDriver) bool {
		d.Current = intermediateURL
		return true
	}

	a := testAuthenticator()
	err := a.Run(context.Background(), m)
	if !errors.Is(err, ErrTwoFactorRequired) {
		t.Fatalf("Run returned %v; want ErrTwoFactorRequired", err)
	}
	if a.State() != TwoFactorRequired {
		t.Errorf("state = %s; want %s", a.State(), TwoFactorRequired)
	}
}

func TestRunTreatsClearedIntermediatePageAsSuccess(t *testing.T) {
	// the auth route no longer shows a form, that counts as success
	continueURL := "https://sleep.example.com/auth/continue"
	m := browser.NewMockDriver()
	m.AddPage(loginURL, loginPage())
	m.AddPage(continueURL, &browser.MockPage{Text: "Redirecting"})
	m.AddPage(dashboardURL, &browser.MockPage{Text: "Good morning"})
	m.ClickHooks["Log in"] = func(d *browser.MockDriver) bool {
		d.Current = continueURL
		return true
	}

	a := testAuthenticator()
	if err := a.Run(context.Background(), m); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if a.State() != Authenticated {
		t.Errorf("state = %s; want %s", a.State(), Authenticated)
	}
	if m.Current != dashboardURL {
		t.Errorf("driver on %s; want explicit navigation to the dashboard", m.Current)
	}
}

func TestMentionsTwoFactor(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"Enter the verification code we sent you", true},
		{"Two-factor authentication is enabled", true},
		{"We sent a security code to your email", true},
		{"Please verify your identity", true},
		{"Welcome back, pick your sleeper", false},
		{"Invalid email or password", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := mentionsTwoFactor(tt.input); got != tt.expected {
			t.Errorf("mentionsTwoFactor(%q) = %v; want %v", tt.input, got, tt.expected)
		}
	}
}
