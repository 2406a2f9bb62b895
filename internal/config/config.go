// Package config provides the configuration for the scraper and all subpackages
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jroca/siqscrape/internal/browser"
	"github.com/jroca/siqscrape/internal/output"
	"github.com/jroca/siqscrape/internal/session"
)

// Credentials holds the login identity for the sleep dashboard.
type Credentials struct {
	Username string `yaml:"username" env:"SIQ_USERNAME"` // we want to be able to pass credentials via env vars
	Password string `yaml:"password" env:"SIQ_PASSWORD"` // we want to be able to pass credentials via env vars
}

// MaskedPassword returns a placeholder suitable for diagnostics. The real
// password must never show up in logs or error messages.
func (c Credentials) MaskedPassword() string {
	if c.Password == "" {
		return ""
	}
	return "****"
}

// Site describes the routes and markup hints of the sleep dashboard. The
// defaults match the currently deployed SPA; everything is overridable
// because the site changes without notice.
type Site struct {
	BaseURL         string `yaml:"base_url" env:"SIQ_BASE_URL" env-default:"https://sleepiq.sleepnumber.com"`
	LoginPath       string `yaml:"login_path" env:"SIQ_LOGIN_PATH" env-default:"/login"`
	DashboardPath   string `yaml:"dashboard_path" env:"SIQ_DASHBOARD_PATH" env-default:"/dashboard"`
	SleepDetailPath string `yaml:"sleep_detail_path" env:"SIQ_SLEEP_DETAIL_PATH" env-default:"/sleep-details"`
	BiosignalsPath  string `yaml:"biosignals_path" env:"SIQ_BIOSIGNALS_PATH" env-default:"/biosignals"`
	// MessageSelectors are tried first when looking for the coaching
	// message on the sleep detail page, narrowest first.
	MessageSelectors []string `yaml:"message_selectors"`
	// PaneSelectors locate the active tab pane on the biosignals page.
	PaneSelectors []string `yaml:"pane_selectors"`
}

func (s *Site) LoginURL() string {
	return s.BaseURL + s.LoginPath
}

func (s *Site) DashboardURL() string {
	return s.BaseURL + s.DashboardPath
}

func (s *Site) SleepDetailURL() string {
	return s.BaseURL + s.SleepDetailPath
}

func (s *Site) BiosignalsURL() string {
	return s.BaseURL + s.BiosignalsPath
}

// ServeConfig configures the optional http endpoint that triggers runs.
type ServeConfig struct {
	Addr     string `yaml:"addr" env:"SIQ_SERVE_ADDR" env-default:":8080"`
	User     string `yaml:"user" env:"SIQ_SERVE_USER"`
	Password string `yaml:"password" env:"SIQ_SERVE_PASSWORD"`
}

// Config defines the overall structure of the scraper configuration.
// Values will be taken from a config yml file or environment variables
// or both.
type Config struct {
	Credentials Credentials          `yaml:"credentials"`
	Site        Site                 `yaml:"site"`
	Browser     browser.DriverConfig `yaml:"browser"`
	Sleepers    []string             `yaml:"sleepers" env:"SIQ_SLEEPERS"`
	Session     session.StoreConfig  `yaml:"session"`
	Writer      output.WriterConfig  `yaml:"writer"`
	Serve       ServeConfig          `yaml:"serve"`
	// OverallTimeoutMs caps one whole run. The per-step timeouts are
	// additive and can sum up to several minutes on a slow site.
	OverallTimeoutMs int `yaml:"overall_timeout_ms" env:"SIQ_OVERALL_TIMEOUT_MS"`
}

// NewConfig reads the configuration from the given yml file, falling back
// to environment variables only when no path is given.
func NewConfig(configPath string) (*Config, error) {
	var config Config

	var err error
	if configPath == "" {
		err = cleanenv.ReadEnv(&config)
	} else {
		err = cleanenv.ReadConfig(configPath, &config)
	}
	if err != nil {
		return nil, err
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if len(c.Sleepers) == 0 {
		c.Sleepers = []string{"rafa", "miki"}
	}
	if c.OverallTimeoutMs == 0 {
		c.OverallTimeoutMs = 240000 // 4 minutes
	}
	if len(c.Site.MessageSelectors) == 0 {
		c.Site.MessageSelectors = []string{
			"[data-test='sleep-message']",
			".sleep-message",
			".session-message",
			".coaching-message",
		}
	}
	if len(c.Site.PaneSelectors) == 0 {
		c.Site.PaneSelectors = []string{
			"[role='tabpanel']:not([hidden])",
			".tab-pane.active",
			".tab-content .active",
		}
	}
}

// Validate checks everything that must be known before a browser is
// launched. A validation error is fatal for the run.
func (c *Config) Validate() error {
	if c.Credentials.Username == "" || c.Credentials.Password == "" {
		return fmt.Errorf("username and password must be configured, either in the config file or via SIQ_USERNAME and SIQ_PASSWORD")
	}
	if len(c.Sleepers) != 2 {
		return fmt.Errorf("exactly two sleepers must be configured, got %d", len(c.Sleepers))
	}
	for _, s := range c.Sleepers {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("sleeper names must not be empty")
		}
	}
	if c.Sleepers[0] == c.Sleepers[1] {
		return fmt.Errorf("the two sleepers must have distinct names, got %q twice", c.Sleepers[0])
	}
	u, err := url.Parse(c.Site.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url %q is not a valid absolute url", c.Site.BaseURL)
	}
	return nil
}
