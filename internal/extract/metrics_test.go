package extract

import (
	"context"
	"testing"

	"github.com/jroca/siqscrape/internal/browser"
	"github.com/jroca/siqscrape/internal/config"
	"github.com/jroca/siqscrape/internal/types"
)

const dashboardURL = "https://sleep.example.com/dashboard"

func testExtractor() *Extractor {
	site := &config.Site{
		BaseURL:         "https://sleep.example.com",
		LoginPath:       "/login",
		DashboardPath:   "/dashboard",
		SleepDetailPath: "/sleep-details",
		BiosignalsPath:  "/biosignals",
		MessageSelectors: []string{
			"[data-test='sleep-message']",
			".sleep-message",
		},
		PaneSelectors: []string{
			`[role="tabpanel"]:not([hidden])`,
			".tab-pane.active",
		},
	}
	return NewExtractor(site, &browser.DriverConfig{TimeoutMs: 300, SettleMs: 1, PollMs: 20})
}

func dashboardDriver(t *testing.T, page *browser.MockPage) *browser.MockDriver {
	t.Helper()
	m := browser.NewMockDriver()
	m.AddPage(dashboardURL, page)
	if err := m.Navigate(context.Background(), dashboardURL); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestMetrics(t *testing.T) {
	m := dashboardDriver(t, &browser.MockPage{
		Text: "30-day avg\n70\nSleepIQ® score\n80\nAll-time best\n88",
	})

	got := testExtractor().Metrics(context.Background(), m)
	want := types.Metrics{ThirtyDayAverage: "70", CurrentScore: "80", AllTimeBest: "88"}
	if got != want {
		t.Errorf("Metrics = %+v; want %+v", got, want)
	}
}

func TestMetricsLabelVariants(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected types.Metrics
	}{
		{
			"spelled out average with colons",
			"30 day average: 75\nCurrent score: 64\nAll time best: 90",
			types.Metrics{ThirtyDayAverage: "75", CurrentScore: "64", AllTimeBest: "90"},
		},
		{
			"nbsp between label and value",
			"30-day avg 71 SleepIQ score 82 All-time best 93",
			types.Metrics{ThirtyDayAverage: "71", CurrentScore: "82", AllTimeBest: "93"},
		},
		{
			"only one label present",
			"SleepIQ score 59 and some other text",
			types.Metrics{CurrentScore: "59"},
		},
	}

	for _, tt := range tests {
		if got := metricsFromText(tt.text); got != tt.expected {
			t.Errorf("%s: metricsFromText = %+v; want %+v", tt.name, got, tt.expected)
		}
	}
}

func TestMetricsRangeValidation(t *testing.T) {
	m := dashboardDriver(t, &browser.MockPage{
		Text: "30-day avg\n170\nSleepIQ score\n101\nAll-time best\n88",
	})

	got := testExtractor().Metrics(context.Background(), m)
	want := types.Metrics{AllTimeBest: "88"}
	if got != want {
		t.Errorf("Metrics = %+v; want %+v (out-of-range scores discarded)", got, want)
	}
}

func TestMetricsMissingDashboard(t *testing.T) {
	m := dashboardDriver(t, &browser.MockPage{Text: "Loading your dashboard"})

	got := testExtractor().Metrics(context.Background(), m)
	if got != (types.Metrics{}) {
		t.Errorf("Metrics = %+v; want all empty when no scores render", got)
	}
}

func TestMetricsStructuralPass(t *testing.T) {
	// no label-adjacent numbers in the text, the DOM has to carry it
	m := dashboardDriver(t, &browser.MockPage{
		Text: "Sleep summary 30-day avg trend all-time best score history",
		HTML: `<html><body>
			<div class="score-card">30-day avg<span class="score-value">77</span></div>
			<div class="score-card">SleepIQ score<span class="score-value">81</span></div>
			<div class="score-card">All-time best<span class="score-value">95</span></div>
		</body></html>`,
	})

	got := testExtractor().Metrics(context.Background(), m)
	want := types.Metrics{ThirtyDayAverage: "77", CurrentScore: "81", AllTimeBest: "95"}
	if got != want {
		t.Errorf("Metrics = %+v; want %+v", got, want)
	}
}

func TestMetricsLabelPassIsAuthoritative(t *testing.T) {
	// the DOM pass finds 50 but the labeled text says 80
	m := dashboardDriver(t, &browser.MockPage{
		Text: "SleepIQ score 80 and 30-day avg 70",
		HTML: `<html><body><div>SleepIQ score<span class="score">50</span></div></body></html>`,
	})

	got := testExtractor().Metrics(context.Background(), m)
	if got.CurrentScore != "80" {
		t.Errorf("CurrentScore = %q; want 80 (label-anchored pass wins)", got.CurrentScore)
	}
	if got.ThirtyDayAverage != "70" {
		t.Errorf("ThirtyDayAverage = %q; want 70", got.ThirtyDayAverage)
	}
}

func TestValidScore(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"0", true},
		{"50", true},
		{"100", true},
		{"101", false},
		{"170", false},
		{"-1", false},
		{"", false},
		{"abc", false},
	}

	for _, tt := range tests {
		if got := validScore(tt.input); got != tt.expected {
			t.Errorf("validScore(%q) = %v; want %v", tt.input, got, tt.expected)
		}
	}
}

func TestHasScoreMarkers(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"SleepIQ score 80 30-day avg 70", true},
		{"your all-time best score", true},
		{"score without any period marker", false},
		{"30-day avg without the s word", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := hasScoreMarkers(tt.input); got != tt.expected {
			t.Errorf("hasScoreMarkers(%q) = %v; want %v", tt.input, got, tt.expected)
		}
	}
}
