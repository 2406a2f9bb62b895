package extract

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello   world", "hello world"},
		{"line\none\n\nline two", "line one line two"},
		{"a b", "a b"},
		{"nar row and fig ure", "nar row and fig ure"},
		{"​zero‌width﻿", "zerowidth"},
		{"  padded \n lines \t", "padded lines"},
		{"already clean", "already clean"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Normalize(tt.input); got != tt.expected {
			t.Errorf("Normalize(%q) = %q; want %q", tt.input, got, tt.expected)
		}
	}
}

func TestNormalizeProperties(t *testing.T) {
	inputs := []string{
		"You slept   well  last night.",
		"multi\n\nline\ttext with spaces",
	}
	for _, input := range inputs {
		got := Normalize(input)
		if strings.Contains(got, "  ") {
			t.Errorf("Normalize(%q) left a double space: %q", input, got)
		}
		if strings.ContainsRune(got, ' ') || strings.ContainsRune(got, ' ') {
			t.Errorf("Normalize(%q) left a non-breaking space: %q", input, got)
		}
	}
}

func TestLooksLikeMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"coaching message", "Your sleep quality improved a lot last night.", true},
		{"rest keyword", "You need more consistent rest to recover fully.", true},
		{"exclamation", "Great week, your bedtime routine is paying off!", true},
		{"too short", "You rested well!", false},
		{"too long", "You " + strings.Repeat("z", 300) + " sleep.", false},
		{"no pronoun", "The mattress firmness is adjustable overnight.", false},
		{"no sleep keyword", "Your account settings were updated successfully.", false},
		{"no terminal punctuation", "Your sleep keeps getting better and better", false},
		{"metric label", "Your 30-day average moved up this week, keep going.", false},
		{"promo content", "Tip: learn more about your sleep settings here.", false},
		{"clock stamp", "You went to bed at 10:42 PM and slept well.", false},
		{"duration is fine", "You slept 7:32 in total, your best night this week.", true},
		{"digits only", "12345678901234567890", false},
	}

	for _, tt := range tests {
		if got := looksLikeMessage(tt.input); got != tt.expected {
			t.Errorf("%s: looksLikeMessage(%q) = %v; want %v", tt.name, tt.input, got, tt.expected)
		}
	}
}
