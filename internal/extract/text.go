package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jroca/siqscrape/internal/utils"
)

var whitespaceRunRe = regexp.MustCompile(`\s+`)

// Normalize collapses whitespace runs to single spaces, maps
// non-breaking space variants to plain spaces, strips invisible code
// points and trims. The dashboard uses &nbsp; and narrow spaces
// liberally, which breaks naive string comparison.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ' ', ' ', ' ', ' ': // nbsp and friends
			b.WriteRune(' ')
		case '​', '‌', '‍', '﻿': // zero width
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(whitespaceRunRe.ReplaceAllString(b.String(), " "))
}

var (
	pronounRe = regexp.MustCompile(`(?i)\b(you|your|yours|you're|we|our|us)\b`)
	// only reject wall-clock stamps, not durations like "7:32"
	clockRe = regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}\s*(a\.?m\.?|p\.?m\.?)`)
)

// sleepVocabulary must hit at least once for a candidate to count as a
// coaching message.
var sleepVocabulary = []string{
	"sleep", "bed", "rest", "night", "wake", "snooze",
	"heart", "breath", "hrv", "routine", "recover", "circadian",
}

// notMessageVocabulary identifies metric labels and promotional content
// that show up near the real message and would otherwise pass the
// length and pronoun checks.
var notMessageVocabulary = []string{
	"30-day", "30 day", "all-time", "all time",
	"sleepiq score", "sleepiq® score",
	"tip:", "did you know", "learn more", "upgrade",
	"terms of", "privacy",
}

// looksLikeMessage reports whether a normalized text candidate reads
// like a coaching message: bounded length, addressed to the user,
// mentions sleep and ends like a sentence.
func looksLikeMessage(s string) bool {
	n := utf8.RuneCountInString(s)
	if n < 20 || n > 300 {
		return false
	}
	if utils.OnlyContainsDigits(s) {
		return false
	}
	low := strings.ToLower(s)
	for _, w := range notMessageVocabulary {
		if strings.Contains(low, w) {
			return false
		}
	}
	if clockRe.MatchString(s) {
		return false
	}
	if !pronounRe.MatchString(s) {
		return false
	}
	keyword := false
	for _, w := range sleepVocabulary {
		if strings.Contains(low, w) {
			keyword = true
			break
		}
	}
	if !keyword {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s)
	return r == '.' || r == '!' || r == '?'
}
