package usecase

import (
	"fmt"
	"regexp"
	"strings"
)

// searchKeywords mark questions that likely need current or real-time
// information. Matched as substrings of the lowercased message.
var searchKeywords = []string{
	// Time-sensitive
	"latest", "current", "today", "now", "recent", "new", "update",
	"this week", "this month", "this year", "2024", "2025", "2026",
	// News and events
	"news", "headline", "breaking", "announced", "release", "launched",
	// Real-time data
	"weather", "forecast", "temperature", "stock", "price", "score",
	"status", "outage", "down", "working",
	// Research and lookup
	"how to", "what is", "who is", "when did", "where is",
	"documentation", "docs", "guide", "tutorial", "article",
	// Tech support
	"error", "fix", "solve", "troubleshoot", "issue", "problem",
	"not working", "broken", "failed", "help me",
}

// strugglePatterns match phrasings of a user stuck on a problem.
var strugglePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\?\s*\?+`),
	regexp.MustCompile(`still (not|doesn't|won't|can't)`),
	regexp.MustCompile(`tried (everything|that|already)`),
	regexp.MustCompile(`nothing (works|worked)`),
	regexp.MustCompile(`i (don't|cant|cannot) (understand|figure|get)`),
	regexp.MustCompile(`(please|plz) help`),
	regexp.MustCompile(`what (else|now)`),
	regexp.MustCompile(`any (other|idea|suggestion)`),
}

var detailedQuestionPattern = regexp.MustCompile(`(how|what|why|when|where|can|does|is|are)\s+(the|a|my|this|it)`)

// ShouldSearch reports whether a plain chat message looks like it needs
// fresh information from the web, and names the trigger for logging.
func ShouldSearch(text string) (bool, string) {
	textLower := strings.ToLower(text)

	for _, keyword := range searchKeywords {
		if strings.Contains(textLower, keyword) {
			return true, fmt.Sprintf("keyword %q", keyword)
		}
	}
	for _, pattern := range strugglePatterns {
		if pattern.MatchString(textLower) {
			return true, "struggle pattern"
		}
	}
	if strings.Contains(text, "?") && len(text) > 20 && detailedQuestionPattern.MatchString(textLower) {
		return true, "detailed question"
	}
	return false, ""
}
