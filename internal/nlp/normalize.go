package nlp

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sawpanic/sentirun/internal/social"
)

var (
	urlPattern        = regexp.MustCompile(`https?://\S+|www\.\S+`)
	whitespacePattern = regexp.MustCompile(`\s+`)

	// Go regexp has no lookahead: the second group captures a sixth
	// uppercase letter and a non-empty capture rejects the match.
	cashtagPattern = regexp.MustCompile(`\$([A-Z]{1,5})([A-Z]?)`)
)

// Normalize strips URLs, collapses whitespace and trims the text
func Normalize(text string) string {
	text = urlPattern.ReplaceAllString(text, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// URLs returns every URL found in text
func URLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

// Cashtags returns the distinct $TICKER mentions of 1 to 5 uppercase letters
// in order of first appearance
func Cashtags(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range cashtagPattern.FindAllStringSubmatch(text, -1) {
		if m[2] != "" || seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		out = append(out, m[1])
	}
	return out
}

// ExtractSymbols returns the sorted set of symbols a post discusses: cashtags,
// plus the instrument symbol or display name appearing verbatim in the
// uppercased text
func ExtractSymbols(text string, inst social.Instrument) []string {
	set := make(map[string]bool)
	for _, tag := range Cashtags(text) {
		set[tag] = true
	}

	upper := strings.ToUpper(text)
	if inst.Symbol != "" && strings.Contains(upper, strings.ToUpper(inst.Symbol)) {
		set[inst.Symbol] = true
	}
	if inst.Symbol != "" && inst.DisplayName != "" && strings.Contains(upper, strings.ToUpper(inst.DisplayName)) {
		set[inst.Symbol] = true
	}

	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Clean normalizes a raw post and extracts its symbols. The returned post may
// have no symbols; callers decide whether to keep it.
func Clean(post social.RawPost, inst social.Instrument) social.CleanedPost {
	if len(post.URLs) == 0 {
		post.URLs = URLs(post.Text)
	}
	post.Text = Normalize(post.Text)
	return social.CleanedPost{
		RawPost: post,
		Symbols: ExtractSymbols(post.Text, inst),
	}
}
