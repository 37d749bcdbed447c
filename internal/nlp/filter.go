package nlp

import (
	"strings"
	"unicode/utf8"

	"github.com/sawpanic/sentirun/internal/social"
)

// NoiseFilter decides whether a cleaned post is unlikely to carry signal
type NoiseFilter interface {
	IsProbableBot(post *social.CleanedPost) bool
}

// FilterFunc adapts a plain function to NoiseFilter
type FilterFunc func(post *social.CleanedPost) bool

// IsProbableBot calls f
func (f FilterFunc) IsProbableBot(post *social.CleanedPost) bool {
	return f(post)
}

// CrudeFilter flags short symbol-bearing posts and cashtag spam
type CrudeFilter struct {
	MinLength      int `yaml:"min_length"`       // posts shorter than this (in runes) with a symbol are flagged
	MaxDollarSigns int `yaml:"max_dollar_signs"` // posts with more '$' than this are flagged
}

// DefaultCrudeFilter returns the 20 rune / 5 dollar sign policy
func DefaultCrudeFilter() CrudeFilter {
	return CrudeFilter{MinLength: 20, MaxDollarSigns: 5}
}

// IsProbableBot implements NoiseFilter
func (f CrudeFilter) IsProbableBot(post *social.CleanedPost) bool {
	if utf8.RuneCountInString(post.Text) < f.MinLength && len(post.Symbols) > 0 {
		return true
	}
	return strings.Count(post.Text, "$") > f.MaxDollarSigns
}

// AnyOf flags a post when any of the filters flags it
func AnyOf(filters ...NoiseFilter) NoiseFilter {
	return FilterFunc(func(post *social.CleanedPost) bool {
		for _, f := range filters {
			if f != nil && f.IsProbableBot(post) {
				return true
			}
		}
		return false
	})
}
