// Package sanitize cleans user-submitted text before it is stored. Uses
// bluemonday's strict policy to strip all markup from plain-text fields
// such as customer names.
package sanitize

import (
	"html"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// policy is the singleton strict policy. Initialized once via sync.Once for
// thread-safe lazy initialization.
var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

// getPolicy returns the shared policy, initializing it on first call.
func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// PlainText strips every tag from input and returns the text content with
// entities decoded, so "<b>Ann</b> &amp; co" becomes "Ann & co". The result
// is meant to be escaped again at render time.
func PlainText(input string) string {
	if input == "" {
		return ""
	}
	return html.UnescapeString(getPolicy().Sanitize(input))
}

// Name cleans a person's name: markup removed, whitespace runs collapsed,
// trimmed, and cut to at most maxRunes runes.
func Name(input string, maxRunes int) string {
	clean := strings.Join(strings.Fields(PlainText(input)), " ")
	if maxRunes > 0 && utf8.RuneCountInString(clean) > maxRunes {
		clean = string([]rune(clean)[:maxRunes])
	}
	return clean
}
