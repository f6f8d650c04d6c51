// Package sanitize strips markup from user-supplied text before it is stored
// or relayed to other users' browsers. Display names and chat message bodies
// are plain text; any HTML in them is removed rather than escaped so that
// clients rendering with innerHTML stay safe.
package sanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// policy is the singleton strict policy. Initialized once via sync.Once for
// thread-safe lazy initialization.
var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// Text removes every HTML element from input, unescapes the entities
// bluemonday produces, and trims surrounding whitespace.
func Text(input string) string {
	cleaned := getPolicy().Sanitize(input)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
