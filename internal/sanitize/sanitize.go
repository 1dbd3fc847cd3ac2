// Package sanitize cleans user-supplied text before it is stored and shown
// to other players. Uses bluemonday: Text strips all markup from short
// fields (names, token labels, chat messages), HTML keeps safe formatting in
// long-form sheet fields, and URL admits only links the client can render
// as images or open safely.
package sanitize

import (
	"html"
	"net/url"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strict     *bluemonday.Policy
	rich       *bluemonday.Policy
	policyOnce sync.Once
)

func policies() (*bluemonday.Policy, *bluemonday.Policy) {
	policyOnce.Do(func() {
		strict = bluemonday.StrictPolicy()

		rich = bluemonday.UGCPolicy()
		rich.AllowAttrs("class").Globally()
		rich.AllowAttrs("style").OnElements("span", "p")
	})
	return strict, rich
}

// Text strips every tag from input and trims surrounding whitespace. Entities
// produced by the sanitizer are decoded again so "Bob & Alice" round-trips.
func Text(input string) string {
	if input == "" {
		return ""
	}
	p, _ := policies()
	return strings.TrimSpace(html.UnescapeString(p.Sanitize(input)))
}

// HTML sanitizes long-form user HTML, dropping scripts, event handlers and
// javascript: URLs while keeping basic formatting.
func HTML(input string) string {
	if input == "" {
		return ""
	}
	_, p := policies()
	return p.Sanitize(input)
}

// maxDataURLBytes bounds inline images accepted through URL.
const maxDataURLBytes = 4 << 20

// URL returns input if it is an http(s) URL or an inline data:image URL,
// otherwise "".
func URL(input string) string {
	s := strings.TrimSpace(input)
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, "data:image/") {
		if len(s) > maxDataURLBytes {
			return ""
		}
		return s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
