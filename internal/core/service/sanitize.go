package service

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// strictPolicy strips every tag; user-supplied profile and ledger text is
// rendered by admin dashboards and must never carry markup.
var strictPolicy = bluemonday.StrictPolicy()

// cleanText removes markup and surrounding whitespace from free text.
// Entities are decoded before stripping so escaped tags are removed too.
// When decoding the result would reintroduce angle brackets the escaped
// form is kept.
func cleanText(s string) string {
	stripped := strictPolicy.Sanitize(html.UnescapeString(s))
	plain := html.UnescapeString(stripped)
	if strings.ContainsAny(plain, "<>") {
		return strings.TrimSpace(stripped)
	}
	return strings.TrimSpace(plain)
}

// cleanPtr applies cleanText to an optional field.
func cleanPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := cleanText(*s)
	return &v
}
