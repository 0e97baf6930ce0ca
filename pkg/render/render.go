// Package render turns answer markdown into HTML that is safe to embed in a
// page.
package render

import (
	"bytes"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// AllowedTags are the only elements kept in rendered output.
var AllowedTags = []string{
	"p", "strong", "em", "ul", "ol", "li", "h3", "h4", "a",
	"table", "tr", "td", "th", "thead", "tbody",
}

var (
	markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

	policyOnce sync.Once
	policy     *bluemonday.Policy
)

// Policy returns the sanitization policy applied to rendered HTML. Only
// AllowedTags survive, and only links keep attributes (href and target).
func Policy() *bluemonday.Policy {
	policyOnce.Do(func() {
		p := bluemonday.NewPolicy()
		p.AllowElements(AllowedTags...)
		p.AllowAttrs("href", "target").OnElements("a")
		p.AllowStandardURLs()
		p.RequireNoFollowOnLinks(false)
		policy = p
	})
	return policy
}

// HTML renders markdown text to sanitized HTML. If rendering fails the raw
// text is returned, sanitized.
func HTML(text string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return Policy().Sanitize(text)
	}
	return string(Policy().SanitizeBytes(buf.Bytes()))
}
