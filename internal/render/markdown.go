package render

import (
	"bytes"
	"html/template"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	emoji "github.com/yuin/goldmark-emoji"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Fallback is shown in place of the preview when rendering fails.
const Fallback = "<p>Error rendering Markdown.</p>"

var markdownRenderer = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		emoji.Emoji,
	),
	goldmark.WithRendererOptions(
		// Single newlines become <br>. Raw HTML passthrough stays disabled (no html.WithUnsafe()).
		html.WithHardWraps(),
	),
)

var sanitizer = newPolicy()

func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"h1", "h2", "h3", "h4", "h5", "h6",
		"p", "br", "hr",
		"strong", "em", "u", "s", "del",
		"code", "pre", "blockquote",
		"ul", "ol", "li",
		"table", "thead", "tbody", "tr", "th", "td",
	)
	p.AllowAttrs("href", "title").OnElements("a")
	p.AllowAttrs("src", "alt", "title").OnElements("img")
	p.AllowAttrs("class").OnElements("code", "pre", "span", "li", "ul", "ol")
	p.AllowAttrs("align").Matching(regexp.MustCompile(`^(left|right|center)$`)).OnElements("th", "td")
	// GFM task lists.
	p.AllowAttrs("type").Matching(regexp.MustCompile(`^checkbox$`)).OnElements("input")
	p.AllowAttrs("checked", "disabled").OnElements("input")

	p.AllowURLSchemes("http", "https", "mailto")
	p.AllowRelativeURLs(true)
	p.RequireParseableURLs(true)
	p.RequireNoFollowOnLinks(true)
	p.RequireNoReferrerOnLinks(true)
	return p
}

// HTML converts markdown to sanitized HTML. It never fails: any error or
// panic in the pipeline yields Fallback.
func HTML(src string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = Fallback
		}
	}()
	if strings.TrimSpace(src) == "" {
		return ""
	}
	var b bytes.Buffer
	if err := markdownRenderer.Convert([]byte(src), &b); err != nil {
		return Fallback
	}
	return sanitizer.Sanitize(b.String())
}

// Template is HTML typed for html/template. The value is trusted only because
// it went through the sanitizer.
func Template(src string) template.HTML {
	return template.HTML(HTML(src))
}

// TextStats are the counters shown next to the editor.
type TextStats struct {
	Words      int `json:"words"`
	Characters int `json:"characters"`
	Lines      int `json:"lines"`
}

func Stats(src string) TextStats {
	st := TextStats{
		Words:      len(strings.Fields(src)),
		Characters: utf8.RuneCountInString(src),
	}
	if src != "" {
		st.Lines = strings.Count(src, "\n") + 1
	}
	return st
}
