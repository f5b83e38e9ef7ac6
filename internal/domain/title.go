package domain

import (
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode"
)

// FallbackTitle is derived for URLs without a usable last path segment.
const FallbackTitle = "Document"

var separatorExpr = regexp.MustCompile(`[-_]+`)

// TitleFromURL derives a display title from the last path segment of a
// document URL: "/files/fy2025-warrant.pdf" becomes "Fy2025 Warrant".
// The Dedup Gate compares stored titles against this value.
func TitleFromURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "Untitled Document"
	}

	segment := path.Base(parsed.Path)
	if segment == "." || segment == "/" {
		segment = ""
	}
	if unescaped, err := url.PathUnescape(segment); err == nil {
		segment = unescaped
	}
	if strings.HasSuffix(strings.ToLower(segment), ".pdf") {
		segment = segment[:len(segment)-len(".pdf")]
	}

	words := strings.Fields(separatorExpr.ReplaceAllString(segment, " "))
	if len(words) == 0 {
		return FallbackTitle
	}
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
