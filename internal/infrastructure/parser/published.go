package parser

import (
	"bytes"
	"net/url"
	"time"

	readability "github.com/go-shiori/go-readability"

	"CivicIndex/internal/ports"
)

// Inspector reads page titles and publication times.
type Inspector struct{}

var _ ports.PageInspector = Inspector{}

// Inspect never fails; missing metadata stays zero.
func (Inspector) Inspect(html []byte, pageURL string) ports.PageMetadata {
	meta := ports.PageMetadata{Title: PageTitle(html)}
	if published, ok := PublishedTime(html, pageURL); ok {
		meta.Published = &published
	}
	return meta
}

// PublishedTime returns the publication time readability detects in the
// page metadata, if any.
func PublishedTime(html []byte, pageURL string) (time.Time, bool) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return time.Time{}, false
	}
	article, err := readability.FromReader(bytes.NewReader(html), parsedURL)
	if err != nil || article.PublishedTime == nil {
		return time.Time{}, false
	}
	return *article.PublishedTime, true
}
