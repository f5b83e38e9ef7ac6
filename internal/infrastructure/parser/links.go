package parser

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"CivicIndex/internal/ports"
)

var (
	documentMarkers  = []string{"/viewfile", "/download", "getfile"}
	imageExtensions  = []string{".jpg", ".jpeg", ".png", ".gif", ".svg", ".webp"}
	skippedLinkHeads = []string{"#", "mailto:", "tel:", "javascript:"}
)

// LinkDiscoverer finds document links and same-site navigation links.
type LinkDiscoverer struct {
	targetDomain string
}

var _ ports.LinkDiscoverer = (*LinkDiscoverer)(nil)

// NewLinkDiscoverer keeps links on the page host or under targetDomain.
func NewLinkDiscoverer(targetDomain string) *LinkDiscoverer {
	return &LinkDiscoverer{targetDomain: strings.ToLower(strings.TrimSpace(targetDomain))}
}

// DocumentLinks returns the deduplicated absolute URLs of document anchors in
// page order.
func (d *LinkDiscoverer) DocumentLinks(html []byte, baseURL string) []string {
	base, doc, ok := d.prepare(html, baseURL)
	if !ok {
		return nil
	}

	seen := map[string]struct{}{}
	links := make([]string, 0)
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if !isDocumentHref(href) {
			return
		}
		abs, ok := d.resolve(base, href)
		if !ok {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})
	return links
}

// NavigationLinks returns up to limit same-site page links, excluding
// anchors, mail/phone links, documents and images.
func (d *LinkDiscoverer) NavigationLinks(html []byte, baseURL string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	base, doc, ok := d.prepare(html, baseURL)
	if !ok {
		return nil
	}

	seen := map[string]struct{}{}
	links := make([]string, 0, limit)
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if !isNavigationHref(href) {
			return true
		}
		abs, ok := d.resolve(base, href)
		if !ok {
			return true
		}
		if _, dup := seen[abs]; dup || abs == base.String() {
			return true
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
		return len(links) < limit
	})
	return links
}

func (d *LinkDiscoverer) prepare(html []byte, baseURL string) (*url.URL, *goquery.Document, bool) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil, nil, false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, nil, false
	}
	return base, doc, true
}

func (d *LinkDiscoverer) resolve(base *url.URL, href string) (string, bool) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	abs.Fragment = ""
	if !d.allowedHost(base.Hostname(), abs.Hostname()) {
		return "", false
	}
	return abs.String(), true
}

func (d *LinkDiscoverer) allowedHost(pageHost, host string) bool {
	host = strings.ToLower(host)
	if host == "" {
		return false
	}
	if host == strings.ToLower(pageHost) {
		return true
	}
	if d.targetDomain == "" {
		return false
	}
	return host == d.targetDomain || strings.HasSuffix(host, "."+d.targetDomain)
}

func isDocumentHref(href string) bool {
	lower := strings.ToLower(href)
	if lower == "" {
		return false
	}
	if strings.HasSuffix(lower, ".pdf") || strings.Contains(lower, ".pdf?") {
		return true
	}
	for _, marker := range documentMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func isNavigationHref(href string) bool {
	lower := strings.ToLower(href)
	if lower == "" {
		return false
	}
	for _, head := range skippedLinkHeads {
		if strings.HasPrefix(lower, head) {
			return false
		}
	}
	if strings.Contains(lower, ".pdf") || isDocumentHref(lower) {
		return false
	}
	path := lower
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	for _, ext := range imageExtensions {
		if strings.HasSuffix(path, ext) {
			return false
		}
	}
	return true
}
