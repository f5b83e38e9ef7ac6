package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"CivicIndex/internal/domain"
)

// Elements removed before any text is read.
const noiseSelector = "script, style, nav, header, footer, aside, .sidebar, .navigation, .menu, noscript"

// contentSelectors is tried in priority order; the first container with
// non-empty text wins.
var contentSelectors = []string{"main", "article", ".content", "#content", ".main-content", "body"}

// Elements whose text starts on its own line.
var blockElements = map[string]bool{
	"address": true, "article": true, "blockquote": true, "br": true, "dd": true,
	"div": true, "dl": true, "dt": true, "figcaption": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "hr": true, "li": true,
	"main": true, "ol": true, "p": true, "pre": true, "section": true,
	"table": true, "tr": true, "ul": true,
}

// HTMLText returns the cleaned main-content text of an HTML page.
func HTMLText(html []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("%w: parse html: %v", domain.ErrExtractionFailed, err)
	}

	doc.Find(noiseSelector).Remove()

	for _, selector := range contentSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		if text := collapseText(blockText(sel)); text != "" {
			return text, nil
		}
	}
	return "", nil
}

// PageTitle returns the <title> of an HTML page, or the first <h1>.
func PageTitle(html []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return ""
	}
	if title := strings.Join(strings.Fields(doc.Find("title").First().Text()), " "); title != "" {
		return title
	}
	return strings.Join(strings.Fields(doc.Find("h1").First().Text()), " ")
}

// blockText is Selection.Text with a line break around block elements and a
// space between table cells, so adjacent blocks never run together.
func blockText(sel *goquery.Selection) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			return
		case html.ElementNode:
		default:
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
			return
		}

		separator := ""
		switch {
		case blockElements[n.Data]:
			separator = "\n"
		case n.Data == "td" || n.Data == "th":
			separator = " "
		}
		sb.WriteString(separator)
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		sb.WriteString(separator)
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return sb.String()
}

// collapseText squeezes runs of spaces inside each line and drops blank lines.
func collapseText(raw string) string {
	lines := strings.Split(raw, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
