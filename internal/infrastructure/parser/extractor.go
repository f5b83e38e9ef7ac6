package parser

import (
	"bytes"
	"fmt"
	"mime"
	"strings"

	"CivicIndex/internal/domain"
	"CivicIndex/internal/ports"
)

// TextExtractor dispatches to the PDF or HTML extractor by content type,
// sniffing the %PDF header when the hint is missing or generic.
type TextExtractor struct{}

var _ ports.TextExtractor = (*TextExtractor)(nil)

// NewTextExtractor returns a stateless extractor.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// ExtractText returns trimmed plain text. An empty result is reported as
// ErrInsufficientText so image-only PDFs are distinguishable from failures.
func (e *TextExtractor) ExtractText(body []byte, mimeHint string) (string, error) {
	var (
		text string
		err  error
	)

	switch kind := classify(body, mimeHint); kind {
	case "pdf":
		text, err = PDFText(body)
	case "html":
		text, err = HTMLText(body)
	default:
		return "", fmt.Errorf("%w: unsupported content type %q", domain.ErrExtractionFailed, mimeHint)
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: no extractable text", domain.ErrInsufficientText)
	}
	return text, nil
}

func classify(body []byte, mimeHint string) string {
	if bytes.HasPrefix(bytes.TrimLeft(body, " \t\r\n"), []byte("%PDF")) {
		return "pdf"
	}

	mediaType, _, err := mime.ParseMediaType(mimeHint)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(mimeHint))
	}
	switch {
	case mediaType == "application/pdf":
		return "pdf"
	case mediaType == "text/html", mediaType == "application/xhtml+xml", mediaType == "text/plain":
		return "html"
	case mediaType == "", mediaType == "application/octet-stream":
		return "html"
	}
	return ""
}
