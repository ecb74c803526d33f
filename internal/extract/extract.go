// Package extract pulls plain text out of uploaded files before chunking.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// ErrUnsupportedType is returned for file types the extractor cannot handle.
var ErrUnsupportedType = errors.New("unsupported file type")

// ErrInvalidEncoding is returned when a text file is not valid UTF-8.
var ErrInvalidEncoding = errors.New("file is not valid UTF-8")

// Text extracts plain text from an uploaded file, dispatching on the
// filename extension. Supported: .txt, .md (passthrough), .html, .htm
// (markup stripped). Line endings are normalized to \n.
func Text(filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md":
		return plainText(data)
	case ".html", ".htm":
		return htmlText(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(filename))
	}
}

func plainText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", ErrInvalidEncoding
	}
	return normalize(string(data)), nil
}

// htmlText parses the document and returns the visible body text. Script and
// style contents never belong in the corpus.
func htmlText(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}

	doc.Find("script, style, noscript").Remove()

	var b strings.Builder
	doc.Find("body").Each(func(_ int, sel *goquery.Selection) {
		// Block elements become paragraph breaks so chunking still sees
		// document structure.
		sel.Find("p, div, li, h1, h2, h3, h4, h5, h6, tr, br").Each(func(_ int, block *goquery.Selection) {
			block.AppendHtml("\n\n")
		})
		b.WriteString(sel.Text())
	})

	text := b.String()
	if strings.TrimSpace(text) == "" {
		// Fragment without a body element.
		text = doc.Text()
	}
	return normalize(text), nil
}

// normalize converts CRLF to LF and collapses runs of three or more
// newlines to paragraph breaks.
func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(s)
}
