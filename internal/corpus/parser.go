package corpus

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Parser turns raw file bytes into plain text.
type Parser interface {
	Parse(path string, data []byte) (string, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(path string, data []byte) (string, error)

func (f ParserFunc) Parse(path string, data []byte) (string, error) { return f(path, data) }

var errNotText = errors.New("content is not valid UTF-8 text")

// TextParser accepts UTF-8 without NUL bytes. A leading byte order mark is dropped.
type TextParser struct{}

func (TextParser) Parse(path string, data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) || bytes.IndexByte(data, 0) >= 0 {
		return "", errNotText
	}
	return string(data), nil
}

// HTMLParser extracts the visible text of an HTML page.
type HTMLParser struct{}

func (HTMLParser) Parse(path string, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errNotText
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if l := strings.Join(strings.Fields(line), " "); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// DefaultParsers maps the default extensions to their parsers.
func DefaultParsers() map[string]Parser {
	text := TextParser{}
	html := HTMLParser{}
	return map[string]Parser{
		".txt":  text,
		".md":   text,
		".py":   text,
		".html": html,
		".htm":  html,
	}
}

// DefaultExtensions lists the extensions loaded when none are configured.
func DefaultExtensions() []string {
	return []string{".txt", ".md", ".py", ".html", ".htm"}
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func extOf(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
