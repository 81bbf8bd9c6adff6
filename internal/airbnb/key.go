package airbnb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrKeyNotFound is returned when a page carries no api_config key.
var ErrKeyNotFound = errors.New("airbnb api key not found in page")

var apiConfigKeyRe = regexp.MustCompile(`"api_config"\s*:\s*\{[^{}]*?"key"\s*:\s*"([^"]+)"`)

// ExtractAPIKey scans the inline scripts of an HTML page for the web
// frontend's api_config key.
func ExtractAPIKey(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}
	return extractFromDocument(doc)
}

// ExtractAPIKeyFromHTML is ExtractAPIKey for an already rendered page.
func ExtractAPIKeyFromHTML(html string) (string, error) {
	return ExtractAPIKey(strings.NewReader(html))
}

func extractFromDocument(doc *goquery.Document) (string, error) {
	var key string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := apiConfigKeyRe.FindStringSubmatch(s.Text()); len(m) > 1 {
			key = m[1]
			return false
		}
		return true
	})
	if key != "" {
		return key, nil
	}

	// Older page layouts put the bootstrap data in attributes rather than
	// script bodies; fall back to the whole document.
	html, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("rendering HTML: %w", err)
	}
	html = strings.ReplaceAll(html, "&#34;", `"`)
	html = strings.ReplaceAll(html, "&quot;", `"`)
	if m := apiConfigKeyRe.FindStringSubmatch(html); len(m) > 1 {
		return m[1], nil
	}
	return "", ErrKeyNotFound
}

// StaticKey is a KeySource for a key supplied through config or env.
type StaticKey string

func (k StaticKey) APIKey(context.Context) (string, error) {
	if k == "" {
		return "", errors.New("static api key is empty")
	}
	return string(k), nil
}
