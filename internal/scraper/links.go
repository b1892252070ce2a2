package scraper

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultSuffixes are the link suffixes treated as mailing documents.
var DefaultSuffixes = []string{".pdf"}

const fallbackFilename = "document.pdf"

// Link is a document reference found on the authenticated page.
type Link struct {
	URL  string
	Text string
}

// HarvestLinks returns the anchors in html whose href contains one of
// suffixes, resolved against baseURL and de-duplicated in document order.
func HarvestLinks(html, baseURL string, suffixes []string) ([]Link, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}
	base, _ := url.Parse(baseURL)
	if len(suffixes) == 0 {
		suffixes = DefaultSuffixes
	}

	seen := make(map[string]bool)
	var links []Link
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || !matchesSuffix(href, suffixes) {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		abs := ref.String()
		if seen[abs] {
			return
		}
		seen[abs] = true
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text == "" {
			text = "Unknown"
		}
		links = append(links, Link{URL: abs, Text: text})
	})
	return links, nil
}

func matchesSuffix(href string, suffixes []string) bool {
	lower := strings.ToLower(href)
	for _, sfx := range suffixes {
		if strings.Contains(lower, strings.ToLower(sfx)) {
			return true
		}
	}
	return false
}

// FilenameFromURL returns the last path segment of raw, or document.pdf
// when there is none.
func FilenameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return fallbackFilename
	}
	name := path.Base(u.Path)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	if name == "" || name == "." || name == "/" {
		return fallbackFilename
	}
	return name
}
