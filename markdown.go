package main

import (
	"fmt"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// renderMarkdown converts an extracted article to Markdown for previewing
// what would be delivered.
func renderMarkdown(article *Article) (string, error) {
	body := article.Body
	domain := ""
	if u, err := url.Parse(article.SourceURL); err == nil && u.Host != "" {
		domain = u.Host
		body = absoluteLinks(body, u)
	}

	converter := md.NewConverter(domain, true, nil)
	text, err := converter.ConvertString(body)
	if err != nil {
		return "", fmt.Errorf("converting HTML to markdown: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", article.Title)
	if article.Byline != "" {
		fmt.Fprintf(&b, "By %s\n\n", article.Byline)
	}
	fmt.Fprintf(&b, "Source: %s\n\n", article.SourceURL)
	b.WriteString(strings.TrimSpace(text))
	b.WriteString("\n")
	return b.String(), nil
}

// absoluteLinks resolves relative hrefs against the page URL. The converter
// only knows the host and would assume http.
func absoluteLinks(fragment string, base *url.URL) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || href == "#" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil || ref.IsAbs() {
			return
		}
		s.SetAttr("href", base.ResolveReference(ref).String())
	})
	out, err := doc.Find("body").Html()
	if err != nil {
		return fragment
	}
	return out
}
