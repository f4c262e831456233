package main

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// HTTPError represents an HTTP error with status code
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, RedactURL(e.URL))
}

// ContentHandler processes URLs based on response inspection
type ContentHandler interface {
	CanHandle(u *url.URL, resp *http.Response) bool
	Handle(u *url.URL, resp *http.Response) (*ContentResult, error)
}

// Elements removed from extracted content; delivered documents carry text only.
const strippedElements = "img, picture, source, svg, video, audio, iframe, object, embed, " +
	"script, style, link, noscript, canvas, form, button, input"

func mediaType(resp *http.Response) string {
	mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}

// HTMLHandler extracts the main article from HTML pages (fallback)
type HTMLHandler struct{}

func (h *HTMLHandler) CanHandle(u *url.URL, resp *http.Response) bool {
	switch mediaType(resp) {
	case "", "text/html", "application/xhtml+xml":
		return true
	}
	return false
}

func (h *HTMLHandler) Handle(u *url.URL, resp *http.Response) (*ContentResult, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		return nil, fmt.Errorf("extracting readable content: %w", err)
	}

	content, text, err := cleanArticleHTML(article.Content)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(article.Title)
	if title == "" {
		title = pageTitle(body)
	}

	return &ContentResult{
		Title:    title,
		Byline:   article.Byline,
		SiteName: article.SiteName,
		HTML:     content,
		Text:     text,
	}, nil
}

// cleanArticleHTML removes images and other non-text elements from an
// extracted fragment and drops the first h1, which repeats the title.
func cleanArticleHTML(fragment string) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", "", fmt.Errorf("parsing extracted content: %w", err)
	}

	doc.Find(strippedElements).Remove()
	doc.Find("figure").Each(func(_ int, s *goquery.Selection) {
		if strings.TrimSpace(s.Text()) == "" {
			s.Remove()
		}
	})
	doc.Find("h1").First().Remove()
	doc.Find("*").
		RemoveAttr("style").
		RemoveAttr("class").
		RemoveAttr("srcset").
		RemoveAttr("onclick")

	body := doc.Find("body")
	content, err := body.Html()
	if err != nil {
		return "", "", fmt.Errorf("rendering cleaned content: %w", err)
	}
	return strings.TrimSpace(content), strings.TrimSpace(body.Text()), nil
}

// pageTitle falls back to the document <title>.
func pageTitle(page []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// TextHandler handles text/plain pages such as RFCs and plain notes
type TextHandler struct{}

const maxTextTitleRunes = 120

func (h *TextHandler) CanHandle(u *url.URL, resp *http.Response) bool {
	return mediaType(resp) == "text/plain"
}

func (h *TextHandler) Handle(u *url.URL, resp *http.Response) (*ContentResult, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if !utf8.Valid(body) {
		return nil, fmt.Errorf("plain text body is not valid UTF-8")
	}

	text := strings.ReplaceAll(string(body), "\r\n", "\n")

	var (
		b     strings.Builder
		title string
	)
	for i, para := range strings.Split(strings.TrimSpace(text), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if i == 0 {
			first, _, _ := strings.Cut(para, "\n")
			if utf8.RuneCountInString(first) <= maxTextTitleRunes {
				title = strings.TrimSpace(first)
			}
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(para), "\n", "<br/>"))
		b.WriteString("</p>\n")
	}

	return &ContentResult{
		Title: title,
		HTML:  strings.TrimSpace(b.String()),
		Text:  strings.TrimSpace(text),
	}, nil
}
