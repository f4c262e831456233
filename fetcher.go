package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTitle = "Article"

// ContentResult represents the readable content of a fetched page
type ContentResult struct {
	Title    string
	Byline   string
	SiteName string
	HTML     string // cleaned HTML, no images, scripts or styles
	Text     string
}

// ContentFetcher handles fetching and processing content from URLs
type ContentFetcher struct {
	handlers []ContentHandler
	client   *http.Client
	settings FetchSettings
	now      func() time.Time
	logger   *slog.Logger
}

// NewContentFetcher creates a new content fetcher with default handlers
func NewContentFetcher(settings FetchSettings, logger *slog.Logger) *ContentFetcher {
	dialer := &net.Dialer{Timeout: settings.Timeout}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if settings.BlockPrivateAddresses {
		dialer.Control = publicOnlyControl
		// A proxy would be dialed instead of the target and defeat the check.
		transport.Proxy = nil
	}
	transport.DialContext = dialer.DialContext

	f := &ContentFetcher{
		client: &http.Client{
			Timeout:       settings.Timeout,
			Transport:     transport,
			CheckRedirect: limitRedirects(settings.MaxRedirects),
		},
		settings: settings,
		now:      time.Now,
		logger:   logger,
	}

	// Register handlers (most specific first)
	f.AddHandler(&TextHandler{})
	f.AddHandler(&HTMLHandler{})

	return f
}

func limitRedirects(max int) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) > max {
			return fmt.Errorf("stopped after %d redirects", max)
		}
		return nil
	}
}

// AddHandler adds a content handler to the chain
func (f *ContentFetcher) AddHandler(handler ContentHandler) {
	f.handlers = append(f.handlers, handler)
}

// ParseArticleURL accepts only absolute http(s) URLs with a host.
func ParseArticleURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &InvalidURLError{URL: raw, Reason: "empty URL"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &InvalidURLError{URL: raw, Reason: "unparseable URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &InvalidURLError{URL: raw, Reason: "scheme must be http or https"}
	}
	if u.Hostname() == "" {
		return nil, &InvalidURLError{URL: raw, Reason: "missing host"}
	}
	return u, nil
}

// Extract validates rawURL, fetches it and returns the readable article.
// Malformed URLs fail before any network access.
func (f *ContentFetcher) Extract(ctx context.Context, rawURL string) (*Article, error) {
	u, err := ParseArticleURL(rawURL)
	if err != nil {
		return nil, err
	}

	result, err := f.FetchContent(ctx, u)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(result.Text) == "" {
		return nil, &ExtractionError{URL: u.String(), Step: "extract", Err: errors.New("no readable content found")}
	}

	title := strings.TrimSpace(result.Title)
	if title == "" {
		title = defaultTitle
	}

	return &Article{
		Title:     title,
		SourceURL: u.String(),
		Byline:    strings.TrimSpace(result.Byline),
		SiteName:  strings.TrimSpace(result.SiteName),
		Body:      result.HTML,
		Text:      result.Text,
		SavedAt:   f.clock().UTC(),
	}, nil
}

// FetchContent fetches and processes content using handler chain
func (f *ContentFetcher) FetchContent(ctx context.Context, u *url.URL) (*ContentResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &InvalidURLError{URL: u.String(), Reason: err.Error()}
	}
	if f.settings.UserAgent != "" {
		req.Header.Set("User-Agent", f.settings.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, errBlockedAddress) {
			return nil, &InvalidURLError{URL: u.String(), Reason: reasonBlockedAddress}
		}
		return nil, &ExtractionError{URL: u.String(), Step: "fetch", Err: err}
	}
	defer resp.Body.Close()

	f.log().Debug("fetch response", URL(u.String()), slog.Int(KeyStatus, resp.StatusCode),
		slog.String("content_type", resp.Header.Get("Content-Type")))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ExtractionError{URL: u.String(), Step: "fetch", Err: &HTTPError{StatusCode: resp.StatusCode, URL: u.String()}}
	}

	if f.settings.MaxBodyBytes > 0 {
		resp.Body = http.MaxBytesReader(nil, resp.Body, f.settings.MaxBodyBytes)
	}

	// Relative links resolve against the page we ended up on.
	pageURL := u
	if resp.Request != nil && resp.Request.URL != nil {
		pageURL = resp.Request.URL
	}

	// Find handler based on URL + response headers
	for _, handler := range f.handlers {
		if !handler.CanHandle(pageURL, resp) {
			continue
		}
		result, err := handler.Handle(pageURL, resp)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, &ExtractionError{URL: u.String(), Step: "fetch", Err: err}
			}
			return nil, &ExtractionError{URL: u.String(), Step: "extract", Err: err}
		}
		return result, nil
	}

	return nil, &ExtractionError{
		URL:  u.String(),
		Step: "extract",
		Err:  fmt.Errorf("no handler found for content type %q", mediaType(resp)),
	}
}

func (f *ContentFetcher) clock() time.Time {
	if f.now == nil {
		return time.Now()
	}
	return f.now()
}

func (f *ContentFetcher) log() *slog.Logger {
	if f.logger == nil {
		return slog.Default()
	}
	return f.logger
}
