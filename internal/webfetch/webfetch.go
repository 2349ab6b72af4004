// Package webfetch retrieves a web page and reduces it to readable text
// suitable for inclusion in a model prompt.
package webfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/conclave-ai/conclave/pkg/logger"
)

const (
	// DefaultTimeout bounds each HTTP attempt.
	DefaultTimeout = 15 * time.Second

	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes = 2 << 20

	// defaultMaxContentChars caps the extracted text length.
	defaultMaxContentChars = 8000

	// userAgent mimics a browser; some sites refuse obvious bots.
	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"
)

// ErrInvalidURL reports a URL that is empty, relative, or not http(s).
var ErrInvalidURL = errors.New("invalid url")

// Page is the readable reduction of a fetched document.
type Page struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Fetcher downloads pages and extracts their text content.
type Fetcher struct {
	timeout    time.Duration
	retryDelay time.Duration
	maxChars   int
	log        logger.Logger
}

// NewFetcher creates a Fetcher whose HTTP attempts time out after timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		timeout:    timeout,
		retryDelay: 2 * time.Second,
		maxChars:   defaultMaxContentChars,
		log:        logger.Named("webfetch"),
	}
}

// Fetch downloads rawURL and returns its title and readable text.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	client := &http.Client{
		Timeout: f.timeout,
	}

	var resp *http.Response
	maxRetries := 2
	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err = client.Do(req)
		if err == nil {
			break
		}
		if attempt < maxRetries-1 {
			f.log.Warn(ctx, "fetch attempt failed, retrying",
				logger.String("url", rawURL),
				logger.Int("attempt", attempt+1),
				logger.Error(err))
			time.Sleep(f.retryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s after %d attempts: %w", rawURL, maxRetries, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d for %s", resp.StatusCode, rawURL)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	return &Page{
		URL:     rawURL,
		Title:   strings.TrimSpace(doc.Find("title").First().Text()),
		Content: f.extractText(doc),
	}, nil
}

// extractText pulls readable text from the document, preferring the main
// content container over the full body.
func (f *Fetcher) extractText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, iframe, nav, header, footer").Remove()

	// Try common main-content containers before falling back to body.
	var text string
	for _, selector := range []string{"article", "main", "[role='main']", "#content", ".content"} {
		selection := doc.Find(selector).First()
		if selection.Length() == 0 {
			continue
		}
		text = selection.Text()
		break
	}
	if text == "" {
		text = doc.Find("body").Text()
	}

	// Collapse whitespace runs so the text reads as prose.
	text = strings.Join(strings.Fields(text), " ")

	if len(text) > f.maxChars {
		text = text[:f.maxChars] + "..."
	}
	return text
}
