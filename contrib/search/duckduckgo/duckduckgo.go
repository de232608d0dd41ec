// Package duckduckgo implements search.Searcher over the DuckDuckGo HTML
// endpoint, which needs no API key.
package duckduckgo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sweetpotato0/ai-advocate/pkg/logging"
	"github.com/sweetpotato0/ai-advocate/rag/preprocess"
	"github.com/sweetpotato0/ai-advocate/search"
)

// DefaultEndpoint is the JavaScript-free results page.
const DefaultEndpoint = "https://html.duckduckgo.com/html/"

const (
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	maxBodyBytes = 1 << 20
)

// Config controls the searcher.
type Config struct {
	Endpoint   string
	MaxResults int

	// FetchPages downloads each hit and fills Document.Content.
	FetchPages bool
	Timeout    time.Duration
}

// DefaultConfig returns the settings used by the research stage.
func DefaultConfig() *Config {
	return &Config{
		Endpoint:   DefaultEndpoint,
		MaxResults: 3,
		FetchPages: true,
		Timeout:    20 * time.Second,
	}
}

// Searcher queries DuckDuckGo.
type Searcher struct {
	config *Config
	client *http.Client
}

var _ search.Searcher = (*Searcher)(nil)

// New creates a Searcher. A nil client gets one with cfg.Timeout.
func New(cfg *Config, client *http.Client) *Searcher {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 3
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Searcher{config: cfg, client: client}
}

// Search implements search.Searcher. Page fetch failures keep the snippet.
func (s *Searcher) Search(ctx context.Context, query string) ([]search.Document, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	logger := logging.WithComponent("duckduckgo")

	body, err := s.get(ctx, s.config.Endpoint+"?q="+url.QueryEscape(query))
	if err != nil {
		return nil, fmt.Errorf("duckduckgo search: %w", err)
	}
	docs, err := ParseResults(body, s.config.MaxResults)
	if err != nil {
		return nil, err
	}

	if s.config.FetchPages {
		for i := range docs {
			content, err := s.fetch(ctx, docs[i].URL)
			if err != nil {
				logger.Debug("page fetch failed", "url", docs[i].URL, "error", err)
				continue
			}
			docs[i].Content = content
		}
	}
	logger.Info("search completed", "query", logging.Trim(query, 80), "results", len(docs))
	return docs, nil
}

func (s *Searcher) fetch(ctx context.Context, pageURL string) (string, error) {
	if !strings.HasPrefix(pageURL, "http://") && !strings.HasPrefix(pageURL, "https://") {
		return "", fmt.Errorf("unsupported url %q", pageURL)
	}
	body, err := s.get(ctx, pageURL)
	if err != nil {
		return "", err
	}
	return preprocess.Page(body)
}

func (s *Searcher) get(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return string(raw), nil
}

// ParseResults extracts up to limit results from a DuckDuckGo HTML page.
func ParseResults(page string, limit int) ([]search.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}

	var docs []search.Document
	doc.Find("div.result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if sel.HasClass("result--ad") {
			return true
		}
		link := sel.Find("a.result__a").First()
		href, _ := link.Attr("href")
		d := search.Document{
			Title:   strings.Join(strings.Fields(link.Text()), " "),
			URL:     unwrapRedirect(href),
			Snippet: strings.Join(strings.Fields(sel.Find(".result__snippet").First().Text()), " "),
		}
		if d.Title != "" && d.URL != "" {
			docs = append(docs, d)
		}
		return len(docs) < limit
	})
	return docs, nil
}

// unwrapRedirect turns //duckduckgo.com/l/?uddg=<target>&rut=... into <target>.
func unwrapRedirect(href string) string {
	if !strings.Contains(href, "duckduckgo.com/l/") {
		return href
	}
	raw := href
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}
