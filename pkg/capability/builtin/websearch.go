package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhuss/relay/pkg/capability"
)

// WebSearchConfig configures web_search.
type WebSearchConfig struct {
	Enabled bool

	// URL is the base URL of a SearXNG instance.
	URL string

	MaxResults int           // default: 5
	Timeout    time.Duration // default: 10s
}

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

var searchSchema = json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"Search query"}},"required":["query"]}`)

var htmlTag = regexp.MustCompile(`<[^>]*>`)

type webSearch struct {
	baseURL    string
	client     *http.Client
	maxResults int
	timeout    time.Duration

	queries *prometheus.CounterVec
	results prometheus.Histogram
}

func newWebSearch(cfg WebSearchConfig) (*webSearch, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("web_search: url is required")
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &webSearch{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		client:     &http.Client{},
		maxResults: cfg.MaxResults,
		timeout:    cfg.Timeout,
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_websearch_queries_total",
			Help: "Web search queries by outcome.",
		}, []string{"status"}),
		results: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_websearch_results_returned",
			Help:    "Results returned per web search.",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
		}),
	}, nil
}

func (w *webSearch) capability() capability.Capability {
	return capability.Capability{
		Name:        "web_search",
		Description: "Search the web for current information.",
		Parameters:  searchSchema,
		Timeout:     w.timeout,
		Category:    capability.CategoryQuery,
		Handler:     capability.SuspendingFunc(w.call),
	}
}

func (w *webSearch) call(ctx context.Context, args map[string]any) (any, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}
	results, err := w.search(ctx, query)
	if err != nil {
		w.queries.WithLabelValues("error").Inc()
		return nil, err
	}
	w.queries.WithLabelValues("ok").Inc()
	w.results.Observe(float64(len(results)))
	return results, nil
}

func (w *webSearch) search(ctx context.Context, query string) ([]SearchResult, error) {
	u := w.baseURL + "/search?" + url.Values{
		"q":          {query},
		"format":     {"json"},
		"categories": {"general"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search backend returned HTTP %d", resp.StatusCode)
	}

	var body struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]SearchResult, 0, min(len(body.Results), w.maxResults))
	for _, r := range body.Results {
		if len(out) == w.maxResults {
			break
		}
		out = append(out, SearchResult{Title: stripHTML(r.Title), URL: r.URL, Snippet: stripHTML(r.Content)})
	}
	return out, nil
}

func stripHTML(s string) string {
	return strings.TrimSpace(htmlTag.ReplaceAllString(s, ""))
}
