package scraper

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-laptops/config"
	"github.com/aluiziolira/go-scrape-laptops/models"
	"github.com/gocolly/colly/v2"
)

// Fetcher retrieves one catalogue page by index.
type Fetcher interface {
	Fetch(ctx context.Context, page int) (*models.RawPage, error)
}

// PageURL appends the page index to the listing URL.
func PageURL(baseURL string, page int) string {
	return baseURL + strconv.Itoa(page)
}

// CollyFetcher issues one GET per page through a colly collector.
type CollyFetcher struct {
	baseURL   string
	headers   http.Header
	collector *colly.Collector
	metrics   *Metrics
	requests  int64
}

// NewCollyFetcher builds a fetcher configured from cfg.
func NewCollyFetcher(cfg *config.Config, metrics *Metrics) (*CollyFetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	headers := http.Header{}
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}
	headers.Set("User-Agent", cfg.UserAgent)

	return &CollyFetcher{
		baseURL:   cfg.BaseURL,
		headers:   headers,
		collector: collector,
		metrics:   metrics,
	}, nil
}

// Fetch performs a single GET for page. Transport failures and non-success
// statuses come back classified; nothing is retried.
func (f *CollyFetcher) Fetch(ctx context.Context, page int) (*models.RawPage, error) {
	pageURL := PageURL(f.baseURL, page)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", page, err)
	}

	// A clone shares transport and limits but keeps its own callbacks,
	// so concurrent fetches do not see each other's responses.
	c := f.collector.Clone()
	raw := &models.RawPage{Page: page, URL: pageURL}
	statusCode := 0
	c.OnResponse(func(r *colly.Response) {
		raw.StatusCode = r.StatusCode
		raw.Body = r.Body
	})
	c.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			statusCode = r.StatusCode
		}
	})

	atomic.AddInt64(&f.requests, 1)
	start := time.Now()
	err := c.Request(http.MethodGet, pageURL, nil, nil, f.headers.Clone())
	f.metrics.ObserveDuration(time.Since(start))
	if err != nil {
		f.metrics.IncRequest("error")
		return nil, fmt.Errorf("fetch page %d: %w", page, classifyError(err, statusCode))
	}

	f.metrics.IncRequest("ok")
	return raw, nil
}

// RequestCount reports how many requests were issued.
func (f *CollyFetcher) RequestCount() int {
	return int(atomic.LoadInt64(&f.requests))
}
