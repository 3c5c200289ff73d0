package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-laptops/config"
	"github.com/aluiziolira/go-scrape-laptops/models"
	"github.com/aluiziolira/go-scrape-laptops/parser"
	"github.com/aluiziolira/go-scrape-laptops/pipeline"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("github.com/aluiziolira/go-scrape-laptops/scraper")

// PageParser extracts products from one page body.
type PageParser interface {
	Parse(page int, body io.Reader) (*parser.Result, error)
}

// Scraper drives the fetch and parse loop over pages 1..MaxPages.
type Scraper struct {
	cfg     *config.Config
	fetcher Fetcher
	parser  PageParser
	limiter *rate.Limiter
	Metrics *Metrics

	requestCount int64
	errorCount   int64

	mu           sync.Mutex
	errorsByType map[string]int
}

// NewScraper builds a scraper backed by colly and goquery.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	metrics := NewMetrics()
	fetcher, err := NewCollyFetcher(cfg, metrics)
	if err != nil {
		return nil, err
	}
	p, err := parser.New(cfg.Origin, cfg.ParsePolicy)
	if err != nil {
		return nil, err
	}
	return New(cfg, fetcher, p, metrics), nil
}

// New assembles a scraper from its collaborators.
func New(cfg *config.Config, fetcher Fetcher, p PageParser, metrics *Metrics) *Scraper {
	s := &Scraper{
		cfg:          cfg,
		fetcher:      fetcher,
		parser:       p,
		Metrics:      metrics,
		errorsByType: make(map[string]int),
	}
	if cfg.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return s
}

// Run scrapes every page once and returns the products in page order.
// Failed pages are skipped; if no page yields a product the summary is
// returned together with models.ErrNoData.
func (s *Scraper) Run(ctx context.Context) (*models.ScraperResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}
	ctx, span := tracer.Start(ctx, "scraper.Run", trace.WithAttributes(
		attribute.Int("pages", s.cfg.MaxPages),
		attribute.Int("workers", s.cfg.Parallelism),
	))
	defer span.End()

	s.reset()
	p, err := pipeline.NewPipeline(s.cfg)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	slog.Info("starting scrape",
		slog.String("base_url", s.cfg.BaseURL),
		slog.Int("pages", s.cfg.MaxPages),
		slog.Int("workers", s.cfg.Parallelism),
	)

	results := make([]models.PageResult, s.cfg.MaxPages)
	pages := make(chan int)

	workers := s.cfg.Parallelism
	if workers <= 0 {
		workers = 1
	}
	if workers > s.cfg.MaxPages {
		workers = s.cfg.MaxPages
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for page := range pages {
				res := s.processPage(ctx, page)
				results[page-1] = res
				if res.Status != models.PageOK {
					continue
				}
				if err := p.Process(page, res.Products...); err != nil {
					slog.Error("pipeline process error", slog.Int("page", page), slog.Any("error", err))
				}
			}
		}()
	}

	for page := 1; page <= s.cfg.MaxPages; page++ {
		pages <- page
	}
	close(pages)
	wg.Wait()

	products, closeErr := p.Close()
	result := s.summarize(results, products, p.GetMetrics(), start)

	slog.Info("scrape finished",
		slog.Int("items", result.TotalCount()),
		slog.Int("pages_ok", result.PagesOK),
		slog.Any("absent_pages", result.AbsentPages),
		slog.Duration("duration", result.EndTime.Sub(result.StartTime)),
	)

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scrape cancelled")
		return result, fmt.Errorf("scrape cancelled: %w", err)
	}
	if closeErr != nil {
		if errors.Is(closeErr, models.ErrNoData) {
			span.SetStatus(codes.Error, "no data")
			return result, fmt.Errorf("scrape %d pages: %w", s.cfg.MaxPages, closeErr)
		}
		return result, closeErr
	}
	return result, nil
}

func (s *Scraper) processPage(ctx context.Context, page int) models.PageResult {
	ctx, span := tracer.Start(ctx, "scraper.page", trace.WithAttributes(attribute.Int("page", page)))
	defer span.End()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			return s.absent(span, page, "throttle", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return s.absent(span, page, "fetch", err)
	}

	slog.Info("scraping page", slog.Int("page", page))
	atomic.AddInt64(&s.requestCount, 1)
	raw, err := s.fetcher.Fetch(ctx, page)
	if err != nil {
		return s.absent(span, page, "fetch", err)
	}

	parsed, err := s.parser.Parse(page, bytes.NewReader(raw.Body))
	if err != nil {
		return s.absent(span, page, "parse", err)
	}

	for _, skipped := range parsed.Skipped {
		s.recordError(skipped)
		slog.Warn("skipped malformed item", slog.Int("page", page), slog.Any("error", skipped))
	}
	s.Metrics.AddSkipped(len(parsed.Skipped))
	s.Metrics.AddItems(len(parsed.Products))
	s.Metrics.IncPage(models.PageOK.String())

	for _, product := range parsed.Products {
		slog.Debug("product scraped", slog.Int("page", page), slog.String("name", product.Name))
	}
	slog.Info("page scraped", slog.Int("page", page), slog.Int("items", len(parsed.Products)))
	span.SetAttributes(attribute.Int("items", len(parsed.Products)))

	return models.PageResult{
		Page:     page,
		Status:   models.PageOK,
		Products: parsed.Products,
		Skipped:  len(parsed.Skipped),
	}
}

func (s *Scraper) absent(span trace.Span, page int, step string, err error) models.PageResult {
	category := s.recordError(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, step+" failed")
	s.Metrics.IncPage(models.PageAbsent.String())

	slog.Warn("page skipped",
		slog.Int("page", page),
		slog.String("step", step),
		slog.String("category", category),
		slog.Any("error", err),
	)
	return models.PageResult{Page: page, Status: models.PageAbsent, Err: err}
}

func (s *Scraper) recordError(err error) string {
	atomic.AddInt64(&s.errorCount, 1)
	category := errorTypeLabel(err)

	s.mu.Lock()
	s.errorsByType[category]++
	s.mu.Unlock()

	s.Metrics.IncError(category)
	return category
}

func (s *Scraper) summarize(results []models.PageResult, products models.ResultSet, pipelineMetrics map[string]interface{}, start time.Time) *models.ScraperResult {
	result := &models.ScraperResult{
		Products:     products,
		StartTime:    start,
		EndTime:      time.Now(),
		PagesTotal:   len(results),
		ErrorCount:   int(atomic.LoadInt64(&s.errorCount)),
		ErrorsByType: s.snapshotErrors(),
		RequestCount: int(atomic.LoadInt64(&s.requestCount)),
	}
	for _, res := range results {
		result.SkippedItems += res.Skipped
		if res.Status == models.PageOK {
			result.PagesOK++
			continue
		}
		result.AbsentPages = append(result.AbsentPages, res.Page)
		if res.Err != nil {
			if result.PageErrors == nil {
				result.PageErrors = make(map[int]error)
			}
			result.PageErrors[res.Page] = res.Err
		}
	}
	if validation, ok := pipelineMetrics["validation_errors"].(map[string]int); ok {
		result.Duplicates = validation["duplicate_url"]
	}
	return result
}

func (s *Scraper) reset() {
	atomic.StoreInt64(&s.requestCount, 0)
	atomic.StoreInt64(&s.errorCount, 0)
	s.mu.Lock()
	s.errorsByType = make(map[string]int)
	s.mu.Unlock()
}

func (s *Scraper) snapshotErrors() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}
