package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aluiziolira/go-scrape-laptops/config"
	"github.com/aluiziolira/go-scrape-laptops/models"
	"github.com/aluiziolira/go-scrape-laptops/parser"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// Pipeline collects page results from the scrape workers and releases them
// as one ResultSet in page order. It validates records on the way in and,
// when configured, drops repeated product links on the way out.
type Pipeline struct {
	mu     sync.Mutex
	pages  map[int][]*models.Product
	closed bool

	dedupe *lru.Cache[string, struct{}]

	metrics metrics
}

// NewPipeline builds a pipeline. A positive cfg.DedupeMaxSize enables link dedupe.
func NewPipeline(cfg *config.Config) (*Pipeline, error) {
	p := &Pipeline{
		pages:   make(map[int][]*models.Product),
		metrics: newMetrics(),
	}
	if cfg != nil && cfg.DedupeMaxSize > 0 {
		cache, err := lru.New[string, struct{}](cfg.DedupeMaxSize)
		if err != nil {
			return nil, fmt.Errorf("create dedupe cache: %w", err)
		}
		p.dedupe = cache
	}
	return p, nil
}

// Process records the products of one page. Invalid records are counted and dropped.
// It is safe to call from several workers.
func (p *Pipeline) Process(page int, products ...*models.Product) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPipelineClosed
	}

	for _, product := range products {
		if err := parser.ValidateProduct(product); err != nil {
			p.metrics.addValidation("invalid_record")
			continue
		}
		p.pages[page] = append(p.pages[page], product)
	}
	return nil
}

// Close stops intake and returns the accumulated products ordered by page,
// then by position within the page. An empty result yields models.ErrNoData.
func (p *Pipeline) Close() (models.ResultSet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true

	indexes := make([]int, 0, len(p.pages))
	for page := range p.pages {
		indexes = append(indexes, page)
	}
	sort.Ints(indexes)

	var out models.ResultSet
	for _, page := range indexes {
		products := p.pages[page]
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].Position < products[j].Position
		})
		for _, product := range products {
			if p.isDuplicate(product) {
				p.metrics.addValidation("duplicate_url")
				continue
			}
			out = append(out, product)
			p.metrics.incrementProcessed()
		}
	}
	p.pages = make(map[int][]*models.Product)

	if len(out) == 0 {
		return nil, models.ErrNoData
	}
	return out, nil
}

func (p *Pipeline) isDuplicate(product *models.Product) bool {
	if p.dedupe == nil {
		return false
	}
	seen, _ := p.dedupe.ContainsOrAdd(product.URL, struct{}{})
	return seen
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_products": m.processed,
		"validation_errors":  copyValidation,
	}
}
