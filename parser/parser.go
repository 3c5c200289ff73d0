// Package parser extracts product listings from catalogue page markup.
package parser

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-laptops/config"
	"github.com/aluiziolira/go-scrape-laptops/models"
)

// Selectors for the webscraper.io e-commerce test site.
const (
	ContainerSelector   = "div.caption"
	TitleSelector       = "a.title"
	PriceSelector       = `span[itemprop="price"]`
	DescriptionSelector = "p.description"
)

var (
	// ErrMissingField marks a listing without one of the expected elements.
	ErrMissingField = errors.New("missing field")
	// ErrInvalidPrice marks a price that is not a non-negative number.
	ErrInvalidPrice = errors.New("invalid price")
)

// FieldError locates a malformed listing on a page.
type FieldError struct {
	Page     int
	Position int
	Field    string
	Err      error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("page %d item %d: %s: %v", e.Page, e.Position, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Result is what a page yielded.
type Result struct {
	Products []*models.Product
	Skipped  []error
}

// Parser turns catalogue markup into products.
type Parser struct {
	origin *url.URL
	policy string
	now    func() time.Time
}

// New builds a parser resolving links against origin.
func New(origin, policy string) (*Parser, error) {
	base, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("origin must include a host")
	}
	if policy == "" {
		policy = config.PolicyPage
	}
	if policy != config.PolicyPage && policy != config.PolicyItem {
		return nil, fmt.Errorf("unknown parse policy %q", policy)
	}
	return &Parser{origin: base, policy: policy, now: time.Now}, nil
}

// Parse extracts every listing container of one page, in document order.
// Under the page policy the first malformed listing fails the whole page.
func (p *Parser) Parse(page int, body io.Reader) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	result := &Result{}
	scrapedAt := p.now()
	position := 0

	var pageErr error
	doc.Find(ContainerSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		position++
		product, err := p.extractProduct(s, page, position)
		if err != nil {
			if p.policy == config.PolicyPage {
				pageErr = err
				return false
			}
			result.Skipped = append(result.Skipped, err)
			return true
		}
		product.ScrapedAt = scrapedAt
		result.Products = append(result.Products, product)
		return true
	})
	if pageErr != nil {
		return nil, pageErr
	}

	return result, nil
}

func (p *Parser) extractProduct(s *goquery.Selection, page, position int) (*models.Product, error) {
	fieldErr := func(field string, err error) error {
		return &FieldError{Page: page, Position: position, Field: field, Err: err}
	}

	title := s.Find(TitleSelector).First()
	if title.Length() == 0 {
		return nil, fieldErr("title", ErrMissingField)
	}
	name := NormalizeText(title.Text())
	if name == "" {
		return nil, fieldErr("title", ErrMissingField)
	}
	href, ok := title.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return nil, fieldErr("link", ErrMissingField)
	}
	link, err := p.ResolveLink(href)
	if err != nil {
		return nil, fieldErr("link", err)
	}

	priceSel := s.Find(PriceSelector).First()
	if priceSel.Length() == 0 {
		return nil, fieldErr("price", ErrMissingField)
	}
	price, err := ParsePrice(priceSel.Text())
	if err != nil {
		return nil, fieldErr("price", err)
	}

	descSel := s.Find(DescriptionSelector).First()
	if descSel.Length() == 0 {
		return nil, fieldErr("description", ErrMissingField)
	}

	return &models.Product{
		Name:        name,
		URL:         link,
		Price:       price,
		Description: strings.TrimSpace(descSel.Text()),
		Page:        page,
		Position:    position,
	}, nil
}

// ResolveLink makes a listing href absolute against the origin.
func (p *Parser) ResolveLink(href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse link %q: %w", href, err)
	}
	return p.origin.ResolveReference(ref).String(), nil
}

// ParsePrice strips the leading dollar sign and parses the amount.
func ParsePrice(text string) (float64, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidPrice)
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, text)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, text)
	}
	return value, nil
}

// NormalizeText trims the text and collapses inner whitespace runs.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ValidateProduct ensures the scraper captured the required fields.
func ValidateProduct(p *models.Product) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("product missing name")
	}
	if strings.TrimSpace(p.URL) == "" {
		return fmt.Errorf("product missing link for %s", p.Name)
	}
	if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) || p.Price < 0 {
		return fmt.Errorf("product %s has invalid price %v", p.Name, p.Price)
	}
	return nil
}
