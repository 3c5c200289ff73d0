// Package models defines data structures for the scraper.
package models

import (
	"errors"
	"strings"
	"time"
)

// ErrNoData is returned when a run produced no records to load.
var ErrNoData = errors.New("no data")

// Product represents one listing scraped from a catalogue page.
type Product struct {
	Name        string    `csv:"name" json:"name"`
	URL         string    `csv:"url" json:"url"`
	Price       float64   `csv:"price" json:"price"`
	Description string    `csv:"description" json:"description"`
	Page        int       `csv:"page" json:"page"`
	Position    int       `csv:"position" json:"position"`
	ScrapedAt   time.Time `csv:"scraped_at" json:"scraped_at"`
}

// Link returns the display link for the product.
func (p *Product) Link() RichLink {
	return RichLink{URL: p.URL, Text: p.Name}
}

// RichLink is a URL paired with the text shown for it.
type RichLink struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// Formula renders the link as a spreadsheet HYPERLINK formula.
func (l RichLink) Formula() string {
	return `=HYPERLINK("` + escapeFormulaString(l.URL) + `","` + escapeFormulaString(l.Text) + `")`
}

// Inside formula string literals a double quote is written twice.
func escapeFormulaString(s string) string {
	return strings.ReplaceAll(s, `"`, `""`)
}

// RawPage is the undecoded response for one catalogue page.
type RawPage struct {
	Page       int
	URL        string
	StatusCode int
	Body       []byte
}

// PageStatus reports whether a page contributed records.
type PageStatus int

const (
	// PageOK means the page was fetched and parsed.
	PageOK PageStatus = iota
	// PageAbsent means the fetch or the parse failed.
	PageAbsent
)

func (s PageStatus) String() string {
	switch s {
	case PageOK:
		return "ok"
	case PageAbsent:
		return "absent"
	default:
		return "unknown"
	}
}

// PageResult is the outcome of processing one page index.
type PageResult struct {
	Page     int
	Status   PageStatus
	Products []*Product
	Skipped  int
	Err      error
}

// ResultSet holds products in page order, then in-page order.
type ResultSet []*Product

// ScraperResult holds the overall result of a scraping operation
type ScraperResult struct {
	Products     ResultSet
	StartTime    time.Time
	EndTime      time.Time
	PagesTotal   int
	PagesOK      int
	AbsentPages  []int
	PageErrors   map[int]error
	ErrorCount   int
	ErrorsByType map[string]int
	SkippedItems int
	RequestCount int
	Duplicates   int
}

// TotalCount is the number of products that survived the run.
func (r *ScraperResult) TotalCount() int {
	if r == nil {
		return 0
	}
	return len(r.Products)
}
