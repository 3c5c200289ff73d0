package parser

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-laptops/config"
	"github.com/aluiziolira/go-scrape-laptops/models"
)

const listing = `<div class="col-md-4"><div class="thumbnail"><div class="caption">
	<h4 class="price float-end card-title pull-right"><span itemprop="price">%s</span></h4>
	<h4><a href="%s" class="title" title="%s">%s</a></h4>
	<p class="description card-text">%s</p>
</div></div></div>`

func page(items ...string) string {
	return "<html><body><div class=\"row\">" + strings.Join(items, "") + "</div></body></html>"
}

func listingHTML(name, href, price, desc string) string {
	out := listing
	for _, v := range []string{price, href, name, name, desc} {
		out = strings.Replace(out, "%s", v, 1)
	}
	return out
}

func newTestParser(t *testing.T, policy string) *Parser {
	t.Helper()
	p, err := New("https://webscraper.io", policy)
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}
	p.now = func() time.Time { return time.Date(2025, 11, 4, 13, 9, 13, 0, time.UTC) }
	return p
}

func TestParseExtractsListings(t *testing.T) {
	p := newTestParser(t, config.PolicyPage)
	body := page(
		listingHTML("Asus VivoBook", "/test-sites/e-commerce/static/product/31", "$295.99", "  Asus VivoBook X441NA,\n 14\" Celeron  "),
		listingHTML("Dell XPS", "/test-sites/e-commerce/static/product/42", "$1099.00", "Dell"),
	)

	result, err := p.Parse(2, strings.NewReader(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(result.Products) != 2 {
		t.Fatalf("products=%d, want 2", len(result.Products))
	}

	first := result.Products[0]
	if first.Name != "Asus VivoBook" {
		t.Errorf("name=%q", first.Name)
	}
	if first.URL != "https://webscraper.io/test-sites/e-commerce/static/product/31" {
		t.Errorf("url=%q", first.URL)
	}
	if first.Price != 295.99 {
		t.Errorf("price=%v, want 295.99", first.Price)
	}
	if first.Description != "Asus VivoBook X441NA,\n 14\" Celeron" {
		t.Errorf("description=%q", first.Description)
	}
	if first.Page != 2 || first.Position != 1 {
		t.Errorf("tags=%d/%d, want 2/1", first.Page, first.Position)
	}
	if result.Products[1].Position != 2 || result.Products[1].Price != 1099 {
		t.Errorf("second product = %+v", result.Products[1])
	}
	if first.ScrapedAt.IsZero() {
		t.Errorf("scraped_at should be set")
	}
}

func TestParseEmptyPage(t *testing.T) {
	p := newTestParser(t, config.PolicyPage)
	result, err := p.Parse(1, strings.NewReader(page()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(result.Products) != 0 {
		t.Fatalf("products=%d, want 0", len(result.Products))
	}
}

func TestParsePagePolicyFailsWholePage(t *testing.T) {
	p := newTestParser(t, config.PolicyPage)
	body := page(
		listingHTML("Good", "/p/1", "$10.00", "ok"),
		listingHTML("Bad", "/p/2", "$ten", "broken"),
		listingHTML("Also good", "/p/3", "$20.00", "ok"),
	)

	result, err := p.Parse(1, strings.NewReader(body))
	if err == nil {
		t.Fatalf("expected page failure, got %d products", len(result.Products))
	}
	if !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("error = %v, want ErrInvalidPrice", err)
	}
	var fieldErr *FieldError
	if !errors.As(err, &fieldErr) || fieldErr.Position != 2 || fieldErr.Field != "price" {
		t.Fatalf("field error = %+v", fieldErr)
	}
}

func TestParseItemPolicySkipsMalformed(t *testing.T) {
	p := newTestParser(t, config.PolicyItem)
	missingDesc := `<div class="caption"><span itemprop="price">$5.00</span><a class="title" href="/p/9">No desc</a></div>`
	body := page(
		listingHTML("Good", "/p/1", "$10.00", "ok"),
		missingDesc,
		listingHTML("Also good", "/p/3", "$20.00", "ok"),
	)

	result, err := p.Parse(1, strings.NewReader(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(result.Products) != 2 {
		t.Fatalf("products=%d, want 2", len(result.Products))
	}
	if len(result.Skipped) != 1 || !errors.Is(result.Skipped[0], ErrMissingField) {
		t.Fatalf("skipped=%v, want one missing field", result.Skipped)
	}
	if result.Products[1].Position != 3 {
		t.Fatalf("position=%d, want 3", result.Products[1].Position)
	}
}

func TestParseMissingFields(t *testing.T) {
	tests := []struct {
		name  string
		html  string
		field string
	}{
		{
			name:  "no title",
			html:  `<div class="caption"><span itemprop="price">$1</span><p class="description">d</p></div>`,
			field: "title",
		},
		{
			name:  "no href",
			html:  `<div class="caption"><a class="title">T</a><span itemprop="price">$1</span><p class="description">d</p></div>`,
			field: "link",
		},
		{
			name:  "no price",
			html:  `<div class="caption"><a class="title" href="/p">T</a><p class="description">d</p></div>`,
			field: "price",
		},
		{
			name:  "no description",
			html:  `<div class="caption"><a class="title" href="/p">T</a><span itemprop="price">$1</span></div>`,
			field: "description",
		},
	}

	p := newTestParser(t, config.PolicyPage)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(1, strings.NewReader(page(tt.html)))
			var fieldErr *FieldError
			if !errors.As(err, &fieldErr) {
				t.Fatalf("error = %v, want FieldError", err)
			}
			if fieldErr.Field != tt.field || !errors.Is(err, ErrMissingField) {
				t.Fatalf("field=%q err=%v, want %q missing", fieldErr.Field, err, tt.field)
			}
		})
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr bool
	}{
		{name: "with currency symbol", input: "$295.99", want: 295.99},
		{name: "with whitespace", input: "  $10.50  ", want: 10.50},
		{name: "integer", input: "$1500", want: 1500},
		{name: "already clean", input: "25.99", want: 25.99},
		{name: "zero", input: "$0.00", want: 0},
		{name: "empty string", input: "", wantErr: true},
		{name: "symbol only", input: "$", wantErr: true},
		{name: "words", input: "$ten", wantErr: true},
		{name: "negative", input: "$-5", wantErr: true},
		{name: "not a number", input: "$NaN", wantErr: true},
		{name: "infinite", input: "$Inf", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrice(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePrice(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPrice) {
				t.Fatalf("ParsePrice(%q) error = %v, want ErrInvalidPrice", tt.input, err)
			}
			if !tt.wantErr && got != tt.want {
				t.Fatalf("ParsePrice(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestResolveLink(t *testing.T) {
	p := newTestParser(t, config.PolicyPage)
	tests := []struct {
		href string
		want string
	}{
		{href: "/x", want: "https://webscraper.io/x"},
		{href: "/test-sites/e-commerce/static/product/31", want: "https://webscraper.io/test-sites/e-commerce/static/product/31"},
		{href: "https://example.com/abs", want: "https://example.com/abs"},
	}
	for _, tt := range tests {
		got, err := p.ResolveLink(tt.href)
		if err != nil {
			t.Fatalf("ResolveLink(%q): %v", tt.href, err)
		}
		if got != tt.want {
			t.Errorf("ResolveLink(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
}

func TestValidateProduct(t *testing.T) {
	tests := []struct {
		name    string
		product *models.Product
		wantErr bool
	}{
		{
			name:    "valid product",
			product: &models.Product{Name: "Dell XPS", URL: "https://webscraper.io/x", Price: 10},
		},
		{name: "nil", product: nil, wantErr: true},
		{
			name:    "missing name",
			product: &models.Product{URL: "https://webscraper.io/x", Price: 10},
			wantErr: true,
		},
		{
			name:    "missing link",
			product: &models.Product{Name: "Dell XPS", Price: 10},
			wantErr: true,
		},
		{
			name:    "negative price",
			product: &models.Product{Name: "Dell XPS", URL: "https://webscraper.io/x", Price: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProduct(tt.product)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateProduct() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New("not a url", config.PolicyPage); err == nil {
		t.Fatalf("expected origin error")
	}
	if _, err := New("https://webscraper.io", "row"); err == nil {
		t.Fatalf("expected policy error")
	}
}
