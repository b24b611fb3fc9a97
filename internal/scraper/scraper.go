// Package scraper fetches competitor pages and produces price-comparison
// summaries for the storefront.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultSourceURL = "https://www.cotodigital3.com.ar/sitios/coto/"
	defaultTitle     = "Cotidigital"
	defaultTimeout   = 5 * time.Second
)

// Doer is the HTTP client surface the comparer needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Comparison is the result of a price-comparison lookup.
type Comparison struct {
	Name    string `json:"nombre"`
	Summary string `json:"resultado"`
}

// PriceComparer scrapes a retail site and summarises what it found. Fetch
// failures degrade to an apologetic summary instead of an error so the
// storefront page keeps rendering.
type PriceComparer struct {
	client    Doer
	sourceURL string
}

// Option customises the comparer.
type Option func(*PriceComparer)

// WithClient injects the HTTP client.
func WithClient(client Doer) Option {
	return func(c *PriceComparer) {
		if client != nil {
			c.client = client
		}
	}
}

// WithSourceURL overrides the scraped page.
func WithSourceURL(url string) Option {
	return func(c *PriceComparer) {
		if strings.TrimSpace(url) != "" {
			c.sourceURL = strings.TrimSpace(url)
		}
	}
}

// NewPriceComparer constructs a comparer with a 5s default timeout.
func NewPriceComparer(opts ...Option) *PriceComparer {
	comparer := &PriceComparer{
		client:    &http.Client{Timeout: defaultTimeout},
		sourceURL: defaultSourceURL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(comparer)
		}
	}
	return comparer
}

// Compare fetches the source page and builds the comparison summary for the
// given product name.
func (c *PriceComparer) Compare(ctx context.Context, name string) (Comparison, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Comparison{}, errors.New("scraper: product name is required")
	}

	title, err := c.fetchTitle(ctx)
	if err != nil {
		return Comparison{
			Name:    trimmed,
			Summary: fmt.Sprintf("No se pudo obtener información en este momento para %s.", trimmed),
		}, nil
	}

	return Comparison{
		Name:    trimmed,
		Summary: fmt.Sprintf("Comparar precios de %s: simulación de scraping en %s", trimmed, title),
	}, nil
}

func (c *PriceComparer) fetchTitle(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sourceURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("scraper: unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = defaultTitle
	}
	return title, nil
}
