// Package gog wraps the small slice of the GOG embed API used to verify that
// a product slug recorded in the database still resolves.
package gog

import (
	"fmt"

	"github.com/macfreek/game-db-manager/pkg/fetch"
)

const productReviewURL = "http://embed.gog.com/reviews/product/%s.json"

// productTTL in days. Review pages only serve as an existence check, so a
// long TTL is fine.
const productTTL = 100

// Client is a typed facade over the GOG embed API.
type Client struct {
	fetcher *fetch.Fetcher
}

// New creates a GOG client backed by the given fetcher.
func New(f *fetch.Fetcher) *Client {
	return &Client{fetcher: f}
}

// ProductData is the review metadata for a product slug.
type ProductData struct {
	PageID        string  `json:"pageId"`
	ReviewCount   int     `json:"reviewCount"`
	AverageRating float64 `json:"averageRating"`
}

// ProductData fetches the review data for a product slug. A failing fetch
// means the slug does not resolve to a known product.
func (c *Client) ProductData(slug string) (*ProductData, error) {
	var data ProductData
	_, err := c.fetcher.Do(fetch.Request{
		URL:       fmt.Sprintf(productReviewURL, slug),
		CacheName: fmt.Sprintf("gog_product_review_%s.json", slug),
		TTLDays:   productTTL,
		Kind:      fetch.KindJSON,
		Target:    &data,
	})
	if err != nil {
		return nil, err
	}
	return &data, nil
}
