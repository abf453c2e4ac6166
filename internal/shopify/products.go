// Package shopify fetches product snapshots from the Shopify Admin REST
// API. The snapshot is a cache, not a source of truth; callers decide
// whether a fetch failure matters.
package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bidlyapplaunch/bidly-sub001/internal/models"
)

// ProductFetcher retrieves a product snapshot from the catalog.
type ProductFetcher interface {
	GetProduct(ctx context.Context, shopDomain, accessToken, productID string) (*models.ProductSnapshot, error)
}

// Client is the Admin REST API implementation of ProductFetcher.
type Client struct {
	http       *http.Client
	apiVersion string
}

// NewClient creates a catalog client with a per-request timeout.
func NewClient(apiVersion string, timeout time.Duration) *Client {
	return &Client{
		http:       &http.Client{Timeout: timeout},
		apiVersion: apiVersion,
	}
}

type productResponse struct {
	Product struct {
		Title string `json:"title"`
		Image struct {
			Src string `json:"src"`
		} `json:"image"`
		Variants []struct {
			Price string `json:"price"`
		} `json:"variants"`
	} `json:"product"`
}

// GetProduct fetches one product from the store's Admin API.
func (c *Client) GetProduct(ctx context.Context, shopDomain, accessToken, productID string) (*models.ProductSnapshot, error) {
	url := fmt.Sprintf("https://%s/admin/api/%s/products/%s.json", shopDomain, c.apiVersion, productID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build product request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("product fetch returned status %d", resp.StatusCode)
	}

	var pr productResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("failed to decode product response: %w", err)
	}

	snapshot := &models.ProductSnapshot{
		Title:     pr.Product.Title,
		ImageURL:  pr.Product.Image.Src,
		FetchedAt: time.Now().UTC(),
	}
	if len(pr.Product.Variants) > 0 {
		if price, err := strconv.ParseFloat(pr.Product.Variants[0].Price, 64); err == nil {
			snapshot.Price = price
		}
	}

	return snapshot, nil
}
