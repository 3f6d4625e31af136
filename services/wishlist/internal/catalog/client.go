// Package catalog reads product data from the product service to build
// wishlist snapshots.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/justin-elyphant/elyphant-v1-sub002/pkg/errors"
	"github.com/justin-elyphant/elyphant-v1-sub002/pkg/httpclient"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/domain"
)

const serviceName = "catalog"

// Getter performs GET requests. *httpclient.CircuitBreakerClient satisfies it.
type Getter interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

type productImage struct {
	URL       string `json:"url"`
	IsPrimary bool   `json:"is_primary"`
	SortOrder int    `json:"sort_order"`
}

type productBrand struct {
	Name string `json:"name"`
}

type productPayload struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	BasePrice int64          `json:"base_price"`
	Images    []productImage `json:"images"`
	Brand     *productBrand  `json:"brand"`
}

type productResponse struct {
	Data *productPayload `json:"data"`
}

// Client fetches product snapshots from the catalog.
type Client struct {
	http    Getter
	baseURL string
}

// NewClient creates a catalog client rooted at baseURL.
func NewClient(getter Getter, baseURL string) *Client {
	return &Client{http: getter, baseURL: strings.TrimRight(baseURL, "/")}
}

// GetProduct returns a point-in-time snapshot of productID.
func (c *Client) GetProduct(ctx context.Context, productID string) (*domain.ProductSnapshot, error) {
	resp, err := c.http.Get(ctx, c.baseURL+"/api/v1/products/"+url.PathEscape(productID))
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperrors.Unavailable(serviceName, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, httpclient.ParseResponseError(resp, serviceName)
	}
	defer func() { _ = resp.Body.Close() }()

	var body productResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode catalog product: %w", err)
	}
	if body.Data == nil || body.Data.ID == "" {
		return nil, apperrors.NotFound("product", productID)
	}

	return toSnapshot(body.Data), nil
}

func toSnapshot(p *productPayload) *domain.ProductSnapshot {
	s := &domain.ProductSnapshot{
		ProductID: p.ID,
		Title:     p.Name,
		Price:     p.BasePrice,
		ImageURL:  primaryImage(p.Images),
	}
	if p.Brand != nil {
		s.Brand = p.Brand.Name
	}
	return s
}

// primaryImage prefers the flagged primary image, then the lowest sort order.
func primaryImage(images []productImage) string {
	best := -1
	for i, img := range images {
		if img.IsPrimary {
			return img.URL
		}
		if best == -1 || img.SortOrder < images[best].SortOrder {
			best = i
		}
	}
	if best == -1 {
		return ""
	}
	return images[best].URL
}
