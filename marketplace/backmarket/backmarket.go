// Package backmarket adapts the Back Market buyback REST API to the
// repricer's marketplace interfaces. All calls are expected to be issued
// through the request scheduler, never directly.
package backmarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	repricer "github.com/yidyetebeje/circtek-buyback-sub001"
)

const (
	basePath       = "/ws/buyback/v1"
	defaultTimeout = 30 * time.Second
)

// Client is an HTTP adapter for the Back Market buyback API. Requests
// carry a static Basic credential header.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

var (
	_ repricer.MarketplaceClient = (*Client)(nil)
	_ repricer.ListingSource     = (*Client)(nil)
)

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// New creates a Back Market client. authToken is the pre-encoded Basic
// credential.
func New(baseURL, authToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authToken:  authToken,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig creates a client from the loaded marketplace config.
func NewFromConfig(cfg repricer.MarketplaceConfig, opts ...Option) *Client {
	c := New(cfg.BaseURL, cfg.AuthToken, opts...)
	if cfg.TimeoutMs > 0 {
		c.httpClient.Timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	return c
}

type priceUpdateRequest struct {
	Price string `json:"price"`
}

type competitorResponse struct {
	Competitors []struct {
		Price decimal.Decimal `json:"price"`
	} `json:"competitors"`
}

type listingPage struct {
	Results []struct {
		ID         string          `json:"id"`
		Country    string          `json:"country"`
		Price      decimal.Decimal `json:"price"`
		FloorPrice decimal.Decimal `json:"floor_price"`
	} `json:"results"`
	Next string `json:"next"`
}

type orderPage struct {
	Results []struct {
		ID        string    `json:"id"`
		State     string    `json:"state"`
		UpdatedAt time.Time `json:"updated_at"`
	} `json:"results"`
	Next string `json:"next"`
}

// UpdateListingPrice sets the listing's price.
func (c *Client) UpdateListingPrice(ctx context.Context, listingID string, price decimal.Decimal) (repricer.CallResult, error) {
	body := priceUpdateRequest{Price: price.StringFixed(2)}
	status, err := c.do(ctx, http.MethodPost, "/listings/"+url.PathEscape(listingID)+"/price", body, nil)
	return repricer.CallResult{HTTPStatus: status}, err
}

// CompetitorPrices fetches current competitor prices for a listing.
func (c *Client) CompetitorPrices(ctx context.Context, listingID string) ([]decimal.Decimal, repricer.CallResult, error) {
	var resp competitorResponse
	status, err := c.do(ctx, http.MethodGet, "/listings/"+url.PathEscape(listingID)+"/competitors", nil, &resp)
	if err != nil {
		return nil, repricer.CallResult{HTTPStatus: status}, err
	}
	prices := make([]decimal.Decimal, 0, len(resp.Competitors))
	for _, comp := range resp.Competitors {
		prices = append(prices, comp.Price)
	}
	return prices, repricer.CallResult{HTTPStatus: status}, nil
}

// Orders pages the buyback order feed.
func (c *Client) Orders(ctx context.Context, page int) ([]repricer.Order, bool, repricer.CallResult, error) {
	var resp orderPage
	status, err := c.do(ctx, http.MethodGet, "/orders?page="+strconv.Itoa(page), nil, &resp)
	if err != nil {
		return nil, false, repricer.CallResult{HTTPStatus: status}, err
	}
	orders := make([]repricer.Order, 0, len(resp.Results))
	for _, o := range resp.Results {
		orders = append(orders, repricer.Order{ID: o.ID, State: o.State, UpdatedAt: o.UpdatedAt})
	}
	return orders, resp.Next != "", repricer.CallResult{HTTPStatus: status}, nil
}

// ActiveListings pages through all active listings. Unlike the
// MarketplaceClient methods this is invoked once per repricing cycle, not
// per call, so it drains the pagination itself.
func (c *Client) ActiveListings(ctx context.Context) ([]repricer.Listing, error) {
	var listings []repricer.Listing
	for page := 1; ; page++ {
		var resp listingPage
		if _, err := c.do(ctx, http.MethodGet, "/listings?page="+strconv.Itoa(page), nil, &resp); err != nil {
			return nil, err
		}
		for _, l := range resp.Results {
			listings = append(listings, repricer.Listing{
				ID:         l.ID,
				Country:    l.Country,
				Price:      l.Price,
				FloorPrice: l.FloorPrice,
			})
		}
		if resp.Next == "" {
			return listings, nil
		}
	}
}

// do performs one request and decodes the JSON response into out when
// out is non-nil. Returns the HTTP status (0 if the request never left).
func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("backmarket: marshal body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+basePath+path, reader)
	if err != nil {
		return 0, fmt.Errorf("backmarket: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json, application/problem+json")
	req.Header.Set("Authorization", "Basic "+c.authToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("backmarket: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("backmarket: %s %s: status %d: %s",
			method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("backmarket: decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
