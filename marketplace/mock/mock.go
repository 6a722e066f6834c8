// Package mock provides a deterministic marketplace client for tests.
package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	repricer "github.com/yidyetebeje/circtek-buyback-sub001"
)

// Client is a mock marketplace client. It records every price update and
// returns scripted competitor data.
type Client struct {
	mu               sync.Mutex
	competitorPrices []decimal.Decimal
	updates          []PriceUpdate
	orders           []repricer.Order
	listings         []repricer.Listing

	latency        time.Duration
	updateErr      error
	updateErrAfter int
	afterErr       error
	competitorErr  error
	callCount      atomic.Int64
}

// PriceUpdate is one recorded UpdateListingPrice call.
type PriceUpdate struct {
	ListingID string
	Price     decimal.Decimal
}

var (
	_ repricer.MarketplaceClient = (*Client)(nil)
	_ repricer.ListingSource     = (*Client)(nil)
)

// Option configures a mock Client.
type Option func(*Client)

// New creates a mock client with the given options.
func New(opts ...Option) *Client {
	c := &Client{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithCompetitorPrices sets the prices returned by CompetitorPrices.
func WithCompetitorPrices(prices ...decimal.Decimal) Option {
	return func(c *Client) { c.competitorPrices = prices }
}

// WithCompetitorError makes CompetitorPrices always fail.
func WithCompetitorError(err error) Option {
	return func(c *Client) { c.competitorErr = err }
}

// WithUpdateError makes UpdateListingPrice always fail.
func WithUpdateError(err error) Option {
	return func(c *Client) { c.updateErr = err }
}

// WithUpdateErrorAfter makes UpdateListingPrice fail once n updates have
// succeeded.
func WithUpdateErrorAfter(n int, err error) Option {
	return func(c *Client) {
		c.updateErrAfter = n
		c.afterErr = err
	}
}

// WithLatency adds simulated latency to each call.
func WithLatency(d time.Duration) Option {
	return func(c *Client) { c.latency = d }
}

// WithOrders sets the orders returned by the order feed, one page each.
func WithOrders(orders ...repricer.Order) Option {
	return func(c *Client) { c.orders = orders }
}

// WithListings sets the listings returned by ActiveListings.
func WithListings(listings ...repricer.Listing) Option {
	return func(c *Client) { c.listings = listings }
}

func (c *Client) UpdateListingPrice(ctx context.Context, listingID string, price decimal.Decimal) (repricer.CallResult, error) {
	if err := c.wait(ctx); err != nil {
		return repricer.CallResult{}, err
	}
	c.callCount.Add(1)
	if c.updateErr != nil {
		return repricer.CallResult{HTTPStatus: 500}, c.updateErr
	}
	c.mu.Lock()
	if c.afterErr != nil && len(c.updates) >= c.updateErrAfter {
		c.mu.Unlock()
		return repricer.CallResult{HTTPStatus: 500}, c.afterErr
	}
	c.updates = append(c.updates, PriceUpdate{ListingID: listingID, Price: price})
	c.mu.Unlock()
	return repricer.CallResult{HTTPStatus: 200}, nil
}

func (c *Client) CompetitorPrices(ctx context.Context, listingID string) ([]decimal.Decimal, repricer.CallResult, error) {
	if err := c.wait(ctx); err != nil {
		return nil, repricer.CallResult{}, err
	}
	c.callCount.Add(1)
	if c.competitorErr != nil {
		return nil, repricer.CallResult{HTTPStatus: 503}, c.competitorErr
	}
	return c.competitorPrices, repricer.CallResult{HTTPStatus: 200}, nil
}

func (c *Client) Orders(ctx context.Context, page int) ([]repricer.Order, bool, repricer.CallResult, error) {
	if err := c.wait(ctx); err != nil {
		return nil, false, repricer.CallResult{}, err
	}
	c.callCount.Add(1)
	// One order per page keeps pagination observable.
	if page < 1 || page > len(c.orders) {
		return nil, false, repricer.CallResult{HTTPStatus: 200}, nil
	}
	return []repricer.Order{c.orders[page-1]}, page < len(c.orders), repricer.CallResult{HTTPStatus: 200}, nil
}

func (c *Client) ActiveListings(ctx context.Context) ([]repricer.Listing, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.listings, nil
}

// Updates returns the recorded price updates in call order.
func (c *Client) Updates() []PriceUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PriceUpdate, len(c.updates))
	copy(out, c.updates)
	return out
}

// CallCount returns the number of marketplace calls made.
func (c *Client) CallCount() int64 { return c.callCount.Load() }

func (c *Client) wait(ctx context.Context) error {
	if c.latency <= 0 {
		return nil
	}
	select {
	case <-time.After(c.latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
