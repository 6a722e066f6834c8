// Package listing provides ListingSource implementations.
package listing

import (
	"context"
	"sync"

	repricer "github.com/yidyetebeje/circtek-buyback-sub001"
)

// StaticSource serves a fixed, mutable set of listings from memory. Useful
// for tests and for deployments where the active set is pushed in by an
// external catalog process.
type StaticSource struct {
	mu       sync.RWMutex
	listings []repricer.Listing
}

var _ repricer.ListingSource = (*StaticSource)(nil)

// NewStaticSource creates a source with the given listings.
func NewStaticSource(listings ...repricer.Listing) *StaticSource {
	return &StaticSource{listings: listings}
}

// ActiveListings returns a copy of the current set.
func (s *StaticSource) ActiveListings(context.Context) ([]repricer.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]repricer.Listing, len(s.listings))
	copy(out, s.listings)
	return out, nil
}

// Replace swaps the active set.
func (s *StaticSource) Replace(listings []repricer.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings = listings
}
