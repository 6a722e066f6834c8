package backmarket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Basic dGVzdC10b2tlbg==", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json, application/problem+json", r.Header.Get("Accept"))
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, New(srv.URL, "dGVzdC10b2tlbg==")
}

func TestUpdateListingPrice(t *testing.T) {
	var gotPath, gotPrice string
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body struct {
			Price string `json:"price"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotPrice = body.Price
		w.WriteHeader(http.StatusOK)
	})

	res, err := client.UpdateListingPrice(context.Background(), "listing-42", decimal.RequireFromString("12.5"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.HTTPStatus)
	assert.Equal(t, "/ws/buyback/v1/listings/listing-42/price", gotPath)
	assert.Equal(t, "12.50", gotPrice, "prices go over the wire with two decimals")
}

func TestCompetitorPrices(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws/buyback/v1/listings/listing-42/competitors", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"competitors":[{"price":"9.99"},{"price":"12.30"}]}`))
	})

	prices, res, err := client.CompetitorPrices(context.Background(), "listing-42")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.HTTPStatus)
	require.Len(t, prices, 2)
	assert.Equal(t, "9.99", prices[0].StringFixed(2))
	assert.Equal(t, "12.30", prices[1].StringFixed(2))
}

func TestOrders_Pagination(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws/buyback/v1/orders", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page") {
		case "1":
			_, _ = w.Write([]byte(`{"results":[{"id":"o1","state":"pending"}],"next":"?page=2"}`))
		default:
			_, _ = w.Write([]byte(`{"results":[{"id":"o2","state":"paid"}],"next":""}`))
		}
	})

	ctx := context.Background()
	orders, more, _, err := client.Orders(ctx, 1)
	require.NoError(t, err)
	assert.True(t, more)
	require.Len(t, orders, 1)
	assert.Equal(t, "o1", orders[0].ID)

	orders, more, _, err = client.Orders(ctx, 2)
	require.NoError(t, err)
	assert.False(t, more)
	assert.Equal(t, "o2", orders[0].ID)
}

func TestActiveListings_DrainsAllPages(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page") {
		case "1":
			_, _ = w.Write([]byte(`{"results":[{"id":"l1","country":"FR","price":"100.00","floor_price":"50.00"}],"next":"?page=2"}`))
		default:
			_, _ = w.Write([]byte(`{"results":[{"id":"l2","country":"DE","price":"80.00","floor_price":"40.00"}],"next":""}`))
		}
	})

	listings, err := client.ActiveListings(context.Background())
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, "l1", listings[0].ID)
	assert.Equal(t, "DE", listings[1].Country)
	assert.Equal(t, "80.00", listings[1].Price.StringFixed(2))
}

func TestDo_ProblemStatusSurfacesAsError(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"title":"rate limited"}`))
	})

	_, res, err := client.CompetitorPrices(context.Background(), "listing-42")
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, res.HTTPStatus)
	assert.Contains(t, err.Error(), "status 429")
}
