package polymarket_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/alejandrodnm/polysniper/internal/adapters/polymarket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const booksFixture = `[
	{
		"asset_id": "token_up_001",
		"bids": [{"price": "0.94", "size": "120"}, {"price": "0.95", "size": "40"}],
		"asks": [{"price": "0.97", "size": "25"}, {"price": "0.96", "size": "80"}]
	},
	{
		"asset_id": "token_down_001",
		"bids": [{"price": "0.03", "size": "500"}],
		"asks": []
	}
]`

func newTestClient(clobSrv, gammaSrv *httptest.Server) *polymarket.Client {
	var ep polymarket.Endpoints
	if clobSrv != nil {
		ep.CLOB = clobSrv.URL
	}
	if gammaSrv != nil {
		ep.Gamma = gammaSrv.URL
	}
	return polymarket.NewClient(ep)
}

func TestFetchOrderBooks_Batch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/books", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(booksFixture))
	}))
	defer srv.Close()

	client := newTestClient(srv, nil)
	books, err := client.FetchOrderBooks(context.Background(), []string{"token_up_001", "token_down_001"})

	require.NoError(t, err)
	require.Len(t, books, 2)

	up, ok := books["token_up_001"]
	require.True(t, ok)
	assert.Equal(t, "token_up_001", up.TokenID)
	assert.InDelta(t, 0.95, up.BestBid().Price, 0.001)
	assert.InDelta(t, 0.96, up.BestAsk().Price, 0.001)

	down, ok := books["token_down_001"]
	require.True(t, ok)
	assert.InDelta(t, 0.03, down.BestBid().Price, 0.001)
	assert.False(t, down.BestAsk().OK, "empty asks must be absent, not zero")
}

func TestFetchOrderBooks_Sorted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(booksFixture))
	}))
	defer srv.Close()

	books, err := newTestClient(srv, nil).FetchOrderBooks(context.Background(), []string{"token_up_001"})
	require.NoError(t, err)

	book := books["token_up_001"]

	// Bids: mayor a menor
	require.Len(t, book.Bids, 2)
	assert.Greater(t, book.Bids[0].Price, book.Bids[1].Price)

	// Asks: menor a mayor
	require.Len(t, book.Asks, 2)
	assert.Less(t, book.Asks[0].Price, book.Asks[1].Price)
}

func TestFetchOrderBooks_BatchSplitting(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]any{})
	}))
	defer srv.Close()

	// 25 token_ids → 2 requests (batch de 20 + batch de 5)
	tokenIDs := make([]string, 25)
	for i := range tokenIDs {
		tokenIDs[i] = "token_" + string(rune('a'+i%26))
	}

	_, err := newTestClient(srv, nil).FetchOrderBooks(context.Background(), tokenIDs)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "debe hacer 2 requests batch para 25 tokens")
}

func TestFetchOrderBooks_Empty(t *testing.T) {
	books, err := newTestClient(nil, nil).FetchOrderBooks(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestFetchOrderBooks_ClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad token"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv, nil).FetchOrderBooks(context.Background(), []string{"x"})
	assert.ErrorContains(t, err, "400")
}
