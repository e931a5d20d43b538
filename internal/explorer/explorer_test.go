package explorer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/txbuddy/internal/circuitbreaker"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, APIKey: "test-key"},
		WithBreaker(circuitbreaker.New(2, 0)))
	require.NoError(t, err)
	return c
}

func TestListTransactions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "account", q.Get("module"))
		assert.Equal(t, "txlist", q.Get("action"))
		assert.Equal(t, "0xabc", q.Get("address"))
		assert.Equal(t, "101", q.Get("startblock"))
		assert.Equal(t, "120", q.Get("endblock"))
		assert.Equal(t, "asc", q.Get("sort"))
		assert.Equal(t, "test-key", q.Get("apikey"))
		_, _ = w.Write([]byte(`{"status":"1","message":"OK","result":[
			{"hash":"0xAA","blockNumber":"105","from":"0xABC","to":"0xdef"},
			{"hash":"0xbb","blockNumber":"nope","from":"0xabc","to":"0xdef"},
			{"hash":"0xcc","blockNumber":"119","from":"0xdef","to":"0xabc"}]}`))
	})

	txs, err := c.ListTransactions(context.Background(), "0xabc", 101, 120)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, TxRef{Hash: "0xaa", BlockNumber: 105, From: "0xabc", To: "0xdef"}, txs[0])
	assert.Equal(t, uint64(119), txs[1].BlockNumber)
}

func TestListTransactions_NoTransactions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"0","message":"No transactions found","result":[]}`))
	})
	txs, err := c.ListTransactions(context.Background(), "0xabc", 1, 2)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestListTransactions_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"0","message":"NOTOK","result":"Invalid API Key"}`))
	})
	_, err := c.ListTransactions(context.Background(), "0xabc", 1, 2)
	require.ErrorIs(t, err, ErrAPI)
	assert.Contains(t, err.Error(), "Invalid API Key")
}

func TestListTransactions_BreakerOpensOnHTTPFailures(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < 4; i++ {
		_, err := c.ListTransactions(context.Background(), "0xabc", 1, 2)
		require.Error(t, err)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits), "calls after the trip are short-circuited")

	_, err := c.ListTransactions(context.Background(), "0xabc", 1, 2)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
}

func TestIsVerifiedContract(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		q := r.URL.Query()
		assert.Equal(t, "contract", q.Get("module"))
		assert.Equal(t, "getabi", q.Get("action"))
		switch q.Get("address") {
		case "0xverified":
			_, _ = w.Write([]byte(`{"status":"1","message":"OK","result":"[{\"type\":\"function\"}]"}`))
		case "0xunverified":
			_, _ = w.Write([]byte(`{"status":"0","message":"NOTOK","result":"Contract source code not verified"}`))
		default:
			_, _ = w.Write([]byte(`{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`))
		}
	})
	ctx := context.Background()

	assert.True(t, c.IsVerifiedContract(ctx, "0xVERIFIED"))
	assert.True(t, c.IsVerifiedContract(ctx, "0xverified"))
	assert.False(t, c.IsVerifiedContract(ctx, "0xunverified"))
	assert.False(t, c.IsVerifiedContract(ctx, "0xunverified"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits), "definite answers are cached")

	assert.False(t, c.IsVerifiedContract(ctx, "0xratelimited"))
	assert.False(t, c.IsVerifiedContract(ctx, "0xratelimited"))
	assert.Equal(t, int32(4), atomic.LoadInt32(&hits), "rejections are not cached")

	assert.False(t, c.IsVerifiedContract(ctx, ""))
}

func TestIsVerifiedContract_TransportFailureIsUnverified(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	assert.False(t, c.IsVerifiedContract(context.Background(), "0xabc"))
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
