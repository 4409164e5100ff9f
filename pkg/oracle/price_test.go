package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceCache(t *testing.T) {
	t.Run("miss on empty cache", func(t *testing.T) {
		cache := NewPriceCache(time.Minute)
		_, ok := cache.Get("ethereum")
		assert.False(t, ok)
	})

	t.Run("hit within TTL", func(t *testing.T) {
		cache := NewPriceCache(time.Minute)
		cache.Set("ethereum", 2500.0)

		price, ok := cache.Get("ethereum")
		require.True(t, ok)
		assert.Equal(t, 2500.0, price)
		assert.Equal(t, 1, cache.Len())
	})

	t.Run("miss after TTL", func(t *testing.T) {
		cache := NewPriceCache(time.Millisecond)
		cache.Set("ethereum", 2500.0)

		time.Sleep(5 * time.Millisecond)
		_, ok := cache.Get("ethereum")
		assert.False(t, ok)
	})

	t.Run("set overwrites", func(t *testing.T) {
		cache := NewPriceCache(time.Minute)
		cache.Set("ethereum", 2500.0)
		cache.Set("ethereum", 2600.0)

		price, _ := cache.Get("ethereum")
		assert.Equal(t, 2600.0, price)
		assert.Equal(t, 1, cache.Len())
	})

	t.Run("cleanup evicts stale entries", func(t *testing.T) {
		cache := NewPriceCache(time.Minute)
		cache.Set("ethereum", 2500.0)
		cache.Set("matic-network", 0.4)

		time.Sleep(5 * time.Millisecond)
		assert.Equal(t, 2, cache.Cleanup(time.Millisecond))
		assert.Equal(t, 0, cache.Len())
	})
}

func TestUSDPrice(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "ethereum", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		_, _ = w.Write([]byte(`{"ethereum":{"usd":2500.5}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Minute, nil)

	price, err := client.USDPrice(context.Background(), "ethereum")
	require.NoError(t, err)
	assert.Equal(t, 2500.5, price)

	// Second lookup is served from cache.
	price, err = client.USDPrice(context.Background(), "ethereum")
	require.NoError(t, err)
	assert.Equal(t, 2500.5, price)
	assert.Equal(t, int64(1), hits.Load())
}

func TestUSDPriceErrors(t *testing.T) {
	t.Run("missing asset id", func(t *testing.T) {
		client := NewClient("http://unused.invalid", time.Minute, nil)
		_, err := client.USDPrice(context.Background(), "")
		assert.Error(t, err)
	})

	t.Run("non-200 response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		client := NewClient(srv.URL, time.Minute, nil)
		_, err := client.USDPrice(context.Background(), "ethereum")
		assert.ErrorContains(t, err, "429")
	})

	t.Run("asset missing from response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		client := NewClient(srv.URL, time.Minute, nil)
		_, err := client.USDPrice(context.Background(), "ethereum")
		assert.ErrorContains(t, err, "not found")
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}))
		defer srv.Close()

		client := NewClient(srv.URL, time.Minute, nil)
		_, err := client.USDPrice(context.Background(), "ethereum")
		assert.Error(t, err)
	})

	t.Run("errors are not cached", func(t *testing.T) {
		var hits atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if hits.Add(1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_, _ = w.Write([]byte(`{"ethereum":{"usd":2500.0}}`))
		}))
		defer srv.Close()

		client := NewClient(srv.URL, time.Minute, nil)
		_, err := client.USDPrice(context.Background(), "ethereum")
		require.Error(t, err)

		price, err := client.USDPrice(context.Background(), "ethereum")
		require.NoError(t, err)
		assert.Equal(t, 2500.0, price)
	})
}
