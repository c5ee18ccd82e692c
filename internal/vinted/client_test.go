package vinted

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/resaleoracle/internal/models"
)

func testConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.PageDelay = 0
	cfg.RetryDelay = time.Millisecond
	cfg.Timeout = 2 * time.Second
	return cfg
}

func pageOf(startID, n int, sold bool) map[string]interface{} {
	items := make([]map[string]interface{}, n)
	for i := range items {
		items[i] = map[string]interface{}{
			"id":          startID + i,
			"title":       fmt.Sprintf("Nike felpa %d", startID+i),
			"price":       map[string]interface{}{"amount": fmt.Sprintf("%d.0", 10+i), "currency_code": "EUR"},
			"status":      "very_good",
			"brand_title": "Nike",
			"size_title":  "M",
			"is_sold":     sold,
		}
	}
	return map[string]interface{}{"items": items}
}

func TestFetchListings_StopsOnEmptyPage(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.Equal(t, "/api/v2/catalog/items", r.URL.Path)
		assert.Equal(t, "nike felpa", r.URL.Query().Get("search_text"))
		assert.Equal(t, "3", r.URL.Query().Get("size_ids[]"))
		assert.Equal(t, "newest_first", r.URL.Query().Get("order"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page <= 2 {
			_ = json.NewEncoder(w).Encode(pageOf(page*100, 3, true))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"items": []interface{}{}})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	listings, err := c.FetchListings(context.Background(), Search{Text: "nike felpa", SizeID: "3"}, 20)
	require.NoError(t, err)

	assert.Len(t, listings, 6)
	assert.EqualValues(t, 3, atomic.LoadInt32(&requests))

	first := listings[0]
	assert.Equal(t, 10.0, first.Price)
	assert.Equal(t, "Nike", first.Brand)
	assert.Equal(t, "M", first.Size)
	assert.Equal(t, models.ConditionVeryGood, first.Condition)
	assert.True(t, first.Sold)
	assert.Equal(t, srv.URL+"/items/100", first.SourceID)
}

func TestFetchListings_PageCeiling(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		_ = json.NewEncoder(w).Encode(pageOf(int(n)*100, 2, true))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxPages = 5
	c := NewClient(cfg)

	listings, err := c.FetchListings(context.Background(), Search{Text: "jeans"}, 100)
	require.NoError(t, err)
	assert.Len(t, listings, 10)
	assert.EqualValues(t, 5, atomic.LoadInt32(&requests))
}

func TestFetchListings_TruncatesToMaxResults(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		_ = json.NewEncoder(w).Encode(pageOf(int(n)*100, 4, true))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	listings, err := c.FetchListings(context.Background(), Search{Text: "jeans"}, 6)
	require.NoError(t, err)
	assert.Len(t, listings, 6)
	assert.EqualValues(t, 2, atomic.LoadInt32(&requests))
}

func TestFetchListings_NonSuccessStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	_, err := c.FetchListings(context.Background(), Search{Text: "felpa"}, 20)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
}

func TestFetchListings_FailureOnLaterPageFailsFetch(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(pageOf(100, 2, true))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	listings, err := c.FetchListings(context.Background(), Search{Text: "felpa"}, 20)
	assert.Error(t, err)
	assert.Nil(t, listings)
}

func TestFetchListings_RetriesServerErrors(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		switch {
		case n <= 2:
			w.WriteHeader(http.StatusBadGateway)
		case n == 3:
			_ = json.NewEncoder(w).Encode(pageOf(100, 2, true))
		default:
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"items": []interface{}{}})
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxRetries = 2
	c := NewClient(cfg)

	listings, err := c.FetchListings(context.Background(), Search{Text: "felpa"}, 20)
	require.NoError(t, err)
	assert.Len(t, listings, 2)
}

func TestFetchListings_NoRetryByDefault(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	_, err := c.FetchListings(context.Background(), Search{Text: "felpa"}, 20)
	assert.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&requests))
}

func TestFetchListings_DropsMalformedPrices(t *testing.T) {
	body := `{"items":[
		{"id": 1, "title": "a", "price": {"amount": "12.5"}, "is_sold": true, "status": "good"},
		{"id": 2, "title": "b", "price": {"amount": "n/a"}, "is_sold": true},
		{"id": 3, "title": "c", "price": "18", "is_sold": true, "brand": {"title": "Zara"}},
		{"id": 4, "title": "d", "price": 20, "is_sold": false},
		{"id": 5, "title": "e", "is_sold": true}
	]}`
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			_, _ = w.Write([]byte(body))
			return
		}
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	listings, err := c.FetchListings(context.Background(), Search{Text: "x"}, 20)
	require.NoError(t, err)
	require.Len(t, listings, 3)

	assert.Equal(t, 12.5, listings[0].Price)
	assert.Equal(t, models.ConditionGood, listings[0].Condition)
	assert.Equal(t, 18.0, listings[1].Price)
	assert.Equal(t, "Zara", listings[1].Brand)
	assert.Equal(t, 20.0, listings[2].Price)
	assert.False(t, listings[2].Sold)
}

func TestFetchListings_DecodeErrorFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>captcha</html>`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	_, err := c.FetchListings(context.Background(), Search{Text: "x"}, 20)
	assert.Error(t, err)
}

func TestFetchListings_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(pageOf(100, 2, true))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(testConfig(srv.URL))
	_, err := c.FetchListings(ctx, Search{Text: "x"}, 20)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchListings_PageDelayHonoursDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(pageOf(100, 2, true))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.PageDelay = time.Hour
	c := NewClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.FetchListings(ctx, Search{Text: "x"}, 20)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSizeID(t *testing.T) {
	assert.Equal(t, "1", SizeID("XS"))
	assert.Equal(t, "3", SizeID("m"))
	assert.Equal(t, "6", SizeID("XXL"))
	assert.Equal(t, "", SizeID("UNICA"))
}
