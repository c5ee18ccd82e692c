package comparables

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/resaleoracle/internal/models"
	"github.com/rewired-gh/resaleoracle/internal/vinted"
)

type stubFetcher struct {
	listings []models.ComparableListing
	err      error
	block    bool

	mu       sync.Mutex
	searches []vinted.Search
}

func (f *stubFetcher) FetchListings(ctx context.Context, search vinted.Search, maxResults int) ([]models.ComparableListing, error) {
	f.mu.Lock()
	f.searches = append(f.searches, search)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.listings, f.err
}

type memCache struct {
	entries map[string][]models.ComparableListing
	puts    int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]models.ComparableListing)}
}

func (c *memCache) GetCachedListings(key string, maxAge time.Duration) ([]models.ComparableListing, bool, error) {
	l, ok := c.entries[key]
	return l, ok, nil
}

func (c *memCache) PutCachedListings(key string, listings []models.ComparableListing) error {
	c.entries[key] = listings
	c.puts++
	return nil
}

func sold(prices ...float64) []models.ComparableListing {
	out := make([]models.ComparableListing, len(prices))
	for i, p := range prices {
		out[i] = models.ComparableListing{Price: p, Sold: true, SourceID: "https://www.vinted.it/items/1"}
	}
	return out
}

func assertSyntheticSet(t *testing.T, listings []models.ComparableListing, base []float64) {
	t.Helper()
	require.Len(t, listings, len(base))
	for i, l := range listings {
		assert.True(t, l.Sold)
		assert.True(t, l.Eligible())
		assert.InDelta(t, base[i], l.Price, maxPriceJitter)
		assert.Contains(t, syntheticConditions, l.Condition)
		assert.NoError(t, l.Validate())
	}
}

func TestSource_MarketDataPassesThrough(t *testing.T) {
	f := &stubFetcher{listings: sold(10, 12, 15)}
	s := NewSource(f, NewSeededSynthesizer(1), nil, DefaultConfig())

	res := s.Fetch(context.Background(), "Nike", "Hoodie", "m", 0)

	assert.Equal(t, models.OriginMarket, res.Origin)
	assert.NoError(t, res.Err)
	assert.False(t, res.Synthetic())
	assert.Len(t, res.Listings, 3)
	require.Len(t, f.searches, 1)
	assert.Equal(t, "nike felpa", f.searches[0].Text)
	assert.Equal(t, "3", f.searches[0].SizeID)
}

func TestSource_EmptyResultUsesSyntheticSet(t *testing.T) {
	f := &stubFetcher{}
	s := NewSource(f, NewSeededSynthesizer(1), nil, DefaultConfig())

	res := s.Fetch(context.Background(), "Obscurebrand", "felpa", "M", 20)

	assert.Equal(t, models.OriginSynthetic, res.Origin)
	assert.ErrorIs(t, res.Err, ErrNoEligibleListings)
	assertSyntheticSet(t, res.Listings, []float64{12, 15, 18, 20, 25, 30})
	assert.Equal(t, "obscurebrand", res.Listings[0].Brand)
}

func TestSource_OnlyUnsoldListingsUsesSyntheticSet(t *testing.T) {
	f := &stubFetcher{listings: []models.ComparableListing{{Price: 20, Sold: false, SourceID: "x"}}}
	s := NewSource(f, NewSeededSynthesizer(1), nil, DefaultConfig())

	res := s.Fetch(context.Background(), "zara", "jeans", "L", 20)
	assert.True(t, res.Synthetic())
	assertSyntheticSet(t, res.Listings, []float64{20, 25, 30, 35, 40})
}

func TestSource_TransportErrorUsesSyntheticSet(t *testing.T) {
	f := &stubFetcher{err: &vinted.StatusError{StatusCode: 503}}
	s := NewSource(f, NewSeededSynthesizer(1), nil, DefaultConfig())

	res := s.Fetch(context.Background(), "", "cappello", "S", 20)

	assert.True(t, res.Synthetic())
	var statusErr *vinted.StatusError
	assert.True(t, errors.As(res.Err, &statusErr))
	assertSyntheticSet(t, res.Listings, genericPrices)
	assert.Equal(t, UnknownBrand, res.Query.Brand)
}

func TestSource_TimeoutUsesSyntheticSet(t *testing.T) {
	f := &stubFetcher{block: true}
	cfg := DefaultConfig()
	cfg.FetchTimeout = 20 * time.Millisecond
	s := NewSource(f, NewSeededSynthesizer(1), nil, cfg)

	res := s.Fetch(context.Background(), "nike", "scarpe", "M", 20)

	assert.True(t, res.Synthetic())
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assertSyntheticSet(t, res.Listings, []float64{25, 30, 40, 50, 60})
}

func TestSource_CallerCancellationUsesSyntheticSet(t *testing.T) {
	f := &stubFetcher{block: true}
	s := NewSource(f, NewSeededSynthesizer(1), nil, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := s.Fetch(ctx, "nike", "t-shirt", "M", 20)
	assert.True(t, res.Synthetic())
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.NotEmpty(t, res.Listings)
}

func TestSource_NoFetcher(t *testing.T) {
	s := NewSource(nil, nil, nil, DefaultConfig())
	res := s.Fetch(context.Background(), "nike", "felpa", "M", 20)
	assert.True(t, res.Synthetic())
	assert.ErrorIs(t, res.Err, ErrNoFetcher)
	assert.Len(t, res.Listings, 6)
}

func TestSource_CachesMarketData(t *testing.T) {
	f := &stubFetcher{listings: sold(10, 12, 15)}
	cache := newMemCache()
	s := NewSource(f, NewSeededSynthesizer(1), cache, DefaultConfig())

	first := s.Fetch(context.Background(), "Nike", "felpa", "M", 20)
	second := s.Fetch(context.Background(), "nike", "hoodie", "medium", 20)

	assert.Equal(t, models.OriginMarket, first.Origin)
	assert.Equal(t, models.OriginCache, second.Origin)
	assert.Equal(t, first.Listings, second.Listings)
	assert.Len(t, f.searches, 1)
	assert.Equal(t, 1, cache.puts)
}

func TestSource_DoesNotCacheSyntheticData(t *testing.T) {
	cache := newMemCache()
	s := NewSource(&stubFetcher{}, NewSeededSynthesizer(1), cache, DefaultConfig())

	res := s.Fetch(context.Background(), "nike", "felpa", "M", 20)
	assert.True(t, res.Synthetic())
	assert.Zero(t, cache.puts)
}

func TestSource_CacheDisabledWithZeroTTL(t *testing.T) {
	cache := newMemCache()
	cache.entries["nike|felpa|M"] = sold(99)
	cfg := DefaultConfig()
	cfg.CacheTTL = 0
	f := &stubFetcher{listings: sold(10)}
	s := NewSource(f, nil, cache, cfg)

	res := s.Fetch(context.Background(), "nike", "felpa", "M", 20)
	assert.Equal(t, models.OriginMarket, res.Origin)
	assert.Zero(t, cache.puts)
}

func TestSeededSynthesizer_Deterministic(t *testing.T) {
	a := NewSeededSynthesizer(7).Generate("nike", "felpa", "M")
	b := NewSeededSynthesizer(7).Generate("nike", "felpa", "M")
	assert.Equal(t, a, b)

	again := NewSeededSynthesizer(7)
	_ = again.Generate("adidas", "jeans", "S")
	assert.Equal(t, a, again.Generate("nike", "felpa", "M"), "output must not depend on call order")
}

func TestSeededSynthesizer_KeyedOnType(t *testing.T) {
	s := NewSeededSynthesizer(3)
	assertSyntheticSet(t, s.Generate("x", "t-shirt", "M"), []float64{8, 10, 12, 15, 18})
	assertSyntheticSet(t, s.Generate("x", "giacca", "M"), genericPrices)
	assertSyntheticSet(t, s.Generate("x", "", "M"), genericPrices)
}

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		brand, itemType, size string
		want                  Query
	}{
		{"Nike Air", "Hoodie", "m", Query{"nike", "felpa", "M"}},
		{"  ZARA WOMAN ", "pantaloni", "small", Query{"zara", "jeans", "S"}},
		{"H&M", "tshirt", "xl", Query{"h&m", "t-shirt", "XL"}},
		{"Thomas Burberry", "giubbotto", "2xl", Query{"thomas burberry", "giacca", "XXL"}},
		{"", "sneakers", "one size", Query{UnknownBrand, "scarpe", "UNICA"}},
		{"unknown brand", "button down", "L", Query{UnknownBrand, "camicia", "L"}},
		{"Levi's", "cappello", "M", Query{"levi's", "cappello", "M"}},
	}

	for _, tt := range tests {
		t.Run(tt.brand+"/"+tt.itemType, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeQuery(tt.brand, tt.itemType, tt.size))
		})
	}
}

func TestQuerySearchText(t *testing.T) {
	assert.Equal(t, "nike felpa", Query{Brand: "nike", ItemType: "felpa"}.SearchText())
	assert.Equal(t, "felpa", Query{Brand: UnknownBrand, ItemType: "felpa"}.SearchText())
	assert.Equal(t, "nike|felpa|M", Query{Brand: "nike", ItemType: "felpa", Size: "M"}.Key())
}
