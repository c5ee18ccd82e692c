// Package comparables acquires comparable listings for a query, falling back
// to a deterministic synthetic set when real acquisition fails or is empty.
package comparables

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rewired-gh/resaleoracle/internal/logger"
	"github.com/rewired-gh/resaleoracle/internal/models"
	"github.com/rewired-gh/resaleoracle/internal/vinted"
)

// UnknownBrand labels queries whose brand the classifier could not name.
const UnknownBrand = "unknown"

// ErrNoEligibleListings marks a fetch that succeeded without usable listings.
var ErrNoEligibleListings = errors.New("no sold listings with a valid price")

// ErrNoFetcher marks a Source running without network acquisition.
var ErrNoFetcher = errors.New("no listing fetcher configured")

// Fetcher retrieves raw listings for a catalog search.
type Fetcher interface {
	FetchListings(ctx context.Context, search vinted.Search, maxResults int) ([]models.ComparableListing, error)
}

// Cache stores fetched listings keyed by normalised query.
type Cache interface {
	GetCachedListings(key string, maxAge time.Duration) ([]models.ComparableListing, bool, error)
	PutCachedListings(key string, listings []models.ComparableListing) error
}

// Config holds acquisition limits and the cache lifetime.
type Config struct {
	MaxResults   int
	FetchTimeout time.Duration
	CacheTTL     time.Duration // zero disables the cache
}

// DefaultConfig returns the acquisition defaults.
func DefaultConfig() Config {
	return Config{
		MaxResults:   20,
		FetchTimeout: 45 * time.Second,
		CacheTTL:     24 * time.Hour,
	}
}

// Query is a normalised (brand, item type, size) triple.
type Query struct {
	Brand    string
	ItemType string
	Size     string
}

// NormalizeQuery applies the alias tables. An empty brand becomes UnknownBrand.
func NormalizeQuery(brand, itemType, size string) Query {
	q := Query{
		Brand:    NormalizeBrand(brand),
		ItemType: NormalizeItemType(itemType),
		Size:     models.NormalizeSize(size),
	}
	if q.Brand == "" || q.Brand == "unknown brand" {
		q.Brand = UnknownBrand
	}
	return q
}

// Key is the cache key of the query.
func (q Query) Key() string {
	return q.Brand + "|" + q.ItemType + "|" + q.Size
}

// SearchText is the catalog search string; unknown brands are left out.
func (q Query) SearchText() string {
	if q.Brand == UnknownBrand {
		return q.ItemType
	}
	return strings.TrimSpace(q.Brand + " " + q.ItemType)
}

// Result is the outcome of a Fetch. Err holds the recovered acquisition
// failure when Origin is synthetic.
type Result struct {
	Query    Query
	Listings []models.ComparableListing
	Origin   models.Origin
	Err      error
}

// Synthetic reports whether the listings are placeholders.
func (r Result) Synthetic() bool {
	return r.Origin == models.OriginSynthetic
}

// Source is the comparable-listing source. It never returns an error.
type Source struct {
	fetcher Fetcher
	synth   Synthesizer
	cache   Cache
	config  Config
}

// NewSource wires a Source. fetcher and cache may be nil.
func NewSource(fetcher Fetcher, synth Synthesizer, cache Cache, config Config) *Source {
	if synth == nil {
		synth = NewSeededSynthesizer(0)
	}
	if config.MaxResults <= 0 {
		config.MaxResults = DefaultConfig().MaxResults
	}
	return &Source{
		fetcher: fetcher,
		synth:   synth,
		cache:   cache,
		config:  config,
	}
}

// Fetch returns comparable listings for the query. maxResults <= 0 uses the
// configured default.
func (s *Source) Fetch(ctx context.Context, brand, itemType, size string, maxResults int) Result {
	q := NormalizeQuery(brand, itemType, size)
	if maxResults <= 0 {
		maxResults = s.config.MaxResults
	}

	if listings, ok := s.fromCache(q); ok {
		return Result{Query: q, Listings: listings, Origin: models.OriginCache}
	}

	if s.fetcher == nil {
		return s.fallback(q, ErrNoFetcher)
	}

	fetchCtx := ctx
	if s.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.config.FetchTimeout)
		defer cancel()
	}

	search := vinted.Search{Text: q.SearchText(), SizeID: vinted.SizeID(q.Size)}
	listings, err := s.fetcher.FetchListings(fetchCtx, search, maxResults)
	if err != nil {
		logger.Warn("Listing acquisition failed for %q (size %s), using synthetic data: %v", search.Text, q.Size, err)
		return s.fallback(q, err)
	}
	if len(models.EligiblePrices(listings)) == 0 {
		logger.Info("No eligible listings among %d fetched for %q, using synthetic data", len(listings), search.Text)
		return s.fallback(q, ErrNoEligibleListings)
	}

	if s.cache != nil && s.config.CacheTTL > 0 {
		if err := s.cache.PutCachedListings(q.Key(), listings); err != nil {
			logger.Warn("Failed to cache listings for %s: %v", q.Key(), err)
		}
	}
	return Result{Query: q, Listings: listings, Origin: models.OriginMarket}
}

func (s *Source) fromCache(q Query) ([]models.ComparableListing, bool) {
	if s.cache == nil || s.config.CacheTTL <= 0 {
		return nil, false
	}
	listings, ok, err := s.cache.GetCachedListings(q.Key(), s.config.CacheTTL)
	if err != nil {
		logger.Warn("Failed to read listing cache for %s: %v", q.Key(), err)
		return nil, false
	}
	if !ok || len(models.EligiblePrices(listings)) == 0 {
		return nil, false
	}
	logger.Debug("Listing cache hit for %s (%d listings)", q.Key(), len(listings))
	return listings, true
}

func (s *Source) fallback(q Query, cause error) Result {
	return Result{
		Query:    q,
		Listings: s.synth.Generate(q.Brand, q.ItemType, q.Size),
		Origin:   models.OriginSynthetic,
		Err:      cause,
	}
}
