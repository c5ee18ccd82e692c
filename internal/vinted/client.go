// Package vinted fetches comparable listings from the Vinted catalog API.
package vinted

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/rewired-gh/resaleoracle/internal/logger"
	"github.com/rewired-gh/resaleoracle/internal/models"
)

// Config holds Vinted client settings.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	MaxPages       int
	PerPage        int
	PageDelay      time.Duration // politeness delay between page requests
	MaxRetries     int           // extra attempts per page; 0 fails fast
	RetryDelay     time.Duration
	UserAgent      string
	AcceptLanguage string
}

// DefaultConfig returns settings for the public vinted.it catalog.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://www.vinted.it",
		Timeout:        30 * time.Second,
		MaxPages:       5,
		PerPage:        20,
		PageDelay:      1500 * time.Millisecond,
		MaxRetries:     0,
		RetryDelay:     time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		AcceptLanguage: "it-IT,it;q=0.8,en-US;q=0.5,en;q=0.3",
	}
}

// Search is a normalised catalog query.
type Search struct {
	Text   string
	SizeID string
}

// Client provides access to the Vinted catalog API.
// It holds no connection state; every FetchListings call opens its own session.
type Client struct {
	config Config
}

// StatusError is returned for non-2xx catalog responses.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

type catalogResponse struct {
	Items []catalogItem `json:"items"`
}

type catalogItem struct {
	ID         json.Number  `json:"id"`
	Title      string       `json:"title"`
	Price      catalogPrice `json:"price"`
	Status     string       `json:"status"`
	BrandTitle string       `json:"brand_title"`
	Brand      *struct {
		Title string `json:"title"`
	} `json:"brand"`
	SizeTitle   string `json:"size_title"`
	IsSold      bool   `json:"is_sold"`
	CreatedAtTs string `json:"created_at_ts"`
}

// catalogPrice accepts {"amount": "12.0"}, {"amount": 12}, "12.0" or 12.
// Unparseable values leave Valid false instead of failing the whole page.
type catalogPrice struct {
	Amount float64
	Valid  bool
}

func (p *catalogPrice) UnmarshalJSON(data []byte) error {
	var obj struct {
		Amount json.RawMessage `json:"amount"`
	}
	raw := data
	if err := json.Unmarshal(data, &obj); err == nil && obj.Amount != nil {
		raw = obj.Amount
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		*p = catalogPrice{}
		return nil
	}
	*p = catalogPrice{Amount: v, Valid: true}
	return nil
}

var conditionByStatus = map[string]models.Condition{
	"brand_new_with_tags": models.ConditionNewWithTags,
	"new_with_tags":       models.ConditionNewWithTags,
	"very_good":           models.ConditionVeryGood,
	"good":                models.ConditionGood,
	"satisfactory":        models.ConditionSatisfactory,
}

var sizeIDs = map[string]string{
	"XS": "1", "S": "2", "M": "3",
	"L": "4", "XL": "5", "XXL": "6",
}

// SizeID returns the catalog size id for a canonical size, or "" if none.
func SizeID(size string) string {
	return sizeIDs[strings.ToUpper(size)]
}

// NewClient creates a new Vinted client. Zero-valued settings take defaults.
func NewClient(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.MaxPages <= 0 {
		config.MaxPages = def.MaxPages
	}
	if config.PerPage <= 0 {
		config.PerPage = def.PerPage
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.UserAgent == "" {
		config.UserAgent = def.UserAgent
	}
	if config.AcceptLanguage == "" {
		config.AcceptLanguage = def.AcceptLanguage
	}
	return &Client{config: config}
}

// session carries per-query connection state.
type session struct {
	httpClient *http.Client
	limiter    *rate.Limiter
}

func (c *Client) newSession() *session {
	jar, _ := cookiejar.New(nil) // only fails on a non-nil options error
	limit := rate.Inf
	if c.config.PageDelay > 0 {
		limit = rate.Every(c.config.PageDelay)
	}
	return &session{
		httpClient: &http.Client{
			Timeout: c.config.Timeout,
			Jar:     jar,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// FetchListings pages through catalog results until a page comes back empty,
// the page ceiling is reached, or maxResults listings are collected.
// A failure on any page fails the whole fetch.
func (c *Client) FetchListings(ctx context.Context, search Search, maxResults int) ([]models.ComparableListing, error) {
	if maxResults <= 0 {
		return nil, nil
	}

	s := c.newSession()
	var listings []models.ComparableListing
	dropped := 0

	for page := 1; page <= c.config.MaxPages && len(listings) < maxResults; page++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("page %d delay interrupted: %w", page, err)
		}

		items, err := c.fetchPage(ctx, s, search, page)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch page %d: %w", page, err)
		}
		if len(items) == 0 {
			break
		}

		for _, item := range items {
			listing, ok := c.toListing(item)
			if !ok {
				dropped++
				continue
			}
			listings = append(listings, listing)
		}
		logger.Debug("Fetched catalog page %d for %q: %d items", page, search.Text, len(items))
	}

	if dropped > 0 {
		logger.Debug("Dropped %d catalog items with malformed prices", dropped)
	}
	if len(listings) > maxResults {
		listings = listings[:maxResults]
	}
	return listings, nil
}

func (c *Client) pageURL(search Search, page int) (string, error) {
	u, err := url.Parse(c.config.BaseURL + "/api/v2/catalog/items")
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}

	q := u.Query()
	q.Set("search_text", search.Text)
	if search.SizeID != "" {
		q.Set("size_ids[]", search.SizeID)
	}
	q.Set("order", "newest_first")
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(c.config.PerPage))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// fetchPage performs one page request with bounded retry.
// Transport errors and 5xx are retried; other non-2xx responses are not.
func (c *Client) fetchPage(ctx context.Context, s *session, search Search, page int) ([]catalogItem, error) {
	urlStr, err := c.pageURL(search, page)
	if err != nil {
		return nil, err
	}

	var items []catalogItem
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", c.config.UserAgent)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Accept-Language", c.config.AcceptLanguage)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			statusErr := &StatusError{StatusCode: resp.StatusCode}
			if resp.StatusCode >= 500 {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}

		var body catalogResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode catalog page: %w", err))
		}
		items = body.Items
		return nil
	}

	var policy backoff.BackOff = backoff.NewConstantBackOff(c.config.RetryDelay)
	policy = backoff.WithMaxRetries(policy, uint64(c.config.MaxRetries))
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) toListing(item catalogItem) (models.ComparableListing, bool) {
	if !item.Price.Valid || item.Price.Amount < 0 {
		return models.ComparableListing{}, false
	}

	brand := item.BrandTitle
	if brand == "" && item.Brand != nil {
		brand = item.Brand.Title
	}
	condition, ok := conditionByStatus[strings.ToLower(item.Status)]
	if !ok {
		condition = models.ConditionGood
	}

	listing := models.ComparableListing{
		Title:     item.Title,
		Price:     item.Price.Amount,
		Condition: condition,
		SourceID:  fmt.Sprintf("%s/items/%s", c.config.BaseURL, item.ID.String()),
		Brand:     brand,
		Size:      item.SizeTitle,
		Sold:      item.IsSold,
	}
	if item.CreatedAtTs != "" {
		if ts, err := time.Parse(time.RFC3339, item.CreatedAtTs); err == nil {
			listing.PostedAt = &ts
		}
	}
	return listing, true
}
