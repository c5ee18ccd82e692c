// Package estimator runs the end-to-end price estimation pipeline: listing
// acquisition, price analysis, confidence aggregation and persistence.
package estimator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/resaleoracle/internal/comparables"
	"github.com/rewired-gh/resaleoracle/internal/logger"
	"github.com/rewired-gh/resaleoracle/internal/metrics"
	"github.com/rewired-gh/resaleoracle/internal/models"
	"github.com/rewired-gh/resaleoracle/internal/pricing"
)

// ListingSource acquires comparable listings. *comparables.Source satisfies it.
type ListingSource interface {
	Fetch(ctx context.Context, brand, itemType, size string, maxResults int) comparables.Result
}

// Recorder persists finished estimates. *storage.Storage satisfies it.
type Recorder interface {
	AddEstimate(e *models.Estimate) error
}

// Request is one price query as produced by the classifier and the user.
type Request struct {
	Brand            string
	ItemType         string
	Size             string
	Condition        models.Condition
	SaleSpeed        models.SaleSpeed
	VisionConfidence float64
}

// Config holds pipeline settings.
type Config struct {
	MaxResults       int
	BatchConcurrency int
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		MaxResults:       20,
		BatchConcurrency: 4,
	}
}

// Estimator wires the pipeline stages together.
type Estimator struct {
	source   ListingSource
	engine   *pricing.Engine
	recorder Recorder
	metrics  *metrics.Metrics
	config   Config

	now   func() time.Time
	newID func() string
}

// New creates an Estimator. recorder and m may be nil.
func New(source ListingSource, engine *pricing.Engine, recorder Recorder, m *metrics.Metrics, config Config) *Estimator {
	if config.BatchConcurrency <= 0 {
		config.BatchConcurrency = DefaultConfig().BatchConcurrency
	}
	return &Estimator{
		source:   source,
		engine:   engine,
		recorder: recorder,
		metrics:  m,
		config:   config,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Estimate prices a single item. Acquisition failures, including a cancelled
// or expired ctx, are absorbed by the synthetic fallback; an error is returned
// only when the produced estimate is inconsistent.
func (e *Estimator) Estimate(ctx context.Context, req Request) (*models.Estimate, error) {
	start := e.now()

	res := e.source.Fetch(ctx, req.Brand, req.ItemType, req.Size, e.config.MaxResults)

	speed := req.SaleSpeed
	if speed == "" {
		speed = models.SaleSpeedNormal
	}
	rec := e.engine.Analyze(res.Listings, req.Condition, speed)
	vision := clampUnit(req.VisionConfidence)

	est := &models.Estimate{
		ID:                e.newID(),
		Brand:             res.Query.Brand,
		ItemType:          res.Query.ItemType,
		Size:              res.Query.Size,
		Condition:         req.Condition,
		SaleSpeed:         speed,
		Recommendation:    rec,
		VisionConfidence:  vision,
		OverallConfidence: e.engine.Aggregate(vision, rec.ConfidenceLevel, len(res.Listings)),
		ListingsFound:     len(res.Listings),
		Origin:            res.Origin,
		CreatedAt:         e.now(),
	}
	if err := est.Validate(); err != nil {
		return nil, fmt.Errorf("inconsistent estimate for %s: %w", res.Query.Key(), err)
	}

	if e.recorder != nil {
		if err := e.recorder.AddEstimate(est); err != nil {
			logger.Warn("Failed to persist estimate %s: %v", est.ID, err)
			e.metrics.PersistFailed()
		}
	}
	e.metrics.ObserveEstimate(est, e.now().Sub(start))

	logger.Info("Estimate %s for %s: %.0f€ (%s, confidence %.2f, %d listings, origin %s)",
		est.ID, res.Query.Key(), rec.SuggestedPrice, rec.MarketPosition,
		est.OverallConfidence, est.ListingsFound, est.Origin)
	return est, nil
}

// EstimateBatch prices independent requests concurrently. Results keep the
// order of reqs. The first error cancels the remaining estimates.
func (e *Estimator) EstimateBatch(ctx context.Context, reqs []Request) ([]*models.Estimate, error) {
	results := make([]*models.Estimate, len(reqs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.BatchConcurrency)
	for i, req := range reqs {
		g.Go(func() error {
			est, err := e.Estimate(gCtx, req)
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			results[i] = est
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
