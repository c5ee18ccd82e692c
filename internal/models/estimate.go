package models

import (
	"errors"
	"time"
)

// Market position labels.
const (
	PositionLow     = "low"
	PositionAverage = "average"
	PositionHigh    = "high"
)

// Quartiles holds index-based quartiles of a sorted sample.
type Quartiles struct {
	Q1 float64 `json:"q1"`
	Q2 float64 `json:"q2"`
	Q3 float64 `json:"q3"`
}

// PriceDistribution summarises a non-empty price sample.
type PriceDistribution struct {
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Mean      float64   `json:"mean"`
	Median    float64   `json:"median"`
	Mode      float64   `json:"mode"`
	StdDev    float64   `json:"std_dev"`
	Quartiles Quartiles `json:"quartiles"`
}

// PriceRecommendation is the priced result for one query.
// UsedFallback is set when no eligible comparables existed and the fixed
// generic recommendation was returned instead.
type PriceRecommendation struct {
	SuggestedPrice  float64           `json:"suggested_price"`
	Distribution    PriceDistribution `json:"distribution"`
	SampleSize      int               `json:"sample_size"`
	PriceRange      string            `json:"price_range"`
	ConfidenceLevel float64           `json:"confidence_level"`
	MarketPosition  string            `json:"market_position"`
	Summary         string            `json:"summary"`
	UsedFallback    bool              `json:"used_fallback"`
}

// Origin records where the comparable listings of an estimate came from.
type Origin string

const (
	OriginMarket    Origin = "market"
	OriginCache     Origin = "cache"
	OriginSynthetic Origin = "synthetic"
)

// Estimate is the end-to-end result of one price query.
type Estimate struct {
	ID                string              `json:"id"`
	Brand             string              `json:"brand"`
	ItemType          string              `json:"item_type"`
	Size              string              `json:"size"`
	Condition         Condition           `json:"condition"`
	SaleSpeed         SaleSpeed           `json:"sale_speed"`
	Recommendation    PriceRecommendation `json:"recommendation"`
	VisionConfidence  float64             `json:"vision_confidence"`
	OverallConfidence float64             `json:"overall_confidence"`
	ListingsFound     int                 `json:"listings_found"`
	Origin            Origin              `json:"origin"`
	CreatedAt         time.Time           `json:"created_at"`
}

// Validate checks estimate field constraints.
func (e *Estimate) Validate() error {
	if e.ID == "" {
		return errors.New("estimate ID must not be empty")
	}
	if e.Recommendation.SuggestedPrice < 1 {
		return errors.New("suggested price must be at least 1")
	}
	if e.Recommendation.ConfidenceLevel < 0 || e.Recommendation.ConfidenceLevel > 1 {
		return errors.New("confidence level must be between 0.0 and 1.0")
	}
	if e.OverallConfidence < 0 || e.OverallConfidence > 1 {
		return errors.New("overall confidence must be between 0.0 and 1.0")
	}
	switch e.Recommendation.MarketPosition {
	case PositionLow, PositionAverage, PositionHigh:
	default:
		return errors.New("market position must be one of low, average, high")
	}
	switch e.Origin {
	case OriginMarket, OriginCache, OriginSynthetic:
	default:
		return errors.New("origin must be one of market, cache, synthetic")
	}
	if e.ListingsFound < 0 {
		return errors.New("listings found must not be negative")
	}
	if e.CreatedAt.IsZero() {
		return errors.New("created at must be set")
	}
	return nil
}
