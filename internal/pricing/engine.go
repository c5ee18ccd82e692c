package pricing

import (
	"fmt"
	"math"
	"strconv"

	"github.com/rewired-gh/resaleoracle/internal/logger"
	"github.com/rewired-gh/resaleoracle/internal/models"
)

const fallbackSummary = "Estimate based on generic data - limited market data"

var positionText = map[string]string{
	models.PositionLow:     "competitive",
	models.PositionAverage: "in line with the market",
	models.PositionHigh:    "premium",
}

// confidenceTiers must stay sorted by descending MinSamples.
var confidenceTiers = []struct {
	MinSamples int
	Level      float64
}{
	{20, 0.9},
	{10, 0.75},
	{5, 0.6},
	{0, 0.4},
}

// Engine produces price recommendations from comparable listings.
type Engine struct {
	config Config
}

// New creates an Engine using config.
func New(config Config) *Engine {
	return &Engine{config: config}
}

// Analyze filters the eligible listings and recommends a price for them.
// It never fails: an empty eligible sample yields the fallback recommendation.
func (e *Engine) Analyze(listings []models.ComparableListing, condition models.Condition, speed models.SaleSpeed) models.PriceRecommendation {
	prices := models.EligiblePrices(listings)
	if len(prices) < len(listings) {
		logger.Debug("Dropped %d of %d listings as ineligible (unsold, zero or malformed price)",
			len(listings)-len(prices), len(listings))
	}
	if len(prices) == 0 {
		return FallbackRecommendation()
	}

	dist, err := Summarize(prices)
	if err != nil {
		logger.Warn("Failed to summarize %d prices: %v", len(prices), err)
		return FallbackRecommendation()
	}
	return e.Recommend(dist, len(prices), condition, speed)
}

// Recommend prices an item against a distribution built from sampleSize
// eligible listings.
func (e *Engine) Recommend(dist models.PriceDistribution, sampleSize int, condition models.Condition, speed models.SaleSpeed) models.PriceRecommendation {
	if sampleSize <= 0 {
		return FallbackRecommendation()
	}

	suggested := e.SuggestedPrice(dist.Median, condition, speed)
	position := MarketPosition(suggested, dist)

	return models.PriceRecommendation{
		SuggestedPrice:  suggested,
		Distribution:    dist,
		SampleSize:      sampleSize,
		PriceRange:      formatRange(dist.Min, dist.Max),
		ConfidenceLevel: ConfidenceLevel(sampleSize),
		MarketPosition:  position,
		Summary:         summary(dist, sampleSize, position),
	}
}

// SuggestedPrice applies the condition and sale-speed multipliers to base
// and rounds half to even. The result is never below 1.
func (e *Engine) SuggestedPrice(base float64, condition models.Condition, speed models.SaleSpeed) float64 {
	raw := base * e.config.ConditionMultiplier(condition) * e.config.SpeedMultiplier(speed)
	return math.Max(1, math.RoundToEven(raw))
}

// MarketPosition classifies price against the distribution quartiles.
// Boundary values belong to the outer bucket.
func MarketPosition(price float64, dist models.PriceDistribution) string {
	switch {
	case price <= dist.Quartiles.Q1:
		return models.PositionLow
	case price >= dist.Quartiles.Q3:
		return models.PositionHigh
	default:
		return models.PositionAverage
	}
}

// ConfidenceLevel is a step function of the eligible sample size.
func ConfidenceLevel(sampleSize int) float64 {
	for _, tier := range confidenceTiers {
		if sampleSize >= tier.MinSamples {
			return tier.Level
		}
	}
	return confidenceTiers[len(confidenceTiers)-1].Level
}

// FallbackRecommendation is returned when there is no usable market data.
// It ignores the requested item entirely and must be treated as low trust.
func FallbackRecommendation() models.PriceRecommendation {
	return models.PriceRecommendation{
		SuggestedPrice: 15,
		Distribution: models.PriceDistribution{
			Min:    10,
			Max:    25,
			Mean:   15,
			Median: 15,
			Mode:   15,
			StdDev: 5,
			Quartiles: models.Quartiles{
				Q1: 12,
				Q2: 15,
				Q3: 18,
			},
		},
		SampleSize:      0,
		PriceRange:      formatRange(10, 25),
		ConfidenceLevel: 0.3,
		MarketPosition:  models.PositionAverage,
		Summary:         fallbackSummary,
		UsedFallback:    true,
	}
}

func formatRange(min, max float64) string {
	return fmt.Sprintf("%s€ - %s€", formatPrice(min), formatPrice(max))
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func summary(dist models.PriceDistribution, sampleSize int, position string) string {
	return fmt.Sprintf("Analyzed %d similar sold items.\nAverage market price: %s€\nThe suggested price is %s.\nPrice variability: ±%s€",
		sampleSize, formatPrice(dist.Mean), positionText[position], formatPrice(dist.StdDev))
}
