package pricing

import "math"

// Aggregate blends the classifier confidence, the recommendation confidence
// and the raw number of comparables into one overall score.
func (e *Engine) Aggregate(visionConfidence, priceConfidence float64, sampleSize int) float64 {
	return Aggregate(e.config, visionConfidence, priceConfidence, sampleSize)
}

// Aggregate computes the weighted overall confidence, rounded to 2 decimals.
func Aggregate(config Config, visionConfidence, priceConfidence float64, sampleSize int) float64 {
	saturation := config.MarketSaturation
	if saturation <= 0 {
		saturation = 1
	}
	marketScore := math.Min(1.0, float64(sampleSize)/float64(saturation))
	if marketScore < 0 {
		marketScore = 0
	}

	overall := visionConfidence*config.VisionWeight +
		priceConfidence*config.PriceWeight +
		marketScore*config.MarketWeight

	return round2(overall)
}
