package pricing

import "github.com/rewired-gh/resaleoracle/internal/models"

// Config carries the multiplier tables and aggregation weights.
// It is built once at startup and never mutated afterwards.
type Config struct {
	ConditionMultipliers map[models.Condition]float64
	SpeedMultipliers     map[models.SaleSpeed]float64

	VisionWeight float64
	PriceWeight  float64
	MarketWeight float64
	// MarketSaturation is the sample size at which the market term reaches 1.
	MarketSaturation int
}

// DefaultConfig returns the stock multipliers and weights.
func DefaultConfig() Config {
	return Config{
		ConditionMultipliers: map[models.Condition]float64{
			models.ConditionNewWithTags:  1.2,
			models.ConditionVeryGood:     1.0,
			models.ConditionGood:         0.85,
			models.ConditionSatisfactory: 0.7,
			models.ConditionDamaged:      0.5,
		},
		SpeedMultipliers: map[models.SaleSpeed]float64{
			models.SaleSpeedFast:    0.85,
			models.SaleSpeedNormal:  1.0,
			models.SaleSpeedPremium: 1.15,
		},
		VisionWeight:     0.4,
		PriceWeight:      0.4,
		MarketWeight:     0.2,
		MarketSaturation: 20,
	}
}

// ConditionMultiplier returns the multiplier for cond, or 1.0 if cond is unknown.
func (c Config) ConditionMultiplier(cond models.Condition) float64 {
	if m, ok := c.ConditionMultipliers[cond]; ok {
		return m
	}
	return 1.0
}

// SpeedMultiplier returns the multiplier for speed, or 1.0 if speed is unknown.
func (c Config) SpeedMultiplier(speed models.SaleSpeed) float64 {
	if m, ok := c.SpeedMultipliers[speed]; ok {
		return m
	}
	return 1.0
}
