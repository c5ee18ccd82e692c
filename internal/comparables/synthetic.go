package comparables

import (
	"fmt"
	"hash/fnv"
	"math/rand"

	"github.com/rewired-gh/resaleoracle/internal/models"
)

// Synthesizer produces placeholder listings when no market data is available.
type Synthesizer interface {
	Generate(brand, itemType, size string) []models.ComparableListing
}

var basePrices = map[string][]float64{
	"felpa":   {12, 15, 18, 20, 25, 30},
	"t-shirt": {8, 10, 12, 15, 18},
	"jeans":   {20, 25, 30, 35, 40},
	"scarpe":  {25, 30, 40, 50, 60},
}

var genericPrices = []float64{10, 15, 20, 25}

var syntheticConditions = []models.Condition{
	models.ConditionVeryGood,
	models.ConditionGood,
	models.ConditionSatisfactory,
}

const maxPriceJitter = 3

// SeededSynthesizer derives its RNG from a fixed seed and the query, so the
// same query always yields the same listings and calls share no state.
type SeededSynthesizer struct {
	seed int64
}

// NewSeededSynthesizer returns a Synthesizer deterministic for seed.
func NewSeededSynthesizer(seed int64) *SeededSynthesizer {
	return &SeededSynthesizer{seed: seed}
}

// BasePrices returns the unperturbed price list used for itemType.
func BasePrices(itemType string) []float64 {
	if prices, ok := basePrices[itemType]; ok {
		return prices
	}
	return genericPrices
}

// Generate returns one sold listing per base price of itemType, each price
// shifted by an integer in [-3, +3] and never below 1.
func (s *SeededSynthesizer) Generate(brand, itemType, size string) []models.ComparableListing {
	rng := rand.New(rand.NewSource(s.seedFor(brand, itemType, size)))
	prices := BasePrices(itemType)

	listings := make([]models.ComparableListing, 0, len(prices))
	for i, base := range prices {
		price := base + float64(rng.Intn(2*maxPriceJitter+1)-maxPriceJitter)
		if price < 1 {
			price = 1
		}
		listings = append(listings, models.ComparableListing{
			Title:     fmt.Sprintf("%s %s - size %s", brand, itemType, size),
			Price:     price,
			Condition: syntheticConditions[rng.Intn(len(syntheticConditions))],
			SourceID:  fmt.Sprintf("synthetic:%s:%d:%07d", itemType, i, rng.Intn(9000000)+1000000),
			Brand:     brand,
			Size:      size,
			Sold:      true,
		})
	}
	return listings
}

func (s *SeededSynthesizer) seedFor(brand, itemType, size string) int64 {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%s\x00%s\x00%s", itemType, brand, size)
	return s.seed ^ int64(h.Sum64())
}
