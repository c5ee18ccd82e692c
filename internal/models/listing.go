// Package models defines the core domain entities: comparable listings, price
// distributions, recommendations, and persisted estimates.
package models

import (
	"errors"
	"math"
	"strings"
	"time"
)

// Condition is the wear state of a clothing item.
type Condition string

const (
	ConditionNewWithTags  Condition = "new_with_tags"
	ConditionVeryGood     Condition = "very_good"
	ConditionGood         Condition = "good"
	ConditionSatisfactory Condition = "satisfactory"
	ConditionDamaged      Condition = "damaged"
)

// Conditions lists the condition domain from best to worst.
var Conditions = []Condition{
	ConditionNewWithTags,
	ConditionVeryGood,
	ConditionGood,
	ConditionSatisfactory,
	ConditionDamaged,
}

// conditionAliases maps canonical keys, Vinted status codes, Italian UI labels
// and common English phrasings to a Condition.
var conditionAliases = map[string]Condition{
	"new_with_tags":       ConditionNewWithTags,
	"brand_new_with_tags": ConditionNewWithTags,
	"nuovo con etichetta": ConditionNewWithTags,
	"new with tags":       ConditionNewWithTags,
	"new":                 ConditionNewWithTags,
	"like new":            ConditionNewWithTags,
	"like_new":            ConditionNewWithTags,
	"very_good":           ConditionVeryGood,
	"very good":           ConditionVeryGood,
	"ottimo":              ConditionVeryGood,
	"good":                ConditionGood,
	"buono":               ConditionGood,
	"satisfactory":        ConditionSatisfactory,
	"fair":                ConditionSatisfactory,
	"discreto":            ConditionSatisfactory,
	"damaged":             ConditionDamaged,
	"poor":                ConditionDamaged,
	"rovinato":            ConditionDamaged,
}

// ParseCondition maps a raw condition string to a Condition.
// The second return value is false when the input is not recognised.
func ParseCondition(raw string) (Condition, bool) {
	c, ok := conditionAliases[strings.ToLower(strings.TrimSpace(raw))]
	return c, ok
}

// SaleSpeed is the pricing strategy chosen by the seller.
type SaleSpeed string

const (
	SaleSpeedFast    SaleSpeed = "fast"
	SaleSpeedNormal  SaleSpeed = "normal"
	SaleSpeedPremium SaleSpeed = "premium"
)

// ParseSaleSpeed returns the matching strategy, defaulting to normal.
func ParseSaleSpeed(raw string) SaleSpeed {
	switch s := SaleSpeed(strings.ToLower(strings.TrimSpace(raw))); s {
	case SaleSpeedFast, SaleSpeedNormal, SaleSpeedPremium:
		return s
	default:
		return SaleSpeedNormal
	}
}

// Sizes is the closed set of accepted clothing sizes.
var Sizes = []string{"XS", "S", "M", "L", "XL", "XXL", "UNICA"}

var sizeAliases = map[string]string{
	"xs": "XS", "extra small": "XS",
	"s": "S", "small": "S",
	"m": "M", "medium": "M",
	"l": "L", "large": "L",
	"xl": "XL", "extra large": "XL",
	"xxl": "XXL", "2xl": "XXL", "extra extra large": "XXL",
	"unica": "UNICA", "one size": "UNICA", "os": "UNICA",
}

// NormalizeSize maps a raw size to its canonical upper-case form.
// Unknown sizes are upper-cased and returned as-is.
func NormalizeSize(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if s, ok := sizeAliases[key]; ok {
		return s
	}
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ComparableListing is a single historical listing used as market evidence.
type ComparableListing struct {
	Title     string     `json:"title"`
	Price     float64    `json:"price"`
	Condition Condition  `json:"condition"`
	SourceID  string     `json:"source_id"`
	Brand     string     `json:"brand"`
	Size      string     `json:"size"`
	Sold      bool       `json:"sold"`
	PostedAt  *time.Time `json:"posted_at,omitempty"`
}

// Eligible reports whether the listing may enter price statistics.
func (l ComparableListing) Eligible() bool {
	if math.IsNaN(l.Price) || math.IsInf(l.Price, 0) {
		return false
	}
	return l.Sold && l.Price > 0
}

// Validate checks listing field constraints.
func (l ComparableListing) Validate() error {
	if math.IsNaN(l.Price) || math.IsInf(l.Price, 0) {
		return errors.New("price must be a finite number")
	}
	if l.Price < 0 {
		return errors.New("price must not be negative")
	}
	if l.SourceID == "" {
		return errors.New("source ID must not be empty")
	}
	return nil
}

// EligiblePrices returns the prices of the eligible subset, in input order.
func EligiblePrices(listings []ComparableListing) []float64 {
	prices := make([]float64, 0, len(listings))
	for _, l := range listings {
		if l.Eligible() {
			prices = append(prices, l.Price)
		}
	}
	return prices
}
