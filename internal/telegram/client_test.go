package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/resaleoracle/internal/estimator"
	"github.com/rewired-gh/resaleoracle/internal/models"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"Hello_World", "Hello\\_World"},
		{"Test*bold*", "Test\\*bold\\*"},
		{"Price: $100.50", "Price: $100\\.50"},
		{"[link](url)", "\\[link\\]\\(url\\)"},
		{"~strikethrough~", "\\~strikethrough\\~"},
		{"`code`", "\\`code\\`"},
		{">blockquote", "\\>blockquote"},
		{"#header", "\\#header"},
		{"+plus-minus", "\\+plus\\-minus"},
		{"=equal|pipe", "\\=equal\\|pipe"},
		{"{brace}", "\\{brace\\}"},
		{"end!", "end\\!"},
		{"", ""},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := escapeMarkdownV2(tt.input)
			if result != tt.expected {
				t.Errorf("escapeMarkdownV2(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	// Chat ID is parsed before the bot token is checked, so no network call happens
	_, err := NewClient("", "not-a-number", 3, time.Second)
	if err == nil {
		t.Error("Expected error for invalid chat ID, got nil")
	}
}

type fakeEstimator struct {
	got   estimator.Request
	calls int
	err   error
}

func (f *fakeEstimator) Estimate(ctx context.Context, req estimator.Request) (*models.Estimate, error) {
	f.calls++
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return testEstimate(), nil
}

func testEstimate() *models.Estimate {
	return &models.Estimate{
		ID:        "est-1",
		Brand:     "h&m",
		ItemType:  "t-shirt",
		Size:      "M",
		Condition: models.ConditionVeryGood,
		SaleSpeed: models.SaleSpeedNormal,
		Recommendation: models.PriceRecommendation{
			SuggestedPrice: 12.5,
			PriceRange:     "8€ - 18€",
			MarketPosition: models.PositionAverage,
			SampleSize:     5,
		},
		OverallConfidence: 0.62,
		Origin:            models.OriginMarket,
	}
}

func TestParsePriceArgs(t *testing.T) {
	tests := []struct {
		args    string
		want    estimator.RawRequest
		wantErr bool
	}{
		{"nike hoodie M good", estimator.RawRequest{Brand: "nike", ItemType: "hoodie", Size: "M", Condition: "good"}, false},
		{"zara jeans s very_good fast", estimator.RawRequest{Brand: "zara", ItemType: "jeans", Size: "s", Condition: "very good", Speed: "fast"}, false},
		{"nike hoodie M", estimator.RawRequest{}, true},
		{"", estimator.RawRequest{}, true},
		{"a b c d e f", estimator.RawRequest{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.args, func(t *testing.T) {
			got, err := parsePriceArgs(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parsePriceArgs(%q) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parsePriceArgs(%q) = %+v, want %+v", tt.args, got, tt.want)
			}
		})
	}
}

func TestCommandReply_Price(t *testing.T) {
	est := &fakeEstimator{}
	reply, markdown := commandReply(context.Background(), est, "price", "nike hoodie m like_new premium")

	if !markdown {
		t.Error("expected MarkdownV2 reply")
	}
	if est.calls != 1 {
		t.Fatalf("expected one estimate call, got %d", est.calls)
	}
	if est.got.Condition != models.ConditionNewWithTags || est.got.SaleSpeed != models.SaleSpeedPremium || est.got.Size != "M" {
		t.Errorf("unexpected request: %+v", est.got)
	}
	if !strings.Contains(reply, "12\\.5€") {
		t.Errorf("reply missing escaped price: %s", reply)
	}
}

func TestCommandReply_InvalidPriceArgs(t *testing.T) {
	est := &fakeEstimator{}

	reply, markdown := commandReply(context.Background(), est, "price", "nike hoodie XXXL good")
	if markdown || !strings.Contains(reply, "is not one of") {
		t.Errorf("unexpected reply %q", reply)
	}

	reply, _ = commandReply(context.Background(), est, "price", "nike")
	if reply != priceUsage {
		t.Errorf("expected usage, got %q", reply)
	}
	if est.calls != 0 {
		t.Errorf("estimator must not be called on invalid input")
	}
}

func TestCommandReply_EstimatorError(t *testing.T) {
	reply, _ := commandReply(context.Background(), &fakeEstimator{err: errors.New("boom")}, "price", "nike hoodie M good")
	if !strings.Contains(reply, "Estimation failed") {
		t.Errorf("unexpected reply %q", reply)
	}
}

func TestCommandReply_Other(t *testing.T) {
	if reply, _ := commandReply(context.Background(), nil, "ping", ""); reply != "Pong" {
		t.Errorf("ping reply = %q", reply)
	}
	if reply, _ := commandReply(context.Background(), nil, "help", ""); !strings.Contains(reply, priceUsage) {
		t.Errorf("help reply = %q", reply)
	}
	if reply, _ := commandReply(context.Background(), nil, "unknown", ""); reply != "" {
		t.Errorf("unknown command should be ignored, got %q", reply)
	}
}

func TestFormatEstimate(t *testing.T) {
	e := testEstimate()
	msg := formatEstimate(e)

	for _, want := range []string{
		"*Price estimate*",
		"h&m t\\-shirt, size M, very good",
		"*12\\.5€*",
		"8€ \\- 18€",
		"Confidence: 62%",
		"Based on 5 sold listings",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("formatEstimate missing %q in:\n%s", want, msg)
		}
	}

	e.Recommendation.UsedFallback = true
	if msg := formatEstimate(e); !strings.Contains(msg, "generic estimate") {
		t.Errorf("fallback estimate not flagged:\n%s", msg)
	}

	e.Recommendation.UsedFallback = false
	e.Origin = models.OriginSynthetic
	if msg := formatEstimate(e); !strings.Contains(msg, "market data unavailable") {
		t.Errorf("synthetic estimate not flagged:\n%s", msg)
	}
}
