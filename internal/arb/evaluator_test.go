package arb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// fakeQuotes serves canned prices keyed by "tokenID|side".
type fakeQuotes struct {
	prices map[string]float64
	errs   map[string]error
	calls  int
}

func (f *fakeQuotes) GetPrice(_ context.Context, tokenID string, side domain.Side) (domain.Quote, error) {
	f.calls++
	key := fmt.Sprintf("%s|%s", tokenID, side)
	if err, ok := f.errs[key]; ok {
		return domain.Quote{}, err
	}
	price, ok := f.prices[key]
	if !ok {
		return domain.Quote{}, domain.ErrQuoteUnavailable
	}
	return domain.Quote{TokenID: tokenID, Side: side, Price: price}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func binaryMarket() domain.Market {
	return domain.Market{
		ConditionID:     "0xcond",
		Slug:            "will-it-rain",
		Active:          true,
		AcceptingOrders: true,
		Outcomes: []domain.Outcome{
			{ConditionID: "0xcond", Label: "Yes", TokenID: "tok-yes"},
			{ConditionID: "0xcond", Label: "No", TokenID: "tok-no"},
		},
	}
}

func TestEvaluateMarketLong(t *testing.T) {
	quotes := &fakeQuotes{prices: map[string]float64{
		"tok-yes|SELL": 0.40,
		"tok-no|SELL":  0.45,
		"tok-yes|BUY":  0.38,
		"tok-no|BUY":   0.43,
	}}
	eval := NewEvaluator(quotes, discardLogger())
	eval.now = func() time.Time { return time.Unix(1700000000, 0) }

	opp, err := eval.EvaluateMarket(context.Background(), binaryMarket())
	require.NoError(t, err)

	assert.Equal(t, domain.DirectionLong, opp.Direction)
	assert.InDelta(t, 0.85, opp.TotalLong, 1e-9)
	require.Len(t, opp.Legs, 2)
	assert.Equal(t, "tok-yes", opp.Legs[0].TokenID)
	assert.InDelta(t, 0.40, opp.Legs[0].Price, 1e-9)
	assert.InDelta(t, 0.45, opp.Legs[1].Price, 1e-9)
	assert.False(t, opp.Event)
	assert.True(t, opp.Actionable())
}

func TestEvaluateMarketShort(t *testing.T) {
	quotes := &fakeQuotes{prices: map[string]float64{
		"tok-yes|SELL": 0.55,
		"tok-no|SELL":  0.56,
		"tok-yes|BUY":  0.53,
		"tok-no|BUY":   0.52,
	}}
	eval := NewEvaluator(quotes, discardLogger())

	opp, err := eval.EvaluateMarket(context.Background(), binaryMarket())
	require.NoError(t, err)

	assert.Equal(t, domain.DirectionShort, opp.Direction)
	assert.InDelta(t, 1.05, opp.TotalShort, 1e-9)
	require.Len(t, opp.Legs, 2)
	// SHORT legs carry bid-side prices.
	assert.InDelta(t, 0.53, opp.Legs[0].Price, 1e-9)
}

func TestEvaluateMarketLongWinsWhenBothClear(t *testing.T) {
	// Crossed book: asks sum below the long bound while bids sum above
	// the short bound. LONG is checked first.
	quotes := &fakeQuotes{prices: map[string]float64{
		"tok-yes|SELL": 0.45,
		"tok-no|SELL":  0.50,
		"tok-yes|BUY":  0.52,
		"tok-no|BUY":   0.51,
	}}
	eval := NewEvaluator(quotes, discardLogger())

	opp, err := eval.EvaluateMarket(context.Background(), binaryMarket())
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionLong, opp.Direction)
}

func TestEvaluateMarketNoEdge(t *testing.T) {
	quotes := &fakeQuotes{prices: map[string]float64{
		"tok-yes|SELL": 0.50,
		"tok-no|SELL":  0.50,
		"tok-yes|BUY":  0.49,
		"tok-no|BUY":   0.49,
	}}
	eval := NewEvaluator(quotes, discardLogger())

	opp, err := eval.EvaluateMarket(context.Background(), binaryMarket())
	require.NoError(t, err)

	assert.Equal(t, domain.DirectionNone, opp.Direction)
	assert.Empty(t, opp.Legs)
	assert.False(t, opp.Actionable())
}

func TestEvaluateMarketBoundaryValues(t *testing.T) {
	tests := []struct {
		name      string
		asks      [2]float64
		bids      [2]float64
		direction domain.Direction
	}{
		{"long at exactly 0.98", [2]float64{0.49, 0.49}, [2]float64{0.40, 0.40}, domain.DirectionLong},
		{"no long just above 0.98", [2]float64{0.49, 0.491}, [2]float64{0.40, 0.40}, domain.DirectionNone},
		{"short at exactly 1.02", [2]float64{0.60, 0.60}, [2]float64{0.51, 0.51}, domain.DirectionShort},
		{"no short just below 1.02", [2]float64{0.60, 0.60}, [2]float64{0.51, 0.509}, domain.DirectionNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quotes := &fakeQuotes{prices: map[string]float64{
				"tok-yes|SELL": tt.asks[0],
				"tok-no|SELL":  tt.asks[1],
				"tok-yes|BUY":  tt.bids[0],
				"tok-no|BUY":   tt.bids[1],
			}}
			eval := NewEvaluator(quotes, discardLogger())

			opp, err := eval.EvaluateMarket(context.Background(), binaryMarket())
			require.NoError(t, err)
			assert.Equal(t, tt.direction, opp.Direction)
		})
	}
}

func TestEvaluateMarketQuoteError(t *testing.T) {
	quotes := &fakeQuotes{
		prices: map[string]float64{"tok-yes|SELL": 0.40},
		errs:   map[string]error{"tok-yes|BUY": domain.ErrQuoteUnavailable},
	}
	eval := NewEvaluator(quotes, discardLogger())

	_, err := eval.EvaluateMarket(context.Background(), binaryMarket())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrQuoteUnavailable))
}

func TestEvaluateMarketTooFewOutcomes(t *testing.T) {
	eval := NewEvaluator(&fakeQuotes{}, discardLogger())

	market := binaryMarket()
	market.Outcomes = market.Outcomes[:1]

	_, err := eval.EvaluateMarket(context.Background(), market)
	require.Error(t, err)
}

func eventMarkets(asks []float64) ([]domain.Market, *fakeQuotes) {
	quotes := &fakeQuotes{prices: map[string]float64{}}
	markets := make([]domain.Market, 0, len(asks))
	for i, ask := range asks {
		tok := fmt.Sprintf("tok-%d", i)
		quotes.prices[tok+"|SELL"] = ask
		quotes.prices[tok+"|BUY"] = ask - 0.005
		markets = append(markets, domain.Market{
			ConditionID: fmt.Sprintf("0xcond-%d", i),
			Slug:        fmt.Sprintf("candidate-%d", i),
			Outcomes: []domain.Outcome{
				{Label: "Yes", TokenID: tok},
				{Label: "No", TokenID: fmt.Sprintf("tok-%d-no", i)},
			},
		})
	}
	return markets, quotes
}

func TestEvaluateEventLongKeepsTopLegs(t *testing.T) {
	asks := []float64{0.20, 0.05, 0.10, 0.15, 0.01, 0.25, 0.02, 0.12}
	markets, quotes := eventMarkets(asks)
	eval := NewEvaluator(quotes, discardLogger())

	opp, err := eval.EvaluateEvent(context.Background(), "election-2028", markets)
	require.NoError(t, err)

	assert.Equal(t, domain.DirectionLong, opp.Direction)
	assert.True(t, opp.Event)
	assert.InDelta(t, 0.90, opp.TotalLong, 1e-9)

	// Top five legs by price, descending.
	require.Len(t, opp.Legs, 5)
	want := []float64{0.25, 0.20, 0.15, 0.12, 0.10}
	for i, leg := range opp.Legs {
		assert.InDelta(t, want[i], leg.Price, 1e-9, "leg %d", i)
	}
}

func TestEvaluateEventOnlyUsesFirstOutcome(t *testing.T) {
	markets, quotes := eventMarkets([]float64{0.30, 0.30})
	// Poison the second outcomes: they must never be quoted.
	quotes.errs = map[string]error{}
	for i := range markets {
		noTok := markets[i].Outcomes[1].TokenID
		quotes.errs[noTok+"|SELL"] = errors.New("unexpected quote")
		quotes.errs[noTok+"|BUY"] = errors.New("unexpected quote")
	}
	eval := NewEvaluator(quotes, discardLogger())

	opp, err := eval.EvaluateEvent(context.Background(), "two-horse", markets)
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionLong, opp.Direction)
	assert.Len(t, opp.Legs, 2)
}

func TestEvaluateEventShortIsDetectionOnly(t *testing.T) {
	quotes := &fakeQuotes{prices: map[string]float64{
		"tok-0|SELL": 0.55, "tok-0|BUY": 0.54,
		"tok-1|SELL": 0.56, "tok-1|BUY": 0.55,
	}}
	markets := []domain.Market{
		{ConditionID: "0xc0", Outcomes: []domain.Outcome{{TokenID: "tok-0"}}},
		{ConditionID: "0xc1", Outcomes: []domain.Outcome{{TokenID: "tok-1"}}},
	}
	eval := NewEvaluator(quotes, discardLogger())

	opp, err := eval.EvaluateEvent(context.Background(), "overpriced-event", markets)
	require.NoError(t, err)

	assert.Equal(t, domain.DirectionShort, opp.Direction)
	assert.True(t, opp.Event)
	assert.Empty(t, opp.Legs, "event SHORT must not carry executable legs")
}
