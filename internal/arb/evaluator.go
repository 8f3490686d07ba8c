// Package arb evaluates markets for arbitrage. A full outcome set always
// settles at exactly 1.00 USDC, so buying every outcome below that payout
// (LONG) or minting and selling every outcome above it (SHORT) locks in
// the difference.
package arb

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

const (
	// longThreshold is the maximum combined ask for a LONG entry. The gap
	// to 1.00 must cover fees and slippage.
	longThreshold = 0.98

	// shortThreshold is the minimum combined bid for a SHORT entry.
	shortThreshold = 1.02

	// maxEventLegs caps how many legs a multi-outcome LONG takes, keeping
	// the priciest legs where the edge concentrates.
	maxEventLegs = 5
)

// QuoteSource provides live book prices. Evaluation always re-fetches;
// cached prices are never trusted for a trade decision.
type QuoteSource interface {
	GetPrice(ctx context.Context, tokenID string, side domain.Side) (domain.Quote, error)
}

// Evaluator computes arbitrage opportunities from live quotes.
type Evaluator struct {
	quotes QuoteSource
	logger *slog.Logger
	now    func() time.Time
}

// NewEvaluator creates an Evaluator backed by the given quote source.
func NewEvaluator(quotes QuoteSource, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		quotes: quotes,
		logger: logger.With(slog.String("component", "evaluator")),
		now:    time.Now,
	}
}

// EvaluateMarket checks a single market for arbitrage across all of its
// outcomes. The LONG side is checked first: a combined ask at or below the
// long threshold wins even when the combined bid also clears the short
// threshold, because LONG needs no on-chain settlement.
func (e *Evaluator) EvaluateMarket(ctx context.Context, market domain.Market) (domain.Opportunity, error) {
	if len(market.Outcomes) < 2 {
		return domain.Opportunity{}, fmt.Errorf("arb: market %s has %d outcomes, need at least 2", market.ConditionID, len(market.Outcomes))
	}

	var totalLong, totalShort float64
	longLegs := make([]domain.Leg, 0, len(market.Outcomes))
	shortLegs := make([]domain.Leg, 0, len(market.Outcomes))

	for _, outcome := range market.Outcomes {
		ask, err := e.quotes.GetPrice(ctx, outcome.TokenID, domain.SideSell)
		if err != nil {
			return domain.Opportunity{}, fmt.Errorf("arb: market %s outcome %q: %w", market.ConditionID, outcome.Label, err)
		}
		bid, err := e.quotes.GetPrice(ctx, outcome.TokenID, domain.SideBuy)
		if err != nil {
			return domain.Opportunity{}, fmt.Errorf("arb: market %s outcome %q: %w", market.ConditionID, outcome.Label, err)
		}

		totalLong += ask.Price
		totalShort += bid.Price
		longLegs = append(longLegs, domain.Leg{TokenID: outcome.TokenID, Price: ask.Price})
		shortLegs = append(shortLegs, domain.Leg{TokenID: outcome.TokenID, Price: bid.Price})
	}

	opp := domain.Opportunity{
		ID:          uuid.NewString(),
		ConditionID: market.ConditionID,
		Slug:        market.Slug,
		Direction:   domain.DirectionNone,
		TotalLong:   totalLong,
		TotalShort:  totalShort,
		DetectedAt:  e.now(),
	}

	switch {
	case totalLong <= longThreshold:
		opp.Direction = domain.DirectionLong
		opp.Legs = longLegs
	case totalShort >= shortThreshold:
		opp.Direction = domain.DirectionShort
		opp.Legs = shortLegs
	}

	e.logEvaluation(opp)
	return opp, nil
}

// EvaluateEvent checks a multi-market event for arbitrage across the first
// outcome of each member market. Exactly one member resolves YES, so the
// first-outcome tokens form a synthetic full set.
//
// SHORT detection on events is reported but carries no executable legs:
// shorting would require splitting against every member condition, which
// the engine does not support.
func (e *Evaluator) EvaluateEvent(ctx context.Context, eventSlug string, markets []domain.Market) (domain.Opportunity, error) {
	if len(markets) < 2 {
		return domain.Opportunity{}, fmt.Errorf("arb: event %s has %d markets, need at least 2", eventSlug, len(markets))
	}

	var totalLong, totalShort float64
	longLegs := make([]domain.Leg, 0, len(markets))

	for _, market := range markets {
		if len(market.Outcomes) == 0 {
			return domain.Opportunity{}, fmt.Errorf("arb: event %s member %s has no outcomes", eventSlug, market.ConditionID)
		}
		primary := market.Outcomes[0]

		ask, err := e.quotes.GetPrice(ctx, primary.TokenID, domain.SideSell)
		if err != nil {
			return domain.Opportunity{}, fmt.Errorf("arb: event %s member %s: %w", eventSlug, market.ConditionID, err)
		}
		bid, err := e.quotes.GetPrice(ctx, primary.TokenID, domain.SideBuy)
		if err != nil {
			return domain.Opportunity{}, fmt.Errorf("arb: event %s member %s: %w", eventSlug, market.ConditionID, err)
		}

		totalLong += ask.Price
		totalShort += bid.Price
		longLegs = append(longLegs, domain.Leg{TokenID: primary.TokenID, Price: ask.Price})
	}

	opp := domain.Opportunity{
		ID:         uuid.NewString(),
		Slug:       eventSlug,
		Direction:  domain.DirectionNone,
		TotalLong:  totalLong,
		TotalShort: totalShort,
		Event:      true,
		DetectedAt: e.now(),
	}

	switch {
	case totalLong <= longThreshold:
		opp.Direction = domain.DirectionLong
		opp.Legs = topLegs(longLegs, maxEventLegs)
	case totalShort >= shortThreshold:
		opp.Direction = domain.DirectionShort
		// Detection only. No legs are attached so the engine cannot act.
	}

	e.logEvaluation(opp)
	return opp, nil
}

// topLegs returns up to n legs sorted by price descending.
func topLegs(legs []domain.Leg, n int) []domain.Leg {
	sorted := make([]domain.Leg, len(legs))
	copy(sorted, legs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Price > sorted[j].Price })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func (e *Evaluator) logEvaluation(opp domain.Opportunity) {
	attrs := []any{
		slog.String("slug", opp.Slug),
		slog.String("direction", string(opp.Direction)),
		slog.Float64("total_long", opp.TotalLong),
		slog.Float64("total_short", opp.TotalShort),
	}
	if opp.Actionable() {
		e.logger.Info("arbitrage detected", attrs...)
	} else {
		e.logger.Debug("no edge", attrs...)
	}
}
