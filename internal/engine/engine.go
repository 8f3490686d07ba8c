// Package engine turns detected opportunities into orders. LONG entries
// are a single atomic FOK batch; SHORT entries first mint the outcome set
// on-chain and only sell once the split transaction has confirmed.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// rateLimitKey buckets all order submissions under one limiter window.
const rateLimitKey = "orders"

// OrderClient is the slice of the CLOB client the engine needs.
type OrderClient interface {
	CreateOrder(tokenID string, side domain.Side, price, size float64, orderType domain.OrderType) (domain.Order, error)
	PostOrders(ctx context.Context, orders []domain.Order) (domain.BatchResult, error)
}

// Splitter mints full outcome sets on-chain.
type Splitter interface {
	SplitPosition(ctx context.Context, conditionID string, outcomeCount int) (string, error)
	WaitForReceipt(ctx context.Context, txHash string) error
}

// Notifier pushes execution events to external channels.
type Notifier interface {
	Notify(ctx context.Context, event, message string) error
}

// Config holds the engine's fixed sizing. Sizing is deliberately constant
// per trade rather than balance- or liquidity-aware.
type Config struct {
	LongSize  float64
	ShortSize float64
	// Tick shifts limit prices toward the spread to improve fill odds:
	// added on buys, subtracted on sells.
	Tick float64
	// OrdersPerSecond bounds batch submissions through the rate limiter.
	OrdersPerSecond int
}

// Engine executes actionable opportunities.
type Engine struct {
	orders   OrderClient
	splitter Splitter
	limiter  domain.RateLimiter // may be nil
	notifier Notifier           // may be nil
	cfg      Config
	logger   *slog.Logger
}

// New creates an Engine. limiter and notifier may be nil.
func New(orders OrderClient, splitter Splitter, limiter domain.RateLimiter, notifier Notifier, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		orders:   orders,
		splitter: splitter,
		limiter:  limiter,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "engine")),
	}
}

// Execute routes an actionable opportunity to the matching strategy. It
// returns an error for non-actionable or event-SHORT opportunities.
func (e *Engine) Execute(ctx context.Context, opp domain.Opportunity, market domain.Market) error {
	switch opp.Direction {
	case domain.DirectionLong:
		return e.ExecuteLong(ctx, opp)
	case domain.DirectionShort:
		if opp.Event {
			return fmt.Errorf("engine: event SHORT %s is detection-only", opp.Slug)
		}
		return e.ExecuteShort(ctx, opp, market)
	default:
		return fmt.Errorf("engine: opportunity %s is not actionable", opp.ID)
	}
}

// ExecuteLong buys every leg of the opportunity in one FOK batch. The batch
// either fills completely or leaves no position behind.
func (e *Engine) ExecuteLong(ctx context.Context, opp domain.Opportunity) error {
	if len(opp.Legs) == 0 {
		return fmt.Errorf("engine: long %s has no legs: %w", opp.ID, domain.ErrInvalidOrder)
	}

	orders := make([]domain.Order, 0, len(opp.Legs))
	for _, leg := range opp.Legs {
		order, err := e.orders.CreateOrder(leg.TokenID, domain.SideBuy, leg.Price+e.cfg.Tick, e.cfg.LongSize, domain.OrderTypeFOK)
		if err != nil {
			return fmt.Errorf("engine: build long leg %s: %w", leg.TokenID, err)
		}
		orders = append(orders, order)
	}

	if err := e.submitBatch(ctx, opp, orders); err != nil {
		return err
	}

	e.logger.Info("long executed",
		slog.String("opportunity_id", opp.ID),
		slog.String("slug", opp.Slug),
		slog.Int("legs", len(orders)),
		slog.Float64("total_long", opp.TotalLong))
	e.notify(ctx, "arb_executed", fmt.Sprintf("LONG %s: bought %d legs at %.4f combined", opp.Slug, len(orders), opp.TotalLong))

	return nil
}

// ExecuteShort mints a full outcome set by splitting collateral on-chain,
// waits for the split to confirm, and then sells every outcome in one FOK
// batch. A failed or reverted split aborts before any order is submitted:
// selling unminted tokens would leave a naked short.
func (e *Engine) ExecuteShort(ctx context.Context, opp domain.Opportunity, market domain.Market) error {
	if opp.Event {
		return fmt.Errorf("engine: event SHORT %s is detection-only", opp.Slug)
	}
	if len(opp.Legs) == 0 {
		return fmt.Errorf("engine: short %s has no legs: %w", opp.ID, domain.ErrInvalidOrder)
	}
	if e.splitter == nil {
		return fmt.Errorf("engine: short %s: no splitter configured", opp.ID)
	}

	txHash, err := e.splitter.SplitPosition(ctx, opp.ConditionID, len(market.Outcomes))
	if err != nil {
		e.notify(ctx, "settlement_failed", fmt.Sprintf("SHORT %s: split failed: %v", opp.Slug, err))
		return fmt.Errorf("engine: split %s: %w", opp.ConditionID, err)
	}

	if err := e.splitter.WaitForReceipt(ctx, txHash); err != nil {
		e.notify(ctx, "settlement_failed", fmt.Sprintf("SHORT %s: split %s did not confirm: %v", opp.Slug, txHash, err))
		return fmt.Errorf("engine: confirm split %s: %w", txHash, err)
	}

	orders := make([]domain.Order, 0, len(opp.Legs))
	for _, leg := range opp.Legs {
		order, err := e.orders.CreateOrder(leg.TokenID, domain.SideSell, leg.Price-e.cfg.Tick, e.cfg.ShortSize, domain.OrderTypeFOK)
		if err != nil {
			return fmt.Errorf("engine: build short leg %s: %w", leg.TokenID, err)
		}
		orders = append(orders, order)
	}

	if err := e.submitBatch(ctx, opp, orders); err != nil {
		return err
	}

	e.logger.Info("short executed",
		slog.String("opportunity_id", opp.ID),
		slog.String("slug", opp.Slug),
		slog.String("split_tx", txHash),
		slog.Int("legs", len(orders)),
		slog.Float64("total_short", opp.TotalShort))
	e.notify(ctx, "arb_executed", fmt.Sprintf("SHORT %s: split %s confirmed, sold %d legs at %.4f combined", opp.Slug, txHash, len(orders), opp.TotalShort))

	return nil
}

// submitBatch rate-limits, posts, and verifies a FOK batch.
func (e *Engine) submitBatch(ctx context.Context, opp domain.Opportunity, orders []domain.Order) error {
	if err := e.waitForSlot(ctx, len(orders)); err != nil {
		return fmt.Errorf("engine: rate limit: %w", err)
	}

	batch, err := e.orders.PostOrders(ctx, orders)
	if err != nil {
		return fmt.Errorf("engine: post batch for %s: %w", opp.ID, err)
	}

	if !batch.AllAccepted() {
		rejected := 0
		for _, r := range batch.Orders {
			if !r.Success {
				rejected++
			}
		}
		return fmt.Errorf("engine: batch for %s: %d/%d legs rejected: %w", opp.ID, rejected, len(batch.Orders), domain.ErrOrderRejected)
	}

	return nil
}

// waitForSlot blocks until the limiter admits n orders or ctx is done.
func (e *Engine) waitForSlot(ctx context.Context, n int) error {
	if e.limiter == nil {
		return nil
	}
	for i := 0; i < n; i++ {
		for {
			ok, err := e.limiter.Allow(ctx, rateLimitKey, e.cfg.OrdersPerSecond, time.Second)
			if err != nil {
				// A broken limiter must not block trading.
				e.logger.Warn("rate limiter unavailable", slog.String("error", err.Error()))
				return nil
			}
			if ok {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
		}
	}
	return nil
}

// notify sends a best-effort notification.
func (e *Engine) notify(ctx context.Context, event, message string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, event, message); err != nil {
		e.logger.Warn("notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()))
	}
}
