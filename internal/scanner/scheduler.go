// Package scanner schedules arbitrage evaluations across markets. One
// goroutine owns the whole loop: listing, evaluation, execution, and the
// per-market cooldown table.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// missCooldownCap bounds how long a quiet market is parked regardless of
// the configured hit cooldown.
const missCooldownCap = 60 * time.Second

// MarketLister resolves markets for scanning.
type MarketLister interface {
	Resolve(ctx context.Context, conditionID string) (domain.Market, error)
	ListTradable(ctx context.Context, pattern string) ([]domain.Market, error)
}

// Evaluator computes opportunities from live quotes.
type Evaluator interface {
	EvaluateMarket(ctx context.Context, market domain.Market) (domain.Opportunity, error)
	EvaluateEvent(ctx context.Context, eventSlug string, markets []domain.Market) (domain.Opportunity, error)
}

// Executor acts on actionable opportunities.
type Executor interface {
	Execute(ctx context.Context, opp domain.Opportunity, market domain.Market) error
}

// Config holds the scheduler's timing parameters.
type Config struct {
	Interval time.Duration
	// Cooldown parks a market after a detected opportunity (HIT).
	Cooldown time.Duration
	// ErrorPenalty parks a market after a failed evaluation.
	ErrorPenalty time.Duration
	Pattern      string
	DryRun       bool
}

// Scanner runs the scan loop.
type Scanner struct {
	markets  MarketLister
	eval     Evaluator
	engine   Executor
	store    domain.OpportunityStore // may be nil
	cfg      Config
	logger   *slog.Logger
	cooldown *cooldownTable

	// now is replaceable for tests.
	now func() time.Time
}

// New creates a Scanner. store may be nil to disable the detection log.
func New(markets MarketLister, eval Evaluator, engine Executor, store domain.OpportunityStore, cfg Config, logger *slog.Logger) *Scanner {
	return &Scanner{
		markets:  markets,
		eval:     eval,
		engine:   engine,
		store:    store,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "scanner")),
		cooldown: newCooldownTable(),
		now:      time.Now,
	}
}

// Watch scans all tradable markets in a loop until ctx is cancelled.
// Per-market evaluation errors are logged and penalized, never propagated;
// only listing failures and cancellation end the loop with an error.
func (s *Scanner) Watch(ctx context.Context) error {
	s.logger.Info("watch started",
		slog.Duration("interval", s.cfg.Interval),
		slog.Duration("cooldown", s.cfg.Cooldown),
		slog.String("pattern", s.cfg.Pattern),
		slog.Bool("dry_run", s.cfg.DryRun))

	for {
		start := s.now()

		if err := s.scanCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("scan cycle failed", slog.String("error", err.Error()))
		}

		elapsed := s.now().Sub(start)
		wait := s.cfg.Interval - elapsed
		if wait < 0 {
			wait = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// scanCycle runs one pass over the tradable markets.
func (s *Scanner) scanCycle(ctx context.Context) error {
	markets, err := s.markets.ListTradable(ctx, s.cfg.Pattern)
	if err != nil {
		return fmt.Errorf("scanner: list markets: %w", err)
	}

	now := s.now()
	scanned, skipped := 0, 0

	for i := range markets {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		market := markets[i]
		if s.cooldown.active(market.ConditionID, s.now()) {
			skipped++
			continue
		}
		scanned++
		s.scanMarket(ctx, market)
	}

	removed := s.cooldown.sweep(now)
	s.logger.Debug("cycle complete",
		slog.Int("scanned", scanned),
		slog.Int("skipped", skipped),
		slog.Int("cooldowns_swept", removed),
		slog.Int("cooldowns_live", s.cooldown.len()))

	return nil
}

// scanMarket evaluates one market and applies the matching cooldown.
func (s *Scanner) scanMarket(ctx context.Context, market domain.Market) {
	opp, err := s.eval.EvaluateMarket(ctx, market)
	if err != nil {
		s.logger.Warn("evaluation failed",
			slog.String("condition_id", market.ConditionID),
			slog.String("slug", market.Slug),
			slog.String("error", err.Error()))
		s.cooldown.set(market.ConditionID, s.now().Add(s.cfg.ErrorPenalty))
		return
	}

	if !opp.Actionable() {
		s.cooldown.set(market.ConditionID, s.now().Add(s.missCooldown()))
		return
	}

	s.handleHit(ctx, opp, market)
	s.cooldown.set(market.ConditionID, s.now().Add(s.cfg.Cooldown))
}

// handleHit records and, unless dry-running, executes an opportunity.
// Execution failures are logged here so one bad market cannot stop the
// watch loop.
func (s *Scanner) handleHit(ctx context.Context, opp domain.Opportunity, market domain.Market) {
	executed := false

	if s.cfg.DryRun {
		s.logger.Info("dry run, skipping execution",
			slog.String("opportunity_id", opp.ID),
			slog.String("slug", opp.Slug),
			slog.String("direction", string(opp.Direction)))
	} else if opp.Direction == domain.DirectionShort && opp.Event {
		s.logger.Info("event short detected, execution unsupported",
			slog.String("opportunity_id", opp.ID),
			slog.String("slug", opp.Slug))
	} else {
		if err := s.engine.Execute(ctx, opp, market); err != nil {
			s.logger.Error("execution failed",
				slog.String("opportunity_id", opp.ID),
				slog.String("slug", opp.Slug),
				slog.String("error", err.Error()))
		} else {
			executed = true
		}
	}

	s.record(ctx, opp, executed)
}

// SingleWatch polls one market (or one multi-market event) until it yields
// an actionable opportunity, then executes and returns it. It is the
// poll-until-decision counterpart to Watch.
func (s *Scanner) SingleWatch(ctx context.Context, conditionIDs []string, event bool) (domain.Opportunity, error) {
	markets, err := s.resolveAll(ctx, conditionIDs)
	if err != nil {
		return domain.Opportunity{}, err
	}

	for {
		opp, err := s.evaluateTarget(ctx, markets, event)
		if err != nil {
			s.logger.Warn("evaluation failed, retrying",
				slog.String("error", err.Error()))
		} else if opp.Actionable() {
			s.handleHit(ctx, opp, markets[0])
			return opp, nil
		}

		select {
		case <-ctx.Done():
			return domain.Opportunity{}, ctx.Err()
		case <-time.After(s.cfg.Interval):
		}
	}
}

// ScanOnce evaluates one market (or event) a single time. Unlike Watch,
// every failure surfaces to the caller.
func (s *Scanner) ScanOnce(ctx context.Context, conditionIDs []string, event bool) (domain.Opportunity, error) {
	markets, err := s.resolveAll(ctx, conditionIDs)
	if err != nil {
		return domain.Opportunity{}, err
	}

	opp, err := s.evaluateTarget(ctx, markets, event)
	if err != nil {
		return domain.Opportunity{}, err
	}

	if !opp.Actionable() {
		return opp, nil
	}

	switch {
	case s.cfg.DryRun:
		s.logger.Info("dry run, skipping execution",
			slog.String("opportunity_id", opp.ID),
			slog.String("direction", string(opp.Direction)))
		s.record(ctx, opp, false)
	case opp.Direction == domain.DirectionShort && opp.Event:
		s.logger.Info("event short detected, execution unsupported",
			slog.String("opportunity_id", opp.ID),
			slog.String("slug", opp.Slug))
		s.record(ctx, opp, false)
	default:
		if err := s.engine.Execute(ctx, opp, markets[0]); err != nil {
			s.record(ctx, opp, false)
			return opp, fmt.Errorf("scanner: execute: %w", err)
		}
		s.record(ctx, opp, true)
	}

	return opp, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (s *Scanner) resolveAll(ctx context.Context, conditionIDs []string) ([]domain.Market, error) {
	if len(conditionIDs) == 0 {
		return nil, fmt.Errorf("scanner: no condition IDs given")
	}
	markets := make([]domain.Market, 0, len(conditionIDs))
	for _, id := range conditionIDs {
		m, err := s.markets.Resolve(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("scanner: resolve %s: %w", id, err)
		}
		markets = append(markets, m)
	}
	return markets, nil
}

func (s *Scanner) evaluateTarget(ctx context.Context, markets []domain.Market, event bool) (domain.Opportunity, error) {
	if event {
		return s.eval.EvaluateEvent(ctx, markets[0].Slug, markets)
	}
	return s.eval.EvaluateMarket(ctx, markets[0])
}

// missCooldown is the short park applied when a market shows no edge.
func (s *Scanner) missCooldown() time.Duration {
	d := s.cfg.Cooldown / 6
	if d > missCooldownCap {
		d = missCooldownCap
	}
	return d
}

// record appends to the detection log, best effort.
func (s *Scanner) record(ctx context.Context, opp domain.Opportunity, executed bool) {
	if s.store == nil {
		return
	}
	rec := domain.OpportunityRecord{
		ID:          opp.ID,
		ConditionID: opp.ConditionID,
		Slug:        opp.Slug,
		Direction:   opp.Direction,
		TotalLong:   opp.TotalLong,
		TotalShort:  opp.TotalShort,
		Legs:        opp.Legs,
		Executed:    executed,
		DryRun:      s.cfg.DryRun,
		DetectedAt:  opp.DetectedAt,
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		s.logger.Warn("detection log write failed",
			slog.String("opportunity_id", opp.ID),
			slog.String("error", err.Error()))
	}
}
