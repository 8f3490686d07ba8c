// Package resolver maps condition IDs and slug patterns to fully populated
// markets. Lookups go through a cache tier first because outcome token IDs
// are immutable once a condition is prepared.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// MarketSource is the read-only slice of the CLOB client the resolver needs.
type MarketSource interface {
	GetMarket(ctx context.Context, conditionID string) (domain.Market, error)
	GetSimplifiedMarkets(ctx context.Context) ([]domain.Market, error)
}

// Resolver resolves markets with a cache in front of the CLOB API.
type Resolver struct {
	source MarketSource
	cache  domain.MarketCache // may be nil
	logger *slog.Logger
}

// New creates a Resolver. cache may be nil to disable the cache tier.
func New(source MarketSource, cache domain.MarketCache, logger *slog.Logger) *Resolver {
	return &Resolver{
		source: source,
		cache:  cache,
		logger: logger.With(slog.String("component", "resolver")),
	}
}

// Resolve returns the market for a condition ID. Resolution order: cache,
// direct market lookup, then a full scan of the simplified listing. A miss
// on all three returns domain.ErrMarketNotFound.
func (r *Resolver) Resolve(ctx context.Context, conditionID string) (domain.Market, error) {
	if r.cache != nil {
		if m, err := r.cache.Get(ctx, conditionID); err == nil && len(m.Outcomes) > 0 {
			return m, nil
		}
	}

	m, err := r.source.GetMarket(ctx, conditionID)
	if err == nil && len(m.Outcomes) > 0 {
		r.store(ctx, m)
		return m, nil
	}
	if err != nil && !errors.Is(err, domain.ErrMarketNotFound) && !errors.Is(err, domain.ErrNotFound) {
		return domain.Market{}, err
	}

	// The detail endpoint misses markets it has not indexed yet; the
	// simplified listing is the source of truth.
	markets, err := r.source.GetSimplifiedMarkets(ctx)
	if err != nil {
		return domain.Market{}, fmt.Errorf("resolver: fallback listing: %w", err)
	}
	for i := range markets {
		if markets[i].ConditionID == conditionID {
			r.store(ctx, markets[i])
			return markets[i], nil
		}
	}

	return domain.Market{}, fmt.Errorf("resolver: condition %s: %w", conditionID, domain.ErrMarketNotFound)
}

// ListTradable returns all tradable markets, optionally filtered by a
// case-insensitive slug pattern. An empty pattern matches everything.
func (r *Resolver) ListTradable(ctx context.Context, pattern string) ([]domain.Market, error) {
	var re *regexp.Regexp
	if pattern != "" {
		var err error
		re, err = regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("resolver: pattern %q: %w", pattern, err)
		}
	}

	markets, err := r.source.GetSimplifiedMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolver: list markets: %w", err)
	}

	filtered := make([]domain.Market, 0, len(markets))
	for i := range markets {
		m := markets[i]
		if !m.Tradable() || len(m.Outcomes) == 0 {
			continue
		}
		if re != nil && !re.MatchString(m.Slug) {
			continue
		}
		filtered = append(filtered, m)
	}

	r.logger.Debug("listed tradable markets",
		slog.Int("total", len(markets)),
		slog.Int("matched", len(filtered)),
		slog.String("pattern", pattern))

	return filtered, nil
}

// store writes through to the cache, logging but not propagating failures.
func (r *Resolver) store(ctx context.Context, m domain.Market) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, m); err != nil {
		r.logger.Warn("market cache write failed",
			slog.String("condition_id", m.ConditionID),
			slog.String("error", err.Error()))
	}
}
