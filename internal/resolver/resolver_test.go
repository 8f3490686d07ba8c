package resolver

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

type fakeSource struct {
	markets     map[string]domain.Market
	listing     []domain.Market
	listErr     error
	detailErr   error
	detailCalls int
	listCalls   int
}

func (f *fakeSource) GetMarket(_ context.Context, conditionID string) (domain.Market, error) {
	f.detailCalls++
	if f.detailErr != nil {
		return domain.Market{}, f.detailErr
	}
	m, ok := f.markets[conditionID]
	if !ok {
		return domain.Market{}, domain.ErrMarketNotFound
	}
	return m, nil
}

func (f *fakeSource) GetSimplifiedMarkets(context.Context) ([]domain.Market, error) {
	f.listCalls++
	return f.listing, f.listErr
}

type fakeCache struct {
	entries map[string]domain.Market
	setErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]domain.Market)}
}

func (f *fakeCache) Get(_ context.Context, conditionID string) (domain.Market, error) {
	m, ok := f.entries[conditionID]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeCache) Set(_ context.Context, m domain.Market) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.entries[m.ConditionID] = m
	return nil
}

func market(id, slug string) domain.Market {
	return domain.Market{
		ConditionID:     id,
		Slug:            slug,
		Active:          true,
		AcceptingOrders: true,
		Outcomes: []domain.Outcome{
			{ConditionID: id, Label: "Yes", TokenID: "tok-" + id + "-yes"},
			{ConditionID: id, Label: "No", TokenID: "tok-" + id + "-no"},
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestResolveCacheHit(t *testing.T) {
	src := &fakeSource{}
	cache := newFakeCache()
	cache.entries["0xc1"] = market("0xc1", "cached-market")

	r := New(src, cache, discardLogger())
	m, err := r.Resolve(context.Background(), "0xc1")
	require.NoError(t, err)

	assert.Equal(t, "cached-market", m.Slug)
	assert.Zero(t, src.detailCalls, "cache hit must not reach the API")
}

func TestResolveDirectLookupFillsCache(t *testing.T) {
	src := &fakeSource{markets: map[string]domain.Market{
		"0xc1": market("0xc1", "direct-market"),
	}}
	cache := newFakeCache()

	r := New(src, cache, discardLogger())
	m, err := r.Resolve(context.Background(), "0xc1")
	require.NoError(t, err)

	assert.Equal(t, "direct-market", m.Slug)
	assert.Contains(t, cache.entries, "0xc1")
	assert.Zero(t, src.listCalls, "direct hit must not trigger the listing scan")
}

func TestResolveFallsBackToListing(t *testing.T) {
	src := &fakeSource{
		listing: []domain.Market{market("0xa", "a"), market("0xb", "b")},
	}

	r := New(src, nil, discardLogger())
	m, err := r.Resolve(context.Background(), "0xb")
	require.NoError(t, err)

	assert.Equal(t, "b", m.Slug)
	assert.Equal(t, 1, src.detailCalls)
	assert.Equal(t, 1, src.listCalls)
}

func TestResolveNotFound(t *testing.T) {
	src := &fakeSource{listing: []domain.Market{market("0xa", "a")}}

	r := New(src, nil, discardLogger())
	_, err := r.Resolve(context.Background(), "0xmissing")
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
}

func TestResolvePropagatesTransportError(t *testing.T) {
	src := &fakeSource{detailErr: errors.New("connection refused")}

	r := New(src, nil, discardLogger())
	_, err := r.Resolve(context.Background(), "0xc1")
	require.Error(t, err)
	assert.Zero(t, src.listCalls, "transport errors must not trigger the full scan")
}

func TestResolveCacheWriteFailureIsNotFatal(t *testing.T) {
	src := &fakeSource{markets: map[string]domain.Market{
		"0xc1": market("0xc1", "m"),
	}}
	cache := newFakeCache()
	cache.setErr = errors.New("redis down")

	r := New(src, cache, discardLogger())
	_, err := r.Resolve(context.Background(), "0xc1")
	assert.NoError(t, err)
}

func TestListTradableFiltersPattern(t *testing.T) {
	closed := market("0xc", "nba-finals-closed")
	closed.AcceptingOrders = false
	noOutcomes := domain.Market{ConditionID: "0xd", Slug: "nba-empty", Active: true, AcceptingOrders: true}

	src := &fakeSource{listing: []domain.Market{
		market("0xa", "NBA-finals-2026"),
		market("0xb", "presidential-election"),
		closed,
		noOutcomes,
	}}

	r := New(src, nil, discardLogger())
	markets, err := r.ListTradable(context.Background(), "nba-")
	require.NoError(t, err)

	require.Len(t, markets, 1, "pattern is case-insensitive and skips untradable markets")
	assert.Equal(t, "NBA-finals-2026", markets[0].Slug)
}

func TestListTradableEmptyPatternMatchesAll(t *testing.T) {
	src := &fakeSource{listing: []domain.Market{
		market("0xa", "a"), market("0xb", "b"),
	}}

	r := New(src, nil, discardLogger())
	markets, err := r.ListTradable(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, markets, 2)
}

func TestListTradableBadPattern(t *testing.T) {
	r := New(&fakeSource{}, nil, discardLogger())
	_, err := r.ListTradable(context.Background(), "[")
	assert.Error(t, err)
}
