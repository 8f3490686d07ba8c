package domain

import (
	"context"
	"io"
	"time"
)

// OpportunityRecord is a persisted detection-log entry. Only detections are
// recorded; order fills and trade history stay out of scope.
type OpportunityRecord struct {
	ID          string
	ConditionID string
	Slug        string
	Direction   Direction
	TotalLong   float64
	TotalShort  float64
	Legs        []Leg
	Executed    bool
	DryRun      bool
	DetectedAt  time.Time
}

// OpportunityStore persists the detection log.
type OpportunityStore interface {
	Insert(ctx context.Context, rec OpportunityRecord) error
	ListRecent(ctx context.Context, limit int) ([]OpportunityRecord, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]OpportunityRecord, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MarketCache caches resolved markets keyed by condition ID. Outcome token
// IDs are immutable once assigned, so cached entries only need a TTL to
// pick up slug or flag changes.
type MarketCache interface {
	Get(ctx context.Context, conditionID string) (Market, error)
	Set(ctx context.Context, market Market) error
}

// PriceCache holds the latest observed price per token. It backs the
// monitor feed; arbitrage evaluation never reads it, quotes are always
// re-fetched from the book.
type PriceCache interface {
	SetPrice(ctx context.Context, tokenID string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, tokenID string) (float64, time.Time, error)
}

// RateLimiter bounds how often a keyed action may run in a window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
