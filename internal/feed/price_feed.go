package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/platform/polymarket"
)

// PriceFeed connects to the Polymarket CLOB market channel, subscribes to the
// given token IDs, and mirrors every price observation into the price cache.
// It powers monitor mode only. Trade evaluation always fetches fresh REST
// quotes and never reads the cache.
type PriceFeed struct {
	wsURL    string
	tokenIDs []string
	prices   domain.PriceCache
	logger   *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewPriceFeed creates a feed that will subscribe to the given token IDs.
func NewPriceFeed(wsURL string, tokenIDs []string, prices domain.PriceCache, logger *slog.Logger) *PriceFeed {
	return &PriceFeed{
		wsURL:    wsURL,
		tokenIDs: tokenIDs,
		prices:   prices,
		logger:   logger.With(slog.String("component", "price_feed")),
		done:     make(chan struct{}),
	}
}

// Run connects, subscribes to the configured tokens, and runs until ctx is
// cancelled. Reconnects after a short delay when the connection drops.
func (f *PriceFeed) Run(ctx context.Context) error {
	if len(f.tokenIDs) == 0 {
		f.logger.Info("no token IDs to subscribe, exiting")
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}
		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("price feed disconnected, reconnecting", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (f *PriceFeed) runConnection(ctx context.Context) error {
	client := polymarket.NewWSClient(f.wsURL)
	defer client.Close()

	client.OnPrice(func(update domain.PriceUpdate) {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := f.prices.SetPrice(cacheCtx, update.TokenID, update.Price, update.Timestamp); err != nil {
			f.logger.Warn("price cache write failed",
				slog.String("token_id", update.TokenID),
				slog.String("error", err.Error()))
		}
	})

	connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err := client.Connect(connCtx)
	cancel()
	if err != nil {
		return err
	}
	if err := client.Subscribe(ctx, f.tokenIDs); err != nil {
		return err
	}
	f.logger.Info("price feed subscribed", slog.Int("tokens", len(f.tokenIDs)))

	<-ctx.Done()
	return ctx.Err()
}

// Close stops the feed.
func (f *PriceFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
