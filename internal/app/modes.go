package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyarb/internal/archive"
	"github.com/alanyoungcy/polyarb/internal/feed"
)

// maxFeedTokens caps the number of WebSocket subscriptions in monitor mode.
const maxFeedTokens = 100

// WatchMode runs the continuous scan loop over every tradable market,
// optionally alongside the detection-log archiver.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode",
		slog.String("pattern", a.cfg.Scanner.Pattern),
		slog.Duration("interval", a.cfg.Scanner.Interval.Duration),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Scanner.Watch(ctx)
	})

	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// SingleMode polls one market (or one event's markets) until an actionable
// opportunity is found and executed, then exits.
func (a *App) SingleMode(ctx context.Context, deps *Dependencies) error {
	if len(a.Targets) == 0 {
		return fmt.Errorf("app: single mode requires at least one condition ID")
	}
	a.logger.InfoContext(ctx, "starting single mode",
		slog.Any("targets", a.Targets),
		slog.Bool("event", a.Event),
	)

	opp, err := deps.Scanner.SingleWatch(ctx, a.Targets, a.Event)
	if err != nil {
		return fmt.Errorf("app: single mode: %w", err)
	}

	a.logger.InfoContext(ctx, "single mode finished",
		slog.String("opportunity_id", opp.ID),
		slog.String("direction", string(opp.Direction)),
		slog.Float64("total_long", opp.TotalLong),
		slog.Float64("total_short", opp.TotalShort),
	)
	return nil
}

// OnceMode evaluates one market (or one event) a single time and exits.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	if len(a.Targets) == 0 {
		return fmt.Errorf("app: once mode requires at least one condition ID")
	}
	a.logger.InfoContext(ctx, "starting once mode",
		slog.Any("targets", a.Targets),
		slog.Bool("event", a.Event),
	)

	opp, err := deps.Scanner.ScanOnce(ctx, a.Targets, a.Event)
	if err != nil {
		return fmt.Errorf("app: once mode: %w", err)
	}

	a.logger.InfoContext(ctx, "once mode finished",
		slog.String("opportunity_id", opp.ID),
		slog.String("direction", string(opp.Direction)),
		slog.Bool("actionable", opp.Actionable()),
		slog.Float64("total_long", opp.TotalLong),
		slog.Float64("total_short", opp.TotalShort),
	)
	return nil
}

// MonitorMode runs read-only observation: the WebSocket price feed mirrors
// live prices into the cache while the scanner logs detections without
// placing orders.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Polymarket.WsHost != "" {
		tokenIDs := a.feedTokenIDs(ctx, deps)
		if len(tokenIDs) > 0 {
			priceFeed := feed.NewPriceFeed(a.cfg.Polymarket.WsHost, tokenIDs, deps.PriceCache, a.logger)
			g.Go(func() error {
				defer priceFeed.Close()
				return priceFeed.Run(ctx)
			})
		}
	}

	// Scanner still runs so detections are logged and notified, but the
	// engine is never invoked. Wire guarantees dry-run semantics here
	// because monitor is not a trading mode.
	g.Go(func() error {
		return deps.Scanner.Watch(ctx)
	})

	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// startArchiver adds the detection-log archiver goroutine when both the
// detection log and blob storage are wired.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Archive.Enabled || deps.OpportunityStore == nil || deps.BlobWriter == nil {
		return
	}

	archiver := archive.New(deps.OpportunityStore, deps.BlobWriter, archive.Config{
		Retention: time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour,
		Interval:  a.cfg.Archive.Interval.Duration,
	}, a.logger)

	g.Go(func() error {
		return archiver.Run(ctx)
	})
}

// feedTokenIDs collects outcome token IDs from tradable markets for the
// monitor feed subscription, up to maxFeedTokens.
func (a *App) feedTokenIDs(ctx context.Context, deps *Dependencies) []string {
	markets, err := deps.Resolver.ListTradable(ctx, a.cfg.Scanner.Pattern)
	if err != nil {
		a.logger.WarnContext(ctx, "monitor feed: list markets failed", slog.String("error", err.Error()))
		return nil
	}

	seen := make(map[string]bool)
	var ids []string
	for _, m := range markets {
		for _, o := range m.Outcomes {
			if o.TokenID == "" || seen[o.TokenID] {
				continue
			}
			seen[o.TokenID] = true
			ids = append(ids, o.TokenID)
			if len(ids) >= maxFeedTokens {
				return ids
			}
		}
	}
	return ids
}
