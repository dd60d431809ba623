package freeslot

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"freeslotd/internal/config"
	"freeslotd/internal/ics"
	appLog "freeslotd/internal/log"
	"freeslotd/internal/metrics"
	"freeslotd/internal/model"
)

// feedConcurrency bounds how many feeds fetch at once within a pass.
const feedConcurrency = 4

// ComputeFreeSlots runs one full pass: fetch, decode, busy-map, derive
// per feed, then intersect across feeds.
//
// Only an invalid configuration aborts the pass (the error is a
// *config.ValidationError). A feed that fails to fetch or parse is
// logged, counted, and contributes a nil map, which the intersection
// treats as "reported nothing" and conservatively drops every date that
// feed does not cover.
//
// now is injected rather than read from the clock so the pass is
// reproducible under test.
func ComputeFreeSlots(ctx context.Context, cfg *config.Config, now time.Time) (model.CommonFreeSlotMap, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	fetcher := ics.NewFetcher()
	perFeed := make([]model.FreeSlotMap, len(cfg.CalendarURLs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(feedConcurrency)
	for i, url := range cfg.CalendarURLs {
		i, url := i, url
		g.Go(func() error {
			started := time.Now()
			m, err := computeFeed(gctx, fetcher, url, cfg, loc, now)
			if err != nil {
				metrics.FeedError(errorKind(err))
				appLog.Error("feed skipped for this pass", err, "url", ics.RedactURL(url))
				return nil
			}
			perFeed[i] = m
			appLog.Info("feed processed",
				"url", ics.RedactURL(url),
				"dates", len(m),
				"elapsed", time.Since(started).Round(time.Millisecond),
			)
			return nil
		})
	}
	_ = g.Wait()

	common := Intersect(perFeed, loc, now, cfg.IncludeCurrentDay)
	return common, nil
}

// computeFeed runs the per-feed half of the pipeline: fetch, decode,
// busy-map, derive.
func computeFeed(ctx context.Context, fetcher *ics.Fetcher, url string, cfg *config.Config, loc *time.Location, now time.Time) (model.FreeSlotMap, error) {
	body, err := fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	events, err := ics.Parse(body, loc)
	if err != nil {
		return nil, err
	}

	busy := BuildBusyMap(events, loc, now, cfg.LookaheadDays, cfg.IgnoreAllDayEvents)
	free := DeriveFree(busy, loc, now, cfg.StartOfDay, cfg.EndOfDay, cfg.LookaheadDays, cfg.ExcludeWeekends)
	return free, nil
}

func errorKind(err error) string {
	var ne *ics.NetworkError
	if errors.As(err, &ne) {
		return "network"
	}
	var fe *ics.FormatError
	if errors.As(err, &fe) {
		return "format"
	}
	return "other"
}
