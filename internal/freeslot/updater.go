package freeslot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"freeslotd/internal/config"
	appLog "freeslotd/internal/log"
	"freeslotd/internal/metrics"
	"freeslotd/internal/model"
)

// Updater owns the cached common free-slot map shared between the
// refresh pass and the read paths (web API, -once output).
//
// Concurrency discipline: at most one pass runs at a time, enforced by a
// compare-and-swap on the running flag; a trigger arriving during an
// active pass is dropped, not queued. A pass builds its map entirely off
// to the side and swaps it in under the mutex as one assignment, so a
// reader never observes a partially populated map.
type Updater struct {
	cfg *config.Config

	running atomic.Bool

	mu      sync.RWMutex
	current model.CommonFreeSlotMap
}

func NewUpdater(cfg *config.Config) *Updater {
	return &Updater{
		cfg:     cfg,
		current: make(model.CommonFreeSlotMap),
	}
}

// SeedFromCache loads the persisted map so reads have a value before the
// first pass completes.
func (u *Updater) SeedFromCache() error {
	loc, err := u.cfg.Location()
	if err != nil {
		return err
	}
	m, err := LoadCache(u.cfg.CacheFile, loc)
	if err != nil {
		return err
	}

	u.mu.Lock()
	u.current = m
	u.mu.Unlock()

	appLog.Info("cache loaded", "path", u.cfg.CacheFile, "dates", len(m))
	return nil
}

// TryRefresh runs one pass unless one is already in flight, in which
// case the trigger is a no-op and started is false.
//
// The shared map and the cache file are only updated on a successful
// pass; a failed pass leaves the previous result authoritative.
func (u *Updater) TryRefresh(ctx context.Context, now time.Time) (started bool, err error) {
	if !u.running.CompareAndSwap(false, true) {
		appLog.Info("refresh already in progress, dropping trigger")
		return false, nil
	}
	defer u.running.Store(false)

	begin := time.Now()
	appLog.Info("refresh pass starting", "feeds", len(u.cfg.CalendarURLs))

	m, err := ComputeFreeSlots(ctx, u.cfg, now)
	if err != nil {
		metrics.PassCompleted("error", time.Since(begin))
		appLog.Error("refresh pass failed", err)
		return true, err
	}

	u.mu.Lock()
	u.current = m
	u.mu.Unlock()

	if err := SaveCache(u.cfg.CacheFile, m); err != nil {
		appLog.Error("cache save failed", err, "path", u.cfg.CacheFile)
	}

	metrics.PassCompleted("ok", time.Since(begin))
	metrics.SetFreeSlotDates(len(m))
	appLog.Info("refresh pass completed", "dates", len(m), "elapsed", time.Since(begin).Round(time.Millisecond))
	return true, nil
}

// Running reports whether a pass is currently in flight.
func (u *Updater) Running() bool {
	return u.running.Load()
}

// Current returns the latest map. Each successful pass replaces the map
// wholesale and never mutates it afterwards, so callers may read the
// returned value without copying.
func (u *Updater) Current() model.CommonFreeSlotMap {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.current
}

// FormattedText renders the latest map as the user-facing text block.
func (u *Updater) FormattedText() string {
	return Format(u.Current(), u.cfg.CustomText)
}
