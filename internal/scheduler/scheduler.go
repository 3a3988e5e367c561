// Package scheduler runs the market lifecycle background tasks: the
// daily reset of transient result slots and the betting-window
// enforcement. The clock is injectable so both behaviors are testable
// without wall-clock waits.
package scheduler

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/damru/matka-engine/internal/metrics"
	"github.com/damru/matka-engine/internal/store"
)

// Clock supplies the current time. The system clock is used in
// production; tests substitute a fixed one.
type Clock interface {
	Now() time.Time
}

// SystemClock is the real wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// Scheduler flips market betting flags at their window boundaries and
// clears every market's current-result slot once per day after local
// midnight. Flips happen only when a boundary is crossed, never by
// re-asserting state, so an admin toggle or a declaration force-close
// inside the window sticks until the next boundary. A market whose slot
// holds a complete declared result is not flipped at all until the
// daily reset clears the slot.
type Scheduler struct {
	store    store.Store
	clock    Clock
	loc      *time.Location
	interval time.Duration

	lastResetDay string
	lastInside   map[string]bool
}

// New creates a scheduler ticking at the given interval (minute
// granularity is the expected cadence) in the given timezone.
func New(st store.Store, clock Clock, loc *time.Location, interval time.Duration) *Scheduler {
	return &Scheduler{
		store:    st,
		clock:    clock,
		loc:      loc,
		interval: interval,
		// Seed with the boot day so restarting mid-day never wipes
		// results that were declared earlier today.
		lastResetDay: clock.Now().In(loc).Format("2006-01-02"),
		lastInside:   make(map[string]bool),
	}
}

// Run ticks until the context is cancelled. Must be called in a
// goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick performs one scheduler pass: daily reset first, then window
// enforcement.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.clock.Now().In(s.loc)

	day := now.Format("2006-01-02")
	if day != s.lastResetDay {
		if err := s.store.ClearMarketResults(ctx); err != nil {
			slog.Error("daily reset failed", "err", err)
			// Retry on the next tick.
		} else {
			slog.Info("daily reset: market result slots cleared", "day", day)
			s.lastResetDay = day
		}
	}

	s.enforceWindows(ctx, now)
}

// enforceWindows flips market betting flags at window boundary
// crossings.
func (s *Scheduler) enforceWindows(ctx context.Context, now time.Time) {
	markets, err := s.store.ListMarkets(ctx)
	if err != nil {
		slog.Error("window enforcement: listing markets failed", "err", err)
		return
	}

	nowMinutes := now.Hour()*60 + now.Minute()

	for _, m := range markets {
		inside, ok := withinWindow(m.OpenTime, m.CloseTime, nowMinutes)
		if !ok {
			slog.Warn("market has an unparsable time window",
				"market", m.ID, "open", m.OpenTime, "close", m.CloseTime)
			continue
		}
		prev, seen := s.lastInside[m.ID]
		s.lastInside[m.ID] = inside

		// A fully declared result keeps betting shut regardless of
		// the window; the daily reset clears the slot and boundary
		// tracking resumes the next day.
		if m.Result != nil && m.Result.Complete() {
			continue
		}

		// Flip only on a boundary crossing. Whatever state an admin
		// or a declaration set inside the window stays put.
		if !seen || inside == prev {
			continue
		}
		shouldBeOpen := inside
		if shouldBeOpen == m.BettingOpen {
			continue
		}

		if err := s.store.SetBettingOpen(ctx, m.ID, shouldBeOpen); err != nil {
			slog.Error("window enforcement: flag update failed",
				"market", m.ID, "err", err)
			continue
		}

		state := "closed"
		if shouldBeOpen {
			state = "open"
		}
		metrics.WindowFlips.WithLabelValues(state).Inc()
		slog.Info("betting window flipped",
			"market", m.ID,
			"name", m.Name,
			"betting_open", shouldBeOpen,
		)
	}
}

// withinWindow reports whether the minute-of-day falls inside the
// [open, close) window. Windows that cross midnight wrap around.
func withinWindow(openStr, closeStr string, nowMinutes int) (inside, ok bool) {
	open, err1 := parseClockMinutes(openStr)
	close, err2 := parseClockMinutes(closeStr)
	if err1 != nil || err2 != nil {
		return false, false
	}

	if open <= close {
		return nowMinutes >= open && nowMinutes < close, true
	}
	return nowMinutes >= open || nowMinutes < close, true
}

// parseClockMinutes converts "HH:MM" to minutes since midnight.
func parseClockMinutes(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, strconv.ErrSyntax
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, strconv.ErrRange
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, strconv.ErrRange
	}
	return h*60 + m, nil
}
