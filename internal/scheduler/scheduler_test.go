package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/damru/matka-engine/internal/model"
	"github.com/damru/matka-engine/internal/store"
)

// fakeClock returns a fixed time, adjustable between ticks.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func at(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02 15:04", value)
	if err != nil {
		t.Fatalf("bad test time %q: %v", value, err)
	}
	return ts
}

func seedMarket(t *testing.T, ms *store.MemoryStore, name, open, close string, bettingOpen bool) *model.Market {
	t.Helper()
	m := &model.Market{
		ID:          "MKT-" + name,
		Name:        name,
		OpenTime:    open,
		CloseTime:   close,
		BettingOpen: bettingOpen,
	}
	if err := ms.CreateMarket(context.Background(), m); err != nil {
		t.Fatalf("failed to seed market: %v", err)
	}
	return m
}

func bettingOpen(t *testing.T, ms *store.MemoryStore, id string) bool {
	t.Helper()
	m, err := ms.GetMarket(context.Background(), id)
	if err != nil {
		t.Fatalf("get market: %v", err)
	}
	return m.BettingOpen
}

func TestWithinWindow(t *testing.T) {
	cases := []struct {
		open, close string
		minutes     int
		inside      bool
		ok          bool
	}{
		{"09:00", "21:00", 9*60 + 30, true, true},
		{"09:00", "21:00", 8 * 60, false, true},
		{"09:00", "21:00", 9 * 60, true, true},    // open boundary inclusive
		{"09:00", "21:00", 21 * 60, false, true},  // close boundary exclusive
		{"22:00", "02:00", 23 * 60, true, true},   // midnight wrap, evening side
		{"22:00", "02:00", 1 * 60, true, true},    // midnight wrap, morning side
		{"22:00", "02:00", 12 * 60, false, true},
		{"9:00", "21:00", 10 * 60, true, true},    // single-digit hour parses
		{"0900", "21:00", 10 * 60, false, false},  // missing colon
		{"25:00", "21:00", 10 * 60, false, false}, // hour out of range
		{"09:61", "21:00", 10 * 60, false, false},
	}
	for _, tc := range cases {
		inside, ok := withinWindow(tc.open, tc.close, tc.minutes)
		if inside != tc.inside || ok != tc.ok {
			t.Errorf("withinWindow(%q, %q, %d) = (%v, %v), want (%v, %v)",
				tc.open, tc.close, tc.minutes, inside, ok, tc.inside, tc.ok)
		}
	}
}

func TestTick_OpensAndClosesByWindow(t *testing.T) {
	ms := store.NewMemoryStore()
	clock := &fakeClock{now: at(t, "2026-08-30 08:00")}
	s := New(ms, clock, time.UTC, time.Minute)

	day := seedMarket(t, ms, "Kalyan", "09:00", "21:00", false)
	night := seedMarket(t, ms, "Night King", "22:00", "02:00", false)

	// 08:00, both outside their windows: nothing flips.
	s.tick(context.Background())
	if bettingOpen(t, ms, day.ID) || bettingOpen(t, ms, night.ID) {
		t.Fatal("no market should be open at 08:00")
	}

	// 09:00, the day market opens.
	clock.now = at(t, "2026-08-30 09:00")
	s.tick(context.Background())
	if !bettingOpen(t, ms, day.ID) {
		t.Error("day market should open at 09:00")
	}
	if bettingOpen(t, ms, night.ID) {
		t.Error("night market should stay closed at 09:00")
	}

	// 23:30, the day market has closed and the night market is open.
	clock.now = at(t, "2026-08-30 23:30")
	s.tick(context.Background())
	if bettingOpen(t, ms, day.ID) {
		t.Error("day market should close at 21:00")
	}
	if !bettingOpen(t, ms, night.ID) {
		t.Error("night market should be open at 23:30")
	}

	// 01:00 next day, the wrapped window is still open.
	clock.now = at(t, "2026-08-31 01:00")
	s.tick(context.Background())
	if !bettingOpen(t, ms, night.ID) {
		t.Error("night market window wraps past midnight")
	}
}

func TestTick_UnparsableWindowIsSkipped(t *testing.T) {
	ms := store.NewMemoryStore()
	clock := &fakeClock{now: at(t, "2026-08-30 08:50")}
	s := New(ms, clock, time.UTC, time.Minute)

	broken := seedMarket(t, ms, "Broken", "whenever", "21:00", true)
	fine := seedMarket(t, ms, "Kalyan", "09:00", "21:00", false)

	s.tick(context.Background())
	clock.now = at(t, "2026-08-30 09:00")
	s.tick(context.Background())

	if !bettingOpen(t, ms, broken.ID) {
		t.Error("an unparsable window must leave the flag untouched")
	}
	if !bettingOpen(t, ms, fine.ID) {
		t.Error("a bad sibling must not block enforcement of other markets")
	}
}

func TestTick_DeclaredResultKeepsMarketClosed(t *testing.T) {
	ms := store.NewMemoryStore()
	clock := &fakeClock{now: at(t, "2026-08-30 14:59")}
	s := New(ms, clock, time.UTC, time.Minute)

	m := seedMarket(t, ms, "Kalyan", "09:00", "21:00", true)
	s.tick(context.Background())

	// Full declaration at 15:00 publishes the result and force-closes
	// betting, well inside the open window.
	set := model.ResultSet{
		OpenNumber: "123", CloseNumber: "456",
		OpenSingleDigit: 6, CloseSingleDigit: 5,
		Jodi: "65", OpenPanna: "123", ClosePanna: "456",
	}
	if err := ms.SetMarketResult(context.Background(), m.ID, &set, false); err != nil {
		t.Fatalf("set result: %v", err)
	}

	clock.now = at(t, "2026-08-30 15:01")
	s.tick(context.Background())
	if bettingOpen(t, ms, m.ID) {
		t.Fatal("scheduler must not reopen betting on a market whose close result is declared")
	}

	// Even an open-boundary crossing must not reopen a declared market.
	other := seedMarket(t, ms, "Milan Day", "16:00", "22:00", false)
	if err := ms.SetMarketResult(context.Background(), other.ID, &set, false); err != nil {
		t.Fatalf("set result: %v", err)
	}
	clock.now = at(t, "2026-08-30 15:59")
	s.tick(context.Background())
	clock.now = at(t, "2026-08-30 16:01")
	s.tick(context.Background())
	if bettingOpen(t, ms, other.ID) {
		t.Fatal("open-boundary crossing must not override a declared result")
	}

	// Next day: the reset clears the slots and the market reopens at
	// its own open boundary.
	clock.now = at(t, "2026-08-31 00:01")
	s.tick(context.Background())
	clock.now = at(t, "2026-08-31 08:59")
	s.tick(context.Background())
	clock.now = at(t, "2026-08-31 09:00")
	s.tick(context.Background())
	if !bettingOpen(t, ms, m.ID) {
		t.Error("market should reopen at its open boundary once the slot is cleared")
	}
}

func TestTick_AdminToggleInsideWindowSticks(t *testing.T) {
	ms := store.NewMemoryStore()
	clock := &fakeClock{now: at(t, "2026-08-30 12:00")}
	s := New(ms, clock, time.UTC, time.Minute)

	m := seedMarket(t, ms, "Kalyan", "09:00", "21:00", true)
	s.tick(context.Background())

	// Admin suspends betting mid-window; ticks without a boundary
	// crossing leave that decision alone.
	if err := ms.SetBettingOpen(context.Background(), m.ID, false); err != nil {
		t.Fatalf("set betting open: %v", err)
	}
	clock.now = at(t, "2026-08-30 12:01")
	s.tick(context.Background())
	clock.now = at(t, "2026-08-30 14:00")
	s.tick(context.Background())
	if bettingOpen(t, ms, m.ID) {
		t.Fatal("admin close inside the window must not be reverted by ticks")
	}

	// The next open boundary takes over again.
	clock.now = at(t, "2026-08-30 21:00")
	s.tick(context.Background())
	clock.now = at(t, "2026-08-31 09:00")
	s.tick(context.Background())
	if !bettingOpen(t, ms, m.ID) {
		t.Error("window enforcement should resume at the next open boundary")
	}
}

func TestTick_DailyResetClearsResultSlots(t *testing.T) {
	ms := store.NewMemoryStore()
	clock := &fakeClock{now: at(t, "2026-08-30 23:50")}
	s := New(ms, clock, time.UTC, time.Minute)

	m := seedMarket(t, ms, "Kalyan", "09:00", "21:00", false)
	set := model.ResultSet{
		OpenNumber: "123", CloseNumber: "456",
		OpenSingleDigit: 6, CloseSingleDigit: 5,
		Jodi: "65", OpenPanna: "123", ClosePanna: "456",
	}
	if err := ms.SetMarketResult(context.Background(), m.ID, &set, false); err != nil {
		t.Fatalf("set result: %v", err)
	}

	// Still the same day: the slot survives every tick.
	s.tick(context.Background())
	got, _ := ms.GetMarket(context.Background(), m.ID)
	if got.Result == nil {
		t.Fatal("result slot must survive same-day ticks")
	}

	// First tick past midnight clears it.
	clock.now = at(t, "2026-08-31 00:01")
	s.tick(context.Background())
	got, _ = ms.GetMarket(context.Background(), m.ID)
	if got.Result != nil {
		t.Fatal("result slot should be cleared after midnight")
	}

	// The reset runs once per day, not once per tick.
	if err := ms.SetMarketResult(context.Background(), m.ID, &set, false); err != nil {
		t.Fatalf("set result: %v", err)
	}
	clock.now = at(t, "2026-08-31 00:02")
	s.tick(context.Background())
	got, _ = ms.GetMarket(context.Background(), m.ID)
	if got.Result == nil {
		t.Fatal("reset must not repeat within the same day")
	}
}

func TestNew_BootDayDoesNotTriggerReset(t *testing.T) {
	ms := store.NewMemoryStore()
	m := seedMarket(t, ms, "Kalyan", "09:00", "21:00", false)
	set := model.ResultSet{OpenNumber: "123", OpenSingleDigit: 6, OpenPanna: "123"}
	if err := ms.SetMarketResult(context.Background(), m.ID, &set, true); err != nil {
		t.Fatalf("set result: %v", err)
	}

	// A restart at noon must not wipe the morning's open result.
	clock := &fakeClock{now: at(t, "2026-08-30 12:00")}
	s := New(ms, clock, time.UTC, time.Minute)
	s.tick(context.Background())

	got, _ := ms.GetMarket(context.Background(), m.ID)
	if got.Result == nil {
		t.Fatal("boot-day tick must not clear results declared earlier today")
	}
}
