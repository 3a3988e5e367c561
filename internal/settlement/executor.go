// Package settlement resolves pending bets after a market's result is
// declared, and exposes the HTTP surface for declarations, bet placement,
// and result history.
package settlement

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/damru/matka-engine/internal/game"
	"github.com/damru/matka-engine/internal/metrics"
	"github.com/damru/matka-engine/internal/model"
	"github.com/damru/matka-engine/internal/store"
)

// Failure records one bet that could not be settled. The bet stays
// pending, so a re-run of the declaration retries exactly these bets.
type Failure struct {
	BetID  string `json:"bet_id"`
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

// Summary reports one settlement batch. The counters are disjoint:
// Won + Lost + Malformed + Failed + Skipped == Total. Malformed bets are
// marked lost (default policy) but counted separately so they stay
// observable rather than blending into ordinary losses.
type Summary struct {
	Total     int       `json:"total"`
	Won       int       `json:"won"`
	Lost      int       `json:"lost"`
	Malformed int       `json:"malformed"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Failures  []Failure `json:"failures,omitempty"`
}

// Executor settles a batch of pending bets against a derived result set.
// Bets are independent, so the batch runs on a bounded worker pool; each
// bet's guard-then-transition is the unit of atomicity, never the batch.
type Executor struct {
	store   store.Store
	workers int
}

// NewExecutor creates an executor with the given worker pool size.
func NewExecutor(st store.Store, workers int) *Executor {
	if workers < 1 {
		workers = 1
	}
	return &Executor{store: st, workers: workers}
}

// Settle evaluates and resolves every bet in the batch exactly once.
// Per-bet failures are isolated: a wallet credit that fails leaves that
// bet pending, is recorded in the summary, and never aborts the rest.
func (e *Executor) Settle(ctx context.Context, set model.ResultSet, bets []model.Bet) Summary {
	var (
		mu  sync.Mutex
		sum = Summary{Total: len(bets)}
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i := range bets {
		bet := bets[i]
		g.Go(func() error {
			outcome, failure := e.settleOne(ctx, set, &bet)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeWon:
				sum.Won++
			case outcomeLost:
				sum.Lost++
			case outcomeMalformed:
				sum.Malformed++
			case outcomeFailed:
				sum.Failed++
				sum.Failures = append(sum.Failures, *failure)
			case outcomeSkipped:
				sum.Skipped++
			}
			return nil
		})
	}
	g.Wait()

	return sum
}

type outcome int

const (
	outcomeWon outcome = iota
	outcomeLost
	outcomeMalformed
	outcomeFailed
	outcomeSkipped
)

func (e *Executor) settleOne(ctx context.Context, set model.ResultSet, bet *model.Bet) (outcome, *Failure) {
	// At-most-once guard: never touch a bet that already left pending.
	if bet.Status != model.BetPending {
		return outcomeSkipped, nil
	}

	won, err := game.Evaluate(bet, set)
	if errors.Is(err, game.ErrMalformedWagerNumber) {
		// Observable outcome, not a silent loss: logged, counted, and
		// reported in the summary before the bet is marked lost.
		slog.Warn("malformed wager number",
			"bet_id", bet.ID,
			"user", bet.UserID,
			"game", string(bet.GameType),
			"number", bet.Number,
		)
		metrics.BetsSettledTotal.WithLabelValues("malformed").Inc()
		if _, err := e.store.SettleBet(ctx, bet.ID, model.BetLost); err != nil {
			return outcomeFailed, &Failure{BetID: bet.ID, UserID: bet.UserID, Reason: err.Error()}
		}
		return outcomeMalformed, nil
	}
	if err != nil {
		return outcomeFailed, &Failure{BetID: bet.ID, UserID: bet.UserID, Reason: err.Error()}
	}

	if !won {
		changed, err := e.store.SettleBet(ctx, bet.ID, model.BetLost)
		if err != nil {
			return outcomeFailed, &Failure{BetID: bet.ID, UserID: bet.UserID, Reason: err.Error()}
		}
		if !changed {
			return outcomeSkipped, nil
		}
		metrics.BetsSettledTotal.WithLabelValues("lost").Inc()
		return outcomeLost, nil
	}

	// Winner: credit first, then transition. If the credit fails the bet
	// stays pending, so re-running the declaration retries it. Because
	// the credit lands before the status flip, a single pay-out depends
	// on declarations being serialized in-process (the service mutex);
	// the pending guard only stops re-runs that arrive after the flip.
	reward := bet.Reward()
	if err := e.store.CreditWallet(ctx, bet.UserID, reward); err != nil {
		slog.Error("wallet credit failed",
			"bet_id", bet.ID,
			"user", bet.UserID,
			"reward", reward.String(),
			"err", err,
		)
		metrics.WalletCreditFailures.Inc()
		metrics.BetsSettledTotal.WithLabelValues("failed").Inc()
		return outcomeFailed, &Failure{BetID: bet.ID, UserID: bet.UserID, Reason: err.Error()}
	}

	changed, err := e.store.SettleBet(ctx, bet.ID, model.BetWon)
	if err != nil {
		return outcomeFailed, &Failure{BetID: bet.ID, UserID: bet.UserID, Reason: err.Error()}
	}
	if !changed {
		return outcomeSkipped, nil
	}

	slog.Info("bet won",
		"bet_id", bet.ID,
		"user", bet.UserID,
		"game", string(bet.GameType),
		"reward", reward.String(),
	)
	metrics.BetsSettledTotal.WithLabelValues("won").Inc()
	return outcomeWon, nil
}
