// Package store defines the persistence interface for the betting engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/damru/matka-engine/internal/model"
)

var (
	// ErrMarketNotFound is returned when a market id or name is unknown.
	ErrMarketNotFound = errors.New("store: market not found")

	// ErrDuplicateMarket is returned when creating a market whose name
	// already exists.
	ErrDuplicateMarket = errors.New("store: market already exists")

	// ErrUserNotFound is returned when a wallet operation references an
	// unknown owner.
	ErrUserNotFound = errors.New("store: user not found")

	// ErrInsufficientBalance is returned when a debit would take a wallet
	// negative. The balance is left untouched.
	ErrInsufficientBalance = errors.New("store: insufficient wallet balance")
)

// Store is the persistence interface. Every mutation is a per-record
// atomic update so settlement and the scheduler can run concurrently
// without whole-collection locks.
type Store interface {
	// --- Market operations ---

	// CreateMarket persists a new market. Names are unique.
	CreateMarket(ctx context.Context, market *model.Market) error

	// GetMarket retrieves a market by its ID.
	GetMarket(ctx context.Context, id string) (*model.Market, error)

	// GetMarketByName retrieves a market by display name.
	GetMarketByName(ctx context.Context, name string) (*model.Market, error)

	// ListMarkets returns all markets.
	ListMarkets(ctx context.Context) ([]model.Market, error)

	// ListOpenMarkets returns markets currently open for betting.
	ListOpenMarkets(ctx context.Context) ([]model.Market, error)

	// SetBettingOpen flips a market's betting flag.
	SetBettingOpen(ctx context.Context, id string, open bool) error

	// SetMarketResult overwrites the market's current-result slot and
	// betting flag in one update. A nil set clears the slot.
	SetMarketResult(ctx context.Context, id string, set *model.ResultSet, bettingOpen bool) error

	// ClearMarketResults empties every market's current-result slot.
	// Used by the daily reset; historical records are untouched.
	ClearMarketResults(ctx context.Context) error

	// --- Bet operations ---

	// InsertBet persists a new pending bet.
	InsertBet(ctx context.Context, bet *model.Bet) error

	// GetPendingBetsByMarket returns all pending bets on a market.
	GetPendingBetsByMarket(ctx context.Context, marketName string) ([]model.Bet, error)

	// GetBetsByUser returns all bets placed by a user, newest first.
	GetBetsByUser(ctx context.Context, userID string) ([]model.Bet, error)

	// SettleBet transitions a bet from pending to the given status.
	// Returns false (and no error) if the bet was not pending, which is
	// what makes settlement retries at-most-once.
	SettleBet(ctx context.Context, betID string, status model.BetStatus) (bool, error)

	// --- User / wallet operations ---

	// CreateUser persists a new user.
	CreateUser(ctx context.Context, user *model.User) error

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id string) (*model.User, error)

	// CreditWallet atomically increases a wallet balance.
	CreditWallet(ctx context.Context, userID string, amount decimal.Decimal) error

	// DebitWallet atomically decreases a wallet balance, failing with
	// ErrInsufficientBalance rather than going negative.
	DebitWallet(ctx context.Context, userID string, amount decimal.Decimal) error

	// --- Historical results ---

	// UpsertMarketResult writes the immutable declaration record keyed by
	// (market id, date); a second declaration on the same day overwrites.
	UpsertMarketResult(ctx context.Context, record *model.MarketResult) error

	// GetMarketResults returns a market's history, newest first.
	GetMarketResults(ctx context.Context, marketID string) ([]model.MarketResult, error)
}
