// Package model defines the core domain types shared across the betting
// engine. All monetary values use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// GameType enumerates the seven supported game kinds. The set is closed:
// the matcher dispatches over exactly these values and resolves anything
// else as "not a winner".
type GameType string

const (
	GameSingleDigit GameType = "Single Digit"
	GameJodi        GameType = "Jodi"
	GameSinglePanna GameType = "Single Panna"
	GameDoublePanna GameType = "Double Panna"
	GameTriplePanna GameType = "Triple Panna"
	GameHalfSangam  GameType = "Half Sangam"
	GameFullSangam  GameType = "Full Sangam"
)

// GameTypes lists every supported game type.
var GameTypes = []GameType{
	GameSingleDigit,
	GameJodi,
	GameSinglePanna,
	GameDoublePanna,
	GameTriplePanna,
	GameHalfSangam,
	GameFullSangam,
}

// Valid reports whether g is one of the enumerated game types.
func (g GameType) Valid() bool {
	for _, known := range GameTypes {
		if g == known {
			return true
		}
	}
	return false
}

// Leg identifies which draw of a market a bet or result refers to.
type Leg string

const (
	LegOpen  Leg = "Open"
	LegClose Leg = "Close"
)

// Valid reports whether l is Open or Close.
func (l Leg) Valid() bool {
	return l == LegOpen || l == LegClose
}

// BetStatus is the settlement state of a bet. Transitions are
// pending → won or pending → lost, exactly once, never reversed.
type BetStatus string

const (
	BetPending BetStatus = "pending"
	BetWon     BetStatus = "won"
	BetLost    BetStatus = "lost"
)

// ResultSet holds the artifacts derived from a market's open/close draws.
// It is purely derived: recomputed on every declaration, never edited in
// place. Close-side fields are empty on an open-leg-only publication.
type ResultSet struct {
	OpenNumber       string `json:"open_number" db:"open_number"`
	CloseNumber      string `json:"close_number,omitempty" db:"close_number"`
	OpenSingleDigit  int    `json:"open_single_digit" db:"open_single_digit"`
	CloseSingleDigit int    `json:"close_single_digit" db:"close_single_digit"`
	Jodi             string `json:"jodi,omitempty" db:"jodi"`
	OpenPanna        string `json:"open_panna" db:"open_panna"`
	ClosePanna       string `json:"close_panna,omitempty" db:"close_panna"`
}

// Complete reports whether both legs have been derived.
func (r ResultSet) Complete() bool {
	return r.OpenNumber != "" && r.CloseNumber != ""
}

// Market is one numbers market. Its Result slot holds the latest derived
// artifacts (nil when empty); the scheduler wipes the slot daily and the
// next declaration overwrites it.
type Market struct {
	ID          string     `json:"market_id" db:"id"`
	Name        string     `json:"name" db:"name"`
	OpenTime    string     `json:"open_time" db:"open_time"`   // "HH:MM" local
	CloseTime   string     `json:"close_time" db:"close_time"` // "HH:MM" local
	BettingOpen bool       `json:"is_betting_open" db:"betting_open"`
	Result      *ResultSet `json:"results,omitempty"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// Bet is one wager. The stake is debited from the owner's wallet at
// placement; only the settlement executor moves Status off pending.
type Bet struct {
	ID         string          `json:"id" db:"id"`
	UserID     string          `json:"user_id" db:"user_id"`
	MarketName string          `json:"market_name" db:"market_name"`
	GameType   GameType        `json:"game_type" db:"game_type"`
	Leg        Leg             `json:"bet_type" db:"leg"`
	Number     string          `json:"number" db:"number"` // format depends on game type
	Stake      decimal.Decimal `json:"amount" db:"stake"`
	Ratio      decimal.Decimal `json:"winning_ratio" db:"ratio"` // payout multiplier, fixed at placement
	Status     BetStatus       `json:"status" db:"status"`
	PlacedAt   time.Time       `json:"placed_at" db:"placed_at"`
}

// Reward is the amount credited to the owner when the bet wins.
func (b *Bet) Reward() decimal.Decimal {
	return b.Stake.Mul(b.Ratio)
}

// User carries the wallet balance mutated by placement (debit) and
// settlement (credit). Auth-related fields live outside this core.
type User struct {
	ID            string          `json:"id" db:"id"`
	Name          string          `json:"name" db:"name"`
	Email         string          `json:"email" db:"email"`
	WalletBalance decimal.Decimal `json:"wallet_balance" db:"wallet_balance"`
}

// MarketResult is the immutable historical record of one declaration,
// keyed by (market id, calendar date in the market timezone). A later
// declaration on the same day overwrites the same key.
type MarketResult struct {
	ID         string    `json:"id" db:"id"`
	MarketID   string    `json:"market_id" db:"market_id"`
	MarketName string    `json:"market_name" db:"market_name"`
	Date       string    `json:"date" db:"date"` // YYYY-MM-DD
	Result     ResultSet `json:"results"`
	DeclaredAt time.Time `json:"declared_at" db:"declared_at"`
}
