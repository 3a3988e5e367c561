package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/damru/matka-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Monetary values are stored as NUMERIC for exact decimal precision; the
// market's current-result slot is a nullable JSONB column.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// --- Markets ---

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.Market) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO markets (id, name, open_time, close_time, betting_open, results, created_at)
		 VALUES ($1, $2, $3, $4, $5, NULL, $6)`,
		m.ID, m.Name, m.OpenTime, m.CloseTime, m.BettingOpen, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create market %s: %w", m.Name, err)
	}
	return nil
}

const marketColumns = `id, name, open_time, close_time, betting_open, results, created_at`

func scanMarket(row pgx.Row) (*model.Market, error) {
	var m model.Market
	var results []byte

	if err := row.Scan(&m.ID, &m.Name, &m.OpenTime, &m.CloseTime,
		&m.BettingOpen, &results, &m.CreatedAt); err != nil {
		return nil, err
	}
	if len(results) > 0 {
		var set model.ResultSet
		if err := json.Unmarshal(results, &set); err != nil {
			return nil, fmt.Errorf("decode result slot for market %s: %w", m.ID, err)
		}
		m.Result = &set
	}
	return &m, nil
}

func (s *PostgresStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", id, err)
	}
	return m, nil
}

func (s *PostgresStore) GetMarketByName(ctx context.Context, name string) (*model.Market, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get market by name %s: %w", name, err)
	}
	return m, nil
}

func (s *PostgresStore) listMarkets(ctx context.Context, query string, args ...any) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

func (s *PostgresStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return s.listMarkets(ctx,
		`SELECT `+marketColumns+` FROM markets ORDER BY created_at DESC`)
}

func (s *PostgresStore) ListOpenMarkets(ctx context.Context) ([]model.Market, error) {
	return s.listMarkets(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE betting_open ORDER BY created_at DESC`)
}

func (s *PostgresStore) SetBettingOpen(ctx context.Context, id string, open bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET betting_open = $2 WHERE id = $1`, id, open)
	if err != nil {
		return fmt.Errorf("set betting flag for market %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrMarketNotFound, id)
	}
	return nil
}

func (s *PostgresStore) SetMarketResult(ctx context.Context, id string, set *model.ResultSet, bettingOpen bool) error {
	var results []byte
	if set != nil {
		var err error
		results, err = json.Marshal(set)
		if err != nil {
			return fmt.Errorf("encode result slot: %w", err)
		}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET results = $2, betting_open = $3 WHERE id = $1`,
		id, results, bettingOpen)
	if err != nil {
		return fmt.Errorf("set result slot for market %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrMarketNotFound, id)
	}
	return nil
}

func (s *PostgresStore) ClearMarketResults(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `UPDATE markets SET results = NULL`)
	return err
}

// --- Bets ---

func (s *PostgresStore) InsertBet(ctx context.Context, b *model.Bet) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bets (id, user_id, market_name, game_type, leg, number, stake, ratio, status, placed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9, $10)`,
		b.ID, b.UserID, b.MarketName, string(b.GameType), string(b.Leg), b.Number,
		b.Stake.String(), b.Ratio.String(), string(b.Status), b.PlacedAt,
	)
	if err != nil {
		return fmt.Errorf("insert bet %s: %w", b.ID, err)
	}
	return nil
}

const betColumns = `id, user_id, market_name, game_type, leg, number,
	        stake::TEXT, ratio::TEXT, status, placed_at`

func (s *PostgresStore) queryBets(ctx context.Context, query string, args ...any) ([]model.Bet, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bets []model.Bet
	for rows.Next() {
		var b model.Bet
		var gameType, leg, status, stakeS, ratioS string

		if err := rows.Scan(&b.ID, &b.UserID, &b.MarketName, &gameType, &leg,
			&b.Number, &stakeS, &ratioS, &status, &b.PlacedAt); err != nil {
			return nil, err
		}
		b.GameType = model.GameType(gameType)
		b.Leg = model.Leg(leg)
		b.Status = model.BetStatus(status)
		b.Stake, _ = decimal.NewFromString(stakeS)
		b.Ratio, _ = decimal.NewFromString(ratioS)
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

func (s *PostgresStore) GetPendingBetsByMarket(ctx context.Context, marketName string) ([]model.Bet, error) {
	return s.queryBets(ctx,
		`SELECT `+betColumns+` FROM bets WHERE market_name = $1 AND status = 'pending'`,
		marketName)
}

func (s *PostgresStore) GetBetsByUser(ctx context.Context, userID string) ([]model.Bet, error) {
	return s.queryBets(ctx,
		`SELECT `+betColumns+` FROM bets WHERE user_id = $1 ORDER BY placed_at DESC`,
		userID)
}

func (s *PostgresStore) SettleBet(ctx context.Context, betID string, status model.BetStatus) (bool, error) {
	// The status guard in the WHERE clause is the at-most-once invariant:
	// concurrent or repeated settlement of the same bet changes nothing.
	tag, err := s.pool.Exec(ctx,
		`UPDATE bets SET status = $2 WHERE id = $1 AND status = 'pending'`,
		betID, string(status))
	if err != nil {
		return false, fmt.Errorf("settle bet %s: %w", betID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// --- Users / wallets ---

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, name, email, wallet_balance)
		 VALUES ($1, $2, $3, $4::NUMERIC)`,
		u.ID, u.Name, u.Email, u.WalletBalance.String(),
	)
	if err != nil {
		return fmt.Errorf("create user %s: %w", u.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	var balance string

	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, wallet_balance::TEXT FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.Email, &balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}

	u.WalletBalance, _ = decimal.NewFromString(balance)
	return &u, nil
}

func (s *PostgresStore) CreditWallet(ctx context.Context, userID string, amount decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET wallet_balance = wallet_balance + $2::NUMERIC WHERE id = $1`,
		userID, amount.String())
	if err != nil {
		return fmt.Errorf("credit wallet %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	return nil
}

func (s *PostgresStore) DebitWallet(ctx context.Context, userID string, amount decimal.Decimal) error {
	// Balance guard in the WHERE clause: the debit and the check are one
	// atomic statement, so concurrent placement and settlement cannot
	// interleave into a negative balance.
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET wallet_balance = wallet_balance - $2::NUMERIC
		 WHERE id = $1 AND wallet_balance >= $2::NUMERIC`,
		userID, amount.String())
	if err != nil {
		return fmt.Errorf("debit wallet %s: %w", userID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if _, err := s.GetUser(ctx, userID); err != nil {
		return err
	}
	return fmt.Errorf("%w: user %s", ErrInsufficientBalance, userID)
}

// --- Historical results ---

func (s *PostgresStore) UpsertMarketResult(ctx context.Context, r *model.MarketResult) error {
	results, err := json.Marshal(r.Result)
	if err != nil {
		return fmt.Errorf("encode result record: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO market_results (id, market_id, market_name, date, results, declared_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (market_id, date)
		 DO UPDATE SET market_name = $3, results = $5, declared_at = $6`,
		r.ID, r.MarketID, r.MarketName, r.Date, results, r.DeclaredAt,
	)
	if err != nil {
		return fmt.Errorf("upsert result for market %s on %s: %w", r.MarketID, r.Date, err)
	}
	return nil
}

func (s *PostgresStore) GetMarketResults(ctx context.Context, marketID string) ([]model.MarketResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, market_id, market_name, date, results, declared_at
		 FROM market_results WHERE market_id = $1 ORDER BY date DESC`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.MarketResult
	for rows.Next() {
		var r model.MarketResult
		var results []byte

		if err := rows.Scan(&r.ID, &r.MarketID, &r.MarketName, &r.Date,
			&results, &r.DeclaredAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(results, &r.Result); err != nil {
			return nil, fmt.Errorf("decode result record %s: %w", r.ID, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
