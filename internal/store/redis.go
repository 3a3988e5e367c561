package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/damru/matka-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for markets and result history. Writes go to the primary store and
// invalidate the cache. Bets and wallets are never cached: balances and
// pending sets must always be read fresh.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func marketKey(id string) string       { return fmt.Sprintf("market:%s", id) }
func marketNameKey(name string) string { return fmt.Sprintf("market_name:%s", name) }
func historyCacheKey(id string) string { return fmt.Sprintf("results:%s", id) }

// --- Markets: read-through with invalidation on every write ---

func (s *CachedStore) CreateMarket(ctx context.Context, m *model.Market) error {
	if err := s.primary.CreateMarket(ctx, m); err != nil {
		return err
	}
	s.cacheMarket(ctx, m)
	return nil
}

func (s *CachedStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	data, err := s.rdb.Get(ctx, marketKey(id)).Bytes()
	if err == nil {
		var m model.Market
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	m, err := s.primary.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheMarket(ctx, m)
	return m, nil
}

func (s *CachedStore) GetMarketByName(ctx context.Context, name string) (*model.Market, error) {
	// Try cache via name→marketID mapping.
	marketID, err := s.rdb.Get(ctx, marketNameKey(name)).Result()
	if err == nil {
		return s.GetMarket(ctx, marketID)
	}

	m, err := s.primary.GetMarketByName(ctx, name)
	if err != nil {
		return nil, err
	}

	s.cacheMarket(ctx, m)
	s.rdb.Set(ctx, marketNameKey(name), m.ID, s.ttl)
	return m, nil
}

func (s *CachedStore) SetBettingOpen(ctx context.Context, id string, open bool) error {
	if err := s.primary.SetBettingOpen(ctx, id, open); err != nil {
		return err
	}
	s.rdb.Del(ctx, marketKey(id))
	return nil
}

func (s *CachedStore) SetMarketResult(ctx context.Context, id string, set *model.ResultSet, bettingOpen bool) error {
	if err := s.primary.SetMarketResult(ctx, id, set, bettingOpen); err != nil {
		return err
	}
	s.rdb.Del(ctx, marketKey(id))
	return nil
}

func (s *CachedStore) ClearMarketResults(ctx context.Context) error {
	if err := s.primary.ClearMarketResults(ctx); err != nil {
		return err
	}
	// Invalidate every cached market; next reads re-populate.
	markets, err := s.primary.ListMarkets(ctx)
	if err != nil {
		// Reset itself succeeded; stale cache entries expire via TTL.
		return nil
	}
	for _, m := range markets {
		s.rdb.Del(ctx, marketKey(m.ID))
	}
	return nil
}

// --- Historical results: read-through, invalidated on upsert ---

func (s *CachedStore) UpsertMarketResult(ctx context.Context, r *model.MarketResult) error {
	if err := s.primary.UpsertMarketResult(ctx, r); err != nil {
		return err
	}
	s.rdb.Del(ctx, historyCacheKey(r.MarketID))
	return nil
}

func (s *CachedStore) GetMarketResults(ctx context.Context, marketID string) ([]model.MarketResult, error) {
	data, err := s.rdb.Get(ctx, historyCacheKey(marketID)).Bytes()
	if err == nil {
		var records []model.MarketResult
		if json.Unmarshal(data, &records) == nil {
			return records, nil
		}
	}

	records, err := s.primary.GetMarketResults(ctx, marketID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(records); err == nil {
		s.rdb.Set(ctx, historyCacheKey(marketID), data, s.ttl)
	}
	return records, nil
}

// --- Passthrough (never cached) ---

func (s *CachedStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return s.primary.ListMarkets(ctx)
}

func (s *CachedStore) ListOpenMarkets(ctx context.Context) ([]model.Market, error) {
	return s.primary.ListOpenMarkets(ctx)
}

func (s *CachedStore) InsertBet(ctx context.Context, b *model.Bet) error {
	return s.primary.InsertBet(ctx, b)
}

func (s *CachedStore) GetPendingBetsByMarket(ctx context.Context, marketName string) ([]model.Bet, error) {
	return s.primary.GetPendingBetsByMarket(ctx, marketName)
}

func (s *CachedStore) GetBetsByUser(ctx context.Context, userID string) ([]model.Bet, error) {
	return s.primary.GetBetsByUser(ctx, userID)
}

func (s *CachedStore) SettleBet(ctx context.Context, betID string, status model.BetStatus) (bool, error) {
	return s.primary.SettleBet(ctx, betID, status)
}

func (s *CachedStore) CreateUser(ctx context.Context, u *model.User) error {
	return s.primary.CreateUser(ctx, u)
}

func (s *CachedStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.primary.GetUser(ctx, id)
}

func (s *CachedStore) CreditWallet(ctx context.Context, userID string, amount decimal.Decimal) error {
	return s.primary.CreditWallet(ctx, userID, amount)
}

func (s *CachedStore) DebitWallet(ctx context.Context, userID string, amount decimal.Decimal) error {
	return s.primary.DebitWallet(ctx, userID, amount)
}

// --- Cache helpers ---

func (s *CachedStore) cacheMarket(ctx context.Context, m *model.Market) {
	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, marketKey(m.ID), data, s.ttl)
	}
}
