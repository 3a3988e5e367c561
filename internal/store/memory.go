package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/damru/matka-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu      sync.RWMutex
	markets map[string]*model.Market
	bets    map[string]*model.Bet
	users   map[string]*model.User
	history map[string]*model.MarketResult // keyed marketID|date
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets: make(map[string]*model.Market),
		bets:    make(map[string]*model.Bet),
		users:   make(map[string]*model.User),
		history: make(map[string]*model.MarketResult),
	}
}

func historyKey(marketID, date string) string {
	return marketID + "|" + date
}

func copyMarket(m *model.Market) *model.Market {
	cp := *m
	if m.Result != nil {
		res := *m.Result
		cp.Result = &res
	}
	return &cp
}

// --- Markets ---

func (s *MemoryStore) CreateMarket(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.markets {
		if existing.Name == m.Name {
			return fmt.Errorf("%w: %s", ErrDuplicateMarket, m.Name)
		}
	}

	s.markets[m.ID] = copyMarket(m)
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, id string) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, id)
	}
	return copyMarket(m), nil
}

func (s *MemoryStore) GetMarketByName(_ context.Context, name string) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.markets {
		if m.Name == name {
			return copyMarket(m), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, name)
}

func (s *MemoryStore) ListMarkets(_ context.Context) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.Market, 0, len(s.markets))
	for _, m := range s.markets {
		markets = append(markets, *copyMarket(m))
	}
	sort.Slice(markets, func(i, j int) bool {
		return markets[i].CreatedAt.After(markets[j].CreatedAt)
	})
	return markets, nil
}

func (s *MemoryStore) ListOpenMarkets(ctx context.Context) ([]model.Market, error) {
	markets, err := s.ListMarkets(ctx)
	if err != nil {
		return nil, err
	}
	open := make([]model.Market, 0, len(markets))
	for _, m := range markets {
		if m.BettingOpen {
			open = append(open, m)
		}
	}
	return open, nil
}

func (s *MemoryStore) SetBettingOpen(_ context.Context, id string, open bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMarketNotFound, id)
	}
	m.BettingOpen = open
	return nil
}

func (s *MemoryStore) SetMarketResult(_ context.Context, id string, set *model.ResultSet, bettingOpen bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMarketNotFound, id)
	}
	if set == nil {
		m.Result = nil
	} else {
		res := *set
		m.Result = &res
	}
	m.BettingOpen = bettingOpen
	return nil
}

func (s *MemoryStore) ClearMarketResults(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.markets {
		m.Result = nil
	}
	return nil
}

// --- Bets ---

func (s *MemoryStore) InsertBet(_ context.Context, b *model.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *b
	s.bets[b.ID] = &cp
	return nil
}

func (s *MemoryStore) GetPendingBetsByMarket(_ context.Context, marketName string) ([]model.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Bet
	for _, b := range s.bets {
		if b.MarketName == marketName && b.Status == model.BetPending {
			result = append(result, *b)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetBetsByUser(_ context.Context, userID string) ([]model.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Bet
	for _, b := range s.bets {
		if b.UserID == userID {
			result = append(result, *b)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PlacedAt.After(result[j].PlacedAt)
	})
	return result, nil
}

func (s *MemoryStore) SettleBet(_ context.Context, betID string, status model.BetStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bets[betID]
	if !ok {
		return false, fmt.Errorf("store: bet %s not found", betID)
	}
	if b.Status != model.BetPending {
		return false, nil
	}
	b.Status = status
	return true, nil
}

// --- Users / wallets ---

func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) CreditWallet(_ context.Context, userID string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	u.WalletBalance = u.WalletBalance.Add(amount)
	return nil
}

func (s *MemoryStore) DebitWallet(_ context.Context, userID string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	if u.WalletBalance.LessThan(amount) {
		return fmt.Errorf("%w: user %s", ErrInsufficientBalance, userID)
	}
	u.WalletBalance = u.WalletBalance.Sub(amount)
	return nil
}

// --- Historical results ---

func (s *MemoryStore) UpsertMarketResult(_ context.Context, record *model.MarketResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *record
	s.history[historyKey(record.MarketID, record.Date)] = &cp
	return nil
}

func (s *MemoryStore) GetMarketResults(_ context.Context, marketID string) ([]model.MarketResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []model.MarketResult
	for _, r := range s.history {
		if r.MarketID == marketID {
			records = append(records, *r)
		}
	}
	// Newest first; dates are YYYY-MM-DD so string order is date order.
	sort.Slice(records, func(i, j int) bool {
		return records[i].Date > records[j].Date
	})
	return records, nil
}
