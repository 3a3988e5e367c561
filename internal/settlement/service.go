package settlement

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/damru/matka-engine/internal/metrics"
	"github.com/damru/matka-engine/internal/model"
	"github.com/damru/matka-engine/internal/result"
	"github.com/damru/matka-engine/internal/store"
)

// Service handles market administration, bet placement, and result
// declaration. Declarations are serialized with a mutex (single-instance);
// the per-bet status guard in the store keeps re-runs and races safe
// regardless.
type Service struct {
	store store.Store
	exec  *Executor
	loc   *time.Location
	mu    sync.Mutex
	wsHub *WSHub // optional hub for real-time result broadcasts
}

// NewService creates a new settlement service. Pass nil for hub if
// WebSocket broadcasting is not needed.
func NewService(st store.Store, exec *Executor, loc *time.Location, hub *WSHub) *Service {
	return &Service{
		store: st,
		exec:  exec,
		loc:   loc,
		wsHub: hub,
	}
}

// --- Request/Response types ---

// CreateMarketRequest is the JSON body for market creation.
type CreateMarketRequest struct {
	Name        string `json:"name"`
	OpenTime    string `json:"open_time"`  // "HH:MM"
	CloseTime   string `json:"close_time"` // "HH:MM"
	BettingOpen bool   `json:"is_betting_open"`
}

// DeclareRequest is the JSON body for POST /markets/declare.
type DeclareRequest struct {
	MarketID    string `json:"market_id"`
	OpenResult  string `json:"open_result"`
	CloseResult string `json:"close_result"`
	Date        string `json:"date,omitempty"` // YYYY-MM-DD; defaults to today
}

// DeclareResponse is returned from a full declaration.
type DeclareResponse struct {
	Market  *model.Market `json:"market"`
	Summary Summary       `json:"summary"`
}

// PublishOpenRequest is the JSON body for POST /markets/publish-open.
type PublishOpenRequest struct {
	MarketID   string `json:"market_id"`
	OpenResult string `json:"open_result"`
}

// StatusRequest is the JSON body for the admin betting-flag toggle.
type StatusRequest struct {
	BettingOpen bool `json:"is_betting_open"`
}

// PlaceBetRequest is the JSON body for POST /bets.
type PlaceBetRequest struct {
	UserID     string          `json:"user_id"`
	MarketName string          `json:"market_name"`
	GameType   string          `json:"game_type"`
	BetType    string          `json:"bet_type"` // "Open" or "Close"
	Number     string          `json:"number"`
	Amount     decimal.Decimal `json:"amount"`
	Ratio      decimal.Decimal `json:"winning_ratio"`
}

// --- Market administration ---

// CreateMarket handles POST /api/v1/markets
func (s *Service) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		writeError(w, "name is required", http.StatusBadRequest)
		return
	}
	if !validClockTime(req.OpenTime) || !validClockTime(req.CloseTime) {
		writeError(w, "open_time and close_time must be HH:MM", http.StatusBadRequest)
		return
	}

	market := &model.Market{
		ID:          "MKT-" + uuid.New().String(),
		Name:        req.Name,
		OpenTime:    req.OpenTime,
		CloseTime:   req.CloseTime,
		BettingOpen: req.BettingOpen,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.store.CreateMarket(r.Context(), market); err != nil {
		if errors.Is(err, store.ErrDuplicateMarket) {
			writeError(w, err.Error(), http.StatusConflict)
			return
		}
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	slog.Info("market created",
		"id", market.ID,
		"name", market.Name,
		"window", market.OpenTime+"-"+market.CloseTime,
	)

	writeJSON(w, http.StatusCreated, market)
}

// ListMarkets handles GET /api/v1/markets
func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.store.ListMarkets(r.Context())
	if err != nil {
		writeError(w, "failed to list markets", http.StatusInternalServerError)
		return
	}
	if markets == nil {
		markets = []model.Market{}
	}
	writeJSON(w, http.StatusOK, markets)
}

// ListOpenMarkets handles GET /api/v1/markets/open
func (s *Service) ListOpenMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.store.ListOpenMarkets(r.Context())
	if err != nil {
		writeError(w, "failed to list open markets", http.StatusInternalServerError)
		return
	}
	if markets == nil {
		markets = []model.Market{}
	}
	writeJSON(w, http.StatusOK, markets)
}

// UpdateMarketStatus handles PUT /api/v1/markets/{marketID}/status
// Explicit admin toggle; overrides whatever the scheduler last decided.
func (s *Service) UpdateMarketStatus(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.store.SetBettingOpen(r.Context(), marketID, req.BettingOpen); err != nil {
		if errors.Is(err, store.ErrMarketNotFound) {
			writeError(w, "market not found", http.StatusNotFound)
			return
		}
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	slog.Info("market status updated", "id", marketID, "betting_open", req.BettingOpen)

	market, err := s.store.GetMarket(r.Context(), marketID)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, market)
}

// --- Declaration ---

// DeclareResult handles POST /api/v1/markets/declare
// Full pipeline: derive → settle every pending bet → archive (best
// effort). Structural errors (unknown market, malformed draw) abort
// before any bet is touched.
func (s *Service) DeclareResult(w http.ResponseWriter, r *http.Request) {
	var req DeclareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.MarketID == "" || req.OpenResult == "" || req.CloseResult == "" {
		writeError(w, "market_id, open_result and close_result are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	// Serialize declarations.
	s.mu.Lock()
	defer s.mu.Unlock()

	market, err := s.store.GetMarket(ctx, req.MarketID)
	if err != nil {
		metrics.DeclarationsTotal.WithLabelValues("rejected").Inc()
		writeError(w, "market not found: "+req.MarketID, http.StatusNotFound)
		return
	}

	set, err := result.Derive(req.OpenResult, req.CloseResult)
	if err != nil {
		metrics.DeclarationsTotal.WithLabelValues("rejected").Inc()
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	date := time.Now().In(s.loc).Format("2006-01-02")
	if req.Date != "" {
		parsed, err := time.ParseInLocation("2006-01-02", req.Date, s.loc)
		if err != nil {
			metrics.DeclarationsTotal.WithLabelValues("rejected").Inc()
			writeError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		date = parsed.Format("2006-01-02")
	}

	// Publish the result and force-close betting before settling.
	if err := s.store.SetMarketResult(ctx, market.ID, &set, false); err != nil {
		metrics.DeclarationsTotal.WithLabelValues("error").Inc()
		writeError(w, "failed to store market result", http.StatusInternalServerError)
		return
	}

	pending, err := s.store.GetPendingBetsByMarket(ctx, market.Name)
	if err != nil {
		metrics.DeclarationsTotal.WithLabelValues("error").Inc()
		writeError(w, "failed to load pending bets", http.StatusInternalServerError)
		return
	}

	start := time.Now()
	summary := s.exec.Settle(ctx, set, pending)
	metrics.SettlementDuration.Observe(time.Since(start).Seconds())

	// Archive is best effort: a failed write is logged and counted but
	// never rolls back settlement or fails the declaration.
	record := &model.MarketResult{
		ID:         uuid.New().String(),
		MarketID:   market.ID,
		MarketName: market.Name,
		Date:       date,
		Result:     set,
		DeclaredAt: time.Now().UTC(),
	}
	if err := s.store.UpsertMarketResult(ctx, record); err != nil {
		slog.Error("archive write failed", "market", market.ID, "date", date, "err", err)
		metrics.ArchiveFailures.Inc()
	}

	market.Result = &set
	market.BettingOpen = false

	slog.Info("result declared",
		"market", market.ID,
		"date", date,
		"open", set.OpenNumber,
		"close", set.CloseNumber,
		"jodi", set.Jodi,
		"won", summary.Won,
		"lost", summary.Lost,
		"malformed", summary.Malformed,
		"failed", summary.Failed,
	)
	metrics.DeclarationsTotal.WithLabelValues("success").Inc()

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:        "result_declared",
			MarketID:    market.ID,
			MarketName:  market.Name,
			Date:        date,
			OpenNumber:  set.OpenNumber,
			CloseNumber: set.CloseNumber,
			Jodi:        set.Jodi,
		})
	}

	writeJSON(w, http.StatusOK, DeclareResponse{Market: market, Summary: summary})
}

// PublishOpenResult handles POST /api/v1/markets/publish-open
// Publishes the open-side fields only and reopens betting for the close
// leg. Deliberately never settles: no rule can resolve on a partial
// result, and the pending bets wait for the full declaration.
func (s *Service) PublishOpenResult(w http.ResponseWriter, r *http.Request) {
	var req PublishOpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.MarketID == "" || req.OpenResult == "" {
		writeError(w, "market_id and open_result are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	market, err := s.store.GetMarket(ctx, req.MarketID)
	if err != nil {
		writeError(w, "market not found: "+req.MarketID, http.StatusNotFound)
		return
	}

	set, err := result.DeriveOpen(req.OpenResult)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.SetMarketResult(ctx, market.ID, &set, true); err != nil {
		writeError(w, "failed to store open result", http.StatusInternalServerError)
		return
	}

	market.Result = &set
	market.BettingOpen = true

	slog.Info("open result published",
		"market", market.ID,
		"open", set.OpenNumber,
		"open_digit", set.OpenSingleDigit,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:       "open_published",
			MarketID:   market.ID,
			MarketName: market.Name,
			OpenNumber: set.OpenNumber,
		})
	}

	writeJSON(w, http.StatusOK, market)
}

// GetMarketResults handles GET /api/v1/markets/{marketID}/results
// Returns the declaration history, newest first.
func (s *Service) GetMarketResults(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	records, err := s.store.GetMarketResults(r.Context(), marketID)
	if err != nil {
		writeError(w, "failed to get market results", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []model.MarketResult{}
	}
	writeJSON(w, http.StatusOK, records)
}

// --- Bets and wallets ---

// PlaceBet handles POST /api/v1/bets
// Debits the stake atomically before the bet exists; the same wallet
// field is credited by settlement, so both paths go through the store's
// atomic increments.
func (s *Service) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	gameType := model.GameType(req.GameType)
	leg := model.Leg(req.BetType)

	switch {
	case req.UserID == "":
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	case req.MarketName == "":
		writeError(w, "market_name is required", http.StatusBadRequest)
		return
	case !gameType.Valid():
		writeError(w, "unknown game type: "+req.GameType, http.StatusBadRequest)
		return
	case !leg.Valid():
		writeError(w, `bet_type must be "Open" or "Close"`, http.StatusBadRequest)
		return
	case req.Number == "":
		writeError(w, "number is required", http.StatusBadRequest)
		return
	case req.Amount.LessThanOrEqual(decimal.Zero):
		writeError(w, "amount must be positive", http.StatusBadRequest)
		return
	case req.Ratio.LessThan(decimal.NewFromInt(1)):
		writeError(w, "winning_ratio must be at least 1", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	market, err := s.store.GetMarketByName(ctx, req.MarketName)
	if err != nil {
		writeError(w, "market not found: "+req.MarketName, http.StatusNotFound)
		return
	}
	if !market.BettingOpen {
		writeError(w, "betting is closed for "+market.Name, http.StatusForbidden)
		return
	}

	if err := s.store.DebitWallet(ctx, req.UserID, req.Amount); err != nil {
		switch {
		case errors.Is(err, store.ErrInsufficientBalance):
			writeError(w, "insufficient wallet balance", http.StatusBadRequest)
		case errors.Is(err, store.ErrUserNotFound):
			writeError(w, "user not found", http.StatusNotFound)
		default:
			writeError(w, "failed to debit wallet", http.StatusInternalServerError)
		}
		return
	}

	bet := &model.Bet{
		ID:         uuid.New().String(),
		UserID:     req.UserID,
		MarketName: market.Name,
		GameType:   gameType,
		Leg:        leg,
		Number:     req.Number,
		Stake:      req.Amount,
		Ratio:      req.Ratio,
		Status:     model.BetPending,
		PlacedAt:   time.Now().UTC(),
	}

	if err := s.store.InsertBet(ctx, bet); err != nil {
		// Give the stake back; the bet never came into existence.
		if refundErr := s.store.CreditWallet(ctx, req.UserID, req.Amount); refundErr != nil {
			slog.Error("stake refund failed after insert error",
				"user", req.UserID, "amount", req.Amount.String(), "err", refundErr)
		}
		writeError(w, "failed to place bet", http.StatusInternalServerError)
		return
	}

	slog.Info("bet placed",
		"bet_id", bet.ID,
		"user", bet.UserID,
		"market", bet.MarketName,
		"game", string(bet.GameType),
		"leg", string(bet.Leg),
		"stake", bet.Stake.String(),
	)
	metrics.BetsPlacedTotal.WithLabelValues(string(gameType)).Inc()

	writeJSON(w, http.StatusCreated, bet)
}

// GetUserBets handles GET /api/v1/bets/user/{userID}
func (s *Service) GetUserBets(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	bets, err := s.store.GetBetsByUser(r.Context(), userID)
	if err != nil {
		writeError(w, "failed to get bets", http.StatusInternalServerError)
		return
	}
	if bets == nil {
		bets = []model.Bet{}
	}
	writeJSON(w, http.StatusOK, bets)
}

// GetWallet handles GET /api/v1/users/{userID}/wallet
func (s *Service) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	user, err := s.store.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			writeError(w, "user not found", http.StatusNotFound)
			return
		}
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{
		"wallet_balance": user.WalletBalance,
	})
}

// --- Helpers ---

// validClockTime reports whether s is a valid "HH:MM" time of day.
func validClockTime(s string) bool {
	_, err := time.Parse("15:04", s)
	return err == nil
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
