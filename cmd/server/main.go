package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/damru/matka-engine/internal/metrics"
	"github.com/damru/matka-engine/internal/scheduler"
	"github.com/damru/matka-engine/internal/settlement"
	"github.com/damru/matka-engine/internal/store"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// All declaration dates and betting windows are evaluated in one
	// fixed timezone, matching the markets' local draw schedule.
	tzName := os.Getenv("MARKET_TZ")
	if tzName == "" {
		tzName = "Asia/Kolkata"
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		slog.Error("invalid MARKET_TZ", "tz", tzName, "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Settlement ---
	workers := 8
	if v := os.Getenv("SETTLE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			workers = n
		}
	}
	exec := settlement.NewExecutor(st, workers)

	// --- WebSocket hub ---
	wsHub := settlement.NewWSHub()
	go wsHub.Run()

	// --- Settlement service ---
	svc := settlement.NewService(st, exec, loc, wsHub)

	// --- Market lifecycle scheduler ---
	schedCtx, stopSched := context.WithCancel(context.Background())
	defer stopSched()
	sched := scheduler.New(st, scheduler.SystemClock{}, loc, time.Minute)
	go sched.Run(schedCtx)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"matka-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time result updates.
		r.Get("/ws", wsHub.HandleWS)

		// Market management.
		r.Get("/markets", svc.ListMarkets)
		r.Get("/markets/open", svc.ListOpenMarkets)
		r.Post("/markets", svc.CreateMarket)
		r.Put("/markets/{marketID}/status", svc.UpdateMarketStatus)
		r.Get("/markets/{marketID}/results", svc.GetMarketResults)

		// Result declaration.
		r.Post("/markets/declare", svc.DeclareResult)
		r.Post("/markets/publish-open", svc.PublishOpenResult)

		// Bets and wallets.
		r.Post("/bets", svc.PlaceBet)
		r.Get("/bets/user/{userID}", svc.GetUserBets)
		r.Get("/users/{userID}/wallet", svc.GetWallet)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("matka-engine listening", "port", port, "tz", tzName)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopSched()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down matka-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("matka-engine stopped")
}
