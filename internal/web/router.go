package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/btcsim/internal/domain"
	"github.com/vadiminshakov/btcsim/internal/ledger"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

type portfolio interface {
	IsReady() bool
	State() domain.LedgerState
	Metrics(price decimal.NullDecimal) ledger.Metrics
	Buy(ctx context.Context, price decimal.NullDecimal, usd decimal.Decimal) (domain.LedgerState, error)
	Sell(ctx context.Context, price decimal.NullDecimal, btc decimal.Decimal) (domain.LedgerState, error)
	BuyAll(ctx context.Context, price decimal.NullDecimal) (domain.LedgerState, error)
	SellAll(ctx context.Context, price decimal.NullDecimal) (domain.LedgerState, error)
	Reset(ctx context.Context, price decimal.NullDecimal) (domain.LedgerState, error)
	Quote(kind domain.TradeKind, price decimal.NullDecimal, amount decimal.Decimal) (ledger.Quote, error)
	PresetAmount(kind domain.TradeKind, percent int) (decimal.Decimal, error)
}

type priceOracle interface {
	Pair() domain.Pair
	CurrentPrice() decimal.NullDecimal
	Sample() domain.PriceSample
	Candles() []domain.MarketCandle
	CandlesStatus() (time.Time, error)
}

type balanceSnapshotReader interface {
	SnapshotsAfter(index uint64) ([]domain.BalanceSnapshotRecord, error)
}

type balanceNotifier interface {
	Subscribe() <-chan domain.BalanceSnapshotRecord
	Unsubscribe(sub <-chan domain.BalanceSnapshotRecord)
}

type tradeJournal interface {
	ListTrades(ctx context.Context, limit int) ([]domain.Trade, error)
}

// Deps bundles what the API serves. Snapshots, Notifier and Journal are optional.
// Without a Notifier the balance stream only polls.
type Deps struct {
	Portfolio portfolio
	Oracle    priceOracle
	Snapshots balanceSnapshotReader
	Notifier  balanceNotifier
	Journal   tradeJournal
	Logger    *zap.Logger
}

// NewRouter registers every route of the API.
func NewRouter(deps Deps) chi.Router {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	h := &handler{
		portfolio: deps.Portfolio,
		oracle:    deps.Oracle,
		snapshots: deps.Snapshots,
		notifier:  deps.Notifier,
		journal:   deps.Journal,
		logger:    deps.Logger,
	}

	r := chi.NewRouter()
	r.Use(requestLogging(deps.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "ready": h.portfolio.IsReady()})
	})

	r.Get("/portfolio", h.getPortfolio)
	r.Get("/trades", h.getTrades)
	r.Get("/price", h.getPrice)
	r.Get("/candles", h.getCandles)
	r.Get("/quote", h.getQuote)

	r.Post("/buy", h.buy)
	r.Post("/sell", h.sell)
	r.Post("/buy-all", h.buyAll)
	r.Post("/sell-all", h.sellAll)
	r.Post("/reset", h.reset)

	r.Get("/balance/stream", h.balanceStream)

	return r
}

// requestLogging tags each request with an id and logs method, path, status and duration.
func requestLogging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqID := r.Header.Get(requestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)

			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)

			logger.Info("request",
				zap.String("request_id", reqID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps the SSE stream working behind the logger.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
