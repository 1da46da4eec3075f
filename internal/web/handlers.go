package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/btcsim/internal/domain"
	"github.com/vadiminshakov/btcsim/pkg/indicators"
	"go.uber.org/zap"
)

type handler struct {
	portfolio portfolio
	oracle    priceOracle
	snapshots balanceSnapshotReader
	notifier  balanceNotifier
	journal   tradeJournal
	logger    *zap.Logger
}

type portfolioResponse struct {
	Ready                bool    `json:"ready"`
	Pair                 string  `json:"pair"`
	Cash                 string  `json:"cash"`
	Asset                string  `json:"asset"`
	Price                *string `json:"price"`
	PortfolioValue       string  `json:"portfolio_value"`
	ProfitLoss           string  `json:"profit_loss"`
	ProfitLossPercentage string  `json:"profit_loss_percentage"`
	IsProfitable         bool    `json:"is_profitable"`
	CanBuy               bool    `json:"can_buy"`
	CanSell              bool    `json:"can_sell"`
	Trades               int     `json:"trades"`
}

type mutationResponse struct {
	Portfolio portfolioResponse `json:"portfolio"`
	// Trade is the trade the mutation appended, absent for reset.
	Trade *domain.Trade `json:"trade,omitempty"`
}

type priceResponse struct {
	Pair          string  `json:"pair"`
	Price         *string `json:"price"`
	Previous      *string `json:"previous"`
	Change        *string `json:"change,omitempty"`
	ChangePercent *string `json:"change_percent,omitempty"`
	UpdatedAt     *string `json:"updated_at"`
	Loading       bool    `json:"loading"`
	Error         string  `json:"error,omitempty"`
}

type candleResponse struct {
	OpenTime  time.Time `json:"open_time"`
	Open      string    `json:"open"`
	High      string    `json:"high"`
	Low       string    `json:"low"`
	Close     string    `json:"close"`
	Volume    string    `json:"volume"`
	CloseTime time.Time `json:"close_time"`
}

type summaryResponse struct {
	Candles       int     `json:"candles"`
	Open          string  `json:"open"`
	Close         string  `json:"close"`
	High          string  `json:"high"`
	Low           string  `json:"low"`
	Change        string  `json:"change"`
	ChangePercent string  `json:"change_percent"`
	EMA           *string `json:"ema"`
	RSI           *string `json:"rsi"`
}

type candlesResponse struct {
	Pair      string           `json:"pair"`
	UpdatedAt *string          `json:"updated_at"`
	Error     string           `json:"error,omitempty"`
	Candles   []candleResponse `json:"candles"`
	Summary   summaryResponse  `json:"summary"`
}

type quoteResponse struct {
	Side    string `json:"side"`
	Price   string `json:"price"`
	USD     string `json:"usd"`
	BTC     string `json:"btc"`
	Percent *int   `json:"percent,omitempty"`
	// Affordable reports whether the current balances cover the trade.
	Affordable bool `json:"affordable"`
}

type buyRequest struct {
	USD decimal.Decimal `json:"usd"`
}

type sellRequest struct {
	BTC decimal.Decimal `json:"btc"`
}

func (h *handler) getPortfolio(w http.ResponseWriter, r *http.Request) {
	if !h.portfolio.IsReady() {
		writeLedgerError(w, domain.ErrNotReady)
		return
	}

	writeJSON(w, http.StatusOK, h.portfolioView())
}

func (h *handler) portfolioView() portfolioResponse {
	price := h.oracle.CurrentPrice()
	m := h.portfolio.Metrics(price)
	pair := h.oracle.Pair()

	return portfolioResponse{
		Ready:                h.portfolio.IsReady(),
		Pair:                 pair.String(),
		Cash:                 m.Cash.String(),
		Asset:                m.Asset.String(),
		Price:                nullString(price),
		PortfolioValue:       m.PortfolioValue.StringFixed(2),
		ProfitLoss:           m.ProfitLoss.StringFixed(2),
		ProfitLossPercentage: m.ProfitLossPercentage.StringFixed(2),
		IsProfitable:         m.IsProfitable,
		CanBuy:               m.CanBuy,
		CanSell:              m.CanSell,
		Trades:               len(h.portfolio.State().Trades),
	}
}

// getTrades serves the retained history, or the full journal with ?source=journal.
func (h *handler) getTrades(w http.ResponseWriter, r *http.Request) {
	limit := domain.MaxTrades
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = n
	}

	if r.URL.Query().Get("source") == "journal" {
		if h.journal == nil {
			writeError(w, http.StatusServiceUnavailable, "journal_disabled", "trade journal is not configured")
			return
		}
		trades, err := h.journal.ListTrades(r.Context(), limit)
		if err != nil {
			h.logger.Warn("failed to read trade journal", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to read trade journal")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"trades": nonNil(trades)})
		return
	}

	if !h.portfolio.IsReady() {
		writeLedgerError(w, domain.ErrNotReady)
		return
	}

	trades := h.portfolio.State().Trades
	if len(trades) > limit {
		trades = trades[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": nonNil(trades)})
}

func (h *handler) getPrice(w http.ResponseWriter, r *http.Request) {
	s := h.oracle.Sample()
	pair := h.oracle.Pair()

	resp := priceResponse{
		Pair:     pair.String(),
		Price:    nullString(s.Price),
		Previous: nullString(s.Previous),
		Loading:  s.Loading,
	}
	if abs, pct, ok := s.Change(); ok {
		resp.Change = strPtr(abs.String())
		resp.ChangePercent = strPtr(pct.StringFixed(2))
	}
	if !s.UpdatedAt.IsZero() {
		resp.UpdatedAt = strPtr(s.UpdatedAt.UTC().Format(time.RFC3339))
	}
	if s.Err != nil {
		resp.Error = s.Err.Error()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) getCandles(w http.ResponseWriter, r *http.Request) {
	candles := h.oracle.Candles()
	updatedAt, candlesErr := h.oracle.CandlesStatus()
	pair := h.oracle.Pair()

	resp := candlesResponse{
		Pair:    pair.String(),
		Candles: make([]candleResponse, 0, len(candles)),
		Summary: summaryView(indicators.Summarize(candles)),
	}
	if !updatedAt.IsZero() {
		resp.UpdatedAt = strPtr(updatedAt.UTC().Format(time.RFC3339))
	}
	if candlesErr != nil {
		resp.Error = candlesErr.Error()
	}
	for _, c := range candles {
		resp.Candles = append(resp.Candles, candleResponse{
			OpenTime:  c.OpenTime,
			Open:      c.Open.String(),
			High:      c.High.String(),
			Low:       c.Low.String(),
			Close:     c.Close.String(),
			Volume:    c.Volume.String(),
			CloseTime: c.CloseTime,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// getQuote previews a trade. The amount is either explicit (?amount=, USD for buy and BTC for sell)
// or a quick preset of the balance (?pct=25|50|75|100).
func (h *handler) getQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind := domain.TradeKind(q.Get("side"))
	if !kind.IsValid() {
		writeError(w, http.StatusBadRequest, "invalid_request", "side must be buy or sell")
		return
	}
	rawAmount, rawPct := q.Get("amount"), q.Get("pct")
	if (rawAmount == "") == (rawPct == "") {
		writeError(w, http.StatusBadRequest, "invalid_request", "exactly one of amount and pct is required")
		return
	}

	var (
		amount  decimal.Decimal
		percent *int
		err     error
	)
	if rawAmount != "" {
		if amount, err = decimal.NewFromString(rawAmount); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "amount must be a decimal number")
			return
		}
	} else {
		pct, convErr := strconv.Atoi(rawPct)
		if convErr != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "pct must be an integer")
			return
		}
		if amount, err = h.portfolio.PresetAmount(kind, pct); err != nil {
			writeLedgerError(w, err)
			return
		}
		percent = &pct
	}

	quote, err := h.portfolio.Quote(kind, h.oracle.CurrentPrice(), amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	state := h.portfolio.State()
	affordable := h.portfolio.IsReady() && quote.Cash.LessThanOrEqual(state.Cash)
	if kind == domain.TradeKindSell {
		affordable = h.portfolio.IsReady() && quote.Asset.LessThanOrEqual(state.Asset)
	}

	writeJSON(w, http.StatusOK, quoteResponse{
		Side:       kind.String(),
		Price:      quote.Price.String(),
		USD:        quote.Cash.StringFixed(2),
		BTC:        quote.Asset.StringFixed(8),
		Percent:    percent,
		Affordable: affordable,
	})
}

func (h *handler) buy(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
	if err := parseJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	state, err := h.portfolio.Buy(r.Context(), h.oracle.CurrentPrice(), req.USD)
	h.respondMutation(w, state, err, true)
}

func (h *handler) sell(w http.ResponseWriter, r *http.Request) {
	var req sellRequest
	if err := parseJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	state, err := h.portfolio.Sell(r.Context(), h.oracle.CurrentPrice(), req.BTC)
	h.respondMutation(w, state, err, true)
}

func (h *handler) buyAll(w http.ResponseWriter, r *http.Request) {
	state, err := h.portfolio.BuyAll(r.Context(), h.oracle.CurrentPrice())
	h.respondMutation(w, state, err, true)
}

func (h *handler) sellAll(w http.ResponseWriter, r *http.Request) {
	state, err := h.portfolio.SellAll(r.Context(), h.oracle.CurrentPrice())
	h.respondMutation(w, state, err, true)
}

func (h *handler) reset(w http.ResponseWriter, r *http.Request) {
	state, err := h.portfolio.Reset(r.Context(), h.oracle.CurrentPrice())
	h.respondMutation(w, state, err, false)
}

func (h *handler) respondMutation(w http.ResponseWriter, state domain.LedgerState, err error, traded bool) {
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	resp := mutationResponse{Portfolio: h.portfolioView()}
	if traded && len(state.Trades) > 0 {
		t := state.Trades[0]
		resp.Trade = &t
	}

	writeJSON(w, http.StatusOK, resp)
}

func summaryView(s indicators.Summary) summaryResponse {
	return summaryResponse{
		Candles:       s.Candles,
		Open:          s.Open.String(),
		Close:         s.Close.String(),
		High:          s.High.String(),
		Low:           s.Low.String(),
		Change:        s.Change.String(),
		ChangePercent: s.ChangePercent.StringFixed(2),
		EMA:           nullString(s.EMA),
		RSI:           nullString(s.RSI),
	}
}

func nullString(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}

	return strPtr(d.Decimal.String())
}

func strPtr(s string) *string { return &s }

func nonNil(trades []domain.Trade) []domain.Trade {
	if trades == nil {
		return []domain.Trade{}
	}

	return trades
}
