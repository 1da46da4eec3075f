package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/btcsim/internal/domain"
	"github.com/vadiminshakov/btcsim/internal/events"
	"github.com/vadiminshakov/btcsim/internal/ledger"
	"github.com/vadiminshakov/btcsim/internal/storage/kv"
	"github.com/vadiminshakov/btcsim/internal/storage/ledgerstate"
	"go.uber.org/zap"
)

type fakeOracle struct {
	mu      sync.Mutex
	sample  domain.PriceSample
	candles []domain.MarketCandle
	candErr error
}

func (o *fakeOracle) Pair() domain.Pair { return domain.DefaultPair }

func (o *fakeOracle) CurrentPrice() decimal.NullDecimal {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sample.Price
}

func (o *fakeOracle) Sample() domain.PriceSample {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sample
}

func (o *fakeOracle) Candles() []domain.MarketCandle { return o.candles }

func (o *fakeOracle) CandlesStatus() (time.Time, error) {
	return time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC), o.candErr
}

func (o *fakeOracle) setPrice(p int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sample.Previous = o.sample.Price
	o.sample.Price = domain.KnownPrice(decimal.NewFromInt(p))
}

type fakeSnapshots struct {
	mu      sync.Mutex
	records []domain.BalanceSnapshotRecord
	err     error
}

func (f *fakeSnapshots) append(r domain.BalanceSnapshotRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, r)
}

func (f *fakeSnapshots) SnapshotsAfter(index uint64) ([]domain.BalanceSnapshotRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.BalanceSnapshotRecord
	for _, r := range f.records {
		if r.Index > index {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeJournal struct {
	trades []domain.Trade
}

func (f *fakeJournal) ListTrades(_ context.Context, limit int) ([]domain.Trade, error) {
	if len(f.trades) > limit {
		return f.trades[:limit], nil
	}
	return f.trades, nil
}

type testEnv struct {
	router    http.Handler
	portfolio *ledger.Portfolio
	oracle    *fakeOracle
}

func newTestEnv(t *testing.T, hydrate bool, deps ...func(*Deps)) *testEnv {
	t.Helper()

	repo, err := ledgerstate.NewRepository(kv.NewMemory(), zap.NewNop())
	require.NoError(t, err)
	p, err := ledger.NewPortfolio(repo, zap.NewNop())
	require.NoError(t, err)
	if hydrate {
		require.NoError(t, p.Hydrate(context.Background()))
	}

	o := &fakeOracle{}
	d := Deps{Portfolio: p, Oracle: o, Logger: zap.NewNop()}
	for _, fn := range deps {
		fn(&d)
	}

	return &testEnv{router: NewRouter(d), portfolio: p, oracle: o}
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())

	return v
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, false)

	rr := env.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok","ready":false}`, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get(requestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := newTestEnv(t, true)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	assert.Equal(t, "abc-123", rr.Header().Get(requestIDHeader))
}

func TestNotHydratedIsUnavailable(t *testing.T) {
	env := newTestEnv(t, false)
	env.oracle.setPrice(50000)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/portfolio"},
		{http.MethodGet, "/trades"},
		{http.MethodPost, "/buy-all"},
		{http.MethodPost, "/reset"},
	} {
		rr := env.do(t, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, tc.path)
		assert.Equal(t, "not_ready", decode[errorResponse](t, rr).Error, tc.path)
	}
}

func TestBuyThenSellScenario(t *testing.T) {
	env := newTestEnv(t, true)
	env.oracle.setPrice(50000)

	rr := env.do(t, http.MethodPost, "/buy", map[string]string{"usd": "5000"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	bought := decode[mutationResponse](t, rr)
	assert.Equal(t, "5000", bought.Portfolio.Cash)
	assert.Equal(t, "0.1", bought.Portfolio.Asset)
	require.NotNil(t, bought.Trade)
	assert.Equal(t, domain.TradeKindBuy, bought.Trade.Kind)

	env.oracle.setPrice(60000)
	rr = env.do(t, http.MethodPost, "/sell", map[string]any{"btc": 0.1})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	sold := decode[mutationResponse](t, rr)
	assert.Equal(t, "11000", sold.Portfolio.Cash)
	assert.Equal(t, "0", sold.Portfolio.Asset)
	assert.Equal(t, "1000.00", sold.Portfolio.ProfitLoss)
	assert.Equal(t, "10.00", sold.Portfolio.ProfitLossPercentage)
	assert.True(t, sold.Portfolio.IsProfitable)
	assert.False(t, sold.Portfolio.CanSell)

	rr = env.do(t, http.MethodGet, "/trades?limit=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	trades := decode[struct {
		Trades []domain.Trade `json:"trades"`
	}](t, rr)
	require.Len(t, trades.Trades, 1)
	assert.Equal(t, domain.TradeKindSell, trades.Trades[0].Kind)
}

func TestMutationRejections(t *testing.T) {
	tests := []struct {
		name     string
		price    int64
		path     string
		body     any
		wantCode string
	}{
		{name: "insufficient cash", price: 50000, path: "/buy", body: map[string]string{"usd": "20000"}, wantCode: "insufficient_funds"},
		{name: "zero usd", price: 50000, path: "/buy", body: map[string]string{"usd": "0"}, wantCode: "invalid_amount"},
		{name: "missing amount", price: 50000, path: "/sell", wantCode: "invalid_amount"},
		{name: "unknown price", path: "/buy", body: map[string]string{"usd": "100"}, wantCode: "price_unknown"},
		{name: "buy all without price", path: "/buy-all", wantCode: "price_unknown"},
		{name: "sell all without asset", price: 50000, path: "/sell-all", wantCode: "insufficient_funds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, true)
			if tt.price > 0 {
				env.oracle.setPrice(tt.price)
			}

			rr := env.do(t, http.MethodPost, tt.path, tt.body)
			require.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())
			assert.Equal(t, tt.wantCode, decode[errorResponse](t, rr).Error)
			assert.True(t, env.portfolio.State().Equal(domain.NewLedgerState()))
		})
	}
}

func TestGetQuote(t *testing.T) {
	env := newTestEnv(t, true)
	env.oracle.setPrice(50000)

	rr := env.do(t, http.MethodGet, "/quote?side=buy&amount=2500", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	q := decode[quoteResponse](t, rr)
	assert.Equal(t, "buy", q.Side)
	assert.Equal(t, "50000", q.Price)
	assert.Equal(t, "2500.00", q.USD)
	assert.Equal(t, "0.05000000", q.BTC)
	assert.Nil(t, q.Percent)
	assert.True(t, q.Affordable)

	rr = env.do(t, http.MethodGet, "/quote?side=buy&amount=20000", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.False(t, decode[quoteResponse](t, rr).Affordable)

	rr = env.do(t, http.MethodGet, "/quote?side=buy&pct=75", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	q = decode[quoteResponse](t, rr)
	assert.Equal(t, "7500.00", q.USD)
	assert.Equal(t, "0.15000000", q.BTC)
	require.NotNil(t, q.Percent)
	assert.Equal(t, 75, *q.Percent)

	_, err := env.portfolio.Buy(context.Background(), env.oracle.CurrentPrice(), decimal.NewFromInt(5000))
	require.NoError(t, err)
	env.oracle.setPrice(60000)
	rr = env.do(t, http.MethodGet, "/quote?side=sell&pct=100", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	q = decode[quoteResponse](t, rr)
	assert.Equal(t, "0.10000000", q.BTC)
	assert.Equal(t, "6000.00", q.USD)
	assert.True(t, q.Affordable)

	assert.Len(t, env.portfolio.State().Trades, 1, "quotes never trade")
}

func TestGetQuoteRejections(t *testing.T) {
	tests := []struct {
		name     string
		price    int64
		query    string
		status   int
		wantCode string
	}{
		{name: "missing side", price: 50000, query: "amount=10", status: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "unknown side", price: 50000, query: "side=hold&amount=10", status: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "no amount", price: 50000, query: "side=buy", status: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "amount and pct", price: 50000, query: "side=buy&amount=10&pct=25", status: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "bad amount", price: 50000, query: "side=buy&amount=lots", status: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "bad pct", price: 50000, query: "side=buy&pct=half", status: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "pct outside presets", price: 50000, query: "side=buy&pct=30", status: http.StatusUnprocessableEntity, wantCode: "invalid_amount"},
		{name: "zero amount", price: 50000, query: "side=sell&amount=0", status: http.StatusUnprocessableEntity, wantCode: "invalid_amount"},
		{name: "unknown price", query: "side=buy&amount=10", status: http.StatusUnprocessableEntity, wantCode: "price_unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, true)
			if tt.price > 0 {
				env.oracle.setPrice(tt.price)
			}

			rr := env.do(t, http.MethodGet, "/quote?"+tt.query, nil)
			require.Equal(t, tt.status, rr.Code, rr.Body.String())
			assert.Equal(t, tt.wantCode, decode[errorResponse](t, rr).Error)
		})
	}
}

func TestGetQuotePresetNeedsHydratedState(t *testing.T) {
	env := newTestEnv(t, false)
	env.oracle.setPrice(50000)

	rr := env.do(t, http.MethodGet, "/quote?side=buy&pct=50", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestBadRequestBody(t *testing.T) {
	env := newTestEnv(t, true)
	env.oracle.setPrice(50000)

	req := httptest.NewRequest(http.MethodPost, "/buy", strings.NewReader(`{"usd":`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPost, "/buy", map[string]string{"btc": "1"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodGet, "/trades?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBuyAllAndReset(t *testing.T) {
	env := newTestEnv(t, true)
	env.oracle.setPrice(40000)

	rr := env.do(t, http.MethodPost, "/buy-all", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[mutationResponse](t, rr)
	assert.Equal(t, "0", resp.Portfolio.Cash)
	assert.Equal(t, "0.25", resp.Portfolio.Asset)

	rr = env.do(t, http.MethodPost, "/reset", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp = decode[mutationResponse](t, rr)
	assert.Equal(t, "10000", resp.Portfolio.Cash)
	assert.Nil(t, resp.Trade)
	assert.Equal(t, 0, resp.Portfolio.Trades)
}

func TestGetPortfolioWithoutPrice(t *testing.T) {
	env := newTestEnv(t, true)

	rr := env.do(t, http.MethodGet, "/portfolio", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[portfolioResponse](t, rr)
	assert.Nil(t, resp.Price)
	assert.Equal(t, "10000.00", resp.PortfolioValue)
	assert.Equal(t, "BTC_USDT", resp.Pair)
	assert.False(t, resp.CanBuy)
}

func TestGetPrice(t *testing.T) {
	env := newTestEnv(t, true)

	rr := env.do(t, http.MethodGet, "/price", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[priceResponse](t, rr)
	assert.Nil(t, resp.Price)

	env.oracle.setPrice(50000)
	env.oracle.setPrice(51000)
	env.oracle.sample.Err = errors.New("timeout")

	resp = decode[priceResponse](t, env.do(t, http.MethodGet, "/price", nil))
	require.NotNil(t, resp.Price)
	assert.Equal(t, "51000", *resp.Price)
	require.NotNil(t, resp.ChangePercent)
	assert.Equal(t, "2.00", *resp.ChangePercent)
	assert.Equal(t, "timeout", resp.Error)
}

func TestGetCandles(t *testing.T) {
	env := newTestEnv(t, true)
	base := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		px := decimal.NewFromInt(int64(100 + i))
		env.oracle.candles = append(env.oracle.candles, domain.MarketCandle{
			OpenTime: base.Add(time.Duration(i) * time.Minute),
			Open:     px, High: px, Low: px, Close: px,
			Volume:    decimal.NewFromInt(1),
			CloseTime: base.Add(time.Duration(i+1) * time.Minute),
		})
	}

	rr := env.do(t, http.MethodGet, "/candles", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[candlesResponse](t, rr)
	assert.Len(t, resp.Candles, 3)
	assert.Equal(t, 3, resp.Summary.Candles)
	assert.Equal(t, "2", resp.Summary.Change)
	assert.Nil(t, resp.Summary.RSI)
	require.NotNil(t, resp.UpdatedAt)
}

func TestTradesFromJournal(t *testing.T) {
	journal := &fakeJournal{trades: make([]domain.Trade, 80)}
	env := newTestEnv(t, false, func(d *Deps) { d.Journal = journal })

	rr := env.do(t, http.MethodGet, "/trades?source=journal&limit=70", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[struct {
		Trades []domain.Trade `json:"trades"`
	}](t, rr)
	assert.Len(t, resp.Trades, 70)

	env = newTestEnv(t, true)
	rr = env.do(t, http.MethodGet, "/trades?source=journal", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestBalanceStream(t *testing.T) {
	snap := func(i uint64, cash string) domain.BalanceSnapshotRecord {
		return domain.BalanceSnapshotRecord{Index: i, Snapshot: domain.BalanceSnapshot{Pair: "BTC_USDT", Event: "buy", Cash: cash}}
	}
	store := &fakeSnapshots{records: []domain.BalanceSnapshotRecord{snap(1, "9000"), snap(2, "8000"), snap(3, "7000")}}
	env := newTestEnv(t, true, func(d *Deps) { d.Snapshots = store })

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/balance/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Last-Event-ID", "1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var ids, data []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() && len(data) < 2 {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "id: "):
			ids = append(ids, strings.TrimPrefix(line, "id: "))
		case strings.HasPrefix(line, "data: "):
			data = append(data, strings.TrimPrefix(line, "data: "))
		}
	}

	assert.Equal(t, []string{"2", "3"}, ids)
	require.Len(t, data, 2)
	assert.Contains(t, data[0], `"cash":"8000"`)
}

func TestBalanceStreamPushesOnNotify(t *testing.T) {
	prev := snapshotPollInterval
	snapshotPollInterval = time.Hour
	t.Cleanup(func() { snapshotPollInterval = prev })

	store := &fakeSnapshots{}
	notifier := events.NewBalanceBroadcaster(4)
	env := newTestEnv(t, true, func(d *Deps) {
		d.Snapshots = store
		d.Notifier = notifier
	})

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/balance/stream", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	require.True(t, scanner.Scan())
	assert.Equal(t, "event: no_data", scanner.Text())

	require.Eventually(t, func() bool { return notifier.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	record := domain.BalanceSnapshotRecord{Index: 1, Snapshot: domain.BalanceSnapshot{Pair: "BTC_USDT", Event: "reset", Cash: "10000"}}
	store.append(record)
	notifier.Publish(record)

	var got []string
	for scanner.Scan() && len(got) < 3 {
		if line := scanner.Text(); line != "" && !strings.HasPrefix(line, "data: {}") {
			got = append(got, line)
		}
	}
	require.Len(t, got, 3)
	assert.Equal(t, "id: 1", got[0])
	assert.Equal(t, "event: balance", got[1])
	assert.Contains(t, got[2], `"event":"reset"`)
}

func TestBalanceStreamErrors(t *testing.T) {
	env := newTestEnv(t, true)
	rr := env.do(t, http.MethodGet, "/balance/stream", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	env = newTestEnv(t, true, func(d *Deps) { d.Snapshots = &fakeSnapshots{err: errors.New("disk")} })
	rr = env.do(t, http.MethodGet, "/balance/stream", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestServerShutsDownOnCancel(t *testing.T) {
	env := newTestEnv(t, true)
	srv := NewServer("127.0.0.1:0", Deps{Portfolio: env.portfolio, Oracle: env.oracle})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestStartWithAutoTLSRequiresDomains(t *testing.T) {
	srv := NewServer(":0", Deps{})
	assert.Error(t, srv.StartWithAutoTLS(context.Background(), nil, ""))
}
