package server_test

import (
	"SparkLedger/internal/core"
	"SparkLedger/internal/ledger"
	"SparkLedger/internal/market"
	"SparkLedger/internal/observability"
	"SparkLedger/internal/query"
	"SparkLedger/internal/server"
	"SparkLedger/internal/treasury"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var restDay = time.Date(2026, time.January, 3, 12, 0, 0, 0, time.UTC)

type testAPI struct {
	srv     *httptest.Server
	metrics *observability.Metrics
	reg     *prometheus.Registry
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	l := ledger.New(ledger.DefaultRules())
	for account, bal := range map[string]int64{"player1": 100, "player2": 50} {
		if err := l.Seed(account, bal); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	m := market.New(market.DefaultConfig())
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	e := core.NewEngine(l, m, treasury.New(treasury.DefaultConfig(), m), core.Options{Metrics: metrics})

	mem := query.NewMemoryReader(e)
	api := server.NewAPI(e, mem, mem, metrics, observability.NewLoggerTo(io.Discard, "server", 0))
	n := 0
	api.NewID = func() string { n++; return fmt.Sprintf("http-%d", n) }
	api.Now = func() time.Time { return restDay }

	mux, err := server.NewGatewayMux(api)
	if err != nil {
		t.Fatalf("mux: %v", err)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testAPI{srv: srv, metrics: metrics, reg: reg}
}

func (ta *testAPI) do(t *testing.T, method, path, body string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, ta.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return resp.StatusCode, out
}

func number(v any) int64 {
	f, _ := v.(float64)
	return int64(f)
}

// ============================================================================
// Test: Writes
// ============================================================================

func TestAPI_Earn(t *testing.T) {
	ta := newTestAPI(t)

	status, body := ta.do(t, http.MethodPost, "/v1/accounts/player1/earn", `{"activity":"daily_login"}`, nil)
	if status != http.StatusOK {
		t.Fatalf("status: got %d, want 200: %v", status, body)
	}
	if body["command_id"] != "http-1" || number(body["sequence"]) != 1 {
		t.Errorf("envelope: %v", body)
	}
	result, _ := body["result"].(map[string]any)
	if number(result["earned"]) != 9 || number(result["tax"]) != 1 {
		t.Errorf("result: %v", result)
	}

	status, body = ta.do(t, http.MethodGet, "/v1/accounts/player1/balance", "", nil)
	if status != http.StatusOK || number(body["balance"]) != 109 {
		t.Errorf("balance: got %d %v, want 109", status, body)
	}
}

func TestAPI_IdempotencyKey(t *testing.T) {
	ta := newTestAPI(t)
	headers := map[string]string{server.IdempotencyHeader: "order-7"}

	_, first := ta.do(t, http.MethodPost, "/v1/accounts/player1/spend", `{"amount":10}`, headers)
	status, second := ta.do(t, http.MethodPost, "/v1/accounts/player1/spend", `{"amount":10}`, headers)

	if first["command_id"] != "order-7" || first["duplicate"] != false {
		t.Errorf("first: %v", first)
	}
	if status != http.StatusOK || second["duplicate"] != true {
		t.Errorf("second: got %d %v, want duplicate", status, second)
	}

	_, bal := ta.do(t, http.MethodGet, "/v1/accounts/player1/balance", "", nil)
	if number(bal["balance"]) != 90 {
		t.Errorf("balance: got %d, want 90", number(bal["balance"]))
	}
}

func TestAPI_ListingAndAuctionFlow(t *testing.T) {
	ta := newTestAPI(t)

	status, body := ta.do(t, http.MethodPost, "/v1/listings", `{"seller":"player1","item":"sword","price":40}`, nil)
	if status != http.StatusOK {
		t.Fatalf("create listing: %d %v", status, body)
	}
	listing, _ := body["result"].(map[string]any)
	id, _ := listing["id"].(string)

	status, _ = ta.do(t, http.MethodPost, "/v1/listings/"+id+"/buy", `{"buyer":"player2"}`, nil)
	if status != http.StatusOK {
		t.Fatalf("buy: got %d", status)
	}
	status, body = ta.do(t, http.MethodPost, "/v1/listings/"+id+"/buy", `{"buyer":"player2"}`, nil)
	if status != http.StatusConflict || body["code"] != "inactive" {
		t.Errorf("second buy: got %d %v, want 409 inactive", status, body)
	}

	status, body = ta.do(t, http.MethodPost, "/v1/auctions", `{"seller":"player1","item":"gem","startingBid":10}`, nil)
	if status != http.StatusOK {
		t.Fatalf("create auction: %d %v", status, body)
	}
	auction, _ := body["result"].(map[string]any)
	auctionID, _ := auction["id"].(string)

	status, body = ta.do(t, http.MethodPost, "/v1/auctions/"+auctionID+"/bids", `{"bidder":"player2","amount":5}`, nil)
	if status != http.StatusConflict || body["code"] != "bid_too_low" {
		t.Errorf("low bid: got %d %v", status, body)
	}

	status, body = ta.do(t, http.MethodGet, "/v1/auctions", "", nil)
	auctions, _ := body["auctions"].([]any)
	if status != http.StatusOK || len(auctions) != 1 {
		t.Errorf("auctions: got %d %v", status, body)
	}
}

func TestAPI_ErrorStatuses(t *testing.T) {
	ta := newTestAPI(t)
	ta.do(t, http.MethodPost, "/v1/listings", `{"seller":"player1","item":"bow","price":20}`, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"insufficient funds", http.MethodPost, "/v1/accounts/player2/spend", `{"amount":5000}`, http.StatusConflict},
		{"zero amount", http.MethodPost, "/v1/transfers", `{"from":"player1","to":"player2","amount":0}`, http.StatusBadRequest},
		{"self transfer", http.MethodPost, "/v1/transfers", `{"from":"player1","to":"player1","amount":1}`, http.StatusBadRequest},
		{"transfer to treasury", http.MethodPost, "/v1/transfers", `{"from":"player1","to":"TREASURY","amount":1}`, http.StatusForbidden},
		{"unknown listing", http.MethodPost, "/v1/listings/lst_99/buy", `{"buyer":"player2"}`, http.StatusNotFound},
		{"buy own listing", http.MethodPost, "/v1/listings/lst_1/buy", `{"buyer":"player1"}`, http.StatusBadRequest},
		{"cancel by stranger", http.MethodPost, "/v1/listings/lst_1/cancel", `{"seller":"player2"}`, http.StatusForbidden},
		{"unknown field", http.MethodPost, "/v1/accounts/player1/spend", `{"amount":1,"tip":2}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/v1/transfers", `{`, http.StatusBadRequest},
		{"unknown account", http.MethodGet, "/v1/accounts/ghost/balance", "", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, body := ta.do(t, tc.method, tc.path, tc.body, nil)
			if status != tc.status {
				t.Errorf("got %d, want %d: %v", status, tc.status, body)
			}
			if body["error"] == nil || body["code"] == nil {
				t.Errorf("error body missing fields: %v", body)
			}
		})
	}
}

func TestStatusFor_Wrapped(t *testing.T) {
	err := fmt.Errorf("auction auc_1: %w", market.ErrAuctionEnded)
	if status, code := server.StatusFor(err); status != http.StatusConflict || code != "auction_ended" {
		t.Errorf("got %d %s, want 409 auction_ended", status, code)
	}
	if status, _ := server.StatusFor(errors.New("boom")); status != http.StatusInternalServerError {
		t.Errorf("got %d, want 500", status)
	}
}

// ============================================================================
// Test: Reads
// ============================================================================

func TestAPI_LeaderboardTreasuryIntegrity(t *testing.T) {
	ta := newTestAPI(t)
	ta.do(t, http.MethodPost, "/v1/accounts/player2/earn", `{"activity":"daily_login"}`, nil)

	status, body := ta.do(t, http.MethodGet, "/v1/leaderboard?limit=5", "", nil)
	entries, _ := body["entries"].([]any)
	if status != http.StatusOK || len(entries) != 2 {
		t.Fatalf("leaderboard: got %d %v", status, body)
	}
	top, _ := entries[0].(map[string]any)
	if top["player"] != "player1" || number(top["rank"]) != 1 {
		t.Errorf("top: %v", top)
	}

	status, body = ta.do(t, http.MethodGet, "/v1/treasury", "", nil)
	if status != http.StatusOK || number(body["eligible_players"]) != 2 {
		t.Errorf("treasury: got %d %v", status, body)
	}

	status, body = ta.do(t, http.MethodGet, "/v1/integrity", "", nil)
	if status != http.StatusOK || body["valid"] != true {
		t.Errorf("integrity: got %d %v", status, body)
	}

	status, body = ta.do(t, http.MethodGet, "/v1/accounts/player2/transactions", "", nil)
	history, _ := body["entries"].([]any)
	if status != http.StatusOK || len(history) != 2 {
		t.Errorf("history: got %d %v", status, body)
	}
}

func TestAPI_ChainNeedsCommandLog(t *testing.T) {
	ta := newTestAPI(t)
	status, body := ta.do(t, http.MethodGet, "/v1/integrity/chain", "", nil)
	if status != http.StatusNotFound || body["code"] != "not_found" {
		t.Errorf("chain on memory reader: got %d %v, want 404 not_found", status, body)
	}
}

// ============================================================================
// Test: Admin Router
// ============================================================================

func TestAdminHandler(t *testing.T) {
	ta := newTestAPI(t)
	ta.do(t, http.MethodGet, "/v1/treasury", "", nil)

	health := observability.NewHealthChecker()
	srv := httptest.NewServer(server.AdminHandler(ta.reg, health, nil))
	defer srv.Close()

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(b)
	}

	if status, _ := get("/healthz"); status != http.StatusOK {
		t.Errorf("healthz: got %d", status)
	}
	if status, _ := get("/readyz"); status != http.StatusServiceUnavailable {
		t.Errorf("readyz before ready: got %d, want 503", status)
	}
	health.SetReady(true)
	if status, _ := get("/readyz"); status != http.StatusOK {
		t.Errorf("readyz: got %d, want 200", status)
	}

	status, metrics := get("/metrics")
	if status != http.StatusOK || !strings.Contains(metrics, `spark_query_requests_total{endpoint="treasury",status="200"} 1`) {
		t.Errorf("metrics missing query counter (status %d)", status)
	}
}
