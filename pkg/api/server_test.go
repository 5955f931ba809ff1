package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/TeamOberon07/contract/pkg/escrow"
	"github.com/TeamOberon07/contract/pkg/ledger"
	"github.com/TeamOberon07/contract/pkg/oracle"
	"github.com/TeamOberon07/contract/pkg/swap"
)

var (
	owner       = common.HexToAddress("0x00000000000000000000000000000000000000A0")
	custodyAddr = common.HexToAddress("0x00000000000000000000000000000000000000E5")
	vaultAddr   = common.HexToAddress("0x00000000000000000000000000000000000000F0")

	usdcAddr    = common.HexToAddress("0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E")
	wavaxAddr   = common.HexToAddress("0xB31f66AA3C1e785363F0875A1B74E27b85FD66c7")
	usdFeedAddr = common.HexToAddress("0xF096872672F44d6EBA71458D74fe67F9a77a23B9")

	seller = common.HexToAddress("0x5E11000000000000000000000000000000000001")
	buyer  = common.HexToAddress("0xB000000000000000000000000000000000000001")
)

func usd(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000))
}

func avax(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	l := ledger.NewTokenLedger()
	r := swap.NewFixedRateRouter(l, vaultAddr)
	if err := r.SetRate(wavaxAddr, usdcAddr, big.NewInt(1e12), big.NewInt(20)); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	l.Mint(usdcAddr, vaultAddr, usd(1_000_000))
	l.Mint(usdcAddr, buyer, usd(10_000))
	l.Mint(wavaxAddr, buyer, avax(1_000))

	feeds := oracle.NewRegistry()
	if err := feeds.Register(usdFeedAddr, oracle.NewStaticFeed(big.NewInt(1e8), 8)); err != nil {
		t.Fatalf("register feed: %v", err)
	}

	eng := escrow.NewEngine(escrow.Config{
		Owner:         owner,
		Custody:       custodyAddr,
		Stablecoin:    usdcAddr,
		WrappedNative: wavaxAddr,
		StableFeed:    usdFeedAddr,
		PegThreshold:  big.NewInt(2e16),
	}, l, r, feeds, nil)

	srv := NewServer(eng, []string{"*"}, zap.NewNop().Sugar())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody[map[string]string](t, resp)
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestSellerRegistrationOverREST(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/sellers/register", CallerRequest{Caller: seller.Hex()})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	// Registering twice conflicts.
	resp = postJSON(t, ts.URL+"/api/v1/sellers/register", CallerRequest{Caller: seller.Hex()})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("re-register status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	listResp, err := http.Get(ts.URL + "/api/v1/sellers")
	if err != nil {
		t.Fatalf("GET sellers: %v", err)
	}
	sellers := decodeBody[[]string](t, listResp)
	if len(sellers) != 1 || sellers[0] != seller.Hex() {
		t.Errorf("sellers = %v, want [%s]", sellers, seller.Hex())
	}
}

func TestOrderLifecycleOverREST(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/sellers/register", CallerRequest{Caller: seller.Hex()})
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/api/v1/orders/stable", CreateStableRequest{
		Caller:    buyer.Hex(),
		Seller:    seller.Hex(),
		AmountOut: usd(100).String(),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create status = %d, want 200", resp.StatusCode)
	}
	created := decodeBody[CreatedResponse](t, resp)
	if created.ID != 0 {
		t.Fatalf("order id = %d, want 0", created.ID)
	}

	base := fmt.Sprintf("%s/api/v1/orders/%d", ts.URL, created.ID)

	resp = postJSON(t, base+"/ship", CallerRequest{Caller: seller.Hex()})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ship status = %d, want 200", resp.StatusCode)
	}
	shipped := decodeBody[OrderInfo](t, resp)
	if shipped.State != "shipped" {
		t.Errorf("state after ship = %q, want shipped", shipped.State)
	}

	resp = postJSON(t, base+"/confirm", CallerRequest{Caller: buyer.Hex()})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm status = %d, want 200", resp.StatusCode)
	}
	confirmed := decodeBody[OrderInfo](t, resp)
	if confirmed.State != "confirmed" {
		t.Errorf("state after confirm = %q, want confirmed", confirmed.State)
	}

	logsResp, err := http.Get(base + "/logs")
	if err != nil {
		t.Fatalf("GET logs: %v", err)
	}
	logs := decodeBody[[]LogInfo](t, logsResp)
	if len(logs) != 3 {
		t.Fatalf("len(logs) = %d, want 3", len(logs))
	}
}

func TestErrorStatusMapping(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/sellers/register", CallerRequest{Caller: seller.Hex()})
	resp.Body.Close()
	resp = postJSON(t, ts.URL+"/api/v1/orders/stable", CreateStableRequest{
		Caller:    buyer.Hex(),
		Seller:    seller.Hex(),
		AmountOut: usd(100).String(),
	})
	resp.Body.Close()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown order", "GET", "/api/v1/orders/42", nil, http.StatusNotFound},
		{"unknown user", "GET", "/api/v1/users/0xDEAD000000000000000000000000000000000000/orders", nil, http.StatusNotFound},
		{"wrong caller ships", "POST", "/api/v1/orders/0/ship", CallerRequest{Caller: buyer.Hex()}, http.StatusForbidden},
		{"bad address", "POST", "/api/v1/sellers/register", CallerRequest{Caller: "nonsense"}, http.StatusBadRequest},
		{"unregistered seller", "POST", "/api/v1/orders/stable", CreateStableRequest{
			Caller: buyer.Hex(), Seller: "0xDEAD000000000000000000000000000000000000", AmountOut: "1",
		}, http.StatusNotFound},
		{"non-owner sets feed", "POST", "/api/v1/admin/feed", SetFeedRequest{
			Caller: buyer.Hex(), Feed: usdFeedAddr.Hex(),
		}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			var err error
			if tt.method == "GET" {
				resp, err = http.Get(ts.URL + tt.path)
				if err != nil {
					t.Fatalf("GET: %v", err)
				}
			} else {
				resp = postJSON(t, ts.URL+tt.path, tt.body)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestPegAndStatsEndpoints(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/peg")
	if err != nil {
		t.Fatalf("GET peg: %v", err)
	}
	peg := decodeBody[PegInfo](t, resp)
	if !peg.Pegged {
		t.Error("expected the stablecoin to report pegged")
	}
	if peg.Feed != usdFeedAddr.Hex() {
		t.Errorf("feed = %s, want %s", peg.Feed, usdFeedAddr.Hex())
	}

	resp, err = http.Get(ts.URL + "/api/v1/stats")
	if err != nil {
		t.Fatalf("GET stats: %v", err)
	}
	stats := decodeBody[StatsInfo](t, resp)
	if stats.TotalOrders != 0 || stats.TotalSellers != 0 {
		t.Errorf("stats = %+v, want zeros on a fresh engine", stats)
	}
}

func TestBalanceEndpointTracksCustody(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/sellers/register", CallerRequest{Caller: seller.Hex()})
	resp.Body.Close()
	resp = postJSON(t, ts.URL+"/api/v1/orders/stable", CreateStableRequest{
		Caller:    buyer.Hex(),
		Seller:    seller.Hex(),
		AmountOut: usd(250).String(),
	})
	resp.Body.Close()

	balResp, err := http.Get(ts.URL + "/api/v1/balance")
	if err != nil {
		t.Fatalf("GET balance: %v", err)
	}
	bal := decodeBody[BalanceInfo](t, balResp)
	if bal.Balance != usd(250).String() {
		t.Errorf("balance = %s, want %s", bal.Balance, usd(250))
	}
}
