package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/TeamOberon07/contract/pkg/escrow"
	"github.com/TeamOberon07/contract/pkg/oracle"
)

// Server exposes the escrow engine over REST plus a WebSocket stream of
// order log events.
type Server struct {
	engine *escrow.Engine
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger

	allowedOrigins []string
}

func NewServer(engine *escrow.Engine, allowedOrigins []string, log *zap.SugaredLogger) *Server {
	s := &Server{
		engine:         engine,
		router:         mux.NewRouter(),
		hub:            NewHub(log),
		log:            log,
		allowedOrigins: allowedOrigins,
	}

	// Every appended order log entry goes out on the stream.
	engine.SetNotifier(func(ev escrow.Event) {
		msg, err := json.Marshal(OrderEventMessage{
			Type:      "order_event",
			OrderID:   ev.OrderID,
			State:     ev.Entry.State.String(),
			Timestamp: ev.Entry.Timestamp,
		})
		if err != nil {
			return
		}
		s.hub.Broadcast(msg)
	})

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Sellers
	api.HandleFunc("/sellers", s.handleGetSellers).Methods("GET")
	api.HandleFunc("/sellers/register", s.handleRegisterSeller).Methods("POST")

	// Orders
	api.HandleFunc("/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/logs", s.handleGetOrderLogs).Methods("GET")
	api.HandleFunc("/users/{address}/orders", s.handleGetOrdersOfUser).Methods("GET")

	// Creation paths
	api.HandleFunc("/orders/native", s.handleCreateNative).Methods("POST")
	api.HandleFunc("/orders/stable", s.handleCreateStable).Methods("POST")
	api.HandleFunc("/orders/tokens", s.handleCreateTokens).Methods("POST")

	// Lifecycle
	api.HandleFunc("/orders/{id}/ship", s.handleShip).Methods("POST")
	api.HandleFunc("/orders/{id}/confirm", s.handleConfirm).Methods("POST")
	api.HandleFunc("/orders/{id}/delete", s.handleDelete).Methods("POST")
	api.HandleFunc("/orders/{id}/ask-refund", s.handleAskRefund).Methods("POST")
	api.HandleFunc("/orders/{id}/refund", s.handleRefund).Methods("POST")

	// Engine state
	api.HandleFunc("/balance", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/peg", s.handleGetPeg).Methods("GET")
	api.HandleFunc("/stats", s.handleGetStats).Methods("GET")

	// Administration
	api.HandleFunc("/admin/feed", s.handleSetFeed).Methods("POST")
	api.HandleFunc("/admin/stablecoin", s.handleSetStablecoin).Methods("POST")
	api.HandleFunc("/admin/threshold", s.handleSetThreshold).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the fully wired HTTP handler; useful for tests.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start runs the WebSocket hub and serves until the listener fails.
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	s.log.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// ==============================
// REST handlers
// ==============================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleGetSellers(w http.ResponseWriter, r *http.Request) {
	sellers := s.engine.Sellers()
	out := make([]string, len(sellers))
	for i, addr := range sellers {
		out[i] = addr.Hex()
	}
	respondJSON(w, out)
}

func (s *Server) handleRegisterSeller(w http.ResponseWriter, r *http.Request) {
	var req CallerRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	if err := s.engine.RegisterAsSeller(caller); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"registered": caller.Hex()})
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, toOrderInfos(s.engine.Orders()))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseOrderID(w, r)
	if !ok {
		return
	}
	o, err := s.engine.Order(id)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, toOrderInfo(o))
}

func (s *Server) handleGetOrderLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseOrderID(w, r)
	if !ok {
		return
	}
	logs, err := s.engine.LogsOfOrder(id)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	out := make([]LogInfo, len(logs))
	for i, l := range logs {
		out[i] = LogInfo{State: l.State.String(), Timestamp: l.Timestamp}
	}
	respondJSON(w, out)
}

func (s *Server) handleGetOrdersOfUser(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.parseAddress(w, mux.Vars(r)["address"], "address")
	if !ok {
		return
	}
	orders, err := s.engine.OrdersOfUser(addr)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, toOrderInfos(orders))
}

func (s *Server) handleCreateNative(w http.ResponseWriter, r *http.Request) {
	var req CreateNativeRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	seller, ok := s.parseAddress(w, req.Seller, "seller")
	if !ok {
		return
	}
	amountOut, ok := s.parseAmount(w, req.AmountOut, "amountOut")
	if !ok {
		return
	}
	attached, ok := s.parseAmount(w, req.AttachedValue, "attachedValue")
	if !ok {
		return
	}

	id, err := s.engine.CreateOrderWithNativeToStable(caller, seller, amountOut, attached)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, CreatedResponse{ID: id})
}

func (s *Server) handleCreateStable(w http.ResponseWriter, r *http.Request) {
	var req CreateStableRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	seller, ok := s.parseAddress(w, req.Seller, "seller")
	if !ok {
		return
	}
	amountOut, ok := s.parseAmount(w, req.AmountOut, "amountOut")
	if !ok {
		return
	}
	var attached *big.Int
	if req.AttachedValue != "" {
		if attached, ok = s.parseAmount(w, req.AttachedValue, "attachedValue"); !ok {
			return
		}
	}

	id, err := s.engine.CreateOrderWithStable(caller, seller, amountOut, attached)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, CreatedResponse{ID: id})
}

func (s *Server) handleCreateTokens(w http.ResponseWriter, r *http.Request) {
	var req CreateTokensRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	seller, ok := s.parseAddress(w, req.Seller, "seller")
	if !ok {
		return
	}
	tokenIn, ok := s.parseAddress(w, req.TokenIn, "tokenIn")
	if !ok {
		return
	}
	amountOut, ok := s.parseAmount(w, req.AmountOut, "amountOut")
	if !ok {
		return
	}
	amountInMax, ok := s.parseAmount(w, req.AmountInMax, "amountInMax")
	if !ok {
		return
	}

	id, err := s.engine.CreateOrderWithTokensToStable(caller, seller, amountOut, amountInMax, tokenIn)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, CreatedResponse{ID: id})
}

func (s *Server) handleShip(w http.ResponseWriter, r *http.Request) {
	s.handleLifecycle(w, r, s.engine.ShipOrder)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	s.handleLifecycle(w, r, s.engine.ConfirmOrder)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.handleLifecycle(w, r, s.engine.DeleteOrder)
}

func (s *Server) handleAskRefund(w http.ResponseWriter, r *http.Request) {
	s.handleLifecycle(w, r, s.engine.AskRefund)
}

func (s *Server) handleLifecycle(w http.ResponseWriter, r *http.Request, op func(common.Address, uint64) error) {
	id, ok := s.parseOrderID(w, r)
	if !ok {
		return
	}
	var req CallerRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	if err := op(caller, id); err != nil {
		s.respondEngineError(w, err)
		return
	}
	o, err := s.engine.Order(id)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, toOrderInfo(o))
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseOrderID(w, r)
	if !ok {
		return
	}
	var req RefundRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	amount, ok := s.parseAmount(w, req.Amount, "amount")
	if !ok {
		return
	}
	if err := s.engine.RefundBuyer(caller, id, amount); err != nil {
		s.respondEngineError(w, err)
		return
	}
	o, err := s.engine.Order(id)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, toOrderInfo(o))
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, BalanceInfo{
		Stablecoin: s.engine.Stablecoin().Hex(),
		Balance:    s.engine.Balance().String(),
	})
}

func (s *Server) handleGetPeg(w http.ResponseWriter, r *http.Request) {
	pegged, err := s.engine.StablecoinIsPegged()
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, PegInfo{Feed: s.engine.StableFeed().Hex(), Pegged: pegged})
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, StatsInfo{
		TotalOrders:  s.engine.TotalOrders(),
		TotalSellers: s.engine.TotalSellers(),
	})
}

func (s *Server) handleSetFeed(w http.ResponseWriter, r *http.Request) {
	var req SetFeedRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	feed, ok := s.parseAddress(w, req.Feed, "feed")
	if !ok {
		return
	}
	if err := s.engine.SetStablecoinDataFeed(caller, feed); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"feed": feed.Hex()})
}

func (s *Server) handleSetStablecoin(w http.ResponseWriter, r *http.Request) {
	var req SetStablecoinRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	asset, ok := s.parseAddress(w, req.Asset, "asset")
	if !ok {
		return
	}
	if err := s.engine.SetStablecoinAddress(caller, asset); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"stablecoin": asset.Hex()})
}

func (s *Server) handleSetThreshold(w http.ResponseWriter, r *http.Request) {
	var req SetThresholdRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	threshold, ok := s.parseAmount(w, req.Threshold, "threshold")
	if !ok {
		return
	}
	if err := s.engine.SetStablecoinPegThreshold(caller, threshold); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"threshold": threshold.String()})
}

// ==============================
// Helpers
// ==============================

func toOrderInfo(o escrow.Order) OrderInfo {
	logs := make([]LogInfo, len(o.Logs))
	for i, l := range o.Logs {
		logs[i] = LogInfo{State: l.State.String(), Timestamp: l.Timestamp}
	}
	return OrderInfo{
		ID:     o.ID,
		Buyer:  o.Buyer.Hex(),
		Seller: o.Seller.Hex(),
		Amount: o.Amount.String(),
		State:  o.State.String(),
		Logs:   logs,
	}
}

func toOrderInfos(orders []escrow.Order) []OrderInfo {
	out := make([]OrderInfo, len(orders))
	for i, o := range orders {
		out[i] = toOrderInfo(o)
	}
	return out
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

func (s *Server) parseOrderID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", raw)
		return 0, false
	}
	return id, true
}

func (s *Server) parseAddress(w http.ResponseWriter, raw, field string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s address", field), raw)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func (s *Server) parseAmount(w http.ResponseWriter, raw, field string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", field), raw)
		return nil, false
	}
	return v, true
}

func (s *Server) respondEngineError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, escrow.ErrOrderNotFound),
		errors.Is(err, escrow.ErrUserNotFound),
		errors.Is(err, oracle.ErrFeedNotFound):
		status = http.StatusNotFound
	case errors.Is(err, escrow.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, escrow.ErrAlreadyRegistered):
		status = http.StatusConflict
	}
	respondError(w, status, err.Error(), "")
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func respondError(w http.ResponseWriter, status int, msg, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: msg, Detail: detail})
}
