package api

// Request and response types for the REST endpoints and the WebSocket
// event stream. Monetary amounts travel as decimal strings: stable
// units use 6 decimals, native and token amounts 18.

// ==============================
// REST response types
// ==============================

type OrderInfo struct {
	ID     uint64     `json:"id"`
	Buyer  string     `json:"buyer"`
	Seller string     `json:"seller"`
	Amount string     `json:"amount"`
	State  string     `json:"state"`
	Logs   []LogInfo  `json:"logs"`
}

type LogInfo struct {
	State     string `json:"state"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

type BalanceInfo struct {
	Stablecoin string `json:"stablecoin"`
	Balance    string `json:"balance"`
}

type PegInfo struct {
	Feed   string `json:"feed"`
	Pegged bool   `json:"pegged"`
}

type StatsInfo struct {
	TotalOrders  uint64 `json:"totalOrders"`
	TotalSellers int    `json:"totalSellers"`
}

type CreatedResponse struct {
	ID uint64 `json:"id"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// ==============================
// REST request types
// ==============================

// Caller identifies the acting address. This is a devnet surface: the
// caller is taken at face value; wallet signatures belong to the host
// transaction layer, not to this engine.
type CallerRequest struct {
	Caller string `json:"caller"`
}

type CreateNativeRequest struct {
	Caller        string `json:"caller"`
	Seller        string `json:"seller"`
	AmountOut     string `json:"amountOut"`
	AttachedValue string `json:"attachedValue"`
}

type CreateStableRequest struct {
	Caller        string `json:"caller"`
	Seller        string `json:"seller"`
	AmountOut     string `json:"amountOut"`
	AttachedValue string `json:"attachedValue,omitempty"`
}

type CreateTokensRequest struct {
	Caller      string `json:"caller"`
	Seller      string `json:"seller"`
	AmountOut   string `json:"amountOut"`
	AmountInMax string `json:"amountInMax"`
	TokenIn     string `json:"tokenIn"`
}

type RefundRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type SetFeedRequest struct {
	Caller string `json:"caller"`
	Feed   string `json:"feed"`
}

type SetStablecoinRequest struct {
	Caller string `json:"caller"`
	Asset  string `json:"asset"`
}

type SetThresholdRequest struct {
	Caller    string `json:"caller"`
	Threshold string `json:"threshold"`
}

// ==============================
// WebSocket messages
// ==============================

// OrderEventMessage is pushed once per appended order log entry.
type OrderEventMessage struct {
	Type      string `json:"type"` // always "order_event"
	OrderID   uint64 `json:"orderId"`
	State     string `json:"state"`
	Timestamp int64  `json:"timestamp"`
}
