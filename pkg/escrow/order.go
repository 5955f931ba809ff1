package escrow

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// State is the lifecycle state of an escrow order.
type State uint8

const (
	StateCreated State = iota
	StateShipped
	StateConfirmed
	StateDeleted
	StateRefundAsked
	StateRefunded
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateShipped:
		return "shipped"
	case StateConfirmed:
		return "confirmed"
	case StateDeleted:
		return "deleted"
	case StateRefundAsked:
		return "refund_asked"
	case StateRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}

// LogEntry is one append-only record in an order's history. Every state
// transition appends exactly one entry; entries are never mutated.
type LogEntry struct {
	State     State `json:"state"`
	Timestamp int64 `json:"timestamp"` // unix milliseconds
}

// Order is an escrowed trade between a buyer and a registered seller.
// Amount is in stable units (6 decimals) and is fixed at creation.
// While the order sits in Created, Shipped or RefundAsked, the engine's
// custody holds Amount stable units on the ledger for it.
type Order struct {
	ID     uint64         `json:"id"`
	Buyer  common.Address `json:"buyer"`
	Seller common.Address `json:"seller"`
	Amount *big.Int       `json:"amount"`
	State  State          `json:"state"`
	Logs   []LogEntry     `json:"logs"`
}

// snapshot returns a deep copy so callers can never reach engine state.
func (o *Order) snapshot() Order {
	cp := Order{
		ID:     o.ID,
		Buyer:  o.Buyer,
		Seller: o.Seller,
		Amount: new(big.Int).Set(o.Amount),
		State:  o.State,
		Logs:   make([]LogEntry, len(o.Logs)),
	}
	copy(cp.Logs, o.Logs)
	return cp
}

// Event is emitted once per appended log entry, in append order.
type Event struct {
	OrderID uint64   `json:"orderId"`
	Entry   LogEntry `json:"entry"`
}
