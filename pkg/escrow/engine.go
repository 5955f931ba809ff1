package escrow

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/TeamOberon07/contract/pkg/ledger"
	"github.com/TeamOberon07/contract/pkg/oracle"
	"github.com/TeamOberon07/contract/pkg/swap"
	"github.com/TeamOberon07/contract/pkg/util"
)

// Config fixes the engine's identities and monetary parameters.
type Config struct {
	Owner         common.Address // administrator allowed to touch the stablecoin setters
	Custody       common.Address // ledger holder identity of the engine itself
	Stablecoin    common.Address // unit of account, 6 decimals
	WrappedNative common.Address // native currency on the ledger; bridge hop of every route
	StableFeed    common.Address // oracle feed watching the stablecoin's peg
	PegThreshold  *big.Int       // max deviation from 1.0, 18-decimal fraction
}

// Engine owns the order table, per-order logs and the seller registry,
// and moves custody of stable units through the ledger as orders walk
// the lifecycle. Every public operation runs under one mutex: a call is
// a serialized all-or-nothing transaction, validation first, fund
// movement second, state mutation last.
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	ledger ledger.Ledger
	router swap.Router
	feeds  *oracle.Registry
	clock  util.Clock

	orders     []*Order
	sellers    map[common.Address]bool
	sellerList []common.Address // enumeration order = registration order
	users      map[common.Address]bool

	notify func(Event)
}

func NewEngine(cfg Config, l ledger.Ledger, r swap.Router, feeds *oracle.Registry, clock util.Clock) *Engine {
	if clock == nil {
		clock = util.RealClock{}
	}
	cfg.PegThreshold = new(big.Int).Set(cfg.PegThreshold)
	return &Engine{
		cfg:     cfg,
		ledger:  l,
		router:  r,
		feeds:   feeds,
		clock:   clock,
		sellers: make(map[common.Address]bool),
		users:   make(map[common.Address]bool),
	}
}

// SetNotifier installs a callback invoked once per appended log entry,
// in append order, while the engine lock is held. The callback must not
// call back into the engine.
func (e *Engine) SetNotifier(fn func(Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notify = fn
}

// ----------------------------------------------------------------------
// Seller registry
// ----------------------------------------------------------------------

func (e *Engine) RegisterAsSeller(caller common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sellers[caller] {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, caller.Hex())
	}
	e.sellers[caller] = true
	e.sellerList = append(e.sellerList, caller)
	e.users[caller] = true
	return nil
}

// ----------------------------------------------------------------------
// Order creation — the three acquisition paths
// ----------------------------------------------------------------------

// CreateOrderWithNativeToStable funds an order with attached native
// currency, swapped exact-out to amountOut stable units along
// native -> bridge -> stable. Excess attached value comes back to the
// caller, never stays with the engine.
func (e *Engine) CreateOrderWithNativeToStable(caller, seller common.Address, amountOut, attachedValue *big.Int) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkCreateLocked(seller, amountOut); err != nil {
		return 0, err
	}

	path := []common.Address{e.cfg.WrappedNative, e.cfg.Stablecoin}
	quote, err := e.router.QuoteIn(path, amountOut)
	if err != nil {
		return 0, fmt.Errorf("failed to quote native swap: %w", err)
	}
	if attachedValue == nil || attachedValue.Cmp(quote) < 0 {
		return 0, fmt.Errorf("%w: attached value %s does not cover the quoted %s", ErrInvalidAmount, attachedValue, quote)
	}

	// Host semantics: the attached value moves into engine custody with
	// the call itself.
	if err := e.ledger.Transfer(e.cfg.WrappedNative, caller, e.cfg.Custody, attachedValue); err != nil {
		return 0, fmt.Errorf("failed to receive attached value: %w", err)
	}

	amountIn, err := e.router.SwapForExact(path, amountOut, attachedValue, e.cfg.Custody)
	if err != nil {
		// Quote was checked, so this is a router fault; hand the
		// attached value back and abort with no order created.
		_ = e.ledger.Transfer(e.cfg.WrappedNative, e.cfg.Custody, caller, attachedValue)
		return 0, fmt.Errorf("native swap failed: %w", err)
	}

	if residual := new(big.Int).Sub(attachedValue, amountIn); residual.Sign() > 0 {
		if err := e.ledger.Transfer(e.cfg.WrappedNative, e.cfg.Custody, caller, residual); err != nil {
			return 0, fmt.Errorf("failed to return native residual: %w", err)
		}
	}

	return e.createOrderLocked(caller, seller, amountOut), nil
}

// CreateOrderWithStable funds an order with a direct stable-unit
// deposit. The path takes no native value; a nonzero attachment is a
// caller error.
func (e *Engine) CreateOrderWithStable(caller, seller common.Address, amountOut, attachedValue *big.Int) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if attachedValue != nil && attachedValue.Sign() > 0 {
		return 0, fmt.Errorf("%w: the stable path accepts no native value, got %s", ErrInvalidAmount, attachedValue)
	}
	if err := e.checkCreateLocked(seller, amountOut); err != nil {
		return 0, err
	}

	if err := e.ledger.Transfer(e.cfg.Stablecoin, caller, e.cfg.Custody, amountOut); err != nil {
		return 0, fmt.Errorf("failed to deposit stable units: %w", err)
	}

	return e.createOrderLocked(caller, seller, amountOut), nil
}

// CreateOrderWithTokensToStable funds an order with an arbitrary input
// asset, swapped exact-out along token -> bridge -> stable. The caller
// fronts amountInMax; the unspent residual is returned.
func (e *Engine) CreateOrderWithTokensToStable(caller, seller common.Address, amountOut, amountInMax *big.Int, tokenIn common.Address) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkCreateLocked(seller, amountOut); err != nil {
		return 0, err
	}
	if amountInMax == nil || amountInMax.Sign() <= 0 {
		return 0, fmt.Errorf("%w: amountInMax must be positive", ErrInvalidAmount)
	}

	path := []common.Address{tokenIn, e.cfg.WrappedNative, e.cfg.Stablecoin}
	quote, err := e.router.QuoteIn(path, amountOut)
	if err != nil {
		return 0, fmt.Errorf("failed to quote token swap: %w", err)
	}
	if quote.Cmp(amountInMax) > 0 {
		return 0, fmt.Errorf("%w: need %s of %s, willing to pay %s", ErrSlippageExceeded, quote, tokenIn.Hex(), amountInMax)
	}

	if err := e.ledger.Transfer(tokenIn, caller, e.cfg.Custody, amountInMax); err != nil {
		return 0, fmt.Errorf("failed to pull input asset: %w", err)
	}

	amountIn, err := e.router.SwapForExact(path, amountOut, amountInMax, e.cfg.Custody)
	if err != nil {
		_ = e.ledger.Transfer(tokenIn, e.cfg.Custody, caller, amountInMax)
		return 0, fmt.Errorf("token swap failed: %w", err)
	}

	if residual := new(big.Int).Sub(amountInMax, amountIn); residual.Sign() > 0 {
		if err := e.ledger.Transfer(tokenIn, e.cfg.Custody, caller, residual); err != nil {
			return 0, fmt.Errorf("failed to return input residual: %w", err)
		}
	}

	return e.createOrderLocked(caller, seller, amountOut), nil
}

func (e *Engine) checkCreateLocked(seller common.Address, amountOut *big.Int) error {
	if amountOut == nil || amountOut.Sign() <= 0 {
		return fmt.Errorf("%w: order amount must be positive", ErrInvalidAmount)
	}
	if !e.sellers[seller] {
		return fmt.Errorf("%w: seller %s", ErrUserNotFound, seller.Hex())
	}
	return nil
}

func (e *Engine) createOrderLocked(buyer, seller common.Address, amount *big.Int) uint64 {
	o := &Order{
		ID:     uint64(len(e.orders)),
		Buyer:  buyer,
		Seller: seller,
		Amount: new(big.Int).Set(amount),
	}
	e.orders = append(e.orders, o)
	e.users[buyer] = true
	e.appendLogLocked(o, StateCreated)
	return o.ID
}

// ----------------------------------------------------------------------
// Lifecycle transitions
// ----------------------------------------------------------------------

func (e *Engine) ShipOrder(caller common.Address, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, err := e.orderLocked(id)
	if err != nil {
		return err
	}
	if o.Seller != caller {
		return fmt.Errorf("%w: only the seller may ship order %d", ErrUnauthorized, id)
	}
	if o.State != StateCreated {
		return fmt.Errorf("%w: cannot ship order %d from %s", ErrInvalidState, id, o.State)
	}

	e.appendLogLocked(o, StateShipped)
	return nil
}

func (e *Engine) ConfirmOrder(caller common.Address, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, err := e.orderLocked(id)
	if err != nil {
		return err
	}
	if o.Buyer != caller {
		return fmt.Errorf("%w: only the buyer may confirm order %d", ErrUnauthorized, id)
	}
	if o.State != StateShipped {
		return fmt.Errorf("%w: cannot confirm order %d from %s", ErrInvalidState, id, o.State)
	}

	if err := e.ledger.Transfer(e.cfg.Stablecoin, e.cfg.Custody, o.Seller, o.Amount); err != nil {
		return fmt.Errorf("failed to release custody to seller: %w", err)
	}
	e.appendLogLocked(o, StateConfirmed)
	return nil
}

func (e *Engine) DeleteOrder(caller common.Address, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, err := e.orderLocked(id)
	if err != nil {
		return err
	}
	if o.Seller != caller {
		return fmt.Errorf("%w: only the seller may delete order %d", ErrUnauthorized, id)
	}
	if o.State != StateCreated {
		return fmt.Errorf("%w: cannot delete order %d from %s", ErrInvalidState, id, o.State)
	}

	if err := e.ledger.Transfer(e.cfg.Stablecoin, e.cfg.Custody, o.Buyer, o.Amount); err != nil {
		return fmt.Errorf("failed to return custody to buyer: %w", err)
	}
	e.appendLogLocked(o, StateDeleted)
	return nil
}

// AskRefund records the buyer's refund request and settles it on the
// spot when the engine's current stable balance covers the amount.
// The balance check and the transfer happen in the same critical
// section, so two concurrent requests cannot both spend the same funds.
func (e *Engine) AskRefund(caller common.Address, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, err := e.orderLocked(id)
	if err != nil {
		return err
	}
	if o.Buyer != caller {
		return fmt.Errorf("%w: only the buyer may ask a refund for order %d", ErrUnauthorized, id)
	}
	switch o.State {
	case StateCreated, StateShipped, StateConfirmed:
	default:
		return fmt.Errorf("%w: cannot ask refund for order %d from %s", ErrInvalidState, id, o.State)
	}

	e.appendLogLocked(o, StateRefundAsked)

	balance := e.ledger.BalanceOf(e.cfg.Stablecoin, e.cfg.Custody)
	if balance.Cmp(o.Amount) < 0 {
		// Not enough custody right now; the seller settles it later
		// through RefundBuyer.
		return nil
	}

	if err := e.ledger.Transfer(e.cfg.Stablecoin, e.cfg.Custody, o.Buyer, o.Amount); err != nil {
		return fmt.Errorf("failed to refund buyer: %w", err)
	}
	e.appendLogLocked(o, StateRefunded)
	return nil
}

// RefundBuyer settles a pending refund: the seller deposits exactly the
// order amount, which the engine forwards to the buyer.
func (e *Engine) RefundBuyer(caller common.Address, id uint64, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, err := e.orderLocked(id)
	if err != nil {
		return err
	}
	if o.Seller != caller {
		return fmt.Errorf("%w: only the seller may refund order %d", ErrUnauthorized, id)
	}
	if o.State != StateRefundAsked {
		return fmt.Errorf("%w: cannot refund order %d from %s", ErrInvalidState, id, o.State)
	}
	if amount == nil || amount.Cmp(o.Amount) != 0 {
		return fmt.Errorf("%w: refund must be exactly %s, got %s", ErrInvalidAmount, o.Amount, amount)
	}

	if err := e.ledger.Transfer(e.cfg.Stablecoin, o.Seller, e.cfg.Custody, amount); err != nil {
		return fmt.Errorf("failed to pull refund from seller: %w", err)
	}
	if err := e.ledger.Transfer(e.cfg.Stablecoin, e.cfg.Custody, o.Buyer, amount); err != nil {
		return fmt.Errorf("failed to forward refund to buyer: %w", err)
	}
	e.appendLogLocked(o, StateRefunded)
	return nil
}

func (e *Engine) orderLocked(id uint64) (*Order, error) {
	if id >= uint64(len(e.orders)) {
		return nil, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	return e.orders[id], nil
}

func (e *Engine) appendLogLocked(o *Order, s State) {
	entry := LogEntry{State: s, Timestamp: e.clock.Now().UnixMilli()}
	o.Logs = append(o.Logs, entry)
	o.State = s
	if e.notify != nil {
		e.notify(Event{OrderID: o.ID, Entry: entry})
	}
}

// ----------------------------------------------------------------------
// Stablecoin administration
// ----------------------------------------------------------------------

// SetStablecoinDataFeed adopts a new peg-watching feed, but only after
// the feed itself reports a price within the peg threshold. A rejected
// feed leaves the previous configuration fully intact.
func (e *Engine) SetStablecoinDataFeed(caller, feedAddr common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.cfg.Owner {
		return fmt.Errorf("%w: only the owner may change the data feed", ErrUnauthorized)
	}

	feed, err := e.feeds.Get(feedAddr)
	if err != nil {
		return fmt.Errorf("cannot adopt feed: %w", err)
	}
	pegged, err := oracle.Pegged(feed, e.cfg.PegThreshold)
	if err != nil {
		return fmt.Errorf("cannot adopt feed %s: %w", feedAddr.Hex(), err)
	}
	if !pegged {
		return fmt.Errorf("%w: %s", ErrNotPegged, feedAddr.Hex())
	}

	e.cfg.StableFeed = feedAddr
	return nil
}

func (e *Engine) SetStablecoinAddress(caller, asset common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.cfg.Owner {
		return fmt.Errorf("%w: only the owner may change the stablecoin", ErrUnauthorized)
	}
	e.cfg.Stablecoin = asset
	return nil
}

func (e *Engine) SetStablecoinPegThreshold(caller common.Address, threshold *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.cfg.Owner {
		return fmt.Errorf("%w: only the owner may change the peg threshold", ErrUnauthorized)
	}
	if threshold == nil || threshold.Sign() < 0 {
		return fmt.Errorf("%w: peg threshold cannot be negative", ErrInvalidAmount)
	}
	e.cfg.PegThreshold = new(big.Int).Set(threshold)
	return nil
}

// ----------------------------------------------------------------------
// Reads
// ----------------------------------------------------------------------

func (e *Engine) Orders() []Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Order, len(e.orders))
	for i, o := range e.orders {
		out[i] = o.snapshot()
	}
	return out
}

func (e *Engine) Order(id uint64) (Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, err := e.orderLocked(id)
	if err != nil {
		return Order{}, err
	}
	return o.snapshot(), nil
}

// OrdersOfUser returns every order the identity participates in, as
// buyer or seller. Identities the platform has never seen fail with
// ErrUserNotFound.
func (e *Engine) OrdersOfUser(addr common.Address) ([]Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.users[addr] {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, addr.Hex())
	}

	var out []Order
	for _, o := range e.orders {
		if o.Buyer == addr || o.Seller == addr {
			out = append(out, o.snapshot())
		}
	}
	return out, nil
}

func (e *Engine) LogsOfOrder(id uint64) ([]LogEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, err := e.orderLocked(id)
	if err != nil {
		return nil, err
	}
	logs := make([]LogEntry, len(o.Logs))
	copy(logs, o.Logs)
	return logs, nil
}

func (e *Engine) Sellers() []common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]common.Address, len(e.sellerList))
	copy(out, e.sellerList)
	return out
}

func (e *Engine) TotalSellers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sellerList)
}

func (e *Engine) TotalOrders() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return uint64(len(e.orders))
}

// Balance returns the engine's stable-unit custodial balance.
func (e *Engine) Balance() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.BalanceOf(e.cfg.Stablecoin, e.cfg.Custody)
}

// StablecoinIsPegged re-queries the configured feed on every call.
func (e *Engine) StablecoinIsPegged() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	feed, err := e.feeds.Get(e.cfg.StableFeed)
	if err != nil {
		return false, fmt.Errorf("configured feed unavailable: %w", err)
	}
	return oracle.Pegged(feed, e.cfg.PegThreshold)
}

func (e *Engine) Owner() common.Address { return e.cfg.Owner }

func (e *Engine) Custody() common.Address { return e.cfg.Custody }

func (e *Engine) Stablecoin() common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Stablecoin
}

func (e *Engine) StableFeed() common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.StableFeed
}

func (e *Engine) PegThreshold() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return new(big.Int).Set(e.cfg.PegThreshold)
}
