package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNegativeAmount    = errors.New("amount cannot be negative")
)

// Ledger is the asset-transfer primitive the escrow engine builds on.
// It moves value of a given asset between holders and answers balance
// queries. Amounts are integers in the asset's own decimal scale.
type Ledger interface {
	Mint(asset, to common.Address, amount *big.Int) error
	Transfer(asset, from, to common.Address, amount *big.Int) error
	BalanceOf(asset, holder common.Address) *big.Int
}

// TokenLedger is an in-memory multi-asset ledger with optional pebble
// persistence. All balances live in the cache; the store, when present,
// is written through on every mutation and warmed once at open.
type TokenLedger struct {
	mu       sync.RWMutex
	balances map[common.Address]map[common.Address]*big.Int // asset -> holder -> balance
	store    *Store
}

// NewTokenLedger creates a memory-only ledger (devnet and tests).
func NewTokenLedger() *TokenLedger {
	return &TokenLedger{
		balances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

// NewTokenLedgerWithPath creates a ledger backed by a pebble database,
// preloading every persisted balance into the cache.
func NewTokenLedgerWithPath(dbPath string) (*TokenLedger, error) {
	store, err := NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	l := &TokenLedger{
		balances: make(map[common.Address]map[common.Address]*big.Int),
		store:    store,
	}

	persisted, err := store.LoadBalances()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load balances: %w", err)
	}
	for key, amount := range persisted {
		l.holderMap(key.Asset)[key.Holder] = amount
	}

	return l, nil
}

// Close closes the underlying pebble database, if any.
func (l *TokenLedger) Close() error {
	if l.store == nil {
		return nil
	}
	return l.store.Close()
}

func (l *TokenLedger) holderMap(asset common.Address) map[common.Address]*big.Int {
	m, ok := l.balances[asset]
	if !ok {
		m = make(map[common.Address]*big.Int)
		l.balances[asset] = m
	}
	return m
}

func (l *TokenLedger) balanceLocked(asset, holder common.Address) *big.Int {
	if bal, ok := l.balances[asset][holder]; ok {
		return bal
	}
	return new(big.Int)
}

// Mint credits newly issued units of an asset to a holder. Used by the
// devnet faucet and by tests to seed balances.
func (l *TokenLedger) Mint(asset, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amount.Sign() == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	m := l.holderMap(asset)
	m[to] = new(big.Int).Add(l.balanceLocked(asset, to), amount)

	return l.persistLocked(asset, to)
}

// Transfer moves amount of asset from one holder to another. A zero
// amount is a no-op. Fails with ErrInsufficientFunds when the sender
// does not cover the amount; balances are untouched on failure.
func (l *TokenLedger) Transfer(asset, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amount.Sign() == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fromBal := l.balanceLocked(asset, from)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: holder %s has %s of %s, need %s",
			ErrInsufficientFunds, from.Hex(), fromBal, asset.Hex(), amount)
	}

	m := l.holderMap(asset)
	m[from] = new(big.Int).Sub(fromBal, amount)
	m[to] = new(big.Int).Add(l.balanceLocked(asset, to), amount)

	if err := l.persistLocked(asset, from); err != nil {
		return err
	}
	return l.persistLocked(asset, to)
}

// BalanceOf returns the holder's balance of asset. The returned value
// is a copy; mutating it does not affect the ledger.
func (l *TokenLedger) BalanceOf(asset, holder common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.balanceLocked(asset, holder))
}

func (l *TokenLedger) persistLocked(asset, holder common.Address) error {
	if l.store == nil {
		return nil
	}
	return l.store.SaveBalance(asset, holder, l.balanceLocked(asset, holder))
}
