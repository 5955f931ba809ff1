package swap

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/TeamOberon07/contract/pkg/ledger"
)

var (
	ErrSlippageExceeded = errors.New("swap requires more input than the allowed maximum")
	ErrNoRoute          = errors.New("no rate configured for pair")
	ErrInvalidPath      = errors.New("swap path needs at least two assets")
	ErrInvalidAmount    = errors.New("swap amount must be positive")
)

// Router quotes and executes exact-output conversions along a path of
// assets. SwapForExact debits at most maxAmountIn of path[0] from the
// holder and credits exactly amountOut of the final path asset; any
// unspent input never leaves the holder.
type Router interface {
	QuoteIn(path []common.Address, amountOut *big.Int) (*big.Int, error)
	SwapForExact(path []common.Address, amountOut, maxAmountIn *big.Int, holder common.Address) (*big.Int, error)
}

type pair struct {
	in, out common.Address
}

// rate prices amountOut of the pair's output: amountIn = ceil(amountOut * num / den).
type rate struct {
	num, den *big.Int
}

// FixedRateRouter executes swaps against a rate table and a funded
// vault on the token ledger. It is the devnet and test stand-in for an
// external AMM; it quotes deterministically and holds no pricing curve.
type FixedRateRouter struct {
	mu     sync.RWMutex
	ledger ledger.Ledger
	vault  common.Address
	rates  map[pair]rate
}

func NewFixedRateRouter(l ledger.Ledger, vault common.Address) *FixedRateRouter {
	return &FixedRateRouter{
		ledger: l,
		vault:  vault,
		rates:  make(map[pair]rate),
	}
}

// Vault returns the ledger holder backing the router's output reserves.
func (r *FixedRateRouter) Vault() common.Address { return r.vault }

// SetRate configures the pair so that amountOut of assetOut costs
// ceil(amountOut * num / den) of assetIn.
func (r *FixedRateRouter) SetRate(assetIn, assetOut common.Address, num, den *big.Int) error {
	if num == nil || den == nil || num.Sign() <= 0 || den.Sign() <= 0 {
		return fmt.Errorf("rate must be positive: num=%v den=%v", num, den)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates[pair{assetIn, assetOut}] = rate{
		num: new(big.Int).Set(num),
		den: new(big.Int).Set(den),
	}
	return nil
}

// QuoteIn returns the input amount of path[0] required to receive
// exactly amountOut of the last path asset, composing per-hop rates
// right to left.
func (r *FixedRateRouter) QuoteIn(path []common.Address, amountOut *big.Int) (*big.Int, error) {
	if len(path) < 2 {
		return nil, ErrInvalidPath
	}
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.quoteLocked(path, amountOut)
}

func (r *FixedRateRouter) quoteLocked(path []common.Address, amountOut *big.Int) (*big.Int, error) {
	need := new(big.Int).Set(amountOut)
	for i := len(path) - 1; i > 0; i-- {
		rt, ok := r.rates[pair{path[i-1], path[i]}]
		if !ok {
			return nil, fmt.Errorf("%w: %s -> %s", ErrNoRoute, path[i-1].Hex(), path[i].Hex())
		}
		// ceil(need * num / den)
		need.Mul(need, rt.num)
		need.Add(need, new(big.Int).Sub(rt.den, big.NewInt(1)))
		need.Quo(need, rt.den)
	}
	return need, nil
}

// SwapForExact pulls the quoted input from the holder into the vault
// and pays exactly amountOut from the vault's reserves. Fails without
// moving funds when the quote exceeds maxAmountIn, the holder cannot
// cover the input, or the vault's reserves cannot cover the output.
func (r *FixedRateRouter) SwapForExact(path []common.Address, amountOut, maxAmountIn *big.Int, holder common.Address) (*big.Int, error) {
	if len(path) < 2 {
		return nil, ErrInvalidPath
	}
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	amountIn, err := r.quoteLocked(path, amountOut)
	if err != nil {
		return nil, err
	}
	if maxAmountIn == nil || amountIn.Cmp(maxAmountIn) > 0 {
		return nil, fmt.Errorf("%w: need %s, max %s", ErrSlippageExceeded, amountIn, maxAmountIn)
	}

	assetIn, assetOut := path[0], path[len(path)-1]

	// Check both legs up front so a half-executed swap is impossible.
	if r.ledger.BalanceOf(assetIn, holder).Cmp(amountIn) < 0 {
		return nil, fmt.Errorf("holder cannot cover swap input: %w", ledger.ErrInsufficientFunds)
	}
	if r.ledger.BalanceOf(assetOut, r.vault).Cmp(amountOut) < 0 {
		return nil, fmt.Errorf("vault reserves cannot cover swap output: %w", ledger.ErrInsufficientFunds)
	}

	if err := r.ledger.Transfer(assetIn, holder, r.vault, amountIn); err != nil {
		return nil, fmt.Errorf("swap input leg failed: %w", err)
	}
	if err := r.ledger.Transfer(assetOut, r.vault, holder, amountOut); err != nil {
		// Checked above; put the input back if it happens anyway.
		_ = r.ledger.Transfer(assetIn, r.vault, holder, amountIn)
		return nil, fmt.Errorf("swap output leg failed: %w", err)
	}

	return amountIn, nil
}
