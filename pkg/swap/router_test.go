package swap

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/TeamOberon07/contract/pkg/ledger"
)

var (
	usdc  = common.HexToAddress("0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E")
	wavax = common.HexToAddress("0xB31f66AA3C1e785363F0875A1B74E27b85FD66c7")
	joe   = common.HexToAddress("0x6e84a6216eA6dACC71eE8E6b0a5B7322EEbC0fDd")
	vault = common.HexToAddress("0x00000000000000000000000000000000000000F0")
	alice = common.HexToAddress("0xAA00000000000000000000000000000000000000")
)

// newTestRouter prices WAVAX at 20 USDC: 1e18 wei buys 20e6 stable
// units, and 1 JOE (1e18) buys 0.5 WAVAX.
func newTestRouter(t *testing.T) (*FixedRateRouter, *ledger.TokenLedger) {
	t.Helper()
	l := ledger.NewTokenLedger()
	r := NewFixedRateRouter(l, vault)

	if err := r.SetRate(wavax, usdc, big.NewInt(1e12), big.NewInt(20)); err != nil {
		t.Fatalf("set wavax rate: %v", err)
	}
	if err := r.SetRate(joe, wavax, big.NewInt(2), big.NewInt(1)); err != nil {
		t.Fatalf("set joe rate: %v", err)
	}

	// Vault reserves for outputs.
	l.Mint(usdc, vault, big.NewInt(1_000_000e6))
	l.Mint(wavax, vault, new(big.Int).Mul(big.NewInt(1_000), big.NewInt(1e18)))
	return r, l
}

func TestQuoteInSingleHop(t *testing.T) {
	r, _ := newTestRouter(t)

	// 1999 USDC (1999e6 units) at 20 USDC/WAVAX = 99.95 WAVAX.
	quote, err := r.QuoteIn([]common.Address{wavax, usdc}, big.NewInt(1999e6))
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}
	want := new(big.Int).Mul(big.NewInt(9995), big.NewInt(1e16))
	if quote.Cmp(want) != 0 {
		t.Errorf("quote = %s, want %s", quote, want)
	}
}

func TestQuoteInTwoHops(t *testing.T) {
	r, _ := newTestRouter(t)

	// 100 USDC -> 5 WAVAX -> 10 JOE.
	quote, err := r.QuoteIn([]common.Address{joe, wavax, usdc}, big.NewInt(100e6))
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}
	want := new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18))
	if quote.Cmp(want) != 0 {
		t.Errorf("quote = %s, want %s", quote, want)
	}
}

func TestQuoteInErrors(t *testing.T) {
	r, _ := newTestRouter(t)

	if _, err := r.QuoteIn([]common.Address{usdc}, big.NewInt(1)); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("short path: got %v, want ErrInvalidPath", err)
	}
	if _, err := r.QuoteIn([]common.Address{wavax, usdc}, new(big.Int)); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero out: got %v, want ErrInvalidAmount", err)
	}
	if _, err := r.QuoteIn([]common.Address{usdc, joe}, big.NewInt(1)); !errors.Is(err, ErrNoRoute) {
		t.Errorf("unknown pair: got %v, want ErrNoRoute", err)
	}
}

func TestSwapForExactSpendsOnlyQuote(t *testing.T) {
	r, l := newTestRouter(t)

	hundred := new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))
	l.Mint(wavax, alice, hundred)

	// Allow double the needed input; only the quote must be spent.
	maxIn := new(big.Int).Mul(hundred, big.NewInt(2))
	amountIn, err := r.SwapForExact([]common.Address{wavax, usdc}, big.NewInt(1999e6), maxIn, alice)
	if err != nil {
		t.Fatalf("swap failed: %v", err)
	}

	wantIn := new(big.Int).Mul(big.NewInt(9995), big.NewInt(1e16))
	if amountIn.Cmp(wantIn) != 0 {
		t.Errorf("amountIn = %s, want %s", amountIn, wantIn)
	}
	if got := l.BalanceOf(usdc, alice); got.Cmp(big.NewInt(1999e6)) != 0 {
		t.Errorf("alice usdc = %s, want 1999e6", got)
	}
	wantLeft := new(big.Int).Sub(hundred, wantIn)
	if got := l.BalanceOf(wavax, alice); got.Cmp(wantLeft) != 0 {
		t.Errorf("alice wavax = %s, want %s", got, wantLeft)
	}
}

func TestSwapForExactSlippageGuard(t *testing.T) {
	r, l := newTestRouter(t)
	l.Mint(wavax, alice, new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18)))

	// Needs 99.95 WAVAX, allow only 99.
	maxIn := new(big.Int).Mul(big.NewInt(99), big.NewInt(1e18))
	_, err := r.SwapForExact([]common.Address{wavax, usdc}, big.NewInt(1999e6), maxIn, alice)
	if !errors.Is(err, ErrSlippageExceeded) {
		t.Fatalf("got %v, want ErrSlippageExceeded", err)
	}

	// Nothing moved.
	if got := l.BalanceOf(usdc, alice); got.Sign() != 0 {
		t.Errorf("alice usdc = %s, want 0", got)
	}
}

func TestSwapForExactInsufficientHolder(t *testing.T) {
	r, l := newTestRouter(t)
	l.Mint(wavax, alice, big.NewInt(1e18)) // 1 WAVAX, far short

	maxIn := new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))
	_, err := r.SwapForExact([]common.Address{wavax, usdc}, big.NewInt(1999e6), maxIn, alice)
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}
	if got := l.BalanceOf(wavax, alice); got.Cmp(big.NewInt(1e18)) != 0 {
		t.Errorf("alice wavax = %s, want untouched 1e18", got)
	}
}

func TestSwapForExactCeilRounding(t *testing.T) {
	l := ledger.NewTokenLedger()
	r := NewFixedRateRouter(l, vault)
	// 3 units of output cost 1 unit of input.
	r.SetRate(wavax, usdc, big.NewInt(1), big.NewInt(3))
	l.Mint(usdc, vault, big.NewInt(1000))
	l.Mint(wavax, alice, big.NewInt(1000))

	// 10 out at 1/3 in per out = ceil(10/3) = 4.
	amountIn, err := r.SwapForExact([]common.Address{wavax, usdc}, big.NewInt(10), big.NewInt(100), alice)
	if err != nil {
		t.Fatalf("swap failed: %v", err)
	}
	if amountIn.Cmp(big.NewInt(4)) != 0 {
		t.Errorf("amountIn = %s, want 4 (rounded up)", amountIn)
	}
}
